package task

import (
	"fmt"

	"github.com/plprobelab/go-cotask/taskerr"
)

// State identifies a step of a task. Every level of a task type owns a contiguous block of states, see Range.
type State int

// Range is a reserved block of states [Base, End). A task type extending another takes the block that starts where
// the extended type's block ends, which keeps the states of every level distinct.
type Range struct {
	Base State
	End  State
}

// Root is the empty range at the bottom of every task's state space.
var Root = Range{}

// Extend reserves the n states that immediately follow r.
func (r Range) Extend(n int) Range {
	if n < 1 {
		panic(fmt.Sprintf("task: cannot extend state range by %d states", n))
	}
	return Range{Base: r.End, End: r.End + State(n)}
}

// Len returns the number of states in the range.
func (r Range) Len() int {
	return int(r.End - r.Base)
}

// Contains reports whether s lies in the range.
func (r Range) Contains(s State) bool {
	return s >= r.Base && s < r.End
}

// Follows reports whether r starts exactly where base ends.
func (r Range) Follows(base Range) bool {
	return r.Base == base.End
}

// At returns the i-th state of the range.
func (r Range) At(i int) State {
	if i < 0 || i >= r.Len() {
		taskerr.Misuse("At", r.String(), taskerr.ErrStateRange)
	}
	return r.Base + State(i)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Base, r.End)
}
