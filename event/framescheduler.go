package event

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/plprobelab/go-cotask/taskerr"
	"github.com/plprobelab/go-cotask/util"
)

// FrameScheduler is the Scheduler driven by the main loop. Pending actions are kept in a min-heap ordered by
// expiration then registration order. Cancelled entries are not removed eagerly: they are marked dead and skipped
// when popped, and the heap is compacted once dead entries dominate it.
//
// FrameScheduler is not safe for concurrent use; all calls must come from the goroutine driving the main loop.
type FrameScheduler struct {
	now  time.Duration
	seq  uint64
	live int
	dead int

	pending entryHeap
	firing  bool

	compactThreshold int
}

var _ AwareScheduler = (*FrameScheduler)(nil)

type entry struct {
	expires time.Duration
	seq     uint64
	action  Action
	live    bool
	handle  *Handle
}

// FrameSchedulerConfig specifies optional configuration for a FrameScheduler
type FrameSchedulerConfig struct {
	CompactThreshold int // the number of dead entries tolerated before the heap is considered for compaction
}

// Validate checks the configuration options and returns an error if any have invalid values.
func (cfg *FrameSchedulerConfig) Validate() error {
	if cfg.CompactThreshold < 1 {
		return &taskerr.ConfigurationError{
			Component: "FrameSchedulerConfig",
			Err:       fmt.Errorf("compact threshold must be greater than zero"),
		}
	}
	return nil
}

// DefaultFrameSchedulerConfig returns the default configuration options for a FrameScheduler.
// Options may be overridden before passing to NewFrameScheduler
func DefaultFrameSchedulerConfig() *FrameSchedulerConfig {
	return &FrameSchedulerConfig{
		CompactThreshold: 64,
	}
}

// NewFrameScheduler creates a new FrameScheduler with an accumulated time of zero.
func NewFrameScheduler(cfg *FrameSchedulerConfig) (*FrameScheduler, error) {
	if cfg == nil {
		cfg = DefaultFrameSchedulerConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &FrameScheduler{
		compactThreshold: cfg.CompactThreshold,
	}, nil
}

// Now returns the scheduler's accumulated time.
func (s *FrameScheduler) Now() time.Duration {
	return s.now
}

// Len returns the number of pending registrations.
func (s *FrameScheduler) Len() int {
	return s.live
}

// Create registers a to run once d has elapsed from the current accumulated time, replacing any registration
// held by h. Registrations created while Pump is firing never fire during that same Pump.
func (s *FrameScheduler) Create(ctx context.Context, h *Handle, d time.Duration, a Action) {
	if a == nil {
		taskerr.Misuse("Create", "", taskerr.ErrNilAction)
	}
	if h.e != nil {
		s.Cancel(ctx, h)
	}

	e := &entry{
		expires: s.now + d,
		seq:     s.seq,
		action:  a,
		live:    true,
		handle:  h,
	}
	s.seq++
	s.live++
	heap.Push(&s.pending, e)
	h.e = e
}

// Cancel removes the registration held by h. The action is guaranteed not to run after Cancel returns, even when it
// is already due and the current Pump has not reached it yet.
func (s *FrameScheduler) Cancel(ctx context.Context, h *Handle) {
	if h == nil || h.e == nil {
		return
	}

	e := h.e
	h.e = nil
	if !e.live {
		return
	}
	e.live = false
	e.action = nil
	e.handle = nil
	s.live--
	s.dead++
	s.maybeCompact()
}

// IsPending reports whether h holds a registration that has neither fired nor been cancelled.
func (s *FrameScheduler) IsPending(h *Handle) bool {
	return h != nil && h.e != nil && h.e.live
}

// Remaining returns the time left before the registration held by h becomes due, or false if h holds no pending
// registration. The result is zero or negative for a registration that is due but has not fired yet.
func (s *FrameScheduler) Remaining(h *Handle) (time.Duration, bool) {
	if !s.IsPending(h) {
		return 0, false
	}
	return h.e.expires - s.now, true
}

// NextExpiration returns the accumulated time at which the earliest pending registration becomes due.
func (s *FrameScheduler) NextExpiration() (time.Duration, bool) {
	for len(s.pending) > 0 && !s.pending[0].live {
		heap.Pop(&s.pending)
		s.dead--
	}
	if len(s.pending) == 0 {
		return 0, false
	}
	return s.pending[0].expires, true
}

// Pump advances the accumulated time by dt and fires every registration due at the new time, in ascending order of
// expiration and, for equal expirations, in registration order. Registrations created by a firing action are left
// for a later Pump even when they are already due.
func (s *FrameScheduler) Pump(ctx context.Context, dt time.Duration) int {
	if dt < 0 {
		taskerr.Misuse("Pump", dt.String(), taskerr.ErrNegativeDelta)
	}
	if s.firing {
		taskerr.Misuse("Pump", "", taskerr.ErrReentrantPump)
	}

	ctx, span := util.StartSpan(ctx, "FrameScheduler.Pump")
	defer span.End()

	s.now += dt
	limit := s.seq
	fired := 0

	var deferred []*entry
	s.firing = true
	defer func() {
		// restore entries created by fired actions, also when an action panics
		for _, e := range deferred {
			heap.Push(&s.pending, e)
		}
		s.firing = false
		s.maybeCompact()
		span.SetAttributes(attribute.Int("fired", fired), attribute.Int64("now_ms", s.now.Milliseconds()))
	}()

	for len(s.pending) > 0 && s.pending[0].expires <= s.now {
		e := heap.Pop(&s.pending).(*entry)
		if !e.live {
			s.dead--
			continue
		}
		if e.seq >= limit {
			deferred = append(deferred, e)
			continue
		}

		a := e.action
		e.live = false
		e.action = nil
		if e.handle != nil && e.handle.e == e {
			e.handle.e = nil
		}
		e.handle = nil
		s.live--
		fired++

		a.Run(ctx)
	}

	return fired
}

func (s *FrameScheduler) maybeCompact() {
	if s.firing || s.dead < s.compactThreshold || s.dead*2 < len(s.pending) {
		return
	}

	kept := s.pending[:0]
	for _, e := range s.pending {
		if e.live {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(s.pending); i++ {
		s.pending[i] = nil
	}
	s.pending = kept
	s.dead = 0
	heap.Init(&s.pending)
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].expires != h[j].expires {
		return h[i].expires < h[j].expires
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
