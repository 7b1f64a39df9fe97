// Package tasktest provides helpers shared by the tests of the task, timer and coord packages.
package tasktest

import (
	"context"

	"github.com/plprobelab/go-cotask/event"
)

// Completion records every invocation of a task completion callback.
type Completion struct {
	Calls []bool
}

// Func returns a completion callback that appends to c.Calls.
func (c *Completion) Func() func(bool) {
	return func(success bool) {
		c.Calls = append(c.Calls, success)
	}
}

// Log is an ordered record of named calls.
type Log struct {
	Entries []string
}

// Action returns an event.Action that appends name to the log when run.
func (l *Log) Action(name string) event.Action {
	return event.BasicAction(func(context.Context) {
		l.Entries = append(l.Entries, name)
	})
}

// Add appends name to the log.
func (l *Log) Add(name string) {
	l.Entries = append(l.Entries, name)
}
