package event

import (
	"context"
)

// Action is an interface for an action that can be run. It is the unit fired by a Scheduler once its delay
// has elapsed.
type Action interface {
	Run(context.Context)
}

// A BasicAction adapts a function as an Action.
type BasicAction func(context.Context)

var _ Action = (*BasicAction)(nil)

// Run executes the action
func (a BasicAction) Run(ctx context.Context) {
	a(ctx)
}
