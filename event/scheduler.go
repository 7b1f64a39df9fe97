package event

import (
	"context"
	"time"
)

// Scheduler fires one-shot actions once a given amount of accumulated time has elapsed. Time only moves when Pump is
// called, usually once per iteration of the application's main loop.
type Scheduler interface {
	// Now returns the accumulated time of the scheduler, the sum of all deltas passed to Pump.
	Now() time.Duration

	// Create registers a to run once d has elapsed. A registration already held by h is cancelled first, so a handle
	// owns at most one pending action at a time.
	Create(context.Context, *Handle, time.Duration, Action)

	// Cancel removes the registration held by h, if any. It is always safe to call: cancelling a handle that fired,
	// was already cancelled or never registered anything does nothing.
	Cancel(context.Context, *Handle)

	// IsPending reports whether h holds a registration that has neither fired nor been cancelled.
	IsPending(*Handle) bool

	// Pump advances the accumulated time by the given delta then fires every due action, returning the number
	// of actions fired.
	Pump(context.Context, time.Duration) int
}

// AwareScheduler is a scheduler that can report when its next action becomes due.
type AwareScheduler interface {
	Scheduler

	// NextExpiration returns the accumulated time at which the earliest pending action becomes due, or false if
	// nothing is pending.
	NextExpiration() (time.Duration, bool)
}

// CreateFunc registers fn to run on s once d has elapsed.
func CreateFunc(ctx context.Context, s Scheduler, h *Handle, d time.Duration, fn func(context.Context)) {
	s.Create(ctx, h, d, BasicAction(fn))
}

// Handle is the owner's slot for a pending registration. It is typically embedded in the struct that owns the wait.
// The zero value holds no registration and is ready to use. A Handle must not be copied while a registration is
// pending.
type Handle struct {
	e *entry
}
