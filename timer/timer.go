// Package timer implements a task that completes once an interval of main-loop time has elapsed.
package timer

import (
	"context"
	"fmt"
	"time"

	"github.com/plprobelab/go-cotask/event"
	"github.com/plprobelab/go-cotask/task"
	"github.com/plprobelab/go-cotask/taskerr"
)

// States is the range reserved by Timer. Task types that extend Timer reserve theirs with States.Extend.
var States = task.Root.Extend(2)

var (
	StateWaiting = States.At(0)
	StateExpired = States.At(1)
)

// Timer waits for Interval on its scheduler, then finishes. A persistent Timer survives a successful run so its owner
// can run it again, for example from the completion callback to fire repeatedly.
type Timer struct {
	task.Base

	sched      event.Scheduler
	handle     event.Handle
	interval   time.Duration
	persistent bool

	t *task.Task
}

var _ task.Impl = (*Timer)(nil)

// Config specifies optional configuration for a Timer
type Config struct {
	Interval   time.Duration // the time to wait before the timer expires
	Persistent bool          // whether the timer is kept after finishing so that it may be run again
}

// Validate checks the configuration options and returns an error if any have invalid values.
func (cfg *Config) Validate() error {
	if cfg.Interval < 0 {
		return &taskerr.ConfigurationError{
			Component: "TimerConfig",
			Err:       fmt.Errorf("interval must not be negative"),
		}
	}
	return nil
}

// DefaultConfig returns the default configuration options for a Timer.
// Options may be overridden before passing to New
func DefaultConfig() *Config {
	return &Config{
		Interval: time.Second,
	}
}

// New creates a Timer that waits on sched.
func New(sched event.Scheduler, cfg *Config) (*Timer, error) {
	if sched == nil {
		return nil, &taskerr.ConfigurationError{
			Component: "Timer",
			Err:       fmt.Errorf("scheduler must not be nil"),
		}
	}
	if cfg == nil {
		cfg = DefaultConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Timer{
		sched:      sched,
		interval:   cfg.Interval,
		persistent: cfg.Persistent,
	}, nil
}

// Interval returns the time the timer waits for.
func (tm *Timer) Interval() time.Duration {
	return tm.interval
}

// SetInterval changes the interval used by the next run. A pending wait is not affected.
func (tm *Timer) SetInterval(d time.Duration) {
	tm.interval = d
}

// IsRunning reports whether the timer is waiting for its interval to elapse.
func (tm *Timer) IsRunning() bool {
	return tm.sched.IsPending(&tm.handle)
}

// Remaining returns the time left before the timer expires, if it is waiting on a scheduler that can tell.
func (tm *Timer) Remaining() (time.Duration, bool) {
	type remainer interface {
		Remaining(*event.Handle) (time.Duration, bool)
	}
	if r, ok := tm.sched.(remainer); ok {
		return r.Remaining(&tm.handle)
	}
	return 0, false
}

func (tm *Timer) States() task.Range {
	return States
}

func (tm *Timer) Initialize(_ context.Context, t *task.Task) {
	tm.t = t
}

// Begin moves t into the Waiting state. Task types extending Timer call it from one of their own states to start
// the wait; the Timer's own run starts there directly.
func (tm *Timer) Begin(t *task.Task) {
	tm.t = t
	t.Advance(States, StateWaiting)
}

func (tm *Timer) Step(ctx context.Context, t *task.Task, s task.State) {
	switch s {
	case StateWaiting:
		tm.sched.Create(ctx, &tm.handle, tm.interval, event.BasicAction(tm.expired))
		t.Idle()
	case StateExpired:
		t.Finish(ctx)
	default:
		taskerr.Misuse("Step", t.Name(), taskerr.ErrUnknownState)
	}
}

func (tm *Timer) expired(context.Context) {
	tm.t.Advance(States, StateExpired)
	tm.t.Resume()
}

// Abort cancels the pending wait so that the expiration can no longer resume the task.
func (tm *Timer) Abort(ctx context.Context, _ *task.Task) {
	tm.sched.Cancel(ctx, &tm.handle)
}

// Finish cancels a wait that is still pending, which happens when the owner finishes or fails the task before the
// interval elapsed.
func (tm *Timer) Finish(ctx context.Context, _ *task.Task, aborted bool) task.Disposition {
	tm.sched.Cancel(ctx, &tm.handle)
	if tm.persistent && !aborted {
		return task.Reusable
	}
	return task.Dispose
}

func (tm *Timer) StateName(s task.State) string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateExpired:
		return "expired"
	default:
		return ""
	}
}
