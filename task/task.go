package task

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/plprobelab/go-cotask/taskerr"
	"github.com/plprobelab/go-cotask/util"
)

// Impl is implemented by every concrete task. The Engine calls Step once per active cycle with the task's current
// state; the other methods are hooks invoked at fixed points of the lifecycle.
type Impl interface {
	// States returns the reserved range of the most derived task type. A run starts in its first state.
	States() Range

	// Initialize performs the one-time setup of a run, before the initial state is set.
	Initialize(context.Context, *Task)

	// Step performs the work of state s. It may advance the task, call Idle, or terminate it with Finish, Fail
	// or Abort. Returning without doing any of these is the same as calling Idle.
	Step(ctx context.Context, t *Task, s State)

	// Abort releases every external registration still referring to the task, such as pending scheduler entries.
	Abort(context.Context, *Task)

	// Finish is called on every termination, after Abort when the run was aborted. The returned Disposition
	// decides whether the Engine drops the task.
	Finish(ctx context.Context, t *Task, aborted bool) Disposition

	// StateName returns a label for s, or the empty string if s is not a state of the task or of any type
	// it extends.
	StateName(s State) string
}

// Base supplies the default hooks of an Impl and is meant to be embedded.
type Base struct{}

func (Base) Initialize(context.Context, *Task) {}

func (Base) Abort(context.Context, *Task) {}

// Finish disposes the task.
func (Base) Finish(context.Context, *Task, bool) Disposition { return Dispose }

func (Base) StateName(State) string { return "" }

// Task is a cooperative state machine owned by an Engine. All of its methods must be called from the goroutine
// driving the Engine.
type Task struct {
	id     uint64
	name   string
	impl   Impl
	engine *Engine

	states     Range
	state      State
	phase      Phase
	onComplete func(bool)
	err        error
	disposed   bool

	gen      uint64 // incremented by every Run
	lastTick uint64 // engine tick of the latest cycle
	inStep   bool
	idled    bool
	resumed  bool
}

// ID returns the identifier assigned by the Engine.
func (t *Task) ID() uint64 { return t.id }

// Name returns the diagnostic name of the task.
func (t *Task) Name() string { return t.name }

// State returns the current state.
func (t *Task) State() State { return t.state }

// Phase returns the current lifecycle phase.
func (t *Task) Phase() Phase { return t.phase }

// Err returns the error passed to Fail during the latest run.
func (t *Task) Err() error { return t.err }

// Disposed reports whether the task has been dropped by its Engine.
func (t *Task) Disposed() bool { return t.disposed }

// Active reports whether a run is in progress.
func (t *Task) Active() bool {
	switch t.phase {
	case PhaseInitializing, PhaseRunning, PhaseIdle:
		return true
	default:
		return false
	}
}

// Run starts the task, or restarts a task that terminated with a Reusable disposition. onComplete is invoked exactly
// once when the run terminates, with true if it finished successfully. Run initializes the task, sets the first
// state of its range and executes the first cycle immediately.
func (t *Task) Run(ctx context.Context, onComplete func(success bool)) {
	if t.disposed {
		taskerr.Misuse("Run", t.name, taskerr.ErrDisposed)
	}
	if t.phase != PhaseUnstarted && t.phase != PhaseTerminal {
		taskerr.Misuse("Run", t.name, taskerr.ErrAlreadyActive)
	}
	states := t.impl.States()
	if states.Len() < 1 {
		taskerr.Misuse("Run", t.name, taskerr.ErrEmptyRange)
	}

	ctx, span := util.StartSpan(ctx, "Task.Run", trace.WithAttributes(attribute.String("task", t.name)))
	defer span.End()

	t.gen++
	t.states = states
	t.onComplete = onComplete
	t.err = nil
	t.inStep, t.idled, t.resumed = false, false, false

	t.phase = PhaseInitializing
	t.impl.Initialize(ctx, t)
	if t.phase != PhaseInitializing {
		// terminated during initialization
		return
	}

	t.state = states.Base
	t.phase = PhaseRunning
	t.engine.log.Debug("task running", "task", t.name, "id", t.id, "state", stateValue{t})

	t.cycle(ctx)
}

// cycle executes one per-state step.
func (t *Task) cycle(ctx context.Context) {
	gen := t.gen
	before := t.state
	t.lastTick = t.engine.ticks
	t.step(ctx)

	if t.gen != gen {
		// the completion callback started a new run which has already executed its own first cycle
		return
	}
	if t.phase != PhaseRunning {
		return
	}
	if t.resumed {
		return
	}
	if t.idled || t.state == before {
		t.phase = PhaseIdle
		t.engine.log.Debug("task idle", "task", t.name, "id", t.id, "state", stateValue{t})
	}
}

// step runs the Impl's step for the current state. inStep is cleared even if the step panics.
func (t *Task) step(ctx context.Context) {
	t.inStep, t.idled, t.resumed = true, false, false
	defer func() { t.inStep = false }()
	t.impl.Step(ctx, t, t.state)
}

// Advance moves the task to state s. own is the reserved range of the type making the transition and must contain
// s. Within a range, transitions only move forward: s must be greater than the current state when the current state
// belongs to own. Entering own from a state of another range is always allowed, so a type that hands control to the
// type it extends and takes it back may revisit its own earlier states: the forward-only rule holds per range, not
// across the levels of a task type.
func (t *Task) Advance(own Range, s State) {
	if t.phase != PhaseRunning && t.phase != PhaseIdle {
		taskerr.Misuse("Advance", t.name, taskerr.ErrNotActive)
	}
	if !own.Contains(s) || own.End > t.states.End {
		taskerr.Misuse("Advance", t.name, taskerr.ErrStateRange)
	}
	if own.Contains(t.state) && s <= t.state {
		taskerr.Misuse("Advance", t.name, taskerr.ErrBackwardTransition)
	}
	t.state = s
}

// Idle declares that the current step has no further work. The task is not stepped again until Resume is called.
// Idle may only be called from within Step. A Resume made earlier in the same step cancels the Idle.
func (t *Task) Idle() {
	if !t.inStep {
		taskerr.Misuse("Idle", t.name, taskerr.ErrIdleOutsideStep)
	}
	if t.phase != PhaseRunning {
		taskerr.Misuse("Idle", t.name, taskerr.ErrNotActive)
	}
	t.idled = true
}

// Resume re-arms an idle task so that the Engine steps it on its next tick. Resuming a running task does nothing.
func (t *Task) Resume() {
	switch t.phase {
	case PhaseIdle:
		t.phase = PhaseRunning
		t.engine.log.Debug("task resumed", "task", t.name, "id", t.id, "state", stateValue{t})
	case PhaseRunning:
		if t.inStep {
			t.resumed = true
		}
	case PhaseInitializing:
	default:
		taskerr.Misuse("Resume", t.name, taskerr.ErrNotActive)
	}
}

// Finish terminates the run successfully.
func (t *Task) Finish(ctx context.Context) {
	t.terminate(ctx, "Finish", true, false, nil)
}

// Fail terminates the run unsuccessfully without aborting it: the abort hook is not called and err is kept
// for Err.
func (t *Task) Fail(ctx context.Context, err error) {
	t.terminate(ctx, "Fail", false, false, err)
}

// Abort cancels the run. The abort hook releases the task's external registrations before Abort returns.
func (t *Task) Abort(ctx context.Context) {
	t.terminate(ctx, "Abort", false, true, nil)
}

func (t *Task) terminate(ctx context.Context, op string, success, aborted bool, err error) {
	if !t.Active() {
		taskerr.Misuse(op, t.name, taskerr.ErrNotActive)
	}

	ctx, span := util.StartSpan(ctx, "Task."+op, trace.WithAttributes(
		attribute.String("task", t.name),
		attribute.Int("state", int(t.state)),
	))
	defer span.End()

	if aborted {
		t.phase = PhaseAborting
		t.impl.Abort(ctx, t)
	} else {
		t.phase = PhaseFinishing
	}
	t.err = err

	disp := t.impl.Finish(ctx, t, aborted)
	t.phase = PhaseTerminal

	attrs := []any{"task", t.name, "id", t.id, "state", stateValue{t}, "success", success, "disposition", disp.String()}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	t.engine.log.Debug("task terminated", attrs...)

	if disp == Dispose {
		t.disposed = true
		t.engine.release()
	}

	cb := t.onComplete
	t.onComplete = nil
	if cb != nil {
		cb(success)
	}
}

// Dispose drops a task that is not running from its Engine. It is used by owners of Reusable tasks.
func (t *Task) Dispose() {
	if t.disposed {
		taskerr.Misuse("Dispose", t.name, taskerr.ErrDisposed)
	}
	if t.Active() || t.phase == PhaseFinishing || t.phase == PhaseAborting {
		taskerr.Misuse("Dispose", t.name, taskerr.ErrAlreadyActive)
	}
	t.disposed = true
	t.engine.log.Debug("task disposed", "task", t.name, "id", t.id)
	t.engine.release()
}

// DescribeState returns the label of the current state. It panics if the task does not recognize its own state.
func (t *Task) DescribeState() string {
	if t.phase == PhaseUnstarted {
		return t.phase.String()
	}
	name := t.impl.StateName(t.state)
	if name == "" {
		taskerr.Misuse("DescribeState", t.name, taskerr.ErrUnknownState)
	}
	return name
}

// stateValue renders the state of a task lazily in log records.
type stateValue struct {
	t *Task
}

func (v stateValue) LogValue() slog.Value {
	if v.t.phase == PhaseUnstarted {
		return slog.StringValue(v.t.phase.String())
	}
	if name := v.t.impl.StateName(v.t.state); name != "" {
		return slog.StringValue(name)
	}
	return slog.IntValue(int(v.t.state))
}
