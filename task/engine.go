package task

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/plprobelab/go-cotask/taskerr"
	"github.com/plprobelab/go-cotask/util"
)

// Engine owns a set of tasks and steps the running ones once per tick, in the order they were added.
// Disposed tasks are dropped by the Engine once the tick that disposed them is over.
type Engine struct {
	log       *slog.Logger
	maxCycles int

	tasks   []*Task
	nextID  uint64
	ticks   uint64
	ticking bool
	dirty   bool

	// resumeID is the id of the first task left unstepped by a tick that reached maxCycles, zero otherwise
	resumeID uint64
}

// EngineConfig specifies optional configuration for an Engine
type EngineConfig struct {
	Logger           *slog.Logger // receives debug records for task lifecycle transitions
	MaxCyclesPerTick int          // the most steps a single tick executes, zero for no limit
}

// Validate checks the configuration options and returns an error if any have invalid values.
func (cfg *EngineConfig) Validate() error {
	if cfg.Logger == nil {
		return &taskerr.ConfigurationError{
			Component: "EngineConfig",
			Err:       fmt.Errorf("logger must not be nil"),
		}
	}

	if cfg.MaxCyclesPerTick < 0 {
		return &taskerr.ConfigurationError{
			Component: "EngineConfig",
			Err:       fmt.Errorf("max cycles per tick must not be negative"),
		}
	}
	return nil
}

// DefaultEngineConfig returns the default configuration options for an Engine.
// Options may be overridden before passing to NewEngine
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		log:       cfg.Logger,
		maxCycles: cfg.MaxCyclesPerTick,
	}, nil
}

// Add registers a new unstarted task implemented by impl.
func (e *Engine) Add(name string, impl Impl) *Task {
	e.nextID++
	t := &Task{
		id:     e.nextID,
		name:   name,
		impl:   impl,
		engine: e,
		phase:  PhaseUnstarted,
	}
	e.tasks = append(e.tasks, t)
	return t
}

// Tick steps every task that is running when the tick starts and has not been stepped during it yet, in
// registration order. Tasks added during the tick wait for the next one. When MaxCyclesPerTick is reached the
// remaining tasks are stepped first on the next tick, which then wraps around to the start of the order.
// Tick returns the number of steps executed. Calling Tick from within a step panics.
func (e *Engine) Tick(ctx context.Context) int {
	if e.ticking {
		taskerr.Misuse("Tick", "", taskerr.ErrReentrantTick)
	}

	ctx, span := util.StartSpan(ctx, "Engine.Tick")
	defer span.End()

	e.ticks++
	e.ticking = true
	steps := 0
	defer func() {
		e.ticking = false
		if e.dirty {
			e.compact()
		}
		span.SetAttributes(attribute.Int("steps", steps), attribute.Int("tasks", len(e.tasks)))
	}()

	n := len(e.tasks)
	start := 0
	if e.resumeID != 0 {
		for start < n && e.tasks[start].id < e.resumeID {
			start++
		}
		if start == n {
			start = 0
		}
		e.resumeID = 0
	}

	for i := 0; i < n; i++ {
		t := e.tasks[(start+i)%n]
		if t.disposed || t.phase != PhaseRunning || t.lastTick == e.ticks {
			continue
		}
		if e.maxCycles > 0 && steps == e.maxCycles {
			e.resumeID = t.id
			break
		}
		t.cycle(ctx)
		steps++
	}
	return steps
}

// AbortAll aborts every active task.
func (e *Engine) AbortAll(ctx context.Context) {
	for _, t := range append([]*Task(nil), e.tasks...) {
		if t.Active() {
			t.Abort(ctx)
		}
	}
}

// Len returns the number of tasks owned by the Engine.
func (e *Engine) Len() int {
	n := 0
	for _, t := range e.tasks {
		if !t.disposed {
			n++
		}
	}
	return n
}

// Active returns the number of tasks with a run in progress.
func (e *Engine) Active() int {
	n := 0
	for _, t := range e.tasks {
		if t.Active() {
			n++
		}
	}
	return n
}

// TaskInfo describes a task for diagnostics.
type TaskInfo struct {
	ID    uint64
	Name  string
	Phase Phase
	State string
}

// Snapshot returns a description of every task owned by the Engine, in registration order.
func (e *Engine) Snapshot() []TaskInfo {
	infos := make([]TaskInfo, 0, len(e.tasks))
	for _, t := range e.tasks {
		if t.disposed {
			continue
		}
		infos = append(infos, TaskInfo{
			ID:    t.id,
			Name:  t.name,
			Phase: t.phase,
			State: stateValue{t}.LogValue().String(),
		})
	}
	return infos
}

// release is called when a task is disposed.
func (e *Engine) release() {
	if e.ticking {
		e.dirty = true
		return
	}
	e.compact()
}

func (e *Engine) compact() {
	kept := e.tasks[:0]
	for _, t := range e.tasks {
		if !t.disposed {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(e.tasks); i++ {
		e.tasks[i] = nil
	}
	e.tasks = kept
	e.dirty = false
}
