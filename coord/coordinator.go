// Package coord drives the deferred-callback scheduler and the task engine from a main loop.
package coord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"

	"github.com/plprobelab/go-cotask/event"
	"github.com/plprobelab/go-cotask/task"
	"github.com/plprobelab/go-cotask/taskerr"
	"github.com/plprobelab/go-cotask/util"
)

// A Coordinator advances a scheduler and an engine once per frame. Each frame runs the actions posted since the
// previous frame, pumps the scheduler with the elapsed time, firing the callbacks that became due, then steps every
// running task. It is the only component that touches the scheduler's and the engine's state, so neither needs
// locking.
type Coordinator struct {
	// cfg is a copy of the optional configuration supplied to the coordinator
	cfg Config

	sched  event.Scheduler
	engine *task.Engine

	// inbox holds actions posted from other goroutines until the next frame
	inbox event.Queue

	// last is the clock time of the previous frame, valid once primed is set
	last   time.Time
	primed bool
	frames uint64
}

// Config specifies optional configuration for a Coordinator
type Config struct {
	Clock         clock.Clock   // a clock that may be replaced by a mock when testing
	FrameInterval time.Duration // the time between two frames when running the loop
	MaxFrameDelta time.Duration // the largest measured delta a single Tick may pump, longer stalls are clamped
	QueueCapacity int           // the number of posted actions that may wait for the next frame
	Logger        *slog.Logger
}

// Validate checks the configuration options and returns an error if any have invalid values.
func (cfg *Config) Validate() error {
	if cfg.Clock == nil {
		return &taskerr.ConfigurationError{
			Component: "CoordinatorConfig",
			Err:       fmt.Errorf("clock must not be nil"),
		}
	}

	if cfg.FrameInterval < 1 {
		return &taskerr.ConfigurationError{
			Component: "CoordinatorConfig",
			Err:       fmt.Errorf("frame interval must be greater than zero"),
		}
	}

	if cfg.MaxFrameDelta < cfg.FrameInterval {
		return &taskerr.ConfigurationError{
			Component: "CoordinatorConfig",
			Err:       fmt.Errorf("max frame delta must not be less than the frame interval"),
		}
	}

	if cfg.QueueCapacity < 1 {
		return &taskerr.ConfigurationError{
			Component: "CoordinatorConfig",
			Err:       fmt.Errorf("queue capacity must be greater than zero"),
		}
	}

	if cfg.Logger == nil {
		return &taskerr.ConfigurationError{
			Component: "CoordinatorConfig",
			Err:       fmt.Errorf("logger must not be nil"),
		}
	}
	return nil
}

// DefaultConfig returns the default configuration options for a Coordinator.
// Options may be overridden before passing to NewCoordinator
func DefaultConfig() *Config {
	return &Config{
		Clock:         clock.New(), // use standard time
		FrameInterval: time.Second / 60,
		MaxFrameDelta: 250 * time.Millisecond,
		QueueCapacity: 256,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func NewCoordinator(sched event.Scheduler, engine *task.Engine, cfg *Config) (*Coordinator, error) {
	if sched == nil {
		return nil, &taskerr.ConfigurationError{
			Component: "Coordinator",
			Err:       fmt.Errorf("scheduler must not be nil"),
		}
	}
	if engine == nil {
		return nil, &taskerr.ConfigurationError{
			Component: "Coordinator",
			Err:       fmt.Errorf("engine must not be nil"),
		}
	}

	if cfg == nil {
		cfg = DefaultConfig()
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Coordinator{
		cfg:    *cfg,
		sched:  sched,
		engine: engine,
		inbox:  event.NewChanQueue(cfg.QueueCapacity),
	}, nil
}

// Frames returns the number of frames executed.
func (c *Coordinator) Frames() uint64 {
	return c.frames
}

// Post hands an action to the main loop. It is the only Coordinator method that is safe to call from another
// goroutine. The action runs at the start of the next frame, before the scheduler is pumped, so it may create
// registrations, run tasks or resume them. Post returns taskerr.ErrQueueFull if QueueCapacity actions are waiting.
func (c *Coordinator) Post(ctx context.Context, a event.Action) error {
	if a == nil {
		taskerr.Misuse("Post", "coordinator", taskerr.ErrNilAction)
	}
	if !c.inbox.Enqueue(ctx, a) {
		return fmt.Errorf("post action: %w", taskerr.ErrQueueFull)
	}
	return nil
}

// Tick executes a frame using the clock time elapsed since the previous one, clamped to MaxFrameDelta so that a
// stalled loop does not fire a burst of callbacks at once. The first frame has a delta of zero. It returns the delta
// actually pumped.
func (c *Coordinator) Tick(ctx context.Context) time.Duration {
	now := c.cfg.Clock.Now()
	var dt time.Duration
	if c.primed {
		dt = now.Sub(c.last)
	}
	c.last = now
	c.primed = true

	if dt > c.cfg.MaxFrameDelta {
		c.cfg.Logger.Debug("frame delta clamped", "delta", dt, "max", c.cfg.MaxFrameDelta)
		dt = c.cfg.MaxFrameDelta
	}
	return c.Step(ctx, dt)
}

// Step executes a frame with an explicit delta, for loops that measure time themselves. The delta is pumped as
// given, only a negative one is treated as zero. It returns the delta actually pumped.
func (c *Coordinator) Step(ctx context.Context, dt time.Duration) time.Duration {
	ctx, span := util.StartSpan(ctx, "Coordinator.Step")
	defer span.End()

	if dt < 0 {
		dt = 0
	}

	posted := event.Drain(ctx, c.inbox)
	fired := c.sched.Pump(ctx, dt)
	steps := c.engine.Tick(ctx)
	c.frames++

	span.SetAttributes(
		attribute.Int64("delta_us", dt.Microseconds()),
		attribute.Int("posted", posted),
		attribute.Int("fired", fired),
		attribute.Int("steps", steps),
	)
	return dt
}

// Run executes a frame every FrameInterval until ctx is cancelled. On return every active task has been aborted.
func (c *Coordinator) Run(ctx context.Context) error {
	c.cfg.Logger.Info("coordinator started", "frame_interval", c.cfg.FrameInterval)

	ticker := c.cfg.Clock.Ticker(c.cfg.FrameInterval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.engine.AbortAll(context.WithoutCancel(ctx))
			c.cfg.Logger.Info("coordinator stopped", "frames", c.frames, "elapsed", c.sched.Now())
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}
