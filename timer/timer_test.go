package timer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plprobelab/go-cotask/event"
	"github.com/plprobelab/go-cotask/internal/tasktest"
	"github.com/plprobelab/go-cotask/task"
)

type fixture struct {
	sched  *event.FrameScheduler
	engine *task.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sched, err := event.NewFrameScheduler(nil)
	require.NoError(t, err)
	engine, err := task.NewEngine(nil)
	require.NoError(t, err)
	return &fixture{sched: sched, engine: engine}
}

// frame runs one iteration of a main loop: pump the scheduler, then step the tasks.
func (f *fixture) frame(ctx context.Context, dt time.Duration) {
	f.sched.Pump(ctx, dt)
	f.engine.Tick(ctx)
}

func newTimer(t *testing.T, s event.Scheduler, interval time.Duration, persistent bool) *Timer {
	t.Helper()
	tm, err := New(s, &Config{Interval: interval, Persistent: persistent})
	require.NoError(t, err)
	return tm
}

func TestConfigValidate(t *testing.T) {
	t.Run("default is valid", func(t *testing.T) {
		cfg := DefaultConfig()
		require.NoError(t, cfg.Validate())
	})

	t.Run("interval not negative", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Interval = 0
		require.NoError(t, cfg.Validate())
		cfg.Interval = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("scheduler is not nil", func(t *testing.T) {
		_, err := New(nil, nil)
		require.Error(t, err)
	})
}

func TestStateRanges(t *testing.T) {
	require.True(t, States.Follows(task.Root))
	require.Equal(t, 2, States.Len())
	require.True(t, lapStates.Follows(States))
	for s := States.Base; s < States.End; s++ {
		require.False(t, lapStates.Contains(s))
	}
}

func TestTimerExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tm := newTimer(t, f.sched, time.Second, false)
	tsk := f.engine.Add("timer", tm)

	var done tasktest.Completion
	tsk.Run(ctx, done.Func())
	require.Equal(t, "waiting", tsk.DescribeState())
	require.Equal(t, task.PhaseIdle, tsk.Phase())
	require.True(t, tm.IsRunning())

	remaining, ok := tm.Remaining()
	require.True(t, ok)
	require.Equal(t, time.Second, remaining)

	f.frame(ctx, time.Second)

	require.Equal(t, []bool{true}, done.Calls)
	require.Equal(t, "expired", tsk.DescribeState())
	require.True(t, tsk.Disposed())
	require.Equal(t, 0, f.engine.Len())
	require.False(t, tm.IsRunning())
	require.Equal(t, 0, f.sched.Len())
}

func TestTimerNotDueYet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tm := newTimer(t, f.sched, 5500*time.Millisecond, false)
	tsk := f.engine.Add("timer", tm)

	var done tasktest.Completion
	tsk.Run(ctx, done.Func())

	f.frame(ctx, 3*time.Second)
	require.Empty(t, done.Calls)
	require.Equal(t, task.PhaseIdle, tsk.Phase())

	f.frame(ctx, 3*time.Second)
	require.Equal(t, []bool{true}, done.Calls)
}

func TestTimerAbortBeforePump(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tm := newTimer(t, f.sched, time.Second, false)
	tsk := f.engine.Add("timer", tm)

	var done tasktest.Completion
	tsk.Run(ctx, done.Func())
	tsk.Abort(ctx)

	require.Equal(t, []bool{false}, done.Calls)
	require.False(t, tm.IsRunning())
	require.Equal(t, 0, f.sched.Len())
	require.True(t, tsk.Disposed())

	for i := 0; i < 5; i++ {
		f.frame(ctx, time.Second)
	}
	require.Equal(t, []bool{false}, done.Calls)
}

func TestTimerAbortedWhileDueInSamePump(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var tsk *task.Task
	var killer event.Handle
	f.sched.Create(ctx, &killer, time.Second, event.BasicAction(func(ctx context.Context) {
		tsk.Abort(ctx)
	}))

	tm := newTimer(t, f.sched, time.Second, false)
	tsk = f.engine.Add("timer", tm)

	var done tasktest.Completion
	tsk.Run(ctx, done.Func())

	// both entries are due, the killer fires first and cancels the timer's entry
	require.Equal(t, 1, f.sched.Pump(ctx, time.Second))
	require.Equal(t, []bool{false}, done.Calls)
	require.Equal(t, 0, f.engine.Tick(ctx))
	require.Equal(t, []bool{false}, done.Calls)
}

func TestTimerFailedWhileWaiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tm := newTimer(t, f.sched, time.Second, false)
	tsk := f.engine.Add("timer", tm)

	var done tasktest.Completion
	tsk.Run(ctx, done.Func())
	require.True(t, tm.IsRunning())

	tsk.Fail(ctx, errors.New("giving up"))
	require.Equal(t, []bool{false}, done.Calls)
	require.True(t, tsk.Disposed())
	require.False(t, tm.IsRunning())
	require.Equal(t, 0, f.sched.Len())

	// the cancelled wait never fires into the terminated task
	require.NotPanics(t, func() { f.frame(ctx, time.Second) })
	require.Equal(t, []bool{false}, done.Calls)
}

func TestPersistentTimerFinishedWhileWaiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tm := newTimer(t, f.sched, time.Second, true)
	tsk := f.engine.Add("timer", tm)

	var first tasktest.Completion
	tsk.Run(ctx, first.Func())
	tsk.Finish(ctx)
	require.Equal(t, []bool{true}, first.Calls)
	require.False(t, tsk.Disposed())
	require.Equal(t, 0, f.sched.Len())

	// the early finish leaves nothing behind that could wake the next run
	var second tasktest.Completion
	tsk.Run(ctx, second.Func())
	f.frame(ctx, 500*time.Millisecond)
	require.Empty(t, second.Calls)
	f.frame(ctx, 500*time.Millisecond)
	require.Equal(t, []bool{true}, second.Calls)
}

// namedScheduler records the name of its owner whenever one of its actions fires.
type namedScheduler struct {
	*event.FrameScheduler
	name string
	log  *tasktest.Log
}

func (s *namedScheduler) Create(ctx context.Context, h *event.Handle, d time.Duration, a event.Action) {
	s.FrameScheduler.Create(ctx, h, d, event.BasicAction(func(ctx context.Context) {
		s.log.Add(s.name)
		a.Run(ctx)
	}))
}

func TestTimersExpireInCreationOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var fired tasktest.Log
	a := newTimer(t, &namedScheduler{FrameScheduler: f.sched, name: "a", log: &fired}, 2*time.Second, false)
	b := newTimer(t, &namedScheduler{FrameScheduler: f.sched, name: "b", log: &fired}, 2*time.Second, false)

	// b is registered with the engine first but a starts waiting first
	tb := f.engine.Add("b", b)
	ta := f.engine.Add("a", a)

	var doneA, doneB tasktest.Completion
	ta.Run(ctx, doneA.Func())
	tb.Run(ctx, doneB.Func())

	f.frame(ctx, 2*time.Second)
	require.Equal(t, []string{"a", "b"}, fired.Entries)
	require.Equal(t, []bool{true}, doneA.Calls)
	require.Equal(t, []bool{true}, doneB.Calls)
}

func TestPersistentTimerRepeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tm := newTimer(t, f.sched, time.Second, true)
	tsk := f.engine.Add("heartbeat", tm)

	var completions []time.Duration
	var onComplete func(bool)
	onComplete = func(success bool) {
		require.True(t, success)
		completions = append(completions, f.sched.Now())
		if len(completions) < 3 {
			tsk.Run(ctx, onComplete)
		}
	}
	tsk.Run(ctx, onComplete)

	for i := 0; i < 5; i++ {
		f.frame(ctx, time.Second)
	}

	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, completions)
	require.False(t, tsk.Disposed())
	require.Equal(t, task.PhaseTerminal, tsk.Phase())
	require.Equal(t, 1, f.engine.Len())

	// a reused timer picks up a new interval on its next run
	tm.SetInterval(2 * time.Second)
	require.Equal(t, 2*time.Second, tm.Interval())

	var done tasktest.Completion
	tsk.Run(ctx, done.Func())
	f.frame(ctx, time.Second)
	require.Empty(t, done.Calls)
	f.frame(ctx, time.Second)
	require.Equal(t, []bool{true}, done.Calls)
	require.False(t, tsk.Disposed())

	// an aborted run disposes even a persistent timer
	var aborted tasktest.Completion
	tsk.Run(ctx, aborted.Func())
	tsk.Abort(ctx)
	require.Equal(t, []bool{false}, aborted.Calls)
	require.True(t, tsk.Disposed())
	require.Equal(t, 0, f.engine.Len())
	require.Equal(t, 0, f.sched.Len())
}

var lapStates = States.Extend(2)

var (
	stateLap  = lapStates.At(0)
	stateDone = lapStates.At(1)
)

// countdown extends Timer with its own states: it waits for the timer a number of times before finishing.
type countdown struct {
	*Timer
	laps      int
	remaining int
	visited   []string
}

func (c *countdown) States() task.Range { return lapStates }

func (c *countdown) Initialize(ctx context.Context, t *task.Task) {
	c.Timer.Initialize(ctx, t)
	c.remaining = c.laps
}

func (c *countdown) Step(ctx context.Context, t *task.Task, s task.State) {
	c.visited = append(c.visited, c.StateName(s))
	switch s {
	case stateLap:
		if c.remaining == 0 {
			t.Advance(lapStates, stateDone)
			return
		}
		c.remaining--
		c.Begin(t)
	case stateDone:
		t.Finish(ctx)
	case StateExpired:
		t.Advance(lapStates, stateLap)
	default:
		c.Timer.Step(ctx, t, s)
	}
}

func (c *countdown) StateName(s task.State) string {
	switch s {
	case stateLap:
		return "lap"
	case stateDone:
		return "done"
	default:
		return c.Timer.StateName(s)
	}
}

func TestExtendedTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c := &countdown{Timer: newTimer(t, f.sched, time.Second, false), laps: 2}
	tsk := f.engine.Add("countdown", c)

	var done tasktest.Completion
	tsk.Run(ctx, done.Func())
	require.Equal(t, "waiting", tsk.DescribeState())

	for i := 0; i < 10 && tsk.Active(); i++ {
		f.frame(ctx, time.Second)
	}

	require.Equal(t, []bool{true}, done.Calls)
	require.Equal(t, []string{"lap", "waiting", "expired", "lap", "waiting", "expired", "lap", "done"}, c.visited)
	require.Equal(t, "done", tsk.DescribeState())
	require.True(t, tsk.Disposed())
}
