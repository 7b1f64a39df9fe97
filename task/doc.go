// Package task provides cooperative state machines stepped by an application's main loop.
//
// A task is a Task created by an Engine around an Impl. The Impl owns a reserved Range of states and a Step method
// that performs the work of one state. Every tick of the Engine steps each running task once, in the order the tasks
// were added. Within a step a task either advances to another state (and is stepped again on the next tick), calls
// Idle to wait for an external event, or terminates with Finish, Fail or Abort.
//
// An idle task is woken up by Resume, typically from a callback registered with an event.Scheduler:
//
//	func (w *waiter) Step(ctx context.Context, t *task.Task, s task.State) {
//		switch s {
//		case stateWaiting:
//			w.sched.Create(ctx, &w.handle, time.Second, event.BasicAction(func(ctx context.Context) {
//				t.Advance(waiterStates, stateDone)
//				t.Resume()
//			}))
//			t.Idle()
//		case stateDone:
//			t.Finish(ctx)
//		}
//	}
//
// A task type that builds on another one reserves its states right after those of the extended type, using
// Range.Extend, so states never collide across levels. Transitions inside a range only move forward.
//
// Terminating a task calls the Impl's Finish hook, which decides whether the Engine disposes of the task or keeps it
// so it can be run again. Aborting additionally calls the Abort hook first; it must release every registration that
// could still resume the task. Misusing a task (terminating it twice, stepping a terminated task, running it while
// active) panics with a *taskerr.MisuseError.
package task
