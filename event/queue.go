package event

import (
	"context"
)

// A Queue hands actions from other goroutines to the main loop, which drains it once per frame.
type Queue interface {
	// Enqueue adds an action without blocking. It returns false if the queue is full.
	Enqueue(context.Context, Action) bool

	// Dequeue removes the oldest action, or returns nil if the queue is empty.
	Dequeue(context.Context) Action

	Size() uint
}

type QueueDequeueAll interface {
	DequeueAll(context.Context) []Action
}

// DequeueAll removes every action currently in q, oldest first. Actions enqueued while draining are left for the
// next call.
func DequeueAll(ctx context.Context, q Queue) []Action {
	switch queue := q.(type) {
	case QueueDequeueAll:
		return queue.DequeueAll(ctx)
	default:
		n := q.Size()
		actions := make([]Action, 0, n)
		for i := uint(0); i < n; i++ {
			a := q.Dequeue(ctx)
			if a == nil {
				break
			}
			actions = append(actions, a)
		}
		return actions
	}
}

// Drain runs every action currently in q and returns how many ran.
func Drain(ctx context.Context, q Queue) int {
	actions := DequeueAll(ctx, q)
	for _, a := range actions {
		a.Run(ctx)
	}
	return len(actions)
}
