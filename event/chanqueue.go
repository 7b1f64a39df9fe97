package event

import (
	"context"

	"github.com/plprobelab/go-cotask/util"
)

// ChanQueue is a bounded Queue backed by a buffered channel. It is safe for concurrent use by many producers and
// a single consumer.
type ChanQueue struct {
	queue chan Action
}

var _ QueueDequeueAll = (*ChanQueue)(nil)

// NewChanQueue creates a queue holding at most capacity actions.
func NewChanQueue(capacity int) *ChanQueue {
	return &ChanQueue{
		queue: make(chan Action, capacity),
	}
}

// Enqueue adds an action to the queue, or returns false if it is full.
func (q *ChanQueue) Enqueue(ctx context.Context, a Action) bool {
	_, span := util.StartSpan(ctx, "ChanQueue.Enqueue")
	defer span.End()

	select {
	case q.queue <- a:
		return true
	default:
		span.AddEvent("full queue")
		return false
	}
}

// Dequeue removes the oldest action, or returns nil if the queue is empty.
func (q *ChanQueue) Dequeue(ctx context.Context) Action {
	select {
	case a := <-q.queue:
		return a
	default:
		return nil
	}
}

// DequeueAll removes the actions present when it is called.
func (q *ChanQueue) DequeueAll(ctx context.Context) []Action {
	_, span := util.StartSpan(ctx, "ChanQueue.DequeueAll")
	defer span.End()

	n := len(q.queue)
	actions := make([]Action, 0, n)
	for i := 0; i < n; i++ {
		actions = append(actions, <-q.queue)
	}
	return actions
}

func (q *ChanQueue) Size() uint {
	return uint(len(q.queue))
}
