package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
)

// InMemoryQueueSize is the number of tasks an InMemoryQueue buffers before
// publishing fails with ErrQueueFull.
const InMemoryQueueSize = 100

type inMemoryTask struct {
	queue   string
	payload []byte
	owner   *InMemoryQueue
}

func (t *inMemoryTask) Type() string {
	return t.queue
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Ack() error {
	return nil
}

func (t *inMemoryTask) Nack() error {
	return t.owner.enqueue(t)
}

func (t *inMemoryTask) Reject() error {
	return nil
}

// InMemoryQueue implements both Publisher and Receiver within one process.
type InMemoryQueue struct {
	mu     sync.RWMutex
	tasks  chan Task
	closed bool
}

var (
	_ Publisher = (*InMemoryQueue)(nil)
	_ Receiver  = (*InMemoryQueue)(nil)
)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, InMemoryQueueSize),
	}
}

func (q *InMemoryQueue) enqueue(task *inMemoryTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	// The consumer may be the one publishing, so a full buffer fails fast
	// rather than blocking.
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *InMemoryQueue) publish(queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return q.enqueue(&inMemoryTask{queue: queue, payload: data, owner: q})
}

func (q *InMemoryQueue) PublishResumeTask(ctx context.Context, payload ResumeTaskPayload) error {
	return q.publish(ResumeQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
}
