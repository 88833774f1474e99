package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

const redeliveryDelay = 100 * time.Millisecond

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue closed")

// Memory is an in-process Queue for tests and local runs. Requeued messages
// go to the back of the queue.
type Memory struct {
	mu          sync.Mutex
	pending     [][]byte
	published   [][]byte
	deadLetters [][]byte
	acked       int
	requeued    int
	closed      bool
	notify      chan struct{}
}

// NewMemory creates an empty queue.
func NewMemory() *Memory {
	return &Memory{notify: make(chan struct{}, 1)}
}

// Publish appends body to the queue.
func (q *Memory) Publish(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	b := append([]byte(nil), body...)
	q.pending = append(q.pending, b)
	q.published = append(q.published, b)
	q.signal()
	return nil
}

// Consume processes messages one at a time until ctx is cancelled or the
// queue is closed.
func (q *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		before := q.Requeued()
		ok, err := q.ProcessNext(ctx, h)
		if err != nil {
			return nil
		}
		if ok && q.Requeued() == before {
			continue
		}
		if ok {
			// back off before redelivering a rejected message
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(redeliveryDelay):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-q.notify:
		}
	}
}

// ProcessNext delivers the head message to h. It reports false if the queue
// was empty. The error is non-nil only when the queue is closed.
func (q *Memory) ProcessNext(ctx context.Context, h Handler) (bool, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, ErrClosed
	}
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return false, nil
	}
	body := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()

	disposition := Classify(h(ctx, body))

	q.mu.Lock()
	defer q.mu.Unlock()
	switch disposition {
	case Ack:
		q.acked++
	case DeadLetter:
		q.deadLetters = append(q.deadLetters, body)
	default:
		q.requeued++
		q.pending = append(q.pending, body)
		q.signal()
	}
	return true, nil
}

// Len returns the number of messages awaiting delivery.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Published returns every body ever published, in order.
func (q *Memory) Published() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.published...)
}

// DeadLetters returns dead-lettered bodies.
func (q *Memory) DeadLetters() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.deadLetters...)
}

// Acked returns the number of acknowledged deliveries.
func (q *Memory) Acked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

// Requeued returns the number of negative acknowledgements.
func (q *Memory) Requeued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.requeued
}

// Ping reports ErrClosed after Close.
func (q *Memory) Ping(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

// Close stops consumers and rejects further publishes.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.notify)
	}
	return nil
}

func (q *Memory) signal() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
