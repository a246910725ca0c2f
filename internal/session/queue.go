package session

import (
	"context"
	"sync"

	"taskhive/internal/protocol"
)

// actionQueue is an unbounded FIFO of protocol messages with a non-blocking
// put and a context-aware blocking get. Producers are HTTP handlers that must
// return quickly even when the consumer is slow; memory growth is bounded by
// session count and lifetime, not by a per-queue limit.
type actionQueue struct {
	mu     sync.Mutex
	items  []protocol.Message
	notify chan struct{}
}

func newActionQueue() *actionQueue {
	return &actionQueue{
		notify: make(chan struct{}, 1),
	}
}

// Put appends a message. It never blocks.
func (q *actionQueue) Put(msg protocol.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Get removes and returns the head, blocking until a message is available or
// ctx is cancelled.
func (q *actionQueue) Get(ctx context.Context) (protocol.Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				// Re-arm the signal so a concurrent waiter is not lost.
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return msg, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return protocol.Message{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of queued messages.
func (q *actionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
