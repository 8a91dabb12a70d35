// Package memory provides the bounded in-memory dispatch queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/replaydiff/internal/replay"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained, and
// by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan replay.Entry
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan replay.Entry, capacity),
	}
}

// Enqueue pushes an entry, blocking while the queue is full. It returns early
// only when the context ends or the queue has been closed.
func (q *Queue) Enqueue(ctx context.Context, entry replay.Entry) error {
	// Held for the whole send so Close cannot close the channel underneath it.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- entry:
		return nil
	}
}

// Dequeue pops the next entry, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (replay.Entry, error) {
	select {
	case <-ctx.Done():
		return replay.Entry{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case entry, ok := <-q.ch:
		if !ok {
			return replay.Entry{}, ErrClosed
		}
		return entry, nil
	}
}

// Len reports how many entries are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap reports the fixed capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close stops accepting entries. Buffered entries remain available to
// Dequeue until drained. Blocks until in-flight Enqueue calls return.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
