package dispatch

import (
	"context"
	"errors"
	"sync"

	"olinput/internal/input"
)

// ErrClosed is returned by Wait once the queue is closed and drained.
var ErrClosed = errors.New("event queue closed")

// Queue is a bounded FIFO between the pipeline worker (and any other
// producer) and a single UI consumer. When full, Push drops the oldest
// unread event: a busy UI sees the most recent input, never stale input.
type Queue struct {
	mu     sync.Mutex
	buf    []input.InputEvent
	head   int
	n      int
	closed bool
	notify chan struct{}
	stats  *input.Stats
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int, stats *input.Stats) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if stats == nil {
		stats = new(input.Stats)
	}
	return &Queue{
		buf:    make([]input.InputEvent, capacity),
		notify: make(chan struct{}, 1),
		stats:  stats,
	}
}

// Push appends ev. It returns ErrQueueOverflow when the oldest event had to
// be dropped to make room, and ErrClosed after Close.
func (q *Queue) Push(ev input.InputEvent) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	var err error
	if q.n == len(q.buf) {
		q.buf[q.head] = input.InputEvent{}
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		q.stats.QueueOverflows.Add(1)
		err = input.ErrQueueOverflow
	}
	q.buf[(q.head+q.n)%len(q.buf)] = ev
	q.n++
	q.mu.Unlock()

	q.wake()
	return err
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest event without blocking.
func (q *Queue) Pop() (input.InputEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue) popLocked() (input.InputEvent, bool) {
	if q.n == 0 {
		return input.InputEvent{}, false
	}
	ev := q.buf[q.head]
	q.buf[q.head] = input.InputEvent{}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return ev, true
}

// Wait blocks until an event is available, the context ends, or the queue
// is closed and empty.
func (q *Queue) Wait(ctx context.Context) (input.InputEvent, error) {
	for {
		q.mu.Lock()
		ev, ok := q.popLocked()
		closed := q.closed
		remaining := q.n
		q.mu.Unlock()

		if ok {
			if remaining > 0 {
				// Keep other waiters (and the next call) from sleeping on
				// a non-empty queue.
				q.wake()
			}
			return ev, nil
		}
		if closed {
			return input.InputEvent{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return input.InputEvent{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of unread events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return len(q.buf) }

// Close stops accepting events. Events already queued stay readable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Drain removes and returns every unread event.
func (q *Queue) Drain() []input.InputEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]input.InputEvent, 0, q.n)
	for {
		ev, ok := q.popLocked()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}
