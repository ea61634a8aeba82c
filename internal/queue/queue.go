// Package queue provides the bounded drop-oldest FIFO that buffers utterance
// jobs between the session reader and the STT worker.
//
// Backpressure policy: when the queue is full, admitting a new item evicts
// the oldest one. A stale utterance answered late is worse than an utterance
// never answered — the device user has already repeated themselves.
package queue

import (
	"sync"
	"time"
)

// Queue is a fixed-capacity FIFO with drop-oldest admission and timed
// blocking consumption. Safe for concurrent use.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	cap   int

	// signal pulses on Put so a blocked Get can re-check; capacity 1 keeps
	// Put non-blocking.
	signal chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a queue holding at most capacity items. Capacity must be at
// least 1.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items:  make([]T, 0, capacity),
		cap:    capacity,
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Put admits item, evicting the oldest element first when the queue is full.
// It reports whether an eviction occurred so the caller can log and count the
// drop. Put on a closed queue discards the item.
func (q *Queue[T]) Put(item T) (evicted bool) {
	select {
	case <-q.closed:
		return false
	default:
	}

	q.mu.Lock()
	if len(q.items) >= q.cap {
		copy(q.items, q.items[1:])
		q.items[len(q.items)-1] = item
		evicted = true
	} else {
		q.items = append(q.items, item)
	}
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return evicted
}

// Get returns the next item, blocking up to timeout. ok is false on timeout
// and after [Queue.Close]; use [Queue.Closed] to tell the two apart. A closed
// queue returns immediately even when items remain — pending jobs are
// abandoned on shutdown.
func (q *Queue[T]) Get(timeout time.Duration) (item T, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.closed:
			return item, false
		default:
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			item = q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-q.closed:
			return item, false
		case <-timer.C:
			return item, false
		}
	}
}

// Len reports the current depth. Used by the status log.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes all blocked consumers and makes every future Get return
// immediately. Safe to call multiple times.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// Closed reports whether the queue has been shut down.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}
