// Package queue implements the bounded frame offload queue between a
// capture worker and its data processor.
//
// The queue decouples the timing-sensitive acquisition path from slow
// persistence work. Push never blocks: when the queue is full the
// oldest unconsumed entry is evicted to make room for the newest.
// Recency over completeness.
package queue

import (
	"sync"
	"time"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// Stats is a snapshot of queue counters.
type Stats struct {
	// Pushed is the number of frames accepted by Push.
	Pushed uint64
	// Popped is the number of frames handed to the consumer.
	Popped uint64
	// Dropped is the number of frames evicted under pressure plus
	// frames rejected after Close.
	Dropped uint64
	// HighWater is the maximum observed queue depth.
	HighWater int
}

// Queue is a bounded FIFO of frame handles with drop-oldest
// backpressure. Safe for one producer and one consumer plus
// concurrent Stats/Len/Close callers.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items    []*types.FrameHandle
	capacity int
	closed   bool

	pushed    uint64
	popped    uint64
	dropped   uint64
	highWater int
}

// New creates a queue with the given fixed capacity. Capacity must be
// at least 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		items:    make([]*types.FrameHandle, 0, capacity),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a frame without ever blocking the capture hot path.
//
// When the queue is full the oldest entry is evicted and returned so
// the caller can log the drop; otherwise Push returns nil. After
// Close the frame itself is rejected and returned.
func (q *Queue) Push(f *types.FrameHandle) *types.FrameHandle {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped++
		return f
	}

	var evicted *types.FrameHandle
	if len(q.items) >= q.capacity {
		evicted = q.items[0]
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.dropped++
	}

	q.items = append(q.items, f)
	q.pushed++
	if len(q.items) > q.highWater {
		q.highWater = len(q.items)
	}

	q.cond.Signal()
	return evicted
}

// Pop blocks until a frame is available, the timeout elapses, or the
// queue is closed and drained. Returns (frame, true) on success.
//
// A closed queue keeps yielding its remaining items: every enqueued
// frame is eventually either consumed or explicitly dropped by Push,
// never silently leaked.
func (q *Queue) Pop(timeout time.Duration) (*types.FrameHandle, bool) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed || !time.Now().Before(deadline) {
			return nil, false
		}
		q.cond.Wait()
	}

	f := q.items[0]
	copy(q.items, q.items[1:])
	q.items = q.items[:len(q.items)-1]
	q.popped++
	return f, true
}

// Close marks the queue closed and wakes all waiters. Remaining items
// stay poppable. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pushed:    q.pushed,
		Popped:    q.popped,
		Dropped:   q.dropped,
		HighWater: q.highWater,
	}
}
