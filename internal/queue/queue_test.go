package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

func frame(seq uint64) *types.FrameHandle {
	return &types.FrameHandle{Seq: seq}
}

// TestPushPop verifies basic FIFO behavior.
func TestPushPop(t *testing.T) {
	q := New(4)

	for i := uint64(0); i < 3; i++ {
		if evicted := q.Push(frame(i)); evicted != nil {
			t.Fatalf("unexpected eviction of seq %d", evicted.Seq)
		}
	}

	for i := uint64(0); i < 3; i++ {
		f, ok := q.Pop(time.Second)
		if !ok {
			t.Fatalf("Pop %d failed", i)
		}
		if f.Seq != i {
			t.Errorf("expected seq %d, got %d", i, f.Seq)
		}
	}
}

// TestCapacityBoundAndFIFOEviction verifies the queue never exceeds
// its capacity and evicts oldest-first under sustained pressure.
func TestCapacityBoundAndFIFOEviction(t *testing.T) {
	q := New(4)

	// Push 10 frames into a queue of 4 with no consumer.
	for i := uint64(0); i < 10; i++ {
		evicted := q.Push(frame(i))
		if i < 4 && evicted != nil {
			t.Fatalf("eviction before queue was full (seq %d)", evicted.Seq)
		}
		if i >= 4 {
			if evicted == nil {
				t.Fatalf("expected eviction at push %d", i)
			}
			if evicted.Seq != i-4 {
				t.Errorf("expected oldest seq %d evicted, got %d", i-4, evicted.Seq)
			}
		}
		if q.Len() > 4 {
			t.Fatalf("queue depth %d exceeds capacity", q.Len())
		}
	}

	// Survivors are the newest 4, in order.
	for want := uint64(6); want < 10; want++ {
		f, ok := q.Pop(time.Second)
		if !ok || f.Seq != want {
			t.Fatalf("expected seq %d, got %+v ok=%v", want, f, ok)
		}
	}

	stats := q.Stats()
	if stats.Dropped != 6 {
		t.Errorf("expected 6 dropped, got %d", stats.Dropped)
	}
	if stats.HighWater != 4 {
		t.Errorf("expected high water 4, got %d", stats.HighWater)
	}
}

// TestPopTimeout verifies Pop returns within the bounded wait.
func TestPopTimeout(t *testing.T) {
	q := New(2)

	start := time.Now()
	_, ok := q.Pop(50 * time.Millisecond)
	if ok {
		t.Fatal("Pop on empty queue should time out")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Pop took %v, expected ~50ms", elapsed)
	}
}

// TestCloseWakesWaiter verifies Close unblocks a waiting consumer
// immediately instead of letting it run out the timeout.
func TestCloseWakesWaiter(t *testing.T) {
	q := New(2)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(10 * time.Second)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop on closed empty queue should report no frame")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Close")
	}
}

// TestCloseKeepsRemainingItems verifies a closed queue still drains:
// no enqueued frame is leaked by shutdown.
func TestCloseKeepsRemainingItems(t *testing.T) {
	q := New(4)
	q.Push(frame(0))
	q.Push(frame(1))
	q.Close()

	for want := uint64(0); want < 2; want++ {
		f, ok := q.Pop(time.Second)
		if !ok || f.Seq != want {
			t.Fatalf("expected seq %d after close, got %+v ok=%v", want, f, ok)
		}
	}
	if _, ok := q.Pop(10 * time.Millisecond); ok {
		t.Error("drained closed queue should not yield frames")
	}

	// Push after close is rejected and counted as a drop.
	if rejected := q.Push(frame(9)); rejected == nil || rejected.Seq != 9 {
		t.Error("Push after Close should return the rejected frame")
	}
}

// TestConcurrentProducerConsumer verifies the queue under a fast
// producer and slow consumer: everything pushed is either popped or
// reported dropped.
func TestConcurrentProducerConsumer(t *testing.T) {
	q := New(8)
	const total = 200

	var wg sync.WaitGroup
	wg.Add(1)
	popped := 0
	go func() {
		defer wg.Done()
		for {
			_, ok := q.Pop(200 * time.Millisecond)
			if !ok {
				return
			}
			popped++
		}
	}()

	for i := uint64(0); i < total; i++ {
		q.Push(frame(i))
	}
	// Let the consumer drain, then close.
	time.Sleep(50 * time.Millisecond)
	q.Close()
	wg.Wait()

	stats := q.Stats()
	if uint64(popped)+stats.Dropped != total {
		t.Errorf("popped %d + dropped %d != pushed %d", popped, stats.Dropped, total)
	}
}
