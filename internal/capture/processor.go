package capture

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/adapter"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/barrier"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/queue"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/session"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// ProcessorConfig wires one data processor to its collaborators.
type ProcessorConfig struct {
	Adapter adapter.SensorAdapter
	Queue   *queue.Queue
	Control *session.RunControl
	Barrier *barrier.Barrier

	// DestDir is the sensor's subdirectory of the session root.
	DestDir string

	// DropWarmup discards the first frame of the run (known-bad
	// warm-up frame for some sensors).
	DropWarmup bool

	// PopTimeout bounds each queue wait so capture-done is observed
	// within one cycle.
	PopTimeout time.Duration
}

// Processor drains its sensor's offload queue, persists the drained
// frames through the adapter, and reports processing-done.
type Processor struct {
	cfg ProcessorConfig

	collected atomic.Uint64
	persisted atomic.Uint64

	mu         sync.Mutex
	persistErr error
}

// NewProcessor creates a data processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	return &Processor{cfg: cfg}
}

// Run drains the queue until capture is done and the queue is empty,
// then finalizes: sort by sequence, optional warm-up discard, persist,
// report processing-done. Intended to run on its own goroutine.
func (p *Processor) Run() {
	role := p.cfg.Adapter.Role()
	slog.Info("data processor started", "role", role, "dest", p.cfg.DestDir)

	var frames []*types.FrameHandle
	for {
		f, ok := p.cfg.Queue.Pop(p.cfg.PopTimeout)
		if ok {
			frames = append(frames, f)
			p.collected.Add(1)
			continue
		}

		// Bounded wait expired (or the queue was closed). Finalize
		// once the producer side is finished and nothing is left.
		if p.cfg.Barrier.Phase(role) >= barrier.CaptureDone && p.cfg.Queue.Len() == 0 {
			break
		}
		if p.cfg.Queue.Closed() {
			// Closed at shutdown while the worker is still winding
			// down; it reports capture-done within one poll cycle.
			time.Sleep(10 * time.Millisecond)
		}
	}

	p.finalize(role, frames)
}

func (p *Processor) finalize(role types.SensorRole, frames []*types.FrameHandle) {
	sort.Slice(frames, func(i, j int) bool { return frames[i].Seq < frames[j].Seq })

	if p.cfg.DropWarmup && len(frames) > 0 && frames[0].Seq == 0 {
		slog.Info("discarding warm-up frame", "role", role)
		frames = frames[1:]
	}

	if len(frames) > 0 {
		n, err := p.cfg.Adapter.Persist(frames, p.cfg.DestDir)
		p.persisted.Store(uint64(n))
		if err != nil {
			p.mu.Lock()
			p.persistErr = err
			p.mu.Unlock()
			slog.Error("persist finished with errors", "role", role, "persisted", n, "error", err)
		}
	}

	if err := p.cfg.Barrier.ReportProcessingDone(role); err != nil {
		slog.Warn("processing-done not accepted", "role", role, "error", err)
	}
	slog.Info("data processor finished",
		"role", role,
		"collected", p.collected.Load(),
		"persisted", p.persisted.Load(),
	)
}

// Collected returns the number of frames drained from the queue.
func (p *Processor) Collected() uint64 { return p.collected.Load() }

// Persisted returns the number of frames written by the adapter.
func (p *Processor) Persisted() uint64 { return p.persisted.Load() }

// Err returns the persist error, if any.
func (p *Processor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.persistErr
}
