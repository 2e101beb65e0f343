// Package capture runs the per-sensor acquisition and persistence
// halves of the pipeline: one Worker per sensor feeding a bounded
// offload queue, one Processor draining it.
package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/adapter"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/barrier"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/preview"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/queue"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/session"
	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// WorkerConfig wires one capture worker to its collaborators.
type WorkerConfig struct {
	Adapter adapter.SensorAdapter
	Queue   *queue.Queue
	Control *session.RunControl
	Barrier *barrier.Barrier

	// Quota is the target frame count. 0 means free-running: the
	// worker captures until the pacing sensor's acquisition flag or a
	// stop signal.
	Quota int

	// Pacing marks the sensor whose quota completion tells a
	// free-running sensor to wrap up.
	Pacing bool

	// PollTimeout bounds each NextFrame call so the stop flag is
	// re-checked at least once per cycle.
	PollTimeout time.Duration

	// PushInterval k forwards every k-th captured frame to the live
	// synchronizer. 0 disables the preview path.
	PushInterval int
	Preview      *preview.Synchronizer
	PreviewW     int
	PreviewH     int
}

// Worker runs one sensor's acquisition loop. It never blocks on
// storage: frames go straight into the bounded offload queue.
type Worker struct {
	cfg WorkerConfig

	captured atomic.Uint64
	skipped  atomic.Uint64
	dropped  atomic.Uint64

	mu     sync.Mutex
	runErr error
}

// NewWorker creates a capture worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.PreviewW <= 0 {
		cfg.PreviewW = 160
	}
	if cfg.PreviewH <= 0 {
		cfg.PreviewH = 120
	}
	return &Worker{cfg: cfg}
}

// Run executes the capture loop until the quota is reached, the run
// control clears, or the adapter fails. It always reports
// capture-done so a crashing sensor never blocks the barrier.
// Intended to run on its own goroutine.
func (w *Worker) Run() {
	role := w.cfg.Adapter.Role()

	if err := w.cfg.Barrier.StartCapture(role); err != nil {
		slog.Warn("capture start not accepted", "role", role, "error", err)
	}
	slog.Info("capture worker started", "role", role, "quota", w.cfg.Quota, "pacing", w.cfg.Pacing)

	defer func() {
		if r := recover(); r != nil {
			w.setErr(fmt.Errorf("%w: %s: panic: %v", adapter.ErrReadFatal, role, r))
			w.cfg.Control.Stop()
		}
		if err := w.cfg.Barrier.ReportCaptureDone(role); err != nil {
			slog.Debug("capture-done not accepted", "role", role, "error", err)
		}
		slog.Info("capture worker finished",
			"role", role,
			"captured", w.captured.Load(),
			"skipped", w.skipped.Load(),
			"dropped", w.dropped.Load(),
		)
	}()

	for {
		if !w.cfg.Control.Running() {
			slog.Info("stop signal received, capture worker exiting", "role", role)
			return
		}
		if w.cfg.Quota > 0 && w.captured.Load() >= uint64(w.cfg.Quota) {
			slog.Info("frame quota reached", "role", role, "quota", w.cfg.Quota)
			if w.cfg.Pacing {
				w.cfg.Control.SignalAcquisitionDone()
			}
			return
		}
		if w.cfg.Quota == 0 && w.cfg.Control.AcquisitionDone() {
			slog.Info("pacing sensor finished, wrapping up", "role", role)
			return
		}

		f, err := w.cfg.Adapter.NextFrame(w.cfg.PollTimeout)
		if err != nil {
			slog.Error("adapter read failed, stopping session", "role", role, "error", err)
			w.setErr(err)
			w.cfg.Control.Stop()
			return
		}
		if f == nil {
			// Quiet poll; loop re-checks the flags.
			continue
		}
		if f.Incomplete {
			w.skipped.Add(1)
			slog.Warn("incomplete frame skipped", "role", role, "seq", f.Seq)
			continue
		}

		count := w.captured.Add(1)
		if evicted := w.cfg.Queue.Push(f); evicted != nil {
			w.dropped.Add(1)
			slog.Warn("offload queue full, evicted oldest frame",
				"role", role,
				"evicted_seq", evicted.Seq,
				"newest_seq", f.Seq,
			)
		}
		w.offerPreview(f, count)
	}
}

// offerPreview downsamples every k-th frame and registers it with the
// live synchronizer under its stream tick.
func (w *Worker) offerPreview(f *types.FrameHandle, count uint64) {
	k := uint64(w.cfg.PushInterval)
	if w.cfg.Preview == nil || k == 0 || count%k != 0 {
		return
	}
	small := imaging.Resize(f.GrayImage(), w.cfg.PreviewW, w.cfg.PreviewH, imaging.Box)
	w.cfg.Preview.Offer(types.StreamFrame{
		Role:  f.Role,
		Tick:  count / k,
		Image: small,
	})
}

// Captured returns the number of complete frames enqueued.
func (w *Worker) Captured() uint64 { return w.captured.Load() }

// Skipped returns the number of incomplete frames discarded.
func (w *Worker) Skipped() uint64 { return w.skipped.Load() }

// Dropped returns the number of frames evicted under queue pressure.
func (w *Worker) Dropped() uint64 { return w.dropped.Load() }

// Err returns the fatal adapter error, if any.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runErr
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	w.runErr = err
	w.mu.Unlock()
}
