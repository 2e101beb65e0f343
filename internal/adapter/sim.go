package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// SimConfig controls a simulated sensor device.
//
// The fault-injection fields (FailConnect, FailAfter, Stall) exist so
// the orchestration paths around a misbehaving sensor can be driven
// deterministically.
type SimConfig struct {
	Role        types.SensorRole
	Width       int
	Height      int
	FrameRateHz float64

	// IncompleteEvery delivers every Nth frame as incomplete
	// (transient sensor glitch). 0 disables.
	IncompleteEvery int

	// FailConnect makes Connect fail.
	FailConnect bool

	// FailAfter returns a fatal read error after N good frames.
	// 0 disables.
	FailAfter int

	// Stall makes NextFrame always time out without producing.
	Stall bool
}

// Sim is a synthetic SensorAdapter. It paces frames at the configured
// rate, fills payloads with a moving gradient, and reports plausible
// chunk metadata, standing in for the vendor SDK during development
// and tests.
type Sim struct {
	cfg SimConfig

	mu        sync.Mutex
	connected bool
	seq       uint64
	produced  int
	lastFrame time.Time
}

// NewSim creates a simulated sensor for the configured role.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Width <= 0 {
		cfg.Width = 64
	}
	if cfg.Height <= 0 {
		cfg.Height = 48
	}
	if cfg.FrameRateHz <= 0 {
		cfg.FrameRateHz = 30
	}
	return &Sim{cfg: cfg}
}

// NewFrameCamera returns the frame-camera adapter.
func NewFrameCamera(width, height int, rateHz float64) *Sim {
	return NewSim(SimConfig{Role: types.FrameCamera, Width: width, Height: height, FrameRateHz: rateHz})
}

// NewEventCamera returns the event-camera adapter. The device is
// free-running: it keeps producing until told to stop.
func NewEventCamera(rateHz float64) *Sim {
	return NewSim(SimConfig{Role: types.EventCamera, Width: 64, Height: 48, FrameRateHz: rateHz})
}

// NewThermalCamera returns the thermal-camera adapter. Its first
// frame after trigger is a known-bad warm-up frame, discarded by the
// data processor.
func NewThermalCamera(width, height int, rateHz float64) *Sim {
	return NewSim(SimConfig{Role: types.ThermalCamera, Width: width, Height: height, FrameRateHz: rateHz})
}

// Role implements SensorAdapter.
func (s *Sim) Role() types.SensorRole { return s.cfg.Role }

// Connect implements SensorAdapter.
func (s *Sim) Connect(ctx context.Context, address string) error {
	if s.cfg.FailConnect {
		return fmt.Errorf("%w: %s at %q: device not found", ErrConnect, s.cfg.Role, address)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnect, s.cfg.Role, err)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	slog.Debug("sensor connected", "role", s.cfg.Role, "address", address)
	return nil
}

// Configure implements SensorAdapter.
func (s *Sim) Configure(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return fmt.Errorf("%w: %s: not connected", ErrConfig, s.cfg.Role)
	}
	if p.FrameRateHz > 0 {
		s.cfg.FrameRateHz = p.FrameRateHz
	}
	if p.Width > 0 && p.Height > 0 {
		s.cfg.Width = p.Width
		s.cfg.Height = p.Height
	}
	return nil
}

// NextFrame implements SensorAdapter. It paces production to the
// configured frame rate and honors the poll timeout.
func (s *Sim) NextFrame(timeout time.Duration) (*types.FrameHandle, error) {
	if s.cfg.Stall {
		time.Sleep(timeout)
		return nil, nil
	}

	s.mu.Lock()
	interval := time.Duration(float64(time.Second) / s.cfg.FrameRateHz)
	wait := interval - time.Since(s.lastFrame)
	s.mu.Unlock()

	if wait > 0 {
		if wait > timeout {
			time.Sleep(timeout)
			return nil, nil
		}
		time.Sleep(wait)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.FailAfter > 0 && s.produced >= s.cfg.FailAfter {
		return nil, fmt.Errorf("%w: %s: device stopped responding", ErrReadFatal, s.cfg.Role)
	}

	f := &types.FrameHandle{
		Role:       s.cfg.Role,
		Seq:        s.seq,
		Timestamp:  time.Now(),
		ExposureUS: int64(interval / time.Microsecond / 2),
		Width:      s.cfg.Width,
		Height:     s.cfg.Height,
		Payload:    s.renderPayload(),
	}
	if s.cfg.IncompleteEvery > 0 && s.seq > 0 && s.seq%uint64(s.cfg.IncompleteEvery) == 0 {
		f.Incomplete = true
	}

	s.seq++
	s.produced++
	s.lastFrame = time.Now()
	return f, nil
}

// renderPayload fills an 8-bit buffer with a gradient shifted by the
// sequence index, so consecutive frames differ. Caller holds s.mu.
func (s *Sim) renderPayload() []byte {
	buf := make([]byte, s.cfg.Width*s.cfg.Height)
	shift := byte(s.seq)
	for y := 0; y < s.cfg.Height; y++ {
		row := y * s.cfg.Width
		for x := 0; x < s.cfg.Width; x++ {
			buf[row+x] = byte(x) + byte(y) + shift
		}
	}
	return buf
}

// frameMeta is the per-frame record in the msgpack sidecar.
type frameMeta struct {
	Seq         uint64 `msgpack:"seq"`
	TimestampNS int64  `msgpack:"timestamp_ns"`
	ExposureUS  int64  `msgpack:"exposure_us"`
	Width       int    `msgpack:"width"`
	Height      int    `msgpack:"height"`
}

// Persist implements SensorAdapter. Payloads are written one file per
// frame plus a msgpack metadata sidecar. Individual frame write
// failures are logged and skipped; the remaining frames still land.
func (s *Sim) Persist(frames []*types.FrameHandle, destDir string) (int, error) {
	persisted := 0
	meta := make([]frameMeta, 0, len(frames))

	for _, f := range frames {
		name := fmt.Sprintf("%s_%06d.raw", f.Role, f.Seq)
		if err := os.WriteFile(filepath.Join(destDir, name), f.Payload, 0o644); err != nil {
			perr := &PersistError{Role: f.Role, Seq: f.Seq, Err: err}
			slog.Warn("frame persist failed, skipping", "role", f.Role, "seq", f.Seq, "error", perr)
			continue
		}
		meta = append(meta, frameMeta{
			Seq:         f.Seq,
			TimestampNS: f.Timestamp.UnixNano(),
			ExposureUS:  f.ExposureUS,
			Width:       f.Width,
			Height:      f.Height,
		})
		persisted++
	}

	blob, err := msgpack.Marshal(meta)
	if err != nil {
		return persisted, fmt.Errorf("%s: encode metadata sidecar: %w", s.cfg.Role, err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "frames.msgpack"), blob, 0o644); err != nil {
		return persisted, fmt.Errorf("%s: write metadata sidecar: %w", s.cfg.Role, err)
	}

	return persisted, nil
}

// Cleanup implements SensorAdapter. Idempotent.
func (s *Sim) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}
