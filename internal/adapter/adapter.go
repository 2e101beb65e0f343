// Package adapter defines the boundary between the capture core and
// the sensor-specific acquisition/persistence code. Vendor SDK calls
// live behind SensorAdapter; the core never sees pixel formats or
// file layouts.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

var (
	// ErrConnect means the sensor could not be reached. Fatal to the
	// whole session: the orchestrator aborts before arming the trigger.
	ErrConnect = errors.New("sensor connect failed")

	// ErrConfig means the sensor rejected its acquisition parameters.
	// Fatal like ErrConnect.
	ErrConfig = errors.New("sensor configure failed")

	// ErrReadFatal means the acquisition loop cannot continue. The
	// worker converts it to an early capture-done, non-fatal to the
	// rest of the session.
	ErrReadFatal = errors.New("fatal sensor read error")
)

// PersistError reports a single frame that could not be written.
// Logged and skipped; never aborts processing of remaining frames.
type PersistError struct {
	Role types.SensorRole
	Seq  uint64
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: persist frame %d: %v", e.Role, e.Seq, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Params carries the acquisition parameters handed to Configure.
type Params struct {
	FrameRateHz float64
	Width       int
	Height      int
}

// SensorAdapter is implemented once per sensor role.
//
// NextFrame returns (nil, nil) when no frame arrived within the
// timeout; that is a quiet poll, not an error. A non-nil error is
// fatal to this sensor's capture loop.
type SensorAdapter interface {
	Role() types.SensorRole
	Connect(ctx context.Context, address string) error
	Configure(p Params) error
	NextFrame(timeout time.Duration) (*types.FrameHandle, error)
	Persist(frames []*types.FrameHandle, destDir string) (int, error)
	Cleanup() error
}
