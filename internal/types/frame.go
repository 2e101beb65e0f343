// Package types defines the shared data model for a capture session:
// sensor roles, frame handles moving through the offload queues, and
// the preview frames exchanged with the live synchronizer.
package types

import (
	"fmt"
	"image"
	"time"
)

// SensorRole identifies which adapter/queue/worker trio a component
// belongs to. Fixed for the lifetime of a capture session.
type SensorRole int

const (
	// FrameCamera is a conventional global-shutter frame camera.
	FrameCamera SensorRole = iota
	// EventCamera is a free-running event stream recorder with no
	// natural frame count.
	EventCamera
	// ThermalCamera is a LWIR camera whose first frame after trigger
	// is a known-bad warm-up frame.
	ThermalCamera
)

// String returns the directory/log name for the role.
func (r SensorRole) String() string {
	switch r {
	case FrameCamera:
		return "frame"
	case EventCamera:
		return "event"
	case ThermalCamera:
		return "thermal"
	default:
		return fmt.Sprintf("sensor(%d)", int(r))
	}
}

// ParseRole maps a configuration string to a SensorRole.
func ParseRole(s string) (SensorRole, error) {
	switch s {
	case "frame":
		return FrameCamera, nil
	case "event":
		return EventCamera, nil
	case "thermal":
		return ThermalCamera, nil
	default:
		return 0, fmt.Errorf("unknown sensor role %q (want frame, event or thermal)", s)
	}
}

// FrameHandle is one captured frame in flight. Ownership is strictly
// single-threaded at every point: the capture worker owns it until it
// is enqueued, the data processor owns it after dequeue, nobody
// mutates it in between.
type FrameHandle struct {
	// Role identifies the producing sensor.
	Role SensorRole

	// Seq is the monotonic per-sensor sequence index, starting at 0.
	Seq uint64

	// Timestamp is the best-effort acquisition time in the sensor
	// clock domain.
	Timestamp time.Time

	// ExposureUS is the chunk-data exposure time in microseconds,
	// zero when the sensor does not report it.
	ExposureUS int64

	// Width and Height describe the payload geometry in pixels.
	Width  int
	Height int

	// Incomplete marks a frame the sensor delivered partially. Such
	// frames are logged and skipped, never queued.
	Incomplete bool

	// Payload is the sensor-specific pixel buffer (or event-count
	// placeholder). Must not be modified after the handle is enqueued.
	Payload []byte
}

// GrayImage wraps the payload as an 8-bit grayscale image without
// copying. Only valid while the caller owns the handle.
func (f *FrameHandle) GrayImage() *image.Gray {
	return &image.Gray{
		Pix:    f.Payload,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// StreamFrame is a downsampled preview-resolution frame tagged with a
// stream tick. Superseded (and discarded) whenever a newer tick for
// the same sensor arrives at the live synchronizer.
type StreamFrame struct {
	Role  SensorRole
	Tick  uint64
	Image image.Image
}
