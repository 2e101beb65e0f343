package types

import "time"

// SensorReport summarizes one sensor's outcome for the session report.
type SensorReport struct {
	Role            SensorRole `msgpack:"-"`
	RoleName        string     `msgpack:"role"`
	CaptureDone     bool       `msgpack:"capture_done"`
	ProcessingDone  bool       `msgpack:"processing_done"`
	FramesCaptured  uint64     `msgpack:"frames_captured"`
	FramesSkipped   uint64     `msgpack:"frames_skipped"`
	FramesDropped   uint64     `msgpack:"frames_dropped"`
	FramesPersisted uint64     `msgpack:"frames_persisted"`
	Error           string     `msgpack:"error,omitempty"`
}

// SessionReport is the user-visible end state of one capture session:
// either every sensor fully captured and persisted, or an explicit
// account of which sensor failed which phase.
type SessionReport struct {
	SessionID string         `msgpack:"session_id"`
	Complete  bool           `msgpack:"complete"`
	StartedAt time.Time      `msgpack:"started_at"`
	Duration  time.Duration  `msgpack:"duration_ns"`
	OutputDir string         `msgpack:"output_dir"`
	Sensors   []SensorReport `msgpack:"sensors"`
}
