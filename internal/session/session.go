// Package session holds the per-run shared state: the RunControl
// flags every worker observes, and the timestamped output directory
// tree frames are persisted into.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// RunControl carries the two cross-thread flags of a session.
//
// Running is the single cooperative cancellation signal: once cleared
// it is never set again, and every suspend point re-checks it on each
// wake. AcquisitionDone is set when the pacing sensor finishes its
// quota; free-running sensors observe it as their cue to wrap up.
// Both flags are monotonic for the lifetime of the session.
type RunControl struct {
	running atomic.Bool
	acqDone atomic.Bool
}

// NewRunControl returns a RunControl in the running state.
func NewRunControl() *RunControl {
	rc := &RunControl{}
	rc.running.Store(true)
	return rc
}

// Running reports whether the session is still live.
func (rc *RunControl) Running() bool { return rc.running.Load() }

// Stop requests cooperative shutdown of every worker. Idempotent.
func (rc *RunControl) Stop() { rc.running.Store(false) }

// AcquisitionDone reports whether the pacing sensor finished capture.
func (rc *RunControl) AcquisitionDone() bool { return rc.acqDone.Load() }

// SignalAcquisitionDone marks the pacing sensor's capture as finished.
func (rc *RunControl) SignalAcquisitionDone() { rc.acqDone.Store(true) }

// Session aggregates one capture run: identity, start time, and the
// on-disk layout. Exactly one live Session exists at a time.
type Session struct {
	ID        string
	StartedAt time.Time
	Root      string
	Control   *RunControl

	dirs map[types.SensorRole]string
}

// New creates the session directory tree: one timestamped root under
// baseDir with one subdirectory per active sensor role.
func New(baseDir string, roles []types.SensorRole) (*Session, error) {
	started := time.Now()
	root := filepath.Join(baseDir, started.Format("2006_01_02_15_04_05"))

	s := &Session{
		ID:        uuid.New().String(),
		StartedAt: started,
		Root:      root,
		Control:   NewRunControl(),
		dirs:      make(map[types.SensorRole]string, len(roles)),
	}

	for _, role := range roles {
		dir := filepath.Join(root, role.String())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s output dir: %w", role, err)
		}
		s.dirs[role] = dir
	}

	return s, nil
}

// Dir returns the output directory for a role.
func (s *Session) Dir(role types.SensorRole) string { return s.dirs[role] }
