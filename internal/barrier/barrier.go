// Package barrier implements the two-phase completion gate that
// releases the orchestrator only when every sensor has finished both
// capturing and persisting, or a bounded wait elapses.
package barrier

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// Phase is the per-sensor completion state machine. Transitions move
// strictly forward: Idle -> Capturing -> CaptureDone -> ProcessingDone.
type Phase int

const (
	// Idle means the sensor was armed but has not started capturing.
	Idle Phase = iota
	// Capturing means the sensor's worker loop is running.
	Capturing
	// CaptureDone means the worker finished (quota, stop signal, or
	// adapter failure) and no more frames will be enqueued.
	CaptureDone
	// ProcessingDone means all dequeued frames were persisted or
	// dropped; the sensor is fully done.
	ProcessingDone
)

// String returns the phase name for logs and reports.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case CaptureDone:
		return "capture-done"
	case ProcessingDone:
		return "processing-done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrTimeout is returned by Wait when the session deadline passes
	// before every sensor reaches ProcessingDone.
	ErrTimeout = errors.New("completion barrier timed out")

	// ErrUnknownRole is returned for transitions on a role that was
	// never armed.
	ErrUnknownRole = errors.New("sensor role not armed on barrier")
)

// TransitionError reports a rejected out-of-order phase transition.
type TransitionError struct {
	Role types.SensorRole
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition %s -> %s", e.Role, e.From, e.To)
}

// Barrier tracks per-sensor phases and a done count.
//
// The aggregate all-done signal latches exactly once, the first time
// the done count reaches the armed sensor total, and is never unset.
// All mutation happens under one short-held lock; every transition
// broadcasts so Wait re-evaluates.
type Barrier struct {
	mu   sync.Mutex
	cond *sync.Cond

	phases    map[types.SensorRole]Phase
	doneCount int
	complete  bool
}

// New returns an unarmed barrier.
func New() *Barrier {
	b := &Barrier{phases: make(map[types.SensorRole]Phase)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Arm registers the set of participating sensors, all Idle.
func (b *Barrier) Arm(roles []types.SensorRole) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, role := range roles {
		b.phases[role] = Idle
	}
}

// StartCapture moves a sensor from Idle to Capturing.
func (b *Barrier) StartCapture(role types.SensorRole) error {
	return b.advance(role, Idle, Capturing)
}

// ReportCaptureDone marks a sensor's capture phase finished. Accepted
// from Idle as well as Capturing so a worker that fails before its
// first frame still unblocks the barrier.
func (b *Barrier) ReportCaptureDone(role types.SensorRole) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	phase, ok := b.phases[role]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if phase != Idle && phase != Capturing {
		return &TransitionError{Role: role, From: phase, To: CaptureDone}
	}

	b.phases[role] = CaptureDone
	b.cond.Broadcast()
	return nil
}

// ReportProcessingDone marks a sensor fully done. Rejected unless the
// sensor already passed through CaptureDone, so a sensor can never be
// counted done while its worker might still enqueue frames.
func (b *Barrier) ReportProcessingDone(role types.SensorRole) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	phase, ok := b.phases[role]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if phase != CaptureDone {
		return &TransitionError{Role: role, From: phase, To: ProcessingDone}
	}

	b.phases[role] = ProcessingDone
	b.doneCount++
	if !b.complete && b.doneCount == len(b.phases) {
		b.complete = true
	}
	b.cond.Broadcast()
	return nil
}

// Phase returns the current phase of a role.
func (b *Barrier) Phase(role types.SensorRole) Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phases[role]
}

// Snapshot returns a copy of all per-sensor phases.
func (b *Barrier) Snapshot() map[types.SensorRole]Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[types.SensorRole]Phase, len(b.phases))
	for role, phase := range b.phases {
		out[role] = phase
	}
	return out
}

// Wait blocks until every armed sensor reaches ProcessingDone or the
// timeout elapses. Returns nil on completion, ErrTimeout otherwise.
func (b *Barrier) Wait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.complete {
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		b.cond.Wait()
	}
	return nil
}

// Complete reports whether the all-done signal has latched.
func (b *Barrier) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete
}

func (b *Barrier) advance(role types.SensorRole, from, to Phase) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	phase, ok := b.phases[role]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if phase != from {
		return &TransitionError{Role: role, From: phase, To: to}
	}

	b.phases[role] = to
	b.cond.Broadcast()
	return nil
}
