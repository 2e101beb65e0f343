package barrier

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// TestReleaseWhenAllDone verifies Wait releases exactly when every
// armed sensor reaches ProcessingDone, for 1..3 sensors.
func TestReleaseWhenAllDone(t *testing.T) {
	allRoles := []types.SensorRole{types.FrameCamera, types.EventCamera, types.ThermalCamera}

	for n := 1; n <= 3; n++ {
		roles := allRoles[:n]
		b := New()
		b.Arm(roles)

		released := make(chan error, 1)
		go func() {
			released <- b.Wait(5 * time.Second)
		}()

		for i, role := range roles {
			// Wait must not release before the last sensor.
			select {
			case err := <-released:
				t.Fatalf("n=%d: barrier released after %d sensors: %v", n, i, err)
			case <-time.After(20 * time.Millisecond):
			}

			if err := b.StartCapture(role); err != nil {
				t.Fatalf("StartCapture(%s): %v", role, err)
			}
			if err := b.ReportCaptureDone(role); err != nil {
				t.Fatalf("ReportCaptureDone(%s): %v", role, err)
			}
			if err := b.ReportProcessingDone(role); err != nil {
				t.Fatalf("ReportProcessingDone(%s): %v", role, err)
			}
		}

		select {
		case err := <-released:
			if err != nil {
				t.Fatalf("n=%d: Wait returned %v", n, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("n=%d: barrier did not release", n)
		}
	}
}

// TestProcessingDoneRequiresCaptureDone injects out-of-order calls and
// asserts they are rejected without advancing the done count.
func TestProcessingDoneRequiresCaptureDone(t *testing.T) {
	b := New()
	b.Arm([]types.SensorRole{types.FrameCamera})

	// Idle -> ProcessingDone is rejected.
	err := b.ReportProcessingDone(types.FrameCamera)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}

	// Capturing -> ProcessingDone is rejected too.
	b.StartCapture(types.FrameCamera)
	if err := b.ReportProcessingDone(types.FrameCamera); err == nil {
		t.Fatal("Capturing -> ProcessingDone should be rejected")
	}
	if b.Complete() {
		t.Fatal("rejected transitions must not complete the barrier")
	}

	// The legal order works.
	if err := b.ReportCaptureDone(types.FrameCamera); err != nil {
		t.Fatalf("ReportCaptureDone: %v", err)
	}
	if err := b.ReportProcessingDone(types.FrameCamera); err != nil {
		t.Fatalf("ReportProcessingDone: %v", err)
	}
	if !b.Complete() {
		t.Fatal("barrier should be complete")
	}

	// Done count increments exactly once: a second report is rejected.
	if err := b.ReportProcessingDone(types.FrameCamera); err == nil {
		t.Fatal("duplicate ProcessingDone should be rejected")
	}
}

// TestCaptureDoneFromIdle verifies a worker that fails before its
// first frame can still report capture-done.
func TestCaptureDoneFromIdle(t *testing.T) {
	b := New()
	b.Arm([]types.SensorRole{types.EventCamera})

	if err := b.ReportCaptureDone(types.EventCamera); err != nil {
		t.Fatalf("CaptureDone from Idle: %v", err)
	}
	if got := b.Phase(types.EventCamera); got != CaptureDone {
		t.Errorf("expected capture-done, got %s", got)
	}
}

// TestWaitTimeout verifies Wait returns ErrTimeout rather than
// blocking forever when a sensor is stuck.
func TestWaitTimeout(t *testing.T) {
	b := New()
	b.Arm([]types.SensorRole{types.FrameCamera, types.EventCamera})

	b.StartCapture(types.FrameCamera)
	b.ReportCaptureDone(types.FrameCamera)
	b.ReportProcessingDone(types.FrameCamera)
	// EventCamera never reports.

	start := time.Now()
	err := b.Wait(50 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait took %v, expected ~50ms", elapsed)
	}
	if b.Complete() {
		t.Error("barrier must not be complete after timeout")
	}
}

// TestUnknownRoleRejected verifies transitions on unarmed roles fail.
func TestUnknownRoleRejected(t *testing.T) {
	b := New()
	b.Arm([]types.SensorRole{types.FrameCamera})

	if err := b.StartCapture(types.ThermalCamera); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

// TestConcurrentCompletion drives three sensors from separate
// goroutines and verifies the latch fires once.
func TestConcurrentCompletion(t *testing.T) {
	roles := []types.SensorRole{types.FrameCamera, types.EventCamera, types.ThermalCamera}
	b := New()
	b.Arm(roles)

	var wg sync.WaitGroup
	for _, role := range roles {
		wg.Add(1)
		go func(r types.SensorRole) {
			defer wg.Done()
			b.StartCapture(r)
			b.ReportCaptureDone(r)
			b.ReportProcessingDone(r)
		}(role)
	}

	if err := b.Wait(5 * time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	wg.Wait()

	for _, role := range roles {
		if got := b.Phase(role); got != ProcessingDone {
			t.Errorf("%s: expected processing-done, got %s", role, got)
		}
	}
}
