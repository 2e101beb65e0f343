package session

import (
	"os"
	"testing"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// TestNewCreatesRoleDirectories verifies the timestamped root and one
// subdirectory per active role.
func TestNewCreatesRoleDirectories(t *testing.T) {
	base := t.TempDir()
	roles := []types.SensorRole{types.FrameCamera, types.ThermalCamera}

	s, err := New(base, roles)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.ID == "" {
		t.Error("session ID not assigned")
	}

	for _, role := range roles {
		info, err := os.Stat(s.Dir(role))
		if err != nil {
			t.Fatalf("missing dir for %s: %v", role, err)
		}
		if !info.IsDir() {
			t.Errorf("%s output path is not a directory", role)
		}
	}
}

// TestRunControlFlags verifies the monotonic flag semantics.
func TestRunControlFlags(t *testing.T) {
	rc := NewRunControl()

	if !rc.Running() {
		t.Fatal("new RunControl must be running")
	}
	if rc.AcquisitionDone() {
		t.Fatal("acquisition flag must start clear")
	}

	rc.SignalAcquisitionDone()
	rc.Stop()
	rc.Stop() // idempotent

	if rc.Running() {
		t.Error("Stop did not clear the running flag")
	}
	if !rc.AcquisitionDone() {
		t.Error("acquisition flag lost")
	}
}
