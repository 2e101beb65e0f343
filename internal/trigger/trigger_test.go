package trigger

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// fakePort records written bytes and whether Close was called.
type fakePort struct {
	bytes.Buffer
	writeErr error
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.Buffer.Write(b)
}

// WriteString routes through Write so writeErr applies even when the
// caller takes the io.StringWriter fast path, instead of hitting the
// embedded Buffer's promoted WriteString.
func (p *fakePort) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

// TestFireWireFormat verifies the ASCII command written to the port.
func TestFireWireFormat(t *testing.T) {
	port := &fakePort{}
	d := New(Config{Port: "/dev/ttyUSB0", BaudRate: 115200})
	d.openPort = func() (io.WriteCloser, error) { return port, nil }

	if err := d.Fire(200, 30); err != nil {
		t.Fatalf("Fire: %v", err)
	}

	if got, want := port.String(), "PULSE,200,30\n"; got != want {
		t.Errorf("wrote %q, want %q", got, want)
	}
	if !port.closed {
		t.Error("port not closed after Fire")
	}
}

// TestFirePortUnavailable verifies the open-failure mapping.
func TestFirePortUnavailable(t *testing.T) {
	d := New(Config{Port: "/dev/ttyUSB0", BaudRate: 115200})
	d.openPort = func() (io.WriteCloser, error) { return nil, errors.New("no such device") }

	if err := d.Fire(100, 25); !errors.Is(err, ErrPortUnavailable) {
		t.Fatalf("expected ErrPortUnavailable, got %v", err)
	}
}

// TestFireWriteFailedStillCloses verifies the port is released even
// when transmission fails.
func TestFireWriteFailedStillCloses(t *testing.T) {
	port := &fakePort{writeErr: errors.New("io error")}
	d := New(Config{Port: "/dev/ttyUSB0", BaudRate: 115200})
	d.openPort = func() (io.WriteCloser, error) { return port, nil }

	if err := d.Fire(100, 25); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if !port.closed {
		t.Error("port not closed after failed write")
	}
}
