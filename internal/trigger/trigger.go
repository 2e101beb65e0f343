// Package trigger drives the serial-attached pulse generator that
// starts synchronized acquisition on every connected sensor.
package trigger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

var (
	// ErrPortUnavailable means the serial transport could not be opened.
	ErrPortUnavailable = errors.New("trigger port unavailable")

	// ErrWriteFailed means the pulse command could not be transmitted.
	ErrWriteFailed = errors.New("trigger command write failed")
)

// Config identifies the pulse generator transport.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// Dispatcher issues the single external pulse train. It opens a
// transient connection per Fire call and always closes it, success or
// failure. It is never retried automatically; the caller decides
// whether a failed trigger aborts the session.
type Dispatcher struct {
	cfg Config

	// openPort is swappable for tests.
	openPort func() (io.WriteCloser, error)
}

// New creates a dispatcher for the configured serial port.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{cfg: cfg}
	d.openPort = func() (io.WriteCloser, error) {
		port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
		if err != nil {
			return nil, err
		}
		if cfg.ReadTimeout > 0 {
			if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
				port.Close()
				return nil, err
			}
		}
		return port, nil
	}
	return d
}

// Fire writes one PULSE command to the generator. The dispatcher has
// no visibility into whether any sensor actually reacted to the
// physical pulse.
func (d *Dispatcher) Fire(pulseCount uint32, frequencyHz float64) error {
	port, err := d.openPort()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrPortUnavailable, d.cfg.Port, err)
	}
	defer port.Close()

	command := fmt.Sprintf("PULSE,%d,%g\n", pulseCount, frequencyHz)
	if _, err := io.WriteString(port, command); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	slog.Info("trigger pulse command sent",
		"port", d.cfg.Port,
		"pulses", pulseCount,
		"frequency_hz", frequencyHz,
	)
	return nil
}
