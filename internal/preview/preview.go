// Package preview fuses the latest frames of two sensors into one
// composite for a live view, pairing by stream tick.
//
// This is a bounded-staleness, at-most-one-pending-pair protocol, not
// a queue. Frames that are never paired are overwritten by the next
// tick: freshness over completeness.
package preview

import (
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/Meow-the-Mouse-Muncher/mult-camera-sync/internal/types"
)

// Sink receives finished composites. Fire-and-forget: no
// acknowledgement, no error return.
type Sink func(composite image.Image, tick uint64)

// Stats is a snapshot of synchronizer counters.
type Stats struct {
	// Offered is the number of frames registered via Offer.
	Offered uint64
	// Composites is the number of pairs emitted to the sink.
	Composites uint64
	// StaleCleared is the number of lagging frames cleared when the
	// tick skew exceeded 1.
	StaleCleared uint64
}

// slot holds the newest ready frame of one sensor.
type slot struct {
	img   image.Image
	tick  uint64
	ready bool
}

// Synchronizer pairs the newest ready frames of two sensors.
//
// A composite is emitted only when both slots are ready and their
// tick values differ by at most 1; both ready flags are then cleared
// so the pairing is consumed exactly once. When the skew is larger,
// the lagging slot is cleared instead, preventing a fast sensor from
// repeatedly compositing against a stale frame.
type Synchronizer struct {
	left  types.SensorRole
	right types.SensorRole

	panelW int
	panelH int
	sink   Sink

	mu    sync.Mutex
	slots map[types.SensorRole]*slot

	offered      uint64
	composites   uint64
	staleCleared uint64
}

// New creates a synchronizer for the two contributing roles. Each
// half of the composite is panelW x panelH; left appears first.
func New(left, right types.SensorRole, panelW, panelH int, sink Sink) *Synchronizer {
	return &Synchronizer{
		left:   left,
		right:  right,
		panelW: panelW,
		panelH: panelH,
		sink:   sink,
		slots: map[types.SensorRole]*slot{
			left:  {},
			right: {},
		},
	}
}

// Offer registers a downsampled frame as the newest ready frame for
// its role, then attempts a composite. Frames from roles the
// synchronizer does not track are ignored.
func (s *Synchronizer) Offer(f types.StreamFrame) {
	s.mu.Lock()

	sl, ok := s.slots[f.Role]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.offered++

	// Overwrite policy: a newer tick supersedes whatever was pending.
	sl.img = f.Image
	sl.tick = f.Tick
	sl.ready = true

	a, b := s.slots[s.left], s.slots[s.right]
	if !a.ready || !b.ready {
		s.mu.Unlock()
		return
	}

	if skew(a.tick, b.tick) > 1 {
		// Clear whichever sensor is behind and wait for its next tick.
		if a.tick < b.tick {
			a.ready = false
		} else {
			b.ready = false
		}
		s.staleCleared++
		s.mu.Unlock()
		return
	}

	composite := s.compose(a.img, b.img)
	tick := a.tick
	if b.tick > tick {
		tick = b.tick
	}
	a.ready = false
	b.ready = false
	s.composites++
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink(composite, tick)
	}
}

// compose scales both frames to panel size and pastes them
// side-by-side. Caller holds s.mu.
func (s *Synchronizer) compose(left, right image.Image) image.Image {
	canvas := imaging.New(2*s.panelW, s.panelH, color.Black)
	canvas = imaging.Paste(canvas, imaging.Resize(left, s.panelW, s.panelH, imaging.Box), image.Pt(0, 0))
	canvas = imaging.Paste(canvas, imaging.Resize(right, s.panelW, s.panelH, imaging.Box), image.Pt(s.panelW, 0))
	return canvas
}

// Stats returns a snapshot of the counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Offered:      s.offered,
		Composites:   s.composites,
		StaleCleared: s.staleCleared,
	}
}

func skew(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
