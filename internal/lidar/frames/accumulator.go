// Package frames groups decoded points into 360° revolutions.
//
// An Accumulator owns the pre-sized buffers for the revolution in progress and
// decides when it is complete: a revolution ends when the azimuth of an incoming
// firing is numerically lower than the previous one (the 360°→0° wrap). The dense
// point path and the compact path keep separate capacity counters since only the
// dense path applies the minimum-range filter.
package frames

import (
	"fmt"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/geometry"
)

// ScanFrame is the dense point buffer of one revolution. Points never grows
// beyond the capacity set at construction.
type ScanFrame struct {
	Points       []geometry.Point
	StartAzimuth float64
	LastAzimuth  float64
}

// PointCount is the number of points accumulated so far.
func (f *ScanFrame) PointCount() int { return len(f.Points) }

// Capacity is the maximum number of points the frame can hold.
func (f *ScanFrame) Capacity() int { return cap(f.Points) }

// Revolution is handed to the Emitter when a wrap is detected. It is only valid
// for the duration of the Emit call.
type Revolution struct {
	Dense        *ScanFrame             // nil when the dense path is disabled
	Compact      *encode.CompactEncoder // nil when the compact path is disabled
	StartAzimuth float64
	EndAzimuth   float64 // last azimuth before the wrap
	DenseFull    bool    // buffer reached capacity
	CompactFull  bool
}

// Emitter receives completed revolutions.
type Emitter interface {
	Emit(rev *Revolution)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(rev *Revolution)

func (f EmitterFunc) Emit(rev *Revolution) { f(rev) }

// Accumulator tracks the revolution in progress.
type Accumulator struct {
	frame   *ScanFrame
	compact *encode.CompactEncoder
	emitter Emitter

	started      bool
	startAzimuth float64
	lastAzimuth  float64
	rev          Revolution
}

// NewAccumulator allocates the dense buffer for maxPoints points when dense is
// true. compact may be nil to disable the compact path; it carries its own capacity.
func NewAccumulator(maxPoints int, dense bool, compact *encode.CompactEncoder, emitter Emitter) (*Accumulator, error) {
	if !dense && compact == nil {
		return nil, fmt.Errorf("accumulator needs at least one of the dense or compact paths")
	}
	if dense && maxPoints <= 0 {
		return nil, fmt.Errorf("max points must be positive, got %d", maxPoints)
	}
	if emitter == nil {
		return nil, fmt.Errorf("accumulator needs an emitter")
	}
	a := &Accumulator{compact: compact, emitter: emitter}
	if dense {
		a.frame = &ScanFrame{Points: make([]geometry.Point, 0, maxPoints)}
	}
	return a, nil
}

// Observe feeds the azimuth of the next firing. When it is lower than the
// previous azimuth the current revolution is emitted (if it holds anything) and
// a new one starts at az. It reports whether a wrap happened.
func (a *Accumulator) Observe(az float64) bool {
	if !a.started {
		a.started = true
		a.startAzimuth = az
		a.lastAzimuth = az
		a.stampFrame()
		return false
	}

	wrapped := az < a.lastAzimuth
	if wrapped {
		a.emit()
		a.reset()
		a.startAzimuth = az
	}
	a.lastAzimuth = az
	a.stampFrame()
	return wrapped
}

func (a *Accumulator) stampFrame() {
	if a.frame != nil {
		a.frame.StartAzimuth = a.startAzimuth
		a.frame.LastAzimuth = a.lastAzimuth
	}
}

// Flush emits the revolution in progress without waiting for a wrap.
func (a *Accumulator) Flush() bool {
	if !a.started || a.Empty() {
		return false
	}
	a.emit()
	a.reset()
	a.startAzimuth = a.lastAzimuth
	a.stampFrame()
	return true
}

func (a *Accumulator) emit() {
	if a.Empty() {
		return
	}
	a.rev = Revolution{
		Dense:        a.frame,
		Compact:      a.compact,
		StartAzimuth: a.startAzimuth,
		EndAzimuth:   a.lastAzimuth,
		DenseFull:    a.DenseFull(),
		CompactFull:  a.CompactFull(),
	}
	a.emitter.Emit(&a.rev)
	a.rev = Revolution{}
}

func (a *Accumulator) reset() {
	if a.frame != nil {
		a.frame.Points = a.frame.Points[:0]
	}
	if a.compact != nil {
		a.compact.Reset()
	}
}

// Started reports whether at least one azimuth has been observed.
func (a *Accumulator) Started() bool { return a.started }

// Empty reports whether neither path holds anything.
func (a *Accumulator) Empty() bool {
	return (a.frame == nil || len(a.frame.Points) == 0) && (a.compact == nil || a.compact.Count() == 0)
}

// StartAzimuth is the azimuth the current revolution started at.
func (a *Accumulator) StartAzimuth() float64 { return a.startAzimuth }

// LastAzimuth is the most recently observed azimuth.
func (a *Accumulator) LastAzimuth() float64 { return a.lastAzimuth }

// Frame returns the dense frame in progress, or nil.
func (a *Accumulator) Frame() *ScanFrame { return a.frame }

// DenseEnabled reports whether points are being accumulated.
func (a *Accumulator) DenseEnabled() bool { return a.frame != nil }

// CompactEnabled reports whether firings are being packed.
func (a *Accumulator) CompactEnabled() bool { return a.compact != nil }

// DenseFull reports whether the dense buffer is at capacity.
func (a *Accumulator) DenseFull() bool {
	return a.frame != nil && len(a.frame.Points) >= cap(a.frame.Points)
}

// CompactFull reports whether the compact counter is at capacity.
func (a *Accumulator) CompactFull() bool {
	return a.compact != nil && a.compact.Full()
}

// AcceptsPoints reports whether AddPoint would store a point.
func (a *Accumulator) AcceptsPoints() bool {
	return a.frame != nil && len(a.frame.Points) < cap(a.frame.Points)
}

// AcceptsFirings reports whether AddCompact would record a firing.
func (a *Accumulator) AcceptsFirings() bool {
	return a.compact != nil && !a.compact.Full()
}

// Exhausted reports whether the limiting path is full, after which the rest of
// the current block and any further blocks of the revolution are skipped. The
// compact counter limits when it is enabled since it sees every firing;
// otherwise the dense buffer does.
func (a *Accumulator) Exhausted() bool {
	if a.compact != nil {
		return a.compact.Full()
	}
	return a.DenseFull()
}

// AddPoint appends p to the dense frame. It reports false when the frame is full
// or the dense path is disabled.
func (a *Accumulator) AddPoint(p geometry.Point) bool {
	if !a.AcceptsPoints() {
		return false
	}
	a.frame.Points = append(a.frame.Points, p)
	return true
}

// AddCompact records one firing on the compact path.
func (a *Accumulator) AddCompact(channel int, raw uint16, intensity uint8) bool {
	if !a.AcceptsFirings() {
		return false
	}
	a.compact.Add(channel, raw, intensity)
	return true
}
