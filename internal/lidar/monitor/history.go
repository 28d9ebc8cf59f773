package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
)

// FrameSample summarises one emitted revolution.
type FrameSample struct {
	Seq          uint64    `json:"seq"`
	At           time.Time `json:"at"`
	Points       int       `json:"points"`
	CompactBytes int       `json:"compact_bytes"`
	StartAzimuth float64   `json:"start_azimuth"`
	EndAzimuth   float64   `json:"end_azimuth"`
}

// FrameHistory is an output.Publisher that keeps the most recent frames for
// the debug pages. Records for the same sequence number share a sample.
type FrameHistory struct {
	mu      sync.Mutex
	samples []FrameSample // ring
	next    int
	full    bool
	now     func() time.Time
}

// NewFrameHistory keeps the last size frames.
func NewFrameHistory(size int) *FrameHistory {
	if size <= 0 {
		size = 600
	}
	return &FrameHistory{samples: make([]FrameSample, size), now: time.Now}
}

func (h *FrameHistory) PublishDense(f encode.DenseFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sample(f.Seq, f.StartAzimuth, f.EndAzimuth)
	s.Points = f.Width
}

func (h *FrameHistory) PublishCompact(f encode.CompactFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sample(f.Seq, f.StartAzimuth, f.EndAzimuth)
	s.CompactBytes += len(f.Payload)
}

// sample returns the slot for seq, claiming a new one if seq is not the
// most recent. Caller holds mu.
func (h *FrameHistory) sample(seq uint64, start, end float64) *FrameSample {
	if h.next > 0 || h.full {
		last := &h.samples[(h.next-1+len(h.samples))%len(h.samples)]
		if last.Seq == seq {
			return last
		}
	}
	s := &h.samples[h.next]
	*s = FrameSample{Seq: seq, At: h.now(), StartAzimuth: start, EndAzimuth: end}
	h.next++
	if h.next == len(h.samples) {
		h.next = 0
		h.full = true
	}
	return s
}

// Samples returns the retained frames, oldest first.
func (h *FrameHistory) Samples() []FrameSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]FrameSample(nil), h.samples[:h.next]...)
	}
	out := make([]FrameSample, 0, len(h.samples))
	out = append(out, h.samples[h.next:]...)
	return append(out, h.samples[:h.next]...)
}

// Latest returns the most recent sample.
func (h *FrameHistory) Latest() (FrameSample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.next == 0 && !h.full {
		return FrameSample{}, false
	}
	return h.samples[(h.next-1+len(h.samples))%len(h.samples)], true
}
