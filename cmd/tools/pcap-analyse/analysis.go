//go:build pcap
// +build pcap

package main

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/geometry"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/output"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FrameRecord is one emitted revolution as seen by the analyser.
type FrameRecord struct {
	Seq          uint64    `json:"seq"`
	Points       int       `json:"points"`
	CompactBytes int       `json:"compact_bytes"`
	Records      int       `json:"compact_records"`
	StartAzimuth float64   `json:"start_azimuth_deg"`
	EndAzimuth   float64   `json:"end_azimuth_deg"`
	MeanRange    float64   `json:"mean_range_m"`
	MaxRange     float64   `json:"max_range_m"`
	EmittedAt    time.Time `json:"-"`
}

// frameRecorder collects a FrameRecord per sequence number. Dense frames are
// read back out of the shared buffer so range statistics reflect what a
// consumer would see.
type frameRecorder struct {
	mu     sync.Mutex
	buffer *output.SharedBuffer
	frames []FrameRecord
	index  map[uint64]int
	points []geometry.Point
}

func newFrameRecorder(buffer *output.SharedBuffer) *frameRecorder {
	return &frameRecorder{buffer: buffer, index: make(map[uint64]int)}
}

func (r *frameRecorder) record(seq uint64) *FrameRecord {
	if i, ok := r.index[seq]; ok {
		return &r.frames[i]
	}
	r.index[seq] = len(r.frames)
	r.frames = append(r.frames, FrameRecord{Seq: seq, EmittedAt: time.Now()})
	return &r.frames[len(r.frames)-1]
}

func (r *frameRecorder) PublishDense(f encode.DenseFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(f.Seq)
	rec.Points = f.Width
	rec.StartAzimuth = f.StartAzimuth
	rec.EndAzimuth = f.EndAzimuth
	if r.buffer == nil {
		return
	}
	_ = r.buffer.Read(func(data []byte) {
		r.points = encode.DecodeDense(data, r.points[:0])
	})
	rec.MeanRange, rec.MaxRange = rangeSummary(r.points)
}

func (r *frameRecorder) PublishCompact(f encode.CompactFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.record(f.Seq)
	rec.CompactBytes += len(f.Payload)
	rec.Records++
	if rec.Points == 0 {
		rec.StartAzimuth = f.StartAzimuth
		rec.EndAzimuth = f.EndAzimuth
	}
}

// Frames returns the recorded frames in emission order.
func (r *frameRecorder) Frames() []FrameRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FrameRecord, len(r.frames))
	copy(out, r.frames)
	return out
}

func rangeSummary(pts []geometry.Point) (mean, peak float64) {
	if len(pts) == 0 {
		return 0, 0
	}
	ranges := make([]float64, len(pts))
	for i, p := range pts {
		ranges[i], _, _ = geometry.Polar(p)
	}
	return stat.Mean(ranges, nil), floats.Max(ranges)
}

// Distribution summarises a per-frame quantity.
type Distribution struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
	Samples int     `json:"samples"`
}

func (d Distribution) String() string {
	return fmt.Sprintf("min %.0f, mean %.1f ± %.1f, p50 %.0f, p95 %.0f, p99 %.0f, max %.0f",
		d.Min, d.Mean, d.StdDev, d.P50, d.P95, d.P99, d.Max)
}

// distribution computes summary statistics; values is not modified.
func distribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	d := Distribution{
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		P50:     stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99:     stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Samples: len(sorted),
	}
	d.Mean, d.StdDev = stat.MeanStdDev(sorted, nil)
	if math.IsNaN(d.StdDev) {
		d.StdDev = 0
	}
	return d
}

// FrameAnalysis is the per-frame summary of a replay.
type FrameAnalysis struct {
	Frames          int          `json:"frames"`
	EmptyFrames     int          `json:"empty_frames"`
	PointsPerFrame  Distribution `json:"points_per_frame"`
	CompactBytes    Distribution `json:"compact_bytes_per_frame"`
	MeanRange       Distribution `json:"mean_range_m"`
	AzimuthCoverage Distribution `json:"azimuth_coverage_deg"`
	FrameRateHz     float64      `json:"frame_rate_hz"`
}

// analyseFrames summarises recorded frames. The first and last frames are
// partial revolutions and are excluded when there are enough frames.
func analyseFrames(frames []FrameRecord, capture time.Duration) FrameAnalysis {
	var a FrameAnalysis
	a.Frames = len(frames)
	if capture > 0 && len(frames) > 0 {
		a.FrameRateHz = float64(len(frames)) / capture.Seconds()
	}
	if len(frames) > 3 {
		frames = frames[1 : len(frames)-1]
	}

	var points, bytes, ranges, coverage []float64
	for _, f := range frames {
		if f.Points == 0 && f.CompactBytes == 0 {
			a.EmptyFrames++
			continue
		}
		points = append(points, float64(f.Points))
		bytes = append(bytes, float64(f.CompactBytes))
		if f.Points > 0 {
			ranges = append(ranges, f.MeanRange)
		}
		coverage = append(coverage, azimuthSpan(f.StartAzimuth, f.EndAzimuth))
	}
	a.PointsPerFrame = distribution(points)
	a.CompactBytes = distribution(bytes)
	a.MeanRange = distribution(ranges)
	a.AzimuthCoverage = distribution(coverage)
	return a
}

// azimuthSpan is the clockwise sweep from start to end in degrees.
func azimuthSpan(start, end float64) float64 {
	span := end - start
	if span < 0 {
		span += 360
	}
	return span
}
