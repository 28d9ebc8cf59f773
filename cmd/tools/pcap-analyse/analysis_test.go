//go:build pcap
// +build pcap

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/geometry"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistribution(t *testing.T) {
	assert.Equal(t, Distribution{}, distribution(nil))

	d := distribution([]float64{5, 1, 3, 2, 4})
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 5.0, d.Max)
	assert.Equal(t, 3.0, d.Mean)
	assert.Equal(t, 3.0, d.P50)
	assert.Equal(t, 5.0, d.P99)
	assert.InDelta(t, 1.5811, d.StdDev, 1e-4)
	assert.Equal(t, 5, d.Samples)

	single := distribution([]float64{7})
	assert.Equal(t, 0.0, single.StdDev)
}

func TestAzimuthSpan(t *testing.T) {
	assert.Equal(t, 359.0, azimuthSpan(0.5, 359.5))
	assert.Equal(t, 20.0, azimuthSpan(350, 10))
}

func TestFrameRecorderReadsDenseBuffer(t *testing.T) {
	buf, err := output.NewSharedBuffer("test", encode.DenseSize(4))
	require.NoError(t, err)
	pts := []geometry.Point{{X: 3, Y: 4}, {X: 0, Y: 0, Z: 10}}
	_, err = buf.Write(func(dst []byte) (int, error) { return encode.EncodeDense(pts, dst) })
	require.NoError(t, err)

	r := newFrameRecorder(buf)
	r.PublishDense(encode.DenseFrame{Seq: 1, Width: 2, StartAzimuth: 0.2, EndAzimuth: 359.8})
	r.PublishCompact(encode.CompactFrame{Seq: 1, Payload: make([]byte, 40)})
	r.PublishCompact(encode.CompactFrame{Seq: 1, Payload: make([]byte, 40)})
	r.PublishCompact(encode.CompactFrame{Seq: 2, Payload: make([]byte, 8), StartAzimuth: 1, EndAzimuth: 2})

	frames := r.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, 2, frames[0].Points)
	assert.Equal(t, 80, frames[0].CompactBytes)
	assert.Equal(t, 2, frames[0].Records)
	assert.InDelta(t, 7.5, frames[0].MeanRange, 1e-6)
	assert.InDelta(t, 10.0, frames[0].MaxRange, 1e-6)
	assert.Equal(t, 0, frames[1].Points)
	assert.Equal(t, 2.0, frames[1].EndAzimuth)
}

func TestAnalyseFramesDropsPartialEnds(t *testing.T) {
	frames := []FrameRecord{
		{Seq: 1, Points: 10, StartAzimuth: 200, EndAzimuth: 359},
		{Seq: 2, Points: 1000, CompactBytes: 2000, StartAzimuth: 0, EndAzimuth: 359.8},
		{Seq: 3, Points: 1200, CompactBytes: 2400, StartAzimuth: 0.1, EndAzimuth: 359.9},
		{Seq: 4},
		{Seq: 5, Points: 5, StartAzimuth: 0, EndAzimuth: 12},
	}
	a := analyseFrames(frames, 500*time.Millisecond)
	assert.Equal(t, 5, a.Frames)
	assert.Equal(t, 10.0, a.FrameRateHz)
	assert.Equal(t, 1, a.EmptyFrames)
	assert.Equal(t, 2, a.PointsPerFrame.Samples)
	assert.Equal(t, 1100.0, a.PointsPerFrame.Mean)
	assert.Equal(t, 2200.0, a.CompactBytes.Mean)
	assert.InDelta(t, 359.8, a.AzimuthCoverage.Mean, 1e-9)
}

func TestWritePlots(t *testing.T) {
	dir := t.TempDir()
	var frames []FrameRecord
	for i := 1; i <= 50; i++ {
		frames = append(frames, FrameRecord{Seq: uint64(i), Points: 28000 + i*7})
	}
	paths, err := writePlots(dir, "capture", frames)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, dir, filepath.Dir(p))
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}
