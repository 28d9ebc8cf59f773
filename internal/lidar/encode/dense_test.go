package encode

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/geometry"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDenseLayout(t *testing.T) {
	points := []geometry.Point{
		{X: 1.5, Y: -2.25, Z: 0.125, Intensity: 255},
		{X: -10, Y: 20, Z: -0.5, Intensity: 0},
	}
	buf := make([]byte, DenseSize(4))

	n, err := EncodeDense(points, buf)
	require.NoError(t, err)
	assert.Equal(t, 2*16, n, "byte length is pointCount × 16")

	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])))
	assert.Equal(t, float32(-2.25), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
	assert.Equal(t, float32(0.125), math.Float32frombits(binary.LittleEndian.Uint32(buf[8:])))
	assert.Equal(t, float32(255), math.Float32frombits(binary.LittleEndian.Uint32(buf[12:])))

	got := DecodeDense(buf[:n], nil)
	if diff := cmp.Diff(points, got); diff != "" {
		t.Errorf("decoded points mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDenseTooSmall(t *testing.T) {
	buf := make([]byte, 20)
	n, err := EncodeDense(make([]geometry.Point, 2), buf)
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, ErrBufferTooSmall))
	assert.Equal(t, make([]byte, 20), buf, "nothing written on failure")
}

func TestNewDenseFrame(t *testing.T) {
	f := NewDenseFrame("velodyne16", 300)
	want := DenseFrame{
		Name:               "velodyne16",
		ByteLength:         4800,
		Width:              300,
		Height:             1,
		ComponentsPerPoint: 4,
		ComponentType:      ComponentFloat32,
		UserInfo:           UserInfoXYZIntensity,
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("dense frame metadata mismatch (-want +got):\n%s", diff)
	}
}
