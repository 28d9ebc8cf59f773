package encode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/geometry"
)

// Dense point layout: 4 consecutive little-endian float32 components per point.
const (
	COMPONENTS_PER_POINT = 4
	BYTES_PER_COMPONENT  = 4
	BYTES_PER_POINT      = COMPONENTS_PER_POINT * BYTES_PER_COMPONENT
)

// ComponentType and UserInfo describe the dense buffer contents to consumers.
type ComponentType uint8

const (
	ComponentFloat32 ComponentType = iota
)

type UserInfo uint8

const (
	UserInfoXYZIntensity UserInfo = iota
)

// ErrBufferTooSmall is returned when a dense buffer cannot hold every point.
var ErrBufferTooSmall = errors.New("dense buffer too small")

// DenseFrame is the metadata published alongside a dense copy-out. The points
// themselves live in the shared buffer named by Name.
type DenseFrame struct {
	RunID              string
	Seq                uint64
	Name               string // shared buffer handle
	ByteLength         int    // Width * BYTES_PER_POINT
	Width              int    // point count
	Height             int
	ComponentsPerPoint int
	ComponentType      ComponentType
	UserInfo           UserInfo
	StartAzimuth       float64
	EndAzimuth         float64
}

// NewDenseFrame fills the fixed metadata for a buffer holding n points.
func NewDenseFrame(name string, n int) DenseFrame {
	return DenseFrame{
		Name:               name,
		ByteLength:         n * BYTES_PER_POINT,
		Width:              n,
		Height:             1,
		ComponentsPerPoint: COMPONENTS_PER_POINT,
		ComponentType:      ComponentFloat32,
		UserInfo:           UserInfoXYZIntensity,
	}
}

// DenseSize returns the buffer size needed for maxPoints points.
func DenseSize(maxPoints int) int {
	return maxPoints * BYTES_PER_POINT
}

// EncodeDense writes points into dst and returns the number of bytes written.
// Nothing is written when dst is too small.
func EncodeDense(points []geometry.Point, dst []byte) (int, error) {
	n := len(points) * BYTES_PER_POINT
	if len(dst) < n {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, n, len(dst))
	}
	off := 0
	for _, p := range points {
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(dst[off+4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(dst[off+8:], math.Float32bits(p.Z))
		binary.LittleEndian.PutUint32(dst[off+12:], math.Float32bits(p.Intensity))
		off += BYTES_PER_POINT
	}
	return n, nil
}

// DecodeDense reads whole points from src, appending to dst.
func DecodeDense(src []byte, dst []geometry.Point) []geometry.Point {
	for off := 0; off+BYTES_PER_POINT <= len(src); off += BYTES_PER_POINT {
		dst = append(dst, geometry.Point{
			X:         math.Float32frombits(binary.LittleEndian.Uint32(src[off:])),
			Y:         math.Float32frombits(binary.LittleEndian.Uint32(src[off+4:])),
			Z:         math.Float32frombits(binary.LittleEndian.Uint32(src[off+8:])),
			Intensity: math.Float32frombits(binary.LittleEndian.Uint32(src[off+12:])),
		})
	}
	return dst
}
