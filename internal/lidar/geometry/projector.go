// Package geometry converts decoded laser samples into Cartesian points.
//
// The two supported sensors have structurally different calibration models, so
// each gets its own Projector:
//   - VLP-16: a fixed vertical angle per laser.
//   - HDL-64E: rotational, vertical, distance, vertical-offset and
//     horizontal-offset corrections per laser.
//
// Coordinate system: X=right, Y=forward, Z=up, azimuth measured clockwise from Y.
package geometry

import (
	"fmt"
	"math"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/parse"
)

// MinRange is the near-field cut-off in metres. Only samples strictly farther
// than this are projected; closer readings are treated as invalid returns.
const MinRange = 1.0

const degToRad = math.Pi / 180.0

// Point is one projected return, laid out as the 4 float components of the
// dense output buffer.
type Point struct {
	X, Y, Z   float32 // metres
	Intensity float32 // raw 0-255 reflectivity, unscaled
}

// Projector turns a sample into a point, or reports false for a discarded sample.
type Projector interface {
	Project(s parse.Sample) (Point, bool)
}

// VerticalProjector is the VLP-16 model: xy = r·cos(v), x = xy·sin(az),
// y = xy·cos(az), z = r·sin(v).
type VerticalProjector struct {
	cosVert [calibration.CHANNELS_VLP16]float64
	sinVert [calibration.CHANNELS_VLP16]float64
}

// NewVerticalProjector pre-computes per-laser trigonometry from a VLP-16 table.
func NewVerticalProjector(t *calibration.Table) (*VerticalProjector, error) {
	c, ok := t.VLP16()
	if !ok {
		return nil, fmt.Errorf("vertical projector needs a VLP-16 calibration, got %v", modelOf(t))
	}
	p := &VerticalProjector{}
	for ch, deg := range c.VertCorrection {
		rad := deg * degToRad
		p.cosVert[ch] = math.Cos(rad)
		p.sinVert[ch] = math.Sin(rad)
	}
	return p, nil
}

// Project implements Projector.
func (p *VerticalProjector) Project(s parse.Sample) (Point, bool) {
	if s.Range <= MinRange || s.Channel < 0 || s.Channel >= calibration.CHANNELS_VLP16 {
		return Point{}, false
	}
	az := s.Azimuth * degToRad
	xy := s.Range * p.cosVert[s.Channel]
	return Point{
		X:         float32(xy * math.Sin(az)),
		Y:         float32(xy * math.Cos(az)),
		Z:         float32(s.Range * p.sinVert[s.Channel]),
		Intensity: float32(s.Intensity),
	}, true
}

// FullProjector is the HDL-64E five-parameter model.
//
//	h  = az − rot[ch]
//	d  = r + dist[ch]
//	xy = d·cos(vert[ch])
//	x  = xy·sin(h) − horiz[ch]·cos(h)
//	y  = xy·cos(h) + horiz[ch]·sin(h)
//	z  = d·sin(vert[ch]) + vertOff[ch]
//
// The near-field cut-off applies to the corrected distance d.
type FullProjector struct {
	rotRad   [calibration.CHANNELS_HDL64]float64
	cosVert  [calibration.CHANNELS_HDL64]float64
	sinVert  [calibration.CHANNELS_HDL64]float64
	distM    [calibration.CHANNELS_HDL64]float64
	vertOffM [calibration.CHANNELS_HDL64]float64
	horizM   [calibration.CHANNELS_HDL64]float64
}

// NewFullProjector converts an HDL-64E table (degrees, centimetres) into radians
// and metres once, up front.
func NewFullProjector(t *calibration.Table) (*FullProjector, error) {
	c, ok := t.HDL64()
	if !ok {
		return nil, fmt.Errorf("full projector needs an HDL-64E calibration, got %v", modelOf(t))
	}
	p := &FullProjector{}
	for ch := 0; ch < calibration.CHANNELS_HDL64; ch++ {
		p.rotRad[ch] = c.RotCorrection[ch] * degToRad
		vert := c.VertCorrection[ch] * degToRad
		p.cosVert[ch] = math.Cos(vert)
		p.sinVert[ch] = math.Sin(vert)
		p.distM[ch] = c.DistCorrection[ch] / 100.0
		p.vertOffM[ch] = c.VertOffsetCorrection[ch] / 100.0
		p.horizM[ch] = c.HorizOffsetCorrection[ch] / 100.0
	}
	return p, nil
}

// CorrectedRange applies the per-laser distance correction.
func (p *FullProjector) CorrectedRange(channel int, r float64) float64 {
	return r + p.distM[channel]
}

// Project implements Projector.
func (p *FullProjector) Project(s parse.Sample) (Point, bool) {
	if s.Channel < 0 || s.Channel >= calibration.CHANNELS_HDL64 {
		return Point{}, false
	}
	ch := s.Channel
	d := s.Range + p.distM[ch]
	if d <= MinRange {
		return Point{}, false
	}

	h := s.Azimuth*degToRad - p.rotRad[ch]
	sinH, cosH := math.Sincos(h)
	xy := d * p.cosVert[ch]
	return Point{
		X:         float32(xy*sinH - p.horizM[ch]*cosH),
		Y:         float32(xy*cosH + p.horizM[ch]*sinH),
		Z:         float32(d*p.sinVert[ch] + p.vertOffM[ch]),
		Intensity: float32(s.Intensity),
	}, true
}

func modelOf(t *calibration.Table) string {
	if t == nil {
		return "no table"
	}
	return t.Model.String()
}

// Polar recovers (range, azimuth°, elevation°) from a projected point, ignoring
// sensor offsets. Used by analysis tooling.
func Polar(p Point) (rng, azimuth, elevation float64) {
	x, y, z := float64(p.X), float64(p.Y), float64(p.Z)
	rng = math.Sqrt(x*x + y*y + z*z)
	azimuth = math.Atan2(x, y) / degToRad
	if azimuth < 0 {
		azimuth += 360.0
	}
	if rng > 0 {
		elevation = math.Asin(z/rng) / degToRad
	}
	return rng, azimuth, elevation
}
