// Package encode serialises completed revolutions into the two downstream formats:
// a dense float32 point buffer and the bit-packed compact record.
package encode

import (
	"fmt"
	"strings"
)

// IntensityMode selects which compact records are produced per revolution.
type IntensityMode uint8

const (
	IntensityNone     IntensityMode = 0 // distance words only
	IntensityCombined IntensityMode = 1 // intensity folded into the top bits of each word
	IntensityBoth     IntensityMode = 2 // one record of each kind
)

func (m IntensityMode) String() string {
	switch m {
	case IntensityNone:
		return "none"
	case IntensityCombined:
		return "combined"
	case IntensityBoth:
		return "both"
	}
	return fmt.Sprintf("IntensityMode(%d)", uint8(m))
}

// Plain reports whether the mode produces the distance-only record.
func (m IntensityMode) Plain() bool { return m == IntensityNone || m == IntensityBoth }

// Combined reports whether the mode produces the distance+intensity record.
func (m IntensityMode) Combined() bool { return m == IntensityCombined || m == IntensityBoth }

// ParseIntensityMode accepts the names used in config files and flags.
func ParseIntensityMode(s string) (IntensityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return IntensityNone, nil
	case "combined", "1":
		return IntensityCombined, nil
	case "both", "2":
		return IntensityBoth, nil
	}
	return 0, fmt.Errorf("unknown intensity mode %q (want none, combined or both)", s)
}

// DistanceEncoding is the quantisation applied to raw distances before packing.
// The numeric values are part of the compact record header.
type DistanceEncoding uint8

const (
	DistanceCoarse1cm DistanceEncoding = 0
	DistanceFine2mm   DistanceEncoding = 1
)

func (d DistanceEncoding) String() string {
	switch d {
	case DistanceCoarse1cm:
		return "coarse"
	case DistanceFine2mm:
		return "fine"
	}
	return fmt.Sprintf("DistanceEncoding(%d)", uint8(d))
}

// ParseDistanceEncoding accepts "fine"/"2mm" and "coarse"/"1cm".
func ParseDistanceEncoding(s string) (DistanceEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fine", "2mm", "fine_2mm":
		return DistanceFine2mm, nil
	case "coarse", "1cm", "coarse_1cm":
		return DistanceCoarse1cm, nil
	}
	return 0, fmt.Errorf("unknown distance encoding %q (want fine or coarse)", s)
}

// Metres converts a packed distance (without intensity bits) back to metres.
func (d DistanceEncoding) Metres(v uint16) float64 {
	if d == DistanceCoarse1cm {
		return float64(v) / 100.0
	}
	return float64(v) / 500.0
}

const (
	MinIntensityBits = 1
	MaxIntensityBits = 8
)

// PackDistance quantises a raw 2 mm distance. Coarse encoding divides by 5,
// giving 1 cm per unit.
func PackDistance(raw uint16, enc DistanceEncoding) uint16 {
	if enc == DistanceCoarse1cm {
		return raw / 5
	}
	return raw
}

// PackIntensity folds an 8-bit intensity into a 16-bit distance word.
//
// Bit layout for n = bits:
//
//	15 ........ 16-n | 15-n ............ 0
//	[ intensity >> (8-n) ] [ distance >> n ]
//
// The top n bits of the intensity become the quantisation level (2^n buckets);
// the distance loses its n least significant bits. bits outside 1..8 leave the
// distance untouched.
func PackIntensity(distance uint16, intensity uint8, bits uint8) uint16 {
	if bits < MinIntensityBits || bits > MaxIntensityBits {
		return distance
	}
	level := uint16(intensity>>(8-bits)) << (16 - bits)
	return level | distance>>bits
}

// UnpackIntensity reverses PackIntensity. distance is rescaled to the original
// units (lower bits are zero) and level is in [0, 2^bits).
func UnpackIntensity(word uint16, bits uint8) (distance uint16, level uint8) {
	if bits < MinIntensityBits || bits > MaxIntensityBits {
		return word, 0
	}
	mask := uint16(1)<<(16-bits) - 1
	return (word & mask) << bits, uint8(word >> (16 - bits))
}

// LevelToIntensity maps a quantisation level back onto 0..255, using the lowest
// intensity of the bucket.
func LevelToIntensity(level, bits uint8) uint8 {
	if bits < MinIntensityBits || bits > MaxIntensityBits {
		return 0
	}
	return level << (8 - bits)
}
