package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackIntensityThreeBits(t *testing.T) {
	word := PackIntensity(1000, 255, 3)
	assert.Equal(t, uint16(0b111), word>>13, "top 3 bits carry the intensity level")

	dist, level := UnpackIntensity(word, 3)
	assert.Equal(t, uint8(7), level, "255 falls in bucket 7 of 8")
	assert.Equal(t, uint16(1000), dist, "1000 has no low bits to lose at n=3")
	assert.Equal(t, uint8(224), LevelToIntensity(level, 3), "the bucket, not the exact 255, is recovered")
}

func TestPackIntensityLayout(t *testing.T) {
	tests := []struct {
		name      string
		distance  uint16
		intensity uint8
		bits      uint8
		want      uint16
	}{
		{"one bit high", 0x0002, 0x80, 1, 0x8001},
		{"one bit low", 0x0002, 0x7f, 1, 0x0001},
		{"four bits", 0x1234, 0xab, 4, 0xa123},
		{"eight bits", 0xffff, 0x5a, 8, 0x5aff},
		{"zero bits leaves distance", 0x1234, 0xff, 0, 0x1234},
		{"nine bits leaves distance", 0x1234, 0xff, 9, 0x1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PackIntensity(tt.distance, tt.intensity, tt.bits))
		})
	}
}

func TestUnpackIntensityBuckets(t *testing.T) {
	for bits := uint8(MinIntensityBits); bits <= MaxIntensityBits; bits++ {
		for i := 0; i < 256; i++ {
			_, level := UnpackIntensity(PackIntensity(0, uint8(i), bits), bits)
			assert.Equal(t, uint8(i>>(8-bits)), level, "bits=%d intensity=%d", bits, i)
			assert.Less(t, int(level), 1<<bits)
		}
	}
}

func TestUnpackIntensityDropsLowDistanceBits(t *testing.T) {
	dist, _ := UnpackIntensity(PackIntensity(1003, 0, 2), 2)
	assert.Equal(t, uint16(1000), dist)
}

func TestPackDistance(t *testing.T) {
	assert.Equal(t, uint16(1234), PackDistance(1234, DistanceFine2mm))
	assert.Equal(t, uint16(246), PackDistance(1234, DistanceCoarse1cm))
	assert.InDelta(t, 2.468, DistanceFine2mm.Metres(1234), 1e-9)
	assert.InDelta(t, 2.46, DistanceCoarse1cm.Metres(246), 1e-9)
}

func TestParseModes(t *testing.T) {
	for in, want := range map[string]IntensityMode{"none": IntensityNone, "Combined": IntensityCombined, " both ": IntensityBoth, "2": IntensityBoth} {
		got, err := ParseIntensityMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseIntensityMode("loud")
	assert.Error(t, err)

	for in, want := range map[string]DistanceEncoding{"fine": DistanceFine2mm, "2mm": DistanceFine2mm, "coarse": DistanceCoarse1cm, "1CM": DistanceCoarse1cm} {
		got, err := ParseDistanceEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err = ParseDistanceEncoding("5mm")
	assert.Error(t, err)

	assert.Equal(t, "both", IntensityBoth.String())
	assert.Equal(t, "coarse", DistanceCoarse1cm.String())
	assert.Equal(t, uint8(0), uint8(DistanceCoarse1cm), "wire value of coarse encoding")
	assert.Equal(t, uint8(1), uint8(DistanceFine2mm), "wire value of fine encoding")
}
