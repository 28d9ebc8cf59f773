package parse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAzimuthInterpolationHalfDelta(t *testing.T) {
	data := buildTestPacket(upperFlags(), steppedAzimuths(1000, 40), func(b, i int) uint16 { return 0 })
	var pkt Packet
	require.NoError(t, ParsePacket(data, &pkt))

	var interp AzimuthInterpolator
	for i := 0; i < BLOCKS_PER_PACKET; i++ {
		first, second := interp.Block(&pkt, i)
		assert.InDelta(t, 10.0+0.4*float64(i), first, 1e-9, "block %d", i)
		assert.InDelta(t, 0.2, second-first, 1e-9, "block %d halves must differ by half the inter-block delta", i)
	}
}

func TestAzimuthInterpolationAcrossWrap(t *testing.T) {
	// Block 4 sits at 359.80°, block 5 wraps to 0.20°.
	az := steppedAzimuths(35820, 40)
	data := buildTestPacket(upperFlags(), az, func(b, i int) uint16 { return 0 })
	var pkt Packet
	require.NoError(t, ParsePacket(data, &pkt))

	var interp AzimuthInterpolator
	for i := 0; i < BLOCKS_PER_PACKET; i++ {
		first, second := interp.Block(&pkt, i)
		assert.GreaterOrEqual(t, first, 0.0)
		assert.Less(t, first, 360.0)
		assert.GreaterOrEqual(t, second, 0.0)
		assert.Less(t, second, 360.0)

		half := math.Mod(second-first+360.0, 360.0)
		assert.InDelta(t, 0.2, half, 1e-9, "block %d", i)
	}

	first, second := interp.Block(&pkt, 4)
	assert.InDelta(t, 359.8, first, 1e-9)
	assert.InDelta(t, 0.0, math.Min(second, 360.0-second), 1e-9, "second half lands on the 0°/360° seam")
}

func TestAzimuthInterpolationLastBlockExtrapolates(t *testing.T) {
	az := steppedAzimuths(0, 20)
	az[11] = az[10] + 60 // irregular spacing on the last block only
	data := buildTestPacket(upperFlags(), az, func(b, i int) uint16 { return 0 })
	var pkt Packet
	require.NoError(t, ParsePacket(data, &pkt))

	var interp AzimuthInterpolator
	for i := 0; i < BLOCKS_PER_PACKET-1; i++ {
		interp.Block(&pkt, i)
	}
	// Block 10 → 11 delta is 0.6°, so the extrapolated half delta is 0.3°.
	first, second := interp.Block(&pkt, 11)
	assert.InDelta(t, 0.3, interp.HalfDelta(), 1e-9)
	assert.InDelta(t, first+0.3, second, 1e-9)

	interp.Reset()
	assert.Zero(t, interp.HalfDelta())
}

func TestSensorOrderRoundTrip(t *testing.T) {
	var byLaser [VLP16_FIRING_SIZE]uint16
	for i := range byLaser {
		byLaser[i] = uint16(100 + i)
	}

	var byAngle, restored [VLP16_FIRING_SIZE]uint16
	ReorderVLP16(&byAngle, &byLaser)
	RestoreVLP16(&restored, &byAngle)

	assert.Equal(t, byLaser, restored)
	assert.Equal(t, [VLP16_FIRING_SIZE]uint16{100, 102, 104, 106, 108, 110, 112, 114, 101, 103, 105, 107, 109, 111, 113, 115}, byAngle)
}

func TestInverseSensorOrder(t *testing.T) {
	for pos, id := range SensorOrder16 {
		assert.Equal(t, pos, InverseSensorOrder16[id])
	}
}
