package parse

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestPacket creates a 1206-byte packet with the given block azimuths (0.01°
// units). Every return gets distance ret(block, i) and intensity i.
func buildTestPacket(flags [BLOCKS_PER_PACKET]uint16, azimuths [BLOCKS_PER_PACKET]uint16, ret func(block, i int) uint16) []byte {
	data := make([]byte, PACKET_SIZE)
	for b := 0; b < BLOCKS_PER_PACKET; b++ {
		off := b * BLOCK_SIZE
		binary.LittleEndian.PutUint16(data[off:], flags[b])
		binary.LittleEndian.PutUint16(data[off+2:], azimuths[b])
		pos := off + FLAG_SIZE + AZIMUTH_SIZE
		for i := 0; i < RETURNS_PER_BLOCK; i++ {
			binary.LittleEndian.PutUint16(data[pos:], ret(b, i))
			data[pos+2] = uint8(i)
			pos += BYTES_PER_RETURN
		}
	}
	binary.LittleEndian.PutUint32(data[TAIL_START:], 123456)
	data[TAIL_START+4] = 0x37
	data[TAIL_START+5] = 0x22
	return data
}

func upperFlags() [BLOCKS_PER_PACKET]uint16 {
	var f [BLOCKS_PER_PACKET]uint16
	for i := range f {
		f[i] = UPPER_BLOCK_FLAG
	}
	return f
}

func steppedAzimuths(start, step uint16) [BLOCKS_PER_PACKET]uint16 {
	var az [BLOCKS_PER_PACKET]uint16
	for i := range az {
		az[i] = uint16((int(start) + i*int(step)) % ROTATION_MAX_UNITS)
	}
	return az
}

func TestPacketLayoutConstants(t *testing.T) {
	assert.Equal(t, 100, BLOCK_SIZE)
	assert.Equal(t, 1200, TAIL_START)
	assert.Equal(t, 6, TAIL_SIZE)
	assert.Equal(t, PACKET_SIZE, BLOCKS_PER_PACKET*BLOCK_SIZE+TAIL_SIZE)
}

func TestParsePacket(t *testing.T) {
	data := buildTestPacket(upperFlags(), steppedAzimuths(100, 20), func(b, i int) uint16 {
		return uint16(1000 + b*32 + i)
	})

	var pkt Packet
	require.NoError(t, ParsePacket(data, &pkt))

	assert.Equal(t, uint32(123456), pkt.Timestamp)
	assert.Equal(t, uint8(0x37), pkt.ReturnMode)
	assert.Equal(t, uint8(0x22), pkt.ProductID)

	for b := range pkt.Blocks {
		block := &pkt.Blocks[b]
		assert.Equal(t, b, block.Index())
		assert.Equal(t, uint16(UPPER_BLOCK_FLAG), block.Flag)
		assert.Equal(t, uint16(100+b*20), block.Azimuth)
		for i, r := range block.Returns {
			assert.Equal(t, uint16(1000+b*32+i), r.Distance)
			assert.Equal(t, uint8(i), r.Intensity)
		}
	}
}

func TestParsePacketIsLittleEndian(t *testing.T) {
	data := make([]byte, PACKET_SIZE)
	// Block 0: flag bytes ff dd (lower bank), azimuth bytes 0x28 0x23 = 9000 (90.00°)
	copy(data[0:4], []byte{0xff, 0xdd, 0x28, 0x23})
	// First return: 0xf4 0x01 = 500 → 1.0 m on a VLP-16
	copy(data[4:7], []byte{0xf4, 0x01, 0x7f})

	var pkt Packet
	require.NoError(t, ParsePacket(data, &pkt))
	block := &pkt.Blocks[0]
	assert.True(t, block.IsLower())
	assert.InDelta(t, 90.0, block.AzimuthDegrees(), 1e-9)
	assert.Equal(t, uint16(500), block.Returns[0].Distance)
	assert.Equal(t, uint8(0x7f), block.Returns[0].Intensity)
	assert.InDelta(t, 1.0, VLP16Range(block.Returns[0].Distance), 1e-12)
}

func TestParsePacketRejectsWrongSize(t *testing.T) {
	good := buildTestPacket(upperFlags(), steppedAzimuths(0, 10), func(b, i int) uint16 { return 42 })

	var pkt Packet
	require.NoError(t, ParsePacket(good, &pkt))
	before := pkt

	for _, n := range []int{0, 1, PACKET_SIZE - 1, PACKET_SIZE + 1, 1262} {
		bad := make([]byte, n)
		err := ParsePacket(bad, &pkt)
		require.Error(t, err, "size %d", n)
		assert.True(t, errors.Is(err, ErrMalformedPacket))
		assert.Equal(t, before, pkt, "rejected packet of %d bytes must not modify state", n)
	}
}

func TestChannelIDByBank(t *testing.T) {
	upper := Block{Flag: UPPER_BLOCK_FLAG}
	lower := Block{Flag: LOWER_BLOCK_FLAG}
	other := Block{Flag: 0x1234}

	assert.Equal(t, 5, upper.ChannelID(5))
	assert.Equal(t, 37, lower.ChannelID(5))
	assert.Equal(t, 63, lower.ChannelID(31))
	assert.Equal(t, 5, other.ChannelID(5), "anything but 0xddff selects the upper bank")
}

func TestRangeConversions(t *testing.T) {
	assert.InDelta(t, 2.0, VLP16Range(1000), 1e-12)
	assert.InDelta(t, 2.0, HDL64Range(1000), 1e-12)
	assert.InDelta(t, 131.07, VLP16Range(65535), 1e-9)
}

func TestAzimuthDegreesRange(t *testing.T) {
	for _, raw := range []uint16{0, 1, 17999, 35999, 36000, 36001, 65535} {
		b := Block{Azimuth: raw}
		az := b.AzimuthDegrees()
		assert.GreaterOrEqual(t, az, 0.0)
		assert.Less(t, az, 360.0, "raw %d", raw)
	}
}
