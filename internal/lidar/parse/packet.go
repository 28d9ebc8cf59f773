package parse

import (
	"encoding/binary"
	"errors"
	"fmt"
)

/*
Velodyne VLP-16 / HDL-64E Data Packet Layout

Both sensors emit 1206-byte UDP payloads (port 2368) with an identical framing:

PACKET STRUCTURE (1206 bytes total):
├── Data Blocks (1200 bytes) - 12 blocks × 100 bytes each, starting at offset 0
│   └── Each block: 2-byte flag + 2-byte azimuth + 32 returns × 3 bytes (distance + intensity)
└── Tail (6 bytes) - 4-byte timestamp (µs past the hour) + 2 factory bytes

All 16-bit fields are little-endian.

The block flag differs per sensor:
- VLP-16: always 0xFFEE. Each block holds two firing sequences of 16 lasers, but the
  azimuth is reported once per block; the second sequence is interpolated.
- HDL-64E: 0xFFEE selects the upper laser bank (lasers 0-31), 0xFFDD the lower bank
  (lasers 32-63). Azimuth applies to all 32 returns of the block.

Distances are 2 mm per unit on both sensors.
*/

// Velodyne packet structure constants
const (
	PACKET_SIZE       = 1206 // UDP payload size in bytes
	BLOCKS_PER_PACKET = 12   // Data blocks per packet
	RETURNS_PER_BLOCK = 32   // Laser returns per block
	BYTES_PER_RETURN  = 3    // 2 bytes distance + 1 byte intensity
	FLAG_SIZE         = 2    // Block flag field
	AZIMUTH_SIZE      = 2    // Block azimuth field

	BLOCK_SIZE = FLAG_SIZE + AZIMUTH_SIZE + RETURNS_PER_BLOCK*BYTES_PER_RETURN // 100 bytes
	TAIL_START = BLOCKS_PER_PACKET * BLOCK_SIZE                                  // 1200
	TAIL_SIZE  = PACKET_SIZE - TAIL_START                                         // 6

	UPPER_BLOCK_FLAG = 0xeeff // HDL-64E upper bank / VLP-16 block marker
	LOWER_BLOCK_FLAG = 0xddff // HDL-64E lower bank

	// Physical measurement conversion constants
	AZIMUTH_RESOLUTION        = 0.01  // 0.01 degrees per LSB
	ROTATION_MAX_UNITS        = 36000 // 360.00 degrees
	VLP16_DISTANCE_DIVISOR    = 500.0 // 2 mm per LSB → metres
	HDL64_DISTANCE_RESOLUTION = 0.002 // 0.2 cm per LSB → metres

	// Lasers per VLP-16 firing sequence; a block carries two sequences.
	VLP16_FIRING_SIZE = 16
)

// ErrMalformedPacket is returned for payloads that are not exactly PACKET_SIZE bytes.
var ErrMalformedPacket = errors.New("malformed packet")

// Return is one raw laser measurement inside a block.
type Return struct {
	Distance  uint16 // 2 mm units, 0 = no return
	Intensity uint8  // calibrated reflectivity 0-255
}

// Block is one of the 12 data blocks within a packet.
type Block struct {
	Flag     uint16 // bank selector (HDL-64E) / marker (VLP-16)
	Azimuth  uint16 // 0.01 degree units
	Returns  [RETURNS_PER_BLOCK]Return
	blockIdx int
}

// Packet is a fully decoded data packet. It is designed to be reused: ParsePacket
// overwrites every field so a single value can serve an entire stream.
type Packet struct {
	Blocks     [BLOCKS_PER_PACKET]Block
	Timestamp  uint32 // microseconds past the hour
	ReturnMode uint8  // 0x37 strongest, 0x38 last, 0x39 dual
	ProductID  uint8  // 0x21 HDL-32E, 0x22 VLP-16, ...
}

// ParsePacket decodes data into pkt. The length check happens before any byte is
// read, so a rejected payload leaves pkt untouched.
func ParsePacket(data []byte, pkt *Packet) error {
	if len(data) != PACKET_SIZE {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedPacket, PACKET_SIZE, len(data))
	}

	offset := 0
	for i := range pkt.Blocks {
		parseBlock(data[offset:offset+BLOCK_SIZE], &pkt.Blocks[i])
		pkt.Blocks[i].blockIdx = i
		offset += BLOCK_SIZE
	}

	tail := data[TAIL_START:]
	pkt.Timestamp = binary.LittleEndian.Uint32(tail[0:4])
	pkt.ReturnMode = tail[4]
	pkt.ProductID = tail[5]
	return nil
}

// parseBlock decodes one 100-byte block. The caller guarantees the length.
func parseBlock(data []byte, b *Block) {
	b.Flag = binary.LittleEndian.Uint16(data[0:2])
	b.Azimuth = binary.LittleEndian.Uint16(data[2:4])

	pos := FLAG_SIZE + AZIMUTH_SIZE
	for i := range b.Returns {
		b.Returns[i] = Return{
			Distance:  binary.LittleEndian.Uint16(data[pos : pos+2]),
			Intensity: data[pos+2],
		}
		pos += BYTES_PER_RETURN
	}
}

// Index returns the block's position within its packet.
func (b *Block) Index() int {
	return b.blockIdx
}

// AzimuthDegrees converts the raw azimuth into degrees in [0, 360).
func (b *Block) AzimuthDegrees() float64 {
	return float64(b.Azimuth%ROTATION_MAX_UNITS) * AZIMUTH_RESOLUTION
}

// IsLower reports whether an HDL-64E block carries the lower laser bank.
func (b *Block) IsLower() bool {
	return b.Flag == LOWER_BLOCK_FLAG
}

// ChannelID maps a return index within an HDL-64E block to its physical laser.
func (b *Block) ChannelID(i int) int {
	if b.IsLower() {
		return i + RETURNS_PER_BLOCK
	}
	return i
}

// VLP16Range converts a raw VLP-16 distance into metres.
func VLP16Range(raw uint16) float64 {
	return float64(raw) / VLP16_DISTANCE_DIVISOR
}

// HDL64Range converts a raw HDL-64E distance into metres, before the per-laser
// distance correction is applied.
func HDL64Range(raw uint16) float64 {
	return float64(raw) * HDL64_DISTANCE_RESOLUTION
}

// Sample is one decoded laser firing, consumed immediately by a projector.
type Sample struct {
	Channel   int     // physical laser ID
	Raw       uint16  // raw distance, 2 mm units
	Range     float64 // metres
	Azimuth   float64 // degrees, [0, 360)
	Intensity uint8
}
