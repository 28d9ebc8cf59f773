package encode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

/*
Compact record datagram layout (all little-endian):

	offset size field
	0      4    magic "VCPC"
	4      1    version (1)
	5      1    flags (bit 0: payload carries intensity)
	6      1    intensity bits
	7      1    distance encoding (0 coarse 1 cm, 1 fine 2 mm)
	8      16   run ID (UUID bytes)
	24     8    sequence number
	32     4    start azimuth, float32 degrees
	36     4    end azimuth, float32 degrees
	40     2    entries per azimuth step
	42     2    reserved
	44     4    total payload length
	48     4    offset of this chunk within the payload
	52     4    chunk length
	56     ...  chunk bytes

A record larger than one datagram is split on azimuth-step boundaries.
*/
const (
	RECORD_MAGIC       = "VCPC"
	RECORD_VERSION     = 1
	RECORD_HEADER_SIZE = 56

	recordFlagIntensity = 0x01
)

var ErrBadRecord = errors.New("bad compact record")

// CompactChunk is one parsed datagram.
type CompactChunk struct {
	Frame  CompactFrame // Payload holds only this chunk
	Offset int
	Total  int
}

// SplitCompactRecord encodes f into one or more datagrams of at most maxDatagram bytes.
func SplitCompactRecord(f *CompactFrame, maxDatagram int) ([][]byte, error) {
	step := 2 * f.EntriesPerAzimuth
	if step <= 0 {
		return nil, fmt.Errorf("%w: entries per azimuth is %d", ErrBadRecord, f.EntriesPerAzimuth)
	}
	room := (maxDatagram - RECORD_HEADER_SIZE) / step * step
	if room <= 0 {
		return nil, fmt.Errorf("%w: datagram size %d cannot hold one azimuth step", ErrBadRecord, maxDatagram)
	}

	var runID uuid.UUID
	if f.RunID != "" {
		id, err := uuid.Parse(f.RunID)
		if err != nil {
			return nil, fmt.Errorf("%w: run ID: %v", ErrBadRecord, err)
		}
		runID = id
	}

	total := len(f.Payload)
	out := make([][]byte, 0, total/room+1)
	// An empty payload still yields one datagram so the revolution is visible downstream.
	for off := 0; ; {
		n := total - off
		if n > room {
			n = room
		}
		out = append(out, appendChunk(make([]byte, 0, RECORD_HEADER_SIZE+n), f, runID, off, f.Payload[off:off+n]))
		off += n
		if off >= total {
			return out, nil
		}
	}
}

func appendChunk(b []byte, f *CompactFrame, runID uuid.UUID, off int, chunk []byte) []byte {
	var flags byte
	if f.WithIntensity {
		flags |= recordFlagIntensity
	}
	b = append(b, RECORD_MAGIC...)
	b = append(b, RECORD_VERSION, flags, f.IntensityBits, byte(f.DistanceEncoding))
	b = append(b, runID[:]...)
	b = binary.LittleEndian.AppendUint64(b, f.Seq)
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(f.StartAzimuth)))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(f.EndAzimuth)))
	b = binary.LittleEndian.AppendUint16(b, uint16(f.EntriesPerAzimuth))
	b = binary.LittleEndian.AppendUint16(b, 0)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(f.Payload)))
	b = binary.LittleEndian.AppendUint32(b, uint32(off))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(chunk)))
	return append(b, chunk...)
}

// ParseCompactChunk decodes one datagram. The chunk payload aliases data.
func ParseCompactChunk(data []byte) (CompactChunk, error) {
	if len(data) < RECORD_HEADER_SIZE {
		return CompactChunk{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrBadRecord, len(data))
	}
	if string(data[0:4]) != RECORD_MAGIC {
		return CompactChunk{}, fmt.Errorf("%w: magic %q", ErrBadRecord, data[0:4])
	}
	if data[4] != RECORD_VERSION {
		return CompactChunk{}, fmt.Errorf("%w: version %d", ErrBadRecord, data[4])
	}

	var runID uuid.UUID
	copy(runID[:], data[8:24])
	n := int(binary.LittleEndian.Uint32(data[52:56]))
	if len(data) != RECORD_HEADER_SIZE+n {
		return CompactChunk{}, fmt.Errorf("%w: chunk length %d does not match datagram size %d", ErrBadRecord, n, len(data))
	}

	c := CompactChunk{
		Frame: CompactFrame{
			Seq:               binary.LittleEndian.Uint64(data[24:32]),
			StartAzimuth:      float64(math.Float32frombits(binary.LittleEndian.Uint32(data[32:36]))),
			EndAzimuth:        float64(math.Float32frombits(binary.LittleEndian.Uint32(data[36:40]))),
			EntriesPerAzimuth: int(binary.LittleEndian.Uint16(data[40:42])),
			Payload:           data[RECORD_HEADER_SIZE:],
			IntensityBits:     data[6],
			DistanceEncoding:  DistanceEncoding(data[7]),
			WithIntensity:     data[5]&recordFlagIntensity != 0,
		},
		Total:  int(binary.LittleEndian.Uint32(data[44:48])),
		Offset: int(binary.LittleEndian.Uint32(data[48:52])),
	}
	if runID != uuid.Nil {
		c.Frame.RunID = runID.String()
	}
	if c.Offset+n > c.Total {
		return CompactChunk{}, fmt.Errorf("%w: chunk [%d,%d) exceeds payload length %d", ErrBadRecord, c.Offset, c.Offset+n, c.Total)
	}
	return c, nil
}

// AssembleCompact joins the chunks of one record back into a CompactFrame.
func AssembleCompact(chunks []CompactChunk) (CompactFrame, error) {
	if len(chunks) == 0 {
		return CompactFrame{}, fmt.Errorf("%w: no chunks", ErrBadRecord)
	}
	sorted := make([]CompactChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	f := sorted[0].Frame
	f.Payload = make([]byte, 0, sorted[0].Total)
	for _, c := range sorted {
		if c.Frame.Seq != f.Seq || c.Frame.RunID != f.RunID || c.Frame.WithIntensity != f.WithIntensity {
			return CompactFrame{}, fmt.Errorf("%w: chunks from different records", ErrBadRecord)
		}
		if c.Offset != len(f.Payload) {
			return CompactFrame{}, fmt.Errorf("%w: gap at offset %d", ErrBadRecord, len(f.Payload))
		}
		f.Payload = append(f.Payload, c.Frame.Payload...)
	}
	if len(f.Payload) != sorted[0].Total {
		return CompactFrame{}, fmt.Errorf("%w: have %d of %d payload bytes", ErrBadRecord, len(f.Payload), sorted[0].Total)
	}
	return f, nil
}
