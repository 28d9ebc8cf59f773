package encode

import (
	"encoding/binary"
	"fmt"
)

// CompactFrame is one compact record for a revolution. Payload holds
// EntriesPerAzimuth little-endian uint16 words per azimuth step, in ascending
// physical channel order. A CompactFrame owns its payload and is never modified
// after emission.
type CompactFrame struct {
	RunID             string
	Seq               uint64
	StartAzimuth      float64 // degrees
	EndAzimuth        float64 // degrees
	EntriesPerAzimuth int     // 16 or 64
	Payload           []byte
	IntensityBits     uint8
	DistanceEncoding  DistanceEncoding
	WithIntensity     bool
}

// Steps is the number of complete azimuth steps in the payload.
func (f *CompactFrame) Steps() int {
	if f.EntriesPerAzimuth == 0 {
		return 0
	}
	return len(f.Payload) / (2 * f.EntriesPerAzimuth)
}

// Word returns the packed value of entry e at azimuth step s.
func (f *CompactFrame) Word(s, e int) uint16 {
	off := 2 * (s*f.EntriesPerAzimuth + e)
	return binary.LittleEndian.Uint16(f.Payload[off:])
}

// CompactBuilder collects the words of one azimuth step, indexed by channel,
// and appends them to the payload once the last channel of the step arrives.
type CompactBuilder struct {
	group   []uint16
	order   []int // payload position -> channel; nil keeps channel order
	payload []byte
}

// NewCompactBuilder sizes the payload for maxPoints words plus one spare step so
// the hot path never grows it.
func NewCompactBuilder(entries int, order []int, maxPoints int) (*CompactBuilder, error) {
	if entries <= 0 {
		return nil, fmt.Errorf("compact builder needs a positive group size, got %d", entries)
	}
	if order != nil && len(order) != entries {
		return nil, fmt.Errorf("compact order has %d entries, group size is %d", len(order), entries)
	}
	return &CompactBuilder{
		group:   make([]uint16, entries),
		order:   order,
		payload: make([]byte, 0, 2*(maxPoints+entries)),
	}, nil
}

// Set stores word for channel and flushes the step when channel is the last one.
// It reports whether a flush happened.
func (b *CompactBuilder) Set(channel int, word uint16) bool {
	if channel < 0 || channel >= len(b.group) {
		return false
	}
	b.group[channel] = word
	if channel != len(b.group)-1 {
		return false
	}
	for pos := range b.group {
		ch := pos
		if b.order != nil {
			ch = b.order[pos]
		}
		b.payload = binary.LittleEndian.AppendUint16(b.payload, b.group[ch])
	}
	return true
}

// Bytes returns the flushed payload. The slice is only valid until Reset.
func (b *CompactBuilder) Bytes() []byte { return b.payload }

// Entries is the group size.
func (b *CompactBuilder) Entries() int { return len(b.group) }

// Reset empties the payload. The partially filled step is kept, matching the
// sensor's behaviour of spreading a firing across a revolution boundary.
func (b *CompactBuilder) Reset() { b.payload = b.payload[:0] }

// CompactOptions configures a CompactEncoder.
type CompactOptions struct {
	Mode              IntensityMode
	IntensityBits     uint8
	Distance          DistanceEncoding
	EntriesPerAzimuth int
	Order             []int // payload position -> channel, nil for identity
	MaxPoints         int
}

// CompactEncoder packs channel firings into the plain and/or combined builders
// selected by the intensity mode, and counts firings against its own capacity.
type CompactEncoder struct {
	opts     CompactOptions
	plain    *CompactBuilder
	combined *CompactBuilder
	count    int
	records  []CompactFrame
}

// NewCompactEncoder validates opts and pre-allocates the builders.
func NewCompactEncoder(opts CompactOptions) (*CompactEncoder, error) {
	if opts.Mode > IntensityBoth {
		return nil, fmt.Errorf("invalid intensity mode %d", opts.Mode)
	}
	if opts.Distance > DistanceFine2mm {
		return nil, fmt.Errorf("invalid distance encoding %d", opts.Distance)
	}
	if opts.Mode.Combined() && (opts.IntensityBits < MinIntensityBits || opts.IntensityBits > MaxIntensityBits) {
		return nil, fmt.Errorf("intensity bits must be in [%d,%d], got %d", MinIntensityBits, MaxIntensityBits, opts.IntensityBits)
	}
	if opts.MaxPoints <= 0 {
		return nil, fmt.Errorf("max points must be positive, got %d", opts.MaxPoints)
	}

	e := &CompactEncoder{opts: opts, records: make([]CompactFrame, 0, 2)}
	var err error
	if opts.Mode.Plain() {
		if e.plain, err = NewCompactBuilder(opts.EntriesPerAzimuth, opts.Order, opts.MaxPoints); err != nil {
			return nil, err
		}
	}
	if opts.Mode.Combined() {
		if e.combined, err = NewCompactBuilder(opts.EntriesPerAzimuth, opts.Order, opts.MaxPoints); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Options returns the encoder configuration.
func (e *CompactEncoder) Options() CompactOptions { return e.opts }

// Add records one firing. Every firing counts once, whether or not it is a
// valid return and regardless of how many records the mode produces.
func (e *CompactEncoder) Add(channel int, raw uint16, intensity uint8) {
	d := PackDistance(raw, e.opts.Distance)
	if e.plain != nil {
		e.plain.Set(channel, d)
	}
	if e.combined != nil {
		e.combined.Set(channel, PackIntensity(d, intensity, e.opts.IntensityBits))
	}
	e.count++
}

// Count is the number of firings recorded since the last Reset.
func (e *CompactEncoder) Count() int { return e.count }

// Full reports whether the capacity has been reached.
func (e *CompactEncoder) Full() bool { return e.count >= e.opts.MaxPoints }

// Records builds the records for the current revolution: one for modes none and
// combined, two (plain first) for both. Payloads are copied, so the returned
// frames stay valid after Reset; the slice itself is reused by the next call.
func (e *CompactEncoder) Records(start, end float64) []CompactFrame {
	e.records = e.records[:0]
	if e.plain != nil {
		e.records = append(e.records, e.record(start, end, e.plain, false))
	}
	if e.combined != nil {
		e.records = append(e.records, e.record(start, end, e.combined, true))
	}
	return e.records
}

func (e *CompactEncoder) record(start, end float64, b *CompactBuilder, withIntensity bool) CompactFrame {
	payload := make([]byte, len(b.Bytes()))
	copy(payload, b.Bytes())
	return CompactFrame{
		StartAzimuth:      start,
		EndAzimuth:        end,
		EntriesPerAzimuth: b.Entries(),
		Payload:           payload,
		IntensityBits:     e.opts.IntensityBits,
		DistanceEncoding:  e.opts.Distance,
		WithIntensity:     withIntensity,
	}
}

// Reset clears the payloads and the capacity counter.
func (e *CompactEncoder) Reset() {
	if e.plain != nil {
		e.plain.Reset()
	}
	if e.combined != nil {
		e.combined.Reset()
	}
	e.count = 0
}
