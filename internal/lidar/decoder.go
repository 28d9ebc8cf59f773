// Package lidar decodes Velodyne VLP-16 and HDL-64E packet streams into
// revolutions of Cartesian points.
//
// A Decoder is fed one 1206-byte packet at a time through Decode. It parses the
// packet into a reused buffer, projects every firing through the sensor's
// calibration, accumulates points until the azimuth wraps, and then hands the
// revolution to the dense shared buffer and the compact encoder. Decode never
// fails: malformed packets, a detached output buffer and capacity overflow are
// absorbed and counted in Stats.
package lidar

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/frames"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/geometry"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/output"
	"github.com/banshee-data/velodyne.proxy/internal/lidar/parse"
	"github.com/google/uuid"
)

// Default per-revolution capacities. A VLP-16 at 10 Hz fires about 28,800 times
// per revolution; an HDL-64E at 10 Hz about 133,000, of which ~100k are valid.
const (
	DefaultMaxPointsVLP16 = 30000
	DefaultMaxPointsHDL64 = 101000
)

// State is the decoder lifecycle. There is no terminal state: the decoder runs
// until packets stop arriving.
type State int32

const (
	AwaitingFirstPacket State = iota
	Accumulating
)

func (s State) String() string {
	switch s {
	case AwaitingFirstPacket:
		return "awaiting-first-packet"
	case Accumulating:
		return "accumulating"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Config holds the runtime parameters of a Decoder.
type Config struct {
	MaxPoints        int // per revolution, per path
	Dense            bool
	Compact          bool
	IntensityMode    encode.IntensityMode
	IntensityBits    uint8
	DistanceEncoding encode.DistanceEncoding
}

// DefaultConfig returns a configuration with both paths enabled, distance-only
// compact records at 1 cm resolution.
func DefaultConfig(model calibration.Model) Config {
	cfg := Config{
		MaxPoints:        DefaultMaxPointsVLP16,
		Dense:            true,
		Compact:          true,
		IntensityMode:    encode.IntensityNone,
		IntensityBits:    3,
		DistanceEncoding: encode.DistanceCoarse1cm,
	}
	if model == calibration.ModelHDL64 {
		cfg.MaxPoints = DefaultMaxPointsHDL64
	}
	return cfg
}

// Stats is a snapshot of the decoder counters.
type Stats struct {
	RunID             string
	State             State
	Packets           uint64 // accepted packets
	Malformed         uint64 // packets rejected on size
	Frames            uint64 // revolutions emitted
	DenseFrames       uint64 // dense copy-outs published
	CompactRecords    uint64 // compact records published
	DenseOverflows    uint64 // revolutions that hit the dense capacity
	CompactOverflows  uint64 // revolutions that hit the compact capacity
	OutputUnavailable uint64 // dense frames dropped on a detached buffer
	LastPoints        uint64 // points in the most recent dense frame
}

type counters struct {
	packets           atomic.Uint64
	malformed         atomic.Uint64
	frames            atomic.Uint64
	denseFrames       atomic.Uint64
	compactRecords    atomic.Uint64
	denseOverflows    atomic.Uint64
	compactOverflows  atomic.Uint64
	outputUnavailable atomic.Uint64
	lastPoints        atomic.Uint64
}

// Decoder turns a packet stream into emitted revolutions. Decode and Flush must
// be called from a single goroutine; Stats may be called from any.
type Decoder struct {
	model     calibration.Model
	cfg       Config
	runID     string
	projector geometry.Projector
	acc       *frames.Accumulator
	buffer    *output.SharedBuffer
	pub       output.Publisher

	pkt    parse.Packet
	interp parse.AzimuthInterpolator
	seq    uint64
	state  atomic.Int32
	stats  counters

	decodeBlocks func()
}

// NewVLP16Decoder builds a decoder for the 16-channel sensor. buffer may be nil
// when cfg.Dense is false; pub may be nil to discard frame metadata.
func NewVLP16Decoder(cfg Config, table *calibration.Table, buffer *output.SharedBuffer, pub output.Publisher) (*Decoder, error) {
	p, err := geometry.NewVerticalProjector(table)
	if err != nil {
		return nil, err
	}
	d, err := newDecoder(calibration.ModelVLP16, cfg, p, parse.SensorOrder16[:], buffer, pub)
	if err != nil {
		return nil, err
	}
	d.decodeBlocks = d.decodeVLP16
	return d, nil
}

// NewHDL64Decoder builds a decoder for the 64-channel sensor.
func NewHDL64Decoder(cfg Config, table *calibration.Table, buffer *output.SharedBuffer, pub output.Publisher) (*Decoder, error) {
	p, err := geometry.NewFullProjector(table)
	if err != nil {
		return nil, err
	}
	d, err := newDecoder(calibration.ModelHDL64, cfg, p, nil, buffer, pub)
	if err != nil {
		return nil, err
	}
	d.decodeBlocks = d.decodeHDL64
	return d, nil
}

// NewDecoder picks the constructor matching the table's model.
func NewDecoder(cfg Config, table *calibration.Table, buffer *output.SharedBuffer, pub output.Publisher) (*Decoder, error) {
	if table == nil {
		return nil, fmt.Errorf("decoder needs a calibration table")
	}
	switch table.Model {
	case calibration.ModelVLP16:
		return NewVLP16Decoder(cfg, table, buffer, pub)
	case calibration.ModelHDL64:
		return NewHDL64Decoder(cfg, table, buffer, pub)
	}
	return nil, fmt.Errorf("unsupported sensor model %v", table.Model)
}

func newDecoder(model calibration.Model, cfg Config, p geometry.Projector, order []int, buffer *output.SharedBuffer, pub output.Publisher) (*Decoder, error) {
	if cfg.MaxPoints <= 0 {
		return nil, fmt.Errorf("max points must be positive, got %d", cfg.MaxPoints)
	}
	if cfg.Dense {
		if buffer == nil {
			return nil, fmt.Errorf("dense output needs a shared buffer")
		}
		if need := encode.DenseSize(cfg.MaxPoints); buffer.Size() < need {
			return nil, fmt.Errorf("shared buffer %q holds %d bytes, %d points need %d", buffer.Name(), buffer.Size(), cfg.MaxPoints, need)
		}
	}
	if pub == nil {
		pub = output.Discard{}
	}

	var compact *encode.CompactEncoder
	if cfg.Compact {
		var err error
		compact, err = encode.NewCompactEncoder(encode.CompactOptions{
			Mode:              cfg.IntensityMode,
			IntensityBits:     cfg.IntensityBits,
			Distance:          cfg.DistanceEncoding,
			EntriesPerAzimuth: model.Channels(),
			Order:             order,
			MaxPoints:         cfg.MaxPoints,
		})
		if err != nil {
			return nil, fmt.Errorf("compact encoder: %w", err)
		}
	}

	d := &Decoder{
		model:     model,
		cfg:       cfg,
		runID:     uuid.NewString(),
		projector: p,
		buffer:    buffer,
		pub:       pub,
	}
	acc, err := frames.NewAccumulator(cfg.MaxPoints, cfg.Dense, compact, frames.EmitterFunc(d.emit))
	if err != nil {
		return nil, err
	}
	d.acc = acc
	return d, nil
}

// Model is the sensor this decoder was built for.
func (d *Decoder) Model() calibration.Model { return d.model }

// RunID identifies this decoder instance on every emitted frame.
func (d *Decoder) RunID() string { return d.runID }

// State returns the lifecycle state.
func (d *Decoder) State() State { return State(d.state.Load()) }

// Decode processes one packet. Payloads that are not exactly 1206 bytes are
// counted and otherwise ignored.
func (d *Decoder) Decode(packet []byte) {
	if err := parse.ParsePacket(packet, &d.pkt); err != nil {
		d.stats.malformed.Add(1)
		Diagf("dropping packet: %v", err)
		return
	}
	d.stats.packets.Add(1)
	d.state.Store(int32(Accumulating))
	d.decodeBlocks()
}

// decodeVLP16 walks the 12 blocks of a VLP-16 packet. Each block holds two
// firing sequences of 16 lasers; the second sequence uses the interpolated azimuth.
func (d *Decoder) decodeVLP16() {
	for i := range d.pkt.Blocks {
		b := &d.pkt.Blocks[i]
		first, second := d.interp.Block(&d.pkt, i)
		d.acc.Observe(first)
		if d.acc.Exhausted() {
			d.acc.Observe(second)
			continue
		}

		secondHalf := false
		for j := 0; j < parse.RETURNS_PER_BLOCK; j++ {
			az := first
			if j >= parse.VLP16_FIRING_SIZE {
				if !secondHalf {
					d.acc.Observe(second)
					secondHalf = true
				}
				az = second
			}
			r := b.Returns[j]
			d.sample(j%parse.VLP16_FIRING_SIZE, az, r, parse.VLP16Range(r.Distance))
			if d.acc.Exhausted() {
				break
			}
		}
		if !secondHalf {
			d.acc.Observe(second)
		}
	}
}

// decodeHDL64 walks the 12 blocks of an HDL-64E packet. The block flag selects
// the laser bank; the azimuth applies to all 32 returns.
func (d *Decoder) decodeHDL64() {
	for i := range d.pkt.Blocks {
		b := &d.pkt.Blocks[i]
		az := b.AzimuthDegrees()
		d.acc.Observe(az)
		if d.acc.Exhausted() {
			continue
		}
		for j := 0; j < parse.RETURNS_PER_BLOCK; j++ {
			r := b.Returns[j]
			d.sample(b.ChannelID(j), az, r, parse.HDL64Range(r.Distance))
			if d.acc.Exhausted() {
				break
			}
		}
	}
}

// sample feeds one firing to both paths. The dense path keeps only projected
// points beyond the minimum range; the compact path records every firing.
func (d *Decoder) sample(channel int, az float64, r parse.Return, rng float64) {
	if d.acc.AcceptsPoints() {
		if p, ok := d.projector.Project(parse.Sample{
			Channel:   channel,
			Raw:       r.Distance,
			Range:     rng,
			Azimuth:   az,
			Intensity: r.Intensity,
		}); ok {
			d.acc.AddPoint(p)
		}
	}
	if d.acc.AcceptsFirings() {
		d.acc.AddCompact(channel, r.Distance, r.Intensity)
	}
}

// emit is called by the accumulator on every wrap. The shared buffer lock is
// held only inside Write.
func (d *Decoder) emit(rev *frames.Revolution) {
	d.seq++
	d.stats.frames.Add(1)
	if rev.DenseFull {
		d.stats.denseOverflows.Add(1)
	}
	if rev.CompactFull {
		d.stats.compactOverflows.Add(1)
	}

	if rev.Dense != nil && rev.Dense.PointCount() > 0 {
		points := rev.Dense.Points
		n, err := d.buffer.Write(func(dst []byte) (int, error) {
			return encode.EncodeDense(points, dst)
		})
		if err != nil {
			d.stats.outputUnavailable.Add(1)
			opsEvery("dense-drop", 5*time.Second, "dropping dense frame %d (%d points): %v", d.seq, len(points), err)
		} else {
			f := encode.NewDenseFrame(d.buffer.Name(), len(points))
			f.ByteLength = n
			f.RunID = d.runID
			f.Seq = d.seq
			f.StartAzimuth = rev.StartAzimuth
			f.EndAzimuth = rev.EndAzimuth
			d.stats.denseFrames.Add(1)
			d.stats.lastPoints.Store(uint64(len(points)))
			d.pub.PublishDense(f)
		}
	}

	if rev.Compact != nil && rev.Compact.Count() > 0 {
		for _, rec := range rev.Compact.Records(rev.StartAzimuth, rev.EndAzimuth) {
			rec.RunID = d.runID
			rec.Seq = d.seq
			d.stats.compactRecords.Add(1)
			d.pub.PublishCompact(rec)
		}
	}

	Tracef("frame %d: %.2f°→%.2f° dense=%d compact=%d", d.seq, rev.StartAzimuth, rev.EndAzimuth,
		denseCount(rev), compactCount(rev))
}

func denseCount(rev *frames.Revolution) int {
	if rev.Dense == nil {
		return 0
	}
	return rev.Dense.PointCount()
}

func compactCount(rev *frames.Revolution) int {
	if rev.Compact == nil {
		return 0
	}
	return rev.Compact.Count()
}

// Flush emits the revolution in progress, e.g. at the end of a capture.
func (d *Decoder) Flush() bool {
	return d.acc.Flush()
}

// Stats returns a snapshot of the counters.
func (d *Decoder) Stats() Stats {
	return Stats{
		RunID:             d.runID,
		State:             d.State(),
		Packets:           d.stats.packets.Load(),
		Malformed:         d.stats.malformed.Load(),
		Frames:            d.stats.frames.Load(),
		DenseFrames:       d.stats.denseFrames.Load(),
		CompactRecords:    d.stats.compactRecords.Load(),
		DenseOverflows:    d.stats.denseOverflows.Load(),
		CompactOverflows:  d.stats.compactOverflows.Load(),
		OutputUnavailable: d.stats.outputUnavailable.Load(),
		LastPoints:        d.stats.lastPoints.Load(),
	}
}
