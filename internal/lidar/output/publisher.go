package output

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
)

// Publisher receives emitted frames. Implementations must not block the caller:
// they are invoked from the decode path.
type Publisher interface {
	PublishDense(f encode.DenseFrame)
	PublishCompact(f encode.CompactFrame)
}

// Multi fans out to several publishers in order.
type Multi []Publisher

func (m Multi) PublishDense(f encode.DenseFrame) {
	for _, p := range m {
		p.PublishDense(f)
	}
}

func (m Multi) PublishCompact(f encode.CompactFrame) {
	for _, p := range m {
		p.PublishCompact(f)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) PublishDense(encode.DenseFrame)     {}
func (Discard) PublishCompact(encode.CompactFrame) {}

// LogPublisher logs a summary of emitted frames at most once per interval.
type LogPublisher struct {
	interval time.Duration
	logger   *log.Logger

	mu          sync.Mutex
	last        time.Time
	dense       int
	compact     int
	points      int
	compactSize int
}

// NewLogPublisher logs through logger, or the standard logger when nil.
func NewLogPublisher(interval time.Duration, logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{interval: interval, logger: logger, last: time.Now()}
}

func (p *LogPublisher) PublishDense(f encode.DenseFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dense++
	p.points += f.Width
	p.maybeLog(f.Seq)
}

func (p *LogPublisher) PublishCompact(f encode.CompactFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.compact++
	p.compactSize += len(f.Payload)
	p.maybeLog(f.Seq)
}

func (p *LogPublisher) maybeLog(seq uint64) {
	now := time.Now()
	if now.Sub(p.last) < p.interval {
		return
	}
	avgPoints := 0
	if p.dense > 0 {
		avgPoints = p.points / p.dense
	}
	p.logger.Printf("Frames: seq=%d dense=%d (avg %d points) compact=%d (%d bytes) in %v",
		seq, p.dense, avgPoints, p.compact, p.compactSize, now.Sub(p.last).Round(time.Millisecond))
	p.last = now
	p.dense, p.compact, p.points, p.compactSize = 0, 0, 0, 0
}

// ChannelPublisher delivers frames on buffered channels without blocking. Frames
// that do not fit are counted and dropped.
type ChannelPublisher struct {
	Dense   chan encode.DenseFrame
	Compact chan encode.CompactFrame
	dropped atomic.Uint64
}

// NewChannelPublisher creates channels with the given buffer size.
func NewChannelPublisher(size int) *ChannelPublisher {
	return &ChannelPublisher{
		Dense:   make(chan encode.DenseFrame, size),
		Compact: make(chan encode.CompactFrame, size),
	}
}

func (p *ChannelPublisher) PublishDense(f encode.DenseFrame) {
	select {
	case p.Dense <- f:
	default:
		p.dropped.Add(1)
	}
}

func (p *ChannelPublisher) PublishCompact(f encode.CompactFrame) {
	select {
	case p.Compact <- f:
	default:
		p.dropped.Add(1)
	}
}

// Dropped is the number of frames that found a full channel.
func (p *ChannelPublisher) Dropped() uint64 { return p.dropped.Load() }
