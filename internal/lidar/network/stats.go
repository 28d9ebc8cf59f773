package network

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// PacketStatsInterface provides packet statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	LogStats()
}

// PacketStats tracks packet statistics with thread-safe operations
type PacketStats struct {
	mu           sync.Mutex
	packetCount  int64
	byteCount    int64
	droppedCount int64
	lastReset    time.Time

	// Frames, when set, reports revolutions emitted since start. The
	// difference between two reports is logged as a rate.
	Frames     func() uint64
	lastFrames uint64
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	return &PacketStats{
		lastReset: time.Now(),
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDropped increments the count of datagrams dropped on forward
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// Snapshot is one reporting window of packet statistics.
type Snapshot struct {
	Packets  int64
	Bytes    int64
	Dropped  int64
	Frames   uint64
	Duration time.Duration
}

// GetAndReset returns current stats and resets counters
func (ps *PacketStats) GetAndReset() Snapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	s := Snapshot{
		Packets:  ps.packetCount,
		Bytes:    ps.byteCount,
		Dropped:  ps.droppedCount,
		Duration: now.Sub(ps.lastReset),
	}
	if ps.Frames != nil {
		total := ps.Frames()
		s.Frames = total - ps.lastFrames
		ps.lastFrames = total
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.droppedCount = 0
	ps.lastReset = now
	return s
}

// LogStats logs the rates for the window since the last call.
func (ps *PacketStats) LogStats() {
	s := ps.GetAndReset()
	if s.Packets == 0 && s.Dropped == 0 {
		return
	}
	log.Print(s.String())
}

func (s Snapshot) String() string {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	msg := fmt.Sprintf("Lidar stats (/sec): %.2f MB, %.1f packets",
		float64(s.Bytes)/secs/(1024*1024), float64(s.Packets)/secs)
	if s.Frames > 0 {
		msg += fmt.Sprintf(", %.1f frames", float64(s.Frames)/secs)
	}
	if s.Dropped > 0 {
		msg += fmt.Sprintf(", %s dropped on forward", FormatWithCommas(s.Dropped))
	}
	return msg
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddDropped()         {}
func (n *noopStats) LogStats()           {}
