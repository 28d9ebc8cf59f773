package network

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

// PCAPPacket is one UDP payload read from a capture, with its capture time.
type PCAPPacket struct {
	Data      []byte
	Timestamp time.Time
}

// PCAPReader yields UDP payloads from a capture file.
type PCAPReader interface {
	SetBPFFilter(filter string) error
	// NextPacket returns io.EOF when the capture is exhausted.
	NextPacket() (*PCAPPacket, error)
	Close()
}

// ReplayOptions controls PCAP replay pacing.
type ReplayOptions struct {
	// SpeedMultiplier paces replay against capture timestamps (1.0 is
	// real time, 2.0 twice as fast). Zero or negative replays as fast as
	// the decoder allows.
	SpeedMultiplier float64
	// MaxPackets stops the replay early when positive.
	MaxPackets int
}

// ReplaySummary describes a completed replay.
type ReplaySummary struct {
	Packets  int
	Bytes    int64
	First    time.Time // capture time of the first packet
	Last     time.Time // capture time of the last packet
	Elapsed  time.Duration
	Canceled bool
}

// CaptureDuration is the span of capture time replayed.
func (s ReplaySummary) CaptureDuration() time.Duration { return s.Last.Sub(s.First) }

// ReplayPackets feeds every payload from reader to decoder. It returns when
// the capture ends, ctx is cancelled or the reader fails.
func ReplayPackets(ctx context.Context, reader PCAPReader, decoder PacketDecoder, stats PacketStatsInterface, opts ReplayOptions) (ReplaySummary, error) {
	if stats == nil {
		stats = &noopStats{}
	}
	var sum ReplaySummary
	start := time.Now()
	var prev time.Time

	for {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(start)
			sum.Canceled = true
			log.Printf("PCAP reader stopping due to context cancellation (processed %d packets)", sum.Packets)
			return sum, err
		}
		if opts.MaxPackets > 0 && sum.Packets >= opts.MaxPackets {
			break
		}

		pkt, err := reader.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			sum.Elapsed = time.Since(start)
			return sum, err
		}
		if len(pkt.Data) == 0 {
			continue
		}

		if opts.SpeedMultiplier > 0 && !prev.IsZero() {
			delay := time.Duration(float64(pkt.Timestamp.Sub(prev)) / opts.SpeedMultiplier)
			if delay > 0 {
				select {
				case <-ctx.Done():
					continue
				case <-time.After(delay):
				}
			}
		}
		prev = pkt.Timestamp
		if sum.First.IsZero() {
			sum.First = pkt.Timestamp
		}
		sum.Last = pkt.Timestamp

		sum.Packets++
		sum.Bytes += int64(len(pkt.Data))
		stats.AddPacket(len(pkt.Data))
		if decoder != nil {
			decoder.Decode(pkt.Data)
		}

		if sum.Packets%10000 == 0 {
			elapsed := time.Since(start)
			log.Printf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
				sum.Packets, elapsed, float64(sum.Packets)/elapsed.Seconds())
		}
	}

	sum.Elapsed = time.Since(start)
	log.Printf("PCAP file reading complete: %d packets processed in %v", sum.Packets, sum.Elapsed)
	return sum, nil
}

// MockPCAPReader implements PCAPReader for testing.
type MockPCAPReader struct {
	mu sync.Mutex

	Packets       []PCAPPacket
	ReadIndex     int
	FilterError   error
	ReadError     error // returned once ReadIndex reaches ErrorAt
	ErrorAt       int
	AppliedFilter string
	Closed        bool
}

// NewMockPCAPReader creates a new MockPCAPReader with the given packets.
func NewMockPCAPReader(packets []PCAPPacket) *MockPCAPReader {
	return &MockPCAPReader{Packets: packets}
}

// AddPacket appends a packet to the capture.
func (m *MockPCAPReader) AddPacket(data []byte, timestamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Packets = append(m.Packets, PCAPPacket{Data: data, Timestamp: timestamp})
}

// SetBPFFilter records the filter and returns any configured error.
func (m *MockPCAPReader) SetBPFFilter(filter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppliedFilter = filter
	return m.FilterError
}

// NextPacket returns the next packet from the mock capture.
func (m *MockPCAPReader) NextPacket() (*PCAPPacket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return nil, errors.New("reader closed")
	}
	if m.ReadError != nil && m.ReadIndex >= m.ErrorAt {
		return nil, m.ReadError
	}
	if m.ReadIndex >= len(m.Packets) {
		return nil, io.EOF
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return &pkt, nil
}

// Close marks the reader as closed.
func (m *MockPCAPReader) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
}
