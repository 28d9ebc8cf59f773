package network

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
)

// DefaultMaxDatagram keeps compact chunks under the IPv4 UDP payload limit.
const DefaultMaxDatagram = 60000

// DropCounter receives a count of datagrams that could not be queued or sent.
type DropCounter interface {
	AddDropped()
}

// CompactForwarder publishes compact records as framed UDP datagrams to a
// downstream consumer. Dense frames stay in the shared buffer and are not
// forwarded.
type CompactForwarder struct {
	conn        net.Conn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
	maxDatagram int

	sent    atomic.Uint64
	dropped atomic.Uint64

	wg sync.WaitGroup
}

// NewCompactForwarder dials addr ("host:port") and returns a forwarder that
// queues up to queueLen datagrams.
func NewCompactForwarder(addr string, queueLen int, stats DropCounter, logInterval time.Duration) (*CompactForwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	if queueLen <= 0 {
		queueLen = 256
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	if stats == nil {
		stats = &noopStats{}
	}
	return &CompactForwarder{
		conn:        conn,
		channel:     make(chan []byte, queueLen),
		stats:       stats,
		logInterval: logInterval,
		address:     addr,
		maxDatagram: DefaultMaxDatagram,
	}, nil
}

// Start runs the send loop until ctx is cancelled. Send errors are counted
// and reported once per log interval.
func (f *CompactForwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		failed := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case dgram := <-f.channel:
				if _, err := f.conn.Write(dgram); err != nil {
					failed++
					lastError = err
					f.drop()
					continue
				}
				f.sent.Add(1)
			case <-ticker.C:
				if failed > 0 && lastError != nil {
					log.Printf("\033[93mDropped %d compact datagrams due to errors (latest: %v)\033[0m", failed, lastError)
					failed = 0
					lastError = nil
				}
			}
		}
	}()

	log.Printf("Forwarding compact records to %s", f.address)
}

// PublishDense is a no-op.
func (f *CompactForwarder) PublishDense(encode.DenseFrame) {}

// PublishCompact splits the record into datagrams and queues them without
// blocking. Datagrams that do not fit in the queue are dropped.
func (f *CompactForwarder) PublishCompact(rec encode.CompactFrame) {
	dgrams, err := encode.SplitCompactRecord(&rec, f.maxDatagram)
	if err != nil {
		log.Printf("Compact record seq=%d not forwarded: %v", rec.Seq, err)
		f.drop()
		return
	}
	for _, d := range dgrams {
		select {
		case f.channel <- d:
		default:
			f.drop()
		}
	}
}

func (f *CompactForwarder) drop() {
	f.dropped.Add(1)
	f.stats.AddDropped()
}

// Sent returns the number of datagrams written to the socket.
func (f *CompactForwarder) Sent() uint64 { return f.sent.Load() }

// Dropped returns the number of datagrams dropped.
func (f *CompactForwarder) Dropped() uint64 { return f.dropped.Load() }

// Close closes the UDP connection. Cancel the Start context first; Close
// waits for the send loop to exit.
func (f *CompactForwarder) Close() error {
	err := f.conn.Close()
	f.wg.Wait()
	return err
}
