package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// PacketDecoder consumes raw sensor datagrams. Decode is called from the
// listener goroutine only and must not retain the slice.
type PacketDecoder interface {
	Decode(packet []byte)
}

// UDPListener handles receiving and processing sensor packets
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       PacketStatsInterface
	decoder     PacketDecoder
	sockets     UDPSocketFactory

	mu   sync.Mutex
	conn UDPSocket
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Decoder     PacketDecoder
	// Sockets overrides socket creation; nil means net.ListenUDP.
	Sockets UDPSocketFactory
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	sockets := config.Sockets
	if sockets == nil {
		sockets = NewRealUDPSocketFactory()
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		decoder:     config.Decoder,
		sockets:     sockets,
	}
}

// Start begins listening for UDP packets and blocks until ctx is cancelled
// or the socket fails.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.sockets.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	log.Printf("UDP listener started on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)

	go l.startStatsLogging(ctx)

	// Velodyne data packets are 1206 bytes; anything larger is still read
	// whole so the decoder can reject it.
	buffer := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			log.Print("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, net.ErrClosed) {
					return err
				}
				log.Printf("UDP read error from %v: %v", addr, err)
				continue
			}

			l.handlePacket(buffer[:n])
		}
	}
}

// startStatsLogging periodically logs packet statistics
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Report once shortly after startup, then on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handlePacket processes a single received UDP packet
func (l *UDPListener) handlePacket(packet []byte) {
	l.stats.AddPacket(len(packet))
	if l.decoder != nil {
		l.decoder.Decode(packet)
	}
}

// Close closes the UDP connection
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
