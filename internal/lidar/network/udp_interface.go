package network

import (
	"net"
	"sync"
	"time"
)

// UDPSocket defines the socket operations the listener and forwarder need.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory creates sockets for the listener.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
// *net.UDPConn satisfies UDPSocket directly.
type RealUDPSocketFactory struct{}

// NewRealUDPSocketFactory creates a new RealUDPSocketFactory.
func NewRealUDPSocketFactory() *RealUDPSocketFactory {
	return &RealUDPSocketFactory{}
}

// ListenUDP creates a new UDP socket.
func (f *RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket replays a fixed list of datagrams. Once they are used up
// every read reports a timeout, as a real socket with a deadline would.
type MockUDPSocket struct {
	mu sync.Mutex

	packets        [][]byte
	readIndex      int
	closed         bool
	readBufferSize int
	readErr        error
	bufErr         error
	local          *net.UDPAddr
}

// NewMockUDPSocket creates a new MockUDPSocket with the given datagrams.
func NewMockUDPSocket(packets ...[]byte) *MockUDPSocket {
	return &MockUDPSocket{
		packets: packets,
		local:   &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2368},
	}
}

// FailNextRead makes the next ReadFromUDP return err.
func (m *MockUDPSocket) FailNextRead(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailSetReadBuffer makes SetReadBuffer return err.
func (m *MockUDPSocket) FailSetReadBuffer(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufErr = err
}

// ReadFromUDP returns the next queued datagram.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, nil, net.ErrClosed
	}
	if err := m.readErr; err != nil {
		m.readErr = nil
		m.mu.Unlock()
		return 0, nil, err
	}
	if m.readIndex >= len(m.packets) {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
	}
	pkt := m.packets[m.readIndex]
	m.readIndex++
	m.mu.Unlock()
	return copy(b, pkt), &net.UDPAddr{IP: net.ParseIP("192.168.1.201"), Port: 2368}, nil
}

// SetReadBuffer records the buffer size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bufErr != nil {
		return m.bufErr
	}
	m.readBufferSize = bytes
	return nil
}

// SetReadDeadline is a no-op; reads never block.
func (m *MockUDPSocket) SetReadDeadline(time.Time) error { return nil }

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr { return m.local }

// Delivered reports how many datagrams have been read.
func (m *MockUDPSocket) Delivered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readIndex
}

// ReadBufferSize returns the last value passed to SetReadBuffer.
func (m *MockUDPSocket) ReadBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBufferSize
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockUDPSocketFactory hands out a single prepared socket.
type MockUDPSocketFactory struct {
	Socket *MockUDPSocket
	Error  error
	Addrs  []*net.UDPAddr
}

// ListenUDP returns the configured mock socket.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.Addrs = append(f.Addrs, laddr)
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
