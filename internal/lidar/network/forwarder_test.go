package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenLocal(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func compactRecord(steps int) encode.CompactFrame {
	payload := make([]byte, steps*16*2)
	for i := range payload {
		payload[i] = byte(i)
	}
	return encode.CompactFrame{
		RunID:             uuid.NewString(),
		Seq:               42,
		StartAzimuth:      5,
		EndAzimuth:        355,
		EntriesPerAzimuth: 16,
		Payload:           payload,
		IntensityBits:     3,
		DistanceEncoding:  encode.DistanceFine2mm,
		WithIntensity:     true,
	}
}

func TestCompactForwarder_SendsRecord(t *testing.T) {
	recv := listenLocal(t)
	stats := &MockPacketStats{}

	fwd, err := NewCompactForwarder(recv.LocalAddr().String(), 64, stats, time.Second)
	require.NoError(t, err)
	fwd.maxDatagram = encode.RECORD_HEADER_SIZE + 10*32 // ten steps per datagram

	ctx, cancel := context.WithCancel(context.Background())
	fwd.Start(ctx)
	defer func() {
		cancel()
		fwd.Close()
	}()

	rec := compactRecord(25)
	fwd.PublishDense(encode.DenseFrame{}) // ignored
	fwd.PublishCompact(rec)

	var chunks []encode.CompactChunk
	buf := make([]byte, 65536)
	require.NoError(t, recv.SetReadDeadline(time.Now().Add(2*time.Second)))
	for len(chunks) < 3 {
		n, _, err := recv.ReadFromUDP(buf)
		require.NoError(t, err)
		c, err := encode.ParseCompactChunk(append([]byte(nil), buf[:n]...))
		require.NoError(t, err)
		chunks = append(chunks, c)
	}

	got, err := encode.AssembleCompact(chunks)
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("forwarded record mismatch (-want +got):\n%s", diff)
	}
	waitFor(t, func() bool { return fwd.Sent() == 3 })
	assert.Zero(t, fwd.Dropped())
}

func TestCompactForwarder_DropsWhenQueueFull(t *testing.T) {
	recv := listenLocal(t)
	stats := &MockPacketStats{}

	fwd, err := NewCompactForwarder(recv.LocalAddr().String(), 1, stats, time.Second)
	require.NoError(t, err)
	defer fwd.Close()
	fwd.maxDatagram = encode.RECORD_HEADER_SIZE + 32

	// Not started: the first datagram fills the queue, the rest drop.
	fwd.PublishCompact(compactRecord(4))

	assert.Equal(t, uint64(3), fwd.Dropped())
	_, _, dropped := stats.counts()
	assert.Equal(t, 3, dropped)
}

func TestCompactForwarder_RejectsBadRecord(t *testing.T) {
	recv := listenLocal(t)
	fwd, err := NewCompactForwarder(recv.LocalAddr().String(), 8, nil, 0)
	require.NoError(t, err)
	defer fwd.Close()

	fwd.PublishCompact(encode.CompactFrame{EntriesPerAzimuth: 0})
	assert.Equal(t, uint64(1), fwd.Dropped())
}

func TestCompactForwarder_BadAddress(t *testing.T) {
	_, err := NewCompactForwarder("no-port", 8, nil, time.Second)
	assert.Error(t, err)
}
