package output

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/banshee-data/velodyne.proxy/internal/lidar/encode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedBufferWriteRead(t *testing.T) {
	b, err := NewSharedBuffer("velodyne", 8)
	require.NoError(t, err)
	assert.Equal(t, "velodyne", b.Name())
	assert.Equal(t, 8, b.Size())
	assert.True(t, b.Valid())

	n, err := b.Write(func(dst []byte) (int, error) {
		return copy(dst, []byte{1, 2, 3}), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var got []byte
	require.NoError(t, b.Read(func(data []byte) { got = append(got, data...) }))
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestSharedBufferDetached(t *testing.T) {
	b, err := NewSharedBuffer("velodyne", 8)
	require.NoError(t, err)
	b.Detach()
	assert.False(t, b.Valid())

	called := false
	_, err = b.Write(func(dst []byte) (int, error) {
		called = true
		return 0, nil
	})
	assert.True(t, errors.Is(err, ErrOutputUnavailable))
	assert.False(t, called, "fill is not invoked on a detached buffer")
	assert.True(t, errors.Is(b.Read(func([]byte) {}), ErrOutputUnavailable))

	b.Attach()
	_, err = b.Write(func(dst []byte) (int, error) { return 0, nil })
	assert.NoError(t, err)
}

func TestSharedBufferFillError(t *testing.T) {
	b, err := NewSharedBuffer("velodyne", 8)
	require.NoError(t, err)
	boom := errors.New("boom")
	_, err = b.Write(func(dst []byte) (int, error) { return 0, boom })
	assert.Equal(t, boom, err)

	_, err = NewSharedBuffer("empty", 0)
	assert.Error(t, err)
}

func TestSharedBufferConcurrentReaders(t *testing.T) {
	b, err := NewSharedBuffer("velodyne", 64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Read(func(data []byte) {
					for _, v := range data {
						// A reader must never observe a half-written buffer.
						if v != data[0] {
							t.Errorf("torn read: %v", data)
							return
						}
					}
				})
			}
		}()
	}
	for j := 0; j < 100; j++ {
		_, err := b.Write(func(dst []byte) (int, error) {
			for i := range dst {
				dst[i] = byte(j)
			}
			return len(dst), nil
		})
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestChannelPublisherDrops(t *testing.T) {
	p := NewChannelPublisher(1)
	p.PublishDense(encode.DenseFrame{Seq: 1})
	p.PublishDense(encode.DenseFrame{Seq: 2})
	p.PublishCompact(encode.CompactFrame{Seq: 3})
	p.PublishCompact(encode.CompactFrame{Seq: 4})

	assert.Equal(t, uint64(2), p.Dropped())
	assert.Equal(t, uint64(1), (<-p.Dense).Seq)
	assert.Equal(t, uint64(3), (<-p.Compact).Seq)
}

func TestMultiPublisher(t *testing.T) {
	a, b := NewChannelPublisher(2), NewChannelPublisher(2)
	m := Multi{a, b, Discard{}}
	m.PublishDense(encode.DenseFrame{Width: 7})
	m.PublishCompact(encode.CompactFrame{EntriesPerAzimuth: 16})

	assert.Len(t, a.Dense, 1)
	assert.Len(t, b.Dense, 1)
	assert.Len(t, a.Compact, 1)
	assert.Len(t, b.Compact, 1)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(0, log.New(&buf, "", 0))
	p.PublishDense(encode.DenseFrame{Seq: 9, Width: 1200})
	p.PublishCompact(encode.CompactFrame{Seq: 9, Payload: make([]byte, 64)})

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "seq=9 dense=1 (avg 1200 points)")
	assert.Contains(t, out, "compact=1 (64 bytes)")
}
