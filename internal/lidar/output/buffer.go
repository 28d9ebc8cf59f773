// Package output holds the hand-off points between the decoder and its consumers:
// the shared dense point buffer and the publishers for frame metadata and
// compact records.
package output

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutputUnavailable is returned when the shared buffer is detached.
var ErrOutputUnavailable = errors.New("output buffer unavailable")

// SharedBuffer is a fixed-size byte region shared between the decoder (writer)
// and any number of readers. Access is serialised by a mutex held only for the
// duration of a copy. A detached buffer rejects writes until re-attached.
type SharedBuffer struct {
	name string

	mu    sync.Mutex
	data  []byte
	valid bool
	n     int // bytes written by the last successful Write
}

// NewSharedBuffer allocates size bytes under name.
func NewSharedBuffer(name string, size int) (*SharedBuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shared buffer %q: size must be positive, got %d", name, size)
	}
	return &SharedBuffer{name: name, data: make([]byte, size), valid: true}, nil
}

// Name is the handle consumers use to find the buffer.
func (b *SharedBuffer) Name() string { return b.name }

// Size is the buffer capacity in bytes.
func (b *SharedBuffer) Size() int { return len(b.data) }

// Valid reports whether the buffer currently accepts writes.
func (b *SharedBuffer) Valid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valid
}

// Write calls fill with exclusive access to the buffer. fill returns the number
// of bytes it wrote. When the buffer is detached fill is not called and
// ErrOutputUnavailable is returned.
func (b *SharedBuffer) Write(fill func(dst []byte) (int, error)) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.valid {
		return 0, fmt.Errorf("%w: %s", ErrOutputUnavailable, b.name)
	}
	n, err := fill(b.data)
	if err != nil {
		return 0, err
	}
	b.n = n
	return n, nil
}

// Read calls fn with the bytes of the last successful write, under the lock.
func (b *SharedBuffer) Read(fn func(data []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.valid {
		return fmt.Errorf("%w: %s", ErrOutputUnavailable, b.name)
	}
	fn(b.data[:b.n])
	return nil
}

// Detach marks the buffer unavailable, e.g. while a consumer remaps it.
func (b *SharedBuffer) Detach() {
	b.mu.Lock()
	b.valid = false
	b.n = 0
	b.mu.Unlock()
}

// Attach makes a detached buffer writable again.
func (b *SharedBuffer) Attach() {
	b.mu.Lock()
	b.valid = true
	b.mu.Unlock()
}
