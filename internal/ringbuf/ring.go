// Package ringbuf provides a fixed-capacity single-producer/single-consumer
// byte queue.
//
// The producer only ever advances head and the consumer only ever advances
// tail, so no lock is needed as long as each side stays on its own goroutine.
// Both counters run freely and are reduced modulo the capacity on access,
// which keeps every slot usable and makes head==tail mean "empty" only.
package ringbuf

import (
	"fmt"
	"sync/atomic"
)

// DefaultSize matches the UART buffer used on the flight computer. NMEA
// sentences are ~82 bytes, so this holds a few of them.
const DefaultSize = 256

type Ring struct {
	buf  []byte
	mask uint32

	head atomic.Uint32 // producer
	tail atomic.Uint32 // consumer

	dropped atomic.Uint64
}

// New returns a ring holding exactly size bytes. size must be a power of two.
func New(size int) (*Ring, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("ringbuf: size %d is not a power of two", size)
	}
	if size > 1<<30 {
		return nil, fmt.Errorf("ringbuf: size %d too large", size)
	}
	return &Ring{buf: make([]byte, size), mask: uint32(size - 1)}, nil
}

// Cap returns the capacity in bytes.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of queued bytes. It is exact when called from either
// side and never exceeds Cap.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Push enqueues b. It reports false and drops b when the ring is full.
// Producer side only.
func (r *Ring) Push(b byte) bool {
	head := r.head.Load()
	if head-r.tail.Load() == uint32(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[head&r.mask] = b
	// Publishing head after the slot write is what makes the byte visible to Pop.
	r.head.Store(head + 1)
	return true
}

// Pop dequeues the oldest byte. Consumer side only.
func (r *Ring) Pop() (byte, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	b := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return b, true
}

// Dropped returns how many bytes Push has rejected since construction.
func (r *Ring) Dropped() uint64 { return r.dropped.Load() }
