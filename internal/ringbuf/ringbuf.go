// Package ringbuf implements the bounded, blocking single-producer/
// single-consumer byte FIFO that sits at the bottom of the playback
// pipeline. Unlike a lock-free ring buffer, this one suspends the caller
// instead of returning a "try again" error: write blocks while full, read
// blocks while empty, both wake on new data/space or on abort.
package ringbuf

import "sync"

// RingBuffer is a single-producer/single-consumer bounded byte FIFO.
// A single mutex guards both cursors; two condition variables signal
// "has data" and "has free space" respectively. Abort is idempotent and
// irreversible: once set, every blocked or future wait returns immediately.
type RingBuffer struct {
	mu        sync.Mutex
	hasData   *sync.Cond
	hasSpace  *sync.Cond
	buf       []byte
	size      uint64 // power of 2
	mask      uint64
	readPos   uint64
	writePos  uint64
	aborted   bool
}

// New creates a ring buffer with the given capacity, rounded up to the next
// power of 2 so position-to-index reduction is a mask instead of a modulo.
func New(size uint64) *RingBuffer {
	size = nextPowerOf2(size)
	rb := &RingBuffer{
		buf:  make([]byte, size),
		size: size,
		mask: size - 1,
	}
	rb.hasData = sync.NewCond(&rb.mu)
	rb.hasSpace = sync.NewCond(&rb.mu)
	return rb
}

// Size returns the buffer's total capacity in bytes.
func (rb *RingBuffer) Size() uint64 {
	return rb.size
}

// lockedAvailRead returns bytes available for reading. Caller must hold mu.
func (rb *RingBuffer) lockedAvailRead() uint64 {
	return rb.writePos - rb.readPos
}

// lockedAvailWrite returns bytes available for writing. Caller must hold mu.
// The invariant available_read + available_write == size - 1 holds: one
// byte of the capacity is kept as a gap so a full buffer is distinguishable
// from an empty one.
func (rb *RingBuffer) lockedAvailWrite() uint64 {
	return (rb.size - 1) - rb.lockedAvailRead()
}

// AvailableRead returns an instantaneous snapshot of readable bytes.
func (rb *RingBuffer) AvailableRead() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.lockedAvailRead()
}

// AvailableWrite returns an instantaneous snapshot of writable bytes.
func (rb *RingBuffer) AvailableWrite() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.lockedAvailWrite()
}

// Write copies up to len(data) bytes into the buffer, one producer-thread
// call at a time. It blocks while the buffer is full, resuming when the
// consumer frees space or the buffer is aborted. It returns the number of
// bytes actually written; this is less than len(data) only when abort cuts
// the write short. A request larger than capacity is serviced incrementally
// as space frees up.
func (rb *RingBuffer) Write(data []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(data) {
		for rb.lockedAvailWrite() == 0 && !rb.aborted {
			rb.hasSpace.Wait()
		}
		if rb.aborted {
			return written, nil
		}

		chunk := min(uint64(len(data)-written), rb.lockedAvailWrite())
		start := rb.writePos & rb.mask
		end := (rb.writePos + chunk) & rb.mask

		src := data[written : written+int(chunk)]
		if end > start || chunk == 0 {
			copy(rb.buf[start:start+chunk], src)
		} else {
			firstChunk := rb.size - start
			copy(rb.buf[start:], src[:firstChunk])
			copy(rb.buf[:end], src[firstChunk:])
		}

		rb.writePos += chunk
		written += int(chunk)
		rb.hasData.Broadcast()
	}
	return written, nil
}

// Read copies up to len(data) bytes out of the buffer, one consumer-thread
// call at a time. It blocks while the buffer is empty, resuming on new data
// or abort. It returns the number of bytes actually read; 0 means the
// buffer was aborted while empty.
func (rb *RingBuffer) Read(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.lockedAvailRead() == 0 && !rb.aborted {
		rb.hasData.Wait()
	}
	if rb.lockedAvailRead() == 0 {
		return 0, nil
	}

	toRead := min(uint64(len(data)), rb.lockedAvailRead())
	start := rb.readPos & rb.mask
	end := (rb.readPos + toRead) & rb.mask

	if end > start || toRead == 0 {
		copy(data[:toRead], rb.buf[start:start+toRead])
	} else {
		firstChunk := rb.size - start
		copy(data[:firstChunk], rb.buf[start:])
		copy(data[firstChunk:toRead], rb.buf[:end])
	}

	rb.readPos += toRead
	rb.hasSpace.Broadcast()
	return int(toRead), nil
}

// WaitForData blocks until at least one byte is readable or the buffer is
// aborted. It returns true iff data arrived, false on abort.
func (rb *RingBuffer) WaitForData() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.lockedAvailRead() == 0 && !rb.aborted {
		rb.hasData.Wait()
	}
	return rb.lockedAvailRead() > 0
}

// Clear resets the buffer to empty. Used by seek; the caller is responsible
// for ensuring no concurrent reader/writer is mid-copy (seek pauses the
// decoder worker before calling this).
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.writePos = 0
	rb.hasSpace.Broadcast()
}

// Abort sets the abort flag and wakes every waiter. Idempotent and
// irreversible: once aborted, every subsequent wait returns immediately.
func (rb *RingBuffer) Abort() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.aborted = true
	rb.hasData.Broadcast()
	rb.hasSpace.Broadcast()
}

// Aborted reports whether Abort has been called.
func (rb *RingBuffer) Aborted() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.aborted
}

func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
