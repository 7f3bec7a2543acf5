// Package relay bridges the real-time capture callback and the network
// sender. The producer appends frames, the consumer removes whole chunks.
package relay

import "sync"

// Buffer is a FIFO queue of samples guarded by a mutex. The lock is only held
// for slice copies, never across I/O, so Push is safe to call from an audio
// callback.
//
// With a limit of 0 the queue grows without bound when the consumer falls
// behind. With a positive limit, Push drops whole chunks from the head until
// at most limit samples remain, counting every dropped chunk.
type Buffer struct {
	mu      sync.Mutex
	samples []float32
	head    int // index of the oldest live sample
	chunk   int
	limit   int
	dropped uint64
}

// New creates a Buffer. chunkSize is the unit of overflow drops; limit is the
// maximum number of queued samples, 0 meaning unbounded.
func New(chunkSize, limit int) *Buffer {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if limit < 0 {
		limit = 0
	}
	return &Buffer{chunk: chunkSize, limit: limit}
}

// Push appends a copy of samples to the tail. It returns the number of chunks
// dropped from the head to respect the limit.
func (b *Buffer) Push(samples []float32) int {
	if len(samples) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.compact()
	b.samples = append(b.samples, samples...)

	if b.limit == 0 {
		return 0
	}
	dropped := 0
	for b.lenLocked() > b.limit {
		n := min(b.chunk, b.lenLocked())
		b.head += n
		dropped++
	}
	b.dropped += uint64(dropped)
	return dropped
}

// TryPopChunk removes exactly n samples from the head if at least n are
// queued. Otherwise it returns false and leaves the buffer untouched.
func (b *Buffer) TryPopChunk(n int) ([]float32, bool) {
	if n <= 0 {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lenLocked() < n {
		return nil, false
	}
	out := make([]float32, n)
	copy(out, b.samples[b.head:b.head+n])
	b.head += n
	if b.head == len(b.samples) {
		b.samples = b.samples[:0]
		b.head = 0
	}
	return out, true
}

// Len returns the number of queued samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lenLocked()
}

// Dropped returns the total number of chunks discarded by the limit.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Buffer) lenLocked() int {
	return len(b.samples) - b.head
}

// compact reclaims consumed space once it dominates the backing array.
func (b *Buffer) compact() {
	if b.head == 0 || b.head < len(b.samples)/2 {
		return
	}
	n := copy(b.samples, b.samples[b.head:])
	b.samples = b.samples[:n]
	b.head = 0
}
