// Package ringbuffer implements the per-session bounded in-memory output
// log (§4.B). It is a direct generalization of the teacher orchestrator's
// eventRingBuffer (internal/orchestrator/orchestrator.go): the same
// evict-from-the-front-until-under-budget technique, applied to output
// byte chunks instead of structured spawn events.
package ringbuffer

import "sync"

// Chunk is one stream-tagged fragment of output held in memory. Seq lets
// callers detect gaps against the durable store when reconstructing full
// history.
type Chunk struct {
	Seq    int64
	Stream string
	Data   []byte
}

// Buffer is a bounded, byte-capped FIFO of Chunks for one live session.
type Buffer struct {
	mu       sync.RWMutex
	capBytes int
	chunks   []Chunk
	total    int
}

// New creates a Buffer with the given byte cap. A non-positive cap is
// treated as 1 (never fewer than one chunk is retained, per §8's boundary
// behavior).
func New(capBytes int) *Buffer {
	if capBytes <= 0 {
		capBytes = 1
	}
	return &Buffer{capBytes: capBytes}
}

// Push appends a chunk, evicting from the front until the buffer's total
// size is within the byte cap. A single chunk larger than the cap is kept
// alone — the cap must never reduce the buffer to zero chunks.
func (b *Buffer) Push(c Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, c)
	b.total += len(c.Data)

	for b.total > b.capBytes && len(b.chunks) > 1 {
		evicted := b.chunks[0]
		b.chunks = b.chunks[1:]
		b.total -= len(evicted.Data)
	}
}

// Snapshot returns a copy of the currently retained chunks, oldest first.
func (b *Buffer) Snapshot() []Chunk {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Tail returns the concatenated bytes of all currently retained chunks,
// oldest first.
func (b *Buffer) Tail() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []byte
	for _, c := range b.chunks {
		out = append(out, c.Data...)
	}
	return out
}

// TailChunks returns the last n retained chunks (fewer if the buffer holds
// less), used by the Wait-State Detector which only considers the
// trailing ~10 chunks of output.
func (b *Buffer) TailChunks(n int) []Chunk {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n >= len(b.chunks) {
		out := make([]Chunk, len(b.chunks))
		copy(out, b.chunks)
		return out
	}
	start := len(b.chunks) - n
	out := make([]Chunk, n)
	copy(out, b.chunks[start:])
	return out
}

// Len returns the number of chunks currently retained.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// TotalBytes returns the current total byte size of retained chunks.
func (b *Buffer) TotalBytes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}
