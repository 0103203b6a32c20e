// Package buffer provides the bounded hand-off queue between the audio
// driver's callback context and a best-effort consumer. When the queue
// is full the oldest block is evicted; the producer is never blocked
// and never sees an error. This is intentional for live capture — the
// driver thread must not wait on a slow consumer.
package buffer

import "sync"

// Buffer holds at most Cap() audio blocks, oldest first.
type Buffer struct {
	mu     sync.Mutex
	blocks [][]float32
	cap    int
}

// New creates a Buffer holding up to capacity blocks. Capacities below
// one are clamped to one.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		blocks: make([][]float32, 0, capacity),
		cap:    capacity,
	}
}

// Push inserts a block, evicting the oldest buffered block first if the
// buffer is full. It never blocks and never fails.
func (b *Buffer) Push(block []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.blocks) == b.cap {
		// Drop the longest-resident block to admit the new one.
		copy(b.blocks, b.blocks[1:])
		b.blocks = b.blocks[:len(b.blocks)-1]
	}
	b.blocks = append(b.blocks, block)
}

// TryPop removes and returns the oldest buffered block. The second
// return value is false when the buffer is empty.
func (b *Buffer) TryPop() ([]float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.blocks) == 0 {
		return nil, false
	}
	block := b.blocks[0]
	copy(b.blocks, b.blocks[1:])
	b.blocks = b.blocks[:len(b.blocks)-1]
	return block, true
}

// Drain discards all buffered blocks. Used at stream teardown so no
// stale audio survives a stop/start cycle.
func (b *Buffer) Drain() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.blocks {
		b.blocks[i] = nil
	}
	b.blocks = b.blocks[:0]
}

// Len returns the number of buffered blocks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocks)
}

// Cap returns the maximum number of buffered blocks.
func (b *Buffer) Cap() int {
	return b.cap
}
