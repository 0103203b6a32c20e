package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(v float32) []float32 {
	return []float32{v, v, v}
}

func TestPushEvictsOldestWhenFull(t *testing.T) {
	b := New(3)

	for i := 1; i <= 5; i++ {
		b.Push(block(float32(i)))
	}

	// Only the 3 most recent blocks survive, oldest first.
	require.Equal(t, 3, b.Len())
	for _, want := range []float32{3, 4, 5} {
		got, ok := b.TryPop()
		require.True(t, ok)
		assert.Equal(t, block(want), got)
	}
	_, ok := b.TryPop()
	assert.False(t, ok)
}

func TestSingleSlotKeepsNewest(t *testing.T) {
	b := New(1)

	b.Push(block(1)) // A
	b.Push(block(2)) // B evicts A

	require.Equal(t, 1, b.Len())
	got, ok := b.TryPop()
	require.True(t, ok)
	assert.Equal(t, block(2), got)
}

func TestPushNeverExceedsCapacity(t *testing.T) {
	b := New(2)

	for i := 0; i < 100; i++ {
		b.Push(block(float32(i)))
		assert.LessOrEqual(t, b.Len(), b.Cap())
	}
}

func TestTryPopEmpty(t *testing.T) {
	b := New(2)

	got, ok := b.TryPop()
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestDrainEmptiesBuffer(t *testing.T) {
	b := New(4)
	for i := 0; i < 4; i++ {
		b.Push(block(float32(i)))
	}

	b.Drain()

	assert.Equal(t, 0, b.Len())
	_, ok := b.TryPop()
	assert.False(t, ok)
}

func TestCapacityClampedToOne(t *testing.T) {
	b := New(0)
	assert.Equal(t, 1, b.Cap())

	b = New(-5)
	assert.Equal(t, 1, b.Cap())
}

// One producer, one consumer, no coordination beyond the buffer itself.
// Run with -race; the invariant is only that length stays within
// capacity and popped blocks are intact.
func TestConcurrentProducerConsumer(t *testing.T) {
	b := New(1)

	const pushes = 1000
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < pushes; i++ {
			b.Push(block(float32(i)))
		}
	}()

	for {
		if got, ok := b.TryPop(); ok {
			require.Len(t, got, 3)
		}
		if b.Len() > b.Cap() {
			t.Fatal("buffer exceeded capacity")
		}
		select {
		case <-done:
			wg.Wait()
			assert.LessOrEqual(t, b.Len(), b.Cap())
			return
		default:
		}
	}
}
