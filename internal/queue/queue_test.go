package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDroppingNewestWins(t *testing.T) {
	q := NewDropping[string](1)

	assert.False(t, q.Put("A"))
	assert.True(t, q.Put("B"))
	assert.True(t, q.Put("C"))

	got, ok := q.Get(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "C", got)
}

func TestDroppingGetTimeout(t *testing.T) {
	q := NewDropping[int](1)
	_, ok := q.Get(20 * time.Millisecond)
	assert.False(t, ok)
}

func TestDroppingGetBlocksUntilPut(t *testing.T) {
	q := NewDropping[int](1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Put(42)
	}()

	got, ok := q.Get(200 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestDroppingClear(t *testing.T) {
	q := NewDropping[int](1)
	q.Put(1)
	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.IsFull())
}

func TestDropAtProducerFIFO(t *testing.T) {
	q := NewDropAtProducer[int](3)
	require.NoError(t, q.TryPut(1))
	require.NoError(t, q.TryPut(2))
	require.NoError(t, q.TryPut(3))

	assert.ErrorIs(t, q.TryPut(4), ErrFull)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Get(10 * time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestDropAtProducerGetTimeout(t *testing.T) {
	q := NewDropAtProducer[int](1)
	_, ok := q.Get(20 * time.Millisecond)
	assert.False(t, ok)
}

func TestDropAtProducerClear(t *testing.T) {
	q := NewDropAtProducer[int](2)
	q.TryPut(1)
	q.TryPut(2)
	q.Clear()
	assert.Equal(t, 0, q.Len())
}
