// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(n int, v float32) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestBlockQueueFIFO(t *testing.T) {
	q := NewBlockQueue(3, 4)
	assert.Equal(t, 3, q.Cap())
	assert.Equal(t, 4, q.BlockLen())

	dst := make([]float32, 4)
	assert.False(t, q.TryPop(dst), "empty queue")

	for i := range 3 {
		require.True(t, q.TryPush(block(4, float32(i+1))))
	}
	assert.Equal(t, 3, q.Len())
	assert.False(t, q.TryPush(block(4, 9)), "full queue drops the newest block")

	for i := range 3 {
		require.True(t, q.TryPop(dst))
		assert.Equal(t, block(4, float32(i+1)), dst)
	}
	assert.Equal(t, 0, q.Len())
}

func TestBlockQueueShortAndLongBlocks(t *testing.T) {
	q := NewBlockQueue(2, 4)
	require.True(t, q.TryPush([]float32{1, 2}))
	require.True(t, q.TryPush([]float32{1, 2, 3, 4, 5, 6}))

	dst := block(4, 7)
	require.True(t, q.TryPop(dst))
	assert.Equal(t, []float32{1, 2, 0, 0}, dst)

	long := block(6, 7)
	require.True(t, q.TryPop(long))
	assert.Equal(t, []float32{1, 2, 3, 4, 0, 0}, long)
}

func TestBlockQueuePopWaitsForPush(t *testing.T) {
	q := NewBlockQueue(2, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.TryPush([]float32{3, 4})
	}()

	dst := make([]float32, 2)
	require.NoError(t, q.Pop(ctx, dst))
	assert.Equal(t, []float32{3, 4}, dst)
}

func TestBlockQueuePushWaitsForPop(t *testing.T) {
	q := NewBlockQueue(1, 2)
	require.True(t, q.TryPush([]float32{1, 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.TryPop(make([]float32, 2))
	}()

	require.NoError(t, q.Push(ctx, []float32{2, 2}))
	dst := make([]float32, 2)
	require.True(t, q.TryPop(dst))
	assert.Equal(t, []float32{2, 2}, dst)
}

func TestBlockQueueCancellation(t *testing.T) {
	q := NewBlockQueue(1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, q.Pop(ctx, make([]float32, 2)), context.Canceled)

	require.True(t, q.TryPush([]float32{1, 1}))
	assert.ErrorIs(t, q.Push(ctx, []float32{2, 2}), context.Canceled)
}

func TestBlockQueueConcurrentOrder(t *testing.T) {
	const n = 2000
	q := NewBlockQueue(4, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		for i := range n {
			if err := q.Push(ctx, block(8, float32(i))); err != nil {
				return
			}
		}
	}()

	dst := make([]float32, 8)
	for i := range n {
		require.NoError(t, q.Pop(ctx, dst))
		require.Equal(t, float32(i), dst[0])
		require.Equal(t, float32(i), dst[7])
	}
}

func TestBlockQueueHotPath(t *testing.T) {
	q := NewBlockQueue(4, 1024)
	src := block(1024, 0.5)
	dst := make([]float32, 1024)

	allocs := testing.AllocsPerRun(100, func() {
		q.TryPush(src)
		q.TryPop(dst)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in queue hot path, got %.1f", allocs)
	}
}

func BenchmarkBlockQueue(b *testing.B) {
	q := NewBlockQueue(4, 1024)
	src := block(1024, 0.5)
	dst := make([]float32, 1024)

	b.ReportAllocs()
	for b.Loop() {
		q.TryPush(src)
		q.TryPop(dst)
	}
}
