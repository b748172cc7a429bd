// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"sync/atomic"
)

// BlockQueue is a bounded single-producer single-consumer FIFO of fixed-size
// sample blocks. All storage is allocated up front.
//
// TryPush and TryPop never block and never allocate, so either side may be the
// real-time callback. Push and Pop suspend on a full or empty queue until the
// other side makes progress or the context is cancelled; only the
// non-real-time side may call them.
type BlockQueue struct {
	blockLen int
	slots    [][]float32

	head atomic.Uint64 // next slot to read, owned by the consumer
	tail atomic.Uint64 // next slot to write, owned by the producer

	readable chan struct{} // signalled after every push
	writable chan struct{} // signalled after every pop
}

// NewBlockQueue allocates depth blocks of blockLen samples.
func NewBlockQueue(depth, blockLen int) *BlockQueue {
	depth = max(depth, 1)
	slots := make([][]float32, depth)
	backing := make([]float32, depth*blockLen)
	for i := range slots {
		slots[i] = backing[i*blockLen : (i+1)*blockLen : (i+1)*blockLen]
	}
	return &BlockQueue{
		blockLen: blockLen,
		slots:    slots,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

// Cap returns the number of blocks the queue can hold.
func (q *BlockQueue) Cap() int { return len(q.slots) }

// BlockLen returns the number of samples per block.
func (q *BlockQueue) BlockLen() int { return q.blockLen }

// Len returns the number of queued blocks. The value is a snapshot.
func (q *BlockQueue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// TryPush copies src into the next free block. It returns false, dropping src,
// when the queue is full. A short src is zero-padded, a long one truncated.
func (q *BlockQueue) TryPush(src []float32) bool {
	t := q.tail.Load()
	if t-q.head.Load() == uint64(len(q.slots)) {
		return false
	}
	slot := q.slots[t%uint64(len(q.slots))]
	n := copy(slot, src)
	clear(slot[n:])
	q.tail.Store(t + 1)
	notify(q.readable)
	return true
}

// TryPop copies the oldest block into dst. It returns false, leaving dst
// untouched, when the queue is empty.
func (q *BlockQueue) TryPop(dst []float32) bool {
	h := q.head.Load()
	if h == q.tail.Load() {
		return false
	}
	n := copy(dst, q.slots[h%uint64(len(q.slots))])
	clear(dst[n:])
	q.head.Store(h + 1)
	notify(q.writable)
	return true
}

// Pop waits for a block and copies it into dst.
func (q *BlockQueue) Pop(ctx context.Context, dst []float32) error {
	for {
		if q.TryPop(dst) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.readable:
		}
	}
}

// Push waits for a free block and copies src into it.
func (q *BlockQueue) Push(ctx context.Context, src []float32) error {
	for {
		if q.TryPush(src) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.writable:
		}
	}
}
