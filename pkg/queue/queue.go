// Package queue implements the receipt collector's delay queue: a min-heap of pending
// ReceiptsBatch values keyed by their ready-at timeout, consulted on the collector's 10s tick.
//
// Queue-mutating call sites (the tick, CollectReceipts, and recovery) run on independent
// goroutines, so DelayQueue wraps the heap in a sync.Mutex rather than relying on single-threaded
// execution for exclusion.
package queue

import (
	"container/heap"
	"sync"

	"github.com/dl-graf/indexer-agent/pkg/types"
)

// DelayQueue is a thread-safe min-heap of ReceiptsBatch values ordered by Timeout ascending.
type DelayQueue struct {
	mu   sync.Mutex
	heap batchHeap
}

// New returns an empty DelayQueue.
func New() *DelayQueue {
	return &DelayQueue{}
}

// Push adds a batch to the queue. Pushing an empty batch is a programmer error — batches are
// always expected non-empty — and panics.
func (q *DelayQueue) Push(batch types.ReceiptsBatch) {
	if len(batch.Receipts) == 0 {
		panic("indexer-agent: cannot push an empty receipts batch")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.heap, batch)
}

// Peek returns the earliest-timeout batch without removing it, and whether the queue was
// non-empty.
func (q *DelayQueue) Peek() (types.ReceiptsBatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return types.ReceiptsBatch{}, false
	}
	return q.heap[0], true
}

// Pop removes and returns the earliest-timeout batch.
func (q *DelayQueue) Pop() (types.ReceiptsBatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return types.ReceiptsBatch{}, false
	}
	return heap.Pop(&q.heap).(types.ReceiptsBatch), true
}

// Len reports the number of pending batches.
func (q *DelayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// DrainReady pops and returns every batch whose Timeout is <= now, in heap (timeout-ascending)
// order, all within one call.
func (q *DelayQueue) DrainReady(now int64) []types.ReceiptsBatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []types.ReceiptsBatch
	for len(q.heap) > 0 && q.heap[0].Timeout <= now {
		ready = append(ready, heap.Pop(&q.heap).(types.ReceiptsBatch))
	}
	return ready
}

// batchHeap implements container/heap.Interface over ReceiptsBatch values, min-ordered by Timeout.
type batchHeap []types.ReceiptsBatch

func (h batchHeap) Len() int            { return len(h) }
func (h batchHeap) Less(i, j int) bool  { return h[i].Timeout < h[j].Timeout }
func (h batchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }

func (h *batchHeap) Push(x any) {
	*h = append(*h, x.(types.ReceiptsBatch))
}

func (h *batchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
