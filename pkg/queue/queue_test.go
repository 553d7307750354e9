package queue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dl-graf/indexer-agent/pkg/queue"
	"github.com/dl-graf/indexer-agent/pkg/types"
)

func batch(timeout int64) types.ReceiptsBatch {
	return types.ReceiptsBatch{
		Receipts: []types.AllocationReceipt{{}},
		Timeout:  timeout,
	}
}

func TestDelayQueue_PeekPopOrdering(t *testing.T) {
	q := queue.New()
	q.Push(batch(300))
	q.Push(batch(100))
	q.Push(batch(200))

	b, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, int64(100), b.Timeout)

	order := []int64{}
	for q.Len() > 0 {
		b, _ := q.Pop()
		order = append(order, b.Timeout)
	}
	require.Equal(t, []int64{100, 200, 300}, order)
}

func TestDelayQueue_DrainReady(t *testing.T) {
	q := queue.New()
	q.Push(batch(100))
	q.Push(batch(150))
	q.Push(batch(300))

	ready := q.DrainReady(200)
	require.Len(t, ready, 2)
	require.Equal(t, int64(100), ready[0].Timeout)
	require.Equal(t, int64(150), ready[1].Timeout)
	require.Equal(t, 1, q.Len())
}

func TestDelayQueue_PushEmptyBatchPanics(t *testing.T) {
	q := queue.New()
	require.Panics(t, func() {
		q.Push(types.ReceiptsBatch{Timeout: 1})
	})
}
