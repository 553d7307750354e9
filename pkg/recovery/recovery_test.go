package recovery

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/dl-graf/indexer-agent/pkg/queue"
	"github.com/dl-graf/indexer-agent/pkg/types"
)

type fakeStore struct {
	summaries []types.AllocationSummary
	receipts  []types.AllocationReceipt
}

func (f *fakeStore) EnsureSummaries(ctx context.Context, allocations []common.Address) error { return nil }
func (f *fakeStore) CloseAllocationAndLoadReceipts(ctx context.Context, allocation common.Address, now time.Time) ([]types.AllocationReceipt, error) {
	return nil, nil
}
func (f *fakeStore) PersistExchange(ctx context.Context, receiptIDs []types.ReceiptID, voucher types.Voucher) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeStore) LoadVouchersByAmountDesc(ctx context.Context, limit int) ([]types.Voucher, error) {
	return nil, nil
}
func (f *fakeStore) DeleteVoucher(ctx context.Context, allocation common.Address) error { return nil }
func (f *fakeStore) PersistRedemption(ctx context.Context, redeemed []types.Voucher) error {
	return nil
}
func (f *fakeStore) LoadClosedSummaries(ctx context.Context) ([]types.AllocationSummary, error) {
	return f.summaries, nil
}
func (f *fakeStore) LoadReceiptsForAllocations(ctx context.Context, allocations []common.Address) ([]types.AllocationReceipt, error) {
	return f.receipts, nil
}

func discardLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func TestQueuePendingReceiptsFromDatabase_SeedsNonEmptyBatches(t *testing.T) {
	allocationA := common.HexToAddress("0xA")
	allocationB := common.HexToAddress("0xB")
	closedAt := int64(1000)

	st := &fakeStore{
		summaries: []types.AllocationSummary{
			{Allocation: allocationA, ClosedAt: &closedAt},
			{Allocation: allocationB, ClosedAt: &closedAt}, // no receipts, should be discarded
		},
		receipts: []types.AllocationReceipt{
			{Allocation: allocationA, Fees: big.NewInt(1)},
		},
	}
	q := queue.New()

	require.NoError(t, QueuePendingReceiptsFromDatabase(context.Background(), st, q, discardLogger()))
	require.Equal(t, 1, q.Len())

	batch, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, allocationA, batch.Allocation())
	require.Equal(t, time.UnixMilli(closedAt).Add(receiptsBatchTimeout).UnixMilli(), batch.Timeout)
}

func TestQueuePendingReceiptsFromDatabase_NoSummaries(t *testing.T) {
	st := &fakeStore{}
	q := queue.New()
	require.NoError(t, QueuePendingReceiptsFromDatabase(context.Background(), st, q, discardLogger()))
	require.Equal(t, 0, q.Len())
}

func TestQueuePendingReceiptsFromDatabase_UnknownAllocationPanics(t *testing.T) {
	closedAt := int64(1000)
	st := &fakeStore{
		summaries: []types.AllocationSummary{{Allocation: common.HexToAddress("0xA"), ClosedAt: &closedAt}},
		receipts:  []types.AllocationReceipt{{Allocation: common.HexToAddress("0xB"), Fees: big.NewInt(1)}},
	}
	q := queue.New()
	require.Panics(t, func() {
		_ = QueuePendingReceiptsFromDatabase(context.Background(), st, q, discardLogger())
	})
}
