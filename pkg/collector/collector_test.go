package collector

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dl-graf/indexer-agent/pkg/metrics"
	"github.com/dl-graf/indexer-agent/pkg/queue"
	"github.com/dl-graf/indexer-agent/pkg/types"
)

type fakeStore struct {
	mu sync.Mutex

	summaries map[string][]common.Address
	closed    map[common.Address][]types.AllocationReceipt

	deletedReceipts []types.ReceiptID
	persistedVoucher *types.Voucher
	collectedFees    map[string]*big.Int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		closed:        map[common.Address][]types.AllocationReceipt{},
		collectedFees: map[string]*big.Int{},
	}
}

func (f *fakeStore) EnsureSummaries(ctx context.Context, allocations []common.Address) error {
	return nil
}

func (f *fakeStore) CloseAllocationAndLoadReceipts(ctx context.Context, allocation common.Address, now time.Time) ([]types.AllocationReceipt, error) {
	return f.closed[allocation], nil
}

func (f *fakeStore) PersistExchange(ctx context.Context, receiptIDs []types.ReceiptID, voucher types.Voucher) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedReceipts = append(f.deletedReceipts, receiptIDs...)
	v := voucher
	f.persistedVoucher = &v
	label := types.NormalizeAllocationID(voucher.Allocation)
	existing := f.collectedFees[label]
	if existing == nil {
		existing = big.NewInt(0)
	}
	total := new(big.Int).Add(existing, voucher.Amount)
	f.collectedFees[label] = total
	return new(big.Int).Set(total), nil
}

func (f *fakeStore) LoadVouchersByAmountDesc(ctx context.Context, limit int) ([]types.Voucher, error) {
	return nil, nil
}
func (f *fakeStore) DeleteVoucher(ctx context.Context, allocation common.Address) error { return nil }
func (f *fakeStore) PersistRedemption(ctx context.Context, redeemed []types.Voucher) error {
	return nil
}
func (f *fakeStore) LoadClosedSummaries(ctx context.Context) ([]types.AllocationSummary, error) {
	return nil, nil
}
func (f *fakeStore) LoadReceiptsForAllocations(ctx context.Context, allocations []common.Address) ([]types.AllocationReceipt, error) {
	return nil, nil
}

type fakeGateway struct {
	mu             sync.Mutex
	collectCalls   int
	partialCalls   int
	voucherCalls   int
	nextAllocation common.Address
}

func (g *fakeGateway) CollectReceipts(ctx context.Context, payload []byte) (types.Voucher, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.collectCalls++
	return types.Voucher{Allocation: g.nextAllocation, Amount: big.NewInt(60), Signature: "0xS"}, nil
}

func (g *fakeGateway) PartialVoucher(ctx context.Context, payload []byte) (types.PartialVoucher, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.partialCalls++
	return types.PartialVoucher{Allocation: g.nextAllocation, Fees: big.NewInt(1)}, nil
}

func (g *fakeGateway) Voucher(ctx context.Context, payload []byte) (types.Voucher, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voucherCalls++
	return types.Voucher{Allocation: g.nextAllocation, Amount: big.NewInt(999), Signature: "0xF"}, nil
}

func discardLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func receiptWithFees(id byte, allocation common.Address, fees int64) types.AllocationReceipt {
	var rid types.ReceiptID
	rid[len(rid)-1] = id
	return types.AllocationReceipt{ID: rid, Allocation: allocation, Fees: big.NewInt(fees)}
}

// TestCollector_SmallSingleShotCollection covers a small batch taking the single collect-receipts
// path instead of chunking.
func TestCollector_SmallSingleShotCollection(t *testing.T) {
	allocation := common.HexToAddress("0xA000000000000000000000000000000000000A")
	st := newFakeStore()
	st.closed[allocation] = []types.AllocationReceipt{
		receiptWithFees(1, allocation, 10),
		receiptWithFees(2, allocation, 20),
		receiptWithFees(3, allocation, 30),
	}
	gw := &fakeGateway{nextAllocation: allocation}
	q := queue.New()
	now := time.Unix(0, 0)
	c := New(st, q, gw, nil, discardLogger(), func() time.Time { return now })

	ok, err := c.CollectReceipts(context.Background(), uuid.New(), allocation)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, q.Len())

	now = now.Add(receiptsBatchTimeout)
	c.Tick(context.Background())

	require.Equal(t, 1, gw.collectCalls)
	require.Equal(t, 0, gw.partialCalls)
	require.Equal(t, 0, gw.voucherCalls)
	require.Len(t, st.deletedReceipts, 3)
	require.NotNil(t, st.persistedVoucher)
	require.Equal(t, "60", st.persistedVoucher.Amount.String())
}

// TestCollector_ChunkedCollection covers 25,001 receipts producing exactly two partial-voucher
// POSTs (25,000 and 1) followed by one /voucher POST.
func TestCollector_ChunkedCollection(t *testing.T) {
	allocation := common.HexToAddress("0xB000000000000000000000000000000000000B")
	receipts := make([]types.AllocationReceipt, 25001)
	for i := range receipts {
		var rid types.ReceiptID
		rid[len(rid)-2] = byte(i >> 8)
		rid[len(rid)-1] = byte(i)
		receipts[i] = types.AllocationReceipt{ID: rid, Allocation: allocation, Fees: big.NewInt(1)}
	}
	st := newFakeStore()
	st.closed[allocation] = receipts
	gw := &fakeGateway{nextAllocation: allocation}
	q := queue.New()
	now := time.Unix(0, 0)
	c := New(st, q, gw, nil, discardLogger(), func() time.Time { return now })

	ok, err := c.CollectReceipts(context.Background(), uuid.New(), allocation)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(receiptsBatchTimeout)
	c.Tick(context.Background())

	require.Equal(t, 0, gw.collectCalls)
	require.Equal(t, 2, gw.partialCalls)
	require.Equal(t, 1, gw.voucherCalls)
	require.NotNil(t, st.persistedVoucher)
}

// TestCollector_ExactChunkSizeTakesSingleShotPath covers a batch of exactly chunkSize still taking
// the single-shot path.
func TestCollector_ExactChunkSizeTakesSingleShotPath(t *testing.T) {
	allocation := common.HexToAddress("0xC000000000000000000000000000000000000C")
	receipts := make([]types.AllocationReceipt, chunkSize)
	for i := range receipts {
		var rid types.ReceiptID
		rid[len(rid)-2] = byte(i >> 8)
		rid[len(rid)-1] = byte(i)
		receipts[i] = types.AllocationReceipt{ID: rid, Allocation: allocation, Fees: big.NewInt(1)}
	}
	st := newFakeStore()
	st.closed[allocation] = receipts
	gw := &fakeGateway{nextAllocation: allocation}
	q := queue.New()
	now := time.Unix(0, 0)
	c := New(st, q, gw, nil, discardLogger(), func() time.Time { return now })

	_, err := c.CollectReceipts(context.Background(), uuid.New(), allocation)
	require.NoError(t, err)
	now = now.Add(receiptsBatchTimeout)
	c.Tick(context.Background())

	require.Equal(t, 1, gw.collectCalls)
	require.Equal(t, 0, gw.partialCalls)
}

// TestCollector_CollectReceiptsOnZeroReceiptsReturnsFalse covers an allocation with no receipts:
// CollectReceipts returns false and nothing is queued. The fake store does not record closedAt,
// so that part is not checked here.
func TestCollector_CollectReceiptsOnZeroReceiptsReturnsFalse(t *testing.T) {
	allocation := common.HexToAddress("0xD000000000000000000000000000000000000D")
	st := newFakeStore()
	gw := &fakeGateway{nextAllocation: allocation}
	q := queue.New()
	c := New(st, q, gw, nil, discardLogger(), nil)

	ok, err := c.CollectReceipts(context.Background(), uuid.New(), allocation)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, q.Len())
}

// TestCollector_SetsCollectedFeesGauge covers the voucher_collected_fees gauge being set to the
// allocation's new cumulative collected fees after a successful exchange.
func TestCollector_SetsCollectedFeesGauge(t *testing.T) {
	allocation := common.HexToAddress("0xE000000000000000000000000000000000000E")
	st := newFakeStore()
	st.closed[allocation] = []types.AllocationReceipt{
		receiptWithFees(1, allocation, 10),
		receiptWithFees(2, allocation, 20),
		receiptWithFees(3, allocation, 30),
	}
	gw := &fakeGateway{nextAllocation: allocation}
	q := queue.New()
	m := metrics.New(prometheus.NewRegistry())
	now := time.Unix(0, 0)
	c := New(st, q, gw, m, discardLogger(), func() time.Time { return now })

	_, err := c.CollectReceipts(context.Background(), uuid.New(), allocation)
	require.NoError(t, err)
	now = now.Add(receiptsBatchTimeout)
	c.Tick(context.Background())

	label := types.NormalizeAllocationID(allocation)
	require.Equal(t, 60.0, testutil.ToFloat64(m.CollectedFees.WithLabelValues(label)))
}
