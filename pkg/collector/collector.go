// Package collector implements the receipt-collector half of the core: the public
// RememberAllocations/CollectReceipts API, and the delayed collection state machine
// (encoding -> exchanging -> persisting -> done|failed) that the 10s tick drives.
package collector

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/dl-graf/indexer-agent/pkg/codec"
	"github.com/dl-graf/indexer-agent/pkg/errs"
	"github.com/dl-graf/indexer-agent/pkg/metrics"
	"github.com/dl-graf/indexer-agent/pkg/queue"
	"github.com/dl-graf/indexer-agent/pkg/store"
	"github.com/dl-graf/indexer-agent/pkg/types"
)

// receiptsBatchTimeout is the delay between closing an allocation and the batch becoming eligible
// for gateway exchange.
const receiptsBatchTimeout = 20 * time.Minute

// chunkSize is the receipt-count threshold between the single-shot and chunked exchange paths.
const chunkSize = 25000

// GatewayExchanger is the subset of pkg/gateway.Client the collector's state machine needs.
type GatewayExchanger interface {
	CollectReceipts(ctx context.Context, payload []byte) (types.Voucher, error)
	PartialVoucher(ctx context.Context, payload []byte) (types.PartialVoucher, error)
	Voucher(ctx context.Context, payload []byte) (types.Voucher, error)
}

// Clock abstracts wall-clock time so tests can control batch timeouts deterministically.
type Clock func() time.Time

// Collector drives the receipt-collection public API and the delayed exchange state machine.
type Collector struct {
	store   store.Store
	queue   *queue.DelayQueue
	gateway GatewayExchanger
	metrics *metrics.Metrics
	log     log.Logger
	now     Clock
}

// New constructs a Collector. now defaults to time.Now when nil.
func New(s store.Store, q *queue.DelayQueue, gw GatewayExchanger, m *metrics.Metrics, logger log.Logger, now Clock) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{store: s, queue: q, gateway: gw, metrics: m, log: logger, now: now}
}

// RememberAllocations upserts a zeroed AllocationSummary for every id, idempotently. Returns false
// (and logs) on any error rather than propagating it.
func (c *Collector) RememberAllocations(ctx context.Context, actionID uuid.UUID, allocations []common.Address) bool {
	if err := c.store.EnsureSummaries(ctx, allocations); err != nil {
		c.log.Error("remember allocations failed", "actionID", actionID, "err", errs.Wrap(errs.RememberAllocationsFailed, err))
		return false
	}
	return true
}

// CollectReceipts closes an allocation and, if it has outstanding receipts, queues them for
// exchange. Errors propagate: the close-allocation workflow that invokes this treats failure as
// fatal for that action.
func (c *Collector) CollectReceipts(ctx context.Context, actionID uuid.UUID, allocation common.Address) (bool, error) {
	receipts, err := c.store.CloseAllocationAndLoadReceipts(ctx, allocation, c.now())
	if err != nil {
		return false, errs.Wrap(errs.QueueReceiptsFailed, err)
	}
	if len(receipts) == 0 {
		return false, nil
	}

	batch := types.ReceiptsBatch{
		Receipts: receipts,
		Timeout:  c.now().Add(receiptsBatchTimeout).UnixMilli(),
	}
	c.queue.Push(batch)
	if c.metrics != nil {
		c.metrics.ReceiptsToCollect.WithLabelValues(types.NormalizeAllocationID(allocation)).Set(float64(len(receipts)))
	}
	c.log.Info("queued receipts batch", "actionID", actionID, "allocation", allocation, "receipts", len(receipts))
	return true, nil
}

// Tick drains every batch whose timeout has elapsed and runs the exchange state machine on each,
// in heap order, all within one tick.
func (c *Collector) Tick(ctx context.Context) {
	ready := c.queue.DrainReady(c.now().UnixMilli())
	for _, batch := range ready {
		c.exchange(ctx, batch)
	}
}

// exchange runs the encoding -> exchanging -> persisting -> done|failed state machine for one
// drained batch.
func (c *Collector) exchange(ctx context.Context, batch types.ReceiptsBatch) {
	allocation := batch.Allocation()
	label := types.NormalizeAllocationID(allocation)
	start := time.Now()

	voucher, err := c.runExchange(ctx, allocation, batch.Receipts)
	if c.metrics != nil {
		c.metrics.ExchangeDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.ReceiptsFailed.WithLabelValues(label).Inc()
		}
		c.log.Error("collect exchange failed", "allocation", allocation, "err", errs.Wrap(errs.CollectExchangeFailed, err))
		return
	}

	// The gateway's returned address may differ in case from the requested one; canonicalize
	// before persisting.
	canonical, err := types.ParseAllocationID(voucher.Allocation.Hex())
	if err == nil {
		voucher.Allocation = canonical
	}

	receiptIDs := make([]types.ReceiptID, len(batch.Receipts))
	for i, r := range batch.Receipts {
		receiptIDs[i] = r.ID
	}

	collectedFees, err := c.store.PersistExchange(ctx, receiptIDs, voucher)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ReceiptsFailed.WithLabelValues(label).Inc()
		}
		c.log.Error("collect exchange failed", "allocation", allocation, "err", errs.Wrap(errs.CollectExchangeFailed, err))
		return
	}

	if c.metrics != nil {
		c.metrics.Vouchers.WithLabelValues(label).Inc()
		c.metrics.ReceiptsToCollect.WithLabelValues(label).Set(0)
		c.metrics.VouchersToExchange.WithLabelValues(label).Inc()
		collectedFloat, _ := new(big.Float).SetInt(collectedFees).Float64()
		c.metrics.CollectedFees.WithLabelValues(label).Set(collectedFloat)
	}
	c.log.Info("persisted voucher", "allocation", allocation, "amount", voucher.Amount)
}

// runExchange implements the encoding/exchanging states: single-shot for <=25,000 receipts,
// chunked partial-voucher aggregation otherwise.
func (c *Collector) runExchange(ctx context.Context, allocation common.Address, receipts []types.AllocationReceipt) (types.Voucher, error) {
	if len(receipts) <= chunkSize {
		payload, err := codec.EncodeReceiptBatch(allocation, receipts)
		if err != nil {
			return types.Voucher{}, err
		}
		return c.gateway.CollectReceipts(ctx, payload)
	}

	chunks := codec.ReceiptBatchChunks(receipts, chunkSize)
	partials := make([]types.PartialVoucher, 0, len(chunks))
	for _, chunk := range chunks {
		payload, err := codec.EncodeReceiptBatch(allocation, chunk)
		if err != nil {
			return types.Voucher{}, err
		}
		partial, err := c.gateway.PartialVoucher(ctx, payload)
		if err != nil {
			return types.Voucher{}, err
		}
		partials = append(partials, partial)
	}

	payload, err := codec.EncodePartialVoucherBatch(allocation, partials)
	if err != nil {
		return types.Voucher{}, err
	}
	return c.gateway.Voucher(ctx, payload)
}
