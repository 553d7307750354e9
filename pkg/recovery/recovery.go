// Package recovery implements startup reconstruction of in-memory pending receipt batches from
// durable state: closed allocation summaries plus their undeleted receipts.
package recovery

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dl-graf/indexer-agent/pkg/queue"
	"github.com/dl-graf/indexer-agent/pkg/store"
	"github.com/dl-graf/indexer-agent/pkg/types"
)

// receiptsBatchTimeout mirrors the collector's delay between closing an allocation and the batch
// becoming eligible for exchange.
const receiptsBatchTimeout = 20 * time.Minute

// QueuePendingReceiptsFromDatabase seeds the delay queue from every closed allocation's
// still-undeleted receipts.
func QueuePendingReceiptsFromDatabase(ctx context.Context, s store.Store, q *queue.DelayQueue, logger log.Logger) error {
	summaries, err := s.LoadClosedSummaries(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		return nil
	}

	batches := make(map[common.Address]*types.ReceiptsBatch, len(summaries))
	allocations := make([]common.Address, 0, len(summaries))
	for _, summary := range summaries {
		if summary.ClosedAt == nil {
			continue
		}
		allocations = append(allocations, summary.Allocation)
		timeout := time.UnixMilli(*summary.ClosedAt).Add(receiptsBatchTimeout).UnixMilli()
		batches[summary.Allocation] = &types.ReceiptsBatch{Timeout: timeout}
	}

	receipts, err := s.LoadReceiptsForAllocations(ctx, allocations)
	if err != nil {
		return err
	}
	for _, r := range receipts {
		batch, ok := batches[r.Allocation]
		if !ok {
			// A receipt whose allocation isn't among the closed summaries we just loaded indicates
			// the store returned rows outside the requested set.
			panic("indexer-agent: recovered receipt references an unknown allocation")
		}
		batch.Receipts = append(batch.Receipts, r)
	}

	seeded := 0
	for _, batch := range batches {
		if len(batch.Receipts) == 0 {
			continue
		}
		q.Push(*batch)
		seeded++
	}
	logger.Info("recovered pending receipt batches", "summaries", len(summaries), "seeded", seeded)
	return nil
}
