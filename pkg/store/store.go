// Package store is the persistence adapter providing strongly-typed access to
// receipts/summaries/vouchers within serializable transactions. It is the one place in this
// repository that knows about SQL; every other package depends only on the Store interface.
package store

import (
	"context"
	"database/sql"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dl-graf/indexer-agent/pkg/types"
)

// Store is the transactional persistence contract the collector, redeemer and recovery depend on.
// Every method that touches more than one row across tables does so inside a single serializable
// transaction.
type Store interface {
	// EnsureSummaries upserts a zeroed AllocationSummary for every id not already present.
	// Idempotent.
	EnsureSummaries(ctx context.Context, allocations []common.Address) error

	// CloseAllocationAndLoadReceipts sets closedAt=now on the summary (creating it if absent) and
	// returns all receipts for the allocation ordered by id ascending, in one transaction.
	CloseAllocationAndLoadReceipts(ctx context.Context, allocation common.Address, now time.Time) ([]types.AllocationReceipt, error)

	// PersistExchange deletes the given receipt ids, ensures a summary for voucher.Allocation,
	// adds voucher.Amount to its CollectedFees, and upserts the voucher row — all in one
	// transaction. A voucher row always implies its receipts are gone. Returns the allocation's
	// new cumulative CollectedFees so callers can report it (e.g. the collected-fees gauge).
	PersistExchange(ctx context.Context, receiptIDs []types.ReceiptID, voucher types.Voucher) (*big.Int, error)

	// LoadVouchersByAmountDesc loads up to limit vouchers ordered by amount descending.
	LoadVouchersByAmountDesc(ctx context.Context, limit int) ([]types.Voucher, error)

	// DeleteVoucher removes a stale voucher (the allocation has already been redeemed on-chain).
	DeleteVoucher(ctx context.Context, allocation common.Address) error

	// PersistRedemption adds amount to each voucher's allocation summary WithdrawnFees and deletes
	// the corresponding voucher rows, all in one transaction.
	PersistRedemption(ctx context.Context, redeemed []types.Voucher) error

	// LoadClosedSummaries returns every summary with a non-null ClosedAt, for recovery.
	LoadClosedSummaries(ctx context.Context) ([]types.AllocationSummary, error)

	// LoadReceiptsForAllocations returns every receipt whose allocation is in the given set,
	// ordered by id ascending, for recovery.
	LoadReceiptsForAllocations(ctx context.Context, allocations []common.Address) ([]types.AllocationReceipt, error)
}

type gormStore struct {
	db *gorm.DB
}

// Open connects to Postgres and returns a Store. dsn is a standard postgres connection string.
func Open(dsn string) (Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres connection")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "unwrapping sql.DB")
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	return &gormStore{db: db}, nil
}

// NewWithDB wraps an already-open *gorm.DB, primarily for tests against sqlite/pgmock fixtures.
func NewWithDB(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (s *gormStore) EnsureSummaries(ctx context.Context, allocations []common.Address) error {
	err := s.tx(ctx, func(tx *gorm.DB) error {
		for _, a := range allocations {
			if err := ensureSummary(tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "ensure summaries")
}

// ensureSummary upserts a zeroed summary row if one doesn't already exist. Must run inside an
// open transaction.
func ensureSummary(tx *gorm.DB, allocation common.Address) error {
	row := summaryRow{
		Allocation:    types.NormalizeAllocationID(allocation),
		CollectedFees: "0",
		WithdrawnFees: "0",
	}
	return tx.
		Where(summaryRow{Allocation: row.Allocation}).
		FirstOrCreate(&row).Error
}

func (s *gormStore) CloseAllocationAndLoadReceipts(ctx context.Context, allocation common.Address, now time.Time) ([]types.AllocationReceipt, error) {
	var receipts []types.AllocationReceipt
	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := ensureSummary(tx, allocation); err != nil {
			return err
		}
		normalized := types.NormalizeAllocationID(allocation)
		if err := tx.Model(&summaryRow{}).
			Where("allocation = ?", normalized).
			Update("closed_at", now).Error; err != nil {
			return err
		}

		var rows []receiptRow
		if err := tx.Where("allocation = ?", normalized).Order("id ASC").Find(&rows).Error; err != nil {
			return err
		}
		var err error
		receipts, err = decodeReceiptRows(allocation, rows)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "close allocation and load receipts")
	}
	return receipts, nil
}

func (s *gormStore) PersistExchange(ctx context.Context, receiptIDs []types.ReceiptID, voucher types.Voucher) (*big.Int, error) {
	var collected *big.Int
	err := s.tx(ctx, func(tx *gorm.DB) error {
		ids := make([]string, len(receiptIDs))
		for i, id := range receiptIDs {
			ids[i] = id.String()
		}
		if len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Delete(&receiptRow{}).Error; err != nil {
				return err
			}
		}

		if err := ensureSummary(tx, voucher.Allocation); err != nil {
			return err
		}
		normalized := types.NormalizeAllocationID(voucher.Allocation)

		var summary summaryRow
		if err := tx.Where("allocation = ?", normalized).First(&summary).Error; err != nil {
			return err
		}
		var ok bool
		collected, ok = new(big.Int).SetString(summary.CollectedFees, 10)
		if !ok {
			collected = big.NewInt(0)
		}
		collected.Add(collected, voucher.Amount)
		if err := tx.Model(&summaryRow{}).
			Where("allocation = ?", normalized).
			Update("collected_fees", collected.String()).Error; err != nil {
			return err
		}

		v := voucherRow{
			Allocation: normalized,
			Amount:     voucher.Amount.String(),
			Signature:  voucher.Signature,
		}
		return tx.Where(voucherRow{Allocation: normalized}).
			Assign(v).
			FirstOrCreate(&v).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "persist exchange")
	}
	return collected, nil
}

func (s *gormStore) LoadVouchersByAmountDesc(ctx context.Context, limit int) ([]types.Voucher, error) {
	var rows []voucherRow
	err := s.db.WithContext(ctx).Order("amount DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "load vouchers by amount")
	}
	vouchers := make([]types.Voucher, len(rows))
	for i, r := range rows {
		amount, ok := new(big.Int).SetString(r.Amount, 10)
		if !ok {
			return nil, errors.Errorf("voucher %s has non-numeric amount %q", r.Allocation, r.Amount)
		}
		vouchers[i] = types.Voucher{
			Allocation: common.HexToAddress(r.Allocation),
			Amount:     amount,
			Signature:  r.Signature,
		}
	}
	return vouchers, nil
}

func (s *gormStore) DeleteVoucher(ctx context.Context, allocation common.Address) error {
	err := s.db.WithContext(ctx).
		Where("allocation = ?", types.NormalizeAllocationID(allocation)).
		Delete(&voucherRow{}).Error
	return errors.Wrap(err, "delete stale voucher")
}

func (s *gormStore) PersistRedemption(ctx context.Context, redeemed []types.Voucher) error {
	err := s.tx(ctx, func(tx *gorm.DB) error {
		for _, v := range redeemed {
			if err := ensureSummary(tx, v.Allocation); err != nil {
				return err
			}
			normalized := types.NormalizeAllocationID(v.Allocation)

			var summary summaryRow
			if err := tx.Where("allocation = ?", normalized).First(&summary).Error; err != nil {
				return err
			}
			withdrawn, ok := new(big.Int).SetString(summary.WithdrawnFees, 10)
			if !ok {
				withdrawn = big.NewInt(0)
			}
			withdrawn.Add(withdrawn, v.Amount)
			if err := tx.Model(&summaryRow{}).
				Where("allocation = ?", normalized).
				Update("withdrawn_fees", withdrawn.String()).Error; err != nil {
				return err
			}

			if err := tx.Where("allocation = ?", normalized).Delete(&voucherRow{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "persist redemption")
}

func (s *gormStore) LoadClosedSummaries(ctx context.Context) ([]types.AllocationSummary, error) {
	var rows []summaryRow
	if err := s.db.WithContext(ctx).Where("closed_at IS NOT NULL").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load closed summaries")
	}
	out := make([]types.AllocationSummary, len(rows))
	for i, r := range rows {
		collected, _ := new(big.Int).SetString(r.CollectedFees, 10)
		withdrawn, _ := new(big.Int).SetString(r.WithdrawnFees, 10)
		var closedAtMillis *int64
		if r.ClosedAt != nil {
			v := r.ClosedAt.UnixMilli()
			closedAtMillis = &v
		}
		out[i] = types.AllocationSummary{
			Allocation:    common.HexToAddress(r.Allocation),
			ClosedAt:      closedAtMillis,
			CollectedFees: collected,
			WithdrawnFees: withdrawn,
		}
	}
	return out, nil
}

func (s *gormStore) LoadReceiptsForAllocations(ctx context.Context, allocations []common.Address) ([]types.AllocationReceipt, error) {
	if len(allocations) == 0 {
		return nil, nil
	}
	normalized := make([]string, len(allocations))
	for i, a := range allocations {
		normalized[i] = types.NormalizeAllocationID(a)
	}
	var rows []receiptRow
	err := s.db.WithContext(ctx).Where("allocation IN ?", normalized).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "load receipts for allocations")
	}
	byAlloc := make(map[string]common.Address, len(allocations))
	for _, a := range allocations {
		byAlloc[types.NormalizeAllocationID(a)] = a
	}
	receipts := make([]types.AllocationReceipt, 0, len(rows))
	for _, row := range rows {
		alloc, ok := byAlloc[row.Allocation]
		if !ok {
			alloc = common.HexToAddress(row.Allocation)
		}
		r, err := decodeReceiptRow(alloc, row)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func decodeReceiptRows(allocation common.Address, rows []receiptRow) ([]types.AllocationReceipt, error) {
	out := make([]types.AllocationReceipt, len(rows))
	for i, row := range rows {
		r, err := decodeReceiptRow(allocation, row)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func decodeReceiptRow(allocation common.Address, row receiptRow) (types.AllocationReceipt, error) {
	id, err := types.ParseReceiptID(row.ID)
	if err != nil {
		return types.AllocationReceipt{}, errors.Wrapf(err, "receipt id %q", row.ID)
	}
	sig, err := types.ParseSignature(row.Signature)
	if err != nil {
		return types.AllocationReceipt{}, errors.Wrapf(err, "receipt signature for %q", row.ID)
	}
	fees, ok := new(big.Int).SetString(row.Fees, 10)
	if !ok {
		return types.AllocationReceipt{}, errors.Errorf("receipt %q has non-numeric fees %q", row.ID, row.Fees)
	}
	return types.AllocationReceipt{
		ID:         id,
		Allocation: allocation,
		Fees:       fees,
		Signature:  sig,
	}, nil
}
