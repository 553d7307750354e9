// Package redeemer implements the voucher-redeemer half of the core: a 30s tick that loads
// candidate vouchers, partitions them by on-chain redemption status and threshold, and submits
// an eligible batch through the transaction manager.
package redeemer

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dl-graf/indexer-agent/pkg/chain"
	"github.com/dl-graf/indexer-agent/pkg/errs"
	"github.com/dl-graf/indexer-agent/pkg/metrics"
	"github.com/dl-graf/indexer-agent/pkg/store"
	"github.com/dl-graf/indexer-agent/pkg/types"
)

// Config holds the redemption tuning options read from the agent's configuration.
type Config struct {
	// RedemptionThreshold is the minimum per-voucher amount to consider for redemption.
	RedemptionThreshold *big.Int
	// BatchThreshold is the minimum total batch amount required to submit on-chain.
	BatchThreshold *big.Int
	// MaxBatchSize caps vouchers per on-chain call and the DB-load window.
	MaxBatchSize int
}

// Redeemer drives the on-chain voucher redemption cycle.
type Redeemer struct {
	store    store.Store
	checker  chain.RedeemedChecker
	exchange chain.AllocationExchange
	txMgr    chain.TransactionManager
	metrics  *metrics.Metrics
	log      log.Logger

	cfgMu sync.RWMutex
	cfg   Config
}

// New constructs a Redeemer.
func New(s store.Store, checker chain.RedeemedChecker, exchange chain.AllocationExchange, txMgr chain.TransactionManager, m *metrics.Metrics, logger log.Logger, cfg Config) *Redeemer {
	return &Redeemer{store: s, checker: checker, exchange: exchange, txMgr: txMgr, metrics: m, log: logger, cfg: cfg}
}

// UpdateConfig swaps the redemption tuning options the next tick will use. Wired to
// pkg/config.Watcher's reload callback so voucherRedemptionThreshold/BatchThreshold/MaxBatchSize
// take effect without a process restart.
func (r *Redeemer) UpdateConfig(cfg Config) {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	r.cfg = cfg
}

func (r *Redeemer) config() Config {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg
}

// Tick runs one redemption cycle: load candidates, partition by redemption status and threshold,
// and submit an eligible batch.
func (r *Redeemer) Tick(ctx context.Context) error {
	cfg := r.config()

	candidates, err := r.store.LoadVouchersByAmountDesc(ctx, cfg.MaxBatchSize)
	if err != nil {
		return errs.Wrap(errs.VoucherRedeemFailed, err)
	}

	var eligible []types.Voucher
	var belowThreshold []types.Voucher
	for _, v := range candidates {
		redeemed, err := r.checker.AllocationsRedeemed(ctx, v.Allocation)
		if err != nil {
			r.log.Error("voucher redeem failed", "allocation", v.Allocation, "err", errs.Wrap(errs.VoucherRedeemFailed, err))
			continue
		}
		if redeemed {
			if err := r.store.DeleteVoucher(ctx, v.Allocation); err != nil {
				r.log.Error("voucher redeem failed", "allocation", v.Allocation, "err", errs.Wrap(errs.VoucherRedeemFailed, err))
			}
			continue
		}
		if v.Amount.Cmp(cfg.RedemptionThreshold) < 0 {
			belowThreshold = append(belowThreshold, v)
			continue
		}
		eligible = append(eligible, v)
	}

	if len(belowThreshold) > 0 {
		r.log.Info("vouchers below redemption threshold", "count", len(belowThreshold))
	}
	if len(eligible) == 0 {
		return nil
	}

	// candidates already arrived value-descending; re-sort defensively so callers (and tests)
	// don't have to preserve store ordering through the redeemed/threshold filter above.
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Amount.Cmp(eligible[j].Amount) > 0 })

	batchSize := len(eligible)
	if batchSize > cfg.MaxBatchSize {
		batchSize = cfg.MaxBatchSize
	}
	batch := eligible[:batchSize]

	total := big.NewInt(0)
	for _, v := range batch {
		total.Add(total, v.Amount)
	}
	if total.Cmp(cfg.BatchThreshold) <= 0 {
		r.log.Info("redemption batch below batch threshold", "total", total)
		return nil
	}

	return r.submit(ctx, batch)
}

// submit builds the on-chain payload and invokes the transaction manager.
func (r *Redeemer) submit(ctx context.Context, batch []types.Voucher) error {
	redeemVouchers := make([]chain.RedeemVoucher, len(batch))
	for i, v := range batch {
		redeemVouchers[i] = chain.RedeemVoucher{AllocationID: v.Allocation, Amount: v.Amount, Signature: v.Signature}
	}

	start := time.Now()
	estimate := func(ctx context.Context) (uint64, error) {
		return r.exchange.EstimateRedeemMany(ctx, redeemVouchers)
	}
	send := func(ctx context.Context, gasLimit uint64) (*ethtypes.Transaction, error) {
		return r.exchange.SendRedeemMany(ctx, redeemVouchers, gasLimit)
	}
	result, err := r.txMgr.Send(ctx, estimate, chain.Sender(send), "batchSize", len(batch))
	if r.metrics != nil {
		for _, v := range batch {
			r.metrics.RedeemDuration.WithLabelValues(types.NormalizeAllocationID(v.Allocation)).Observe(time.Since(start).Seconds())
		}
	}
	if err != nil {
		if r.metrics != nil {
			for _, v := range batch {
				r.metrics.VoucherRedeemFailed.WithLabelValues(types.NormalizeAllocationID(v.Allocation)).Inc()
			}
		}
		r.log.Error("voucher redeem failed", "err", errs.Wrap(errs.VoucherRedeemFailed, err))
		return nil
	}

	if result.Sentinel != chain.SentinelNone {
		if r.metrics != nil {
			for _, v := range batch {
				r.metrics.VoucherExchangesInv.WithLabelValues(types.NormalizeAllocationID(v.Allocation)).Inc()
			}
		}
		r.log.Warn("voucher redeem invalid", "sentinel", result.Sentinel)
		return nil
	}

	if err := r.store.PersistRedemption(ctx, batch); err != nil {
		return errs.Wrap(errs.VoucherRedeemFailed, err)
	}
	if r.metrics != nil {
		r.metrics.VouchersRedeem.Set(float64(len(batch)))
		for _, v := range batch {
			r.metrics.VoucherExchangesOK.WithLabelValues(types.NormalizeAllocationID(v.Allocation)).Inc()
		}
	}
	r.log.Info("submitted redemption batch", "size", len(batch), "total", totalAmount(batch))
	return nil
}

func totalAmount(batch []types.Voucher) *big.Int {
	total := big.NewInt(0)
	for _, v := range batch {
		total.Add(total, v.Amount)
	}
	return total
}
