// Package chain holds the boundary between this core and its on-chain collaborators: the
// transaction manager and the allocation exchange contract. Both are external collaborators
// referenced only by interface — this package defines those interfaces and the one piece of logic
// that belongs on this side of the boundary, a caching decorator over allocationsRedeemed reads.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Sentinel is a non-error outcome a transaction manager may report instead of a receipt or a Go
// error.
type Sentinel string

const (
	// SentinelNone indicates the call produced a normal chain receipt.
	SentinelNone Sentinel = ""
	// SentinelPaused indicates the underlying contract (or its transaction pipeline) is paused.
	SentinelPaused Sentinel = "paused"
	// SentinelUnauthorized indicates the signer is not authorized to submit this call.
	SentinelUnauthorized Sentinel = "unauthorized"
)

// GasEstimator estimates gas for a pending call, invoking estimateGas.redeemMany.
type GasEstimator func(ctx context.Context) (uint64, error)

// Sender submits a call with a caller-supplied gas limit, invoking
// redeemMany(..., {gasLimit: estimate}).
type Sender func(ctx context.Context, gasLimit uint64) (*types.Transaction, error)

// Result is what TransactionManager.Send returns: either a mined receipt, or a sentinel
// explaining why nothing was sent.
type Result struct {
	Receipt  *types.Receipt
	Sentinel Sentinel
}

// TransactionManager is the out-of-scope collaborator: given a gas estimator and a sender, it
// executes an on-chain call and returns a receipt or a sentinel (paused, unauthorized). Its
// implementation (nonce management, gas-price bumping, resubmission) lives outside this core;
// this core only depends on the interface.
type TransactionManager interface {
	Send(ctx context.Context, estimate GasEstimator, send Sender, logCtx ...any) (*Result, error)
}

// RedeemVoucher is the on-chain-call-shaped form of a Voucher: allocation, amount, and a
// 0x-prefixed hex signature.
type RedeemVoucher struct {
	AllocationID common.Address
	Amount       *big.Int
	Signature    string
}

// AllocationExchange is the out-of-scope collaborator contract exposing redeemMany(vouchers) and
// allocationsRedeemed(allocationId) -> bool. Implemented by indexer-bindings/bindings.
type AllocationExchange interface {
	// EstimateRedeemMany estimates gas for a redeemMany call over the given vouchers.
	EstimateRedeemMany(ctx context.Context, vouchers []RedeemVoucher) (uint64, error)
	// SendRedeemMany submits redeemMany with the given gas limit.
	SendRedeemMany(ctx context.Context, vouchers []RedeemVoucher, gasLimit uint64) (*types.Transaction, error)
	// AllocationsRedeemed reports whether an allocation has already been redeemed on-chain.
	AllocationsRedeemed(ctx context.Context, allocationID common.Address) (bool, error)
}
