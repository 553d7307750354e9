package bindings

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dl-graf/indexer-agent/pkg/chain"
)

// ChainExchange adapts AllocationExchange to the pkg/chain.AllocationExchange interface the
// redeemer depends on, signing transactions with signer.
type ChainExchange struct {
	contract *AllocationExchange
	signer   bind.SignerFn
	from     common.Address
}

// NewChainExchange returns a chain.AllocationExchange backed by contract, using signer to
// authorize outgoing transactions as from.
func NewChainExchange(contract *AllocationExchange, from common.Address, signer bind.SignerFn) *ChainExchange {
	return &ChainExchange{contract: contract, signer: signer, from: from}
}

func toContractVouchers(vouchers []chain.RedeemVoucher) []Voucher {
	out := make([]Voucher, len(vouchers))
	for i, v := range vouchers {
		out[i] = Voucher{AllocationID: v.AllocationID, Amount: v.Amount, Signature: common.FromHex(v.Signature)}
	}
	return out
}

// EstimateRedeemMany estimates gas for a redeemMany call without submitting it.
func (c *ChainExchange) EstimateRedeemMany(ctx context.Context, vouchers []chain.RedeemVoucher) (uint64, error) {
	opts := &bind.TransactOpts{
		From:    c.from,
		Signer:  c.signer,
		Context: ctx,
	}
	return c.contract.EstimateGasRedeemMany(ctx, opts, toContractVouchers(vouchers))
}

// SendRedeemMany submits redeemMany with gasLimit.
func (c *ChainExchange) SendRedeemMany(ctx context.Context, vouchers []chain.RedeemVoucher, gasLimit uint64) (*types.Transaction, error) {
	opts := &bind.TransactOpts{
		From:     c.from,
		Signer:   c.signer,
		Context:  ctx,
		GasLimit: gasLimit,
	}
	return c.contract.RedeemMany(opts, toContractVouchers(vouchers))
}

// AllocationsRedeemed calls the view method of the same name.
func (c *ChainExchange) AllocationsRedeemed(ctx context.Context, allocationID common.Address) (bool, error) {
	return c.contract.AllocationsRedeemed(&bind.CallOpts{Context: ctx}, allocationID)
}
