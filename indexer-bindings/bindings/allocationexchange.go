// Package bindings holds a hand-maintained go-ethereum ABI binding for the allocation exchange
// contract. Its ABI constant mirrors abi/AllocationExchange.json; the file is written by hand, not
// produced by indexer-bindings/bindgen.
package bindings

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AllocationExchangeABI is the contract's JSON ABI, covering exactly the two methods this core
// depends on: redeemMany and allocationsRedeemed.
const AllocationExchangeABI = `[
	{
		"type": "function",
		"name": "redeemMany",
		"stateMutability": "nonpayable",
		"inputs": [
			{
				"name": "vouchers",
				"type": "tuple[]",
				"components": [
					{"name": "allocationID", "type": "address"},
					{"name": "amount", "type": "uint256"},
					{"name": "signature", "type": "bytes"}
				]
			}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "allocationsRedeemed",
		"stateMutability": "view",
		"inputs": [{"name": "allocationID", "type": "address"}],
		"outputs": [{"name": "", "type": "bool"}]
	}
]`

// Voucher is the on-chain tuple shape redeemMany expects: allocation, redeemed amount, and the
// gateway-issued signature authorizing it.
type Voucher struct {
	AllocationID common.Address
	Amount       *big.Int
	Signature    []byte
}

// AllocationExchange is a thin bind.BoundContract wrapper exposing exactly the two ABI methods
// this core depends on.
type AllocationExchange struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewAllocationExchange binds to a deployed allocation exchange contract at address using caller
// for reads and transactor for writes.
func NewAllocationExchange(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor, filterer bind.ContractFilterer) (*AllocationExchange, error) {
	parsed, err := abi.JSON(strings.NewReader(AllocationExchangeABI))
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(address, parsed, caller, transactor, filterer)
	return &AllocationExchange{address: address, contract: contract}, nil
}

// AllocationsRedeemed calls the view method of the same name.
func (a *AllocationExchange) AllocationsRedeemed(opts *bind.CallOpts, allocationID common.Address) (bool, error) {
	var out []interface{}
	err := a.contract.Call(opts, &out, "allocationsRedeemed", allocationID)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// RedeemMany submits the redeemMany transaction with the given vouchers.
func (a *AllocationExchange) RedeemMany(opts *bind.TransactOpts, vouchers []Voucher) (*types.Transaction, error) {
	return a.contract.Transact(opts, "redeemMany", vouchers)
}

// EstimateGasRedeemMany estimates gas for a redeemMany call without submitting it.
func (a *AllocationExchange) EstimateGasRedeemMany(ctx context.Context, opts *bind.TransactOpts, vouchers []Voucher) (uint64, error) {
	estimateOpts := *opts
	estimateOpts.NoSend = true
	estimateOpts.GasLimit = 0
	tx, err := a.contract.Transact(&estimateOpts, "redeemMany", vouchers)
	if err != nil {
		return 0, err
	}
	return tx.Gas(), nil
}
