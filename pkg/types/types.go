// Package types defines the receipt/voucher data model shared by the collector, the redeemer
// and the persistence adapter.
package types

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ReceiptIDSize is the width in bytes of an AllocationReceipt identifier.
const ReceiptIDSize = 15

// SignatureSize is the width in bytes of a receipt signature.
const SignatureSize = 64

// PartialVoucherSignatureSize is the width in bytes of a PartialVoucher's signature and its
// receipt-id-range bounds.
const PartialVoucherSignatureSize = 32

// ReceiptID identifies a single AllocationReceipt within an allocation.
type ReceiptID [ReceiptIDSize]byte

// String renders the id as canonical lowercase 0x-prefixed hex.
func (id ReceiptID) String() string {
	return "0x" + common.Bytes2Hex(id[:])
}

// Less orders receipt ids ascending, the canonical ordering for batch encoding.
func (id ReceiptID) Less(other ReceiptID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// ParseReceiptID normalizes a hex string (with or without 0x prefix) into a ReceiptID.
func ParseReceiptID(hexStr string) (ReceiptID, error) {
	var id ReceiptID
	b, err := decodeFixedHex(hexStr, ReceiptIDSize)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

// Signature is a fixed-width 64-byte opaque receipt signature blob.
type Signature [SignatureSize]byte

// ParseSignature normalizes a hex string into a 64-byte Signature.
func ParseSignature(hexStr string) (Signature, error) {
	var sig Signature
	b, err := decodeFixedHex(hexStr, SignatureSize)
	if err != nil {
		return sig, err
	}
	copy(sig[:], b)
	return sig, nil
}

// String renders the signature as canonical lowercase 0x-prefixed hex.
func (s Signature) String() string {
	return "0x" + common.Bytes2Hex(s[:])
}

func decodeFixedHex(hexStr string, width int) ([]byte, error) {
	b := common.FromHex(normalizeHex(hexStr))
	if len(b) != width {
		return nil, &FieldWidthError{Field: "hex value", Got: len(b), Want: width}
	}
	return b, nil
}

// normalizeHex lowercases hex and ensures a 0x prefix. Receipt ids and signatures pass through it
// before decoding; allocation ids are canonicalized by NormalizeAllocationID instead.
func normalizeHex(s string) string {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0X"), "0x"))
	return "0x" + s
}

// NormalizeAllocationID canonicalizes an allocation address: lowercase hex, 0x-prefixed.
func NormalizeAllocationID(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// ParseAllocationID normalizes a hex string into a canonical AllocationID (common.Address).
func ParseAllocationID(hexStr string) (common.Address, error) {
	if !common.IsHexAddress(hexStr) {
		return common.Address{}, &FieldWidthError{Field: "allocation id", Got: len(common.FromHex(normalizeHex(hexStr))), Want: common.AddressLength}
	}
	return common.HexToAddress(hexStr), nil
}

// FieldWidthError reports a hex field whose decoded length doesn't match the slot it must occupy.
type FieldWidthError struct {
	Field string
	Got   int
	Want  int
}

func (e *FieldWidthError) Error() string {
	return e.Field + ": got " + itoa(e.Got) + " bytes, want " + itoa(e.Want)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// AllocationReceipt is a per-query signed fee attestation, created by the (external) query-serving
// path and destroyed atomically once exchanged for a voucher.
type AllocationReceipt struct {
	ID         ReceiptID
	Allocation common.Address
	Fees       *big.Int
	Signature  Signature
}

// AllocationSummary is the per-allocation bookkeeping row: lifecycle timestamp plus cumulative
// fee totals. CollectedFees and WithdrawnFees are monotonically non-decreasing.
type AllocationSummary struct {
	Allocation    common.Address
	ClosedAt      *int64 // unix millis; nil until the allocation is closed
	CollectedFees *big.Int
	WithdrawnFees *big.Int
}

// Voucher is a gateway-signed aggregate claim redeemable on-chain for the sum of its receipts.
type Voucher struct {
	Allocation common.Address
	Amount     *big.Int
	Signature  string // 0x-prefixed hex; gateway-issued signatures aren't fixed-width across providers
}

// PartialVoucher is a transient interim aggregate over a contiguous range of receipt ids, used to
// build a full voucher without resending all receipts. Never persisted.
type PartialVoucher struct {
	Allocation    common.Address
	Fees          *big.Int
	Signature     [PartialVoucherSignatureSize]byte
	ReceiptIDMin  [PartialVoucherSignatureSize]byte
	ReceiptIDMax  [PartialVoucherSignatureSize]byte
}

// ReceiptsBatch is a transient, in-memory unit of work: a non-empty, id-ascending-ordered sequence
// of receipts sharing one allocation, plus the epoch-millisecond timestamp at which it becomes
// eligible for collection.
type ReceiptsBatch struct {
	Receipts []AllocationReceipt
	Timeout  int64
}

// Allocation returns the shared allocation of every receipt in the batch. Panics if the batch is
// empty or mixes allocations — both are programmer errors callers must prevent.
func (b *ReceiptsBatch) Allocation() common.Address {
	if len(b.Receipts) == 0 {
		panic("indexer-agent: empty receipts batch has no allocation")
	}
	a := b.Receipts[0].Allocation
	for _, r := range b.Receipts[1:] {
		if r.Allocation != a {
			panic("indexer-agent: receipts batch mixes allocations")
		}
	}
	return a
}
