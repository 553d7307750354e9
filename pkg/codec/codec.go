// Package codec implements the deterministic binary encodings for the gateway exchange: a
// receipt batch (20 + 112n bytes) and a partial-voucher batch (20 + 128n bytes). Both are
// big-endian, fixed-width, and zero-padded — there is no varint or length prefix anywhere in the
// wire format, so encode/decode are pure byte-slicing.
package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/dl-graf/indexer-agent/pkg/types"
)

const (
	allocationIDSize = common.AddressLength // 20
	feesFieldSize    = 33

	// receiptRecordSize is the per-receipt slot size within a receipt-batch encoding:
	// 33 (fees) + 15 (id) + 64 (signature).
	receiptRecordSize = feesFieldSize + types.ReceiptIDSize + types.SignatureSize

	// partialVoucherRecordSize is the per-entry slot size within a partial-voucher-batch
	// encoding: 33 (fees) + 32 (signature) + 32 (receipt_id_min) + 32 (receipt_id_max).
	partialVoucherRecordSize = feesFieldSize + 3*types.PartialVoucherSignatureSize
)

// EncodeReceiptBatch produces the receipt-batch wire encoding. Receipts must already be
// ordered ascending by id and share one allocation — EncodeReceiptBatch does not sort or
// validate allocation homogeneity, since ReceiptsBatch's own invariants guarantee both.
//
// Any receipt whose fees exceed the 33-byte slot is reported; all such violations across the
// batch are collected into a single multierror rather than failing on the first one, so an
// operator can see every malformed receipt from one failed encode.
func EncodeReceiptBatch(allocation common.Address, receipts []types.AllocationReceipt) ([]byte, error) {
	out := make([]byte, allocationIDSize+receiptRecordSize*len(receipts))
	copy(out[:allocationIDSize], allocation[:])

	var errs *multierror.Error
	off := allocationIDSize
	for i, r := range receipts {
		if err := putPaddedBigInt(out[off:off+feesFieldSize], r.Fees); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("receipt %d (%s): %w", i, r.ID, err))
		}
		off += feesFieldSize
		copy(out[off:off+types.ReceiptIDSize], r.ID[:])
		off += types.ReceiptIDSize
		copy(out[off:off+types.SignatureSize], r.Signature[:])
		off += types.SignatureSize
	}
	if errs != nil {
		return nil, errs.ErrorOrNil()
	}
	return out, nil
}

// EncodePartialVoucherBatch produces the partial-voucher-batch wire encoding.
func EncodePartialVoucherBatch(allocation common.Address, partials []types.PartialVoucher) ([]byte, error) {
	out := make([]byte, allocationIDSize+partialVoucherRecordSize*len(partials))
	copy(out[:allocationIDSize], allocation[:])

	var errs *multierror.Error
	off := allocationIDSize
	for i, p := range partials {
		if err := putPaddedBigInt(out[off:off+feesFieldSize], p.Fees); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("partial voucher %d: %w", i, err))
		}
		off += feesFieldSize
		copy(out[off:off+types.PartialVoucherSignatureSize], p.Signature[:])
		off += types.PartialVoucherSignatureSize
		copy(out[off:off+types.PartialVoucherSignatureSize], p.ReceiptIDMin[:])
		off += types.PartialVoucherSignatureSize
		copy(out[off:off+types.PartialVoucherSignatureSize], p.ReceiptIDMax[:])
		off += types.PartialVoucherSignatureSize
	}
	if errs != nil {
		return nil, errs.ErrorOrNil()
	}
	return out, nil
}

// putPaddedBigInt writes v as a big-endian unsigned integer, left-zero-padded to exactly
// len(slot) bytes. It rejects negative values and values whose natural encoding exceeds the slot.
func putPaddedBigInt(slot []byte, v *big.Int) error {
	for i := range slot {
		slot[i] = 0
	}
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return fmt.Errorf("fees must be non-negative, got %s", v.String())
	}
	natural := v.Bytes() // big-endian, no leading zero bytes
	if len(natural) > len(slot) {
		return fmt.Errorf("fees value %s needs %d bytes, exceeds %d-byte slot", v.String(), len(natural), len(slot))
	}
	copy(slot[len(slot)-len(natural):], natural)
	return nil
}

// DecodedReceiptBatch is the parsed, field-by-field form of an encoded receipt batch, used by
// round-trip tests and by any counterparty that needs to read back what it encoded.
type DecodedReceiptBatch struct {
	Allocation common.Address
	Receipts   []types.AllocationReceipt
}

// DecodeReceiptBatch parses bytes produced by EncodeReceiptBatch.
func DecodeReceiptBatch(b []byte) (*DecodedReceiptBatch, error) {
	if len(b) < allocationIDSize {
		return nil, fmt.Errorf("receipt batch too short: %d bytes", len(b))
	}
	rest := len(b) - allocationIDSize
	if rest%receiptRecordSize != 0 {
		return nil, fmt.Errorf("receipt batch length %d is not 20 + 112n", len(b))
	}
	n := rest / receiptRecordSize

	var allocation common.Address
	copy(allocation[:], b[:allocationIDSize])

	out := &DecodedReceiptBatch{Allocation: allocation, Receipts: make([]types.AllocationReceipt, n)}
	off := allocationIDSize
	for i := 0; i < n; i++ {
		fees := new(big.Int).SetBytes(b[off : off+feesFieldSize])
		off += feesFieldSize
		var id types.ReceiptID
		copy(id[:], b[off:off+types.ReceiptIDSize])
		off += types.ReceiptIDSize
		var sig types.Signature
		copy(sig[:], b[off:off+types.SignatureSize])
		off += types.SignatureSize
		out.Receipts[i] = types.AllocationReceipt{
			ID:         id,
			Allocation: allocation,
			Fees:       fees,
			Signature:  sig,
		}
	}
	return out, nil
}

// DecodedPartialVoucherBatch is the parsed, field-by-field form of an encoded partial-voucher
// batch.
type DecodedPartialVoucherBatch struct {
	Allocation common.Address
	Partials   []types.PartialVoucher
}

// DecodePartialVoucherBatch parses bytes produced by EncodePartialVoucherBatch.
func DecodePartialVoucherBatch(b []byte) (*DecodedPartialVoucherBatch, error) {
	if len(b) < allocationIDSize {
		return nil, fmt.Errorf("partial voucher batch too short: %d bytes", len(b))
	}
	rest := len(b) - allocationIDSize
	if rest%partialVoucherRecordSize != 0 {
		return nil, fmt.Errorf("partial voucher batch length %d is not 20 + 128n", len(b))
	}
	n := rest / partialVoucherRecordSize

	var allocation common.Address
	copy(allocation[:], b[:allocationIDSize])

	out := &DecodedPartialVoucherBatch{Allocation: allocation, Partials: make([]types.PartialVoucher, n)}
	off := allocationIDSize
	for i := 0; i < n; i++ {
		fees := new(big.Int).SetBytes(b[off : off+feesFieldSize])
		off += feesFieldSize
		p := types.PartialVoucher{Allocation: allocation, Fees: fees}
		copy(p.Signature[:], b[off:off+types.PartialVoucherSignatureSize])
		off += types.PartialVoucherSignatureSize
		copy(p.ReceiptIDMin[:], b[off:off+types.PartialVoucherSignatureSize])
		off += types.PartialVoucherSignatureSize
		copy(p.ReceiptIDMax[:], b[off:off+types.PartialVoucherSignatureSize])
		off += types.PartialVoucherSignatureSize
		out.Partials[i] = p
	}
	return out, nil
}

// ReceiptBatchChunks splits receipts (already ordered ascending by id) into contiguous chunks of
// at most chunkSize, preserving order, for the chunked collection path.
func ReceiptBatchChunks(receipts []types.AllocationReceipt, chunkSize int) [][]types.AllocationReceipt {
	if chunkSize <= 0 {
		panic("indexer-agent: chunkSize must be positive")
	}
	var chunks [][]types.AllocationReceipt
	for off := 0; off < len(receipts); off += chunkSize {
		end := off + chunkSize
		if end > len(receipts) {
			end = len(receipts)
		}
		chunks = append(chunks, receipts[off:end])
	}
	return chunks
}
