package store

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/dl-graf/indexer-agent/pkg/types"
)

func TestDecodeReceiptRow(t *testing.T) {
	allocation := common.HexToAddress("0xA000000000000000000000000000000000000A")
	row := receiptRow{
		ID:        "0x" + strings.Repeat("ab", types.ReceiptIDSize),
		Fees:      "12345",
		Signature: "0x" + strings.Repeat("cd", types.SignatureSize),
	}

	receipt, err := decodeReceiptRow(allocation, row)
	require.NoError(t, err)
	require.Equal(t, allocation, receipt.Allocation)
	require.Equal(t, "12345", receipt.Fees.String())
	require.Equal(t, row.ID, receipt.ID.String())
	require.Equal(t, row.Signature, receipt.Signature.String())
}

func TestDecodeReceiptRow_NonNumericFees(t *testing.T) {
	allocation := common.HexToAddress("0xB000000000000000000000000000000000000B")
	row := receiptRow{
		ID:        "0x" + strings.Repeat("ab", types.ReceiptIDSize),
		Fees:      "not-a-number",
		Signature: "0x" + strings.Repeat("cd", types.SignatureSize),
	}

	_, err := decodeReceiptRow(allocation, row)
	require.Error(t, err)
}

func TestDecodeReceiptRow_WrongWidthID(t *testing.T) {
	allocation := common.HexToAddress("0xC000000000000000000000000000000000000C")
	row := receiptRow{
		ID:        "0xabcd",
		Fees:      "1",
		Signature: "0x" + strings.Repeat("cd", types.SignatureSize),
	}

	_, err := decodeReceiptRow(allocation, row)
	require.Error(t, err)
}

func TestDecodeReceiptRows_PreservesOrder(t *testing.T) {
	allocation := common.HexToAddress("0xD000000000000000000000000000000000000D")
	rows := []receiptRow{
		{ID: "0x" + strings.Repeat("01", types.ReceiptIDSize), Fees: "1", Signature: "0x" + strings.Repeat("cd", types.SignatureSize)},
		{ID: "0x" + strings.Repeat("02", types.ReceiptIDSize), Fees: "2", Signature: "0x" + strings.Repeat("cd", types.SignatureSize)},
	}

	receipts, err := decodeReceiptRows(allocation, rows)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	require.Equal(t, "1", receipts[0].Fees.String())
	require.Equal(t, "2", receipts[1].Fees.String())
}

func TestEnsureSummaryRow_ZeroedFields(t *testing.T) {
	allocation := common.HexToAddress("0xE000000000000000000000000000000000000E")
	row := summaryRow{
		Allocation:    types.NormalizeAllocationID(allocation),
		CollectedFees: "0",
		WithdrawnFees: "0",
	}
	require.Equal(t, strings.ToLower(allocation.Hex()), row.Allocation)
	require.Equal(t, "0", row.CollectedFees)
	require.Equal(t, "0", row.WithdrawnFees)
}
