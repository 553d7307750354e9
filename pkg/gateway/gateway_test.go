package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestClient_CollectReceipts(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(voucherResponse{
			Allocation: "0x0000000000000000000000000000000000000001",
			Amount:     "12345",
			Signature:  "0xdeadbeef",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL + "/ignored/path?query=1")
	require.NoError(t, err)

	voucher, err := client.CollectReceipts(context.Background(), []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	require.Equal(t, "/collect-receipts", gotPath)
	require.Equal(t, "application/octet-stream", gotContentType)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, gotBody)
	require.Equal(t, "12345", voucher.Amount.String())
	require.Equal(t, "0xdeadbeef", voucher.Signature)
}

func TestClient_PartialVoucher(t *testing.T) {
	// Built from a literal JSON string using spec.md's field names directly, rather than through
	// partialVoucherResponse, so a wrong struct tag on the client side can't make this test pass
	// for the wrong reason.
	body := `{
		"allocation": "0x0000000000000000000000000000000000000002",
		"fees": "999",
		"signature": "0x` + repeatHex("ab", 32) + `",
		"receipt_id_min": "0x` + repeatHex("00", 32) + `",
		"receipt_id_max": "0x` + repeatHex("ff", 32) + `"
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/partial-voucher", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	pv, err := client.PartialVoucher(context.Background(), []byte{0xaa})
	require.NoError(t, err)
	require.Equal(t, "999", pv.Fees.String())
	require.Equal(t, []byte(mustFromHex("0x"+repeatHex("ab", 32))), pv.Signature[:])
	require.Equal(t, []byte(mustFromHex("0x"+repeatHex("00", 32))), pv.ReceiptIDMin[:])
	require.Equal(t, []byte(mustFromHex("0x"+repeatHex("ff", 32))), pv.ReceiptIDMax[:])
}

func TestClient_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Voucher(context.Background(), []byte{0x01})
	require.Error(t, err)
}

func mustFromHex(s string) []byte {
	return common.FromHex(s)
}

func repeatHex(pair string, n int) string {
	out := make([]byte, 0, len(pair)*n)
	for i := 0; i < n; i++ {
		out = append(out, pair...)
	}
	return string(out)
}
