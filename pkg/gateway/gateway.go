// Package gateway is the HTTP client for the three gateway endpoints this core calls:
// collect-receipts, partial-voucher, and voucher.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/dl-graf/indexer-agent/pkg/types"
)

const (
	pathCollectReceipts = "collect-receipts"
	pathPartialVoucher  = "partial-voucher"
	pathVoucher         = "voucher"
)

// DurationObserver records the wall-clock duration of a gateway round trip; satisfied by
// pkg/metrics's receipts_exchange_duration histogram.
type DurationObserver interface {
	Observe(seconds float64)
}

// Client posts encoded receipt/partial-voucher payloads to a gateway and decodes its JSON
// responses. Base URL derivation keeps only scheme+host; any path/query/fragment on the
// configured endpoint is discarded.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	duration   DurationObserver

	collectURL        string
	partialVoucherURL string
	voucherURL        string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client (e.g. for custom timeouts/transports).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRateLimit caps outbound requests per second, with the given burst. A burst of collector
// activity (many allocations closing around the same time) shouldn't be allowed to hammer the
// gateway.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(cl *Client) { cl.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst) }
}

// WithDurationObserver wires a histogram to record round-trip latency.
func WithDurationObserver(o DurationObserver) Option {
	return func(cl *Client) { cl.duration = o }
}

// NewClient derives the three endpoint URLs from base (keeping only scheme+host) and returns a
// ready-to-use Client.
func NewClient(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing gateway endpoint %q: %w", base, err)
	}
	root := &url.URL{Scheme: u.Scheme, Host: u.Host}

	c := &Client{
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		collectURL:        root.JoinPath(pathCollectReceipts).String(),
		partialVoucherURL: root.JoinPath(pathPartialVoucher).String(),
		voucherURL:        root.JoinPath(pathVoucher).String(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// voucherResponse is the JSON shape the gateway returns from /collect-receipts and /voucher.
type voucherResponse struct {
	Allocation string `json:"allocation"`
	Amount     string `json:"amount"`
	Signature  string `json:"signature"`
}

func (r voucherResponse) toVoucher() (types.Voucher, error) {
	allocation, err := types.ParseAllocationID(r.Allocation)
	if err != nil {
		return types.Voucher{}, fmt.Errorf("voucher response allocation: %w", err)
	}
	amount, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok {
		return types.Voucher{}, fmt.Errorf("voucher response amount %q is not a valid integer", r.Amount)
	}
	return types.Voucher{Allocation: allocation, Amount: amount, Signature: r.Signature}, nil
}

// partialVoucherResponse is the JSON shape for /partial-voucher.
type partialVoucherResponse struct {
	Allocation   string `json:"allocation"`
	Fees         string `json:"fees"`
	Signature    string `json:"signature"`
	ReceiptIDMin string `json:"receipt_id_min"`
	ReceiptIDMax string `json:"receipt_id_max"`
}

func (r partialVoucherResponse) toPartialVoucher() (types.PartialVoucher, error) {
	allocation, err := types.ParseAllocationID(r.Allocation)
	if err != nil {
		return types.PartialVoucher{}, fmt.Errorf("partial voucher response allocation: %w", err)
	}
	fees, ok := new(big.Int).SetString(r.Fees, 10)
	if !ok {
		return types.PartialVoucher{}, fmt.Errorf("partial voucher response fees %q is not a valid integer", r.Fees)
	}
	pv := types.PartialVoucher{Allocation: allocation, Fees: fees}
	if err := fill32(r.Signature, pv.Signature[:]); err != nil {
		return types.PartialVoucher{}, fmt.Errorf("partial voucher response signature: %w", err)
	}
	if err := fill32(r.ReceiptIDMin, pv.ReceiptIDMin[:]); err != nil {
		return types.PartialVoucher{}, fmt.Errorf("partial voucher response receipt_id_min: %w", err)
	}
	if err := fill32(r.ReceiptIDMax, pv.ReceiptIDMax[:]); err != nil {
		return types.PartialVoucher{}, fmt.Errorf("partial voucher response receipt_id_max: %w", err)
	}
	return pv, nil
}

func fill32(hexStr string, dst []byte) error {
	b := common.FromHex(hexStr)
	if len(b) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

// CollectReceipts posts an encoded receipt batch to /collect-receipts and returns the voucher the
// gateway issued. Used on the single-shot exchange path (<=25,000 receipts).
func (c *Client) CollectReceipts(ctx context.Context, payload []byte) (types.Voucher, error) {
	var resp voucherResponse
	if err := c.post(ctx, c.collectURL, payload, &resp); err != nil {
		return types.Voucher{}, err
	}
	return resp.toVoucher()
}

// PartialVoucher posts one chunk's encoded receipt batch to /partial-voucher. Used on the chunked
// exchange path.
func (c *Client) PartialVoucher(ctx context.Context, payload []byte) (types.PartialVoucher, error) {
	var resp partialVoucherResponse
	if err := c.post(ctx, c.partialVoucherURL, payload, &resp); err != nil {
		return types.PartialVoucher{}, err
	}
	return resp.toPartialVoucher()
}

// Voucher posts an encoded partial-voucher batch to /voucher, combining all chunks' partial
// vouchers into the final voucher.
func (c *Client) Voucher(ctx context.Context, payload []byte) (types.Voucher, error) {
	var resp voucherResponse
	if err := c.post(ctx, c.voucherURL, payload, &resp); err != nil {
		return types.Voucher{}, err
	}
	return resp.toVoucher()
}

func (c *Client) post(ctx context.Context, url string, payload []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("gateway rate limiter: %w", err)
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building gateway request to %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if c.duration != nil {
		c.duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("gateway request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading gateway response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway %s returned status %d: %s", url, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding gateway response from %s: %w", url, err)
	}
	return nil
}
