// Package metrics registers the collector and redeemer's observability series against
// prometheus/client_golang. Every series is labeled by allocation except the batch-size gauge.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "indexer_agent"

// Metrics bundles every series the collector and redeemer touch.
type Metrics struct {
	ReceiptsToCollect   *prometheus.GaugeVec
	ReceiptsFailed      *prometheus.CounterVec
	VouchersToExchange  *prometheus.GaugeVec
	ExchangeDuration    *prometheus.HistogramVec
	Vouchers            *prometheus.CounterVec
	VoucherExchangesOK  *prometheus.CounterVec
	VoucherExchangesInv *prometheus.CounterVec
	VoucherRedeemFailed *prometheus.CounterVec
	RedeemDuration      *prometheus.HistogramVec
	VouchersRedeem      prometheus.Gauge
	CollectedFees       *prometheus.GaugeVec
}

// New constructs and registers every series against registry.
func New(registry prometheus.Registerer) *Metrics {
	allocationLabels := []string{"allocation"}

	m := &Metrics{
		ReceiptsToCollect: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "receipts_to_collect",
			Help:      "Number of receipts pending collection for an allocation.",
		}, allocationLabels),
		ReceiptsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_failed",
			Help:      "Count of receipt batches that failed gateway exchange.",
		}, allocationLabels),
		VouchersToExchange: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vouchers_to_exchange",
			Help:      "Number of vouchers awaiting redemption for an allocation.",
		}, allocationLabels),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipts_exchange_duration",
			Help:      "Duration in seconds of a gateway exchange round trip.",
			Buckets:   prometheus.DefBuckets,
		}, allocationLabels),
		Vouchers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vouchers",
			Help:      "Count of vouchers obtained from the gateway.",
		}, allocationLabels),
		VoucherExchangesOK: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_exchanges_ok",
			Help:      "Count of successful on-chain voucher redemptions.",
		}, allocationLabels),
		VoucherExchangesInv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_exchanges_invalid",
			Help:      "Count of redemptions rejected by a paused or unauthorized sentinel.",
		}, allocationLabels),
		VoucherRedeemFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_redeems_failed",
			Help:      "Count of on-chain redemption submissions that errored.",
		}, allocationLabels),
		RedeemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vouchers_redeem_duration",
			Help:      "Duration in seconds of an on-chain redemption submission.",
			Buckets:   prometheus.DefBuckets,
		}, allocationLabels),
		VouchersRedeem: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vouchers_redeem",
			Help:      "Size of the most recently submitted redemption batch.",
		}),
		CollectedFees: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voucher_collected_fees",
			Help:      "Cumulative collected fees per allocation, as a float approximation.",
		}, allocationLabels),
	}

	registry.MustRegister(
		m.ReceiptsToCollect,
		m.ReceiptsFailed,
		m.VouchersToExchange,
		m.ExchangeDuration,
		m.Vouchers,
		m.VoucherExchangesOK,
		m.VoucherExchangesInv,
		m.VoucherRedeemFailed,
		m.RedeemDuration,
		m.VouchersRedeem,
		m.CollectedFees,
	)
	return m
}
