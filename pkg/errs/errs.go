// Package errs holds the stable error taxonomy for the core. Callers match on these sentinel
// codes rather than on error message text, so log aggregation and alerting stay stable across
// wording changes.
package errs

// Code is a stable, log-friendly error classification.
type Code string

const (
	// RememberAllocationsFailed: summary upsert failed; logged, returned as false to the caller.
	RememberAllocationsFailed Code = "remember_allocations_failed"
	// QueueReceiptsFailed: the closing transaction or the delay-queue push failed; fatal for the
	// close-allocation action that invoked CollectReceipts.
	QueueReceiptsFailed Code = "queue_receipts_failed"
	// CollectExchangeFailed: any error in the gateway-exchange state machine; receipts remain in
	// the database for a later retry.
	CollectExchangeFailed Code = "collect_exchange_failed"
	// VoucherRedeemFailed: any error in on-chain submission; the voucher stays, retried next cycle.
	VoucherRedeemFailed Code = "voucher_redeem_failed"
	// VoucherRedeemInvalid: the transaction manager returned the paused/unauthorized sentinel.
	VoucherRedeemInvalid Code = "voucher_redeem_invalid"
)

// Error pairs a stable Code with the underlying cause, so log lines carry both a greppable code
// and full diagnostic context.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with a stable code.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}
