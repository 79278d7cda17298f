package payments

import "errors"

var (
	// ErrMissingPaymentSource means the submission carried no payment token
	// from the card-capture widget. Reported as a form validation error.
	ErrMissingPaymentSource = errors.New("payment source token is missing")

	// ErrAmountTooSmall means the requested amount is below the processor's
	// per-country minimum. Checked before any network call.
	ErrAmountTooSmall = errors.New("amount is below the processor minimum")

	// ErrAuthorizationFailed wraps a processor-side payment creation failure.
	ErrAuthorizationFailed = errors.New("payment authorization failed")

	// ErrCaptureFailed wraps a processor-side capture failure. The record
	// stays authorized; capture is not retried automatically.
	ErrCaptureFailed = errors.New("payment capture failed")

	// ErrRefundAlreadyPending guards against submitting a second refund while
	// one is still pending at the processor.
	ErrRefundAlreadyPending = errors.New("a refund is already pending for this payment")

	// ErrStateConflict means a conditional state transition found the record
	// in an unexpected status, usually a duplicate concurrent action.
	ErrStateConflict = errors.New("transaction is not in the expected state")

	// ErrNotConnected means no usable credentials exist for the mode, either
	// because none are stored or because the validation call failed
	// (commonly a revoked token).
	ErrNotConnected = errors.New("mode is not connected to the processor")

	// ErrNoLocation means no business location is selected for the mode.
	ErrNoLocation = errors.New("no business location selected")

	// ErrCurrencyMismatch means the selected location settles in a currency
	// different from the host application currency.
	ErrCurrencyMismatch = errors.New("location currency does not match configured currency")

	// ErrTransactionNotFound means no local record exists for the given
	// processor transaction id.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrNotRefundable means the record is not in a refundable state.
	ErrNotRefundable = errors.New("transaction is not refundable")
)
