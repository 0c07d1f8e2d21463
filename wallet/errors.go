package wallet

import "errors"

// Engine-local error kinds. Mint-originated errors travel as cashu.Error
// (see cashu.AssertMintError) and are wrapped with fmt.Errorf at the call
// site rather than mapped onto these sentinels.
var (
	ErrNoKeysets              = errors.New("mint has no keysets")
	ErrNoActiveKeysetForUnit  = errors.New("no active keyset found for unit")
	ErrBalanceTooLow          = errors.New("balance too low")
	ErrInvoiceNotPaidYet      = errors.New("invoice not paid yet")
	ErrInvoiceStillPending    = errors.New("invoice still pending")
	ErrAlreadyProcessingQuote = errors.New("already processing a melt quote")
	ErrInsufficientMultiMintBalance = errors.New("insufficient balance across mints for multi-path payment")
	ErrNoMintSupportsMPP      = errors.New("no known mint supports multi-path payments for this unit")
	ErrRetryRequested         = errors.New("outputs already signed, retry the operation")
	ErrPaymentFailed          = errors.New("payment failed")
	ErrPaymentPossiblyInFlight = errors.New("payment possibly in flight, not rolling back")
	ErrUnloading              = errors.New("wallet shutting down")
	ErrDecodeFailed           = errors.New("could not decode request")
	ErrLNURLError             = errors.New("lnurl error")
	ErrNUT20NotSupported      = errors.New("mint does not support NUT-20 locked mint quotes")
)
