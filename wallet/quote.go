package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutvault/walletcore/cashu/nuts/nut04"
	"github.com/nutvault/walletcore/cashu/nuts/nut05"
	"github.com/nutvault/walletcore/cashu/nuts/nut15"
	"github.com/nutvault/walletcore/wallet/client"
	"github.com/nutvault/walletcore/wallet/storage"
)

// RequestMintQuote asks the active mint for a bolt11 invoice to mint
// amount worth of proofs against.
func (w *Wallet) RequestMintQuote(amount uint64) (*MintQuote, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentMint == "" {
		return nil, ErrNoActiveKeysetForUnit
	}

	response, err := client.PostMintQuoteBolt11(w.currentMint, nut04.PostMintQuoteBolt11Request{
		Amount: amount,
		Unit:   w.unit.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("error requesting mint quote: %v", err)
	}

	quote := &MintQuote{
		QuoteId: response.Quote,
		MintURL: w.currentMint,
		Request: response.Request,
		Amount:  amount,
		State:   response.State,
	}
	if err := w.db.SaveInvoice(storageInvoice(*quote, w.unit.String(), "")); err != nil {
		return nil, err
	}
	return quote, nil
}

// RequestLockedMintQuote is RequestMintQuote but locks the quote per
// NUT-20: the mint will refuse to mint against it for anyone who can't
// produce a signature from the one-time key generated here, closing
// the window where a third party who learns the quote id front-runs
// the real payer's claim.
func (w *Wallet) RequestLockedMintQuote(amount uint64) (*MintQuote, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentMint == "" {
		return nil, ErrNoActiveKeysetForUnit
	}
	mint, ok := w.mints[w.currentMint]
	if !ok || mint.info == nil || !mint.info.Nuts.Nut20.Supported {
		return nil, ErrNUT20NotSupported
	}

	lockingKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("error generating quote locking key: %v", err)
	}
	pubkeyHex := hex.EncodeToString(lockingKey.PubKey().SerializeCompressed())

	response, err := client.PostMintQuoteBolt11(w.currentMint, nut04.PostMintQuoteBolt11Request{
		Amount: amount,
		Unit:   w.unit.String(),
		Pubkey: pubkeyHex,
	})
	if err != nil {
		return nil, fmt.Errorf("error requesting mint quote: %v", err)
	}

	quote := &MintQuote{
		QuoteId: response.Quote,
		MintURL: w.currentMint,
		Request: response.Request,
		Amount:  amount,
		State:   response.State,
	}
	invoice := storageInvoice(*quote, w.unit.String(), hex.EncodeToString(lockingKey.Serialize()))
	if err := w.db.SaveInvoice(invoice); err != nil {
		return nil, err
	}
	return quote, nil
}

// CheckMintQuote refreshes a previously-requested mint quote's status
// from the mint.
func (w *Wallet) CheckMintQuote(quoteId string) (*MintQuote, error) {
	invoice, ok := w.db.GetInvoice(quoteId)
	if !ok {
		return nil, fmt.Errorf("unknown mint quote '%v'", quoteId)
	}

	response, err := client.GetMintQuoteState(invoice.MintURL, quoteId)
	if err != nil {
		return nil, err
	}

	return &MintQuote{
		QuoteId: response.Quote,
		MintURL: invoice.MintURL,
		Request: response.Request,
		Amount:  uint64(invoice.Amount),
		State:   response.State,
	}, nil
}

// MeltQuote requests a melt quote from the active mint for a decoded
// bolt11 invoice. Proof selection and reservation happen inside Melt,
// not here. It does not take the engine mutex: concurrent quote
// requests for the same pay attempt are serialized instead through
// session's blocking latch, so a quote lookup never blocks Mint/Send/
// Melt on an unrelated pay flow.
func (w *Wallet) MeltQuote(session *PayInvoiceSession, request string) (*MeltQuote, error) {
	if !session.tryLock() {
		return nil, ErrAlreadyProcessingQuote
	}
	defer session.unlock()

	if w.currentMint == "" {
		session.LastErr = ErrNoActiveKeysetForUnit
		return nil, ErrNoActiveKeysetForUnit
	}

	response, err := client.PostMeltQuoteBolt11(w.currentMint, nut05.PostMeltQuoteBolt11Request{
		Request: request,
		Unit:    w.unit.String(),
	})
	if err != nil {
		wrapped := fmt.Errorf("error requesting melt quote: %v", err)
		session.LastErr = wrapped
		return nil, wrapped
	}

	quote := &MeltQuote{
		QuoteId:    response.Quote,
		MintURL:    w.currentMint,
		Amount:     response.Amount,
		FeeReserve: response.FeeReserve,
		State:      response.State,
	}
	session.SingleQuote = quote
	return quote, nil
}

// MultiPathMeltQuotes fans a bolt11 invoice's amount across every
// NUT-15-capable mint holding a balance, weighted by each mint's share
// of the combined balance, and requests a melt quote from each with
// its partial amount. Like MeltQuote, it serializes through session's
// blocking latch rather than the engine mutex.
func (w *Wallet) MultiPathMeltQuotes(session *PayInvoiceSession, request string, invoiceSat uint64) ([]MeltQuote, error) {
	if !session.tryLock() {
		return nil, ErrAlreadyProcessingQuote
	}
	defer session.unlock()

	mints := w.MultiMints(w.unit)
	if len(mints) == 0 {
		session.LastErr = ErrNoMintSupportsMPP
		return nil, ErrNoMintSupportsMPP
	}

	overall, weights := w.MultiMintBalance(w.unit)
	if overall < invoiceSat {
		session.LastErr = ErrInsufficientMultiMintBalance
		return nil, ErrInsufficientMultiMintBalance
	}

	weightList := make([]float64, len(mints))
	for i, m := range mints {
		weightList[i] = weights[m]
	}

	partials, err := nut15.AllocatePartials(invoiceSat, mints, weightList)
	if err != nil {
		session.LastErr = err
		return nil, err
	}

	quotes := make([]MeltQuote, 0, len(partials))
	for _, partial := range partials {
		response, err := client.PostMeltQuoteBolt11(partial.MintURL, nut05.PostMeltQuoteBolt11Request{
			Request: request,
			Unit:    w.unit.String(),
			Options: &nut05.PostMeltQuoteOptions{
				Mpp: &nut05.MppOptions{Amount: partial.Amount * 1000},
			},
		})
		if err != nil {
			wrapped := fmt.Errorf("error requesting melt quote from '%v': %v", partial.MintURL, err)
			session.LastErr = wrapped
			return nil, wrapped
		}

		quotes = append(quotes, MeltQuote{
			QuoteId:    response.Quote,
			MintURL:    partial.MintURL,
			Amount:     response.Amount,
			FeeReserve: response.FeeReserve,
			State:      response.State,
		})
	}

	session.MultiQuotes = quotes
	return quotes, nil
}

func storageInvoiceState(state nut04.MintQuoteState) string {
	if state == nut04.MintIssued {
		return storage.StatusPaid
	}
	return storage.StatusPending
}

func storageInvoice(q MintQuote, unit, lockingKey string) storage.InvoiceHistory {
	return storage.InvoiceHistory{
		Amount:     int64(q.Amount),
		Bolt11:     q.Request,
		QuoteId:    q.QuoteId,
		MintURL:    q.MintURL,
		Unit:       unit,
		Status:     storageInvoiceState(q.State),
		LockingKey: lockingKey,
	}
}
