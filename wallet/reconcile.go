package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/cashu/nuts/nut04"
	"github.com/nutvault/walletcore/cashu/nuts/nut05"
	"github.com/nutvault/walletcore/cashu/nuts/nut07"
	"github.com/nutvault/walletcore/cashu/nuts/nut17"
	"github.com/nutvault/walletcore/crypto"
	"github.com/nutvault/walletcore/wallet/client"
	"github.com/nutvault/walletcore/wallet/storage"
	"github.com/nutvault/walletcore/wallet/submanager"
)

// proofsDigest derives a stable identifier from a set of proofs' secrets,
// independent of their order. History entries keyed off it are naturally
// idempotent: re-running a reconcile operation against the same proofs
// resolves to the same QuoteId and so overwrites rather than duplicates.
func proofsDigest(proofs cashu.Proofs) string {
	secrets := make([]string, len(proofs))
	for i, p := range proofs {
		secrets[i] = p.Secret
	}
	sort.Strings(secrets)

	h := sha256.New()
	for _, s := range secrets {
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sentTokenHistoryId is the QuoteId a sent token's invoice-history entry
// is filed under, so check_token_spendable can later find and split it.
func sentTokenHistoryId(proofs cashu.Proofs) string {
	return "sent:" + proofsDigest(proofs)
}

// recordSentToken files a pending, negative-amount history entry for a
// token handed to a recipient, so a later check_token_spendable has
// something to reconcile against.
func (w *Wallet) recordSentToken(mintURL string, proofs cashu.Proofs) error {
	if len(proofs) == 0 {
		return nil
	}
	return w.db.SaveInvoice(storage.InvoiceHistory{
		Amount:  -int64(sum(proofs)),
		QuoteId: sentTokenHistoryId(proofs),
		MintURL: mintURL,
		Unit:    w.unit.String(),
		Memo:    "Sent token",
		Status:  storage.StatusPending,
	})
}

// CheckProofsSpendable asks a mint whether proofs are still unspent,
// drops any it reports SPENT from local storage (they were spent out
// of band, e.g. by another wallet sharing the same seed), and returns
// the spent set. If updateHistory is set, it also appends a paid-token
// history entry for the spent amount, keyed deterministically off the
// spent proofs themselves so repeat calls over the same input are
// idempotent rather than appending duplicate entries.
func (w *Wallet) CheckProofsSpendable(mintURL string, proofs cashu.Proofs, updateHistory bool) (cashu.Proofs, error) {
	if len(proofs) == 0 {
		return cashu.Proofs{}, nil
	}

	ys := make([]string, len(proofs))
	bySecret := make(map[string]cashu.Proof, len(proofs))
	for i, p := range proofs {
		ys[i] = crypto.Y(p.Secret)
		bySecret[ys[i]] = p
	}

	response, err := client.PostCheckProofState(mintURL, nut07.PostCheckStateRequest{Ys: ys})
	if err != nil {
		return nil, fmt.Errorf("error checking proof state: %v", err)
	}

	var spent cashu.Proofs
	for _, state := range response.States {
		proof, ok := bySecret[state.Y]
		if !ok {
			continue
		}
		if state.State == nut07.Spent {
			spent = append(spent, proof)
		}
	}
	if len(spent) == 0 {
		return spent, nil
	}

	if err := w.removeProofs(spent); err != nil {
		return nil, err
	}
	if updateHistory {
		entry := storage.InvoiceHistory{
			Amount:  -int64(sum(spent)),
			QuoteId: "spent:" + proofsDigest(spent),
			MintURL: mintURL,
			Unit:    w.unit.String(),
			Memo:    "Proofs spent out of band",
			Status:  storage.StatusPaid,
		}
		if err := w.db.SaveInvoice(entry); err != nil {
			return nil, err
		}
	}
	return spent, nil
}

// CheckTokenSpendable decodes a token, activates its mint, and
// reconciles its proofs against it. A fully-spent token's history entry
// (filed by Send/SendToPubkey/SendToHash when the token was created) is
// marked paid; a partially-spent one is split into a paid portion
// (the spent amount) and a new pending portion (the unspent amount),
// both preserving the sign of the original entry's amount. It returns
// whether the token is still fully spendable.
func (w *Wallet) CheckTokenSpendable(token cashu.Token) (bool, error) {
	if _, err := w.ActivateMintURL(token.Mint(), w.unit); err != nil {
		return false, err
	}

	all := token.Proofs()
	spent, err := w.CheckProofsSpendable(token.Mint(), all, false)
	if err != nil {
		return false, err
	}
	fullySpent := len(spent) == len(all)

	entry, ok := w.db.GetInvoice(sentTokenHistoryId(all))
	if !ok || len(spent) == 0 {
		return len(spent) == 0, nil
	}

	sign := int64(1)
	if entry.Amount < 0 {
		sign = -1
	}

	if fullySpent {
		entry.Status = storage.StatusPaid
		if err := w.db.SaveInvoice(*entry); err != nil {
			return false, err
		}
		return false, nil
	}

	// partial spend: the original entry becomes the paid portion, and
	// the still-unspent proofs are filed under a fresh pending entry.
	spentAmount := sign * int64(sum(spent))
	entry.Amount = spentAmount
	entry.Status = storage.StatusPaid
	if err := w.db.SaveInvoice(*entry); err != nil {
		return false, err
	}

	unspent := make(cashu.Proofs, 0, len(all)-len(spent))
	spentSecrets := make(map[string]bool, len(spent))
	for _, p := range spent {
		spentSecrets[p.Secret] = true
	}
	for _, p := range all {
		if !spentSecrets[p.Secret] {
			unspent = append(unspent, p)
		}
	}

	pendingAmount := sign * int64(sum(unspent))
	pending := storage.InvoiceHistory{
		Amount:  pendingAmount,
		Bolt11:  entry.Bolt11,
		QuoteId: sentTokenHistoryId(unspent),
		Memo:    entry.Memo,
		MintURL: entry.MintURL,
		Unit:    entry.Unit,
		Status:  storage.StatusPending,
	}
	if err := w.db.SaveInvoice(pending); err != nil {
		return false, err
	}

	return false, nil
}

// CheckInvoice polls a mint quote's state and, once PAID or ISSUED,
// marks its invoice-ledger entry paid. An UNPAID quote yields
// ErrInvoiceNotPaidYet.
func (w *Wallet) CheckInvoice(quoteId string) (*MintQuote, error) {
	invoice, ok := w.db.GetInvoice(quoteId)
	if !ok {
		return nil, fmt.Errorf("unknown quote '%v'", quoteId)
	}

	response, err := client.GetMintQuoteState(invoice.MintURL, quoteId)
	if err != nil {
		return nil, err
	}

	switch response.State {
	case nut04.MintUnpaid:
		return nil, ErrInvoiceNotPaidYet
	case nut04.MintPaid, nut04.MintIssued:
		invoice.Status = storage.StatusPaid
		if err := w.db.SaveInvoice(*invoice); err != nil {
			return nil, err
		}
	}

	return &MintQuote{
		QuoteId: response.Quote,
		MintURL: invoice.MintURL,
		Request: response.Request,
		Amount:  uint64(invoice.Amount),
		State:   response.State,
	}, nil
}

// MintOnPaid mints proofs for a mint quote as soon as it is PAID,
// combining CheckInvoice and Mint into the single "claim" step callers
// poll for after handing a customer a bolt11 invoice.
func (w *Wallet) MintOnPaid(quoteId string) (cashu.Proofs, error) {
	quote, err := w.CheckInvoice(quoteId)
	if err != nil {
		return nil, err
	}
	return w.Mint(quote.Amount, quote.QuoteId)
}

// OnTokenPaid watches a token handed to a recipient until it is spent.
// If the mint advertises NUT-17 it subscribes to proof_state for one
// representative proof and reacts to the push notification; otherwise
// it falls back to polling check_token_spendable on the given interval.
// Either way, the first observed SPENT state runs CheckTokenSpendable to
// reconcile the sender's copy of the proofs and its invoice-history
// entry, then returns.
func (w *Wallet) OnTokenPaid(token cashu.Token, pollInterval time.Duration) error {
	proofs := token.Proofs()
	if len(proofs) == 0 {
		return nil
	}

	sm, err := submanager.NewSubscriptionManager(token.Mint())
	if err != nil {
		return w.pollForTokenSpent(token, pollInterval)
	}
	defer sm.Close()

	sub, err := sm.Subscribe(nut17.ProofState, []string{crypto.Y(proofs[0].Secret)})
	if err != nil {
		return w.pollForTokenSpent(token, pollInterval)
	}
	defer sm.CloseSubscripton(sub.SubId())

	errCh := make(chan error, 1)
	go sm.Run(errCh)

	notifications := make(chan nut17.WsNotification)
	go func() {
		for {
			notif, err := sub.Read()
			if err != nil {
				close(notifications)
				return
			}
			notifications <- notif
		}
	}()

	for {
		select {
		case notification, ok := <-notifications:
			if !ok {
				return w.pollForTokenSpent(token, pollInterval)
			}
			var proofState struct {
				State string `json:"state"`
			}
			if err := json.Unmarshal(notification.Params.Payload, &proofState); err != nil {
				continue
			}
			if proofState.State == nut07.Spent.String() {
				_, err := w.CheckTokenSpendable(token)
				return err
			}
		case <-errCh:
			return w.pollForTokenSpent(token, pollInterval)
		}
	}
}

// pollForTokenSpent is the NUT-17-less fallback for OnTokenPaid: poll
// check_token_spendable until the token is no longer fully spendable.
func (w *Wallet) pollForTokenSpent(token cashu.Token, interval time.Duration) error {
	for {
		spendable, err := w.CheckTokenSpendable(token)
		if err != nil {
			return err
		}
		if !spendable {
			return nil
		}
		time.Sleep(interval)
	}
}

// WaitForMintQuotePaid blocks until a mint quote reaches PAID, then
// mints and returns its proofs. If the mint advertises NUT-17 it
// subscribes over websocket and reacts to the push notification;
// otherwise it falls back to polling CheckInvoice on the given
// interval. Either way the caller is freed from choosing a transport.
func (w *Wallet) WaitForMintQuotePaid(mintURL, quoteId string, pollInterval time.Duration) (cashu.Proofs, error) {
	sm, err := submanager.NewSubscriptionManager(mintURL)
	if err != nil {
		return w.pollForMintQuotePaid(quoteId, pollInterval)
	}
	defer sm.Close()

	sub, err := sm.Subscribe(nut17.Bolt11MintQuote, []string{quoteId})
	if err != nil {
		return w.pollForMintQuotePaid(quoteId, pollInterval)
	}
	defer sm.CloseSubscripton(sub.SubId())

	errCh := make(chan error, 1)
	go sm.Run(errCh)

	notifications := make(chan nut17.WsNotification)
	go func() {
		for {
			notif, err := sub.Read()
			if err != nil {
				close(notifications)
				return
			}
			notifications <- notif
		}
	}()

	for {
		select {
		case notification, ok := <-notifications:
			if !ok {
				return w.pollForMintQuotePaid(quoteId, pollInterval)
			}
			var quoteState struct {
				State string `json:"state"`
			}
			if err := json.Unmarshal(notification.Params.Payload, &quoteState); err != nil {
				continue
			}
			if quoteState.State == nut04.MintPaid.String() {
				return w.MintOnPaid(quoteId)
			}
		case <-errCh:
			return w.pollForMintQuotePaid(quoteId, pollInterval)
		}
	}
}

// pollForMintQuotePaid is the NUT-17-less fallback: poll CheckInvoice
// until it reports PAID/ISSUED or ctx-free caller gives up by never
// calling this again. A single successful poll mints immediately.
func (w *Wallet) pollForMintQuotePaid(quoteId string, interval time.Duration) (cashu.Proofs, error) {
	for {
		quote, err := w.CheckInvoice(quoteId)
		if err == nil {
			return w.Mint(quote.Amount, quote.QuoteId)
		}
		if err != ErrInvoiceNotPaidYet {
			return nil, err
		}
		time.Sleep(interval)
	}
}

// CheckOutgoingInvoice polls a melt quote's state directly from the
// mint, reconciling reserved proofs: PAID clears them from storage,
// UNPAID (a definite failure, not merely pending) releases them.
func (w *Wallet) CheckOutgoingInvoice(mintURL, quoteId string) (*MeltQuote, error) {
	response, err := client.GetMeltQuoteState(mintURL, quoteId)
	if err != nil {
		return nil, fmt.Errorf("error checking melt quote state: %v", err)
	}

	reserved := w.proofsForQuote(quoteId)
	switch response.State {
	case nut05.MeltPaid:
		if len(reserved) > 0 {
			if err := w.removeProofs(reserved); err != nil {
				return nil, err
			}
		}
	case nut05.MeltUnpaid:
		if len(reserved) > 0 {
			if err := w.setReserved(reserved, false, ""); err != nil {
				return nil, err
			}
		}
	}

	return &MeltQuote{
		QuoteId:    response.Quote,
		MintURL:    mintURL,
		Amount:     response.Amount,
		FeeReserve: response.FeeReserve,
		State:      response.State,
	}, nil
}
