package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/cashu/nuts/nut03"
	"github.com/nutvault/walletcore/cashu/nuts/nut04"
	"github.com/nutvault/walletcore/cashu/nuts/nut05"
	"github.com/nutvault/walletcore/cashu/nuts/nut10"
	"github.com/nutvault/walletcore/cashu/nuts/nut11"
	"github.com/nutvault/walletcore/cashu/nuts/nut12"
	"github.com/nutvault/walletcore/cashu/nuts/nut13"
	"github.com/nutvault/walletcore/cashu/nuts/nut14"
	"github.com/nutvault/walletcore/cashu/nuts/nut20"
	"github.com/nutvault/walletcore/crypto"
	"github.com/nutvault/walletcore/wallet/client"
	"github.com/nutvault/walletcore/wallet/storage"
)

// blindedSet is one round's worth of outputs: the blinded messages sent
// to the mint, and the secrets/blinding-factors needed to unblind
// whatever signatures come back, kept aligned by index.
type blindedSet struct {
	messages cashu.BlindedMessages
	secrets  []string
	rs       []*secp256k1.PrivateKey
}

// createBlindedMessages derives len(amounts) deterministic outputs from
// the active keyset counter, bumping it by len(amounts) beforehand so a
// crash mid-request can never reuse a counter value.
func (w *Wallet) createBlindedMessages(keyset crypto.WalletKeyset, amounts []uint64) (blindedSet, error) {
	keysetPath, err := nut13.DeriveKeysetPath(w.masterKey, keyset.Id)
	if err != nil {
		return blindedSet{}, fmt.Errorf("error deriving keyset path: %v", err)
	}

	startCounter, err := w.counter(keyset.Id)
	if err != nil {
		return blindedSet{}, err
	}
	if err := w.bumpCounter(keyset.Id, int64(len(amounts))); err != nil {
		return blindedSet{}, err
	}

	set := blindedSet{
		messages: make(cashu.BlindedMessages, len(amounts)),
		secrets:  make([]string, len(amounts)),
		rs:       make([]*secp256k1.PrivateKey, len(amounts)),
	}
	for i, amount := range amounts {
		counter := startCounter + uint32(i)
		secret, err := nut13.DeriveSecret(keysetPath, counter)
		if err != nil {
			return blindedSet{}, fmt.Errorf("error deriving secret: %v", err)
		}
		r, err := nut13.DeriveBlindingFactor(keysetPath, counter)
		if err != nil {
			return blindedSet{}, fmt.Errorf("error deriving blinding factor: %v", err)
		}
		B_, _, err := crypto.BlindMessageWithFactor(secret, r)
		if err != nil {
			return blindedSet{}, fmt.Errorf("error blinding message: %v", err)
		}

		set.messages[i] = cashu.NewBlindedMessage(keyset.Id, amount, B_)
		set.secrets[i] = secret
		set.rs[i] = r
	}

	return set, nil
}

// constructProofs unblinds signatures against their paired secrets/rs
// and the keyset's public keys, producing spendable proofs.
func constructProofs(signatures cashu.BlindedSignatures, secrets []string, rs []*secp256k1.PrivateKey, keyset crypto.WalletKeyset) (cashu.Proofs, error) {
	if len(signatures) != len(secrets) || len(secrets) != len(rs) {
		return nil, errors.New("mismatched signatures, secrets and blinding factors")
	}

	proofs := make(cashu.Proofs, len(signatures))
	for i, sig := range signatures {
		pubkey, ok := keyset.PublicKeys[sig.Amount]
		if !ok {
			return nil, fmt.Errorf("keyset has no public key for amount %v", sig.Amount)
		}

		C_bytes, err := hex.DecodeString(sig.C_)
		if err != nil {
			return nil, fmt.Errorf("invalid signature point: %v", err)
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid signature point: %v", err)
		}

		C := crypto.UnblindSignature(C_, rs[i], pubkey)
		proof := cashu.Proof{
			Amount: sig.Amount,
			Id:     sig.Id,
			Secret: secrets[i],
			C:      hex.EncodeToString(C.SerializeCompressed()),
		}
		// NUT-12: carry the mint's DLEQ proof forward onto the unblinded
		// proof, attaching r so a later holder can verify it without us.
		if sig.DLEQ != nil {
			proof.DLEQ = &cashu.DLEQProof{
				E: sig.DLEQ.E,
				S: sig.DLEQ.S,
				R: hex.EncodeToString(rs[i].Serialize()),
			}
		}
		proofs[i] = proof
	}

	if err := nut12.HasWellFormedDLEQ(proofs); err != nil {
		return nil, fmt.Errorf("mint returned malformed DLEQ proof: %v", err)
	}

	return proofs, nil
}

// signOwnP2PKInputs attaches a witness signature to any input locked
// with NUT-11 P2PK to this wallet's own receive key, leaving every
// other input untouched. Proofs locked to someone else's key are left
// for the mint to reject.
func (w *Wallet) signOwnP2PKInputs(proofs cashu.Proofs) (cashu.Proofs, error) {
	var receiveKey *btcec.PrivateKey
	var lockedIdx []int
	for i, proof := range proofs {
		if !nut11.IsSecretP2PK(proof) {
			continue
		}
		secret, err := nut10.DeserializeSecret(proof.Secret)
		if err != nil {
			continue
		}
		if receiveKey == nil {
			receiveKey, err = w.P2PKReceiveKey()
			if err != nil {
				return nil, fmt.Errorf("error deriving P2PK receive key: %v", err)
			}
		}
		if nut11.CanSign(secret, receiveKey) {
			lockedIdx = append(lockedIdx, i)
		}
	}
	if len(lockedIdx) == 0 {
		return proofs, nil
	}

	signed := make(cashu.Proofs, len(proofs))
	copy(signed, proofs)
	toSign := make(cashu.Proofs, 0, len(lockedIdx))
	for _, i := range lockedIdx {
		toSign = append(toSign, signed[i])
	}

	witnessed, err := nut11.AddSignatureToInputs(toSign, receiveKey)
	if err != nil {
		return nil, fmt.Errorf("error signing P2PK input: %v", err)
	}
	for j, i := range lockedIdx {
		signed[i] = witnessed[j]
	}
	return signed, nil
}

// createLockedBlindedMessages is like createBlindedMessages but for
// outputs locked to pubkeyHex via NUT-11: the secrets are one-time
// P2PK spending conditions rather than NUT-13 deterministic secrets,
// since a locked proof isn't recoverable by seed restore anyway.
func createLockedBlindedMessages(keyset crypto.WalletKeyset, amounts []uint64, pubkeyHex string) (blindedSet, error) {
	set := blindedSet{
		messages: make(cashu.BlindedMessages, len(amounts)),
		secrets:  make([]string, len(amounts)),
		rs:       make([]*secp256k1.PrivateKey, len(amounts)),
	}
	for i, amount := range amounts {
		secret, err := nut11.P2PKSecret(pubkeyHex)
		if err != nil {
			return blindedSet{}, fmt.Errorf("error building P2PK secret: %v", err)
		}
		r, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return blindedSet{}, fmt.Errorf("error generating blinding factor: %v", err)
		}
		B_, _, err := crypto.BlindMessageWithFactor(secret, r)
		if err != nil {
			return blindedSet{}, fmt.Errorf("error blinding message: %v", err)
		}

		set.messages[i] = cashu.NewBlindedMessage(keyset.Id, amount, B_)
		set.secrets[i] = secret
		set.rs[i] = r
	}
	return set, nil
}

// createHTLCBlindedMessages is createLockedBlindedMessages for NUT-14:
// outputs locked by a payment hash rather than a pubkey.
func createHTLCBlindedMessages(keyset crypto.WalletKeyset, amounts []uint64, paymentHash string) (blindedSet, error) {
	set := blindedSet{
		messages: make(cashu.BlindedMessages, len(amounts)),
		secrets:  make([]string, len(amounts)),
		rs:       make([]*secp256k1.PrivateKey, len(amounts)),
	}
	for i, amount := range amounts {
		secret, err := nut14.HTLCSecret(paymentHash)
		if err != nil {
			return blindedSet{}, fmt.Errorf("error building HTLC secret: %v", err)
		}
		r, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return blindedSet{}, fmt.Errorf("error generating blinding factor: %v", err)
		}
		B_, _, err := crypto.BlindMessageWithFactor(secret, r)
		if err != nil {
			return blindedSet{}, fmt.Errorf("error blinding message: %v", err)
		}

		set.messages[i] = cashu.NewBlindedMessage(keyset.Id, amount, B_)
		set.secrets[i] = secret
		set.rs[i] = r
	}
	return set, nil
}

// SendToHash selects and swaps proofs the same way Send does, but the
// outgoing amount is locked with a NUT-14 HTLC to paymentHash: whoever
// produces a preimage hashing to it can claim the ecash with ClaimHTLC.
func (w *Wallet) SendToHash(amount uint64, paymentHash string, includeFees bool) (keep cashu.Proofs, send cashu.Proofs, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mint, ok := w.mints[w.currentMint]
	if !ok {
		return nil, nil, ErrNoActiveKeysetForUnit
	}
	keyset := mint.activeKeyset

	proofs := w.unreserved(w.currentMint)
	if sum(proofs) < amount {
		return nil, nil, ErrBalanceTooLow
	}
	selected := w.selectCoins(proofs, amount, includeFees)
	if len(selected) == 0 {
		return nil, nil, ErrBalanceTooLow
	}

	fee := uint64(0)
	if includeFees {
		fee = w.feeForProofs(selected)
	}
	total := sum(selected)
	change := total - amount - fee

	lockedSet, err := createHTLCBlindedMessages(keyset, splitAmount(amount), paymentHash)
	if err != nil {
		return nil, nil, err
	}
	changeSet, err := w.createBlindedMessages(keyset, splitAmount(change))
	if err != nil {
		return nil, nil, err
	}

	outputs := append(append(cashu.BlindedMessages{}, lockedSet.messages...), changeSet.messages...)
	response, err := client.PostSwap(w.currentMint, nut03.PostSwapRequest{Inputs: selected, Outputs: outputs})
	if err != nil {
		if isOutputsAlreadySigned(err) {
			w.bumpCounter(keyset.Id, 10)
			return nil, nil, ErrRetryRequested
		}
		return nil, nil, err
	}

	lockedCount := len(lockedSet.messages)
	send, err = constructProofs(response.Signatures[:lockedCount], lockedSet.secrets, lockedSet.rs, keyset)
	if err != nil {
		return nil, nil, err
	}
	keep, err = constructProofs(response.Signatures[lockedCount:], changeSet.secrets, changeSet.rs, keyset)
	if err != nil {
		return nil, nil, err
	}

	if err := w.removeProofs(selected); err != nil {
		return nil, nil, err
	}
	if err := w.addProofs(w.currentMint, keep); err != nil {
		return nil, nil, err
	}
	if err := w.recordSentToken(w.currentMint, send); err != nil {
		return nil, nil, err
	}
	return keep, send, nil
}

// ClaimHTLC redeems HTLC-locked proofs by attaching the preimage (and a
// signature from this wallet's own receive key, satisfying mints that
// require one even without an explicit pubkey tag) as a witness, then
// swapping them for fresh proofs of our own.
func (w *Wallet) ClaimHTLC(mintURL string, proofs cashu.Proofs, preimage string) (cashu.Proofs, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mint, ok := w.mints[mintURL]
	if !ok {
		return nil, ErrNoActiveKeysetForUnit
	}
	keyset := mint.activeKeyset

	receiveKey, err := w.P2PKReceiveKey()
	if err != nil {
		return nil, fmt.Errorf("error deriving receive key: %v", err)
	}
	witnessed, err := nut14.AddWitnessHTLC(proofs, preimage, receiveKey)
	if err != nil {
		return nil, fmt.Errorf("error attaching HTLC witness: %v", err)
	}

	amounts := splitAmount(sum(witnessed))
	set, err := w.createBlindedMessages(keyset, amounts)
	if err != nil {
		return nil, err
	}

	response, err := client.PostSwap(mintURL, nut03.PostSwapRequest{
		Inputs:  witnessed,
		Outputs: set.messages,
	})
	if err != nil {
		if isOutputsAlreadySigned(err) {
			w.bumpCounter(keyset.Id, 10)
			return nil, ErrRetryRequested
		}
		return nil, err
	}

	newProofs, err := constructProofs(response.Signatures, set.secrets, set.rs, keyset)
	if err != nil {
		return nil, err
	}
	if err := w.addProofs(mintURL, newProofs); err != nil {
		return nil, err
	}
	return newProofs, nil
}

// SendToPubkey selects and swaps proofs the same way Send does, but
// the outgoing amount is locked with a NUT-11 P2PK spending condition
// to pubkeyHex instead of handed over as freely-spendable proofs.
func (w *Wallet) SendToPubkey(amount uint64, pubkeyHex string, includeFees bool) (keep cashu.Proofs, send cashu.Proofs, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := nut11.ParsePublicKey(pubkeyHex); err != nil {
		return nil, nil, err
	}

	mint, ok := w.mints[w.currentMint]
	if !ok {
		return nil, nil, ErrNoActiveKeysetForUnit
	}
	keyset := mint.activeKeyset

	proofs := w.unreserved(w.currentMint)
	if sum(proofs) < amount {
		return nil, nil, ErrBalanceTooLow
	}
	selected := w.selectCoins(proofs, amount, includeFees)
	if len(selected) == 0 {
		return nil, nil, ErrBalanceTooLow
	}

	fee := uint64(0)
	if includeFees {
		fee = w.feeForProofs(selected)
	}
	total := sum(selected)
	change := total - amount - fee

	lockedSet, err := createLockedBlindedMessages(keyset, splitAmount(amount), pubkeyHex)
	if err != nil {
		return nil, nil, err
	}
	changeSet, err := w.createBlindedMessages(keyset, splitAmount(change))
	if err != nil {
		return nil, nil, err
	}

	outputs := append(append(cashu.BlindedMessages{}, lockedSet.messages...), changeSet.messages...)
	response, err := client.PostSwap(w.currentMint, nut03.PostSwapRequest{Inputs: selected, Outputs: outputs})
	if err != nil {
		if isOutputsAlreadySigned(err) {
			w.bumpCounter(keyset.Id, 10)
			return nil, nil, ErrRetryRequested
		}
		return nil, nil, err
	}

	lockedCount := len(lockedSet.messages)
	send, err = constructProofs(response.Signatures[:lockedCount], lockedSet.secrets, lockedSet.rs, keyset)
	if err != nil {
		return nil, nil, err
	}
	keep, err = constructProofs(response.Signatures[lockedCount:], changeSet.secrets, changeSet.rs, keyset)
	if err != nil {
		return nil, nil, err
	}

	if err := w.removeProofs(selected); err != nil {
		return nil, nil, err
	}
	if err := w.addProofs(w.currentMint, keep); err != nil {
		return nil, nil, err
	}
	if err := w.recordSentToken(w.currentMint, send); err != nil {
		return nil, nil, err
	}
	return keep, send, nil
}

// signMintQuote signs a NUT-20 locked mint quote claim with the
// quote's locking private key (hex-encoded, as stashed in the invoice
// record by RequestLockedMintQuote).
func signMintQuote(lockingKeyHex, quoteId string, outputs cashu.BlindedMessages) (string, error) {
	keyBytes, err := hex.DecodeString(lockingKeyHex)
	if err != nil {
		return "", fmt.Errorf("invalid quote locking key: %v", err)
	}
	lockingKey := secp256k1.PrivKeyFromBytes(keyBytes)

	sig, err := nut20.SignMintQuote(lockingKey, quoteId, outputs)
	if err != nil {
		return "", fmt.Errorf("error signing mint quote: %v", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// isOutputsAlreadySigned reports whether err is the mint rejecting a
// mint/swap/melt request because these exact outputs were already
// used to satisfy a previous request (the retry-safe race condition
// counter bumping guards against).
func isOutputsAlreadySigned(err error) bool {
	var cashuErr cashu.Error
	if errors.As(err, &cashuErr) {
		return cashuErr.Code == cashu.BlindedMessageAlreadySignedErrCode
	}
	return false
}

// Mint exchanges a paid mint quote for proofs. If the mint reports the
// outputs were already signed (a retried request racing an earlier one
// that actually succeeded), the keyset counter is advanced past the
// used range and the caller should retry.
func (w *Wallet) Mint(amount uint64, quoteId string) (cashu.Proofs, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mint, ok := w.mints[w.currentMint]
	if !ok {
		return nil, ErrNoActiveKeysetForUnit
	}
	keyset := mint.activeKeyset

	amounts := splitAmount(amount)
	set, err := w.createBlindedMessages(keyset, amounts)
	if err != nil {
		return nil, err
	}

	mintRequest := nut04.PostMintBolt11Request{
		Quote:   quoteId,
		Outputs: set.messages,
	}
	if invoice, ok := w.db.GetInvoice(quoteId); ok && invoice.LockingKey != "" {
		sigHex, err := signMintQuote(invoice.LockingKey, quoteId, set.messages)
		if err != nil {
			return nil, err
		}
		mintRequest.Signature = sigHex
	}

	response, err := client.PostMintBolt11(w.currentMint, mintRequest)
	if err != nil {
		if isOutputsAlreadySigned(err) {
			w.bumpCounter(keyset.Id, 10)
			return nil, ErrRetryRequested
		}
		return nil, err
	}

	proofs, err := constructProofs(response.Signatures, set.secrets, set.rs, keyset)
	if err != nil {
		return nil, err
	}

	if err := w.addProofs(w.currentMint, proofs); err != nil {
		return nil, err
	}
	return proofs, nil
}

// Send selects amount worth of spendable proofs from the active mint
// and, unless the selection lands on exact denominations, swaps them
// at the mint for a `send` set summing to amount and a `keep` set
// returning the remainder as change. invalidate removes the spent
// proofs from local storage immediately (the caller is assumed to
// share `send` with the recipient right away).
func (w *Wallet) Send(amount uint64, invalidate, includeFees bool) (keep cashu.Proofs, send cashu.Proofs, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	keep, send, err = w.sendLocked(w.currentMint, amount, invalidate, includeFees)
	if err != nil {
		return nil, nil, err
	}
	if err := w.recordSentToken(w.currentMint, send); err != nil {
		return nil, nil, err
	}
	return keep, send, nil
}

// sendLocked is Send's body, callable from other engine operations
// that already hold w.mu (Melt). mintURL selects which mint's balance
// candidates are drawn from.
func (w *Wallet) sendLocked(mintURL string, amount uint64, invalidate, includeFees bool) (keep cashu.Proofs, send cashu.Proofs, err error) {
	mint, ok := w.mints[mintURL]
	if !ok {
		return nil, nil, ErrNoActiveKeysetForUnit
	}
	keyset := mint.activeKeyset

	proofs := w.unreserved(mintURL)
	if sum(proofs) < amount {
		return nil, nil, ErrBalanceTooLow
	}
	selected := w.selectCoins(proofs, amount, includeFees)
	if len(selected) == 0 {
		return nil, nil, ErrBalanceTooLow
	}

	fee := uint64(0)
	if includeFees {
		fee = w.feeForProofs(selected)
	}
	total := sum(selected)
	change := total - amount - fee
	if change == 0 {
		if err := w.setReserved(selected, true, ""); err != nil {
			return nil, nil, err
		}
		if invalidate {
			if err := w.removeProofs(selected); err != nil {
				return nil, nil, err
			}
		}
		return cashu.Proofs{}, selected, nil
	}

	amounts := append(splitAmount(amount), splitAmount(change)...)
	set, err := w.createBlindedMessages(keyset, amounts)
	if err != nil {
		return nil, nil, err
	}

	response, err := client.PostSwap(mintURL, nut03.PostSwapRequest{
		Inputs:  selected,
		Outputs: set.messages,
	})
	if err != nil {
		if isOutputsAlreadySigned(err) {
			w.bumpCounter(keyset.Id, 10)
			return nil, nil, ErrRetryRequested
		}
		return nil, nil, err
	}

	newProofs, err := constructProofs(response.Signatures, set.secrets, set.rs, keyset)
	if err != nil {
		return nil, nil, err
	}

	sendCount := len(splitAmount(amount))
	send = newProofs[:sendCount]
	keep = newProofs[sendCount:]

	if err := w.removeProofs(selected); err != nil {
		return nil, nil, err
	}
	if err := w.addProofs(mintURL, keep); err != nil {
		return nil, nil, err
	}
	if !invalidate {
		if err := w.addProofs(mintURL, send); err != nil {
			return nil, nil, err
		}
		if err := w.setReserved(send, true, ""); err != nil {
			return nil, nil, err
		}
	}

	return keep, send, nil
}

// Swap redeems proofs received from another wallet (a Cashu token) for
// fresh proofs of our own. The token's mint must already be registered
// (see ActivateMintURL); Swap does not activate it and returns
// ErrNoActiveKeysetForUnit for an unknown mint. This is the "receive"
// side of send/receive.
func (w *Wallet) Swap(mintURL string, proofs cashu.Proofs) (cashu.Proofs, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mint, ok := w.mints[mintURL]
	if !ok {
		return nil, ErrNoActiveKeysetForUnit
	}
	keyset := mint.activeKeyset

	signed, err := w.signOwnP2PKInputs(proofs)
	if err != nil {
		return nil, err
	}

	amounts := splitAmount(sum(signed))
	set, err := w.createBlindedMessages(keyset, amounts)
	if err != nil {
		return nil, err
	}

	response, err := client.PostSwap(mintURL, nut03.PostSwapRequest{
		Inputs:  signed,
		Outputs: set.messages,
	})
	if err != nil {
		if isOutputsAlreadySigned(err) {
			w.bumpCounter(keyset.Id, 10)
			return nil, ErrRetryRequested
		}
		return nil, err
	}

	newProofs, err := constructProofs(response.Signatures, set.secrets, set.rs, keyset)
	if err != nil {
		return nil, err
	}
	if err := w.addProofs(mintURL, newProofs); err != nil {
		return nil, err
	}
	return newProofs, nil
}

// Melt pays a melt quote's invoice. It selects and reserves proofs
// covering quote.Amount+FeeReserve (bound to quote.QuoteId), records an
// outgoing-pending history entry, then calls the mint. A payment that
// may already be in flight (mint reports PENDING, or the request
// errors and a follow-up state query does not confirm UNPAID) is left
// reserved and the pending history entry is kept: retrying the send
// could double-pay. Only a definite UNPAID result rolls the
// reservation and counter bump back.
func (w *Wallet) Melt(quote *MeltQuote) (change cashu.Proofs, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mint, ok := w.mints[quote.MintURL]
	if !ok {
		return nil, ErrNoActiveKeysetForUnit
	}
	keyset := mint.activeKeyset

	needed := quote.Amount + quote.FeeReserve
	_, inputs, err := w.sendLocked(quote.MintURL, needed, false, true)
	if err != nil {
		return nil, err
	}
	if err := w.setReserved(inputs, true, quote.QuoteId); err != nil {
		return nil, err
	}

	if err := w.db.SaveInvoice(storage.InvoiceHistory{
		Amount:  -int64(needed),
		QuoteId: quote.QuoteId,
		MintURL: quote.MintURL,
		Memo:    "Outgoing invoice",
		Status:  storage.StatusPending,
	}); err != nil {
		return nil, err
	}

	// NUT-08: blank outputs, one per bit of the fee reserve, so the
	// mint can return unused fee as change of any denomination.
	blankAmounts := blankOutputCounts(quote.FeeReserve)

	var set blindedSet
	var delta int64 = int64(len(splitAmount(needed)))
	if len(blankAmounts) > 0 {
		set, err = w.createBlindedMessages(keyset, blankAmounts)
		if err != nil {
			return nil, err
		}
		delta += int64(len(blankAmounts))
	}

	response, err := client.PostMeltBolt11(quote.MintURL, nut05.PostMeltBolt11Request{
		Quote:   quote.QuoteId,
		Inputs:  inputs,
		Outputs: set.messages,
	})
	if err != nil {
		return nil, w.meltFailed(quote, inputs, delta, err)
	}

	switch response.State {
	case nut05.MeltPaid:
		if err := w.removeProofs(inputs); err != nil {
			return nil, err
		}
		if n := len(response.Change); n > 0 && n <= len(set.secrets) {
			changeProofs, err := constructProofs(response.Change, set.secrets[:n], set.rs[:n], keyset)
			if err == nil {
				w.addProofs(quote.MintURL, changeProofs)
				change = changeProofs
			}
		}
		amountPaid := needed - sum(change)
		invoice, _ := w.db.GetInvoice(quote.QuoteId)
		if invoice != nil {
			invoice.Amount = -int64(amountPaid)
			invoice.Status = storage.StatusPaid
			w.db.SaveInvoice(*invoice)
		}
		return change, nil
	case nut05.MeltPending:
		return nil, ErrPaymentPossiblyInFlight
	default:
		return nil, w.meltFailed(quote, inputs, delta, ErrPaymentFailed)
	}
}

// meltFailed implements the spec's melt failure handling: shutting
// down suppresses rollback entirely; a mint that still reports the
// quote PAID or PENDING after the failed call means the payment may
// yet land, so the reservation stays; only a confirmed UNPAID result
// reverses the reservation, the counter bump, and the pending history
// entry.
func (w *Wallet) meltFailed(quote *MeltQuote, inputs cashu.Proofs, delta int64, cause error) error {
	if w.unloading {
		return fmt.Errorf("%w: %v", ErrUnloading, cause)
	}

	state, stateErr := client.GetMeltQuoteState(quote.MintURL, quote.QuoteId)
	if stateErr != nil || state.State == nut05.MeltPaid || state.State == nut05.MeltPending {
		return fmt.Errorf("%w: %v", ErrPaymentPossiblyInFlight, cause)
	}

	mint := w.mints[quote.MintURL]
	w.setReserved(inputs, false, "")
	w.bumpCounter(mint.activeKeyset.Id, -delta)
	w.db.RemoveInvoice(quote.QuoteId)
	return fmt.Errorf("%w: %v", ErrPaymentFailed, cause)
}

// blankOutputCounts returns ceil(log2(feeReserve)) zero-amount
// placeholders, per NUT-08's blank-output allowance (at least one
// whenever a fee reserve is owed, so the mint has somewhere to put
// unused change).
func blankOutputCounts(feeReserve uint64) []uint64 {
	if feeReserve == 0 {
		return nil
	}

	n := 0
	for count := uint64(1); count < feeReserve; count <<= 1 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return make([]uint64, n)
}
