package wallet_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/cashu/nuts/nut01"
	"github.com/nutvault/walletcore/cashu/nuts/nut02"
	"github.com/nutvault/walletcore/cashu/nuts/nut03"
	"github.com/nutvault/walletcore/cashu/nuts/nut04"
	"github.com/nutvault/walletcore/cashu/nuts/nut05"
	"github.com/nutvault/walletcore/cashu/nuts/nut06"
	"github.com/nutvault/walletcore/cashu/nuts/nut07"
	"github.com/nutvault/walletcore/cashu/nuts/nut10"
	"github.com/nutvault/walletcore/cashu/nuts/nut11"
	"github.com/nutvault/walletcore/cashu/nuts/nut14"
	"github.com/nutvault/walletcore/cashu/nuts/nut15"
	"github.com/nutvault/walletcore/cashu/nuts/nut20"
	"github.com/nutvault/walletcore/crypto"
	"github.com/nutvault/walletcore/wallet"
	"github.com/nutvault/walletcore/wallet/storage"
	"github.com/stretchr/testify/require"
)

// fakeMint is a minimal in-memory stand-in for a Cashu mint, signing with
// real BDHKE so the wallet's unblind/verify path is exercised exactly as
// it would be against the genuine article.
type fakeMint struct {
	mu sync.Mutex

	keysetId string
	privkeys map[uint64]*secp256k1.PrivateKey
	pubkeys  nut01.KeysMap

	mintQuotes map[string]*fakeMintQuote
	meltQuotes map[string]*fakeMeltQuote
	spent      map[string]bool
	quoteSeq   int

	// failMelt, when set for a quote id, makes handleMelt reject the
	// payment without redeeming its inputs or advancing the quote past
	// UNPAID, simulating a Lightning routing failure.
	failMelt map[string]bool

	// forceAlreadySigned makes handleSwap/handleMint reject the
	// request with BlindedMessageAlreadySignedErrCode instead of
	// signing, simulating a client retry racing against itself.
	forceAlreadySigned bool
}

type fakeMintQuote struct {
	amount uint64
	state  nut04.MintQuoteState
	pubkey string
}

type fakeMeltQuote struct {
	amount     uint64
	feeReserve uint64
	state      nut05.MeltQuoteState
}

func newFakeMint(t *testing.T) (*httptest.Server, *fakeMint) {
	t.Helper()

	amounts := []uint64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}
	privkeys := make(map[uint64]*secp256k1.PrivateKey, len(amounts))
	pubkeysRaw := make(map[uint64]*secp256k1.PublicKey, len(amounts))
	pubkeys := make(nut01.KeysMap, len(amounts))
	for i, amount := range amounts {
		var seed [32]byte
		seed[30] = byte(i + 1)
		seed[31] = 0x07
		priv := secp256k1.PrivKeyFromBytes(seed[:])
		privkeys[amount] = priv
		pubkeysRaw[amount] = priv.PubKey()
		pubkeys[amount] = hex.EncodeToString(priv.PubKey().SerializeCompressed())
	}
	keysetId := crypto.DeriveKeysetId(pubkeysRaw)

	fm := &fakeMint{
		keysetId:   keysetId,
		privkeys:   privkeys,
		pubkeys:    pubkeys,
		mintQuotes: make(map[string]*fakeMintQuote),
		meltQuotes: make(map[string]*fakeMeltQuote),
		spent:      make(map[string]bool),
		failMelt:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/info", fm.handleInfo)
	mux.HandleFunc("/v1/keysets", fm.handleKeysets)
	mux.HandleFunc("/v1/keys", fm.handleKeys)
	mux.HandleFunc("/v1/keys/", fm.handleKeys)
	mux.HandleFunc("/v1/mint/quote/bolt11", fm.handleMintQuoteCreate)
	mux.HandleFunc("/v1/mint/quote/bolt11/", fm.handleMintQuoteState)
	mux.HandleFunc("/v1/mint/bolt11", fm.handleMint)
	mux.HandleFunc("/v1/swap", fm.handleSwap)
	mux.HandleFunc("/v1/melt/quote/bolt11", fm.handleMeltQuoteCreate)
	mux.HandleFunc("/v1/melt/quote/bolt11/", fm.handleMeltQuoteState)
	mux.HandleFunc("/v1/melt/bolt11", fm.handleMelt)
	mux.HandleFunc("/v1/checkstate", fm.handleCheckState)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, fm
}

func (fm *fakeMint) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := nut06.MintInfo{
		Name: "fake mint",
		Nuts: nut06.Nuts{
			Nut07: nut06.Supported{Supported: true},
			Nut08: nut06.Supported{Supported: true},
			Nut09: nut06.Supported{Supported: true},
			Nut14: nut06.Supported{Supported: true},
			Nut15: &nut06.NutSetting{Methods: []nut06.MethodSetting{{Method: cashu.BOLT11_METHOD, Unit: cashu.Sat.String()}}},
			Nut20: nut06.Supported{Supported: true},
		},
	}
	json.NewEncoder(w).Encode(info)
}

func (fm *fakeMint) handleKeysets(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(nut02.GetKeysetsResponse{
		Keysets: []nut02.Keyset{{Id: fm.keysetId, Unit: "sat", Active: true}},
	})
}

func (fm *fakeMint) handleKeys(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(nut01.GetKeysResponse{
		Keysets: []nut01.Keyset{{Id: fm.keysetId, Unit: "sat", Keys: fm.pubkeys}},
	})
}

func (fm *fakeMint) handleMintQuoteCreate(w http.ResponseWriter, r *http.Request) {
	var req nut04.PostMintQuoteBolt11Request
	json.NewDecoder(r.Body).Decode(&req)

	fm.mu.Lock()
	fm.quoteSeq++
	id := fmt.Sprintf("mintquote%d", fm.quoteSeq)
	// fake mints settle the invoice the instant it's requested: there is
	// no real lightning backend behind this test double.
	fm.mintQuotes[id] = &fakeMintQuote{amount: req.Amount, state: nut04.MintPaid, pubkey: req.Pubkey}
	fm.mu.Unlock()

	json.NewEncoder(w).Encode(nut04.PostMintQuoteBolt11Response{
		Quote:   id,
		Request: "lnbc" + id + "fakeinvoice",
		State:   nut04.MintPaid,
		Pubkey:  req.Pubkey,
	})
}

func (fm *fakeMint) handleMintQuoteState(w http.ResponseWriter, r *http.Request) {
	id := lastPathSegment(r.URL.Path)
	fm.mu.Lock()
	quote, ok := fm.mintQuotes[id]
	fm.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: "quote not found"})
		return
	}
	json.NewEncoder(w).Encode(nut04.PostMintQuoteBolt11Response{Quote: id, State: quote.state})
}

func (fm *fakeMint) handleMint(w http.ResponseWriter, r *http.Request) {
	var req nut04.PostMintBolt11Request
	json.NewDecoder(r.Body).Decode(&req)

	fm.mu.Lock()
	quote, ok := fm.mintQuotes[req.Quote]
	fm.mu.Unlock()
	if !ok || quote.state == nut04.MintUnpaid {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: "quote not paid", Code: cashu.MintQuoteRequestNotPaidErrCode})
		return
	}
	if quote.state == nut04.MintIssued {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: "already issued", Code: cashu.MintQuoteAlreadyIssuedErrCode})
		return
	}
	if quote.pubkey != "" {
		if err := verifyMintQuoteSignature(quote.pubkey, req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(cashu.Error{Detail: err.Error()})
			return
		}
	}

	sigs, err := fm.sign(req.Outputs)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: err.Error()})
		return
	}

	fm.mu.Lock()
	quote.state = nut04.MintIssued
	fm.mu.Unlock()

	json.NewEncoder(w).Encode(nut04.PostMintBolt11Response{Signatures: sigs})
}

func (fm *fakeMint) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req nut03.PostSwapRequest
	json.NewDecoder(r.Body).Decode(&req)

	fm.mu.Lock()
	forceAlreadySigned := fm.forceAlreadySigned
	fm.mu.Unlock()
	if forceAlreadySigned {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: "outputs already signed", Code: cashu.BlindedMessageAlreadySignedErrCode})
		return
	}

	if err := fm.redeem(req.Inputs); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: err.Error(), Code: cashu.ProofAlreadyUsedErrCode})
		return
	}

	sigs, err := fm.sign(req.Outputs)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: err.Error()})
		return
	}
	json.NewEncoder(w).Encode(nut03.PostSwapResponse{Signatures: sigs})
}

func (fm *fakeMint) handleMeltQuoteCreate(w http.ResponseWriter, r *http.Request) {
	var req nut05.PostMeltQuoteBolt11Request
	json.NewDecoder(r.Body).Decode(&req)

	// the test double encodes the invoice's amount directly in the
	// request string as "invoice:<sats>" so no real bolt11 parsing is
	// needed to drive the melt quote lifecycle.
	var amount uint64
	fmt.Sscanf(req.Request, "invoice:%d", &amount)
	// a NUT-15 partial quote covers only the requested share (in msat).
	if req.Options != nil && req.Options.Mpp != nil {
		amount = req.Options.Mpp.Amount / 1000
	}

	fm.mu.Lock()
	fm.quoteSeq++
	id := fmt.Sprintf("meltquote%d", fm.quoteSeq)
	fm.meltQuotes[id] = &fakeMeltQuote{amount: amount, feeReserve: 1, state: nut05.MeltUnpaid}
	fm.mu.Unlock()

	json.NewEncoder(w).Encode(nut05.PostMeltQuoteBolt11Response{
		Quote: id, Amount: amount, FeeReserve: 1, State: nut05.MeltUnpaid,
	})
}

func (fm *fakeMint) handleMeltQuoteState(w http.ResponseWriter, r *http.Request) {
	id := lastPathSegment(r.URL.Path)
	fm.mu.Lock()
	quote, ok := fm.meltQuotes[id]
	fm.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: "quote not found"})
		return
	}
	json.NewEncoder(w).Encode(nut05.PostMeltQuoteBolt11Response{
		Quote: id, Amount: quote.amount, FeeReserve: quote.feeReserve, State: quote.state,
	})
}

func (fm *fakeMint) handleMelt(w http.ResponseWriter, r *http.Request) {
	var req nut05.PostMeltBolt11Request
	json.NewDecoder(r.Body).Decode(&req)

	fm.mu.Lock()
	quote, ok := fm.meltQuotes[req.Quote]
	shouldFail := fm.failMelt[req.Quote]
	fm.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: "quote not found"})
		return
	}
	if shouldFail {
		// the quote stays UNPAID at the mint, as if the Lightning
		// payment never went out, so its inputs are never redeemed.
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: "payment route not found"})
		return
	}

	total := uint64(0)
	for _, p := range req.Inputs {
		total += p.Amount
	}
	if total < quote.amount+quote.feeReserve {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: "insufficient inputs"})
		return
	}

	if err := fm.redeem(req.Inputs); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(cashu.Error{Detail: err.Error(), Code: cashu.ProofAlreadyUsedErrCode})
		return
	}

	fm.mu.Lock()
	quote.state = nut05.MeltPaid
	fm.mu.Unlock()

	json.NewEncoder(w).Encode(nut05.PostMeltQuoteBolt11Response{
		Quote: req.Quote, Amount: quote.amount, FeeReserve: quote.feeReserve, State: nut05.MeltPaid,
	})
}

func (fm *fakeMint) handleCheckState(w http.ResponseWriter, r *http.Request) {
	var req nut07.PostCheckStateRequest
	json.NewDecoder(r.Body).Decode(&req)

	fm.mu.Lock()
	defer fm.mu.Unlock()

	states := make([]nut07.ProofState, len(req.Ys))
	for i, y := range req.Ys {
		state := nut07.Unspent
		if fm.spent[y] {
			state = nut07.Spent
		}
		states[i] = nut07.ProofState{Y: y, State: state}
	}
	json.NewEncoder(w).Encode(nut07.PostCheckStateResponse{States: states})
}

// sign blind-signs every output with this mint's per-denomination key.
func (fm *fakeMint) sign(outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	sigs := make(cashu.BlindedSignatures, len(outputs))
	for i, msg := range outputs {
		priv, ok := fm.privkeys[msg.Amount]
		if !ok {
			return nil, fmt.Errorf("no key for amount %v", msg.Amount)
		}
		bbytes, err := hex.DecodeString(msg.B_)
		if err != nil {
			return nil, err
		}
		B_, err := secp256k1.ParsePubKey(bbytes)
		if err != nil {
			return nil, err
		}
		C_ := crypto.SignBlindedMessage(B_, priv)
		sigs[i] = cashu.BlindedSignature{
			Amount: msg.Amount,
			Id:     msg.Id,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
		}
	}
	return sigs, nil
}

// redeem marks inputs spent, rejecting any already spent (a
// double-spend) or any P2PK-locked input without a valid witness.
func (fm *fakeMint) redeem(inputs cashu.Proofs) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	for _, p := range inputs {
		y := crypto.Y(p.Secret)
		if fm.spent[y] {
			return fmt.Errorf("input already spent")
		}
		if nut11.IsSecretP2PK(p) {
			if err := verifyP2PKWitness(p); err != nil {
				return err
			}
		}
		if nut14.IsSecretHTLC(p) {
			if err := verifyHTLCWitness(p); err != nil {
				return err
			}
		}
	}
	for _, p := range inputs {
		fm.spent[crypto.Y(p.Secret)] = true
	}
	return nil
}

func verifyHTLCWitness(p cashu.Proof) error {
	secret, err := nut10.DeserializeSecret(p.Secret)
	if err != nil {
		return fmt.Errorf("invalid HTLC secret: %v", err)
	}
	if p.Witness == "" {
		return fmt.Errorf("missing HTLC witness")
	}
	var witness nut14.HTLCWitness
	if err := json.Unmarshal([]byte(p.Witness), &witness); err != nil {
		return fmt.Errorf("invalid HTLC witness: %v", err)
	}
	preimageBytes, err := hex.DecodeString(witness.Preimage)
	if err != nil {
		return fmt.Errorf("invalid HTLC preimage encoding: %v", err)
	}
	hash := sha256.Sum256(preimageBytes)
	if hex.EncodeToString(hash[:]) != secret.Data {
		return fmt.Errorf("preimage does not match HTLC hash lock")
	}
	return nil
}

func verifyMintQuoteSignature(pubkeyHex string, req nut04.PostMintBolt11Request) error {
	if req.Signature == "" {
		return fmt.Errorf("missing NUT-20 quote signature")
	}
	pubkeyBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return fmt.Errorf("invalid quote locking pubkey: %v", err)
	}
	pubkey, err := secp256k1.ParsePubKey(pubkeyBytes)
	if err != nil {
		return fmt.Errorf("invalid quote locking pubkey: %v", err)
	}
	sigBytes, err := hex.DecodeString(req.Signature)
	if err != nil {
		return fmt.Errorf("invalid quote signature encoding: %v", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("invalid quote signature: %v", err)
	}
	if !nut20.VerifyMintQuoteSignature(sig, req.Quote, req.Outputs, pubkey) {
		return fmt.Errorf("invalid quote signature")
	}
	return nil
}

func verifyP2PKWitness(p cashu.Proof) error {
	secret, err := nut10.DeserializeSecret(p.Secret)
	if err != nil {
		return fmt.Errorf("invalid P2PK secret: %v", err)
	}
	pubkeys, err := nut11.PublicKeys(secret)
	if err != nil {
		return fmt.Errorf("invalid P2PK pubkey: %v", err)
	}
	if p.Witness == "" {
		return fmt.Errorf("missing P2PK witness")
	}
	var witness nut11.P2PKWitness
	if err := json.Unmarshal([]byte(p.Witness), &witness); err != nil {
		return fmt.Errorf("invalid P2PK witness: %v", err)
	}
	hash := sha256.Sum256([]byte(p.Secret))
	if !nut11.HasValidSignatures(hash[:], witness, 1, pubkeys) {
		return fmt.Errorf("invalid P2PK signature")
	}
	return nil
}

func lastPathSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func newTestWallet(t *testing.T, mintURL string) *wallet.Wallet {
	t.Helper()
	db, err := storage.InitBoltDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w, err := wallet.New(wallet.Config{CurrentMintURL: mintURL, Unit: cashu.Sat, DomainSeparation: true}, db)
	require.NoError(t, err)
	return w
}

func TestMintSendSwapMelt(t *testing.T) {
	server, _ := newFakeMint(t)
	w := newTestWallet(t, server.URL)

	quote, err := w.RequestMintQuote(1000)
	require.NoError(t, err)
	require.Equal(t, server.URL, quote.MintURL)

	proofs, err := w.Mint(1000, quote.QuoteId)
	require.NoError(t, err)
	require.EqualValues(t, 1000, proofs.Amount())
	require.EqualValues(t, 1000, w.ActiveMintBalance())

	_, send, err := w.Send(400, true, false)
	require.NoError(t, err)
	require.EqualValues(t, 400, send.Amount())
	require.EqualValues(t, 600, w.ActiveMintBalance())

	receiver := newTestWallet(t, server.URL)
	received, err := receiver.Swap(server.URL, send)
	require.NoError(t, err)
	require.EqualValues(t, 400, received.Amount())

	// the spent send proofs can no longer be redeemed again
	_, err = receiver.Swap(server.URL, send)
	require.Error(t, err)

	balanceBeforeMelt := w.ActiveMintBalance()
	meltQuote, err := w.MeltQuote(&wallet.PayInvoiceSession{}, "invoice:300")
	require.NoError(t, err)
	require.EqualValues(t, 300, meltQuote.Amount)

	change, err := w.Melt(meltQuote)
	require.NoError(t, err)
	require.Empty(t, change)
	require.EqualValues(t, balanceBeforeMelt-meltQuote.Amount-meltQuote.FeeReserve, w.ActiveMintBalance())
}

func TestCheckProofsSpendable(t *testing.T) {
	server, _ := newFakeMint(t)
	w := newTestWallet(t, server.URL)

	quote, err := w.RequestMintQuote(500)
	require.NoError(t, err)
	proofs, err := w.Mint(500, quote.QuoteId)
	require.NoError(t, err)

	spent, err := w.CheckProofsSpendable(server.URL, proofs, false)
	require.NoError(t, err)
	require.Empty(t, spent)

	_, send, err := w.Send(200, true, false)
	require.NoError(t, err)
	receiver := newTestWallet(t, server.URL)
	_, err = receiver.Swap(server.URL, send)
	require.NoError(t, err)

	// send's proofs were redeemed at the mint by the swap above, so the
	// sender's stale local copies should now report spent, and with
	// updateHistory set a paid history entry should be filed for them.
	spent, err = w.CheckProofsSpendable(server.URL, send, true)
	require.NoError(t, err)
	require.Len(t, spent, len(send))

	// calling again is idempotent: the spent set is already gone from
	// local storage, so there is nothing left to report or re-file.
	spent, err = w.CheckProofsSpendable(server.URL, send, true)
	require.NoError(t, err)
	require.Empty(t, spent)
}

func TestCheckOutgoingInvoice(t *testing.T) {
	server, _ := newFakeMint(t)
	w := newTestWallet(t, server.URL)

	quote, err := w.RequestMintQuote(500)
	require.NoError(t, err)
	_, err = w.Mint(500, quote.QuoteId)
	require.NoError(t, err)

	meltQuote, err := w.MeltQuote(&wallet.PayInvoiceSession{}, "invoice:100")
	require.NoError(t, err)
	_, err = w.Melt(meltQuote)
	require.NoError(t, err)

	refreshed, err := w.CheckOutgoingInvoice(server.URL, meltQuote.QuoteId)
	require.NoError(t, err)
	require.EqualValues(t, 100, refreshed.Amount)
}

func TestSendToPubkeyLocksAndOnlyReceiverCanRedeem(t *testing.T) {
	server, _ := newFakeMint(t)
	sender := newTestWallet(t, server.URL)

	quote, err := sender.RequestMintQuote(500)
	require.NoError(t, err)
	_, err = sender.Mint(500, quote.QuoteId)
	require.NoError(t, err)

	receiver := newTestWallet(t, server.URL)
	receiverPubkey, err := receiver.ReceivePubkey()
	require.NoError(t, err)

	_, locked, err := sender.SendToPubkey(200, receiverPubkey, false)
	require.NoError(t, err)
	require.EqualValues(t, 200, locked.Amount())

	// a third party without the receiver's key cannot redeem it: the
	// swap request goes out unsigned and the fake mint's P2PK
	// witness check of the witness-less input fails.
	stranger := newTestWallet(t, server.URL)
	_, err = stranger.Swap(server.URL, locked)
	require.Error(t, err)

	received, err := receiver.Swap(server.URL, locked)
	require.NoError(t, err)
	require.EqualValues(t, 200, received.Amount())
}

func TestSendToHashClaimRequiresCorrectPreimage(t *testing.T) {
	server, _ := newFakeMint(t)
	sender := newTestWallet(t, server.URL)

	quote, err := sender.RequestMintQuote(500)
	require.NoError(t, err)
	_, err = sender.Mint(500, quote.QuoteId)
	require.NoError(t, err)

	preimageBytes := make([]byte, 32)
	preimageBytes[0] = 0x42
	preimage := hex.EncodeToString(preimageBytes)
	hash := sha256.Sum256(preimageBytes)
	paymentHash := hex.EncodeToString(hash[:])

	_, locked, err := sender.SendToHash(200, paymentHash, false)
	require.NoError(t, err)
	require.EqualValues(t, 200, locked.Amount())

	claimant := newTestWallet(t, server.URL)

	wrongPreimage := hex.EncodeToString(make([]byte, 32))
	_, err = claimant.ClaimHTLC(server.URL, locked, wrongPreimage)
	require.Error(t, err)

	claimed, err := claimant.ClaimHTLC(server.URL, locked, preimage)
	require.NoError(t, err)
	require.EqualValues(t, 200, claimed.Amount())
}

func TestRequestLockedMintQuoteRequiresSignatureToClaim(t *testing.T) {
	server, fm := newFakeMint(t)
	w := newTestWallet(t, server.URL)

	quote, err := w.RequestLockedMintQuote(300)
	require.NoError(t, err)

	fm.mu.Lock()
	lockedQuote := fm.mintQuotes[quote.QuoteId]
	fm.mu.Unlock()
	require.NotEmpty(t, lockedQuote.pubkey)

	proofs, err := w.Mint(300, quote.QuoteId)
	require.NoError(t, err)
	require.EqualValues(t, 300, proofs.Amount())
}

func TestWaitForMintQuotePaidFallsBackToPolling(t *testing.T) {
	server, _ := newFakeMint(t)
	w := newTestWallet(t, server.URL)

	quote, err := w.RequestMintQuote(150)
	require.NoError(t, err)

	// the fake mint doesn't advertise NUT-17 support, so this exercises
	// the polling fallback rather than the websocket path; the fake
	// mint settles mint quotes instantly, so the first poll succeeds.
	proofs, err := w.WaitForMintQuotePaid(server.URL, quote.QuoteId, time.Millisecond)
	require.NoError(t, err)
	require.EqualValues(t, 150, proofs.Amount())
}

func TestMeltFailureRollsBackReservationWhenQuoteStaysUnpaid(t *testing.T) {
	server, fm := newFakeMint(t)
	w := newTestWallet(t, server.URL)

	mintQuote, err := w.RequestMintQuote(1000)
	require.NoError(t, err)
	_, err = w.Mint(1000, mintQuote.QuoteId)
	require.NoError(t, err)
	balanceBeforeMelt := w.ActiveMintBalance()

	meltQuote, err := w.MeltQuote(&wallet.PayInvoiceSession{}, "invoice:300")
	require.NoError(t, err)

	fm.mu.Lock()
	fm.failMelt[meltQuote.QuoteId] = true
	fm.mu.Unlock()

	_, err = w.Melt(meltQuote)
	require.Error(t, err)
	require.ErrorIs(t, err, wallet.ErrPaymentFailed)

	// the mint never redeemed the inputs and the quote stayed UNPAID, so
	// the reservation is unwound and the full pre-melt balance is back.
	require.EqualValues(t, balanceBeforeMelt, w.ActiveMintBalance())
}

func TestMeltFailureDuringUnloadSuppressesRollback(t *testing.T) {
	server, fm := newFakeMint(t)
	w := newTestWallet(t, server.URL)

	mintQuote, err := w.RequestMintQuote(1000)
	require.NoError(t, err)
	_, err = w.Mint(1000, mintQuote.QuoteId)
	require.NoError(t, err)
	balanceBeforeMelt := w.ActiveMintBalance()

	meltQuote, err := w.MeltQuote(&wallet.PayInvoiceSession{}, "invoice:300")
	require.NoError(t, err)

	fm.mu.Lock()
	fm.failMelt[meltQuote.QuoteId] = true
	fm.mu.Unlock()

	w.SetUnloading()

	_, err = w.Melt(meltQuote)
	require.Error(t, err)
	require.ErrorIs(t, err, wallet.ErrUnloading)

	// shutting down suppresses the rollback entirely: the reservation
	// made for the failed payment attempt is left in place so a retry
	// on the next run can't also spend the same inputs elsewhere.
	require.EqualValues(t, balanceBeforeMelt-meltQuote.Amount-meltQuote.FeeReserve, w.ActiveMintBalance())
}

func TestSendRetriesWhenOutputsAlreadySigned(t *testing.T) {
	server, fm := newFakeMint(t)
	w := newTestWallet(t, server.URL)

	quote, err := w.RequestMintQuote(500)
	require.NoError(t, err)
	_, err = w.Mint(500, quote.QuoteId)
	require.NoError(t, err)
	balanceBeforeSend := w.ActiveMintBalance()

	fm.mu.Lock()
	fm.forceAlreadySigned = true
	fm.mu.Unlock()

	_, _, err = w.Send(200, true, false)
	require.ErrorIs(t, err, wallet.ErrRetryRequested)

	// the mint rejected the blinded outputs without signing anything,
	// so no local proof should have been spent or added.
	require.EqualValues(t, balanceBeforeSend, w.ActiveMintBalance())
}

func TestAllocatePartialsWorkedExample(t *testing.T) {
	mints := []string{"https://mint1", "https://mint2", "https://mint3"}
	partials, err := nut15.AllocatePartials(333, mints, []float64{0.5, 0.3, 0.2})
	require.NoError(t, err)
	require.Equal(t, []nut15.Partial{
		{MintURL: "https://mint1", Amount: 167},
		{MintURL: "https://mint2", Amount: 100},
		{MintURL: "https://mint3", Amount: 66},
	}, partials)
}

func TestMultiPathMeltQuotesSplitsAcrossMints(t *testing.T) {
	server1, _ := newFakeMint(t)
	server2, _ := newFakeMint(t)
	w := newTestWallet(t, server1.URL)

	quote1, err := w.RequestMintQuote(700)
	require.NoError(t, err)
	_, err = w.Mint(700, quote1.QuoteId)
	require.NoError(t, err)

	_, err = w.ActivateMintURL(server2.URL, cashu.Sat)
	require.NoError(t, err)
	quote2, err := w.RequestMintQuote(300)
	require.NoError(t, err)
	_, err = w.Mint(300, quote2.QuoteId)
	require.NoError(t, err)

	session := &wallet.PayInvoiceSession{}
	quotes, err := w.MultiPathMeltQuotes(session, "invoice:333", 333)
	require.NoError(t, err)

	var sum uint64
	for _, q := range quotes {
		sum += q.Amount
	}
	require.EqualValues(t, 333, sum)
	require.Equal(t, quotes, session.MultiQuotes)
}
