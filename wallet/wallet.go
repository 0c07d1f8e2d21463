// Package wallet implements the core Cashu wallet engine: mint-quote and
// melt-quote lifecycles, blinded mint/send/melt execution, coin
// selection, proof reconciliation, and request decoding. It holds no UI
// or persistence backend of its own beyond the storage.DB contract.
package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/crypto"
	"github.com/nutvault/walletcore/wallet/storage"
	"github.com/tyler-smith/go-bip39"
)

// Wallet is the engine: it owns the proof store and keyset counters
// through a storage.DB, and the set of mints it has activated. All
// network calls go out through wallet/client.
type Wallet struct {
	mu sync.Mutex // engine mutex: held across mint/send/melt

	db        storage.DB
	masterKey *hdkeychain.ExtendedKey
	mnemonic  string

	unit             cashu.Unit
	domainSeparation bool

	currentMint string
	mints       map[string]*mintData

	// unloading suppresses melt rollback on the host's pre-exit hook.
	unloading bool
}

// New builds a wallet engine over db (creating its mnemonic on first
// use) and activates cfg.CurrentMintURL if set. It does not read
// cfg.WalletPath; the caller opens db.
func New(cfg Config, db storage.DB) (*Wallet, error) {
	w := &Wallet{
		db:               db,
		unit:             cfg.Unit,
		domainSeparation: cfg.DomainSeparation,
		currentMint:      cfg.CurrentMintURL,
		mints:            make(map[string]*mintData),
	}

	mnemonic, err := w.getOrCreateMnemonic()
	if err != nil {
		return nil, fmt.Errorf("error setting up mnemonic: %v", err)
	}
	w.mnemonic = mnemonic

	if err := w.deriveMasterKey(); err != nil {
		return nil, err
	}

	for _, keyset := range db.GetKeysets() {
		mint := w.mintOrCreate(keyset.MintURL)
		if keyset.Active {
			mint.activeKeyset = keyset
		} else {
			mint.inactiveKeysets[keyset.Id] = keyset
		}
	}

	if cfg.CurrentMintURL != "" {
		if _, err := w.ActivateMintURL(cfg.CurrentMintURL, cfg.Unit); err != nil {
			return nil, fmt.Errorf("error activating mint '%v': %v", cfg.CurrentMintURL, err)
		}
	}

	return w, nil
}

func (w *Wallet) deriveMasterKey() error {
	seed := bip39.NewSeed(w.mnemonic, "")
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return fmt.Errorf("error deriving master key: %v", err)
	}
	w.masterKey = masterKey
	return nil
}

func (w *Wallet) mintOrCreate(mintURL string) *mintData {
	mint, ok := w.mints[mintURL]
	if !ok {
		mint = &mintData{url: mintURL, unit: w.unit.String(), inactiveKeysets: make(map[string]crypto.WalletKeyset)}
		w.mints[mintURL] = mint
	}
	return mint
}

// SetUnloading marks the wallet as shutting down; an in-flight melt's
// failure handler will not roll back a payment once this is set.
func (w *Wallet) SetUnloading() {
	w.mu.Lock()
	w.unloading = true
	w.mu.Unlock()
}

func (w *Wallet) isUnloading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unloading
}

// Close releases the underlying storage handle.
func (w *Wallet) Close() error {
	return w.db.Close()
}
