package wallet

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// deriveP2PK derives the fixed key a wallet uses to receive ecash
// locked to its own pubkey: m/129372'/0'/1'/0 off the wallet's seed.
// The path reuses NUT-13's purpose/coin-type levels but a dedicated
// account (1') so P2PK keys never collide with keyset derivation.
func deriveP2PK(key *hdkeychain.ExtendedKey) (*btcec.PrivateKey, error) {
	purpose, err := key.Derive(hdkeychain.HardenedKeyStart + 129372)
	if err != nil {
		return nil, err
	}
	coinType, err := purpose.Derive(hdkeychain.HardenedKeyStart + 0)
	if err != nil {
		return nil, err
	}
	account, err := coinType.Derive(hdkeychain.HardenedKeyStart + 1)
	if err != nil {
		return nil, err
	}
	extKey, err := account.Derive(0)
	if err != nil {
		return nil, err
	}
	return extKey.ECPrivKey()
}

// P2PKReceiveKey returns the private key the wallet uses to unlock
// ecash that was sent to its ReceivePubkey.
func (w *Wallet) P2PKReceiveKey() (*btcec.PrivateKey, error) {
	return deriveP2PK(w.masterKey)
}

// ReceivePubkey returns the compressed hex pubkey a sender should lock
// a token to for this wallet to be able to redeem it.
func (w *Wallet) ReceivePubkey() (string, error) {
	key, err := w.P2PKReceiveKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key.PubKey().SerializeCompressed()), nil
}
