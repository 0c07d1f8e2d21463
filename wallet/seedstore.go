package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// getOrCreateMnemonic returns the wallet's mnemonic, generating one on
// first use only. Once generated it is never silently overwritten; use
// RotateMnemonic to replace it.
func (w *Wallet) getOrCreateMnemonic() (string, error) {
	mnemonic, err := w.db.GetMnemonic()
	if err != nil {
		return "", err
	}
	if mnemonic != "" {
		return mnemonic, nil
	}

	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("error generating entropy: %v", err)
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("error generating mnemonic: %v", err)
	}

	if err := w.db.SaveMnemonic(mnemonic); err != nil {
		return "", err
	}
	return mnemonic, nil
}

// counter returns the current counter for a keyset, initializing it to
// 1 on first reference.
func (w *Wallet) counter(keysetId string) (uint32, error) {
	counter, ok, err := w.db.GetKeysetCounter(keysetId)
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := w.db.SaveKeysetCounter(keysetId, 1); err != nil {
			return 0, err
		}
		return 1, nil
	}
	return counter, nil
}

// bumpCounter adds delta (which may be negative, for rollback) to a
// keyset's counter. A negative result is clamped to zero.
func (w *Wallet) bumpCounter(keysetId string, delta int64) error {
	current, err := w.counter(keysetId)
	if err != nil {
		return err
	}
	next := int64(current) + delta
	if next < 0 {
		next = 0
	}
	return w.db.SaveKeysetCounter(keysetId, uint32(next))
}

// RotateMnemonic archives the current mnemonic and its keyset counters,
// then generates a fresh mnemonic. Old counters remain recoverable
// through storage.DB.GetOldMnemonicCounters indefinitely.
func (w *Wallet) RotateMnemonic() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	oldCounters := make(map[string]uint32)
	for _, mint := range w.mints {
		for _, id := range mint.allKeysetIds() {
			counter, ok, err := w.db.GetKeysetCounter(id)
			if err != nil {
				return "", err
			}
			if ok {
				oldCounters[id] = counter
			}
		}
	}

	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("error generating entropy: %v", err)
	}
	newMnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("error generating mnemonic: %v", err)
	}

	if err := w.db.RotateMnemonic(w.mnemonic, oldCounters, newMnemonic); err != nil {
		return "", fmt.Errorf("error rotating mnemonic: %v", err)
	}

	w.mnemonic = newMnemonic
	return newMnemonic, w.deriveMasterKey()
}

func (m *mintData) allKeysetIds() []string {
	ids := make([]string, 0, len(m.inactiveKeysets)+1)
	if m.activeKeyset.Id != "" {
		ids = append(ids, m.activeKeyset.Id)
	}
	for id := range m.inactiveKeysets {
		ids = append(ids, id)
	}
	return ids
}
