package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/cashu/nuts/nut06"
	"github.com/nutvault/walletcore/cashu/nuts/nut15"
	"github.com/nutvault/walletcore/crypto"
	"github.com/nutvault/walletcore/wallet/client"
)

// ActiveMint returns the currently-activated mint URL.
func (w *Wallet) ActiveMint() string { return w.currentMint }

// ActiveUnit returns the unit the wallet currently operates in.
func (w *Wallet) ActiveUnit() cashu.Unit { return w.unit }

// ActiveKeys returns the active keyset's public keys for the active mint.
func (w *Wallet) ActiveKeys() (map[uint64]string, error) {
	mint, ok := w.mints[w.currentMint]
	if !ok {
		return nil, ErrNoActiveKeysetForUnit
	}
	keys := make(map[uint64]string, len(mint.activeKeyset.PublicKeys))
	for amount, pk := range mint.activeKeyset.PublicKeys {
		keys[amount] = hex.EncodeToString(pk.SerializeCompressed())
	}
	return keys, nil
}

// ActiveKeysets returns the active and inactive keysets known for the
// active mint.
func (w *Wallet) ActiveKeysets() []crypto.WalletKeyset {
	mint, ok := w.mints[w.currentMint]
	if !ok {
		return nil
	}
	keysets := make([]crypto.WalletKeyset, 0, len(mint.inactiveKeysets)+1)
	if mint.activeKeyset.Id != "" {
		keysets = append(keysets, mint.activeKeyset)
	}
	for _, ks := range mint.inactiveKeysets {
		keysets = append(keysets, ks)
	}
	return keysets
}

// ActiveInfo returns the active mint's last-fetched /v1/info response.
func (w *Wallet) ActiveInfo() *nut06.MintInfo {
	mint, ok := w.mints[w.currentMint]
	if !ok {
		return nil
	}
	return mint.info
}

// ActiveMintBalance sums the unreserved balance held with the active mint.
func (w *Wallet) ActiveMintBalance() uint64 {
	return sum(w.unreserved(w.currentMint))
}

// ActivateMintURL registers (fetching keysets/info as needed) and
// switches the active mint to mintURL for unit.
func (w *Wallet) ActivateMintURL(mintURL string, unit cashu.Unit) (*crypto.WalletKeyset, error) {
	mint := w.mintOrCreate(mintURL)
	mint.unit = unit.String()

	info, err := client.GetMintInfo(mintURL)
	if err != nil {
		return nil, fmt.Errorf("error getting mint info: %v", err)
	}
	mint.info = info

	activeKeyset, err := w.getActiveSatKeyset(mintURL)
	if err != nil {
		return nil, err
	}
	mint.activeKeyset = *activeKeyset
	if err := w.db.SaveKeyset(activeKeyset); err != nil {
		return nil, err
	}

	inactive, err := GetMintInactiveKeysets(mintURL)
	if err != nil {
		return nil, err
	}
	mint.inactiveKeysets = inactive

	w.currentMint = mintURL
	return activeKeyset, nil
}

// MultiMints returns every registered mint (the active one included)
// whose info advertises NUT-15 support for (bolt11, unit).
func (w *Wallet) MultiMints(unit cashu.Unit) []string {
	var mints []string
	for url, mint := range w.mints {
		if mint.info == nil {
			continue
		}
		if nut15.IsMppSupported(mint.info, unit) {
			mints = append(mints, url)
		}
	}
	return mints
}

// MultiMintBalance returns the combined unreserved balance across
// mints eligible for MPP, plus each mint's share of that total.
func (w *Wallet) MultiMintBalance(unit cashu.Unit) (overall uint64, weights map[string]float64) {
	eligible := w.MultiMints(unit)
	weights = make(map[string]float64, len(eligible))

	balances := make(map[string]uint64, len(eligible))
	for _, mintURL := range eligible {
		bal := sum(w.unreserved(mintURL))
		balances[mintURL] = bal
		overall += bal
	}

	if overall == 0 {
		return 0, weights
	}
	for mintURL, bal := range balances {
		weights[mintURL] = float64(bal) / float64(overall)
	}
	return overall, weights
}
