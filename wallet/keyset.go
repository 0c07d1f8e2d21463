package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/crypto"
	"github.com/nutvault/walletcore/wallet/client"
)

// GetMintActiveKeyset fetches and derives the active keyset for unit
// from mintURL, verifying the mint-reported id against the keys
// themselves (NUT-02's self-certifying id).
func GetMintActiveKeyset(mintURL string, unit cashu.Unit) (*crypto.WalletKeyset, error) {
	keysets, err := client.GetAllKeysets(mintURL)
	if err != nil {
		return nil, fmt.Errorf("error getting keysets from mint: %v", err)
	}

	keysetsResponse, err := client.GetActiveKeysets(mintURL)
	if err != nil {
		return nil, fmt.Errorf("error getting active keysets from mint: %v", err)
	}

	for i, keyset := range keysetsResponse.Keysets {
		if keyset.Unit != unit.String() {
			continue
		}

		var inputFeePpk uint
		for _, response := range keysets.Keysets {
			if response.Id == keyset.Id {
				inputFeePpk = response.InputFeePpk
				break
			}
		}

		if _, err := hex.DecodeString(keyset.Id); err != nil {
			continue
		}

		keys, err := crypto.MapPubKeys(keysetsResponse.Keysets[i].Keys)
		if err != nil {
			return nil, err
		}
		id := crypto.DeriveKeysetId(keys)
		if id != keyset.Id {
			return nil, fmt.Errorf("got invalid keyset: derived id '%v' but mint reported '%v'", id, keyset.Id)
		}

		return &crypto.WalletKeyset{
			Id:          id,
			MintURL:     mintURL,
			Unit:        keyset.Unit,
			Active:      true,
			PublicKeys:  keys,
			InputFeePpk: inputFeePpk,
		}, nil
	}

	return nil, errors.New("could not find an active keyset for the unit")
}

// GetMintInactiveKeysets returns every known non-active hex-id keyset
// for mintURL, keyed by id.
func GetMintInactiveKeysets(mintURL string) (map[string]crypto.WalletKeyset, error) {
	keysetsResponse, err := client.GetAllKeysets(mintURL)
	if err != nil {
		return nil, fmt.Errorf("error getting keysets from mint: %v", err)
	}

	inactive := make(map[string]crypto.WalletKeyset)
	for _, ks := range keysetsResponse.Keysets {
		if ks.Active {
			continue
		}
		if _, err := hex.DecodeString(ks.Id); err != nil {
			continue
		}
		inactive[ks.Id] = crypto.WalletKeyset{
			Id:          ks.Id,
			MintURL:     mintURL,
			Unit:        ks.Unit,
			Active:      false,
			InputFeePpk: ks.InputFeePpk,
		}
	}
	return inactive, nil
}

// getActiveSatKeyset returns mintURL's current active keyset for the
// wallet's unit, refreshing from the mint and inactivating the
// previous one if it has changed.
func (w *Wallet) getActiveSatKeyset(mintURL string) (*crypto.WalletKeyset, error) {
	mint, known := w.mints[mintURL]
	if !known || mint.activeKeyset.Id == "" {
		return GetMintActiveKeyset(mintURL, w.unit)
	}

	allKeysets, err := client.GetAllKeysets(mintURL)
	if err != nil {
		return nil, err
	}

	activeKeyset := mint.activeKeyset
	stillActive := false
	for _, ks := range allKeysets.Keysets {
		if ks.Active && ks.Id == activeKeyset.Id {
			stillActive = true
			break
		}
	}
	if stillActive {
		return &activeKeyset, nil
	}

	activeKeyset.Active = false
	mint.inactiveKeysets[activeKeyset.Id] = activeKeyset
	if err := w.db.SaveKeyset(&activeKeyset); err != nil {
		return nil, err
	}

	fresh, err := GetMintActiveKeyset(mintURL, w.unit)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func getKeysetKeys(mintURL, id string) (map[uint64]*secp256k1.PublicKey, error) {
	keysetsResponse, err := client.GetKeysetById(mintURL, id)
	if err != nil {
		return nil, fmt.Errorf("error getting keyset from mint: %v", err)
	}

	if len(keysetsResponse.Keysets) == 0 {
		return nil, fmt.Errorf("mint has no keyset with id '%v'", id)
	}
	return crypto.MapPubKeys(keysetsResponse.Keysets[0].Keys)
}
