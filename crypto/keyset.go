package crypto

import (
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// WalletKeyset is the wallet's view of one of a mint's keysets: its
// public keys (the wallet never sees mint private keys) plus the
// bookkeeping the wallet itself needs (deterministic secret counter,
// per-mint fee rate).
type WalletKeyset struct {
	Id          string
	MintURL     string
	Unit        string
	Active      bool
	PublicKeys  map[uint64]*secp256k1.PublicKey
	InputFeePpk uint
	Counter     uint32
}

// KeysetsMap indexes a mint's keysets by id.
type KeysetsMap map[string]WalletKeyset

// IsHexId reports whether a keyset id is a v2 (hex, "00"-prefixed) id as
// opposed to a legacy base64-encoded one. Per NUT-02, hex ids should be
// preferred when a unit has more than one active keyset.
func IsHexId(id string) bool {
	return strings.HasPrefix(id, "00")
}

// SelectActiveKeyset picks the keyset this wallet should mint/send
// outputs against for a unit: among active keysets for that unit, prefer
// a hex-prefixed (v2) id over a legacy one, and otherwise keep mint
// insertion order (the order keysets appears in the slice).
func SelectActiveKeyset(keysets []WalletKeyset, unit string) (WalletKeyset, bool) {
	var hexCandidate, legacyCandidate *WalletKeyset
	for i := range keysets {
		ks := keysets[i]
		if !ks.Active || ks.Unit != unit {
			continue
		}
		if IsHexId(ks.Id) {
			if hexCandidate == nil {
				hexCandidate = &keysets[i]
			}
		} else if legacyCandidate == nil {
			legacyCandidate = &keysets[i]
		}
	}

	if hexCandidate != nil {
		return *hexCandidate, true
	}
	if legacyCandidate != nil {
		return *legacyCandidate, true
	}
	return WalletKeyset{}, false
}
