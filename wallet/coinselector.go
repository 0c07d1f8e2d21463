package wallet

import (
	"sort"

	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/crypto"
)

// splitAmount decomposes v into its binary representation: one chunk
// per set bit, each chunk a distinct power of two.
func splitAmount(v uint64) []uint64 {
	var chunks []uint64
	for i := 0; v != 0; i++ {
		if v&1 == 1 {
			chunks = append(chunks, uint64(1)<<uint(i))
		}
		v >>= 1
	}
	return chunks
}

// feeForProofs sums each proof's keyset input_fee_ppk (parts per
// thousand) and rounds the total up to whole sats, per NUT-02.
func (w *Wallet) feeForProofs(proofs cashu.Proofs) uint64 {
	var totalPpk uint64
	for _, p := range proofs {
		totalPpk += uint64(w.keysetFeePpk(p.Id))
	}
	if totalPpk == 0 {
		return 0
	}
	return (totalPpk + 999) / 1000
}

func (w *Wallet) keysetFeePpk(keysetId string) uint {
	for _, mint := range w.mints {
		if mint.activeKeyset.Id == keysetId {
			return mint.activeKeyset.InputFeePpk
		}
		if ks, ok := mint.inactiveKeysets[keysetId]; ok {
			return ks.InputFeePpk
		}
	}
	return 0
}

// selectProofs greedily accumulates proofs (largest first) until the
// running total covers amount (plus fees, if includeFees), mirroring
// the crypto library's selectProofsToSend contract. Returns an empty
// slice if the total balance is insufficient.
func selectProofs(proofs cashu.Proofs, amount uint64, includeFees bool, feeFn func(cashu.Proofs) uint64) cashu.Proofs {
	if sum(proofs) < amount {
		return cashu.Proofs{}
	}

	sorted := make(cashu.Proofs, len(proofs))
	copy(sorted, proofs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })

	var selected cashu.Proofs
	var total uint64
	target := amount
	for _, p := range sorted {
		if total >= target {
			break
		}
		selected = append(selected, p)
		total += p.Amount
		if includeFees {
			target = amount + feeFn(selected)
		}
	}

	if total < target {
		return cashu.Proofs{}
	}
	return selected
}

// selectBase64Legacy drains legacy (non-hex-id) keyset proofs only: it
// is used solely as a fallback when a balance sits entirely on
// pre-NUT-02 keysets and the primary selector has nothing hex-prefixed
// to draw from.
func selectBase64Legacy(proofs cashu.Proofs, amount uint64) cashu.Proofs {
	var legacy cashu.Proofs
	for _, p := range proofs {
		if !crypto.IsHexId(p.Id) {
			legacy = append(legacy, p)
		}
	}

	sort.Slice(legacy, func(i, j int) bool { return legacy[i].Amount > legacy[j].Amount })

	var selected cashu.Proofs
	var total uint64
	for _, p := range legacy {
		if total >= amount {
			break
		}
		selected = append(selected, p)
		total += p.Amount
	}

	if total < amount {
		return cashu.Proofs{}
	}
	return selected
}

// selectCoins chooses proofs to cover amount from the given
// unreserved candidates, falling back to legacy-keyset-only proofs if the
// primary selection comes up empty but a legacy-only balance can cover
// it.
func (w *Wallet) selectCoins(proofs cashu.Proofs, amount uint64, includeFees bool) cashu.Proofs {
	selected := selectProofs(proofs, amount, includeFees, w.feeForProofs)
	if len(selected) > 0 {
		return selected
	}
	return selectBase64Legacy(proofs, amount)
}

// spendable returns every unreserved proof for the active mint after
// asserting the balance can cover amount.
func (w *Wallet) spendable(amount uint64) (cashu.Proofs, error) {
	proofs := w.unreserved(w.currentMint)
	if sum(proofs) < amount {
		return nil, ErrBalanceTooLow
	}
	return proofs, nil
}
