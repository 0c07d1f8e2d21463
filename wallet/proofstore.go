package wallet

import (
	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/wallet/storage"
)

// addProofs adds proofs to the store for mintURL, unreserved.
func (w *Wallet) addProofs(mintURL string, proofs cashu.Proofs) error {
	stored := make([]storage.StoredProof, len(proofs))
	for i, p := range proofs {
		stored[i] = storage.StoredProof{Proof: p, MintURL: mintURL}
	}
	return w.db.AddProofs(stored)
}

// removeProofs deletes proofs from the store, identified by secret.
func (w *Wallet) removeProofs(proofs cashu.Proofs) error {
	return w.db.RemoveProofs(proofs)
}

// setReserved marks proofs reserved (optionally bound to a melt quote)
// or frees them.
func (w *Wallet) setReserved(proofs cashu.Proofs, reserved bool, quoteId string) error {
	reservation := storage.Unreserved()
	if reserved {
		reservation = storage.ReservedFor(quoteId)
	}
	return w.db.SetReserved(proofs, reservation)
}

// unreserved returns every stored proof not currently held by a
// reservation, restricted to mintURL (empty mintURL = all mints).
func (w *Wallet) unreserved(mintURL string) cashu.Proofs {
	var proofs cashu.Proofs
	for _, sp := range w.db.GetProofs() {
		if sp.Reservation.Reserved {
			continue
		}
		if mintURL != "" && sp.MintURL != mintURL {
			continue
		}
		proofs = append(proofs, sp.Proof)
	}
	return proofs
}

// proofsForQuote returns stored proofs reserved against a specific
// melt quote id.
func (w *Wallet) proofsForQuote(quoteId string) cashu.Proofs {
	var proofs cashu.Proofs
	for _, sp := range w.db.GetProofs() {
		if sp.Reservation.Reserved && sp.Reservation.QuoteId == quoteId {
			proofs = append(proofs, sp.Proof)
		}
	}
	return proofs
}

// allForActiveMint returns every proof (reserved or not) belonging to
// the currently-active mint.
func (w *Wallet) allForActiveMint() cashu.Proofs {
	var proofs cashu.Proofs
	for _, sp := range w.db.GetProofs() {
		if sp.MintURL == w.currentMint {
			proofs = append(proofs, sp.Proof)
		}
	}
	return proofs
}

// sum totals a set of proofs' amounts.
func sum(proofs cashu.Proofs) uint64 {
	var total uint64
	for _, p := range proofs {
		total += p.Amount
	}
	return total
}

// serialize encodes proofs for mintURL/unit as a cashuA (legacy base64)
// token string.
func serialize(mintURL string, unit cashu.Unit, proofs cashu.Proofs) (string, error) {
	token, err := cashu.NewTokenV3(proofs, mintURL, unit, true)
	if err != nil {
		return "", err
	}
	return token.Serialize()
}
