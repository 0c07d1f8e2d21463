package wallet

import (
	"testing"

	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/crypto"
	"github.com/stretchr/testify/require"
)

func TestSplitAmount(t *testing.T) {
	require.Equal(t, []uint64{1, 4, 8}, splitAmount(13))
	require.Nil(t, splitAmount(0))
	require.Equal(t, []uint64{2}, splitAmount(2))
}

func proofsOfAmounts(id string, amounts ...uint64) cashu.Proofs {
	proofs := make(cashu.Proofs, len(amounts))
	for i, a := range amounts {
		proofs[i] = cashu.Proof{Amount: a, Id: id, Secret: "s"}
	}
	return proofs
}

func TestSelectProofsGreedyLargestFirst(t *testing.T) {
	proofs := proofsOfAmounts("00aaff", 1, 2, 4, 8, 16)

	selected := selectProofs(proofs, 10, false, func(cashu.Proofs) uint64 { return 0 })
	require.EqualValues(t, 16, selected.Amount())
	require.Len(t, selected, 1)
}

func TestSelectProofsAccumulatesUntilCovered(t *testing.T) {
	proofs := proofsOfAmounts("00aaff", 1, 2, 4)

	selected := selectProofs(proofs, 6, false, func(cashu.Proofs) uint64 { return 0 })
	require.EqualValues(t, 6, selected.Amount())
	require.Len(t, selected, 2)
}

func TestSelectProofsInsufficientBalance(t *testing.T) {
	proofs := proofsOfAmounts("00aaff", 1, 2)

	selected := selectProofs(proofs, 10, false, func(cashu.Proofs) uint64 { return 0 })
	require.Empty(t, selected)
}

func TestSelectProofsIncludesFeesInTarget(t *testing.T) {
	proofs := proofsOfAmounts("00aaff", 4, 4)

	// a flat 1 sat fee per selected proof means covering amount=4 needs a
	// second proof once the first proof's own fee is accounted for.
	feeFn := func(selected cashu.Proofs) uint64 { return uint64(len(selected)) }
	selected := selectProofs(proofs, 4, true, feeFn)
	require.EqualValues(t, 8, selected.Amount())
	require.Len(t, selected, 2)
}

func TestSelectBase64LegacyDrainsOnlyLegacyKeysets(t *testing.T) {
	hexId := "009a1f293253e41e"
	legacyId := "not-a-hex-keyset-id"

	proofs := append(
		proofsOfAmounts(hexId, 8, 16),
		proofsOfAmounts(legacyId, 1, 4)...,
	)
	require.False(t, crypto.IsHexId(legacyId))
	require.True(t, crypto.IsHexId(hexId))

	selected := selectBase64Legacy(proofs, 5)
	require.EqualValues(t, 5, selected.Amount())
	for _, p := range selected {
		require.Equal(t, legacyId, p.Id)
	}
}

func TestSelectBase64LegacyInsufficientLegacyBalance(t *testing.T) {
	proofs := proofsOfAmounts("not-hex", 1)
	require.Empty(t, selectBase64Legacy(proofs, 10))
}

func TestFeeForProofs(t *testing.T) {
	keyset := crypto.WalletKeyset{Id: "009a1f293253e41e", Unit: "sat", Active: true, InputFeePpk: 500}
	w := &Wallet{mints: map[string]*mintData{
		"https://mint.example": {url: "https://mint.example", activeKeyset: keyset},
	}}

	proofs := proofsOfAmounts(keyset.Id, 1, 2, 4)
	// 3 proofs * 500 ppk = 1500 ppk, rounded up to whole sats: 2.
	require.EqualValues(t, 2, w.feeForProofs(proofs))
}

func TestFeeForProofsUnknownKeysetIsFree(t *testing.T) {
	w := &Wallet{mints: map[string]*mintData{}}
	proofs := proofsOfAmounts("unknown", 1, 2)
	require.EqualValues(t, 0, w.feeForProofs(proofs))
}
