// Package nut15 implements the NUT-15 multi-path payment (MPP) extension:
// support detection against a mint's info response, and the per-mint
// partial-amount allocation that fans a single invoice out across several
// mints' balances.
package nut15

import (
	"errors"
	"math"

	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/cashu/nuts/nut06"
)

var ErrSplitTooShort = errors.New("length of split too short")

// IsMppSupported reports whether a mint's info response advertises NUT-15
// support for the bolt11 method and the given unit.
func IsMppSupported(info *nut06.MintInfo, unit cashu.Unit) bool {
	if info == nil || info.Nuts.Nut15 == nil {
		return false
	}
	for _, method := range info.Nuts.Nut15.Methods {
		if method.Method == cashu.BOLT11_METHOD && method.Unit == unit.String() {
			return true
		}
	}
	return false
}

// Partial is one mint's share (in sats) of a multi-mint melt.
type Partial struct {
	MintURL string
	Amount  uint64
}

// AllocatePartials splits invoiceSat across mints in proportion to
// weights (in [0,1], index-aligned with mints), rounding each mint's
// exact share to the nearest sat and carrying the rounding error
// forward to the next mint so partials sum exactly to invoiceSat
// regardless of float drift in the weights themselves. Mints whose
// rounded partial is <= 0 are dropped.
func AllocatePartials(invoiceSat uint64, mints []string, weights []float64) ([]Partial, error) {
	if len(mints) == 0 || len(mints) != len(weights) {
		return nil, ErrSplitTooShort
	}

	var carry float64
	partials := make([]Partial, 0, len(mints))

	for i, mint := range mints {
		exact := float64(invoiceSat)*weights[i] + carry
		rounded := math.Round(exact)
		carry = rounded - exact

		if rounded <= 0 {
			continue
		}

		partials = append(partials, Partial{MintURL: mint, Amount: uint64(rounded)})
	}

	return partials, nil
}
