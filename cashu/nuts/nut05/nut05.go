// Package nut05 contains structs as defined in [NUT-05] and the NUT-15
// (MPP) extension to the melt-quote request.
//
// [NUT-05]: https://github.com/cashubtc/nuts/blob/main/05.md
package nut05

import (
	"encoding/json"

	"github.com/nutvault/walletcore/cashu"
)

type MeltQuoteState int

const (
	MeltUnpaid MeltQuoteState = iota
	MeltPending
	MeltPaid
)

func (s MeltQuoteState) String() string {
	switch s {
	case MeltPending:
		return "PENDING"
	case MeltPaid:
		return "PAID"
	default:
		return "UNPAID"
	}
}

func MeltStateFromString(s string) MeltQuoteState {
	switch s {
	case "PENDING":
		return MeltPending
	case "PAID":
		return MeltPaid
	default:
		return MeltUnpaid
	}
}

// MppOptions requests a partial payment of Amount (msat) from this mint,
// the rest being paid by other mints in the same melt.
type MppOptions struct {
	Amount uint64 `json:"amount"`
}

type PostMeltQuoteOptions struct {
	Mpp *MppOptions `json:"mpp,omitempty"`
}

type PostMeltQuoteBolt11Request struct {
	Request string                `json:"request"`
	Unit    string                `json:"unit"`
	Options *PostMeltQuoteOptions `json:"options,omitempty"`
}

type PostMeltQuoteBolt11Response struct {
	Quote      string
	Amount     uint64
	FeeReserve uint64
	State      MeltQuoteState
	Expiry     int64
	Change     cashu.BlindedSignatures
}

// custom unmarshal because older mints report "paid" bool instead of "state"
func (r *PostMeltQuoteBolt11Response) UnmarshalJSON(data []byte) error {
	var temp struct {
		Quote      string                  `json:"quote"`
		Amount     uint64                  `json:"amount"`
		FeeReserve uint64                  `json:"fee_reserve"`
		State      string                  `json:"state"`
		Paid       bool                    `json:"paid"`
		Expiry     int64                   `json:"expiry"`
		Change     cashu.BlindedSignatures `json:"change,omitempty"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	r.Quote = temp.Quote
	r.Amount = temp.Amount
	r.FeeReserve = temp.FeeReserve
	r.Expiry = temp.Expiry
	r.Change = temp.Change

	if temp.State != "" {
		r.State = MeltStateFromString(temp.State)
	} else if temp.Paid {
		r.State = MeltPaid
	} else {
		r.State = MeltUnpaid
	}

	return nil
}

func (r PostMeltQuoteBolt11Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Quote      string                  `json:"quote"`
		Amount     uint64                  `json:"amount"`
		FeeReserve uint64                  `json:"fee_reserve"`
		State      string                  `json:"state"`
		Expiry     int64                   `json:"expiry"`
		Change     cashu.BlindedSignatures `json:"change,omitempty"`
	}{r.Quote, r.Amount, r.FeeReserve, r.State.String(), r.Expiry, r.Change})
}

type PostMeltBolt11Request struct {
	Quote   string                `json:"quote"`
	Inputs  cashu.Proofs          `json:"inputs"`
	Outputs cashu.BlindedMessages `json:"outputs,omitempty"`
}
