// Package nut04 contains structs as defined in [NUT-04]
//
// [NUT-04]: https://github.com/cashubtc/nuts/blob/main/04.md
package nut04

import (
	"encoding/json"

	"github.com/nutvault/walletcore/cashu"
)

type MintQuoteState int

const (
	MintUnpaid MintQuoteState = iota
	MintPaid
	MintIssued
)

func (s MintQuoteState) String() string {
	switch s {
	case MintPaid:
		return "PAID"
	case MintIssued:
		return "ISSUED"
	default:
		return "UNPAID"
	}
}

func MintStateFromString(s string) MintQuoteState {
	switch s {
	case "PAID":
		return MintPaid
	case "ISSUED":
		return MintIssued
	default:
		return MintUnpaid
	}
}

type PostMintQuoteBolt11Request struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
	// Pubkey locks the quote per NUT-20: only a PostMintBolt11Request
	// signed by the matching private key can claim it.
	Pubkey string `json:"pubkey,omitempty"`
}

type PostMintQuoteBolt11Response struct {
	Quote   string
	Request string
	State   MintQuoteState
	Expiry  int64
	Pubkey  string
}

// custom unmarshal because older mints report "paid" bool instead of "state"
func (r *PostMintQuoteBolt11Response) UnmarshalJSON(data []byte) error {
	var temp struct {
		Quote   string `json:"quote"`
		Request string `json:"request"`
		State   string `json:"state"`
		Paid    bool   `json:"paid"`
		Expiry  int64  `json:"expiry"`
		Pubkey  string `json:"pubkey,omitempty"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	r.Quote = temp.Quote
	r.Request = temp.Request
	r.Expiry = temp.Expiry
	r.Pubkey = temp.Pubkey

	if temp.State != "" {
		r.State = MintStateFromString(temp.State)
	} else if temp.Paid {
		r.State = MintPaid
	} else {
		r.State = MintUnpaid
	}

	return nil
}

func (r PostMintQuoteBolt11Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Quote   string `json:"quote"`
		Request string `json:"request"`
		State   string `json:"state"`
		Expiry  int64  `json:"expiry"`
		Pubkey  string `json:"pubkey,omitempty"`
	}{r.Quote, r.Request, r.State.String(), r.Expiry, r.Pubkey})
}

type PostMintBolt11Request struct {
	Quote     string                `json:"quote"`
	Outputs   cashu.BlindedMessages `json:"outputs"`
	Signature string                `json:"signature,omitempty"`
}

type PostMintBolt11Response struct {
	Signatures cashu.BlindedSignatures `json:"signatures"`
}
