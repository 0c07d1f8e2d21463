// Package nut12 carries the optional DLEQ proof attached to a proof or
// blinded signature. Verifying the DLEQ equation itself is not
// implemented in this module (see package crypto); this package only
// parses/round-trips the proof and checks that it is well-formed.
package nut12

import (
	"encoding/hex"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutvault/walletcore/cashu"
)

// ParseDLEQ decodes the hex-encoded scalars of a DLEQProof.
func ParseDLEQ(dleq cashu.DLEQProof) (e, s, r *secp256k1.PrivateKey, err error) {
	ebytes, err := hex.DecodeString(dleq.E)
	if err != nil {
		return nil, nil, nil, err
	}
	e = secp256k1.PrivKeyFromBytes(ebytes)

	sbytes, err := hex.DecodeString(dleq.S)
	if err != nil {
		return nil, nil, nil, err
	}
	s = secp256k1.PrivKeyFromBytes(sbytes)

	if dleq.R == "" {
		return e, s, nil, nil
	}

	rbytes, err := hex.DecodeString(dleq.R)
	if err != nil {
		return nil, nil, nil, err
	}
	r = secp256k1.PrivKeyFromBytes(rbytes)

	return e, s, r, nil
}

// HasWellFormedDLEQ reports whether every proof that carries a DLEQ proof
// has well-formed (parseable) scalars. It does not verify the DLEQ
// equation itself.
func HasWellFormedDLEQ(proofs cashu.Proofs) error {
	for _, proof := range proofs {
		if proof.DLEQ == nil {
			continue
		}
		if _, _, _, err := ParseDLEQ(*proof.DLEQ); err != nil {
			return errors.New("malformed DLEQ proof: " + err.Error())
		}
	}
	return nil
}
