// Package crypto implements the blind Diffie-Hellman key exchange (BDHKE)
// primitives the Cashu protocol signs and unblinds proofs with, and the
// deterministic keyset-id derivation used to name a mint's keyset.
//
// This is deliberately the thinnest possible adaptation of the scheme:
// the wallet engine (package wallet) never does point arithmetic itself,
// it calls these functions directly. Per the engine's Non-goals, DLEQ
// verification is not
// implemented here — cashu/nuts/nut12 only parses/round-trips it.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// HashToCurve maps a secret to a curve point Y, used both as the blinding
// base point and as the spent-state fingerprint sent to /v1/checkstate.
func HashToCurve(secret []byte) *secp256k1.PublicKey {
	var point *secp256k1.PublicKey
	message := secret

	for point == nil || !point.IsOnCurve() {
		hash := sha256.Sum256(message)
		pkhash := append([]byte{0x02}, hash[:]...)
		point, _ = secp256k1.ParsePubKey(pkhash)
		message = hash[:]
	}
	return point
}

// Y returns the hex-encoded compressed point used as a proof's
// spent-state fingerprint.
func Y(secret string) string {
	point := HashToCurve([]byte(secret))
	return hex.EncodeToString(point.SerializeCompressed())
}

// BlindMessage returns B_ = Y + rG for a freshly-generated blinding factor r.
func BlindMessage(secret string) (B_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, err error) {
	r, err = secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return BlindMessageWithFactor(secret, r)
}

// BlindMessageWithFactor blinds using a caller-supplied (e.g.
// deterministically derived) blinding factor r.
func BlindMessageWithFactor(secret string, r *secp256k1.PrivateKey) (*secp256k1.PublicKey, *secp256k1.PrivateKey, error) {
	var ypoint, rpoint, blindedMessage secp256k1.JacobianPoint

	Y := HashToCurve([]byte(secret))
	Y.AsJacobian(&ypoint)
	r.PubKey().AsJacobian(&rpoint)

	secp256k1.AddNonConst(&ypoint, &rpoint, &blindedMessage)
	blindedMessage.ToAffine()
	B_ := secp256k1.NewPublicKey(&blindedMessage.X, &blindedMessage.Y)

	return B_, r, nil
}

// UnblindSignature computes C = C_ - rK, recovering the proof's signature
// over its secret from the mint's blinded response.
func UnblindSignature(C_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, K *secp256k1.PublicKey) *secp256k1.PublicKey {
	var Kpoint, rKPoint, CPoint secp256k1.JacobianPoint
	K.AsJacobian(&Kpoint)

	var rNeg secp256k1.ModNScalar
	rNeg.NegateVal(&r.Key)
	secp256k1.ScalarMultNonConst(&rNeg, &Kpoint, &rKPoint)

	var C_Point secp256k1.JacobianPoint
	C_.AsJacobian(&C_Point)
	secp256k1.AddNonConst(&C_Point, &rKPoint, &CPoint)
	CPoint.ToAffine()

	return secp256k1.NewPublicKey(&CPoint.X, &CPoint.Y)
}

// MapPubKeys parses a mint's hex-encoded amount->pubkey map (as returned
// by /v1/keys) into secp256k1 public keys.
func MapPubKeys(keys map[uint64]string) (map[uint64]*secp256k1.PublicKey, error) {
	pubkeys := make(map[uint64]*secp256k1.PublicKey, len(keys))
	for amount, key := range keys {
		pkbytes, err := hex.DecodeString(key)
		if err != nil {
			return nil, err
		}
		pubkey, err := secp256k1.ParsePubKey(pkbytes)
		if err != nil {
			return nil, err
		}
		pubkeys[amount] = pubkey
	}
	return pubkeys, nil
}

// DeriveKeysetId computes a v2 (hex, "00"-prefixed) keyset id from a
// mint's public keys, sorted by amount, per NUT-02.
func DeriveKeysetId(keys map[uint64]*secp256k1.PublicKey) string {
	amounts := make([]uint64, 0, len(keys))
	for amount := range keys {
		amounts = append(amounts, amount)
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] < amounts[j] })

	pubkeys := make([]byte, 0, len(keys)*33)
	for _, amount := range amounts {
		pubkeys = append(pubkeys, keys[amount].SerializeCompressed()...)
	}
	hash := sha256.Sum256(pubkeys)
	return "00" + hex.EncodeToString(hash[:])[:14]
}

// VerifyProof checks k*HashToCurve(secret) == C for a mint private key k
// -- used only by tests/fixtures that construct deterministic keysets.
func VerifyProof(secret []byte, k *secp256k1.PrivateKey, C *secp256k1.PublicKey) bool {
	var Ypoint, result secp256k1.JacobianPoint
	Y := HashToCurve(secret)
	Y.AsJacobian(&Ypoint)

	secp256k1.ScalarMultNonConst(&k.Key, &Ypoint, &result)
	result.ToAffine()
	pk := secp256k1.NewPublicKey(&result.X, &result.Y)

	return C.IsEqual(pk)
}

// SignBlindedMessage computes C_ = kB_, the mint side of BDHKE. Exposed
// for tests that fake a mint's signing step.
func SignBlindedMessage(B_ *secp256k1.PublicKey, k *secp256k1.PrivateKey) *secp256k1.PublicKey {
	var bpoint, result secp256k1.JacobianPoint
	B_.AsJacobian(&bpoint)

	secp256k1.ScalarMultNonConst(&k.Key, &bpoint, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}
