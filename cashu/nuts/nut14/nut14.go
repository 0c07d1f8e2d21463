package nut14

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/cashu/nuts/nut10"
)

type HTLCWitness struct {
	Preimage   string   `json:"preimage"`
	Signatures []string `json:"signatures"`
}

// HTLCSecret builds a NUT-14 hash-locked secret: spendable by whoever
// can present a preimage that hashes to paymentHash.
func HTLCSecret(paymentHash string) (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", err
	}

	secretData := nut10.WellKnownSecret{
		Nonce: hex.EncodeToString(nonceBytes),
		Data:  paymentHash,
	}
	return nut10.SerializeSecret(nut10.HTLC, secretData)
}

// IsSecretHTLC reports whether proof is locked with a NUT-14 HTLC.
func IsSecretHTLC(proof cashu.Proof) bool {
	return nut10.SecretType(proof) == nut10.HTLC
}

func AddWitnessHTLC(
	proofs cashu.Proofs,
	preimage string,
	signingKey *btcec.PrivateKey,
) (cashu.Proofs, error) {
	for i, proof := range proofs {
		hash := sha256.Sum256([]byte(proof.Secret))
		signature, err := schnorr.Sign(signingKey, hash[:])
		if err != nil {
			return nil, err
		}
		signatureBytes := signature.Serialize()

		htlcWitness := HTLCWitness{
			Preimage:   preimage,
			Signatures: []string{hex.EncodeToString(signatureBytes)},
		}

		witness, err := json.Marshal(htlcWitness)
		if err != nil {
			return nil, err
		}
		proof.Witness = string(witness)
		proofs[i] = proof
	}

	return proofs, nil
}
