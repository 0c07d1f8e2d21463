package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/cashu/nuts/nut07"
	"github.com/nutvault/walletcore/cashu/nuts/nut09"
	"github.com/nutvault/walletcore/cashu/nuts/nut13"
	"github.com/nutvault/walletcore/crypto"
	"github.com/nutvault/walletcore/wallet/client"
	"github.com/nutvault/walletcore/wallet/storage"
	"github.com/tyler-smith/go-bip39"
)

const restoreBatchSize = 100

// Restore rebuilds a wallet's proof set from scratch, using NUT-09's
// restore-signatures protocol: it regenerates the same deterministic
// outputs a live wallet would have produced, asks each mint to sign
// whichever of those it still recognizes, and keeps only the ones
// NUT-07 reports unspent. It requires an empty wallet directory; use
// RotateMnemonic for an existing wallet's archival path instead.
func Restore(walletPath, mnemonic string, mintsToRestore []string) (cashu.Proofs, error) {
	dbPath := filepath.Join(walletPath, "wallet.db")
	if _, err := os.Stat(dbPath); err == nil {
		return nil, errors.New("wallet already exists")
	}
	if err := os.MkdirAll(walletPath, 0700); err != nil {
		return nil, err
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}

	db, err := storage.InitBoltDB(walletPath)
	if err != nil {
		return nil, fmt.Errorf("error restoring wallet: %v", err)
	}
	defer db.Close()

	if err := db.SaveMnemonic(mnemonic); err != nil {
		return nil, err
	}

	seed := bip39.NewSeed(mnemonic, "")
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	var proofsRestored cashu.Proofs
	for _, mint := range mintsToRestore {
		restored, err := restoreFromMint(db, masterKey, mint)
		if err != nil {
			return nil, err
		}
		proofsRestored = append(proofsRestored, restored...)
	}

	return proofsRestored, nil
}

func restoreFromMint(db storage.DB, masterKey *hdkeychain.ExtendedKey, mint string) (cashu.Proofs, error) {
	mintInfo, err := client.GetMintInfo(mint)
	if err != nil {
		return nil, fmt.Errorf("error getting info from mint: %v", err)
	}
	if !mintInfo.Nuts.Nut07.Supported || !mintInfo.Nuts.Nut09.Supported {
		return nil, nil
	}

	keysetsResponse, err := client.GetAllKeysets(mint)
	if err != nil {
		return nil, err
	}

	var restored cashu.Proofs
	for _, keyset := range keysetsResponse.Keysets {
		if _, err := hex.DecodeString(keyset.Id); err != nil {
			continue
		}

		keysetKeys, err := getKeysetKeys(mint, keyset.Id)
		if err != nil {
			return nil, err
		}
		walletKeyset := crypto.WalletKeyset{
			Id:          keyset.Id,
			MintURL:     mint,
			Unit:        keyset.Unit,
			Active:      keyset.Active,
			PublicKeys:  keysetKeys,
			InputFeePpk: keyset.InputFeePpk,
		}
		if err := db.SaveKeyset(&walletKeyset); err != nil {
			return nil, err
		}

		keysetPath, err := nut13.DeriveKeysetPath(masterKey, keyset.Id)
		if err != nil {
			return nil, err
		}

		keysetProofs, lastCounter, err := restoreKeyset(mint, keyset.Id, keysetPath, keysetKeys)
		if err != nil {
			return nil, err
		}
		if len(keysetProofs) > 0 {
			stored := make([]storage.StoredProof, len(keysetProofs))
			for i, p := range keysetProofs {
				stored[i] = storage.StoredProof{Proof: p, MintURL: mint}
			}
			if err := db.AddProofs(stored); err != nil {
				return nil, fmt.Errorf("error saving restored proofs: %v", err)
			}
		}
		if err := db.SaveKeysetCounter(keyset.Id, lastCounter); err != nil {
			return nil, fmt.Errorf("error saving keyset counter: %v", err)
		}

		restored = append(restored, keysetProofs...)
	}

	return restored, nil
}

// restoreKeyset walks a keyset's deterministic output sequence in
// batches of restoreBatchSize, stopping once 3 consecutive batches
// come back with no signatures at all (the mint has never seen any
// output past that point).
func restoreKeyset(mint, keysetId string, keysetPath *hdkeychain.ExtendedKey, keysetKeys map[uint64]*secp256k1.PublicKey) (cashu.Proofs, uint32, error) {
	var restored cashu.Proofs
	var counter uint32
	emptyBatches := 0

	for emptyBatches < 3 {
		messages := make(cashu.BlindedMessages, restoreBatchSize)
		rs := make([]*secp256k1.PrivateKey, restoreBatchSize)
		secrets := make([]string, restoreBatchSize)

		for i := 0; i < restoreBatchSize; i++ {
			secret, err := nut13.DeriveSecret(keysetPath, counter)
			if err != nil {
				return nil, 0, err
			}
			r, err := nut13.DeriveBlindingFactor(keysetPath, counter)
			if err != nil {
				return nil, 0, err
			}
			B_, _, err := crypto.BlindMessageWithFactor(secret, r)
			if err != nil {
				return nil, 0, err
			}

			messages[i] = cashu.NewBlindedMessage(keysetId, 0, B_)
			rs[i] = r
			secrets[i] = secret
			counter++
		}

		restoreResponse, err := client.PostRestore(mint, nut09.PostRestoreRequest{Outputs: messages})
		if err != nil {
			return nil, 0, fmt.Errorf("error restoring signatures from mint '%v': %v", mint, err)
		}
		if len(restoreResponse.Signatures) == 0 {
			emptyBatches++
			continue
		}
		emptyBatches = 0

		// restoreResponse.Outputs lines up with Signatures, not with our
		// batch indices (the mint drops outputs it never signed), so pair
		// secrets/rs by matching blinded point rather than position.
		bySecret := make(map[string]int, restoreBatchSize)
		for i, m := range messages {
			bySecret[m.B_] = i
		}

		ys := make([]string, 0, len(restoreResponse.Signatures))
		proofsByY := make(map[string]cashu.Proof, len(restoreResponse.Signatures))
		for i, sig := range restoreResponse.Signatures {
			idx, ok := bySecret[restoreResponse.Outputs[i].B_]
			if !ok {
				continue
			}
			pubkey, ok := keysetKeys[sig.Amount]
			if !ok {
				return nil, 0, errors.New("key not found for restored signature amount")
			}

			C_bytes, err := hex.DecodeString(sig.C_)
			if err != nil {
				return nil, 0, err
			}
			C_, err := secp256k1.ParsePubKey(C_bytes)
			if err != nil {
				return nil, 0, err
			}
			C := crypto.UnblindSignature(C_, rs[idx], pubkey)

			y := crypto.Y(secrets[idx])
			ys = append(ys, y)
			proofsByY[y] = cashu.Proof{
				Amount: sig.Amount,
				Id:     sig.Id,
				Secret: secrets[idx],
				C:      hex.EncodeToString(C.SerializeCompressed()),
			}
		}

		stateResponse, err := client.PostCheckProofState(mint, nut07.PostCheckStateRequest{Ys: ys})
		if err != nil {
			return nil, 0, err
		}
		for _, state := range stateResponse.States {
			if state.State == nut07.Unspent {
				restored = append(restored, proofsByY[state.Y])
			}
		}
	}

	return restored, counter, nil
}
