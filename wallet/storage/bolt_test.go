package storage

import (
	"math/rand"
	"testing"

	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/crypto"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *BoltDB {
	dbpath := t.TempDir()
	db, err := InitBoltDB(dbpath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func generateRandomString(length int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

func generateRandomProofs(keysetId string, num int) []StoredProof {
	proofs := make([]StoredProof, num)
	for i := 0; i < num; i++ {
		proofs[i] = StoredProof{
			Proof: cashu.Proof{
				Amount: 21,
				Id:     keysetId,
				Secret: generateRandomString(64),
				C:      generateRandomString(64),
			},
			MintURL: "http://localhost:3338",
		}
	}
	return proofs
}

func TestMnemonic(t *testing.T) {
	db := newTestDB(t)

	mnemonic, err := db.GetMnemonic()
	require.NoError(t, err)
	require.Empty(t, mnemonic)

	require.NoError(t, db.SaveMnemonic("abandon abandon abandon"))
	mnemonic, err = db.GetMnemonic()
	require.NoError(t, err)
	require.Equal(t, "abandon abandon abandon", mnemonic)
}

func TestRotateMnemonic(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.SaveMnemonic("old mnemonic"))
	require.NoError(t, db.SaveKeysetCounter("keyset1", 42))

	require.NoError(t, db.RotateMnemonic("old mnemonic", map[string]uint32{"keyset1": 42}, "new mnemonic"))

	current, err := db.GetMnemonic()
	require.NoError(t, err)
	require.Equal(t, "new mnemonic", current)

	counter, ok, err := db.GetKeysetCounter("keyset1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, counter)

	archives, err := db.GetOldMnemonicCounters()
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, "old mnemonic", archives[0].Mnemonic)
	require.Equal(t, uint32(42), archives[0].Counters["keyset1"])
}

func TestKeysetCounter(t *testing.T) {
	db := newTestDB(t)

	_, ok, err := db.GetKeysetCounter("doesnotexist")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.SaveKeysetCounter("keysetA", 5))
	counter, ok, err := db.GetKeysetCounter("keysetA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(5), counter)

	require.NoError(t, db.SaveKeysetCounter("keysetA", 15))
	counter, ok, err = db.GetKeysetCounter("keysetA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(15), counter)
}

func TestProofs(t *testing.T) {
	db := newTestDB(t)

	proofs := generateRandomProofs("keyset1", 50)
	require.NoError(t, db.AddProofs(proofs))

	stored := db.GetProofs()
	require.Len(t, stored, 50)

	toRemove := cashu.Proofs{proofs[0].Proof, proofs[1].Proof}
	require.NoError(t, db.RemoveProofs(toRemove))

	stored = db.GetProofs()
	require.Len(t, stored, 48)
}

func TestSetReserved(t *testing.T) {
	db := newTestDB(t)

	proofs := generateRandomProofs("keyset1", 3)
	require.NoError(t, db.AddProofs(proofs))

	toReserve := cashu.Proofs{proofs[0].Proof, proofs[1].Proof}
	require.NoError(t, db.SetReserved(toReserve, ReservedFor("quote123")))

	var reservedCount int
	for _, p := range db.GetProofs() {
		if p.Reservation.Reserved {
			reservedCount++
			require.Equal(t, "quote123", p.Reservation.QuoteId)
		}
	}
	require.Equal(t, 2, reservedCount)
}

func TestKeysets(t *testing.T) {
	db := newTestDB(t)

	keyset := crypto.WalletKeyset{Id: "00aabbccddeeff00", MintURL: "http://localhost:3338", Unit: "sat", Active: true}
	require.NoError(t, db.SaveKeyset(&keyset))

	keysets := db.GetKeysets()
	require.Len(t, keysets, 1)
	require.Equal(t, keyset.Id, keysets[keyset.Id].Id)
}

func TestInvoiceHistory(t *testing.T) {
	db := newTestDB(t)

	invoice := InvoiceHistory{Amount: 100, Bolt11: "lnbc...", QuoteId: "quote1", Status: StatusPending}
	require.NoError(t, db.SaveInvoice(invoice))

	got, ok := db.GetInvoice("quote1")
	require.True(t, ok)
	require.Equal(t, invoice.Amount, got.Amount)

	invoice.Status = StatusPaid
	require.NoError(t, db.SaveInvoice(invoice))

	got, ok = db.GetInvoice("quote1")
	require.True(t, ok)
	require.Equal(t, StatusPaid, got.Status)

	history := db.GetInvoiceHistory()
	require.Len(t, history, 1)
}
