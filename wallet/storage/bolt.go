package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/crypto"
	bolt "go.etcd.io/bbolt"
)

const (
	keysetsBucket       = "keysets"
	proofsBucket        = "proofs"
	invoicesBucket      = "invoiceHistory"
	settingsBucket      = "settings"
	oldMnemonicsBucket  = "oldMnemonicCounters"
	mnemonicKey         = "cashu.mnemonic"
	keysetCountersKey   = "cashu.keysetCounters"
)

type BoltDB struct {
	bolt *bolt.DB
}

// InitBoltDB opens (creating if needed) a bbolt-backed wallet store at
// <path>/wallet.db with the buckets the wallet engine depends on.
func InitBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(filepath.Join(path, "wallet.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("error opening wallet db: %v", err)
	}

	boltdb := &BoltDB{bolt: db}
	if err := boltdb.initBuckets(); err != nil {
		return nil, err
	}
	return boltdb, nil
}

func (db *BoltDB) initBuckets() error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{keysetsBucket, proofsBucket, invoicesBucket, settingsBucket, oldMnemonicsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *BoltDB) Close() error {
	return db.bolt.Close()
}

func (db *BoltDB) GetMnemonic() (string, error) {
	var mnemonic string
	err := db.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(settingsBucket)).Get([]byte(mnemonicKey))
		mnemonic = string(v)
		return nil
	})
	return mnemonic, err
}

func (db *BoltDB) SaveMnemonic(mnemonic string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).Put([]byte(mnemonicKey), []byte(mnemonic))
	})
}

func (db *BoltDB) RotateMnemonic(oldMnemonic string, oldCounters map[string]uint32, newMnemonic string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		archive := OldMnemonicCounters{Mnemonic: oldMnemonic, Counters: oldCounters}
		archiveBytes, err := json.Marshal(archive)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(oldMnemonicsBucket)).Put([]byte(oldMnemonic), archiveBytes); err != nil {
			return err
		}

		settings := tx.Bucket([]byte(settingsBucket))
		if err := settings.Put([]byte(mnemonicKey), []byte(newMnemonic)); err != nil {
			return err
		}

		counters := tx.Bucket([]byte(settingsBucket))
		return counters.Delete([]byte(keysetCountersKey))
	})
}

func (db *BoltDB) GetOldMnemonicCounters() ([]OldMnemonicCounters, error) {
	var archives []OldMnemonicCounters
	err := db.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(oldMnemonicsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var archive OldMnemonicCounters
			if err := json.Unmarshal(v, &archive); err != nil {
				return fmt.Errorf("error reading old mnemonic counters: %v", err)
			}
			archives = append(archives, archive)
		}
		return nil
	})
	return archives, err
}

func (db *BoltDB) allCounters(tx *bolt.Tx) (map[string]uint32, error) {
	v := tx.Bucket([]byte(settingsBucket)).Get([]byte(keysetCountersKey))
	counters := make(map[string]uint32)
	if len(v) == 0 {
		return counters, nil
	}
	if err := json.Unmarshal(v, &counters); err != nil {
		return nil, fmt.Errorf("error reading keyset counters: %v", err)
	}
	return counters, nil
}

func (db *BoltDB) GetKeysetCounter(keysetId string) (uint32, bool, error) {
	var counter uint32
	var ok bool
	err := db.bolt.View(func(tx *bolt.Tx) error {
		counters, err := db.allCounters(tx)
		if err != nil {
			return err
		}
		counter, ok = counters[keysetId]
		return nil
	})
	return counter, ok, err
}

func (db *BoltDB) SaveKeysetCounter(keysetId string, counter uint32) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		counters, err := db.allCounters(tx)
		if err != nil {
			return err
		}
		counters[keysetId] = counter

		countersBytes, err := json.Marshal(counters)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(settingsBucket)).Put([]byte(keysetCountersKey), countersBytes)
	})
}

func (db *BoltDB) AddProofs(proofs []StoredProof) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(proofsBucket))
		for _, proof := range proofs {
			proofBytes, err := json.Marshal(proof)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(proof.Secret), proofBytes); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *BoltDB) RemoveProofs(proofs cashu.Proofs) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(proofsBucket))
		for _, proof := range proofs {
			if err := b.Delete([]byte(proof.Secret)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *BoltDB) GetProofs() []StoredProof {
	var proofs []StoredProof
	db.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(proofsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var proof StoredProof
			if err := json.Unmarshal(v, &proof); err != nil {
				return fmt.Errorf("error reading proof: %v", err)
			}
			proofs = append(proofs, proof)
		}
		return nil
	})
	return proofs
}

func (db *BoltDB) SetReserved(proofs cashu.Proofs, reservation Reservation) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(proofsBucket))
		for _, proof := range proofs {
			v := b.Get([]byte(proof.Secret))
			if v == nil {
				continue
			}
			var stored StoredProof
			if err := json.Unmarshal(v, &stored); err != nil {
				return err
			}
			stored.Reservation = reservation

			storedBytes, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(proof.Secret), storedBytes); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *BoltDB) SaveKeyset(keyset *crypto.WalletKeyset) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		keysetBytes, err := json.Marshal(keyset)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(keysetsBucket)).Put([]byte(keyset.Id), keysetBytes)
	})
}

func (db *BoltDB) GetKeysets() crypto.KeysetsMap {
	keysets := make(crypto.KeysetsMap)
	db.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(keysetsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var keyset crypto.WalletKeyset
			if err := json.Unmarshal(v, &keyset); err != nil {
				return fmt.Errorf("error reading keyset: %v", err)
			}
			keysets[keyset.Id] = keyset
		}
		return nil
	})
	return keysets
}

func (db *BoltDB) SaveInvoice(invoice InvoiceHistory) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		invoiceBytes, err := json.Marshal(invoice)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(invoicesBucket)).Put([]byte(invoice.QuoteId), invoiceBytes)
	})
}

func (db *BoltDB) GetInvoice(quoteId string) (*InvoiceHistory, bool) {
	var invoice InvoiceHistory
	found := false
	db.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(invoicesBucket)).Get([]byte(quoteId))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &invoice); err != nil {
			return fmt.Errorf("error reading invoice: %v", err)
		}
		found = true
		return nil
	})
	return &invoice, found
}

func (db *BoltDB) RemoveInvoice(quoteId string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(invoicesBucket)).Delete([]byte(quoteId))
	})
}

func (db *BoltDB) GetInvoiceHistory() []InvoiceHistory {
	var invoices []InvoiceHistory
	db.bolt.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(invoicesBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var invoice InvoiceHistory
			if err := json.Unmarshal(v, &invoice); err != nil {
				return fmt.Errorf("error reading invoice: %v", err)
			}
			invoices = append(invoices, invoice)
		}
		return nil
	})
	return invoices
}
