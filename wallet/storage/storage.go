// Package storage defines the key-value persistence contract the wallet
// engine is built against (the "Proof Store" and "Seed & Keyset Counter
// Store" collaborators), and a bbolt-backed implementation of it.
package storage

import (
	"github.com/nutvault/walletcore/cashu"
	"github.com/nutvault/walletcore/crypto"
)

// Reservation models a proof's hold state as a sum type rather than a
// bare bool plus a parallel quote-id field: a proof is either free, or
// reserved, optionally bound to the melt quote that reserved it.
type Reservation struct {
	Reserved bool
	QuoteId  string
}

func Unreserved() Reservation          { return Reservation{} }
func ReservedFor(quoteId string) Reservation { return Reservation{Reserved: true, QuoteId: quoteId} }

// StoredProof is a proof plus the wallet-local bookkeeping the wire
// format (cashu.Proof) has no room for. Proof identity for store
// operations is the secret, per the proof store's equality contract.
type StoredProof struct {
	cashu.Proof
	MintURL     string
	Reservation Reservation
}

// InvoiceHistory is one entry of the wallet's append-mostly payment
// ledger. Amount is signed: positive for incoming (mint), negative for
// outgoing (melt). QuoteId is the uniqueness key.
type InvoiceHistory struct {
	Amount  int64
	Bolt11  string
	QuoteId string
	Memo    string
	Date    int64
	Status  string // "pending" | "paid"
	MintURL string
	Unit    string
	// LockingKey is the hex-encoded private key locking a NUT-20 mint
	// quote, kept around so Mint can sign the claim once it's paid.
	LockingKey string
}

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

// OldMnemonicCounters archives a rotated-out mnemonic with the keyset
// counters it had reached, kept indefinitely for forensic recovery.
type OldMnemonicCounters struct {
	Mnemonic string
	Counters map[string]uint32
}

// DB is the persistence contract the wallet engine depends on. All
// operations are synchronous; the engine is responsible for any
// concurrency discipline above this layer.
type DB interface {
	// Seed & Keyset Counter Store (C1)
	GetMnemonic() (string, error)
	SaveMnemonic(mnemonic string) error
	RotateMnemonic(oldMnemonic string, oldCounters map[string]uint32, newMnemonic string) error
	GetOldMnemonicCounters() ([]OldMnemonicCounters, error)
	GetKeysetCounter(keysetId string) (uint32, bool, error)
	SaveKeysetCounter(keysetId string, counter uint32) error

	// Proof Store (C2)
	AddProofs(proofs []StoredProof) error
	RemoveProofs(proofs cashu.Proofs) error
	GetProofs() []StoredProof
	SetReserved(proofs cashu.Proofs, reservation Reservation) error

	// Keysets
	SaveKeyset(keyset *crypto.WalletKeyset) error
	GetKeysets() crypto.KeysetsMap

	// Invoice history
	SaveInvoice(invoice InvoiceHistory) error
	GetInvoice(quoteId string) (*InvoiceHistory, bool)
	GetInvoiceHistory() []InvoiceHistory
	RemoveInvoice(quoteId string) error

	Close() error
}
