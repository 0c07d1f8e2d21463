package wallet

import (
	"sync"

	"github.com/nutvault/walletcore/cashu/nuts/nut04"
	"github.com/nutvault/walletcore/cashu/nuts/nut05"
	"github.com/nutvault/walletcore/cashu/nuts/nut06"
	"github.com/nutvault/walletcore/crypto"
)

// mintData is the wallet's local view of one registered mint: its
// current active keyset, any keysets it has since rotated out of, and
// its last-fetched info/capability response.
type mintData struct {
	url             string
	unit            string
	activeKeyset    crypto.WalletKeyset
	inactiveKeysets map[string]crypto.WalletKeyset
	info            *nut06.MintInfo
}

// MintQuote mirrors the mint's bolt11 mint-quote response plus the
// fields the engine tracks locally.
type MintQuote struct {
	QuoteId string
	MintURL string
	Request string
	Amount  uint64
	State   nut04.MintQuoteState
}

// MeltQuote mirrors the mint's bolt11 melt-quote response.
type MeltQuote struct {
	QuoteId    string
	MintURL    string
	Amount     uint64
	FeeReserve uint64
	State      nut05.MeltQuoteState
}

// PayInvoiceSession is the transient, UI-bound state for one pay flow:
// the decoded target, any quotes obtained for it, and the blocking
// latch that keeps concurrent quote requests from racing.
type PayInvoiceSession struct {
	mu sync.Mutex

	Bolt11        string
	AmountSat     uint64
	Description   string
	ExpireUnix    int64

	SingleQuote   *MeltQuote
	MultiQuotes   []MeltQuote
	LNURLMetadata *LNURLPayResponse

	blocking bool
	LastErr  error
}

// tryLock acquires the blocking latch, returning false if it is already
// held (a quote request is already in flight for this session).
func (s *PayInvoiceSession) tryLock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocking {
		return false
	}
	s.blocking = true
	return true
}

func (s *PayInvoiceSession) unlock() {
	s.mu.Lock()
	s.blocking = false
	s.mu.Unlock()
}
