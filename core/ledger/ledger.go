// Package ledger is the authoritative store of carrier bids per tender.
//
// Bids are append-only: a bid changes status but is never removed, so the
// full history stays available for audit. At most one bid per carrier and
// tender is Pending at any time.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/tendering/core/model"
)

var (
	ErrTenderClosed       = errors.New("tender closed for bidding")
	ErrDuplicateActiveBid = errors.New("carrier already has an active bid")
	ErrBidNotFound        = errors.New("bid not found")
	ErrUnknownTender      = errors.New("unknown tender")
	ErrValidation         = errors.New("invalid bid")
)

// ChangeFunc is invoked after every accepted mutation of a tender's book.
type ChangeFunc func(tenderID string)

type book struct {
	mu       sync.Mutex
	open     bool
	deadline time.Time
	bids     []model.CarrierBid
	active   map[string]int
	version  uint64
	seq      int
}

// Ledger keeps one book per tender. Books are independent: operations on
// different tenders never contend on the same lock.
type Ledger struct {
	mu       sync.RWMutex
	books    map[string]*book
	onChange ChangeFunc
	newID    func() string
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{books: map[string]*book{}, newID: uuid.NewString}
}

// OnChange registers the callback run after accepted submissions and
// withdrawals. It is called without any ledger lock held.
func (l *Ledger) OnChange(fn ChangeFunc) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// SetIDFunc overrides bid id generation.
func (l *Ledger) SetIDFunc(fn func() string) {
	l.mu.Lock()
	l.newID = fn
	l.mu.Unlock()
}

// Open starts bid collection for a tender until deadline inclusive.
func (l *Ledger) Open(tenderID string, deadline time.Time) {
	l.mu.Lock()
	b, ok := l.books[tenderID]
	if !ok {
		b = &book{active: map[string]int{}}
		l.books[tenderID] = b
	}
	l.mu.Unlock()
	b.mu.Lock()
	b.open = true
	b.deadline = deadline
	b.version++
	b.mu.Unlock()
}

// Close stops bid collection. Existing bids are kept.
func (l *Ledger) Close(tenderID string) {
	b := l.get(tenderID)
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.open {
		b.open = false
		b.version++
	}
	b.mu.Unlock()
}

func (l *Ledger) get(tenderID string) *book {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.books[tenderID]
}

func (l *Ledger) notify(tenderID string) {
	l.mu.RLock()
	fn := l.onChange
	l.mu.RUnlock()
	if fn != nil {
		fn(tenderID)
	}
}

// Submit records a new Pending bid for carrierID. The tender must be open and
// now must not be after its deadline. When supersede is false and the carrier
// already has a Pending bid, ErrDuplicateActiveBid is returned; with supersede
// the previous bid is marked Expired in the same critical section.
func (l *Ledger) Submit(tenderID, carrierID string, p model.BidPayload, now time.Time) (model.CarrierBid, error) {
	if carrierID == "" {
		return model.CarrierBid{}, fmt.Errorf("%w: carrier id is required", ErrValidation)
	}
	if err := p.Validate(); err != nil {
		return model.CarrierBid{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	b := l.get(tenderID)
	if b == nil {
		return model.CarrierBid{}, fmt.Errorf("%w: %s", ErrUnknownTender, tenderID)
	}
	l.mu.RLock()
	newID := l.newID
	l.mu.RUnlock()

	b.mu.Lock()
	if !b.open || now.After(b.deadline) {
		b.mu.Unlock()
		return model.CarrierBid{}, fmt.Errorf("%w: %s", ErrTenderClosed, tenderID)
	}
	bid := model.NewCarrierBid(newID(), tenderID, carrierID, p, now)
	if bid.ExpiredAt(now) {
		b.mu.Unlock()
		return model.CarrierBid{}, fmt.Errorf("%w: bid already expired", ErrValidation)
	}
	if idx, ok := b.active[carrierID]; ok {
		if !p.Supersede {
			b.mu.Unlock()
			return model.CarrierBid{}, fmt.Errorf("%w: carrier %s", ErrDuplicateActiveBid, carrierID)
		}
		b.bids[idx].Status = model.BidExpired
		delete(b.active, carrierID)
	}
	b.seq++
	bid.Seq = b.seq
	b.bids = append(b.bids, bid)
	b.active[carrierID] = len(b.bids) - 1
	b.version++
	b.mu.Unlock()

	l.notify(tenderID)
	return bid, nil
}

// Withdraw marks the carrier's Pending bid Expired.
func (l *Ledger) Withdraw(tenderID, carrierID string, now time.Time) (model.CarrierBid, error) {
	b := l.get(tenderID)
	if b == nil {
		return model.CarrierBid{}, fmt.Errorf("%w: %s", ErrUnknownTender, tenderID)
	}
	b.mu.Lock()
	if !b.open || now.After(b.deadline) {
		b.mu.Unlock()
		return model.CarrierBid{}, fmt.Errorf("%w: %s", ErrTenderClosed, tenderID)
	}
	idx, ok := b.active[carrierID]
	if !ok {
		b.mu.Unlock()
		return model.CarrierBid{}, fmt.Errorf("%w: carrier %s", ErrBidNotFound, carrierID)
	}
	b.bids[idx].Status = model.BidExpired
	delete(b.active, carrierID)
	b.version++
	out := b.bids[idx]
	b.mu.Unlock()

	l.notify(tenderID)
	return out, nil
}

// Active returns the Pending bids of a tender in submission order.
func (l *Ledger) Active(tenderID string) []model.CarrierBid {
	b := l.get(tenderID)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.CarrierBid, 0, len(b.active))
	for _, idx := range b.active {
		out = append(out, b.bids[idx])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// All returns every bid ever recorded for the tender, in submission order.
func (l *Ledger) All(tenderID string) []model.CarrierBid {
	b := l.get(tenderID)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.CarrierBid(nil), b.bids...)
}

// Snapshot returns the Pending bids together with the book version. The
// version changes on every mutation and is used to detect concurrent writes
// between a snapshot and a decision.
func (l *Ledger) Snapshot(tenderID string) ([]model.CarrierBid, uint64) {
	b := l.get(tenderID)
	if b == nil {
		return nil, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.CarrierBid, 0, len(b.active))
	for _, idx := range b.active {
		out = append(out, b.bids[idx])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, b.version
}

// Version returns the current book version.
func (l *Ledger) Version(tenderID string) uint64 {
	b := l.get(tenderID)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// Responded returns the number of carriers holding a Pending bid.
func (l *Ledger) Responded(tenderID string) int {
	b := l.get(tenderID)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// ExpireDue marks Pending bids whose own validity ended at or before now as
// Expired and returns them.
func (l *Ledger) ExpireDue(tenderID string, now time.Time) []model.CarrierBid {
	b := l.get(tenderID)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var expired []model.CarrierBid
	for carrier, idx := range b.active {
		if b.bids[idx].ExpiredAt(now) {
			b.bids[idx].Status = model.BidExpired
			delete(b.active, carrier)
			expired = append(expired, b.bids[idx])
		}
	}
	if len(expired) > 0 {
		b.version++
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Seq < expired[j].Seq })
	return expired
}

// Settle closes the book and accepts the winning bid; every other Pending bid
// is rejected. An empty winnerID rejects all Pending bids.
func (l *Ledger) Settle(tenderID, winnerID string) error {
	b := l.get(tenderID)
	if b == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTender, tenderID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	found := winnerID == ""
	for _, idx := range b.active {
		if b.bids[idx].ID == winnerID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrBidNotFound, winnerID)
	}
	for carrier, idx := range b.active {
		if b.bids[idx].ID == winnerID {
			b.bids[idx].Status = model.BidAccepted
		} else {
			b.bids[idx].Status = model.BidRejected
		}
		delete(b.active, carrier)
	}
	b.open = false
	b.version++
	return nil
}
