package mock

import (
	"sync"

	"market_client/internal/core"

	"github.com/shopspring/decimal"
)

// Recorder is an observer that keeps every event for assertions
type Recorder struct {
	mu        sync.Mutex
	balances  []decimal.Decimal
	listings  [][]core.Item
	wishLists [][]core.ItemWish
	logs      []core.LogEvent
	states    []core.SessionState
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnBalanceChanged(balance decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances = append(r.balances, balance)
}

func (r *Recorder) OnListingChanged(items []core.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings = append(r.listings, items)
}

func (r *Recorder) OnWishListChanged(wishes []core.ItemWish) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wishLists = append(r.wishLists, wishes)
}

func (r *Recorder) OnLogEvent(event core.LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, event)
}

func (r *Recorder) OnSessionStateChanged(state core.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

// Balances returns every balance-changed value in order
func (r *Recorder) Balances() []decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]decimal.Decimal(nil), r.balances...)
}

// LastBalance returns the most recent balance and whether any was seen
func (r *Recorder) LastBalance() (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.balances) == 0 {
		return decimal.Zero, false
	}
	return r.balances[len(r.balances)-1], true
}

// Listings returns every listing-changed snapshot
func (r *Recorder) Listings() [][]core.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]core.Item(nil), r.listings...)
}

// WishLists returns every wish-list-changed value
func (r *Recorder) WishLists() [][]core.ItemWish {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]core.ItemWish(nil), r.wishLists...)
}

// LastWishList returns the most recent wish list
func (r *Recorder) LastWishList() ([]core.ItemWish, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.wishLists) == 0 {
		return nil, false
	}
	return r.wishLists[len(r.wishLists)-1], true
}

// Logs returns every log event
func (r *Recorder) Logs() []core.LogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.LogEvent(nil), r.logs...)
}

// LogsOfKind filters log events by kind
func (r *Recorder) LogsOfKind(kind string) []core.LogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.LogEvent
	for _, e := range r.logs {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// States returns every session state transition
func (r *Recorder) States() []core.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.SessionState(nil), r.states...)
}

// Reset forgets everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances = nil
	r.listings = nil
	r.wishLists = nil
	r.logs = nil
	r.states = nil
}

var _ core.IObserver = (*Recorder)(nil)
