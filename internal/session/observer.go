package session

import (
	"market_client/internal/core"

	"github.com/shopspring/decimal"
)

// Fanout forwards every observer event to each member in order
type Fanout []core.IObserver

func (f Fanout) OnBalanceChanged(balance decimal.Decimal) {
	for _, o := range f {
		o.OnBalanceChanged(balance)
	}
}

func (f Fanout) OnListingChanged(items []core.Item) {
	for _, o := range f {
		o.OnListingChanged(items)
	}
}

func (f Fanout) OnWishListChanged(wishes []core.ItemWish) {
	for _, o := range f {
		o.OnWishListChanged(wishes)
	}
}

func (f Fanout) OnLogEvent(event core.LogEvent) {
	for _, o := range f {
		o.OnLogEvent(event)
	}
}

func (f Fanout) OnSessionStateChanged(state core.SessionState) {
	for _, o := range f {
		o.OnSessionStateChanged(state)
	}
}

// NopObserver discards every event
type NopObserver struct{}

func (NopObserver) OnBalanceChanged(decimal.Decimal)        {}
func (NopObserver) OnListingChanged([]core.Item)            {}
func (NopObserver) OnWishListChanged([]core.ItemWish)       {}
func (NopObserver) OnLogEvent(core.LogEvent)                {}
func (NopObserver) OnSessionStateChanged(core.SessionState) {}

var (
	_ core.IObserver = Fanout(nil)
	_ core.IObserver = NopObserver{}
)
