package liveserver

import (
	"market_client/internal/core"

	"github.com/shopspring/decimal"
)

// Observer publishes every session change to the hub
type Observer struct {
	hub *Hub
}

// NewObserver returns a core.IObserver broadcasting through hub
func NewObserver(hub *Hub) *Observer {
	return &Observer{hub: hub}
}

func (o *Observer) OnBalanceChanged(balance decimal.Decimal) {
	o.hub.Broadcast(NewMessage(TypeBalance, BalanceData{Balance: balance}))
}

func (o *Observer) OnListingChanged(items []core.Item) {
	o.hub.Broadcast(NewMessage(TypeListing, ListingData{Items: items}))
}

func (o *Observer) OnWishListChanged(wishes []core.ItemWish) {
	o.hub.Broadcast(NewMessage(TypeWishList, WishListData{Wishes: wishes}))
}

func (o *Observer) OnLogEvent(event core.LogEvent) {
	o.hub.Broadcast(NewMessage(TypeLog, event))
}

func (o *Observer) OnSessionStateChanged(state core.SessionState) {
	o.hub.Broadcast(NewMessage(TypeSessionState, SessionStateData{State: state.String()}))
}

var _ core.IObserver = (*Observer)(nil)
