package liveserver

import (
	"time"

	"market_client/internal/core"

	"github.com/shopspring/decimal"
)

// Message is one frame pushed to feed clients
type Message struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// Message types
const (
	TypeBalance      = "balance"
	TypeListing      = "listing"
	TypeWishList     = "wishlist"
	TypeLog          = "log"
	TypeSessionState = "session_state"
)

// retained reports whether the latest message of this type is replayed to new clients
func retained(msgType string) bool {
	return msgType != TypeLog
}

// NewMessage stamps data with the current time
func NewMessage(msgType string, data interface{}) Message {
	return Message{
		Type: msgType,
		Time: time.Now().UTC(),
		Data: data,
	}
}

type BalanceData struct {
	Balance decimal.Decimal `json:"balance"`
}

type ListingData struct {
	Items []core.Item `json:"items"`
}

type WishListData struct {
	Wishes []core.ItemWish `json:"wishes"`
}

type SessionStateData struct {
	State string `json:"state"`
}
