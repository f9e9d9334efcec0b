// Package core defines the core interfaces for the marketplace client
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IAccount is a handle to a participant's bank account
type IAccount interface {
	Owner() string
	Deposit(ctx context.Context, amount decimal.Decimal) error
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// IBank is the remote bank gateway
type IBank interface {
	// NewAccount fails with apperrors.ErrAccountExists when username already holds an account
	NewAccount(ctx context.Context, username string) (IAccount, error)
	// GetAccount fails with apperrors.ErrAccountNotFound when username holds no account
	GetAccount(ctx context.Context, username string) (IAccount, error)
}

// IMarketplace is the remote marketplace gateway
type IMarketplace interface {
	Name() string
	Register(ctx context.Context, username, displayName string, account IAccount, listener IListener) error
	Unregister(ctx context.Context, username string) error
	BuyItem(ctx context.Context, item Item, username string) error
	RemoveItem(ctx context.Context, item Item, username string) error
	AddItem(ctx context.Context, item Item) error
	AddWish(ctx context.Context, wish ItemWish, username string) error
}

// IListener is the callback endpoint the marketplace pushes notifications to.
// Implementations must accept calls from any goroutine.
type IListener interface {
	OnItemSold(item Item) error
	OnItemPurchased(item Item) error
	OnWishNotify(item Item) error
	OnLackOfFunds() error
	OnListingUpdate(items []Item) error
	OnException(message string) error
}

// IObserver receives observer-visible state changes. All calls for one session are made
// from that session's mailbox goroutine, in order.
type IObserver interface {
	OnBalanceChanged(balance decimal.Decimal)
	OnListingChanged(items []Item)
	OnWishListChanged(wishes []ItemWish)
	OnLogEvent(event LogEvent)
	OnSessionStateChanged(state SessionState)
}

// IHealthMonitor defines the interface for health monitoring
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
