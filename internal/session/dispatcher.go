package session

import (
	"context"
	"sync/atomic"

	"market_client/internal/core"
	apperrors "market_client/pkg/errors"
	"market_client/pkg/telemetry"
)

// Callback kinds, used as the metric label
const (
	callbackSold          = "item_sold"
	callbackPurchased     = "item_purchased"
	callbackWishNotify    = "wish_notify"
	callbackLackOfFunds   = "lack_of_funds"
	callbackListingUpdate = "listing_update"
	callbackException     = "exception"
)

// callbackHandler is the worker-side reaction to each notification
type callbackHandler interface {
	handleItemSold(item core.Item)
	handleItemPurchased(item core.Item)
	handleWishNotify(item core.Item)
	handleLackOfFunds()
	handleListingUpdate(items []core.Item)
	handleException(message string)
}

// Dispatcher is the listener endpoint handed to the marketplace. Every notification is
// turned into a mailbox task; nothing is touched on the caller's goroutine.
type Dispatcher struct {
	username string
	active   atomic.Bool
	mailbox  *Mailbox
	handler  callbackHandler
	logger   core.ILogger
}

func newDispatcher(username string, mailbox *Mailbox, handler callbackHandler, logger core.ILogger) *Dispatcher {
	return &Dispatcher{
		username: username,
		mailbox:  mailbox,
		handler:  handler,
		logger:   logger.WithField("component", "dispatcher"),
	}
}

// Activate starts accepting notifications
func (d *Dispatcher) Activate() {
	d.active.Store(true)
}

// Deactivate rejects all further notifications with ErrListenerInactive
func (d *Dispatcher) Deactivate() {
	d.active.Store(false)
}

// Active reports whether notifications are accepted
func (d *Dispatcher) Active() bool {
	return d.active.Load()
}

// Username returns the participant this endpoint belongs to
func (d *Dispatcher) Username() string {
	return d.username
}

func (d *Dispatcher) enqueue(kind string, task func()) error {
	if !d.active.Load() {
		d.logger.Debug("notification rejected, listener inactive", "kind", kind)
		return apperrors.ErrListenerInactive
	}
	telemetry.GetGlobalMetrics().RecordCallback(context.Background(), kind)
	if err := d.mailbox.Post(task); err != nil {
		d.logger.Debug("notification dropped", "kind", kind, "error", err)
		return apperrors.ErrListenerInactive
	}
	return nil
}

func (d *Dispatcher) OnItemSold(item core.Item) error {
	return d.enqueue(callbackSold, func() { d.handler.handleItemSold(item) })
}

func (d *Dispatcher) OnItemPurchased(item core.Item) error {
	return d.enqueue(callbackPurchased, func() { d.handler.handleItemPurchased(item) })
}

func (d *Dispatcher) OnWishNotify(item core.Item) error {
	return d.enqueue(callbackWishNotify, func() { d.handler.handleWishNotify(item) })
}

func (d *Dispatcher) OnLackOfFunds() error {
	return d.enqueue(callbackLackOfFunds, d.handler.handleLackOfFunds)
}

// OnListingUpdate copies items before queueing; the caller may reuse its slice.
func (d *Dispatcher) OnListingUpdate(items []core.Item) error {
	snapshot := make([]core.Item, len(items))
	copy(snapshot, items)
	return d.enqueue(callbackListingUpdate, func() { d.handler.handleListingUpdate(snapshot) })
}

func (d *Dispatcher) OnException(message string) error {
	return d.enqueue(callbackException, func() { d.handler.handleException(message) })
}

var _ core.IListener = (*Dispatcher)(nil)
