// Package session runs the participant's marketplace session: registration against the
// bank and the marketplace, user actions, and the serialized handling of pushed callbacks.
package session

import (
	"context"
	"strings"
	"sync"

	"market_client/internal/core"
	"market_client/internal/wish"
	"market_client/pkg/concurrency"
	apperrors "market_client/pkg/errors"

	"github.com/shopspring/decimal"
)

// Options tunes a Manager
type Options struct {
	DisplayName   string          // Defaults to the username
	InitialFunds  decimal.Decimal // Opening deposit for freshly created accounts
	WishPolicy    wish.Policy
	MailboxBuffer int
}

// DefaultOptions matches the stock marketplace client
func DefaultOptions() Options {
	return Options{
		InitialFunds:  decimal.NewFromInt(1000),
		WishPolicy:    wish.PolicyHighestMax,
		MailboxBuffer: 256,
	}
}

// Manager is the single entry point for session lifecycle and user actions.
// At most one session is active at a time.
type Manager struct {
	bank     core.IBank
	market   core.IMarketplace
	observer core.IObserver
	pool     *concurrency.WorkerPool
	logger   core.ILogger
	opts     Options

	// lifecycle is held exclusively by register/unregister and shared by user actions
	lifecycle sync.RWMutex

	mu     sync.RWMutex
	active *Session
}

// NewManager creates a manager. observer may be nil.
func NewManager(bank core.IBank, market core.IMarketplace, observer core.IObserver,
	pool *concurrency.WorkerPool, logger core.ILogger, opts Options) (*Manager, error) {
	if bank == nil || market == nil || pool == nil {
		return nil, apperrors.ErrMissingCollaborator
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Manager{
		bank:     bank,
		market:   market,
		observer: observer,
		pool:     pool,
		logger:   logger.WithField("component", "session_manager"),
		opts:     opts,
	}, nil
}

func (m *Manager) current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) setActive(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = s
}

// Register opens a session for username. A failed registration leaves the manager
// Unregistered and returns a *apperrors.SessionError.
func (m *Manager) Register(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if username == "" {
		return &apperrors.SessionError{Op: "register", Username: username, Err: apperrors.ErrEmptyUsername}
	}
	if m.current() != nil {
		return &apperrors.SessionError{Op: "register", Username: username, Err: apperrors.ErrInvalidState}
	}

	s := newSession(username, m.bank, m.market, m.observer, m.pool, m.logger, m.opts)
	m.setActive(s)

	if err := s.register(ctx); err != nil {
		m.setActive(nil)
		return &apperrors.SessionError{Op: "register", Username: username, Err: err}
	}
	return nil
}

// Unregister leaves the marketplace. The session ends Unregistered even when the
// remote call fails; that failure is returned as a *apperrors.SessionError.
func (m *Manager) Unregister(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	s := m.current()
	if s == nil || s.State() != core.StateRegistered {
		return &apperrors.SessionError{Op: "unregister", Err: apperrors.ErrInvalidState}
	}

	err := s.unregister(ctx)
	m.setActive(nil)
	if err != nil {
		return &apperrors.SessionError{Op: "unregister", Username: s.username, Err: err}
	}
	return nil
}

// registered runs fn against the active session while holding the lifecycle shared lock
func (m *Manager) registered(op string, fn func(s *Session) error) error {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()

	s := m.current()
	if s == nil || s.State() != core.StateRegistered {
		return &apperrors.OperationError{Op: op, Err: apperrors.ErrInvalidState}
	}
	return fn(s)
}

// BuyItem asks the marketplace to sell item to this participant
func (m *Manager) BuyItem(ctx context.Context, item core.Item) error {
	return m.registered("buy", func(s *Session) error {
		return s.buyItem(ctx, item)
	})
}

// ListItem offers a new item for sale and returns it with its assigned id
func (m *Manager) ListItem(ctx context.Context, name string, category core.Category, price decimal.Decimal) (core.Item, error) {
	var item core.Item
	err := m.registered("list", func(s *Session) error {
		var err error
		item, err = s.listItem(ctx, strings.TrimSpace(name), category, price)
		return err
	})
	return item, err
}

// RemoveItem withdraws one of this participant's items
func (m *Manager) RemoveItem(ctx context.Context, item core.Item) error {
	return m.registered("remove", func(s *Session) error {
		return s.removeItem(ctx, item)
	})
}

// AddWish places a standing order
func (m *Manager) AddWish(ctx context.Context, w core.ItemWish) error {
	return m.registered("add_wish", func(s *Session) error {
		return s.addWish(ctx, w)
	})
}

// Close unregisters an active session, ignoring the remote outcome
func (m *Manager) Close(ctx context.Context) error {
	if s := m.current(); s == nil || s.State() != core.StateRegistered {
		return nil
	}
	return m.Unregister(ctx)
}

// Read accessors. They reflect the active session and are empty when there is none.

// State returns the lifecycle state
func (m *Manager) State() core.SessionState {
	if s := m.current(); s != nil {
		return s.State()
	}
	return core.StateUnregistered
}

// Username returns the active participant, empty when unregistered
func (m *Manager) Username() string {
	if s := m.current(); s != nil {
		return s.username
	}
	return ""
}

// MarketplaceName returns the marketplace label
func (m *Manager) MarketplaceName() string {
	return m.market.Name()
}

// Balance returns the last fetched balance
func (m *Manager) Balance() (decimal.Decimal, bool) {
	if s := m.current(); s != nil {
		return s.cache.Balance()
	}
	return decimal.Zero, false
}

// Listing returns the last pushed listing
func (m *Manager) Listing() []core.Item {
	if s := m.current(); s != nil {
		return s.cache.Listing()
	}
	return nil
}

// Item finds an item of the last pushed listing by id
func (m *Manager) Item(id string) (core.Item, bool) {
	if s := m.current(); s != nil {
		return s.cache.Item(id)
	}
	return core.Item{}, false
}

// Wishes returns the local wish list
func (m *Manager) Wishes() []core.ItemWish {
	if s := m.current(); s != nil {
		return s.cache.Wishes()
	}
	return nil
}

// Listener exposes the active callback endpoint, nil when unregistered
func (m *Manager) Listener() core.IListener {
	if s := m.current(); s != nil {
		return s.dispatcher
	}
	return nil
}

// HealthCheck fails when a registered session lost its mailbox
func (m *Manager) HealthCheck() error {
	s := m.current()
	if s == nil || s.State() != core.StateRegistered {
		return nil
	}
	if s.mailbox.Closed() {
		return apperrors.ErrMailboxClosed
	}
	return nil
}
