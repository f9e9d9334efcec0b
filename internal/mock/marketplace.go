package mock

import (
	"context"
	"sync"

	"market_client/internal/core"
	"market_client/internal/wish"
	apperrors "market_client/pkg/errors"
)

type participant struct {
	displayName string
	account     core.IAccount
	listener    core.IListener
	wishes      []core.ItemWish
}

// notification is a listener call made after the marketplace lock is released
type notification func()

// Marketplace is an in-memory marketplace implementing core.IMarketplace.
// It settles purchases against a mock Bank and pushes callbacks to participants.
type Marketplace struct {
	name         string
	bank         *Bank
	matcher      wish.Matcher
	autoPurchase bool

	mu           sync.Mutex
	participants map[string]*participant
	items        []core.Item
	faults       map[string]error
}

// NewMarketplace creates a marketplace settling through bank. With autoPurchase a newly
// listed item is bought immediately for the first participant whose wish it satisfies.
func NewMarketplace(name string, bank *Bank, autoPurchase bool) *Marketplace {
	return &Marketplace{
		name:         name,
		bank:         bank,
		matcher:      wish.NewMatcher(wish.PolicyHighestMax),
		autoPurchase: autoPurchase,
		participants: make(map[string]*participant),
		faults:       make(map[string]error),
	}
}

// SetFault makes op ("register", "unregister", "buy_item", "remove_item", "add_item",
// "add_wish") fail with err until cleared with a nil err.
func (m *Marketplace) SetFault(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

func (m *Marketplace) Name() string {
	return m.name
}

func (m *Marketplace) Register(ctx context.Context, username, displayName string, account core.IAccount, listener core.IListener) error {
	m.mu.Lock()
	if err := m.faults["register"]; err != nil {
		m.mu.Unlock()
		return err
	}
	if _, exists := m.participants[username]; exists {
		m.mu.Unlock()
		return apperrors.ErrAlreadyRegistered
	}
	m.participants[username] = &participant{
		displayName: displayName,
		account:     account,
		listener:    listener,
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	deliver(func() { _ = listener.OnListingUpdate(snapshot) })
	return nil
}

func (m *Marketplace) Unregister(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults["unregister"]; err != nil {
		return err
	}
	if _, ok := m.participants[username]; !ok {
		return apperrors.ErrNotRegistered
	}
	delete(m.participants, username)
	return nil
}

func (m *Marketplace) AddItem(ctx context.Context, item core.Item) error {
	m.mu.Lock()
	if err := m.faults["add_item"]; err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := m.participants[item.Seller]; !ok {
		m.mu.Unlock()
		return apperrors.ErrNotRegistered
	}
	if item.ID == "" || !item.Category.Valid() || !item.Price.IsPositive() {
		m.mu.Unlock()
		return apperrors.ErrRejected
	}
	m.items = append(m.items, item)

	notes := m.broadcastLocked()
	var buyer string
	for username, p := range m.participants {
		if username == item.Seller {
			continue
		}
		if _, removed := m.matcher.Match(item, p.wishes); len(removed) > 0 {
			listener := p.listener
			notes = append(notes, func() { _ = listener.OnWishNotify(item) })
			if buyer == "" {
				buyer = username
			}
		}
	}
	m.mu.Unlock()

	deliver(notes...)

	if m.autoPurchase && buyer != "" {
		// a failed automatic purchase was already reported to the buyer
		_ = m.BuyItem(ctx, item, buyer)
	}
	return nil
}

func (m *Marketplace) BuyItem(ctx context.Context, item core.Item, username string) error {
	m.mu.Lock()
	if err := m.faults["buy_item"]; err != nil {
		m.mu.Unlock()
		return err
	}
	buyer, ok := m.participants[username]
	if !ok {
		m.mu.Unlock()
		return apperrors.ErrNotRegistered
	}
	idx := m.indexLocked(item.ID)
	if idx < 0 {
		m.mu.Unlock()
		return apperrors.ErrItemNotFound
	}
	listed := m.items[idx]
	if listed.Seller == username {
		m.mu.Unlock()
		return apperrors.ErrRejected
	}

	if err := m.bank.Transfer(buyer.account.Owner(), listed.Seller, listed.Price); err != nil {
		listener := buyer.listener
		m.mu.Unlock()
		deliver(func() { _ = listener.OnLackOfFunds() })
		return err
	}

	m.items = append(m.items[:idx:idx], m.items[idx+1:]...)
	buyer.wishes, _ = m.matcher.Match(listed, buyer.wishes)

	notes := []notification{func() { _ = buyer.listener.OnItemPurchased(listed) }}
	if seller, ok := m.participants[listed.Seller]; ok {
		sellerListener := seller.listener
		notes = append(notes, func() { _ = sellerListener.OnItemSold(listed) })
	}
	notes = append(notes, m.broadcastLocked()...)
	m.mu.Unlock()

	deliver(notes...)
	return nil
}

func (m *Marketplace) RemoveItem(ctx context.Context, item core.Item, username string) error {
	m.mu.Lock()
	if err := m.faults["remove_item"]; err != nil {
		m.mu.Unlock()
		return err
	}
	idx := m.indexLocked(item.ID)
	if idx < 0 {
		m.mu.Unlock()
		return apperrors.ErrItemNotFound
	}
	if m.items[idx].Seller != username {
		m.mu.Unlock()
		return apperrors.ErrRejected
	}
	m.items = append(m.items[:idx:idx], m.items[idx+1:]...)
	notes := m.broadcastLocked()
	m.mu.Unlock()

	deliver(notes...)
	return nil
}

func (m *Marketplace) AddWish(ctx context.Context, w core.ItemWish, username string) error {
	m.mu.Lock()
	if err := m.faults["add_wish"]; err != nil {
		m.mu.Unlock()
		return err
	}
	p, ok := m.participants[username]
	if !ok {
		m.mu.Unlock()
		return apperrors.ErrNotRegistered
	}
	p.wishes = append(p.wishes, w)

	var notes []notification
	for _, it := range m.items {
		if it.Seller != username && wish.Satisfies(it, w) {
			item, listener := it, p.listener
			notes = append(notes, func() { _ = listener.OnWishNotify(item) })
			break
		}
	}
	m.mu.Unlock()

	deliver(notes...)
	return nil
}

// Items returns the current listing
func (m *Marketplace) Items() []core.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Wishes returns the wishes the marketplace holds for username
func (m *Marketplace) Wishes(username string) []core.ItemWish {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[username]
	if !ok {
		return nil
	}
	out := make([]core.ItemWish, len(p.wishes))
	copy(out, p.wishes)
	return out
}

// Registered reports whether username is a participant
func (m *Marketplace) Registered(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.participants[username]
	return ok
}

// Listener returns the callback endpoint registered for username
func (m *Marketplace) Listener(username string) core.IListener {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.participants[username]; ok {
		return p.listener
	}
	return nil
}

func (m *Marketplace) indexLocked(id string) int {
	for i, it := range m.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (m *Marketplace) snapshotLocked() []core.Item {
	out := make([]core.Item, len(m.items))
	copy(out, m.items)
	return out
}

func (m *Marketplace) broadcastLocked() []notification {
	snapshot := m.snapshotLocked()
	notes := make([]notification, 0, len(m.participants))
	for _, p := range m.participants {
		listener := p.listener
		notes = append(notes, func() { _ = listener.OnListingUpdate(snapshot) })
	}
	return notes
}

func deliver(notes ...notification) {
	for _, n := range notes {
		n()
	}
}

var _ core.IMarketplace = (*Marketplace)(nil)
