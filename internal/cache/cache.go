// Package cache holds the session's last-known view of the marketplace and account.
package cache

import (
	"sync"

	"market_client/internal/core"

	"github.com/shopspring/decimal"
)

// StateCache owns the listing snapshot, the wish list and the last-known balance.
// Mutators are called from the session mailbox; accessors may be called from any
// goroutine and always return copies.
type StateCache struct {
	mu           sync.RWMutex
	listing      map[string]core.Item
	order        []string
	wishes       []core.ItemWish
	balance      decimal.Decimal
	balanceKnown bool
}

// New creates an empty cache
func New() *StateCache {
	return &StateCache{
		listing: make(map[string]core.Item),
	}
}

// ReplaceListing rebuilds the snapshot wholesale. A repeated id keeps its last value
// at its first position.
func (c *StateCache) ReplaceListing(items []core.Item) {
	listing := make(map[string]core.Item, len(items))
	order := make([]string, 0, len(items))
	for _, it := range items {
		if _, seen := listing[it.ID]; !seen {
			order = append(order, it.ID)
		}
		listing[it.ID] = it
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.listing = listing
	c.order = order
}

// SetBalance records the most recently fetched balance
func (c *StateCache) SetBalance(balance decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = balance
	c.balanceKnown = true
}

// ApplyWishRemoval drops one list entry per removed wish, first structural match wins
func (c *StateCache) ApplyWishRemoval(removed []core.ItemWish) {
	if len(removed) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range removed {
		for i, w := range c.wishes {
			if w.Equal(r) {
				c.wishes = append(c.wishes[:i:i], c.wishes[i+1:]...)
				break
			}
		}
	}
}

// AppendWish adds a wish the marketplace accepted
func (c *StateCache) AppendWish(w core.ItemWish) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wishes = append(c.wishes, w)
}

// Reset clears everything, used when a session ends
func (c *StateCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listing = make(map[string]core.Item)
	c.order = nil
	c.wishes = nil
	c.balance = decimal.Zero
	c.balanceKnown = false
}

// Listing returns the snapshot in marketplace order
func (c *StateCache) Listing() []core.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]core.Item, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, c.listing[id])
	}
	return items
}

// Item looks an item up by id in the snapshot
func (c *StateCache) Item(id string) (core.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.listing[id]
	return it, ok
}

// Wishes returns a copy of the wish list
func (c *StateCache) Wishes() []core.ItemWish {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.ItemWish, len(c.wishes))
	copy(out, c.wishes)
	return out
}

// Balance returns the last fetched balance and whether one was ever fetched
func (c *StateCache) Balance() (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balance, c.balanceKnown
}
