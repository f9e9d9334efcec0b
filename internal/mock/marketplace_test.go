package mock

import (
	"context"
	"sync"
	"testing"

	"market_client/internal/core"
	apperrors "market_client/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureListener records notifications synchronously
type captureListener struct {
	mu        sync.Mutex
	sold      []core.Item
	purchased []core.Item
	notified  []core.Item
	lack      int
	listings  int
}

func (c *captureListener) OnItemSold(item core.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sold = append(c.sold, item)
	return nil
}

func (c *captureListener) OnItemPurchased(item core.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purchased = append(c.purchased, item)
	return nil
}

func (c *captureListener) OnWishNotify(item core.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notified = append(c.notified, item)
	return nil
}

func (c *captureListener) OnLackOfFunds() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lack++
	return nil
}

func (c *captureListener) OnListingUpdate(items []core.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings++
	return nil
}

func (c *captureListener) OnException(string) error { return nil }

func join(t *testing.T, bank *Bank, market *Marketplace, user string, funds int64) *captureListener {
	t.Helper()
	ctx := context.Background()
	acct, err := bank.NewAccount(ctx, user)
	require.NoError(t, err)
	if funds > 0 {
		require.NoError(t, acct.Deposit(ctx, decimal.NewFromInt(funds)))
	}
	l := &captureListener{}
	require.NoError(t, market.Register(ctx, user, user, acct, l))
	return l
}

func book(id, seller string, price int64) core.Item {
	return core.Item{ID: id, Name: "book-" + id, Price: decimal.NewFromInt(price), Category: core.CategoryBooks, Seller: seller}
}

func TestBank_Accounts(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()

	acct, err := bank.NewAccount(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, acct.Deposit(ctx, decimal.NewFromInt(1000)))

	_, err = bank.NewAccount(ctx, "alice")
	assert.ErrorIs(t, err, apperrors.ErrAccountExists)

	again, err := bank.GetAccount(ctx, "alice")
	require.NoError(t, err)
	bal, err := again.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(1000)))

	_, err = bank.GetAccount(ctx, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)

	assert.ErrorIs(t, acct.Deposit(ctx, decimal.Zero), apperrors.ErrRejected)
	assert.Equal(t, 1, bank.AccountCount())
}

func TestMarketplace_BuySettlesAndNotifies(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	market := NewMarketplace("test", bank, false)

	seller := join(t, bank, market, "bob", 0)
	buyer := join(t, bank, market, "alice", 100)

	require.NoError(t, market.AddItem(ctx, book("1", "bob", 30)))
	require.NoError(t, market.BuyItem(ctx, book("1", "bob", 30), "alice"))

	assert.Len(t, buyer.purchased, 1)
	assert.Len(t, seller.sold, 1)
	assert.Empty(t, market.Items())

	a, _ := bank.GetAccount(ctx, "alice")
	b, _ := bank.GetAccount(ctx, "bob")
	ab, _ := a.Balance(ctx)
	bb, _ := b.Balance(ctx)
	assert.True(t, ab.Equal(decimal.NewFromInt(70)))
	assert.True(t, bb.Equal(decimal.NewFromInt(30)))
}

func TestMarketplace_LackOfFunds(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	market := NewMarketplace("test", bank, false)

	join(t, bank, market, "bob", 0)
	buyer := join(t, bank, market, "alice", 10)

	require.NoError(t, market.AddItem(ctx, book("1", "bob", 30)))
	err := market.BuyItem(ctx, book("1", "bob", 30), "alice")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.Equal(t, 1, buyer.lack)
	assert.Len(t, market.Items(), 1)
}

func TestMarketplace_AutoPurchaseForWish(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	market := NewMarketplace("test", bank, true)

	join(t, bank, market, "bob", 0)
	buyer := join(t, bank, market, "alice", 100)

	require.NoError(t, market.AddWish(ctx, core.ItemWish{Category: core.CategoryBooks, MaxPrice: decimal.NewFromInt(20)}, "alice"))
	require.NoError(t, market.AddItem(ctx, book("1", "bob", 15)))

	assert.Len(t, buyer.notified, 1)
	assert.Len(t, buyer.purchased, 1)
	assert.Empty(t, market.Wishes("alice"))
	assert.Empty(t, market.Items())
}

func TestMarketplace_RemoveOnlyBySeller(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	market := NewMarketplace("test", bank, false)

	join(t, bank, market, "bob", 0)
	join(t, bank, market, "alice", 0)

	require.NoError(t, market.AddItem(ctx, book("1", "bob", 15)))
	assert.ErrorIs(t, market.RemoveItem(ctx, book("1", "bob", 15), "alice"), apperrors.ErrRejected)
	assert.NoError(t, market.RemoveItem(ctx, book("1", "bob", 15), "bob"))
	assert.ErrorIs(t, market.RemoveItem(ctx, book("1", "bob", 15), "bob"), apperrors.ErrItemNotFound)
}

func TestMarketplace_RegisterTwice(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	market := NewMarketplace("test", bank, false)

	l := join(t, bank, market, "alice", 0)
	assert.Equal(t, 1, l.listings, "new participant receives the listing")

	acct, _ := bank.GetAccount(ctx, "alice")
	assert.ErrorIs(t, market.Register(ctx, "alice", "alice", acct, l), apperrors.ErrAlreadyRegistered)

	require.NoError(t, market.Unregister(ctx, "alice"))
	assert.False(t, market.Registered("alice"))
	assert.ErrorIs(t, market.Unregister(ctx, "alice"), apperrors.ErrNotRegistered)
}

func TestOpenHouse_ListsCatalogue(t *testing.T) {
	ctx := context.Background()
	bank := NewBank()
	market := NewMarketplace("test", bank, false)

	catalogue := Catalogue()
	require.NoError(t, OpenHouse(ctx, bank, market, catalogue))

	assert.True(t, market.Registered(HouseName))
	items := market.Items()
	require.Len(t, items, len(catalogue))
	for _, it := range items {
		assert.Equal(t, HouseName, it.Seller)
	}

	buyer := join(t, bank, market, "alice", 100)
	assert.Equal(t, 1, buyer.listings)
	require.NoError(t, market.BuyItem(ctx, catalogue[0], "alice"))

	house, err := bank.GetAccount(ctx, HouseName)
	require.NoError(t, err)
	bal, err := house.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(catalogue[0].Price))
}
