package cache

import (
	"sync"
	"testing"

	"market_client/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func books(max int64) core.ItemWish {
	return core.ItemWish{Category: core.CategoryBooks, MaxPrice: decimal.NewFromInt(max)}
}

func TestStateCache_ReplaceListing(t *testing.T) {
	c := New()
	c.ReplaceListing([]core.Item{
		{ID: "a", Name: "Dune", Price: decimal.NewFromInt(10)},
		{ID: "b", Name: "Lamp", Price: decimal.NewFromInt(25)},
		{ID: "a", Name: "Dune 2nd", Price: decimal.NewFromInt(12)},
	})

	items := c.Listing()
	require.Len(t, items, 2)
	assert.Equal(t, "Dune 2nd", items[0].Name)
	assert.Equal(t, "Lamp", items[1].Name)

	c.ReplaceListing(nil)
	assert.Empty(t, c.Listing())
	_, ok := c.Item("a")
	assert.False(t, ok)
}

func TestStateCache_ListingIsCopy(t *testing.T) {
	c := New()
	c.ReplaceListing([]core.Item{{ID: "a", Name: "Dune"}})

	items := c.Listing()
	items[0].Name = "mutated"

	it, ok := c.Item("a")
	require.True(t, ok)
	assert.Equal(t, "Dune", it.Name)
}

func TestStateCache_Balance(t *testing.T) {
	c := New()
	_, known := c.Balance()
	assert.False(t, known)

	c.SetBalance(decimal.NewFromInt(1000))
	b, known := c.Balance()
	assert.True(t, known)
	assert.True(t, b.Equal(decimal.NewFromInt(1000)))
}

func TestStateCache_ApplyWishRemoval(t *testing.T) {
	c := New()
	c.AppendWish(books(20))
	c.AppendWish(books(50))
	c.AppendWish(books(20))

	c.ApplyWishRemoval([]core.ItemWish{books(20)})

	wishes := c.Wishes()
	require.Len(t, wishes, 2)
	assert.True(t, wishes[0].Equal(books(50)))
	assert.True(t, wishes[1].Equal(books(20)))

	c.ApplyWishRemoval([]core.ItemWish{books(999)})
	assert.Len(t, c.Wishes(), 2)
}

func TestStateCache_WishesIsCopy(t *testing.T) {
	c := New()
	c.AppendWish(books(20))
	w := c.Wishes()
	w[0] = books(1)
	assert.True(t, c.Wishes()[0].Equal(books(20)))
}

func TestStateCache_Reset(t *testing.T) {
	c := New()
	c.AppendWish(books(20))
	c.SetBalance(decimal.NewFromInt(5))
	c.ReplaceListing([]core.Item{{ID: "a"}})

	c.Reset()
	assert.Empty(t, c.Wishes())
	assert.Empty(t, c.Listing())
	_, known := c.Balance()
	assert.False(t, known)
}

func TestStateCache_ConcurrentReaders(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			c.SetBalance(decimal.NewFromInt(n))
			c.AppendWish(books(n))
		}(int64(i))
		go func() {
			defer wg.Done()
			_ = c.Wishes()
			_, _ = c.Balance()
			_ = c.Listing()
		}()
	}
	wg.Wait()
	assert.Len(t, c.Wishes(), 8)
}
