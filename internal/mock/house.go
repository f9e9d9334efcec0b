package mock

import (
	"context"
	"fmt"

	"market_client/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HouseName is the seller of the sandbox catalogue
const HouseName = "house"

// Catalogue returns a small listing sold by the house
func Catalogue() []core.Item {
	item := func(name string, category core.Category, price int64) core.Item {
		return core.Item{
			ID:       uuid.NewString(),
			Name:     name,
			Price:    decimal.NewFromInt(price),
			Category: category,
			Seller:   HouseName,
		}
	}
	return []core.Item{
		item("Dune", core.CategoryBooks, 15),
		item("The Left Hand of Darkness", core.CategoryBooks, 12),
		item("Noise Cancelling Headphones", core.CategoryElectronics, 180),
		item("Rain Jacket", core.CategoryClothing, 65),
		item("Cast Iron Pan", core.CategoryHome, 40),
		item("Tennis Racket", core.CategorySports, 90),
		item("Wooden Train Set", core.CategoryToys, 35),
	}
}

// OpenHouse registers the house participant and lists items on market
func OpenHouse(ctx context.Context, bank *Bank, market *Marketplace, items []core.Item) error {
	account, err := bank.NewAccount(ctx, HouseName)
	if err != nil {
		return fmt.Errorf("house account: %w", err)
	}
	if err := market.Register(ctx, HouseName, "The House", account, silentListener{}); err != nil {
		return fmt.Errorf("house registration: %w", err)
	}
	for _, item := range items {
		item.Seller = HouseName
		if err := market.AddItem(ctx, item); err != nil {
			return fmt.Errorf("list %q: %w", item.Name, err)
		}
	}
	return nil
}

// silentListener accepts and ignores every notification
type silentListener struct{}

func (silentListener) OnItemSold(core.Item) error        { return nil }
func (silentListener) OnItemPurchased(core.Item) error   { return nil }
func (silentListener) OnWishNotify(core.Item) error      { return nil }
func (silentListener) OnLackOfFunds() error              { return nil }
func (silentListener) OnListingUpdate([]core.Item) error { return nil }
func (silentListener) OnException(string) error          { return nil }
