package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Category is the closed set of item categories a marketplace accepts
type Category int

const (
	CategoryUnknown Category = iota
	CategoryBooks
	CategoryElectronics
	CategoryClothing
	CategoryHome
	CategorySports
	CategoryToys
	CategoryOther
)

var categoryNames = map[Category]string{
	CategoryBooks:       "Books",
	CategoryElectronics: "Electronics",
	CategoryClothing:    "Clothing",
	CategoryHome:        "Home",
	CategorySports:      "Sports",
	CategoryToys:        "Toys",
	CategoryOther:       "Other",
}

// Categories returns every valid category in declaration order
func Categories() []Category {
	return []Category{
		CategoryBooks,
		CategoryElectronics,
		CategoryClothing,
		CategoryHome,
		CategorySports,
		CategoryToys,
		CategoryOther,
	}
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether c belongs to the closed category set
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory parses a category name case-insensitively
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown category %q", s)
}

// MarshalText encodes the category by name so wire formats stay readable
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Item is an immutable marketplace listing
type Item struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category Category        `json:"category"`
	Seller   string          `json:"seller"`
}

func (i Item) String() string {
	return fmt.Sprintf("%s (%s, %s) by %s", i.Name, i.Category, i.Price.StringFixed(2), i.Seller)
}

// ItemWish is a standing order for any item of Category priced at or below MaxPrice
type ItemWish struct {
	Category Category        `json:"category"`
	MaxPrice decimal.Decimal `json:"max_price"`
}

// Equal compares wishes structurally
func (w ItemWish) Equal(other ItemWish) bool {
	return w.Category == other.Category && w.MaxPrice.Equal(other.MaxPrice)
}

func (w ItemWish) String() string {
	return fmt.Sprintf("%s (max: %s)", w.Category, w.MaxPrice.StringFixed(2))
}

// SessionState is the lifecycle state of a marketplace session
type SessionState int

const (
	StateUnregistered SessionState = iota
	StateRegistering
	StateRegistered
	StateUnregistering
)

func (s SessionState) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateRegistering:
		return "REGISTERING"
	case StateRegistered:
		return "REGISTERED"
	case StateUnregistering:
		return "UNREGISTERING"
	default:
		return "UNKNOWN"
	}
}

// LogLevel classifies observer log events
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEvent is a user-facing message emitted to the observer
type LogEvent struct {
	Level   LogLevel `json:"level"`
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	ItemID  string   `json:"item_id,omitempty"`
}

// Log event kinds
const (
	KindItemSold       = "item_sold"
	KindItemPurchased  = "item_purchased"
	KindWishAvailable  = "wish_available"
	KindWishFulfilled  = "wish_fulfilled"
	KindLackOfFunds    = "lack_of_funds"
	KindRemoteFault    = "remote_fault"
	KindOperationError = "operation_error"
	KindSession        = "session"
)
