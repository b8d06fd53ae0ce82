// Package menu holds the catalog entities the ordering core prices against.
package menu

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/mkrv/cafeorder/internal/domain/money"
)

// ErrItemNotFound is returned when a requested menu item does not exist.
var ErrItemNotFound = errors.New("menu item not found")

// Category groups menu items on the customer-facing menu.
type Category struct {
	ID        string
	Name      string
	SortOrder int
	Active    bool
}

// Item is a sellable menu position. Price is the current catalog price;
// carts and orders snapshot it at add/checkout time.
type Item struct {
	ID          string
	CategoryID  string
	Name        string
	Description string
	Price       money.Money
	Available   bool
	Popular     bool
	SortOrder   int
}

// Catalog is the narrow read contract the ordering core depends on.
type Catalog interface {
	ItemByID(ctx context.Context, id string) (*Item, error)
}

// Repository defines full catalog persistence, including the admin-side
// mutations. It satisfies Catalog.
type Repository interface {
	Catalog

	ListCategories(ctx context.Context) ([]Category, error)
	ListItems(ctx context.Context, categoryID string) ([]Item, error)
	UpsertCategory(ctx context.Context, c *Category) error
	UpsertItem(ctx context.Context, it *Item) error
	SetAvailability(ctx context.Context, itemID string, available bool) error
}
