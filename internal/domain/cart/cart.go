// Package cart implements the per-user pre-checkout basket.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/mkrv/cafeorder/internal/domain/money"
)

// MaxItemQuantity is the server-side bound on a single line quantity.
// The bot UI clamps earlier, but the bound is enforced here as well.
const MaxItemQuantity = 99

var (
	// ErrNotFound is returned when a user has no cart yet.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidQuantity is returned for non-positive add quantities and
	// negative update quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Item is a cart line: a menu item reference with the name and unit price
// snapshotted at add time, so the cart renders consistently even while the
// menu is being edited.
type Item struct {
	ItemID    string
	Name      string
	UnitPrice money.Money
	Quantity  int
	Comment   string
}

// TotalPrice returns unit price times quantity.
func (it Item) TotalPrice() money.Money {
	total, err := it.UnitPrice.MulInt(int64(it.Quantity))
	if err != nil {
		// Quantity is bounded to [0, MaxItemQuantity] by the aggregate.
		panic(err)
	}
	return total
}

// Cart is a user's mutable basket. Each menu item appears at most once;
// repeat adds merge quantities.
type Cart struct {
	ID        string
	UserID    string
	Items     map[string]Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns an empty cart for the given user.
func New(id, userID string) *Cart {
	now := time.Now()
	return &Cart{
		ID:        id,
		UserID:    userID,
		Items:     make(map[string]Item),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddItem merges the given line into the cart. Quantities add; a non-empty
// comment replaces the stored one. The merged quantity is capped at
// MaxItemQuantity.
func (c *Cart) AddItem(line Item) {
	if existing, ok := c.Items[line.ItemID]; ok {
		existing.Quantity += line.Quantity
		if existing.Quantity > MaxItemQuantity {
			existing.Quantity = MaxItemQuantity
		}
		if line.Comment != "" {
			existing.Comment = line.Comment
		}
		c.Items[line.ItemID] = existing
	} else {
		if line.Quantity > MaxItemQuantity {
			line.Quantity = MaxItemQuantity
		}
		c.Items[line.ItemID] = line
	}
	c.UpdatedAt = time.Now()
}

// RemoveItem deletes a line. Removing an absent item is a no-op.
func (c *Cart) RemoveItem(itemID string) {
	if _, ok := c.Items[itemID]; !ok {
		return
	}
	delete(c.Items, itemID)
	c.UpdatedAt = time.Now()
}

// SetQuantity sets a line's quantity in place. Zero removes the line;
// values above MaxItemQuantity are capped. Absent items are a no-op.
func (c *Cart) SetQuantity(itemID string, quantity int) {
	it, ok := c.Items[itemID]
	if !ok {
		return
	}
	if quantity <= 0 {
		c.RemoveItem(itemID)
		return
	}
	if quantity > MaxItemQuantity {
		quantity = MaxItemQuantity
	}
	it.Quantity = quantity
	c.Items[itemID] = it
	c.UpdatedAt = time.Now()
}

// Clear empties the cart without deleting it.
func (c *Cart) Clear() {
	c.Items = make(map[string]Item)
	c.UpdatedAt = time.Now()
}

// TotalPrice sums all line totals.
func (c *Cart) TotalPrice() money.Money {
	total := money.Zero(money.RUB)
	for _, it := range c.Items {
		sum, err := total.Add(it.TotalPrice())
		if err != nil {
			panic(err) // all cart lines are RUB
		}
		total = sum
	}
	return total
}

// TotalItems returns the summed quantity across all lines.
func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Repository defines cart persistence. Implementations must make each
// mutation a single transaction: callers re-fetch state before mutating, so
// two rapid taps on the same cart never produce a partial update.
type Repository interface {
	Create(ctx context.Context, c *Cart) error
	GetByID(ctx context.Context, id string) (*Cart, error)
	GetByUserID(ctx context.Context, userID string) (*Cart, error)
	AddItem(ctx context.Context, cartID string, line Item) error
	RemoveItem(ctx context.Context, cartID, itemID string) error
	UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error
	Clear(ctx context.Context, cartID string) error
	Total(ctx context.Context, cartID string) (money.Money, error)
}
