package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/mkrv/cafeorder/internal/domain/menu"
	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/user"
)

// Service orchestrates cart mutation against the catalog and the cart store.
// All methods identify the caller by Telegram ID and register first-contact
// users transparently.
type Service struct {
	carts   Repository
	catalog menu.Catalog
	users   user.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, catalog menu.Catalog, users user.Repository) *Service {
	return &Service{
		carts:   carts,
		catalog: catalog,
		users:   users,
	}
}

// GetOrCreateCart fetches the user's cart, creating an empty one on first
// use. Idempotent per user: repeat calls return the same cart.
func (s *Service) GetOrCreateCart(ctx context.Context, telegramID int64) (*Cart, error) {
	u, err := user.Ensure(ctx, s.users, telegramID)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.GetByUserID(ctx, u.ID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get cart")
	}

	c = New(uuid.New().String(), u.ID)
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// AddItem resolves the menu item, snapshots its name and price into a cart
// line, and merges it into the user's cart. Availability is not checked
// here; it can change between add and checkout, so Validate gates it then.
func (s *Service) AddItem(ctx context.Context, telegramID int64, itemID string, quantity int, comment string) (*Cart, error) {
	if quantity < 1 {
		return nil, errors.Wrapf(ErrInvalidQuantity, "add %d", quantity)
	}

	c, err := s.GetOrCreateCart(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	it, err := s.catalog.ItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, menu.ErrItemNotFound) {
			return nil, menu.ErrItemNotFound
		}
		return nil, errors.Wrap(err, "resolve menu item")
	}

	line := Item{
		ItemID:    it.ID,
		Name:      it.Name,
		UnitPrice: it.Price,
		Quantity:  quantity,
		Comment:   comment,
	}
	if err := s.carts.AddItem(ctx, c.ID, line); err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}

	return s.carts.GetByID(ctx, c.ID)
}

// RemoveItem removes a line from the user's cart. Removing an item that is
// not in the cart is a no-op, not an error.
func (s *Service) RemoveItem(ctx context.Context, telegramID int64, itemID string) (*Cart, error) {
	c, err := s.GetOrCreateCart(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.RemoveItem(ctx, c.ID, itemID); err != nil {
		return nil, errors.Wrap(err, "remove cart item")
	}
	return s.carts.GetByID(ctx, c.ID)
}

// UpdateQuantity sets a line quantity. Zero removes the line; negative
// values are rejected.
func (s *Service) UpdateQuantity(ctx context.Context, telegramID int64, itemID string, quantity int) (*Cart, error) {
	if quantity < 0 {
		return nil, errors.Wrapf(ErrInvalidQuantity, "update to %d", quantity)
	}

	c, err := s.GetOrCreateCart(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if quantity == 0 {
		if err := s.carts.RemoveItem(ctx, c.ID, itemID); err != nil {
			return nil, errors.Wrap(err, "remove cart item")
		}
	} else {
		if err := s.carts.UpdateItemQuantity(ctx, c.ID, itemID, quantity); err != nil {
			return nil, errors.Wrap(err, "update cart item")
		}
	}
	return s.carts.GetByID(ctx, c.ID)
}

// Clear empties the user's cart and reports whether a cart existed. The
// cart row itself survives.
func (s *Service) Clear(ctx context.Context, telegramID int64) (bool, error) {
	u, err := user.Ensure(ctx, s.users, telegramID)
	if err != nil {
		return false, err
	}
	c, err := s.carts.GetByUserID(ctx, u.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "get cart")
	}
	if err := s.carts.Clear(ctx, c.ID); err != nil {
		return false, errors.Wrap(err, "clear cart")
	}
	return true, nil
}

// Total returns the cart total, or zero if the user has no cart.
func (s *Service) Total(ctx context.Context, telegramID int64) (money.Money, error) {
	u, err := user.Ensure(ctx, s.users, telegramID)
	if err != nil {
		return money.Money{}, err
	}
	c, err := s.carts.GetByUserID(ctx, u.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return money.Zero(money.RUB), nil
		}
		return money.Money{}, errors.Wrap(err, "get cart")
	}
	return s.carts.Total(ctx, c.ID)
}

// Validate is the pre-checkout gate: it reports false when the cart is
// empty or any line refers to an item that is gone or no longer available.
func (s *Service) Validate(ctx context.Context, telegramID int64) (bool, error) {
	u, err := user.Ensure(ctx, s.users, telegramID)
	if err != nil {
		return false, err
	}
	c, err := s.carts.GetByUserID(ctx, u.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return false, nil
	}

	for itemID := range c.Items {
		it, err := s.catalog.ItemByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, menu.ErrItemNotFound) {
				return false, nil
			}
			return false, errors.Wrap(err, "resolve menu item")
		}
		if !it.Available {
			return false, nil
		}
	}
	return true, nil
}
