package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mkrv/cafeorder/internal/domain/cart"
	"github.com/mkrv/cafeorder/internal/domain/money"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository is an in-memory cart.Repository. Every mutation happens
// under one lock acquisition, matching the one-transaction-per-mutation
// guarantee of the postgres implementation.
type CartRepository struct {
	mu     sync.RWMutex
	byID   map[string]*cart.Cart
	byUser map[string]string
}

// NewCartRepository creates an empty CartRepository.
func NewCartRepository() *CartRepository {
	return &CartRepository{
		byID:   make(map[string]*cart.Cart),
		byUser: make(map[string]string),
	}
}

func cloneCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = make(map[string]cart.Item, len(c.Items))
	for k, v := range c.Items {
		cp.Items[k] = v
	}
	return &cp
}

func (r *CartRepository) Create(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[c.ID] = cloneCart(c)
	r.byUser[c.UserID] = c.ID
	return nil
}

func (r *CartRepository) GetByID(_ context.Context, id string) (*cart.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return cloneCart(c), nil
}

func (r *CartRepository) GetByUserID(_ context.Context, userID string) (*cart.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUser[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return cloneCart(r.byID[id]), nil
}

func (r *CartRepository) AddItem(_ context.Context, cartID string, line cart.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[cartID]
	if !ok {
		return cart.ErrNotFound
	}
	c.AddItem(line)
	return nil
}

func (r *CartRepository) RemoveItem(_ context.Context, cartID, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[cartID]
	if !ok {
		return cart.ErrNotFound
	}
	c.RemoveItem(itemID)
	return nil
}

func (r *CartRepository) UpdateItemQuantity(_ context.Context, cartID, itemID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[cartID]
	if !ok {
		return cart.ErrNotFound
	}
	c.SetQuantity(itemID, quantity)
	return nil
}

func (r *CartRepository) Clear(_ context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[cartID]
	if !ok {
		return cart.ErrNotFound
	}
	c.Items = make(map[string]cart.Item)
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CartRepository) Total(_ context.Context, cartID string) (money.Money, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[cartID]
	if !ok {
		return money.Money{}, cart.ErrNotFound
	}
	return c.TotalPrice(), nil
}
