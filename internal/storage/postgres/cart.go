package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkrv/cafeorder/internal/domain/cart"
	"github.com/mkrv/cafeorder/internal/domain/money"
)

const (
	createCartSQL = `INSERT INTO carts (id, user_id, created_at, updated_at) VALUES ($1, $2, $3, $4)`

	getCartByIDSQL     = `SELECT id, user_id, created_at, updated_at FROM carts WHERE id = $1`
	getCartByUserIDSQL = `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`

	listCartItemsSQL = `SELECT item_id, name, unit_price, quantity, comment
	FROM cart_items WHERE cart_id = $1`

	// Merge-on-add in one statement: quantities sum and cap, a non-empty
	// comment replaces the stored one.
	addCartItemSQL = `INSERT INTO cart_items (cart_id, item_id, name, unit_price, quantity, comment)
	VALUES ($1, $2, $3, $4, LEAST($5, $6), $7)
	ON CONFLICT (cart_id, item_id) DO UPDATE SET
		quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $6),
		comment = CASE WHEN EXCLUDED.comment <> '' THEN EXCLUDED.comment ELSE cart_items.comment END`

	removeCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND item_id = $2`

	updateCartItemQuantitySQL = `UPDATE cart_items SET quantity = LEAST($3, $4)
	WHERE cart_id = $1 AND item_id = $2`

	clearCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = $2 WHERE id = $1`

	cartTotalSQL = `SELECT COALESCE(SUM(unit_price * quantity), 0) FROM cart_items WHERE cart_id = $1`

	cartExistsSQL = `SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Each
// mutation is one transaction, so concurrent taps on the same cart merge
// instead of clobbering each other.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	_, err := r.pool.Exec(ctx, createCartSQL, c.ID, c.UserID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating cart %q: %w", c.ID, err)
	}
	return nil
}

func (r *CartRepository) GetByID(ctx context.Context, id string) (*cart.Cart, error) {
	return r.getOne(ctx, getCartByIDSQL, id)
}

func (r *CartRepository) GetByUserID(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.getOne(ctx, getCartByUserIDSQL, userID)
}

func (r *CartRepository) getOne(ctx context.Context, query string, arg any) (*cart.Cart, error) {
	var c cart.Cart
	err := r.pool.QueryRow(ctx, query, arg).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("fetching cart: %w", err)
	}

	rows, err := r.pool.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching cart items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var (
			it      cart.Item
			kopecks int64
		)
		if err := row.Scan(&it.ItemID, &it.Name, &kopecks, &it.Quantity, &it.Comment); err != nil {
			return cart.Item{}, err
		}
		it.UnitPrice = money.Money{Amount: kopecks, Currency: money.RUB}
		return it, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting cart items: %w", err)
	}

	c.Items = make(map[string]cart.Item, len(items))
	for _, it := range items {
		c.Items[it.ItemID] = it
	}
	return &c, nil
}

// mutate runs fn and the cart timestamp refresh in one transaction.
func (r *CartRepository) mutate(ctx context.Context, cartID string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var exists bool
	if err := tx.QueryRow(ctx, cartExistsSQL, cartID).Scan(&exists); err != nil {
		return fmt.Errorf("checking cart %q: %w", cartID, err)
	}
	if !exists {
		return cart.ErrNotFound
	}

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, touchCartSQL, cartID, time.Now()); err != nil {
		return fmt.Errorf("touching cart %q: %w", cartID, err)
	}
	return tx.Commit(ctx)
}

func (r *CartRepository) AddItem(ctx context.Context, cartID string, line cart.Item) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, addCartItemSQL,
			cartID, line.ItemID, line.Name, line.UnitPrice.Amount,
			line.Quantity, cart.MaxItemQuantity, line.Comment,
		)
		if err != nil {
			return fmt.Errorf("adding item %q to cart %q: %w", line.ItemID, cartID, err)
		}
		return nil
	})
}

func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID string) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, removeCartItemSQL, cartID, itemID); err != nil {
			return fmt.Errorf("removing item %q from cart %q: %w", itemID, cartID, err)
		}
		return nil
	})
}

func (r *CartRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID string, quantity int) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, updateCartItemQuantitySQL, cartID, itemID, quantity, cart.MaxItemQuantity)
		if err != nil {
			return fmt.Errorf("updating item %q in cart %q: %w", itemID, cartID, err)
		}
		return nil
	})
}

func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	return r.mutate(ctx, cartID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearCartItemsSQL, cartID); err != nil {
			return fmt.Errorf("clearing cart %q: %w", cartID, err)
		}
		return nil
	})
}

func (r *CartRepository) Total(ctx context.Context, cartID string) (money.Money, error) {
	var kopecks int64
	if err := r.pool.QueryRow(ctx, cartTotalSQL, cartID).Scan(&kopecks); err != nil {
		return money.Money{}, fmt.Errorf("summing cart %q: %w", cartID, err)
	}
	return money.Money{Amount: kopecks, Currency: money.RUB}, nil
}
