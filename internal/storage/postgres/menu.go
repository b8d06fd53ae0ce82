package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mkrv/cafeorder/internal/domain/menu"
	"github.com/mkrv/cafeorder/internal/domain/money"
)

const (
	getMenuItemSQL = `SELECT id, category_id, name, description, price, available, popular, sort_order
	FROM menu_items WHERE id = $1`

	listCategoriesSQL = `SELECT id, name, sort_order, active
	FROM menu_categories WHERE active ORDER BY sort_order, name`

	listItemsSQL = `SELECT id, category_id, name, description, price, available, popular, sort_order
	FROM menu_items WHERE ($1 = '' OR category_id = $1) ORDER BY sort_order, name`

	upsertCategorySQL = `INSERT INTO menu_categories (id, name, sort_order, active)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sort_order = EXCLUDED.sort_order, active = EXCLUDED.active`

	upsertItemSQL = `INSERT INTO menu_items (id, category_id, name, description, price, available, popular, sort_order)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET category_id = EXCLUDED.category_id, name = EXCLUDED.name,
		description = EXCLUDED.description, price = EXCLUDED.price, available = EXCLUDED.available,
		popular = EXCLUDED.popular, sort_order = EXCLUDED.sort_order`

	setAvailabilitySQL = `UPDATE menu_items SET available = $2 WHERE id = $1`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL. Prices
// are NUMERIC major units in the database and minor units in the domain.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

func priceToMoney(d decimal.Decimal) (money.Money, error) {
	kopecks := d.Mul(decimal.NewFromInt(100))
	if !kopecks.IsInteger() {
		return money.Money{}, fmt.Errorf("price %s is not a whole number of kopecks", d)
	}
	return money.New(kopecks.IntPart(), money.RUB)
}

func moneyToPrice(m money.Money) decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(100))
}

func scanMenuItem(row pgx.CollectableRow) (menu.Item, error) {
	var (
		it    menu.Item
		price decimal.Decimal
	)
	if err := row.Scan(&it.ID, &it.CategoryID, &it.Name, &it.Description,
		&price, &it.Available, &it.Popular, &it.SortOrder); err != nil {
		return menu.Item{}, err
	}
	m, err := priceToMoney(price)
	if err != nil {
		return menu.Item{}, err
	}
	it.Price = m
	return it, nil
}

func (r *MenuRepository) ItemByID(ctx context.Context, id string) (*menu.Item, error) {
	rows, err := r.pool.Query(ctx, getMenuItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("fetching menu item %q: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanMenuItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, menu.ErrItemNotFound
		}
		return nil, fmt.Errorf("fetching menu item %q: %w", id, err)
	}
	return &it, nil
}

func (r *MenuRepository) ListCategories(ctx context.Context) ([]menu.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (menu.Category, error) {
		var c menu.Category
		err := row.Scan(&c.ID, &c.Name, &c.SortOrder, &c.Active)
		return c, err
	})
}

func (r *MenuRepository) ListItems(ctx context.Context, categoryID string) ([]menu.Item, error) {
	rows, err := r.pool.Query(ctx, listItemsSQL, categoryID)
	if err != nil {
		return nil, fmt.Errorf("listing menu items: %w", err)
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

func (r *MenuRepository) UpsertCategory(ctx context.Context, c *menu.Category) error {
	_, err := r.pool.Exec(ctx, upsertCategorySQL, c.ID, c.Name, c.SortOrder, c.Active)
	if err != nil {
		return fmt.Errorf("upserting category %q: %w", c.ID, err)
	}
	return nil
}

func (r *MenuRepository) UpsertItem(ctx context.Context, it *menu.Item) error {
	_, err := r.pool.Exec(ctx, upsertItemSQL,
		it.ID, it.CategoryID, it.Name, it.Description,
		moneyToPrice(it.Price), it.Available, it.Popular, it.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("upserting menu item %q: %w", it.ID, err)
	}
	return nil
}

func (r *MenuRepository) SetAvailability(ctx context.Context, itemID string, available bool) error {
	tag, err := r.pool.Exec(ctx, setAvailabilitySQL, itemID, available)
	if err != nil {
		return fmt.Errorf("updating availability of %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return menu.ErrItemNotFound
	}
	return nil
}
