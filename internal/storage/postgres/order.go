package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/order"
)

const (
	orderColumns = `id, user_id, type, status, payment_method, payment_status,
	items, subtotal, delivery_fee, discount, total, currency,
	delivery_info, pickup_info, comment, timeline, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	updateOrderSQL = `UPDATE orders SET
	status = $2, payment_status = $3, subtotal = $4, delivery_fee = $5, discount = $6,
	total = $7, delivery_info = $8, pickup_info = $9, comment = $10, timeline = $11, updated_at = $12
	WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE ($1 = '' OR status = $1)
	  AND ($2 = '' OR type = $2)
	  AND ($3 = '' OR payment_status = $3)
	  AND ($4 = '' OR user_id = $4)
	  AND ($5::timestamptz IS NULL OR created_at >= $5)
	  AND ($6::timestamptz IS NULL OR created_at <= $6)
	ORDER BY created_at DESC LIMIT $7 OFFSET $8`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	listAttentionSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE status = ANY($1) ORDER BY created_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Item
// snapshots, fulfilment info and the timeline are JSONB documents; money
// columns are minor units.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, info, pickup, timeline, err := marshalOrder(o)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.Type, o.Status, o.PaymentMethod, o.PaymentStatus,
		items, o.Subtotal.Amount, o.DeliveryFee.Amount, o.Discount.Amount, o.Total.Amount, o.Total.Currency,
		info, pickup, o.Comment, timeline, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("fetching order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("fetching order %q: %w", id, err)
	}
	return o, nil
}

func (r *OrderRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, getOrdersByUserSQL, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	_, info, pickup, timeline, err := marshalOrder(o)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, o.Status, o.PaymentStatus,
		o.Subtotal.Amount, o.DeliveryFee.Amount, o.Discount.Amount, o.Total.Amount,
		info, pickup, o.Comment, timeline, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) List(ctx context.Context, f order.Filters) ([]*order.Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var dateFrom, dateTo any
	if !f.DateFrom.IsZero() {
		dateFrom = f.DateFrom
	}
	if !f.DateTo.IsZero() {
		dateTo = f.DateTo
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL,
		f.Status, f.Type, f.PaymentStatus, f.UserID, dateFrom, dateTo, limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status, limit, offset int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, listOrdersByStatusSQL, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing %s orders: %w", status, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) ListRequiringAttention(ctx context.Context) ([]*order.Order, error) {
	statuses := make([]string, len(order.AttentionStatuses))
	for i, s := range order.AttentionStatuses {
		statuses[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, listAttentionSQL, statuses)
	if err != nil {
		return nil, fmt.Errorf("listing attention queue: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func marshalOrder(o *order.Order) (items, deliveryInfo, pickupInfo, timeline []byte, err error) {
	items, err = json.Marshal(o.Items)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshaling order items: %w", err)
	}
	if o.DeliveryInfo != nil {
		deliveryInfo, err = json.Marshal(o.DeliveryInfo)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshaling delivery info: %w", err)
		}
	}
	if o.PickupInfo != nil {
		pickupInfo, err = json.Marshal(o.PickupInfo)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshaling pickup info: %w", err)
		}
	}
	timeline, err = json.Marshal(o.Timeline)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshaling timeline: %w", err)
	}
	return items, deliveryInfo, pickupInfo, timeline, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o        order.Order
		items    []byte
		info     []byte
		pickup   []byte
		timeline []byte
		currency string

		subtotal, fee, discount, total int64
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &o.Type, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&items, &subtotal, &fee, &discount, &total, &currency,
		&info, &pickup, &o.Comment, &timeline, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if len(info) > 0 {
		o.DeliveryInfo = &order.DeliveryInfo{}
		if err := json.Unmarshal(info, o.DeliveryInfo); err != nil {
			return nil, fmt.Errorf("unmarshaling delivery info: %w", err)
		}
	}
	if len(pickup) > 0 {
		o.PickupInfo = &order.PickupInfo{}
		if err := json.Unmarshal(pickup, o.PickupInfo); err != nil {
			return nil, fmt.Errorf("unmarshaling pickup info: %w", err)
		}
	}
	if err := json.Unmarshal(timeline, &o.Timeline); err != nil {
		return nil, fmt.Errorf("unmarshaling timeline: %w", err)
	}

	cur := money.Currency(currency)
	o.Subtotal = money.Money{Amount: subtotal, Currency: cur}
	o.DeliveryFee = money.Money{Amount: fee, Currency: cur}
	o.Discount = money.Money{Amount: discount, Currency: cur}
	o.Total = money.Money{Amount: total, Currency: cur}
	return &o, nil
}
