package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/payment"
)

const (
	paymentColumns = `id, order_id, user_id, amount, currency, provider, status,
	transaction_id, payment_url, error_message, metadata, created_at, updated_at`

	createPaymentSQL = `INSERT INTO payments (` + paymentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	getActivePaymentSQL = `SELECT ` + paymentColumns + ` FROM payments
	WHERE order_id = $1 AND status IN ('pending', 'processing')
	ORDER BY created_at DESC LIMIT 1`

	updatePaymentSQL = `UPDATE payments SET
	status = $2, transaction_id = $3, payment_url = $4, error_message = $5, metadata = $6, updated_at = $7
	WHERE id = $1`

	listActivePaymentsSQL = `SELECT ` + paymentColumns + ` FROM payments
	WHERE status IN ('pending', 'processing') AND updated_at < $1
	ORDER BY updated_at LIMIT $2`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling payment metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, createPaymentSQL,
		p.ID, p.OrderID, p.UserID, p.Amount.Amount, p.Amount.Currency, p.Provider, p.Status,
		p.TransactionID, p.PaymentURL, p.ErrorMessage, metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		// The partial unique index on (order_id) for active statuses turns
		// a concurrent double-submit into a constraint violation here.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "payments_one_active_idx" {
			return payment.ErrActiveExists
		}
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getOne(ctx, getPaymentSQL, id)
}

func (r *PaymentRepository) GetActiveByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.getOne(ctx, getActivePaymentSQL, orderID)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg any) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("fetching payment: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("fetching payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling payment metadata: %w", err)
	}

	tag, err := r.pool.Exec(ctx, updatePaymentSQL,
		p.ID, p.Status, p.TransactionID, p.PaymentURL, p.ErrorMessage, metadata, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating payment %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) ListActive(ctx context.Context, updatedBefore time.Time, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, listActivePaymentsSQL, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("listing active payments: %w", err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

func scanPayment(row pgx.CollectableRow) (*payment.Payment, error) {
	var (
		p        payment.Payment
		amount   int64
		currency string
		metadata []byte
	)
	if err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &amount, &currency, &p.Provider, &p.Status,
		&p.TransactionID, &p.PaymentURL, &p.ErrorMessage, &metadata, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling payment metadata: %w", err)
		}
	}
	p.Amount = money.Money{Amount: amount, Currency: money.Currency(currency)}
	return &p, nil
}
