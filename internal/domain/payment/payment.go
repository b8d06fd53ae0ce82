// Package payment ties orders to provider payments: at most one active
// payment per order, idempotent creation, and reconciliation of provider
// callbacks into order payment status.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/mkrv/cafeorder/internal/domain/money"
)

var (
	// ErrNotFound is returned when a requested payment does not exist.
	ErrNotFound = errors.New("payment not found")
	// ErrMalformedWebhook is returned when a webhook payload lacks the
	// provider payment id or carries an unknown status. Unrecognized
	// shapes fail closed, never silently ignored.
	ErrMalformedWebhook = errors.New("malformed webhook payload")
	// ErrActiveExists is returned by Repository.Create when the order
	// already holds a pending or processing payment. The store enforces
	// this, not the service: two concurrent submits must not both insert.
	ErrActiveExists = errors.New("order already has an active payment")
)

// ProviderError wraps a failed or errored gateway call. The payment is left
// in its last-known-good state when this is returned.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Status is the payment lifecycle state. Completed, failed, cancelled and
// refunded are terminal; pending and processing are active.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// IsActive reports whether the payment is still in flight.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}

// CanBeCancelled reports whether cancellation is still possible.
func (s Status) CanBeCancelled() bool {
	return s.IsActive()
}

// CanBeRefunded reports whether the payment can be refunded.
func (s Status) CanBeRefunded() bool {
	return s == StatusCompleted
}

// FromProviderStatus maps a provider status string to the internal Status.
// The second return is false for statuses this system does not know.
func FromProviderStatus(s string) (Status, bool) {
	switch s {
	case "pending":
		return StatusPending, true
	case "waiting_for_capture":
		return StatusProcessing, true
	case "succeeded":
		return StatusCompleted, true
	case "canceled":
		return StatusCancelled, true
	default:
		return "", false
	}
}

// Provider identifies the payment integration a payment went through.
type Provider string

const (
	ProviderYooKassa Provider = "yookassa"
)

// Payment links an order to a provider payment. PaymentURL is the redirect
// the customer completes the payment at.
type Payment struct {
	ID            string
	OrderID       string
	UserID        string
	Amount        money.Money
	Provider      Provider
	Status        Status
	TransactionID string
	PaymentURL    string
	ErrorMessage  string
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SetStatus updates the status and refreshes UpdatedAt.
func (p *Payment) SetStatus(s Status) {
	p.Status = s
	p.UpdatedAt = time.Now()
}

// Repository defines payment persistence.
type Repository interface {
	// Create inserts a payment. It returns ErrActiveExists when the
	// order already has an active payment, serializing double-submits.
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	// GetActiveByOrderID returns the order's pending or processing
	// payment, or ErrNotFound when none is active.
	GetActiveByOrderID(ctx context.Context, orderID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	// ListActive returns payments still pending or processing that were
	// last updated before the cutoff, for the status poller.
	ListActive(ctx context.Context, updatedBefore time.Time, limit int) ([]*Payment, error)
}

// CreateParams is the gateway request to open a payment. Amount crosses the
// boundary as Money; the gateway converts to the provider's decimal
// major-unit representation.
type CreateParams struct {
	OrderID        string
	Amount         money.Money
	Description    string
	ReturnURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// CreateResult is the provider's answer to a create call.
type CreateResult struct {
	PaymentID  string
	PaymentURL string
	Status     Status
}

// StatusResult is the provider's answer to a status poll.
type StatusResult struct {
	PaymentID string
	Status    Status
	Amount    money.Money
	Metadata  map[string]string
}

// Gateway is the payment-provider contract. Implementations apply their own
// request timeouts; on timeout the caller leaves the payment pending and a
// later poll or webhook resolves the ambiguity.
type Gateway interface {
	Create(ctx context.Context, params CreateParams) (*CreateResult, error)
	Status(ctx context.Context, paymentID string) (*StatusResult, error)
	Cancel(ctx context.Context, paymentID string) (bool, error)
	Refund(ctx context.Context, paymentID string, amount *money.Money) (bool, error)
}
