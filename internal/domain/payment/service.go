package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/order"
)

// Service mediates between orders, the payment store and the provider
// gateway.
type Service struct {
	payments Repository
	orders   order.Repository
	gateway  Gateway
	now      func() time.Time
}

// NewService creates a payment Service.
func NewService(payments Repository, orders order.Repository, gateway Gateway) *Service {
	return &Service{
		payments: payments,
		orders:   orders,
		gateway:  gateway,
		now:      time.Now,
	}
}

// CreatePayment opens a provider payment for the order. If an active
// payment already exists it is returned unchanged, so a double-submit never
// charges twice. The idempotency key sent to the provider, not any local
// flag, is the source of truth for "was this already submitted".
func (s *Service) CreatePayment(ctx context.Context, o *order.Order, returnURL string) (*Payment, error) {
	existing, err := s.payments.GetActiveByOrderID(ctx, o.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "lookup active payment")
	}

	params := CreateParams{
		OrderID:        o.ID,
		Amount:         o.Total,
		Description:    fmt.Sprintf("Order #%s", o.ID),
		ReturnURL:      returnURL,
		IdempotencyKey: fmt.Sprintf("%s_%d", o.ID, s.now().Unix()),
		Metadata: map[string]string{
			"order_id":   o.ID,
			"user_id":    o.UserID,
			"order_type": string(o.Type),
		},
	}

	result, err := s.gateway.Create(ctx, params)
	if err != nil {
		return nil, &ProviderError{Op: "create", Err: err}
	}

	now := s.now()
	p := &Payment{
		ID:         result.PaymentID,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Amount:     o.Total,
		Provider:   ProviderYooKassa,
		Status:     result.Status,
		PaymentURL: result.PaymentURL,
		Metadata:   params.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		if errors.Is(err, ErrActiveExists) {
			// Lost a double-submit race after the provider call. Void the
			// extra provider payment, best effort, and hand back the one
			// that won the insert.
			_, _ = s.gateway.Cancel(ctx, p.ID)
			winner, lookupErr := s.payments.GetActiveByOrderID(ctx, o.ID)
			if lookupErr != nil {
				return nil, errors.Wrap(lookupErr, "lookup winning payment")
			}
			return winner, nil
		}
		return nil, errors.Wrap(err, "persist payment")
	}
	return p, nil
}

// GetPaymentStatus polls the provider for the live status and persists any
// change, applying the order side effect on success.
func (s *Service) GetPaymentStatus(ctx context.Context, paymentID string) (*Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get payment")
	}

	result, err := s.gateway.Status(ctx, paymentID)
	if err != nil {
		return nil, &ProviderError{Op: "status", Err: err}
	}
	if result.Status == p.Status {
		return p, nil
	}

	return s.applyStatus(ctx, p, result.Status)
}

// ProcessWebhook reconciles a provider callback. The payload must carry
// object.id and a known object.status; anything else fails closed with
// ErrMalformedWebhook. A succeeded payment advances the linked order to
// confirmed; no other external trigger auto-advances order status.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte) (*Payment, error) {
	providerID, providerStatus, err := parseWebhook(payload)
	if err != nil {
		return nil, err
	}

	status, ok := FromProviderStatus(providerStatus)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedWebhook, "unknown status %q", providerStatus)
	}

	p, err := s.payments.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get payment")
	}
	if p.Status == status {
		return p, nil
	}

	return s.applyStatus(ctx, p, status)
}

// applyStatus marks the linked order paid first, then persists the new
// payment status. Order first: if the order write fails the payment keeps
// its previous status, so the next webhook delivery or poll re-enters this
// path instead of stranding a completed payment on an unpaid order.
func (s *Service) applyStatus(ctx context.Context, p *Payment, status Status) (*Payment, error) {
	if status == StatusCompleted {
		o, err := s.orders.GetByID(ctx, p.OrderID)
		if err != nil {
			return nil, errors.Wrap(err, "get linked order")
		}
		o.SetPaymentStatus(order.PaymentStatusCompleted)
		// A poll may race the webhook: advance only when the order is
		// still waiting for confirmation.
		if o.Status.CanTransitionTo(order.StatusConfirmed, o.Type) {
			if err := o.ApplyStatus(order.StatusConfirmed); err != nil {
				return nil, err
			}
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return nil, errors.Wrap(err, "update linked order")
		}
	}

	p.SetStatus(status)
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update payment")
	}
	return p, nil
}

// CancelPayment cancels an active payment via the provider. It returns
// false, without error, when the payment is unknown or no longer
// cancellable: those are expected user-triggered no-ops.
func (s *Service) CancelPayment(ctx context.Context, paymentID string) (bool, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "get payment")
	}
	if !p.Status.CanBeCancelled() {
		return false, nil
	}

	ok, err := s.gateway.Cancel(ctx, paymentID)
	if err != nil {
		return false, &ProviderError{Op: "cancel", Err: err}
	}
	if !ok {
		return false, nil
	}

	p.SetStatus(StatusCancelled)
	if err := s.payments.Update(ctx, p); err != nil {
		return false, errors.Wrap(err, "update payment")
	}
	return true, nil
}

// RefundPayment refunds a completed payment, fully when amount is nil.
// Like CancelPayment, unmet preconditions report false without error.
func (s *Service) RefundPayment(ctx context.Context, paymentID string, amount *money.Money) (bool, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "get payment")
	}
	if !p.Status.CanBeRefunded() {
		return false, nil
	}

	refund := p.Amount
	if amount != nil {
		refund = *amount
	}
	ok, err := s.gateway.Refund(ctx, paymentID, &refund)
	if err != nil {
		return false, &ProviderError{Op: "refund", Err: err}
	}
	if !ok {
		return false, nil
	}

	p.SetStatus(StatusRefunded)
	if err := s.payments.Update(ctx, p); err != nil {
		return false, errors.Wrap(err, "update payment")
	}
	return true, nil
}

// PaymentURL returns the stored redirect URL for a payment, or empty when
// the payment is unknown.
func (s *Service) PaymentURL(ctx context.Context, paymentID string) (string, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "get payment")
	}
	return p.PaymentURL, nil
}

// parseWebhook extracts object.id and object.status from a provider
// callback body.
func parseWebhook(payload []byte) (id, status string, err error) {
	d := jx.DecodeBytes(payload)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "object" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				v, err := d.Str()
				if err != nil {
					return err
				}
				id = v
				return nil
			case "status":
				v, err := d.Str()
				if err != nil {
					return err
				}
				status = v
				return nil
			default:
				return d.Skip()
			}
		})
	}); err != nil {
		return "", "", errors.Wrap(ErrMalformedWebhook, err.Error())
	}
	if id == "" {
		return "", "", errors.Wrap(ErrMalformedWebhook, "missing object.id")
	}
	return id, status, nil
}
