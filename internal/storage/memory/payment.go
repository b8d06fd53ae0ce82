package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mkrv/cafeorder/internal/domain/payment"
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository is an in-memory payment.Repository.
type PaymentRepository struct {
	mu   sync.RWMutex
	byID map[string]*payment.Payment
}

// NewPaymentRepository creates an empty PaymentRepository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{byID: make(map[string]*payment.Payment)}
}

func clonePayment(p *payment.Payment) *payment.Payment {
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (r *PaymentRepository) Create(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Status.IsActive() {
		for _, existing := range r.byID {
			if existing.OrderID == p.OrderID && existing.Status.IsActive() {
				return payment.ErrActiveExists
			}
		}
	}
	r.byID[p.ID] = clonePayment(p)
	return nil
}

func (r *PaymentRepository) GetByID(_ context.Context, id string) (*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepository) GetActiveByOrderID(_ context.Context, orderID string) (*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byID {
		if p.OrderID == orderID && p.Status.IsActive() {
			return clonePayment(p), nil
		}
	}
	return nil, payment.ErrNotFound
}

func (r *PaymentRepository) Update(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.ID]; !ok {
		return payment.ErrNotFound
	}
	r.byID[p.ID] = clonePayment(p)
	return nil
}

func (r *PaymentRepository) ListActive(_ context.Context, updatedBefore time.Time, limit int) ([]*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*payment.Payment
	for _, p := range r.byID {
		if p.Status.IsActive() && p.UpdatedAt.Before(updatedBefore) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
