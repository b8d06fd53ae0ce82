package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mkrv/cafeorder/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository is an in-memory order.Repository.
type OrderRepository struct {
	mu   sync.RWMutex
	byID map[string]*order.Order
}

// NewOrderRepository creates an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{byID: make(map[string]*order.Order)}
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	if o.DeliveryInfo != nil {
		di := *o.DeliveryInfo
		cp.DeliveryInfo = &di
	}
	if o.PickupInfo != nil {
		pi := *o.PickupInfo
		cp.PickupInfo = &pi
	}
	return &cp
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) GetByUserID(_ context.Context, userID string, limit, offset int) ([]*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*order.Order
	for _, o := range r.byID {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *OrderRepository) Update(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[o.ID]; !ok {
		return order.ErrNotFound
	}
	r.byID[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) List(_ context.Context, f order.Filters) ([]*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*order.Order
	for _, o := range r.byID {
		if matches(o, f) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), nil
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status, limit, offset int) ([]*order.Order, error) {
	return r.List(ctx, order.Filters{Status: status, Limit: limit, Offset: offset})
}

func (r *OrderRepository) ListRequiringAttention(_ context.Context) ([]*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attention := make(map[order.Status]struct{}, len(order.AttentionStatuses))
	for _, s := range order.AttentionStatuses {
		attention[s] = struct{}{}
	}

	var out []*order.Order
	for _, o := range r.byID {
		if _, ok := attention[o.Status]; ok {
			out = append(out, cloneOrder(o))
		}
	}
	// Oldest first: the longest-waiting order tops the staff queue.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func matches(o *order.Order, f order.Filters) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Type != "" && o.Type != f.Type {
		return false
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if !f.DateFrom.IsZero() && o.CreatedAt.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && o.CreatedAt.After(f.DateTo) {
		return false
	}
	return true
}

func page(orders []*order.Order, limit, offset int) []*order.Order {
	if offset >= len(orders) {
		return nil
	}
	orders = orders[offset:]
	if limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	return orders
}
