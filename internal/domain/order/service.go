package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/mkrv/cafeorder/internal/domain/cart"
	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/user"
)

// FeePolicy is the flat delivery fee, waived when the subtotal reaches
// FreeOver. A zero policy charges nothing.
type FeePolicy struct {
	Fee      money.Money
	FreeOver money.Money
}

// deliveryFee returns the fee owed for the given subtotal.
func (p FeePolicy) deliveryFee(subtotal money.Money) money.Money {
	if p.Fee.IsZero() {
		return money.Zero(money.RUB)
	}
	if !p.FreeOver.IsZero() && !subtotal.LessThan(p.FreeOver) {
		return money.Zero(money.RUB)
	}
	return p.Fee
}

// CreateRequest is the input for converting a cart into an order.
// DeliveryFee, when set, overrides the service fee policy; Discount
// defaults to zero.
type CreateRequest struct {
	TelegramID    int64
	Type          Type
	PaymentMethod PaymentMethod
	DeliveryInfo  *DeliveryInfo
	PickupInfo    *PickupInfo
	Comment       string
	DeliveryFee   *money.Money
	Discount      money.Money
}

// Service converts validated carts into orders and governs status
// transitions.
type Service struct {
	orders Repository
	carts  cart.Repository
	users  user.Repository
	fees   FeePolicy
}

// NewService creates an order Service with the given delivery fee policy.
func NewService(orders Repository, carts cart.Repository, users user.Repository, fees FeePolicy) *Service {
	return &Service{
		orders: orders,
		carts:  carts,
		users:  users,
		fees:   fees,
	}
}

// CreateOrderFromCart snapshots the user's cart into a pending order.
//
// The cart is NOT cleared here: clearing is the caller's explicit follow-up
// once downstream steps (payment creation) succeed, so a failure leaves the
// cart intact for retry.
func (s *Service) CreateOrderFromCart(ctx context.Context, req CreateRequest) (*Order, error) {
	u, err := user.Ensure(ctx, s.users, req.TelegramID)
	if err != nil {
		return nil, err
	}

	c, err := s.carts.GetByUserID(ctx, u.ID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	now := time.Now()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        u.ID,
		Type:          req.Type,
		Status:        StatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentStatusPending,
		Discount:      req.Discount,
		DeliveryInfo:  req.DeliveryInfo,
		PickupInfo:    req.PickupInfo,
		Comment:       req.Comment,
		Timeline:      Timeline{CreatedAt: now},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if o.Discount.Currency == "" {
		o.Discount = money.Zero(money.RUB)
	}

	// Freeze names and prices at this instant.
	for _, line := range c.Items {
		o.Items = append(o.Items, Item{
			ID:        uuid.New().String(),
			ItemID:    line.ItemID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Comment:   line.Comment,
		})
	}

	o.Subtotal = o.ItemsTotal()
	switch {
	case req.DeliveryFee != nil:
		o.DeliveryFee = *req.DeliveryFee
	case o.Type == TypeDelivery:
		o.DeliveryFee = s.fees.deliveryFee(o.Subtotal)
	default:
		o.DeliveryFee = money.Zero(money.RUB)
	}
	o.CalculateTotal()

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// GetOrder returns an order by ID.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// UserOrders lists a user's orders, newest first.
func (s *Service) UserOrders(ctx context.Context, userID string, limit, offset int) ([]*Order, error) {
	return s.orders.GetByUserID(ctx, userID, limit, offset)
}

// UpdateOrderStatus transitions an order to newStatus, rejecting anything
// the transition table does not allow. The stored status is unchanged on
// rejection.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, newStatus Status) (*Order, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.ApplyStatus(newStatus); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// CancelOrder cancels an order still in pending or confirmed. A non-empty
// reason overwrites the order comment.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (*Order, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanBeCancelled() {
		return nil, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusCancelled}
	}
	if err := o.ApplyStatus(StatusCancelled); err != nil {
		return nil, err
	}
	if reason != "" {
		o.Comment = reason
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// UpdateComment edits the order comment; only pending orders are editable.
func (s *Service) UpdateComment(ctx context.Context, orderID, comment string) (*Order, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanBeModified() {
		return nil, ErrNotModifiable
	}
	o.Comment = comment
	o.UpdatedAt = time.Now()
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// ListOrders lists orders matching the filters.
func (s *Service) ListOrders(ctx context.Context, f Filters) ([]*Order, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return s.orders.List(ctx, f)
}

// OrdersRequiringAttention returns the staff work queue: every order in a
// non-terminal status, oldest first.
func (s *Service) OrdersRequiringAttention(ctx context.Context) ([]*Order, error) {
	return s.orders.ListRequiringAttention(ctx)
}

// CalculateOrderTotal re-derives an order total from its snapshots without
// touching stored state. Used for reconciliation against the stored total.
func (s *Service) CalculateOrderTotal(o *Order) money.Money {
	subtotal := o.ItemsTotal()
	total, err := subtotal.Add(o.DeliveryFee)
	if err != nil {
		panic(err)
	}
	if total.LessThan(o.Discount) {
		return money.Zero(total.Currency)
	}
	total, _ = total.Sub(o.Discount)
	return total
}
