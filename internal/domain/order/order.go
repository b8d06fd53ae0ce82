// Package order implements the order aggregate and its status state
// machine: immutable item snapshots, the subtotal/fee/discount/total
// invariant, and a timestamped timeline stamped once per status.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/mkrv/cafeorder/internal/domain/money"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when checkout is attempted with no cart or
	// an empty one.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotModifiable is returned when items or comment are edited past
	// the pending status.
	ErrNotModifiable = errors.New("order can no longer be modified")
)

// InvalidTransitionError reports an illegal status transition attempt. The
// stored order status is left untouched when this is returned.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderID, e.From, e.To)
}

// Item is an immutable snapshot of a purchased cart line. Name and unit
// price are frozen at order creation, so later menu edits never alter
// historical orders.
type Item struct {
	ID        string      `json:"id"`
	ItemID    string      `json:"item_id"`
	Name      string      `json:"name"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
	Comment   string      `json:"comment,omitempty"`
}

// TotalPrice returns unit price times quantity.
func (it Item) TotalPrice() money.Money {
	total, err := it.UnitPrice.MulInt(int64(it.Quantity))
	if err != nil {
		panic(err) // snapshot quantities are positive
	}
	return total
}

// DeliveryInfo is the fulfilment payload for delivery orders.
type DeliveryInfo struct {
	Address   string     `json:"address"`
	Phone     string     `json:"phone"`
	Comment   string     `json:"comment,omitempty"`
	DeliverAt *time.Time `json:"deliver_at,omitempty"`
}

// PickupInfo is the fulfilment payload for pickup orders.
type PickupInfo struct {
	Phone    string     `json:"phone"`
	PickupAt *time.Time `json:"pickup_at,omitempty"`
	Comment  string     `json:"comment,omitempty"`
}

// Timeline records when each status was first reached. Every field is set
// exactly once and never reset; pickup fulfilment shares the DeliveredAt
// slot with delivery.
type Timeline struct {
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	PreparingAt *time.Time `json:"preparing_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// stamp records the first time a status is reached. Re-stamping is a no-op
// so a defended-against re-entry can never overwrite history.
func (tl *Timeline) stamp(s Status, at time.Time) {
	set := func(field **time.Time) {
		if *field == nil {
			t := at
			*field = &t
		}
	}
	switch s {
	case StatusConfirmed:
		set(&tl.ConfirmedAt)
	case StatusPreparing:
		set(&tl.PreparingAt)
	case StatusReady:
		set(&tl.ReadyAt)
	case StatusDelivered, StatusPickedUp:
		set(&tl.DeliveredAt)
	case StatusCancelled:
		set(&tl.CancelledAt)
	}
}

// Order is the checkout aggregate. Identity and item snapshots are
// immutable; status, payment status and comment evolve over time.
type Order struct {
	ID            string
	UserID        string
	Items         []Item
	Type          Type
	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Subtotal      money.Money
	DeliveryFee   money.Money
	Discount      money.Money
	Total         money.Money
	DeliveryInfo  *DeliveryInfo
	PickupInfo    *PickupInfo
	Comment       string
	Timeline      Timeline
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CalculateTotal recomputes total = subtotal + delivery fee - discount,
// floored at zero, and stores it on the order.
func (o *Order) CalculateTotal() money.Money {
	total, err := o.Subtotal.Add(o.DeliveryFee)
	if err != nil {
		panic(err) // single-currency aggregate
	}
	if total.LessThan(o.Discount) {
		total = money.Zero(total.Currency)
	} else {
		total, _ = total.Sub(o.Discount)
	}
	o.Total = total
	return total
}

// ItemsTotal re-derives the subtotal from the item snapshots. For any order
// not discounted administratively after creation it equals the stored
// subtotal; reconciliation compares the two.
func (o *Order) ItemsTotal() money.Money {
	total := money.Zero(money.RUB)
	for _, it := range o.Items {
		sum, err := total.Add(it.TotalPrice())
		if err != nil {
			panic(err)
		}
		total = sum
	}
	return total
}

// ApplyStatus transitions the order to next, enforcing the transition
// table, stamping the timeline and refreshing UpdatedAt. On an illegal
// transition the order is left unchanged and an *InvalidTransitionError is
// returned.
func (o *Order) ApplyStatus(next Status) error {
	if !o.Status.CanTransitionTo(next, o.Type) {
		return &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: next}
	}
	now := time.Now()
	o.Status = next
	o.Timeline.stamp(next, now)
	o.UpdatedAt = now
	return nil
}

// SetPaymentStatus updates the payment side of the order.
func (o *Order) SetPaymentStatus(ps PaymentStatus) {
	o.PaymentStatus = ps
	o.UpdatedAt = time.Now()
}

// CanBeCancelled reports whether the customer may still cancel.
func (o *Order) CanBeCancelled() bool {
	return o.Status.CanBeCancelled()
}

// CanBeModified reports whether items and comment may still change.
func (o *Order) CanBeModified() bool {
	return o.Status.CanBeModified()
}

// IsDelivery reports whether the order is fulfilled by courier.
func (o *Order) IsDelivery() bool {
	return o.Type == TypeDelivery
}

// ContactPhone returns the phone from whichever fulfilment payload is set.
func (o *Order) ContactPhone() string {
	if o.DeliveryInfo != nil {
		return o.DeliveryInfo.Phone
	}
	if o.PickupInfo != nil {
		return o.PickupInfo.Phone
	}
	return ""
}

// Filters narrows order listings. Zero fields match everything.
type Filters struct {
	Status        Status
	Type          Type
	PaymentStatus PaymentStatus
	UserID        string
	DateFrom      time.Time
	DateTo        time.Time
	Limit         int
	Offset        int
}

// Repository defines order persistence.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*Order, error)
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, f Filters) ([]*Order, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Order, error)
	ListRequiringAttention(ctx context.Context) ([]*Order, error)
}
