package order

// Status is the order lifecycle state. "pending" is the unique initial
// state; delivered, picked_up, cancelled and refunded are terminal.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "delivery"
	StatusDelivered      Status = "delivered"
	StatusPickedUp       Status = "picked_up"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

// Type selects the fulfilment branch: delivery orders pass through
// out-for-delivery, pickup orders go straight from ready to picked up.
type Type string

const (
	TypeDelivery Type = "delivery"
	TypePickup   Type = "pickup"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
)

// PaymentStatus tracks the order's payment side.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// transitions is the legal-next-status table. Fulfilment-type restrictions
// on the ready branch are applied in CanTransitionTo.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusPickedUp, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusCancelled},
	StatusDelivered:      {},
	StatusPickedUp:       {},
	StatusCancelled:      {},
	StatusRefunded:       {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is legal from s.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether moving from s to next is legal for an
// order of the given fulfilment type.
func (s Status) CanTransitionTo(next Status, typ Type) bool {
	if next == StatusOutForDelivery && typ != TypeDelivery {
		return false
	}
	if next == StatusPickedUp && typ != TypePickup {
		return false
	}
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// NextStatuses returns the legal next statuses from s for the given
// fulfilment type, in table order.
func (s Status) NextStatuses(typ Type) []Status {
	var out []Status
	for _, n := range transitions[s] {
		if s.CanTransitionTo(n, typ) {
			out = append(out, n)
		}
	}
	return out
}

// CanBeCancelled reports whether a customer cancellation is allowed from s.
// Only not-yet-prepared orders qualify; later cancellations are staff
// transitions through the table.
func (s Status) CanBeCancelled() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanBeModified reports whether order items and comment may still change.
func (s Status) CanBeModified() bool {
	return s == StatusPending
}

// IsFulfilled reports whether the order reached its successful terminal.
func (s Status) IsFulfilled() bool {
	return s == StatusDelivered || s == StatusPickedUp
}

// AttentionStatuses are the non-terminal states staff watch on the admin
// queue.
var AttentionStatuses = []Status{
	StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
}
