package payment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/order"
)

type paymentStore struct {
	mu   sync.Mutex
	byID map[string]*Payment
}

func newPaymentStore() *paymentStore {
	return &paymentStore{byID: make(map[string]*Payment)}
}

func (s *paymentStore) Create(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status.IsActive() {
		for _, existing := range s.byID {
			if existing.OrderID == p.OrderID && existing.Status.IsActive() {
				return ErrActiveExists
			}
		}
	}
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

func (s *paymentStore) GetByID(_ context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *paymentStore) GetActiveByOrderID(_ context.Context, orderID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.byID {
		if p.OrderID == orderID && p.Status.IsActive() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *paymentStore) Update(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

func (s *paymentStore) ListActive(_ context.Context, updatedBefore time.Time, limit int) ([]*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Payment
	for _, p := range s.byID {
		if p.Status.IsActive() && p.UpdatedAt.Before(updatedBefore) {
			cp := *p
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type orderStore struct {
	byID        map[string]*order.Order
	failUpdates int
}

func newOrderStore() *orderStore {
	return &orderStore{byID: make(map[string]*order.Order)}
}

func (s *orderStore) Create(_ context.Context, o *order.Order) error {
	cp := *o
	s.byID[o.ID] = &cp
	return nil
}

func (s *orderStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *orderStore) GetByUserID(_ context.Context, _ string, _, _ int) ([]*order.Order, error) {
	return nil, nil
}

func (s *orderStore) Update(_ context.Context, o *order.Order) error {
	if s.failUpdates > 0 {
		s.failUpdates--
		return errors.New("storage offline")
	}
	if _, ok := s.byID[o.ID]; !ok {
		return order.ErrNotFound
	}
	cp := *o
	s.byID[o.ID] = &cp
	return nil
}

func (s *orderStore) List(_ context.Context, _ order.Filters) ([]*order.Order, error) {
	return nil, nil
}

func (s *orderStore) ListByStatus(_ context.Context, _ order.Status, _, _ int) ([]*order.Order, error) {
	return nil, nil
}

func (s *orderStore) ListRequiringAttention(_ context.Context) ([]*order.Order, error) {
	return nil, nil
}

type fakeGateway struct {
	mu          sync.Mutex
	createCalls int
	lastParams  CreateParams
	cancelled   []string
	createErr   error
	status      Status
	statusErr   error
	cancelOK    bool
	refundOK    bool
}

func (g *fakeGateway) Create(_ context.Context, params CreateParams) (*CreateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls++
	g.lastParams = params
	if g.createErr != nil {
		return nil, g.createErr
	}
	id := "pay-" + params.OrderID
	if g.createCalls > 1 {
		id = fmt.Sprintf("%s#%d", id, g.createCalls)
	}
	return &CreateResult{
		PaymentID:  id,
		PaymentURL: "https://pay.example/" + params.OrderID,
		Status:     StatusPending,
	}, nil
}

func (g *fakeGateway) Status(_ context.Context, paymentID string) (*StatusResult, error) {
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return &StatusResult{PaymentID: paymentID, Status: g.status}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, paymentID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelled = append(g.cancelled, paymentID)
	return g.cancelOK, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, _ *money.Money) (bool, error) {
	return g.refundOK, nil
}

// blockingGateway parks Create callers until release is closed, forcing
// the interleaving a real double-submit produces.
type blockingGateway struct {
	*fakeGateway
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeGateway.Create(ctx, params)
}

func testOrder(t *testing.T, orders *orderStore) *order.Order {
	t.Helper()
	o := &order.Order{
		ID:            "ord-1",
		UserID:        "usr-1",
		Type:          order.TypeDelivery,
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentOnline,
		PaymentStatus: order.PaymentStatusPending,
		Items: []order.Item{
			{ID: "l1", ItemID: "itm-1", Name: "Cappuccino", UnitPrice: money.FromKopecks(35000), Quantity: 1},
		},
		Subtotal:    money.FromKopecks(35000),
		DeliveryFee: money.FromKopecks(200),
		Discount:    money.Zero(money.RUB),
		Timeline:    order.Timeline{CreatedAt: time.Now()},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	o.CalculateTotal()
	require.NoError(t, orders.Create(context.Background(), o))
	return o
}

func TestService_CreatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and persists", func(t *testing.T) {
		payments, orders, gw := newPaymentStore(), newOrderStore(), &fakeGateway{}
		svc := NewService(payments, orders, gw)
		o := testOrder(t, orders)

		p, err := svc.CreatePayment(ctx, o, "https://t.me/cafebot")
		require.NoError(t, err)
		assert.Equal(t, "pay-ord-1", p.ID)
		assert.Equal(t, o.Total, p.Amount)
		assert.Equal(t, StatusPending, p.Status)
		assert.NotEmpty(t, p.PaymentURL)
		assert.Equal(t, o.ID, gw.lastParams.Metadata["order_id"])

		stored, err := payments.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, stored.ID)
	})

	t.Run("idempotency key embeds order id", func(t *testing.T) {
		payments, orders, gw := newPaymentStore(), newOrderStore(), &fakeGateway{}
		svc := NewService(payments, orders, gw)
		svc.now = func() time.Time { return time.Unix(1700000000, 0) }
		o := testOrder(t, orders)

		_, err := svc.CreatePayment(ctx, o, "")
		require.NoError(t, err)
		assert.Equal(t, "ord-1_1700000000", gw.lastParams.IdempotencyKey)
	})

	t.Run("second call returns existing active payment", func(t *testing.T) {
		payments, orders, gw := newPaymentStore(), newOrderStore(), &fakeGateway{}
		svc := NewService(payments, orders, gw)
		o := testOrder(t, orders)

		first, err := svc.CreatePayment(ctx, o, "")
		require.NoError(t, err)
		second, err := svc.CreatePayment(ctx, o, "")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, gw.createCalls)
	})

	t.Run("concurrent double submit settles on one payment", func(t *testing.T) {
		payments, orders := newPaymentStore(), newOrderStore()
		inner := &fakeGateway{}
		gw := &blockingGateway{
			fakeGateway: inner,
			entered:     make(chan struct{}, 2),
			release:     make(chan struct{}),
		}
		svc := NewService(payments, orders, gw)
		o := testOrder(t, orders)

		results := make(chan *Payment, 2)
		errs := make(chan error, 2)
		for range 2 {
			go func() {
				p, err := svc.CreatePayment(ctx, o, "")
				results <- p
				errs <- err
			}()
		}
		// Hold both submits inside the provider call so each has already
		// passed the active-payment lookup before either inserts.
		<-gw.entered
		<-gw.entered
		close(gw.release)

		first, second := <-results, <-results
		require.NoError(t, <-errs)
		require.NoError(t, <-errs)

		assert.Equal(t, first.ID, second.ID, "both submits must settle on the same payment")
		assert.Len(t, payments.byID, 1, "exactly one payment row survives")
		assert.Equal(t, 2, inner.createCalls)
		require.Len(t, inner.cancelled, 1, "the losing provider payment is voided")
		assert.NotEqual(t, first.ID, inner.cancelled[0])
	})

	t.Run("gateway failure leaves no payment behind", func(t *testing.T) {
		payments, orders := newPaymentStore(), newOrderStore()
		gw := &fakeGateway{createErr: errors.New("provider down")}
		svc := NewService(payments, orders, gw)
		o := testOrder(t, orders)

		_, err := svc.CreatePayment(ctx, o, "")
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "create", provErr.Op)
		assert.Empty(t, payments.byID)
	})
}

func TestService_ProcessWebhook(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Service, *paymentStore, *orderStore, *Payment) {
		payments, orders := newPaymentStore(), newOrderStore()
		svc := NewService(payments, orders, &fakeGateway{})
		o := testOrder(t, orders)
		p, err := svc.CreatePayment(ctx, o, "")
		require.NoError(t, err)
		return svc, payments, orders, p
	}

	t.Run("succeeded completes payment and confirms order", func(t *testing.T) {
		svc, payments, orders, p := setup(t)

		payload := []byte(`{"event":"payment.succeeded","object":{"id":"` + p.ID + `","status":"succeeded"}}`)
		got, err := svc.ProcessWebhook(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)

		stored, err := payments.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, stored.Status)

		o, err := orders.GetByID(ctx, p.OrderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, o.Status)
		assert.Equal(t, order.PaymentStatusCompleted, o.PaymentStatus)
		assert.NotNil(t, o.Timeline.ConfirmedAt)
	})

	t.Run("duplicate delivery is a no-op", func(t *testing.T) {
		svc, _, orders, p := setup(t)

		payload := []byte(`{"object":{"id":"` + p.ID + `","status":"succeeded"}}`)
		_, err := svc.ProcessWebhook(ctx, payload)
		require.NoError(t, err)

		o, err := orders.GetByID(ctx, p.OrderID)
		require.NoError(t, err)
		confirmedAt := *o.Timeline.ConfirmedAt

		_, err = svc.ProcessWebhook(ctx, payload)
		require.NoError(t, err)

		o, err = orders.GetByID(ctx, p.OrderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, o.Status)
		assert.Equal(t, confirmedAt, *o.Timeline.ConfirmedAt)
	})

	t.Run("succeeded after order already preparing keeps order status", func(t *testing.T) {
		svc, _, orders, p := setup(t)

		o, err := orders.GetByID(ctx, p.OrderID)
		require.NoError(t, err)
		require.NoError(t, o.ApplyStatus(order.StatusConfirmed))
		require.NoError(t, o.ApplyStatus(order.StatusPreparing))
		require.NoError(t, orders.Update(ctx, o))

		payload := []byte(`{"object":{"id":"` + p.ID + `","status":"succeeded"}}`)
		_, err = svc.ProcessWebhook(ctx, payload)
		require.NoError(t, err)

		o, err = orders.GetByID(ctx, p.OrderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPreparing, o.Status)
		assert.Equal(t, order.PaymentStatusCompleted, o.PaymentStatus)
	})

	t.Run("order write failure keeps payment retryable", func(t *testing.T) {
		svc, payments, orders, p := setup(t)
		orders.failUpdates = 1

		payload := []byte(`{"object":{"id":"` + p.ID + `","status":"succeeded"}}`)
		_, err := svc.ProcessWebhook(ctx, payload)
		require.Error(t, err)

		stored, err := payments.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, stored.Status, "payment must not complete ahead of the order")

		// Provider redelivery heals both sides.
		_, err = svc.ProcessWebhook(ctx, payload)
		require.NoError(t, err)

		o, err := orders.GetByID(ctx, p.OrderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusConfirmed, o.Status)
		assert.Equal(t, order.PaymentStatusCompleted, o.PaymentStatus)

		stored, err = payments.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, stored.Status)
	})

	t.Run("canceled marks payment without touching order status", func(t *testing.T) {
		svc, payments, orders, p := setup(t)

		payload := []byte(`{"object":{"id":"` + p.ID + `","status":"canceled"}}`)
		_, err := svc.ProcessWebhook(ctx, payload)
		require.NoError(t, err)

		stored, err := payments.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, stored.Status)

		o, err := orders.GetByID(ctx, p.OrderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, o.Status)
	})

	t.Run("malformed payloads fail closed", func(t *testing.T) {
		svc, _, _, p := setup(t)

		for name, payload := range map[string]string{
			"not json":       `{{`,
			"missing object": `{"event":"payment.succeeded"}`,
			"missing id":     `{"object":{"status":"succeeded"}}`,
			"unknown status": `{"object":{"id":"` + p.ID + `","status":"exploded"}}`,
		} {
			_, err := svc.ProcessWebhook(ctx, []byte(payload))
			assert.ErrorIs(t, err, ErrMalformedWebhook, name)
		}
	})

	t.Run("unknown payment id", func(t *testing.T) {
		svc, _, _, _ := setup(t)

		payload := []byte(`{"object":{"id":"pay-missing","status":"succeeded"}}`)
		_, err := svc.ProcessWebhook(ctx, payload)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_GetPaymentStatus(t *testing.T) {
	ctx := context.Background()
	payments, orders := newPaymentStore(), newOrderStore()
	gw := &fakeGateway{}
	svc := NewService(payments, orders, gw)
	o := testOrder(t, orders)
	p, err := svc.CreatePayment(ctx, o, "")
	require.NoError(t, err)

	gw.status = StatusCompleted
	got, err := svc.GetPaymentStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	stored, err := orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, stored.Status)
}

func TestService_CancelPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels active payment", func(t *testing.T) {
		payments, orders := newPaymentStore(), newOrderStore()
		svc := NewService(payments, orders, &fakeGateway{cancelOK: true})
		o := testOrder(t, orders)
		p, err := svc.CreatePayment(ctx, o, "")
		require.NoError(t, err)

		ok, err := svc.CancelPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		stored, err := payments.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, stored.Status)
	})

	t.Run("unknown payment reports false", func(t *testing.T) {
		svc := NewService(newPaymentStore(), newOrderStore(), &fakeGateway{cancelOK: true})
		ok, err := svc.CancelPayment(ctx, "pay-missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("completed payment cannot be cancelled", func(t *testing.T) {
		payments, orders := newPaymentStore(), newOrderStore()
		gw := &fakeGateway{cancelOK: true}
		svc := NewService(payments, orders, gw)
		o := testOrder(t, orders)
		p, err := svc.CreatePayment(ctx, o, "")
		require.NoError(t, err)

		payload := []byte(`{"object":{"id":"` + p.ID + `","status":"succeeded"}}`)
		_, err = svc.ProcessWebhook(ctx, payload)
		require.NoError(t, err)

		ok, err := svc.CancelPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestService_RefundPayment(t *testing.T) {
	ctx := context.Background()
	payments, orders := newPaymentStore(), newOrderStore()
	gw := &fakeGateway{refundOK: true}
	svc := NewService(payments, orders, gw)
	o := testOrder(t, orders)
	p, err := svc.CreatePayment(ctx, o, "")
	require.NoError(t, err)

	ok, err := svc.RefundPayment(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok, "pending payment is not refundable")

	payload := []byte(`{"object":{"id":"` + p.ID + `","status":"succeeded"}}`)
	_, err = svc.ProcessWebhook(ctx, payload)
	require.NoError(t, err)

	ok, err = svc.RefundPayment(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := payments.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, stored.Status)
}
