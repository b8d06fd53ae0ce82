package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrv/cafeorder/internal/domain/cart"
	"github.com/mkrv/cafeorder/internal/domain/menu"
	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/order"
	"github.com/mkrv/cafeorder/internal/domain/payment"
	"github.com/mkrv/cafeorder/internal/session"
	"github.com/mkrv/cafeorder/internal/storage/memory"
)

const telegramID = int64(300700)

type stubGateway struct {
	failCreate bool
}

func (g *stubGateway) Create(_ context.Context, params payment.CreateParams) (*payment.CreateResult, error) {
	if g.failCreate {
		return nil, assert.AnError
	}
	return &payment.CreateResult{
		PaymentID:  "pay-" + params.OrderID,
		PaymentURL: "https://pay.example/" + params.OrderID,
		Status:     payment.StatusPending,
	}, nil
}

func (g *stubGateway) Status(_ context.Context, paymentID string) (*payment.StatusResult, error) {
	return &payment.StatusResult{PaymentID: paymentID, Status: payment.StatusPending}, nil
}

func (g *stubGateway) Cancel(_ context.Context, _ string) (bool, error)                 { return true, nil }
func (g *stubGateway) Refund(_ context.Context, _ string, _ *money.Money) (bool, error) { return true, nil }

type fixture struct {
	gw       *Gateway
	carts    *cart.Service
	orders   *order.Service
	catalog  *memory.MenuRepository
	sessions session.Store
	provider *stubGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	catalog := memory.NewMenuRepository()
	require.NoError(t, catalog.UpsertCategory(ctx, &menu.Category{ID: "coffee", Name: "Coffee", Active: true}))
	for _, it := range []menu.Item{
		{ID: "cappuccino", CategoryID: "coffee", Name: "Cappuccino", Price: money.FromKopecks(35000), Available: true},
		{ID: "croissant", CategoryID: "coffee", Name: "Croissant", Price: money.FromKopecks(16000), Available: true},
	} {
		it := it
		require.NoError(t, catalog.UpsertItem(ctx, &it))
	}

	users := memory.NewUserRepository()
	cartRepo := memory.NewCartRepository()
	orderRepo := memory.NewOrderRepository()
	paymentRepo := memory.NewPaymentRepository()
	provider := &stubGateway{}

	carts := cart.NewService(cartRepo, catalog, users)
	orders := order.NewService(orderRepo, cartRepo, users, order.FeePolicy{
		Fee:      money.FromKopecks(200),
		FreeOver: money.FromKopecks(2000),
	})
	payments := payment.NewService(paymentRepo, orderRepo, provider)
	sessions := session.NewMemoryStore(time.Minute)

	return &fixture{
		gw:       New(carts, orders, payments, catalog, sessions, "https://t.me/cafebot"),
		carts:    carts,
		orders:   orders,
		catalog:  catalog,
		sessions: sessions,
		provider: provider,
	}
}

func TestGateway_CartFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reply := f.gw.HandleCallback(ctx, telegramID, "add:cappuccino:2")
	assert.Contains(t, reply.Text, "2 item(s)")
	assert.Equal(t, ScreenMenu, reply.Screen)

	reply = f.gw.HandleCallback(ctx, telegramID, "cart")
	assert.Contains(t, reply.Text, "Cappuccino × 2")
	assert.Contains(t, reply.Text, "700.00 RUB")
	assert.Equal(t, ScreenCart, reply.Screen)

	reply = f.gw.HandleCallback(ctx, telegramID, "qty:cappuccino:1")
	assert.Contains(t, reply.Text, "Cappuccino × 1")

	reply = f.gw.HandleCallback(ctx, telegramID, "clear")
	assert.Equal(t, "Cart cleared.", reply.Text)
}

func TestGateway_CheckoutFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.gw.HandleCallback(ctx, telegramID, "add:cappuccino:1")
	f.gw.HandleCallback(ctx, telegramID, "add:croissant:1")

	reply := f.gw.HandleCallback(ctx, telegramID, "checkout")
	assert.Equal(t, "Delivery or pickup?", reply.Text)
	assert.Equal(t, ScreenCheckout, reply.Screen)

	reply = f.gw.HandleCallback(ctx, telegramID, "type:delivery")
	assert.Contains(t, reply.Text, "address")

	reply = f.gw.HandleText(ctx, telegramID, "Arbat street 1, apt 5")
	assert.Contains(t, reply.Text, "phone")

	reply = f.gw.HandleText(ctx, telegramID, "+79001234567")
	assert.Contains(t, reply.Text, "pay")

	reply = f.gw.HandleCallback(ctx, telegramID, "payment:online")
	assert.Contains(t, reply.Text, "510.00 RUB")

	reply = f.gw.HandleCallback(ctx, telegramID, "confirm")
	assert.Contains(t, reply.Text, "placed")
	assert.NotEmpty(t, reply.PaymentURL)

	// The cart was cleared and the dialogue dropped.
	total, err := f.carts.Total(ctx, telegramID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	_, err = f.sessions.Get(ctx, telegramID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// The order carries the collected delivery details.
	reply = f.gw.HandleCallback(ctx, telegramID, "orders")
	assert.Contains(t, reply.Text, "pending")
}

func TestGateway_CheckoutPickupCash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.gw.HandleCallback(ctx, telegramID, "add:cappuccino:1")
	f.gw.HandleCallback(ctx, telegramID, "checkout")

	reply := f.gw.HandleCallback(ctx, telegramID, "type:pickup")
	assert.Contains(t, reply.Text, "phone")

	f.gw.HandleText(ctx, telegramID, "+79001234567")
	f.gw.HandleCallback(ctx, telegramID, "payment:cash")

	reply = f.gw.HandleCallback(ctx, telegramID, "confirm")
	assert.Contains(t, reply.Text, "placed")
	assert.Empty(t, reply.PaymentURL, "cash orders have no payment link")
}

func TestGateway_CheckoutEmptyCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reply := f.gw.HandleCallback(ctx, telegramID, "checkout")
	assert.Contains(t, reply.Text, "empty")
	assert.Equal(t, ScreenCart, reply.Screen)
}

func TestGateway_ExpiredCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.gw.HandleCallback(ctx, telegramID, "add:cappuccino:1")

	// Confirm without ever starting a checkout dialogue.
	reply := f.gw.HandleCallback(ctx, telegramID, "confirm")
	assert.Contains(t, reply.Text, "expired")
	assert.Equal(t, ScreenCart, reply.Screen)
}

func TestGateway_PaymentFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.failCreate = true

	f.gw.HandleCallback(ctx, telegramID, "add:cappuccino:1")
	f.gw.HandleCallback(ctx, telegramID, "checkout")
	f.gw.HandleCallback(ctx, telegramID, "type:pickup")
	f.gw.HandleText(ctx, telegramID, "+79001234567")
	f.gw.HandleCallback(ctx, telegramID, "payment:online")

	reply := f.gw.HandleCallback(ctx, telegramID, "confirm")
	assert.Contains(t, reply.Text, "placed")
	assert.Contains(t, reply.Text, "payment service is unavailable")
	assert.Empty(t, reply.PaymentURL)
}

func TestGateway_ErrorReplies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("unknown menu item", func(t *testing.T) {
		reply := f.gw.HandleCallback(ctx, telegramID, "add:borscht")
		assert.Contains(t, reply.Text, "no longer on the menu")
		assert.Equal(t, ScreenMenu, reply.Screen)
	})

	t.Run("malformed callback", func(t *testing.T) {
		reply := f.gw.HandleCallback(ctx, telegramID, "frobnicate:everything")
		assert.Contains(t, reply.Text, "outdated")
	})

	t.Run("unknown order", func(t *testing.T) {
		reply := f.gw.HandleCallback(ctx, telegramID, "order:no-such-order")
		assert.Contains(t, reply.Text, "could not find")
	})

	t.Run("cancel past the window", func(t *testing.T) {
		f.gw.HandleCallback(ctx, telegramID, "add:cappuccino:1")
		f.gw.HandleCallback(ctx, telegramID, "checkout")
		f.gw.HandleCallback(ctx, telegramID, "type:pickup")
		f.gw.HandleText(ctx, telegramID, "+79001234567")
		f.gw.HandleCallback(ctx, telegramID, "payment:cash")
		f.gw.HandleCallback(ctx, telegramID, "confirm")

		orders, err := f.orders.ListOrders(ctx, order.Filters{})
		require.NoError(t, err)
		require.NotEmpty(t, orders)
		id := orders[0].ID

		for _, s := range []order.Status{order.StatusConfirmed, order.StatusPreparing} {
			_, err := f.orders.UpdateOrderStatus(ctx, id, s)
			require.NoError(t, err)
		}

		reply := f.gw.HandleCallback(ctx, telegramID, "cancel:"+id)
		assert.Contains(t, reply.Text, "cannot be cancelled")
	})
}

func TestGateway_ForeignOrderCallbacks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const otherID = int64(400800)

	f.gw.HandleCallback(ctx, telegramID, "add:cappuccino:1")
	f.gw.HandleCallback(ctx, telegramID, "checkout")
	f.gw.HandleCallback(ctx, telegramID, "type:pickup")
	f.gw.HandleText(ctx, telegramID, "+79001234567")
	f.gw.HandleCallback(ctx, telegramID, "payment:online")
	f.gw.HandleCallback(ctx, telegramID, "confirm")

	orders, err := f.orders.ListOrders(ctx, order.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, orders)
	id := orders[0].ID

	// Callback data is forgeable, so another user's order id must answer
	// exactly like a missing one.
	for _, data := range []string{"order:" + id, "cancel:" + id, "pay:" + id} {
		reply := f.gw.HandleCallback(ctx, otherID, data)
		assert.Contains(t, reply.Text, "could not find", data)
		assert.Empty(t, reply.PaymentURL, data)
	}

	got, err := f.orders.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)

	// The owner still sees and cancels their own order.
	reply := f.gw.HandleCallback(ctx, telegramID, "order:"+id)
	assert.Contains(t, reply.Text, shortID(id))
	reply = f.gw.HandleCallback(ctx, telegramID, "cancel:"+id)
	assert.Contains(t, reply.Text, "cancelled")
}

func TestGateway_TextOutsideDialogue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reply := f.gw.HandleText(ctx, telegramID, "hello there")
	assert.Contains(t, reply.Text, "menu")
	assert.Equal(t, ScreenMenu, reply.Screen)
}
