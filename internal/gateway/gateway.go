// Package gateway adapts the ordering services to a conversational
// surface: callback data and free text in, plain replies out.
//
// No transport types cross this boundary. The Telegram (or any other)
// transport renders Reply values however it likes; the gateway only decides
// what to say and where the user lands next.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mkrv/cafeorder/internal/command"
	"github.com/mkrv/cafeorder/internal/domain/cart"
	"github.com/mkrv/cafeorder/internal/domain/menu"
	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/domain/order"
	"github.com/mkrv/cafeorder/internal/domain/payment"
	"github.com/mkrv/cafeorder/internal/session"
)

// Screen is the navigation marker a transport uses to pick the keyboard to
// render next.
type Screen string

const (
	ScreenNone     Screen = ""
	ScreenMenu     Screen = "menu"
	ScreenCart     Screen = "cart"
	ScreenCheckout Screen = "checkout"
	ScreenOrder    Screen = "order"
	ScreenOrders   Screen = "orders"
)

// Reply is what the user sees after an interaction. PaymentURL is set only
// when the user must be redirected to complete a payment.
type Reply struct {
	Text       string
	Screen     Screen
	PaymentURL string
}

// Gateway drives the ordering services from decoded user interactions.
type Gateway struct {
	carts     *cart.Service
	orders    *order.Service
	payments  *payment.Service
	catalog   menu.Repository
	sessions  session.Store
	returnURL string
}

// New creates a Gateway. returnURL is where the payment provider sends the
// customer back after paying.
func New(
	carts *cart.Service,
	orders *order.Service,
	payments *payment.Service,
	catalog menu.Repository,
	sessions session.Store,
	returnURL string,
) *Gateway {
	return &Gateway{
		carts:     carts,
		orders:    orders,
		payments:  payments,
		catalog:   catalog,
		sessions:  sessions,
		returnURL: returnURL,
	}
}

// HandleCallback decodes callback data and executes it. Errors never escape:
// every failure becomes a reply the user can act on.
func (g *Gateway) HandleCallback(ctx context.Context, telegramID int64, data string) Reply {
	cmd, err := command.Parse(data)
	if err != nil {
		zctx.From(ctx).Info("Unparseable callback",
			zap.Int64("telegram_id", telegramID),
			zap.String("data", data),
		)
		return Reply{Text: "Sorry, that button seems to be outdated. Here is the menu.", Screen: ScreenMenu}
	}

	reply, err := g.dispatch(ctx, telegramID, cmd)
	if err != nil {
		return g.errorReply(ctx, telegramID, err)
	}
	return reply
}

// HandleText feeds free-form text into whatever dialogue step the user is
// at. Text outside a dialogue gets a gentle pointer to the menu.
func (g *Gateway) HandleText(ctx context.Context, telegramID int64, text string) Reply {
	state, err := g.sessions.Get(ctx, telegramID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Reply{Text: "Use the menu below to order.", Screen: ScreenMenu}
		}
		return g.errorReply(ctx, telegramID, err)
	}

	reply, err := g.handleStep(ctx, telegramID, state, strings.TrimSpace(text))
	if err != nil {
		return g.errorReply(ctx, telegramID, err)
	}
	return reply
}

func (g *Gateway) dispatch(ctx context.Context, telegramID int64, cmd command.Command) (Reply, error) {
	switch c := cmd.(type) {
	case command.ShowMenu:
		return g.showMenu(ctx)
	case command.ShowCategory:
		return g.showCategory(ctx, c.CategoryID)
	case command.ShowItem:
		return g.showItem(ctx, c.ItemID)
	case command.AddItem:
		return g.addItem(ctx, telegramID, c.ItemID, c.Quantity)
	case command.RemoveItem:
		return g.removeItem(ctx, telegramID, c.ItemID)
	case command.SetQuantity:
		return g.setQuantity(ctx, telegramID, c.ItemID, c.Quantity)
	case command.ShowCart:
		return g.showCart(ctx, telegramID)
	case command.ClearCart:
		return g.clearCart(ctx, telegramID)
	case command.Checkout:
		return g.startCheckout(ctx, telegramID)
	case command.ChooseType:
		return g.chooseType(ctx, telegramID, c.Type)
	case command.ChoosePayment:
		return g.choosePayment(ctx, telegramID, c.Method)
	case command.ConfirmOrder:
		return g.confirmOrder(ctx, telegramID)
	case command.ShowOrder:
		return g.showOrder(ctx, telegramID, c.OrderID)
	case command.ListOrders:
		return g.listOrders(ctx, telegramID)
	case command.CancelOrder:
		return g.cancelOrder(ctx, telegramID, c.OrderID)
	case command.PayOrder:
		return g.payOrder(ctx, telegramID, c.OrderID)
	default:
		return Reply{}, errors.Errorf("unhandled command %T", cmd)
	}
}

func (g *Gateway) showMenu(ctx context.Context) (Reply, error) {
	categories, err := g.catalog.ListCategories(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(categories) == 0 {
		return Reply{Text: "The menu is being updated, please check back soon.", Screen: ScreenMenu}, nil
	}

	var b strings.Builder
	b.WriteString("Our menu:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "• %s\n", c.Name)
	}
	return Reply{Text: b.String(), Screen: ScreenMenu}, nil
}

func (g *Gateway) showCategory(ctx context.Context, categoryID string) (Reply, error) {
	items, err := g.catalog.ListItems(ctx, categoryID)
	if err != nil {
		return Reply{}, err
	}

	var b strings.Builder
	shown := 0
	for _, it := range items {
		if !it.Available {
			continue
		}
		fmt.Fprintf(&b, "%s — %s\n", it.Name, it.Price)
		shown++
	}
	if shown == 0 {
		return Reply{Text: "Nothing available in this category right now.", Screen: ScreenMenu}, nil
	}
	return Reply{Text: b.String(), Screen: ScreenMenu}, nil
}

func (g *Gateway) showItem(ctx context.Context, itemID string) (Reply, error) {
	it, err := g.catalog.ItemByID(ctx, itemID)
	if err != nil {
		return Reply{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\nPrice: %s", it.Name, it.Description, it.Price)
	if !it.Available {
		b.WriteString("\n\nTemporarily unavailable.")
	}
	return Reply{Text: b.String(), Screen: ScreenMenu}, nil
}

func (g *Gateway) addItem(ctx context.Context, telegramID int64, itemID string, quantity int) (Reply, error) {
	c, err := g.carts.AddItem(ctx, telegramID, itemID, quantity, "")
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:   fmt.Sprintf("Added! Your cart: %d item(s), %s.", c.TotalItems(), c.TotalPrice()),
		Screen: ScreenMenu,
	}, nil
}

func (g *Gateway) removeItem(ctx context.Context, telegramID int64, itemID string) (Reply, error) {
	c, err := g.carts.RemoveItem(ctx, telegramID, itemID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: renderCart(c), Screen: ScreenCart}, nil
}

func (g *Gateway) setQuantity(ctx context.Context, telegramID int64, itemID string, quantity int) (Reply, error) {
	c, err := g.carts.UpdateQuantity(ctx, telegramID, itemID, quantity)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: renderCart(c), Screen: ScreenCart}, nil
}

func (g *Gateway) showCart(ctx context.Context, telegramID int64) (Reply, error) {
	c, err := g.carts.GetOrCreateCart(ctx, telegramID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: renderCart(c), Screen: ScreenCart}, nil
}

func (g *Gateway) clearCart(ctx context.Context, telegramID int64) (Reply, error) {
	if _, err := g.carts.Clear(ctx, telegramID); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Cart cleared.", Screen: ScreenMenu}, nil
}

func (g *Gateway) startCheckout(ctx context.Context, telegramID int64) (Reply, error) {
	ok, err := g.carts.Validate(ctx, telegramID)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{
			Text:   "Your cart is empty or some items are no longer available. Please review it before checking out.",
			Screen: ScreenCart,
		}, nil
	}

	if err := g.sessions.Set(ctx, telegramID, session.NewState(session.StepChoosingType)); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Delivery or pickup?", Screen: ScreenCheckout}, nil
}

func (g *Gateway) chooseType(ctx context.Context, telegramID int64, orderType string) (Reply, error) {
	state, err := g.checkoutState(ctx, telegramID, session.StepChoosingType)
	if err != nil {
		return g.expiredCheckout(), nil
	}

	state.Set("order_type", orderType)
	if orderType == string(order.TypeDelivery) {
		state.Step = session.StepEnteringAddress
		if err := g.sessions.Set(ctx, telegramID, state); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Where should we deliver? Please send your address.", Screen: ScreenCheckout}, nil
	}

	state.Step = session.StepEnteringPhone
	if err := g.sessions.Set(ctx, telegramID, state); err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Please send a phone number so we can reach you when the order is ready.", Screen: ScreenCheckout}, nil
}

func (g *Gateway) choosePayment(ctx context.Context, telegramID int64, method string) (Reply, error) {
	state, err := g.checkoutState(ctx, telegramID, session.StepChoosingPayment)
	if err != nil {
		return g.expiredCheckout(), nil
	}

	state.Set("payment_method", method)
	state.Step = session.StepConfirmingOrder
	if err := g.sessions.Set(ctx, telegramID, state); err != nil {
		return Reply{}, err
	}

	total, err := g.carts.Total(ctx, telegramID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:   fmt.Sprintf("Everything set. Total: %s. Confirm the order?", total),
		Screen: ScreenCheckout,
	}, nil
}

func (g *Gateway) confirmOrder(ctx context.Context, telegramID int64) (Reply, error) {
	state, err := g.checkoutState(ctx, telegramID, session.StepConfirmingOrder)
	if err != nil {
		return g.expiredCheckout(), nil
	}

	req := order.CreateRequest{
		TelegramID:    telegramID,
		Type:          order.Type(state.Get("order_type")),
		PaymentMethod: order.PaymentMethod(state.Get("payment_method")),
		Comment:       state.Get("comment"),
	}
	switch req.Type {
	case order.TypeDelivery:
		req.DeliveryInfo = &order.DeliveryInfo{
			Address: state.Get("address"),
			Phone:   state.Get("phone"),
		}
	case order.TypePickup:
		req.PickupInfo = &order.PickupInfo{Phone: state.Get("phone")}
	}

	o, err := g.orders.CreateOrderFromCart(ctx, req)
	if err != nil {
		return Reply{}, err
	}

	// The order exists; cart and session cleanup failures are logged, not
	// surfaced, so the user never sees an error for an order that went
	// through.
	if _, err := g.carts.Clear(ctx, telegramID); err != nil {
		zctx.From(ctx).Error("Clear cart after checkout", zap.String("order_id", o.ID), zap.Error(err))
	}
	if err := g.sessions.Delete(ctx, telegramID); err != nil {
		zctx.From(ctx).Error("Drop session after checkout", zap.String("order_id", o.ID), zap.Error(err))
	}

	if req.PaymentMethod == order.PaymentOnline {
		p, err := g.payments.CreatePayment(ctx, o, g.returnURL)
		if err != nil {
			return Reply{
				Text:   fmt.Sprintf("Order %s is placed, but the payment service is unavailable. Open the order to retry paying.", shortID(o.ID)),
				Screen: ScreenOrder,
			}, nil
		}
		return Reply{
			Text:       fmt.Sprintf("Order %s is placed! Total: %s. Follow the link to pay.", shortID(o.ID), o.Total),
			Screen:     ScreenOrder,
			PaymentURL: p.PaymentURL,
		}, nil
	}

	return Reply{
		Text:   fmt.Sprintf("Order %s is placed! Total: %s. We will keep you posted.", shortID(o.ID), o.Total),
		Screen: ScreenOrder,
	}, nil
}

// callerOrder fetches an order and checks it belongs to the calling user.
// Callback data is client-controlled, so a foreign order id answers
// exactly like a missing one.
func (g *Gateway) callerOrder(ctx context.Context, telegramID int64, orderID string) (*order.Order, error) {
	o, err := g.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	c, err := g.carts.GetOrCreateCart(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if o.UserID != c.UserID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (g *Gateway) showOrder(ctx context.Context, telegramID int64, orderID string) (Reply, error) {
	o, err := g.callerOrder(ctx, telegramID, orderID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: renderOrder(o), Screen: ScreenOrder}, nil
}

func (g *Gateway) listOrders(ctx context.Context, telegramID int64) (Reply, error) {
	c, err := g.carts.GetOrCreateCart(ctx, telegramID)
	if err != nil {
		return Reply{}, err
	}
	list, err := g.orders.UserOrders(ctx, c.UserID, 10, 0)
	if err != nil {
		return Reply{}, err
	}
	if len(list) == 0 {
		return Reply{Text: "You have no orders yet.", Screen: ScreenMenu}, nil
	}

	var b strings.Builder
	b.WriteString("Your orders:\n")
	for _, o := range list {
		fmt.Fprintf(&b, "%s — %s, %s\n", shortID(o.ID), o.Status, o.Total)
	}
	return Reply{Text: b.String(), Screen: ScreenOrders}, nil
}

func (g *Gateway) cancelOrder(ctx context.Context, telegramID int64, orderID string) (Reply, error) {
	if _, err := g.callerOrder(ctx, telegramID, orderID); err != nil {
		return Reply{}, err
	}
	o, err := g.orders.CancelOrder(ctx, orderID, "cancelled by customer")
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:   fmt.Sprintf("Order %s is cancelled.", shortID(o.ID)),
		Screen: ScreenOrders,
	}, nil
}

func (g *Gateway) payOrder(ctx context.Context, telegramID int64, orderID string) (Reply, error) {
	o, err := g.callerOrder(ctx, telegramID, orderID)
	if err != nil {
		return Reply{}, err
	}
	if o.PaymentStatus == order.PaymentStatusCompleted {
		return Reply{Text: "This order is already paid.", Screen: ScreenOrder}, nil
	}

	p, err := g.payments.CreatePayment(ctx, o, g.returnURL)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:       fmt.Sprintf("Follow the link to pay %s.", o.Total),
		Screen:     ScreenOrder,
		PaymentURL: p.PaymentURL,
	}, nil
}

func (g *Gateway) handleStep(ctx context.Context, telegramID int64, state *session.State, text string) (Reply, error) {
	if text == "" {
		return Reply{Text: "Please send a text message.", Screen: ScreenCheckout}, nil
	}

	switch state.Step {
	case session.StepEnteringAddress:
		state.Set("address", text)
		state.Step = session.StepEnteringPhone
		if err := g.sessions.Set(ctx, telegramID, state); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Got it. Now please send a contact phone number.", Screen: ScreenCheckout}, nil

	case session.StepEnteringPhone:
		if !looksLikePhone(text) {
			return Reply{Text: "That does not look like a phone number, please try again.", Screen: ScreenCheckout}, nil
		}
		state.Set("phone", text)
		state.Step = session.StepChoosingPayment
		if err := g.sessions.Set(ctx, telegramID, state); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "How would you like to pay?", Screen: ScreenCheckout}, nil

	case session.StepEnteringComment:
		state.Set("comment", text)
		state.Step = session.StepChoosingPayment
		if err := g.sessions.Set(ctx, telegramID, state); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "How would you like to pay?", Screen: ScreenCheckout}, nil

	default:
		return Reply{Text: "Use the menu below to order.", Screen: ScreenMenu}, nil
	}
}

// checkoutState loads the session and checks the user is at the expected
// dialogue step.
func (g *Gateway) checkoutState(ctx context.Context, telegramID int64, want session.Step) (*session.State, error) {
	state, err := g.sessions.Get(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if state.Step != want {
		return nil, errors.Errorf("unexpected step %s", state.Step)
	}
	return state, nil
}

func (g *Gateway) expiredCheckout() Reply {
	return Reply{
		Text:   "Looks like this checkout has expired. Your cart is intact, just start checkout again.",
		Screen: ScreenCart,
	}
}

// errorReply turns a domain error into a user-facing reply. Known kinds get
// specific messages; anything else is logged and answered generically.
func (g *Gateway) errorReply(ctx context.Context, telegramID int64, err error) Reply {
	var invalid *order.InvalidTransitionError
	var provider *payment.ProviderError

	switch {
	case errors.Is(err, menu.ErrItemNotFound):
		return Reply{Text: "Sorry, this item is no longer on the menu.", Screen: ScreenMenu}
	case errors.Is(err, cart.ErrInvalidQuantity):
		return Reply{Text: fmt.Sprintf("Quantity must be between 1 and %d.", cart.MaxItemQuantity), Screen: ScreenCart}
	case errors.Is(err, cart.ErrNotFound):
		return Reply{Text: "Your cart is empty. Take a look at the menu!", Screen: ScreenMenu}
	case errors.Is(err, order.ErrEmptyCart):
		return Reply{Text: "Your cart is empty. Add something from the menu first.", Screen: ScreenMenu}
	case errors.Is(err, order.ErrNotFound):
		return Reply{Text: "Sorry, we could not find this order.", Screen: ScreenOrders}
	case errors.Is(err, order.ErrNotModifiable):
		return Reply{Text: "This order is already being prepared and cannot be changed.", Screen: ScreenOrder}
	case errors.As(err, &invalid):
		return Reply{Text: "This order cannot be cancelled anymore. Contact us if something is wrong.", Screen: ScreenOrder}
	case errors.As(err, &provider):
		zctx.From(ctx).Error("Payment provider failure",
			zap.Int64("telegram_id", telegramID),
			zap.Error(err),
		)
		return Reply{Text: "The payment service is temporarily unavailable, please try again in a minute.", Screen: ScreenOrder}
	default:
		zctx.From(ctx).Error("Unhandled gateway error",
			zap.Int64("telegram_id", telegramID),
			zap.Error(err),
		)
		return Reply{Text: "Something went wrong on our side. Please try again.", Screen: ScreenMenu}
	}
}

func renderCart(c *cart.Cart) string {
	if c.IsEmpty() {
		return "Your cart is empty. Take a look at the menu!"
	}

	var b strings.Builder
	b.WriteString("Your cart:\n")
	for _, line := range c.Items {
		fmt.Fprintf(&b, "%s × %d — %s\n", line.Name, line.Quantity, line.TotalPrice())
		if line.Comment != "" {
			fmt.Fprintf(&b, "  (%s)\n", line.Comment)
		}
	}
	fmt.Fprintf(&b, "\nTotal: %s", c.TotalPrice())
	return b.String()
}

func renderOrder(o *order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s — %s\n\n", shortID(o.ID), o.Status)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%s × %d — %s\n", it.Name, it.Quantity, it.TotalPrice())
	}
	fmt.Fprintf(&b, "\nSubtotal: %s", o.Subtotal)
	if !o.DeliveryFee.IsZero() {
		fmt.Fprintf(&b, "\nDelivery: %s", o.DeliveryFee)
	}
	if !o.Discount.IsZero() {
		fmt.Fprintf(&b, "\nDiscount: -%s", o.Discount)
	}
	fmt.Fprintf(&b, "\nTotal: %s", o.Total)
	if o.Total.Equal(money.Zero(o.Total.Currency)) {
		b.WriteString(" (free)")
	}
	return b.String()
}

// looksLikePhone accepts anything with at least ten digits. Real validation
// belongs to the telephony provider; this only catches obvious typos.
func looksLikePhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 10
}

// shortID keeps user-visible order references readable.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
