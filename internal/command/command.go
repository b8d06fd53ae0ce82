// Package command decodes callback data into a closed set of typed
// commands.
//
// Callback payloads are colon-delimited: "add:cappuccino:2". Decoding
// happens exactly once at the edge; everything past the parser works with
// typed commands and malformed input cannot fall through to a handler.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports callback data that does not decode to a known command.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse command %q: %s", e.Input, e.Reason)
}

// Command is a decoded callback command. The set of implementations is
// closed; isCommand keeps external packages from adding cases the gateway
// switch does not handle.
type Command interface {
	isCommand()
}

// ShowMenu opens the category list.
type ShowMenu struct{}

// ShowCategory lists the items of one category.
type ShowCategory struct {
	CategoryID string
}

// ShowItem opens a single item card.
type ShowItem struct {
	ItemID string
}

// AddItem puts a menu item into the cart.
type AddItem struct {
	ItemID   string
	Quantity int
}

// RemoveItem deletes a cart line.
type RemoveItem struct {
	ItemID string
}

// SetQuantity changes a cart line quantity; zero removes the line.
type SetQuantity struct {
	ItemID   string
	Quantity int
}

// ShowCart renders the cart.
type ShowCart struct{}

// ClearCart empties the cart.
type ClearCart struct{}

// Checkout starts the checkout dialogue.
type Checkout struct{}

// ChooseType selects delivery or pickup during checkout.
type ChooseType struct {
	Type string
}

// ChoosePayment selects the payment method during checkout.
type ChoosePayment struct {
	Method string
}

// ConfirmOrder finalizes checkout into an order.
type ConfirmOrder struct{}

// ShowOrder opens one order of the calling user.
type ShowOrder struct {
	OrderID string
}

// ListOrders shows the calling user's order history.
type ListOrders struct{}

// CancelOrder cancels one order of the calling user.
type CancelOrder struct {
	OrderID string
}

// PayOrder requests a payment link for an order.
type PayOrder struct {
	OrderID string
}

func (ShowMenu) isCommand()     {}
func (ShowCategory) isCommand() {}
func (ShowItem) isCommand()     {}
func (AddItem) isCommand()      {}
func (RemoveItem) isCommand()   {}
func (SetQuantity) isCommand()  {}
func (ShowCart) isCommand()     {}
func (ClearCart) isCommand()    {}
func (Checkout) isCommand()     {}
func (ChooseType) isCommand()   {}
func (ChoosePayment) isCommand() {}
func (ConfirmOrder) isCommand() {}
func (ShowOrder) isCommand()    {}
func (ListOrders) isCommand()   {}
func (CancelOrder) isCommand()  {}
func (PayOrder) isCommand()     {}

// Parse decodes callback data into a Command. Unknown verbs, missing
// arguments and bad numbers all return *ParseError.
func Parse(input string) (Command, error) {
	parts := strings.Split(input, ":")
	verb := parts[0]
	args := parts[1:]

	fail := func(reason string) (Command, error) {
		return nil, &ParseError{Input: input, Reason: reason}
	}

	switch verb {
	case "menu":
		if len(args) != 0 {
			return fail("menu takes no arguments")
		}
		return ShowMenu{}, nil
	case "category":
		if len(args) != 1 || args[0] == "" {
			return fail("category requires an id")
		}
		return ShowCategory{CategoryID: args[0]}, nil
	case "item":
		if len(args) != 1 || args[0] == "" {
			return fail("item requires an id")
		}
		return ShowItem{ItemID: args[0]}, nil
	case "add":
		switch len(args) {
		case 1:
			if args[0] == "" {
				return fail("add requires an item id")
			}
			return AddItem{ItemID: args[0], Quantity: 1}, nil
		case 2:
			qty, err := parseQuantity(args[1])
			if err != nil {
				return fail(err.Error())
			}
			return AddItem{ItemID: args[0], Quantity: qty}, nil
		default:
			return fail("add requires an item id and optional quantity")
		}
	case "remove":
		if len(args) != 1 || args[0] == "" {
			return fail("remove requires an item id")
		}
		return RemoveItem{ItemID: args[0]}, nil
	case "qty":
		if len(args) != 2 || args[0] == "" {
			return fail("qty requires an item id and a quantity")
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil || qty < 0 {
			return fail("quantity must be a non-negative integer")
		}
		return SetQuantity{ItemID: args[0], Quantity: qty}, nil
	case "cart":
		if len(args) != 0 {
			return fail("cart takes no arguments")
		}
		return ShowCart{}, nil
	case "clear":
		if len(args) != 0 {
			return fail("clear takes no arguments")
		}
		return ClearCart{}, nil
	case "checkout":
		if len(args) != 0 {
			return fail("checkout takes no arguments")
		}
		return Checkout{}, nil
	case "type":
		if len(args) != 1 || (args[0] != "delivery" && args[0] != "pickup") {
			return fail("type must be delivery or pickup")
		}
		return ChooseType{Type: args[0]}, nil
	case "payment":
		if len(args) != 1 || (args[0] != "online" && args[0] != "cash" && args[0] != "card") {
			return fail("payment must be online, cash or card")
		}
		return ChoosePayment{Method: args[0]}, nil
	case "confirm":
		if len(args) != 0 {
			return fail("confirm takes no arguments")
		}
		return ConfirmOrder{}, nil
	case "order":
		if len(args) != 1 || args[0] == "" {
			return fail("order requires an id")
		}
		return ShowOrder{OrderID: args[0]}, nil
	case "orders":
		if len(args) != 0 {
			return fail("orders takes no arguments")
		}
		return ListOrders{}, nil
	case "cancel":
		if len(args) != 1 || args[0] == "" {
			return fail("cancel requires an order id")
		}
		return CancelOrder{OrderID: args[0]}, nil
	case "pay":
		if len(args) != 1 || args[0] == "" {
			return fail("pay requires an order id")
		}
		return PayOrder{OrderID: args[0]}, nil
	default:
		return fail("unknown command")
	}
}

func parseQuantity(s string) (int, error) {
	qty, err := strconv.Atoi(s)
	if err != nil || qty < 1 {
		return 0, fmt.Errorf("quantity must be a positive integer")
	}
	return qty, nil
}
