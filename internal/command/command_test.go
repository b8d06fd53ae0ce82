package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"menu", ShowMenu{}},
		{"category:coffee", ShowCategory{CategoryID: "coffee"}},
		{"item:cappuccino", ShowItem{ItemID: "cappuccino"}},
		{"add:cappuccino", AddItem{ItemID: "cappuccino", Quantity: 1}},
		{"add:cappuccino:3", AddItem{ItemID: "cappuccino", Quantity: 3}},
		{"remove:cappuccino", RemoveItem{ItemID: "cappuccino"}},
		{"qty:cappuccino:5", SetQuantity{ItemID: "cappuccino", Quantity: 5}},
		{"qty:cappuccino:0", SetQuantity{ItemID: "cappuccino", Quantity: 0}},
		{"cart", ShowCart{}},
		{"clear", ClearCart{}},
		{"checkout", Checkout{}},
		{"type:delivery", ChooseType{Type: "delivery"}},
		{"type:pickup", ChooseType{Type: "pickup"}},
		{"payment:online", ChoosePayment{Method: "online"}},
		{"payment:cash", ChoosePayment{Method: "cash"}},
		{"confirm", ConfirmOrder{}},
		{"order:ord-1", ShowOrder{OrderID: "ord-1"}},
		{"orders", ListOrders{}},
		{"cancel:ord-1", CancelOrder{OrderID: "ord-1"}},
		{"pay:ord-1", PayOrder{OrderID: "ord-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"unknown",
		"menu:extra",
		"category:",
		"item:",
		"add:",
		"add:cappuccino:zero",
		"add:cappuccino:0",
		"add:cappuccino:-1",
		"add:cappuccino:2:extra",
		"qty:cappuccino",
		"qty:cappuccino:-1",
		"qty:cappuccino:many",
		"type:teleport",
		"payment:barter",
		"cancel:",
		"pay:",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)

			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}
