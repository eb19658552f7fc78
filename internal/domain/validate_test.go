package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrder() Order {
	return Order{
		ID:          "order-1",
		UserID:      "user-1",
		Currency:    "USD",
		TotalAmount: 2400,
		Items: []OrderItem{
			{ProductID: "sku-1", Quantity: 2, UnitPrice: 1200},
		},
	}
}

func TestValidateOrderAccepts(t *testing.T) {
	require.NoError(t, ValidateOrder(validOrder()))
}

func TestValidateOrderRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Order)
		field  string
	}{
		{"missing user", func(o *Order) { o.UserID = " " }, "user_id"},
		{"no items", func(o *Order) { o.Items = nil }, "items"},
		{"blank product", func(o *Order) { o.Items[0].ProductID = "" }, "items[0].product_id"},
		{"zero quantity", func(o *Order) { o.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"negative price", func(o *Order) { o.Items[0].UnitPrice = -1 }, "items[0].unit_price"},
		{"total mismatch", func(o *Order) { o.TotalAmount = 9999 }, "total_amount"},
		{"missing currency", func(o *Order) { o.Currency = "" }, "currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := validOrder()
			tc.mutate(&o)
			err := ValidateOrder(o)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestComputeTotal(t *testing.T) {
	o := Order{Items: []OrderItem{
		{ProductID: "a", Quantity: 2, UnitPrice: 100},
		{ProductID: "b", Quantity: 3, UnitPrice: 50},
	}}
	assert.Equal(t, int64(350), o.ComputeTotal())
}
