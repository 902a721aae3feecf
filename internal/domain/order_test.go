package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAllowedTransition(t *testing.T) {
	all := []Status{StatusPending, StatusPreparing, StatusReady, StatusFinished}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusPreparing}:  true,
		{StatusPreparing, StatusReady}:    true,
		{StatusPreparing, StatusPending}:  true, // staff correcting a mistake
		{StatusPending, StatusFinished}:   true, // archive
		{StatusPreparing, StatusFinished}: true,
		{StatusReady, StatusFinished}:     true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, AllowedTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestItemsTotal(t *testing.T) {
	o := Order{
		Total: decimal.NewFromInt(999), // stale cached total must be ignored
		Items: []LineItem{
			{Name: "Burger", Price: decimal.RequireFromString("18.00"), Qty: 2},
			{Name: "Soda", Price: decimal.RequireFromString("6.00"), Qty: 1},
		},
	}
	assert.Equal(t, "42.00", o.ItemsTotal().StringFixed(2))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPreparing.Valid())
	assert.False(t, Status("cooking").Valid())
}
