package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Valid(t *testing.T) {
	for _, status := range []OrderStatus{
		StatusPending, StatusConfirmed, StatusPreparing,
		StatusReady, StatusOutForDelivery, StatusDelivered, StatusCancelled,
	} {
		assert.True(t, status.Valid(), "%s should be valid", status)
	}

	assert.False(t, OrderStatus("shipped").Valid())
	assert.False(t, OrderStatus("").Valid())
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusDelivered, false},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusPreparing, StatusConfirmed, false},
		{StatusReady, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}

	for _, tt := range tests {
		got := tt.from.CanTransitionTo(tt.to)
		assert.Equal(t, tt.allowed, got, "%s -> %s", tt.from, tt.to)
	}
}
