package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, enums.OrderStatusProcessing, InitialStatus(enums.PaymentMethodCOD))
	assert.Equal(t, enums.OrderStatusPending, InitialStatus(enums.PaymentMethodStripe))
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		ok       bool
	}{
		{enums.OrderStatusPending, enums.OrderStatusProcessing, true},
		{enums.OrderStatusPending, enums.OrderStatusCancelled, true},
		{enums.OrderStatusProcessing, enums.OrderStatusShipped, true},
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled, true},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered, true},
		{enums.OrderStatusPending, enums.OrderStatusShipped, false},
		{enums.OrderStatusShipped, enums.OrderStatusCancelled, false},
		{enums.OrderStatusDelivered, enums.OrderStatusCancelled, false},
		{enums.OrderStatusCancelled, enums.OrderStatusProcessing, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCheckCancelable(t *testing.T) {
	assert.NoError(t, CheckCancelable(enums.OrderStatusPending))
	assert.NoError(t, CheckCancelable(enums.OrderStatusProcessing))

	for _, status := range []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered, enums.OrderStatusCancelled} {
		err := CheckCancelable(status)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
		assert.Contains(t, err.Error(), "Cannot cancel "+string(status)+" order")
	}
}

func TestCancelableStatuses(t *testing.T) {
	assert.ElementsMatch(t, []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing}, CancelableStatuses())
}

func TestCheckAdminTarget(t *testing.T) {
	assert.NoError(t, CheckAdminTarget(enums.OrderStatusPending, enums.OrderStatusDelivered))
	assert.NoError(t, CheckAdminTarget(enums.OrderStatusDelivered, enums.OrderStatusCancelled))
	assert.True(t, pkgerrors.IsCode(CheckAdminTarget(enums.OrderStatusProcessing, enums.OrderStatusPending), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(CheckAdminTarget(enums.OrderStatusCancelled, enums.OrderStatusShipped), pkgerrors.CodeStateConflict))
}
