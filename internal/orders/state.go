package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// lifecycle lists the forward transitions an order may take outside the
// operator override. Cancellation is only reachable before shipping.
var lifecycle = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
}

// adminTargets are the statuses an operator may set directly.
var adminTargets = []enums.OrderStatus{
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
	enums.OrderStatusCancelled,
}

// InitialStatus is the status a new order starts in for the payment method.
func InitialStatus(method enums.PaymentMethod) enums.OrderStatus {
	if method.IsCard() {
		return enums.OrderStatusPending
	}
	return enums.OrderStatusProcessing
}

// CanTransition reports whether from -> to is part of the regular lifecycle.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range lifecycle[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns STATE_CONFLICT when from -> to is not allowed.
func CheckTransition(from, to enums.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, to).
		WithDetails(map[string]any{"current_status": from, "requested_status": to})
}

// CheckCancelable rejects cancellation from shipped, delivered or cancelled.
func CheckCancelable(status enums.OrderStatus) error {
	if CanTransition(status, enums.OrderStatusCancelled) {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot cancel %s order", status).
		WithDetails(map[string]any{"current_status": status})
}

// CancelableStatuses lists the statuses a regular cancellation may start from.
func CancelableStatuses() []enums.OrderStatus {
	out := make([]enums.OrderStatus, 0, 2)
	for from := range lifecycle {
		if CanTransition(from, enums.OrderStatusCancelled) {
			out = append(out, from)
		}
	}
	return out
}

// fulfilmentStatuses are the statuses an order reaches once its stock is committed.
func fulfilmentStatuses() []enums.OrderStatus {
	return []enums.OrderStatus{enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered}
}

// CheckAdminTarget validates the status an operator wants to set.
func CheckAdminTarget(current, target enums.OrderStatus) error {
	allowed := false
	for _, s := range adminTargets {
		if s == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "status %q cannot be set directly", target)
	}
	if current == enums.OrderStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled orders cannot change status").
			WithDetails(map[string]any{"current_status": current, "requested_status": target})
	}
	return nil
}
