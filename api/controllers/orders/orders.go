package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Service is the order lifecycle surface used by the customer routes.
type Service interface {
	CreateOrder(ctx context.Context, principal auth.Principal, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error)
	ConfirmOrder(ctx context.Context, principal auth.Principal, intentID string) (*models.Order, error)
	CancelOrder(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*models.Order, error)
	GetOrder(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*models.Order, error)
	ListMyOrders(ctx context.Context, principal auth.Principal, params pagination.Params) (*internalorders.OrderList, error)
}

type cartLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Size      string `json:"size" validate:"required,max=16"`
	Qty       int    `json:"qty" validate:"required,min=1,max=100"`
	Image     string `json:"image,omitempty" validate:"omitempty,max=512"`
}

type createOrderRequest struct {
	Items           []cartLineRequest `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingAddress types.Address     `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method" validate:"required,oneof=cod stripe"`
	CouponCode      string            `json:"coupon_code,omitempty" validate:"omitempty,coupon"`
}

type confirmOrderRequest struct {
	IntentID string `json:"intent_id" validate:"required,max=255"`
}

type orderEnvelope struct {
	Order internalorders.OrderResponse `json:"order"`
}

// Create places an order from the caller's cart.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalorders.CreateOrderInput{
			ShippingAddress: body.ShippingAddress,
			PaymentMethod:   body.PaymentMethod,
			CouponCode:      validators.SanitizeString(body.CouponCode, 64),
		}
		for _, line := range body.Items {
			productID, err := uuid.Parse(line.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			input.Items = append(input.Items, internalorders.CartLine{
				ProductID: productID,
				Size:      validators.SanitizeString(line.Size, 16),
				Qty:       line.Qty,
				Image:     line.Image,
			})
		}

		result, err := svc.CreateOrder(r.Context(), principal, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result.Response())
	}
}

// Confirm finalizes a card order once the gateway reports settlement.
func Confirm(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		var body confirmOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ConfirmOrder(r.Context(), principal, validators.SanitizeString(body.IntentID, 255))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderEnvelope{Order: internalorders.ToResponse(order)})
	}
}

// Mine lists the caller's orders, newest first.
func Mine(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListMyOrders(r.Context(), principal, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Get returns one order to its owner or an operator.
func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), principal, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderEnvelope{Order: internalorders.ToResponse(order)})
	}
}

// Cancel cancels an order on behalf of its owner or an operator.
func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CancelOrder(r.Context(), principal, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderEnvelope{Order: internalorders.ToResponse(order)})
	}
}

func requirePrincipal(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return auth.Principal{}, false
	}
	return principal, true
}
