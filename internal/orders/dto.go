package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CartLine is one requested line at checkout. Prices are never taken from the client.
type CartLine struct {
	ProductID uuid.UUID
	Size      string
	Qty       int
	Image     string
}

// CreateOrderInput carries a checkout request.
type CreateOrderInput struct {
	Items           []CartLine
	ShippingAddress types.Address
	PaymentMethod   string
	CouponCode      string
}

// CreateOrderResult is the order for COD checkouts, or the intent handle for card checkouts.
type CreateOrderResult struct {
	Order        *models.Order
	OrderID      uuid.UUID
	IntentID     string
	ClientSecret string
}

// CreateOrderResponse is the API view of CreateOrderResult.
type CreateOrderResponse struct {
	Order        *OrderResponse `json:"order,omitempty"`
	OrderID      uuid.UUID      `json:"order_id"`
	IntentID     string         `json:"intent_id,omitempty"`
	ClientSecret string         `json:"client_secret,omitempty"`
}

// Response maps the result for the API. Card checkouts only expose the intent handle.
func (r *CreateOrderResult) Response() CreateOrderResponse {
	resp := CreateOrderResponse{OrderID: r.OrderID, IntentID: r.IntentID, ClientSecret: r.ClientSecret}
	if r.IntentID == "" && r.Order != nil {
		view := ToResponse(r.Order)
		resp.Order = &view
	}
	return resp
}

// OrderList is one page of orders.
type OrderList = types.PageEnvelope[OrderResponse]

// OrderItemResponse is the API view of an order line.
type OrderItemResponse struct {
	ProductID  uuid.UUID `json:"product_id"`
	Title      string    `json:"title"`
	Size       string    `json:"size"`
	PriceCents int64     `json:"price_cents"`
	Qty        int       `json:"qty"`
	Image      string    `json:"image,omitempty"`
}

// CouponAppliedResponse describes the coupon on an order.
type CouponAppliedResponse struct {
	Code          string `json:"code"`
	DiscountCents int64  `json:"discount_cents"`
}

// PaymentInfoResponse is the API view of settlement fields.
type PaymentInfoResponse struct {
	Paid            bool    `json:"paid"`
	TxnID           *string `json:"txn_id,omitempty"`
	GatewayIntentID *string `json:"gateway_intent_id,omitempty"`
	UPITxnID        *string `json:"upi_txn_id,omitempty"`
}

// OrderResponse is the API view of an order.
type OrderResponse struct {
	ID               uuid.UUID              `json:"id"`
	UserID           uuid.UUID              `json:"user_id"`
	Items            []OrderItemResponse    `json:"items"`
	Currency         string                 `json:"currency"`
	SubTotalCents    int64                  `json:"sub_total_cents"`
	CouponApplied    *CouponAppliedResponse `json:"coupon_applied,omitempty"`
	FinalAmountCents int64                  `json:"final_amount_cents"`
	ShippingAddress  types.Address          `json:"shipping_address"`
	Status           string                 `json:"status"`
	PaymentMethod    string                 `json:"payment_method"`
	PaymentInfo      PaymentInfoResponse    `json:"payment_info"`
	CancelledAt      *time.Time             `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// ToResponse maps a stored order to its API view.
func ToResponse(order *models.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ProductID:  item.ProductID,
			Title:      item.Title,
			Size:       item.Size,
			PriceCents: item.PriceCents,
			Qty:        item.Qty,
			Image:      item.Image,
		})
	}
	resp := OrderResponse{
		ID:               order.ID,
		UserID:           order.UserID,
		Items:            items,
		Currency:         order.Currency,
		SubTotalCents:    order.SubTotalCents,
		FinalAmountCents: order.FinalAmountCents,
		ShippingAddress:  order.ShippingAddress,
		Status:           order.Status.String(),
		PaymentMethod:    order.PaymentMethod.String(),
		PaymentInfo: PaymentInfoResponse{
			Paid:            order.PaymentInfo.Paid,
			TxnID:           order.PaymentInfo.TxnID,
			GatewayIntentID: order.PaymentInfo.GatewayIntentID,
			UPITxnID:        order.PaymentInfo.UPITxnID,
		},
		CancelledAt: order.CancelledAt,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	if order.CouponCode != nil {
		resp.CouponApplied = &CouponAppliedResponse{
			Code:          *order.CouponCode,
			DiscountCents: order.CouponDiscountCents,
		}
	}
	return resp
}

func toResponses(rows []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(rows))
	for i := range rows {
		out = append(out, ToResponse(&rows[i]))
	}
	return out
}

// StaleSweepResult summarizes one pass over stale pending orders.
type StaleSweepResult struct {
	Examined  int
	Confirmed int
	Cancelled int
	Failed    int
}
