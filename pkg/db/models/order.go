package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// OrderItem is the catalog snapshot captured when the order is created.
type OrderItem struct {
	ProductID  uuid.UUID `json:"product_id"`
	Title      string    `json:"title"`
	Size       string    `json:"size"`
	PriceCents int64     `json:"price_cents"`
	Qty        int       `json:"qty"`
	Image      string    `json:"image,omitempty"`
}

// LineTotalCents returns price times quantity.
func (i OrderItem) LineTotalCents() int64 {
	return i.PriceCents * int64(i.Qty)
}

// PaymentInfo groups settlement fields; stored inline on the orders table.
type PaymentInfo struct {
	Paid            bool    `gorm:"column:paid;not null;default:false"`
	TxnID           *string `gorm:"column:txn_id"`
	GatewayIntentID *string `gorm:"column:gateway_intent_id;uniqueIndex"`
	UPITxnID        *string `gorm:"column:upi_txn_id"`
}

// Order is a purchase placed by a single user.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Items               []OrderItem         `gorm:"column:items;type:jsonb;serializer:json;not null"`
	Currency            string              `gorm:"column:currency;not null;default:'usd'"`
	SubTotalCents       int64               `gorm:"column:sub_total_cents;not null"`
	CouponCode          *string             `gorm:"column:coupon_code"`
	CouponDiscountCents int64               `gorm:"column:coupon_discount_cents;not null;default:0"`
	FinalAmountCents    int64               `gorm:"column:final_amount_cents;not null"`
	ShippingAddress     types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	Status              enums.OrderStatus   `gorm:"column:status;type:text;not null;index"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentInfo         PaymentInfo         `gorm:"embedded"`
	StockCommitted      bool                `gorm:"column:stock_committed;not null;default:false"`
	CancelledAt         *time.Time          `gorm:"column:cancelled_at;index"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
