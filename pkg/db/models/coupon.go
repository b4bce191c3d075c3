package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Coupon is a redeemable discount code.
type Coupon struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code               string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType       enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	Amount             decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	MinOrderValueCents int64              `gorm:"column:min_order_value_cents;not null;default:0"`
	ExpiryDate         *time.Time         `gorm:"column:expiry_date"`
	IsActive           bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
