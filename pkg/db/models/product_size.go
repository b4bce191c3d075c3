package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductSize holds the stock counter and unit price for one (product, size).
type ProductSize struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_sizes_product_size"`
	Size       string    `gorm:"column:size;not null;uniqueIndex:ux_product_sizes_product_size"`
	Stock      int       `gorm:"column:stock;not null;default:0;check:stock >= 0"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Position   int       `gorm:"column:position;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *ProductSize) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
