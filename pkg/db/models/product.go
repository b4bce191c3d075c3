package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product represents a catalog listing sold in one or more sizes.
type Product struct {
	ID          uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	Title       string        `gorm:"column:title;not null"`
	Description *string       `gorm:"column:description"`
	Images      []string      `gorm:"column:images;type:jsonb;serializer:json"`
	IsActive    bool          `gorm:"column:is_active;not null;default:true"`
	Sizes       []ProductSize `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// PrimaryImage returns the first image url or empty.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Size returns the size entry with the given label.
func (p Product) Size(label string) (ProductSize, bool) {
	for _, s := range p.Sizes {
		if s.Size == label {
			return s, true
		}
	}
	return ProductSize{}, false
}
