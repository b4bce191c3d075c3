package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// User is the buyer profile; shipping defaults are read from it at checkout.
type User struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email          string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name           string         `gorm:"column:name;not null"`
	Phone          *string        `gorm:"column:phone"`
	Role           enums.UserRole `gorm:"column:role;type:text;not null;default:'customer'"`
	DefaultAddress *types.Address `gorm:"column:default_address;type:jsonb;serializer:json"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
