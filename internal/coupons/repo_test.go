package coupons

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestRepositoryFindByCode(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:coupons_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Coupon{}))
	require.NoError(t, conn.Create(&models.Coupon{
		Code:         "SAVE10",
		DiscountType: enums.DiscountTypePercentage,
		Amount:       decimal.NewFromInt(10),
		IsActive:     true,
	}).Error)

	repo := NewRepository(conn)

	got, err := repo.FindByCode(context.Background(), "save10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(10)))

	missing, err := repo.FindByCode(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
