package migrate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// SeedDemoCatalog inserts a small catalog and the SAVE10 coupon for local
// development. Rows that already exist (by coupon code or product title) are left alone.
func SeedDemoCatalog(ctx context.Context, conn *gorm.DB) (int, error) {
	products := []models.Product{
		{
			Title:    "Classic Tee",
			Images:   []string{"https://cdn.storefront.local/tee.jpg"},
			IsActive: true,
			Sizes: []models.ProductSize{
				{Size: "S", Stock: 25, PriceCents: 1999, Position: 0},
				{Size: "M", Stock: 40, PriceCents: 1999, Position: 1},
				{Size: "L", Stock: 30, PriceCents: 2199, Position: 2},
			},
		},
		{
			Title:    "Canvas Sneaker",
			Images:   []string{"https://cdn.storefront.local/sneaker.jpg"},
			IsActive: true,
			Sizes: []models.ProductSize{
				{Size: "42", Stock: 10, PriceCents: 6900, Position: 0},
				{Size: "43", Stock: 8, PriceCents: 6900, Position: 1},
			},
		},
	}

	created := 0
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range products {
			var existing int64
			if err := tx.Model(&models.Product{}).Where("title = ?", products[i].Title).Count(&existing).Error; err != nil {
				return fmt.Errorf("check product %q: %w", products[i].Title, err)
			}
			if existing > 0 {
				continue
			}
			if err := tx.Create(&products[i]).Error; err != nil {
				return fmt.Errorf("create product %q: %w", products[i].Title, err)
			}
			created++
		}

		coupon := models.Coupon{
			Code:         "SAVE10",
			DiscountType: enums.DiscountTypePercentage,
			Amount:       decimal.NewFromInt(10),
			IsActive:     true,
		}
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).Create(&coupon)
		if res.Error != nil {
			return fmt.Errorf("create coupon: %w", res.Error)
		}
		created += int(res.RowsAffected)
		return nil
	})
	return created, err
}
