package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Repository reads products and mutates per-size stock counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) error
	IncrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Sizes", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

// FindProducts loads every product in ids; missing ids are simply absent from the map.
func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Sizes", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		Where("id IN ?", ids).
		Find(&products).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

// DecrementStock removes qty from one (product, size) counter in a single
// conditional statement. Zero affected rows means the counter would go negative.
func (r *repository) DecrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).Exec(`
		UPDATE product_sizes
		SET stock = stock - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND size = ? AND stock >= ?
	`, qty, productID, strings.TrimSpace(size), qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for product %s size %s", productID, size).
			WithDetails(map[string]any{"product_id": productID.String(), "size": size, "requested": qty})
	}
	return nil
}

// IncrementStock returns qty to one (product, size) counter.
func (r *repository) IncrementStock(ctx context.Context, productID uuid.UUID, size string, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).Exec(`
		UPDATE product_sizes
		SET stock = stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND size = ?
	`, qty, productID, strings.TrimSpace(size))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "size %s of product %s not found", size, productID)
	}
	return nil
}
