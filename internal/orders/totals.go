package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const maxLineQty = 1000

// quote is a validated cart priced from the live catalog.
type quote struct {
	items         []models.OrderItem
	subTotalCents int64
	discountCents int64
	finalCents    int64
	couponCode    *string
}

func (q *quote) stockLines() []catalog.StockLine {
	return stockLinesFor(q.items)
}

func stockLinesFor(items []models.OrderItem) []catalog.StockLine {
	lines := make([]catalog.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, catalog.StockLine{ProductID: item.ProductID, Size: item.Size, Qty: item.Qty})
	}
	return lines
}

type lineKey struct {
	productID uuid.UUID
	size      string
}

// normalizeLines validates each cart line and merges repeats of the same
// (product, size) so stock is checked against the combined quantity.
func normalizeLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	merged := make([]CartLine, 0, len(lines))
	index := make(map[lineKey]int, len(lines))
	for i, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: product id required", i)
		}
		size := strings.TrimSpace(line.Size)
		if size == "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: size required", i)
		}
		if line.Qty <= 0 || line.Qty > maxLineQty {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d]: qty must be between 1 and %d", i, maxLineQty)
		}
		key := lineKey{productID: line.ProductID, size: size}
		if pos, ok := index[key]; ok {
			merged[pos].Qty += line.Qty
			continue
		}
		line.Size = size
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

// buildQuote resolves every line against the catalog, snapshots title, price
// and image, and applies the coupon. Nothing is mutated.
func (s *Service) buildQuote(ctx context.Context, lines []CartLine, couponCode string) (*quote, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	q := &quote{items: make([]models.OrderItem, 0, len(lines))}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.IsActive {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", line.ProductID).
				WithDetails(map[string]any{"product_id": line.ProductID.String()})
		}
		size, ok := product.Size(line.Size)
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "size %s not available for %s", line.Size, product.Title).
				WithDetails(map[string]any{"product_id": product.ID.String(), "size": line.Size})
		}
		if line.Qty > size.Stock {
			return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "only %d left of %s (%s)", size.Stock, product.Title, size.Size).
				WithDetails(map[string]any{
					"product_id": product.ID.String(),
					"size":       size.Size,
					"requested":  line.Qty,
					"available":  size.Stock,
				})
		}

		image := strings.TrimSpace(line.Image)
		if image == "" {
			image = product.PrimaryImage()
		}
		item := models.OrderItem{
			ProductID:  product.ID,
			Title:      product.Title,
			Size:       size.Size,
			PriceCents: size.PriceCents,
			Qty:        line.Qty,
			Image:      image,
		}
		q.items = append(q.items, item)
		q.subTotalCents += item.LineTotalCents()
	}

	if code := coupons.NormalizeCode(couponCode); code != "" {
		discount, err := s.coupons.Evaluate(ctx, code, q.subTotalCents, s.now())
		if err != nil {
			return nil, err
		}
		q.couponCode = &discount.Code
		q.discountCents = coupons.ClampDiscount(q.subTotalCents, discount.DiscountCents)
	}
	q.finalCents = q.subTotalCents - q.discountCents
	return q, nil
}

// intentMetadata tags the gateway intent with enough to rebuild the order.
func intentMetadata(orderID, userID uuid.UUID, method string, q *quote) map[string]string {
	meta := map[string]string{
		"order_id":           orderID.String(),
		"user_id":            userID.String(),
		"payment_method":     method,
		"sub_total_cents":    fmt.Sprint(q.subTotalCents),
		"discount_cents":     fmt.Sprint(q.discountCents),
		"final_amount_cents": fmt.Sprint(q.finalCents),
	}
	if q.couponCode != nil {
		meta["coupon_code"] = *q.couponCode
	}
	parts := make([]string, 0, len(q.items))
	for _, item := range q.items {
		parts = append(parts, fmt.Sprintf("%s:%s:%d", item.ProductID, item.Size, item.Qty))
	}
	// gateway metadata values are capped at 500 characters
	if encoded := strings.Join(parts, ","); len(encoded) <= 500 {
		meta["items"] = encoded
	}
	return meta
}
