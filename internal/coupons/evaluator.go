package coupons

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Discount is the result of applying a coupon to a subtotal.
type Discount struct {
	Code          string `json:"code"`
	DiscountType  string `json:"discount_type"`
	DiscountCents int64  `json:"discount_cents"`
}

// Preview is the checkout summary view of a coupon against a subtotal.
type Preview struct {
	Discount
	SubTotalCents    int64 `json:"sub_total_cents"`
	FinalAmountCents int64 `json:"final_amount_cents"`
}

// Evaluator validates coupon codes and computes discounts.
type Evaluator struct {
	repo Repository
}

// NewEvaluator returns an evaluator over repo.
func NewEvaluator(repo Repository) (*Evaluator, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon repository required")
	}
	return &Evaluator{repo: repo}, nil
}

// Evaluate resolves code and returns the discount it grants on subTotalCents.
// Unknown, inactive, expired and under-minimum coupons are rejected.
func (e *Evaluator) Evaluate(ctx context.Context, code string, subTotalCents int64, now time.Time) (Discount, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Discount{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if subTotalCents < 0 {
		return Discount{}, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must not be negative")
	}

	coupon, err := e.repo.FindByCode(ctx, normalized)
	if err != nil {
		return Discount{}, err
	}
	if coupon == nil {
		return Discount{}, rejection(normalized, "coupon not found")
	}
	if !coupon.IsActive {
		return Discount{}, rejection(normalized, "coupon is inactive")
	}
	if coupon.ExpiryDate != nil && !coupon.ExpiryDate.After(now) {
		return Discount{}, rejection(normalized, "coupon has expired")
	}
	if subTotalCents < coupon.MinOrderValueCents {
		return Discount{}, rejection(normalized, "minimum order value not met").
			WithDetails(map[string]any{
				"code":                  normalized,
				"min_order_value_cents": coupon.MinOrderValueCents,
				"sub_total_cents":       subTotalCents,
			})
	}

	cents, err := DiscountCents(coupon, subTotalCents)
	if err != nil {
		return Discount{}, err
	}
	return Discount{
		Code:          coupon.Code,
		DiscountType:  string(coupon.DiscountType),
		DiscountCents: cents,
	}, nil
}

// Preview evaluates code and clamps the discount to the subtotal.
func (e *Evaluator) Preview(ctx context.Context, code string, subTotalCents int64, now time.Time) (Preview, error) {
	discount, err := e.Evaluate(ctx, code, subTotalCents, now)
	if err != nil {
		return Preview{}, err
	}
	discount.DiscountCents = ClampDiscount(subTotalCents, discount.DiscountCents)
	return Preview{
		Discount:         discount,
		SubTotalCents:    subTotalCents,
		FinalAmountCents: subTotalCents - discount.DiscountCents,
	}, nil
}

// DiscountCents computes the raw (unclamped) discount for a coupon.
// Percentages round half away from zero to the nearest cent.
func DiscountCents(coupon *models.Coupon, subTotalCents int64) (int64, error) {
	if coupon.Amount.IsNegative() {
		return 0, pkgerrors.Newf(pkgerrors.CodeInvalidCoupon, "coupon %s has a negative amount", coupon.Code)
	}
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		return decimal.NewFromInt(subTotalCents).
			Mul(coupon.Amount).
			Div(hundred).
			Round(0).
			IntPart(), nil
	case enums.DiscountTypeFixed:
		return coupon.Amount.Mul(hundred).Round(0).IntPart(), nil
	default:
		return 0, pkgerrors.Newf(pkgerrors.CodeInvalidCoupon, "coupon %s has unknown discount type %q", coupon.Code, coupon.DiscountType)
	}
}

// ClampDiscount keeps a discount within [0, subTotalCents].
func ClampDiscount(subTotalCents, discountCents int64) int64 {
	if discountCents < 0 {
		return 0
	}
	if discountCents > subTotalCents {
		return subTotalCents
	}
	return discountCents
}

func rejection(code, reason string) *pkgerrors.Error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidCoupon, "%s: %s", code, reason).
		WithDetails(map[string]any{"code": code, "reason": reason})
}
