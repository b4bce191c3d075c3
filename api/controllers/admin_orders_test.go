package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubAdminOrders struct {
	listFn   func(ctx context.Context, principal auth.Principal, params pagination.Params) (*internalorders.OrderList, error)
	updateFn func(ctx context.Context, principal auth.Principal, orderID uuid.UUID, status string) (*models.Order, error)
	deleteFn func(ctx context.Context, principal auth.Principal, orderID uuid.UUID) error
}

func (s stubAdminOrders) ListOrders(ctx context.Context, principal auth.Principal, params pagination.Params) (*internalorders.OrderList, error) {
	return s.listFn(ctx, principal, params)
}

func (s stubAdminOrders) UpdateStatus(ctx context.Context, principal auth.Principal, orderID uuid.UUID, status string) (*models.Order, error) {
	return s.updateFn(ctx, principal, orderID, status)
}

func (s stubAdminOrders) DeleteOrder(ctx context.Context, principal auth.Principal, orderID uuid.UUID) error {
	return s.deleteFn(ctx, principal, orderID)
}

var operator = auth.Principal{UserID: uuid.New(), Role: enums.UserRoleAdmin}

func adminRequest(method, target, body, orderID string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithPrincipal(req.Context(), operator)
	if orderID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("orderId", orderID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func TestAdminListOrders(t *testing.T) {
	orderID := uuid.New()
	svc := stubAdminOrders{
		listFn: func(ctx context.Context, principal auth.Principal, params pagination.Params) (*internalorders.OrderList, error) {
			assert.True(t, principal.IsAdmin())
			assert.Equal(t, 1, params.Page)
			assert.Equal(t, 5, params.Limit)
			return &internalorders.OrderList{
				Items: []internalorders.OrderResponse{{ID: orderID, Status: "processing", CreatedAt: time.Now().UTC()}},
				Total: 1,
				Page:  1,
				Limit: 5,
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	AdminListOrders(svc, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/orders?limit=5", "", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data internalorders.OrderList `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Items, 1)
	assert.Equal(t, orderID, envelope.Data.Items[0].ID)
}

func TestAdminListOrdersForbiddenForCustomers(t *testing.T) {
	svc := stubAdminOrders{
		listFn: func(ctx context.Context, principal auth.Principal, params pagination.Params) (*internalorders.OrderList, error) {
			return nil, principal.RequireAdmin()
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), auth.Principal{UserID: uuid.New(), Role: enums.UserRoleCustomer}))
	rec := httptest.NewRecorder()
	AdminListOrders(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	orderID := uuid.New()
	svc := stubAdminOrders{
		updateFn: func(ctx context.Context, principal auth.Principal, id uuid.UUID, status string) (*models.Order, error) {
			assert.Equal(t, orderID, id)
			assert.Equal(t, "shipped", status)
			return &models.Order{ID: id, Status: enums.OrderStatusShipped, PaymentMethod: enums.PaymentMethodCOD}, nil
		},
	}

	rec := httptest.NewRecorder()
	req := adminRequest(http.MethodPatch, "/api/admin/v1/orders/"+orderID.String()+"/status", `{"status":"shipped"}`, orderID.String())
	AdminUpdateOrderStatus(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Order internalorders.OrderResponse `json:"order"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "shipped", envelope.Data.Order.Status)
}

func TestAdminUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	orderID := uuid.NewString()
	svc := stubAdminOrders{
		updateFn: func(ctx context.Context, principal auth.Principal, id uuid.UUID, status string) (*models.Order, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	for _, body := range []string{`{"status":"pending"}`, `{"status":"lost"}`, `{}`} {
		rec := httptest.NewRecorder()
		AdminUpdateOrderStatus(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPatch, "/", body, orderID))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAdminDeleteOrder(t *testing.T) {
	orderID := uuid.New()
	deleted := false
	svc := stubAdminOrders{
		deleteFn: func(ctx context.Context, principal auth.Principal, id uuid.UUID) error {
			deleted = id == orderID
			return nil
		},
	}
	rec := httptest.NewRecorder()
	AdminDeleteOrder(svc, nil).ServeHTTP(rec, adminRequest(http.MethodDelete, "/", "", orderID.String()))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, deleted)

	missing := stubAdminOrders{
		deleteFn: func(ctx context.Context, principal auth.Principal, id uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}
	rec = httptest.NewRecorder()
	AdminDeleteOrder(missing, nil).ServeHTTP(rec, adminRequest(http.MethodDelete, "/", "", uuid.NewString()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubPreviewer struct {
	fn func(ctx context.Context, code string, subTotalCents int64, now time.Time) (coupons.Preview, error)
}

func (s stubPreviewer) Preview(ctx context.Context, code string, subTotalCents int64, now time.Time) (coupons.Preview, error) {
	return s.fn(ctx, code, subTotalCents, now)
}

func couponRequest(code, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/coupons/"+code+"/preview"+query, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("code", code)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCouponPreview(t *testing.T) {
	svc := stubPreviewer{fn: func(ctx context.Context, code string, subTotalCents int64, now time.Time) (coupons.Preview, error) {
		assert.Equal(t, "SAVE10", code)
		assert.Equal(t, int64(20000), subTotalCents)
		return coupons.Preview{
			Discount:         coupons.Discount{Code: code, DiscountType: "percentage", DiscountCents: 2000},
			SubTotalCents:    subTotalCents,
			FinalAmountCents: 18000,
		}, nil
	}}

	rec := httptest.NewRecorder()
	CouponPreview(svc, nil).ServeHTTP(rec, couponRequest("save10", "?subtotal=20000"))
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data coupons.Preview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, int64(18000), envelope.Data.FinalAmountCents)
	assert.Equal(t, int64(2000), envelope.Data.DiscountCents)
}

func TestCouponPreviewErrors(t *testing.T) {
	svc := stubPreviewer{fn: func(ctx context.Context, code string, subTotalCents int64, now time.Time) (coupons.Preview, error) {
		return coupons.Preview{}, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon EXPIRED has expired")
	}}

	rec := httptest.NewRecorder()
	CouponPreview(svc, nil).ServeHTTP(rec, couponRequest("expired", "?subtotal=100"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	CouponPreview(svc, nil).ServeHTTP(rec, couponRequest("save10", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-Storefront-Env"))

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"redis": stubPinger{err: context.DeadlineExceeded}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
