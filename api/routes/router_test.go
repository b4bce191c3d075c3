package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: "http://localhost:3000"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "storefront"},
		Orders: config.OrdersConfig{
			CheckoutRateLimit:  10,
			CheckoutRateWindow: time.Minute,
		},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	metrics.NewOrderMetrics(reg).IncCreated("cod")
	return NewRouter(Dependencies{
		Config:   cfg,
		Logger:   logger.Nop(),
		DB:       stubPinger{},
		Redis:    stubPinger{},
		Gatherer: reg,
	}), cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	issuer, err := auth.NewIssuer(cfg.JWT, time.Hour)
	require.NoError(t, err)
	token, err := issuer.Mint(auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"), path)
	}
}

func TestMetricsRoute(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "orders_created_total"))
}

func TestOrderRoutesRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/orders"},
		{http.MethodPost, "/api/v1/orders/confirm"},
		{http.MethodGet, "/api/v1/orders/mine"},
		{http.MethodGet, "/api/v1/orders/" + uuid.NewString()},
		{http.MethodPost, "/api/v1/orders/" + uuid.NewString() + "/cancel"},
		{http.MethodGet, "/api/v1/coupons/SAVE10/preview?subtotal=100"},
		{http.MethodGet, "/api/admin/v1/orders"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tt.path)
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	router, cfg := newTestRouter(t)
	token := bearer(t, cfg, enums.UserRoleCustomer)
	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/admin/v1/orders", ""},
		{http.MethodPatch, "/api/admin/v1/orders/" + uuid.NewString() + "/status", `{"status":"shipped"}`},
		{http.MethodDelete, "/api/admin/v1/orders/" + uuid.NewString(), ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		req.Header.Set("Authorization", token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, tt.path)
	}
}

func TestCreateOrderRequiresIdempotencyKey(t *testing.T) {
	router, cfg := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Idempotency-Key")
}

func TestStripeWebhookUnmountedWithoutClient(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
