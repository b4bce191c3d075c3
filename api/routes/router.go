package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Config               *config.Config
	Logger               *logger.Logger
	DB                   controllers.Pinger
	Redis                controllers.Pinger
	Idempotency          pkgredis.IdempotencyStore
	RateLimiter          pkgredis.RateLimiter
	Orders               *orders.Service
	Coupons              *coupons.Evaluator
	StripeClient         *stripe.Client
	StripeWebhookService *stripewebhook.Service
	StripeWebhookGuard   *stripewebhook.IdempotencyGuard
	Gatherer             prometheus.Gatherer
	// Tokens defaults to a verifier over Config.JWT.
	Tokens middleware.TokenVerifier
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	tokens := deps.Tokens
	if tokens == nil {
		tokens = auth.NewVerifier(cfg.JWT)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.Orders.CheckoutRateWindow,
		cfg.Orders.CheckoutRateLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	if deps.StripeWebhookService != nil && deps.StripeClient != nil {
		r.Route("/api/v1/webhooks", func(r chi.Router) {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhookService, deps.StripeClient, deps.StripeWebhookGuard, logg))
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tokens, logg))

		orderAction := middleware.Idempotency(middleware.OrderActionIdempotency, deps.Idempotency, logg)
		r.Route("/api/v1/orders", func(r chi.Router) {
			r.With(
				middleware.RateLimit(checkoutPolicy, deps.RateLimiter, logg),
				middleware.Idempotency(middleware.CheckoutIdempotency, deps.Idempotency, logg),
			).Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.With(orderAction).Post("/confirm", ordercontrollers.Confirm(deps.Orders, logg))
			r.Get("/mine", ordercontrollers.Mine(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Get(deps.Orders, logg))
			r.With(orderAction).Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Get("/api/v1/coupons/{code}/preview", controllers.CouponPreview(deps.Coupons, logg))

		r.Route("/api/admin/v1/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/", controllers.AdminListOrders(deps.Orders, logg))
			r.With(middleware.Idempotency(middleware.AdminIdempotency, deps.Idempotency, logg)).
				Patch("/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
			r.Delete("/{orderId}", controllers.AdminDeleteOrder(deps.Orders, logg))
		})
	})

	return r
}
