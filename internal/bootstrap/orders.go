// Package bootstrap assembles the order lifecycle graph shared by the API and the cron worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/invoices"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/sendgrid"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// OrderStack is the wired order service plus the collaborators callers still need.
type OrderStack struct {
	Orders     *orders.Service
	Coupons    *coupons.Evaluator
	Stripe     *pkgstripe.Client
	Dispatcher *notifications.Dispatcher
	Outbox     *outbox.Repository
}

// NewOrderStack wires repositories, the Stripe gateway, the outbox and the
// notification dispatcher into an orders.Service. Email falls back to the log
// sender when SendGrid is not configured.
func NewOrderStack(ctx context.Context, cfg *config.Config, dbClient *db.Client, reg prometheus.Registerer, logg *logger.Logger) (*OrderStack, error) {
	conn := dbClient.DB()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}

	evaluator, err := coupons.NewEvaluator(coupons.NewRepository(conn))
	if err != nil {
		return nil, err
	}

	var sender notifications.Sender = notifications.LogSender{Logg: logg}
	mailClient, err := sendgrid.NewClient(cfg.Sendgrid)
	if err != nil {
		return nil, fmt.Errorf("sendgrid client: %w", err)
	}
	if mailClient != nil {
		sender = notifications.NewSendgridSender(mailClient)
	} else {
		logg.Warn(ctx, "sendgrid not configured, order emails will only be logged")
	}
	dispatcher := notifications.NewDispatcher(sender, logg, 0)

	renderer, err := invoices.NewRenderer(cfg.Sendgrid.FromName)
	if err != nil {
		return nil, fmt.Errorf("invoice renderer: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	svc, err := orders.NewService(orders.ServiceParams{
		Repo:        orders.NewRepository(conn),
		Catalog:     catalog.NewRepository(conn),
		Coupons:     evaluator,
		Users:       users.NewRepository(conn),
		Gateway:     gateway,
		TxRunner:    dbClient,
		Outbox:      outbox.NewService(outboxRepo, logg),
		Notifier:    dispatcher,
		Documents:   renderer,
		Metrics:     metrics.NewOrderMetrics(reg),
		Logger:      logg,
		Currency:    stripeClient.Currency(),
		MaxPageSize: cfg.Orders.MaxPageSize,
	})
	if err != nil {
		return nil, err
	}

	return &OrderStack{
		Orders:     svc,
		Coupons:    evaluator,
		Stripe:     stripeClient,
		Dispatcher: dispatcher,
		Outbox:     outboxRepo,
	}, nil
}
