package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// errLostRace marks a compare-and-set update that matched no row.
var errLostRace = errors.New("order changed concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type couponEvaluator interface {
	Evaluate(ctx context.Context, code string, subTotalCents int64, now time.Time) (coupons.Discount, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type notifier interface {
	Notify(ctx context.Context, msg notifications.Message)
}

type documentRenderer interface {
	RenderInvoice(order *models.Order) (string, error)
	RenderStatusUpdate(order *models.Order) (string, error)
}

// ServiceParams wires the order lifecycle dependencies.
type ServiceParams struct {
	Repo        Repository
	Catalog     catalog.Repository
	Coupons     couponEvaluator
	Users       userDirectory
	Gateway     payments.Gateway
	TxRunner    txRunner
	Outbox      outboxEmitter
	Notifier    notifier
	Documents   documentRenderer
	Metrics     *metrics.OrderMetrics
	Logger      *logger.Logger
	Currency    string
	MaxPageSize int
	Now         func() time.Time
}

// Service drives orders through checkout, settlement, cancellation and operator updates.
type Service struct {
	repo        Repository
	catalog     catalog.Repository
	coupons     couponEvaluator
	users       userDirectory
	gateway     payments.Gateway
	tx          txRunner
	outbox      outboxEmitter
	notifier    notifier
	documents   documentRenderer
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	currency    string
	maxPageSize int
	now         func() time.Time
}

// NewService validates params and builds the order service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repository required")
	}
	if params.Coupons == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon evaluator required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user directory required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        params.Repo,
		catalog:     params.Catalog,
		coupons:     params.Coupons,
		users:       params.Users,
		gateway:     params.Gateway,
		tx:          params.TxRunner,
		outbox:      params.Outbox,
		notifier:    params.Notifier,
		documents:   params.Documents,
		metrics:     params.Metrics,
		logg:        logg,
		currency:    currency,
		maxPageSize: params.MaxPageSize,
		now:         now,
	}, nil
}

// CreateOrder validates the cart and either commits stock immediately (COD)
// or opens a gateway intent and records a pending order (card).
func (s *Service) CreateOrder(ctx context.Context, principal auth.Principal, input CreateOrderInput) (*CreateOrderResult, error) {
	if err := principal.Validate(); err != nil {
		return nil, err
	}
	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	lines, err := normalizeLines(input.Items)
	if err != nil {
		return nil, err
	}

	address, err := s.shippingAddress(ctx, principal.UserID, input.ShippingAddress)
	if err != nil {
		return nil, err
	}

	q, err := s.buildQuote(ctx, lines, input.CouponCode)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:                  uuid.New(),
		UserID:              principal.UserID,
		Items:               q.items,
		Currency:            s.currency,
		SubTotalCents:       q.subTotalCents,
		CouponCode:          q.couponCode,
		CouponDiscountCents: q.discountCents,
		FinalAmountCents:    q.finalCents,
		ShippingAddress:     address,
		Status:              InitialStatus(method),
		PaymentMethod:       method,
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	if method.IsCard() {
		return s.createCardOrder(ctx, principal, order, q)
	}
	return s.createCODOrder(ctx, principal, order, q)
}

func (s *Service) createCODOrder(ctx context.Context, principal auth.Principal, order *models.Order, q *quote) (*CreateOrderResult, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.commitStock(ctx, s.catalog.WithTx(tx), q.stockLines()); err != nil {
			return err
		}
		order.StockCommitted = true
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.emit(ctx, tx, principal, enums.EventOrderCreated, order, "")
	})
	if err != nil {
		return nil, s.txError(err, "create order")
	}

	s.metrics.IncCreated(order.PaymentMethod.String())
	s.logg.Info(ctx, "cod order created")
	s.notifyInvoice(ctx, order, "Order placed")
	return &CreateOrderResult{Order: order, OrderID: order.ID}, nil
}

func (s *Service) createCardOrder(ctx context.Context, principal auth.Principal, order *models.Order, q *quote) (*CreateOrderResult, error) {
	if q.finalCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card payment requires a positive amount; use cash on delivery")
	}

	intent, err := s.gateway.CreateIntent(ctx, q.finalCents, s.currency,
		intentMetadata(order.ID, order.UserID, order.PaymentMethod.String(), q))
	if err != nil {
		return nil, err
	}
	intentID := intent.ID
	order.PaymentInfo.GatewayIntentID = &intentID
	ctx = s.logg.WithField(ctx, "intent_id", intentID)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.emit(ctx, tx, principal, enums.EventOrderCreated, order, "")
	})
	if err != nil {
		if cancelErr := s.gateway.CancelIntent(ctx, intentID); cancelErr != nil {
			s.logg.Error(ctx, "failed to cancel intent after order persistence failure", cancelErr)
		}
		return nil, s.txError(err, "create order")
	}

	s.metrics.IncCreated(order.PaymentMethod.String())
	s.logg.Info(ctx, "card order awaiting settlement")
	return &CreateOrderResult{
		Order:        order,
		OrderID:      order.ID,
		IntentID:     intentID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// ConfirmOrder verifies settlement with the gateway and commits stock for the
// matching pending order. Repeated calls for a paid order return it unchanged.
func (s *Service) ConfirmOrder(ctx context.Context, principal auth.Principal, intentID string) (*models.Order, error) {
	if err := principal.Validate(); err != nil {
		return nil, err
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id required")
	}
	ctx = s.logg.WithField(ctx, "intent_id", intentID)

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !intent.Settled() {
		return nil, pkgerrors.New(pkgerrors.CodePaymentIncomplete, "payment not completed").
			WithDetails(map[string]any{"intent_id": intentID, "intent_status": string(intent.Status)})
	}

	order, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.confirm(ctx, principal, order, intent)
}

// ConfirmOrderForIntent confirms on behalf of the platform, e.g. from a gateway webhook.
func (s *Service) ConfirmOrderForIntent(ctx context.Context, intentID string) (*models.Order, error) {
	return s.ConfirmOrder(ctx, auth.System(), intentID)
}

func (s *Service) confirm(ctx context.Context, principal auth.Principal, order *models.Order, intent *payments.Intent) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if order.PaymentInfo.Paid {
		return order, nil
	}
	// operators may have shipped an unpaid card order; only the payment is missing
	settleOnly := settlementOnly(order)
	if !settleOnly {
		if err := CheckTransition(order.Status, enums.OrderStatusProcessing); err != nil {
			return nil, err
		}
	}
	if err := matchIntent(order, intent); err != nil {
		s.metrics.IncIntegrityError("confirm")
		s.logg.Error(ctx, "settled payment does not match order", err)
		return nil, err
	}

	txnID := intent.SettledTxnID
	if txnID == "" {
		txnID = intent.ID
	}

	var confirmed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		mark := repo.MarkPaid
		if settleOnly {
			mark = repo.RecordSettlement
		}
		ok, err := mark(ctx, order.ID, txnID)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		if !settleOnly {
			if err := s.commitStock(ctx, s.catalog.WithTx(tx), stockLinesFor(order.Items)); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
					return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "payment settled but stock could not be committed").
						WithDetails(map[string]any{"order_id": order.ID.String(), "intent_id": intent.ID})
				}
				return err
			}
		}
		reloaded, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		confirmed = reloaded
		return s.emit(ctx, tx, principal, enums.EventOrderPaid, reloaded, order.Status)
	})
	if errors.Is(err, errLostRace) {
		current, findErr := s.repo.FindByID(ctx, order.ID)
		if findErr != nil {
			return nil, findErr
		}
		if current.PaymentInfo.Paid {
			return current, nil
		}
		if !settlementOnly(current) {
			if err := CheckTransition(current.Status, enums.OrderStatusProcessing); err != nil {
				return nil, err
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently; retry confirmation")
	}
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeIntegrity) {
			s.metrics.IncIntegrityError("confirm")
			s.logg.Error(ctx, "settled payment could not commit stock", err)
		}
		return nil, s.txError(err, "confirm order")
	}

	s.metrics.IncConfirmed()
	s.logg.Info(s.logg.WithField(ctx, "settlement_only", settleOnly), "order payment confirmed")
	s.notifyInvoice(ctx, confirmed, "Payment received")
	return confirmed, nil
}

// matchIntent rejects a settled intent whose amount, currency or order tag
// disagree with the order it is about to pay for.
func matchIntent(order *models.Order, intent *payments.Intent) error {
	var mismatch []string
	if intent.AmountCents != order.FinalAmountCents {
		mismatch = append(mismatch, "amount")
	}
	if !strings.EqualFold(intent.Currency, order.Currency) {
		mismatch = append(mismatch, "currency")
	}
	if tagged, ok := intent.Metadata["order_id"]; ok && tagged != order.ID.String() {
		mismatch = append(mismatch, "order_id")
	}
	if len(mismatch) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeIntegrity, "settled payment does not match order").
		WithDetails(map[string]any{
			"order_id":        order.ID.String(),
			"intent_id":       intent.ID,
			"mismatch":        mismatch,
			"intent_amount":   intent.AmountCents,
			"order_amount":    order.FinalAmountCents,
			"intent_currency": intent.Currency,
		})
}

// rejectIfSettled refuses to cancel a card order whose intent has already
// captured funds the order has not recorded.
func (s *Service) rejectIfSettled(ctx context.Context, order *models.Order) error {
	if !openIntent(order) {
		return nil
	}
	intent, err := s.gateway.RetrieveIntent(ctx, *order.PaymentInfo.GatewayIntentID)
	if err != nil {
		return err
	}
	if intent.Settled() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already settled; confirm the order before cancelling").
			WithDetails(map[string]any{"current_status": order.Status, "intent_id": intent.ID})
	}
	return nil
}

// CancelOrder cancels a pending or processing order for its owner or an operator,
// restoring any stock the order had committed.
func (s *Service) CancelOrder(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*models.Order, error) {
	if err := principal.Validate(); err != nil {
		return nil, err
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if err := CheckCancelable(order.Status); err != nil {
		return nil, err
	}

	if err := s.rejectIfSettled(ctx, order); err != nil {
		return nil, err
	}
	return s.cancel(ctx, principal, order, CancelableStatuses())
}

func (s *Service) cancel(ctx context.Context, principal auth.Principal, order *models.Order, from []enums.OrderStatus) (*models.Order, error) {
	now := s.now().UTC()
	restored := false

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateIfStatus(ctx, order.ID, from, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}

		current, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.StockCommitted {
			if err := catalog.RestoreLines(ctx, s.catalog.WithTx(tx), stockLinesFor(current.Items)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
			}
			if _, err := repo.UpdateIfStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusCancelled}, map[string]any{
				"stock_committed": false,
			}); err != nil {
				return err
			}
			current.StockCommitted = false
			restored = true
		}
		cancelled = current
		return s.emitWith(ctx, tx, principal, enums.EventOrderCancelled, current, order.Status, restored)
	})
	if errors.Is(err, errLostRace) {
		current, findErr := s.repo.FindByID(ctx, order.ID)
		if findErr != nil {
			return nil, findErr
		}
		if err := CheckCancelable(current.Status); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently; reload and retry")
	}
	if err != nil {
		return nil, s.txError(err, "cancel order")
	}

	if openIntent(order) && !cancelled.PaymentInfo.Paid {
		if cancelErr := s.gateway.CancelIntent(ctx, *order.PaymentInfo.GatewayIntentID); cancelErr != nil {
			s.logg.Error(ctx, "failed to cancel payment intent", cancelErr)
		}
	}

	s.metrics.IncCancelled(actorLabel(principal, order.UserID))
	ctx = s.logg.WithField(ctx, "stock_restored", restored)
	s.logg.Info(ctx, "order cancelled")
	s.notifyStatus(ctx, cancelled, "Order cancelled")
	return cancelled, nil
}

// UpdateStatus lets an operator set processing, shipped, delivered or cancelled
// directly. Cancelled orders stay cancelled.
func (s *Service) UpdateStatus(ctx context.Context, principal auth.Principal, orderID uuid.UUID, status string) (*models.Order, error) {
	if err := principal.RequireAdmin(); err != nil {
		return nil, err
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	target, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := CheckAdminTarget(order.Status, target); err != nil {
		return nil, err
	}
	if order.Status == target {
		return order, nil
	}

	if target == enums.OrderStatusCancelled {
		if err := s.rejectIfSettled(ctx, order); err != nil {
			return nil, err
		}
		return s.cancel(ctx, principal, order, []enums.OrderStatus{order.Status})
	}
	return s.advance(ctx, principal, order, target)
}

func (s *Service) advance(ctx context.Context, principal auth.Principal, order *models.Order, target enums.OrderStatus) (*models.Order, error) {
	updates := map[string]any{"status": target}
	if target == enums.OrderStatusDelivered && !order.PaymentMethod.IsCard() {
		updates["paid"] = true
	}
	commitNow := !order.StockCommitted

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateIfStatus(ctx, order.ID, []enums.OrderStatus{order.Status}, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		if commitNow {
			if err := s.commitStock(ctx, s.catalog.WithTx(tx), stockLinesFor(order.Items)); err != nil {
				return err
			}
			if _, err := repo.UpdateIfStatus(ctx, order.ID, []enums.OrderStatus{target}, map[string]any{
				"stock_committed": true,
			}); err != nil {
				return err
			}
		}
		reloaded, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		updated = reloaded
		return s.emit(ctx, tx, principal, enums.EventOrderStatusChanged, reloaded, order.Status)
	})
	if errors.Is(err, errLostRace) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently; reload and retry")
	}
	if err != nil {
		return nil, s.txError(err, "update order status")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"from_status": order.Status, "to_status": target})
	s.logg.Info(ctx, "order status updated by operator")
	s.notifyStatus(ctx, updated, fmt.Sprintf("Order %s", target))
	return updated, nil
}

// GetOrder returns one order to its owner or an operator.
func (s *Service) GetOrder(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*models.Order, error) {
	if err := principal.Validate(); err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

// ListOrders pages through every order, newest first. Operators only.
func (s *Service) ListOrders(ctx context.Context, principal auth.Principal, params pagination.Params) (*OrderList, error) {
	if err := principal.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.list(ctx, ListFilter{}, params)
}

// ListMyOrders pages through the caller's own orders, newest first.
func (s *Service) ListMyOrders(ctx context.Context, principal auth.Principal, params pagination.Params) (*OrderList, error) {
	if err := principal.Validate(); err != nil {
		return nil, err
	}
	userID := principal.UserID
	return s.list(ctx, ListFilter{UserID: &userID}, params)
}

func (s *Service) list(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	params = params.Normalize(s.maxPageSize)
	rows, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, err
	}
	return &OrderList{
		Items: toResponses(rows),
		Total: total,
		Page:  params.Page,
		Limit: params.Limit,
	}, nil
}

// DeleteOrder removes an order unconditionally. Stock is not restored.
func (s *Service) DeleteOrder(ctx context.Context, principal auth.Principal, orderID uuid.UUID) error {
	if err := principal.RequireAdmin(); err != nil {
		return err
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		deleted, err := repo.Delete(ctx, orderID)
		if err != nil {
			return err
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return s.emit(ctx, tx, principal, enums.EventOrderDeleted, order, order.Status)
	})
	if err != nil {
		return s.txError(err, "delete order")
	}
	s.logg.Info(ctx, "order deleted by operator")
	return nil
}

// PurgeCancelled deletes cancelled orders whose cancellation is older than retention.
func (s *Service) PurgeCancelled(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if retention <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "retention must be positive")
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := s.now().UTC().Add(-retention)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.repo.DeleteCancelledBefore(ctx, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

// ReconcileStalePending settles or cancels card orders left pending past ttl.
func (s *Service) ReconcileStalePending(ctx context.Context, ttl time.Duration, batchSize int) (StaleSweepResult, error) {
	var result StaleSweepResult
	if ttl <= 0 {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "pending ttl must be positive")
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	cutoff := s.now().UTC().Add(-ttl)

	stale, err := s.repo.FindPendingCardBefore(ctx, cutoff, batchSize)
	if err != nil {
		return result, err
	}

	system := auth.System()
	var errs error
	for i := range stale {
		order := &stale[i]
		result.Examined++
		orderCtx := s.logg.WithOrderID(ctx, order.ID.String())

		if order.PaymentInfo.GatewayIntentID != nil {
			intent, err := s.gateway.RetrieveIntent(orderCtx, *order.PaymentInfo.GatewayIntentID)
			if err != nil {
				result.Failed++
				errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
				continue
			}
			if intent.Settled() {
				if _, err := s.confirm(orderCtx, system, order, intent); err != nil {
					result.Failed++
					errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
					continue
				}
				result.Confirmed++
				continue
			}
		}

		if _, err := s.cancel(orderCtx, system, order, []enums.OrderStatus{enums.OrderStatusPending}); err != nil {
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		result.Cancelled++
	}
	return result, errs
}

// shippingAddress fills blank fields from the buyer's profile and rejects
// addresses that are still incomplete.
func (s *Service) shippingAddress(ctx context.Context, userID uuid.UUID, requested types.Address) (types.Address, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return types.Address{}, err
	}
	var fallback types.Address
	if user.DefaultAddress != nil {
		fallback = *user.DefaultAddress
	}
	if fallback.FullName == "" {
		fallback.FullName = user.Name
	}
	if fallback.Phone == "" && user.Phone != nil {
		fallback.Phone = *user.Phone
	}

	address := requested.WithDefaults(fallback)
	if missing := address.MissingFields(); len(missing) > 0 {
		return types.Address{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing_fields": missing})
	}
	return address, nil
}

// commitStock decrements every line. If a line fails after earlier ones
// succeeded, the earlier ones are re-incremented before the error is returned.
func (s *Service) commitStock(ctx context.Context, repo catalog.Repository, lines []catalog.StockLine) error {
	applied, err := catalog.CommitLines(ctx, repo, lines)
	if err == nil {
		return nil
	}
	if len(applied) > 0 {
		if restoreErr := catalog.RestoreLines(ctx, repo, applied); restoreErr != nil {
			s.logg.Error(ctx, "failed to compensate partial stock commit", restoreErr)
		}
	}
	return err
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, principal auth.Principal, eventType enums.OutboxEventType, order *models.Order, previous enums.OrderStatus) error {
	return s.emitWith(ctx, tx, principal, eventType, order, previous, false)
}

func (s *Service) emitWith(ctx context.Context, tx *gorm.DB, principal auth.Principal, eventType enums.OutboxEventType, order *models.Order, previous enums.OrderStatus, stockRestored bool) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor: &outbox.ActorRef{
			UserID: principal.UserID,
			Role:   principal.Role.String(),
		},
		Data: outbox.OrderEvent{
			OrderID:          order.ID,
			UserID:           order.UserID,
			Status:           order.Status.String(),
			PreviousStatus:   previous.String(),
			PaymentMethod:    order.PaymentMethod.String(),
			FinalAmountCents: order.FinalAmountCents,
			Currency:         order.Currency,
			Paid:             order.PaymentInfo.Paid,
			StockRestored:    stockRestored,
		},
	})
}

// txError keeps typed errors and wraps anything else as a dependency failure.
func (s *Service) txError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func (s *Service) notifyInvoice(ctx context.Context, order *models.Order, subject string) {
	if s.notifier == nil || s.documents == nil {
		return
	}
	to := s.recipient(ctx, order.UserID)
	if to == "" {
		return
	}
	html, err := s.documents.RenderInvoice(order)
	if err != nil {
		s.logg.Error(ctx, "failed to render invoice", err)
		return
	}
	s.notifier.Notify(ctx, notifications.Message{
		To:       to,
		Subject:  subject,
		HTMLBody: html,
		Attachments: []notifications.Attachment{{
			Filename:    fmt.Sprintf("invoice-%s.html", order.ID),
			ContentType: "text/html",
			Content:     []byte(html),
		}},
	})
}

func (s *Service) notifyStatus(ctx context.Context, order *models.Order, subject string) {
	if s.notifier == nil || s.documents == nil {
		return
	}
	to := s.recipient(ctx, order.UserID)
	if to == "" {
		return
	}
	html, err := s.documents.RenderStatusUpdate(order)
	if err != nil {
		s.logg.Error(ctx, "failed to render status email", err)
		return
	}
	s.notifier.Notify(ctx, notifications.Message{To: to, Subject: subject, HTMLBody: html})
}

func (s *Service) recipient(ctx context.Context, userID uuid.UUID) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logg.Error(ctx, "failed to resolve notification recipient", err)
		return ""
	}
	return user.Email
}

// openIntent reports whether the order is a live card order whose payment has
// not been recorded yet.
func openIntent(order *models.Order) bool {
	return order.PaymentMethod.IsCard() &&
		order.Status != enums.OrderStatusCancelled &&
		!order.PaymentInfo.Paid &&
		order.PaymentInfo.GatewayIntentID != nil
}

// settlementOnly reports whether confirming the order only needs to record the
// payment because its stock was committed by an operator status change.
func settlementOnly(order *models.Order) bool {
	return openIntent(order) && order.StockCommitted && slices.Contains(fulfilmentStatuses(), order.Status)
}

func actorLabel(principal auth.Principal, ownerID uuid.UUID) string {
	switch {
	case principal.UserID == auth.SystemUserID:
		return "system"
	case principal.Owns(ownerID):
		return "owner"
	default:
		return "admin"
	}
}
