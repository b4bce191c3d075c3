package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type orderConfirmer interface {
	ConfirmOrderForIntent(ctx context.Context, intentID string) (*models.Order, error)
}

type ServiceParams struct {
	Orders orderConfirmer
	Logger *logger.Logger
}

// Service routes verified Stripe events to the order lifecycle.
type Service struct {
	orders orderConfirmer
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{orders: params.Orders, logg: logg}, nil
}

// HandleEvent confirms the matching order on payment_intent.succeeded. Other
// event types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		if pi.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}
		ctx = s.logg.WithField(ctx, "intent_id", pi.ID)

		order, err := s.orders.ConfirmOrderForIntent(ctx, pi.ID)
		switch {
		case err == nil:
			s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order confirmed from webhook")
			return nil
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			// intents created outside checkout, or whose order was never persisted
			s.logg.Warn(ctx, "no order for settled payment intent")
			return nil
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			s.logg.Warn(ctx, "settled payment intent for an order that can no longer be confirmed")
			return nil
		case pkgerrors.IsCode(err, pkgerrors.CodeIntegrity):
			// already logged and counted by the order service; redelivery cannot fix it
			return nil
		default:
			return err
		}
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		s.logg.Info(ctx, "payment intent did not settle; order stays pending")
		return nil
	default:
		return nil
	}
}
