package payments

import "context"

// IntentStatus is the gateway-neutral settlement state of a payment intent.
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusSettled   IntentStatus = "settled"
	IntentStatusCancelled IntentStatus = "cancelled"
	IntentStatusFailed    IntentStatus = "failed"
)

// Intent is what the order flow needs to know about a gateway payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	SettledTxnID string
	AmountCents  int64
	Currency     string
	Metadata     map[string]string
}

// Settled reports whether the gateway considers the funds captured.
func (i *Intent) Settled() bool {
	return i != nil && i.Status == IntentStatusSettled
}

// Gateway creates and inspects card payment intents.
type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
}
