package outbox

import "github.com/google/uuid"

// OrderEvent is the data body for every order lifecycle event.
type OrderEvent struct {
	OrderID          uuid.UUID `json:"orderId"`
	UserID           uuid.UUID `json:"userId"`
	Status           string    `json:"status"`
	PreviousStatus   string    `json:"previousStatus,omitempty"`
	PaymentMethod    string    `json:"paymentMethod"`
	FinalAmountCents int64     `json:"finalAmountCents"`
	Currency         string    `json:"currency"`
	Paid             bool      `json:"paid"`
	StockRestored    bool      `json:"stockRestored,omitempty"`
}
