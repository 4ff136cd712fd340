package payment

import (
	"context"
	"errors"
)

// Intent statuses reported by a provider
const (
	IntentStatusAuthorized = "authorized"
	IntentStatusFailed     = "failed"
)

// ErrDeclined is returned when the provider refuses an operation
var ErrDeclined = errors.New("payment declined")

// Intent is the provider's view of an authorization
type Intent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Provider is the minimal capability contract of an external payment processor.
// Calls are awaited and never retried by the engine.
type Provider interface {
	AuthorizePayment(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	CapturePayment(ctx context.Context, paymentIntentID string) error
	RefundPayment(ctx context.Context, paymentIntentID string, amount int64) error
}
