package payment

import (
	"context"
	"fmt"
	"sync"

	"reservation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Call records one provider invocation
type Call struct {
	Operation       string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

type mockIntent struct {
	amount   int64
	captured bool
	refunded int64
}

// MockProvider is a deterministic in-process provider. It is the default in
// development and the stub used by tests; failures are switched on explicitly.
type MockProvider struct {
	mu      sync.Mutex
	intents map[string]*mockIntent
	calls   []Call
	logger  *zap.Logger

	FailAuthorize bool
	FailCapture   bool
	FailRefund    bool
}

// NewMockProvider creates a new mock payment provider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		intents: make(map[string]*mockIntent),
		logger:  util.GetLogger(),
	}
}

// AuthorizePayment places a hold for amount
func (m *MockProvider) AuthorizePayment(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Operation: "authorize", Amount: amount, Currency: currency})

	if m.FailAuthorize {
		m.logger.Warn("Mock authorization declined", zap.Int64("amount", amount))
		return nil, fmt.Errorf("authorize: %w", ErrDeclined)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("authorize: invalid amount %d", amount)
	}

	id := fmt.Sprintf("pi_%s", uuid.New().String()[:8])
	m.intents[id] = &mockIntent{amount: amount}

	m.logger.Info("Mock authorization",
		zap.String("payment_intent_id", id),
		zap.Int64("amount", amount),
		zap.String("reservation_id", metadata["reservation_id"]))

	return &Intent{ID: id, Status: IntentStatusAuthorized}, nil
}

// CapturePayment captures a previously authorized intent in full
func (m *MockProvider) CapturePayment(ctx context.Context, paymentIntentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Operation: "capture", PaymentIntentID: paymentIntentID})

	if m.FailCapture {
		return fmt.Errorf("capture %s: %w", paymentIntentID, ErrDeclined)
	}

	intent, ok := m.intents[paymentIntentID]
	if !ok {
		return fmt.Errorf("capture: unknown payment intent %s", paymentIntentID)
	}
	if intent.captured {
		return fmt.Errorf("capture: payment intent %s already captured", paymentIntentID)
	}
	intent.captured = true
	return nil
}

// RefundPayment refunds a captured intent or releases part of an authorization
func (m *MockProvider) RefundPayment(ctx context.Context, paymentIntentID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Operation: "refund", PaymentIntentID: paymentIntentID, Amount: amount})

	if m.FailRefund {
		return fmt.Errorf("refund %s: %w", paymentIntentID, ErrDeclined)
	}

	intent, ok := m.intents[paymentIntentID]
	if !ok {
		return fmt.Errorf("refund: unknown payment intent %s", paymentIntentID)
	}
	if intent.refunded+amount > intent.amount {
		return fmt.Errorf("refund: amount %d exceeds remaining %d", amount, intent.amount-intent.refunded)
	}
	intent.refunded += amount
	return nil
}

// Calls returns a copy of all recorded invocations
func (m *MockProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns recorded invocations of one operation
func (m *MockProvider) CallsFor(operation string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Operation == operation {
			out = append(out, c)
		}
	}
	return out
}
