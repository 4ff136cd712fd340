// Package messaging delivers guest emails and SMS. Delivery is fire-and-forget
// from the engine's point of view: callers log failures and move on.
package messaging

import (
	"context"

	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// Messenger is the outbound communication contract
type Messenger interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, body string) error
}

// LogMessenger writes messages to the structured log instead of delivering them
type LogMessenger struct {
	logger *zap.Logger
}

// NewLogMessenger creates a messenger that only logs
func NewLogMessenger() *LogMessenger {
	return &LogMessenger{logger: util.GetLogger()}
}

// SendEmail logs the email
func (m *LogMessenger) SendEmail(ctx context.Context, to, subject, body string) error {
	m.logger.Info("Email",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_length", len(body)))
	return nil
}

// SendSMS logs the SMS
func (m *LogMessenger) SendSMS(ctx context.Context, to, body string) error {
	m.logger.Info("SMS",
		zap.String("to", to),
		zap.Int("body_length", len(body)))
	return nil
}
