package service

import (
	"context"
	"fmt"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/payment"
	"reservation-service/internal/timewindow"
	"reservation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChargeQuote is the financial consequence of a cancellation or no-show
type ChargeQuote struct {
	BaseAmount       int64   `json:"base_amount"`
	ChargeAmount     int64   `json:"charge_amount"`
	RefundAmount     int64   `json:"refund_amount"`
	Percentage       int     `json:"percentage"`
	HoursUntil       float64 `json:"hours_until"`
	WithinFreeWindow bool    `json:"within_free_window"`
	Reason           string  `json:"reason"`
}

// CalculateCancellationCharge applies the free window and fee percentage to base.
// Outside the free window with fees disabled the guest still gets everything back.
func CalculateCancellationCharge(policy *models.CancellationPolicy, base int64, hoursUntil float64) ChargeQuote {
	q := ChargeQuote{BaseAmount: base, HoursUntil: hoursUntil}

	if hoursUntil >= float64(policy.FreeCancellationHours) {
		q.WithinFreeWindow = true
		q.RefundAmount = base
		q.Reason = fmt.Sprintf("Cancelled at least %d hours ahead", policy.FreeCancellationHours)
		return q
	}

	if !policy.FeeEnabled {
		q.RefundAmount = base
		q.Reason = "Late cancellation, no fee configured"
		return q
	}

	q.Percentage = policy.FeePercentage
	fee := base * int64(policy.FeePercentage) / 100
	if refund := base - fee; refund > 0 {
		q.ChargeAmount = fee
		q.RefundAmount = refund
	} else {
		q.ChargeAmount = base
	}
	q.Reason = fmt.Sprintf("Cancelled less than %d hours ahead, %d%% fee", policy.FreeCancellationHours, policy.FeePercentage)
	return q
}

// CalculateNoShowCharge applies the no-show percentage to base, capped at base
func CalculateNoShowCharge(policy *models.CancellationPolicy, base int64) ChargeQuote {
	charge := base * int64(policy.NoShowPercentage) / 100
	if charge > base {
		charge = base
	}
	return ChargeQuote{
		BaseAmount:   base,
		ChargeAmount: charge,
		RefundAmount: base - charge,
		Percentage:   policy.NoShowPercentage,
		Reason:       fmt.Sprintf("No-show, %d%% charge", policy.NoShowPercentage),
	}
}

// CancellationQuote previews what cancelling a reservation now would cost
type CancellationQuote struct {
	ReservationID string      `json:"reservation_id"`
	HasDeposit    bool        `json:"has_deposit"`
	HasGuarantee  bool        `json:"has_guarantee"`
	Currency      string      `json:"currency"`
	Quote         ChargeQuote `json:"quote"`
}

// PolicyPreview is the human-readable policy summary
type PolicyPreview struct {
	Policy *models.CancellationPolicy `json:"policy"`
	Lines  []string                   `json:"lines"`
}

// CancellationPolicyEngine computes penalties and drives card guarantees
type CancellationPolicyEngine struct {
	repo     Repository
	payments payment.Provider
	now      Clock
	logger   *zap.Logger
}

// NewCancellationPolicyEngine creates a new policy engine
func NewCancellationPolicyEngine(repo Repository, payments payment.Provider) *CancellationPolicyEngine {
	return &CancellationPolicyEngine{
		repo:     repo,
		payments: payments,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// PolicyFor returns the location's current policy, or the defaults
func (e *CancellationPolicyEngine) PolicyFor(ctx context.Context, locationID string) (*models.CancellationPolicy, error) {
	return loadPolicy(ctx, e.repo, locationID)
}

// guaranteeBase is the amount a card guarantee secures: the deposit the party would have paid
func guaranteeBase(settings *models.LocationSettings, partySize int) int64 {
	return settings.DepositPerPerson * int64(partySize)
}

// QuoteCancellation computes the charge for cancelling now, whether or not a deposit exists
func (e *CancellationPolicyEngine) QuoteCancellation(ctx context.Context, reservationID string) (*CancellationQuote, error) {
	ctx, span := util.StartSpan(ctx, "CancellationPolicyEngine.QuoteCancellation")
	defer span.End()

	r, err := e.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	policy, err := loadPolicy(ctx, e.repo, r.LocationID)
	if err != nil {
		return nil, err
	}
	settings, err := loadSettings(ctx, e.repo, r.LocationID)
	if err != nil {
		return nil, err
	}
	start, err := reservationStart(ctx, e.repo, r)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reservation start: %w", err)
	}

	out := &CancellationQuote{ReservationID: r.ID, Currency: settings.Currency}
	base := guaranteeBase(settings, r.PartySize)

	d, err := e.repo.GetDepositByReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	if d != nil && (d.Status == models.DepositStatusAuthorized || d.Status == models.DepositStatusCharged) {
		out.HasDeposit = true
		out.Currency = d.Currency
		base = d.Amount - d.RefundedAmount
	} else {
		g, err := e.repo.GetCardGuaranteeByReservation(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get card guarantee: %w", err)
		}
		out.HasGuarantee = g != nil && g.Status == models.GuaranteeStatusSaved
		if !out.HasGuarantee {
			base = 0
		}
	}

	out.Quote = CalculateCancellationCharge(policy, base, timewindow.HoursUntil(e.now(), start))
	return out, nil
}

// SaveCardGuarantee registers a payment method against the reservation without charging it
func (e *CancellationPolicyEngine) SaveCardGuarantee(ctx context.Context, reservationID, paymentMethodID string) (*models.CardGuarantee, error) {
	ctx, span := util.StartSpan(ctx, "CancellationPolicyEngine.SaveCardGuarantee")
	defer span.End()

	if paymentMethodID == "" {
		return nil, fmt.Errorf("%w: payment_method_id is required", ErrInvalidRequest)
	}
	r, err := e.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if !r.IsActive() {
		return nil, fmt.Errorf("%w: reservation is %s", ErrInvalidReservationState, r.Status)
	}

	existing, err := e.repo.GetCardGuaranteeByReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get card guarantee: %w", err)
	}
	if existing != nil {
		return nil, ErrGuaranteeExists
	}

	now := e.now()
	g := &models.CardGuarantee{
		ID:              uuid.New().String(),
		ReservationID:   r.ID,
		PaymentMethodID: paymentMethodID,
		Status:          models.GuaranteeStatusSaved,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.repo.CreateCardGuarantee(ctx, g); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to save card guarantee: %w", err)
	}

	e.logger.Info("Card guarantee saved", zap.String("reservation_id", r.ID), zap.String("guarantee_id", g.ID))
	return g, nil
}

// ChargeCardGuarantee authorizes and captures amount against the saved method
func (e *CancellationPolicyEngine) ChargeCardGuarantee(ctx context.Context, reservationID string, amount int64, reason string) (*models.CardGuarantee, error) {
	ctx, span := util.StartSpan(ctx, "CancellationPolicyEngine.ChargeCardGuarantee")
	defer span.End()

	g, err := e.savedGuarantee(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: charge amount must be positive", ErrInvalidRequest)
	}
	r, err := e.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	settings, err := loadSettings(ctx, e.repo, r.LocationID)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"reservation_id":    r.ID,
		"location_id":       r.LocationID,
		"payment_method_id": g.PaymentMethodID,
		"reason":            reason,
	}
	start := time.Now()
	intent, err := e.payments.AuthorizePayment(ctx, amount, settings.Currency, metadata)
	util.PaymentProviderLatency.WithLabelValues("authorize").Observe(time.Since(start).Seconds())
	if err == nil && intent.Status == payment.IntentStatusFailed {
		err = payment.ErrDeclined
	}
	if err == nil {
		start = time.Now()
		err = e.payments.CapturePayment(ctx, intent.ID)
		util.PaymentProviderLatency.WithLabelValues("capture").Observe(time.Since(start).Seconds())
		if err != nil {
			e.releaseHold(ctx, intent.ID, amount)
		}
	}
	if err != nil {
		util.RecordError(span, err)
		e.logger.Error("Card guarantee charge failed",
			zap.String("reservation_id", reservationID),
			zap.Int64("amount", amount),
			zap.Error(err))
		return g, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	g.Status = models.GuaranteeStatusCharged
	g.PaymentIntentID = intent.ID
	g.ChargedAmount = amount
	g.UpdatedAt = e.now()
	if err := e.repo.UpdateCardGuarantee(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to update card guarantee: %w", err)
	}

	e.logger.Info("Card guarantee charged",
		zap.String("reservation_id", reservationID),
		zap.Int64("amount", amount),
		zap.String("reason", reason))
	return g, nil
}

// releaseHold voids an authorization whose capture failed so a retry starts clean
func (e *CancellationPolicyEngine) releaseHold(ctx context.Context, intentID string, amount int64) {
	start := time.Now()
	err := e.payments.RefundPayment(ctx, intentID, amount)
	util.PaymentProviderLatency.WithLabelValues("refund").Observe(time.Since(start).Seconds())
	if err != nil {
		e.logger.Error("Failed to release card guarantee hold",
			zap.String("payment_intent_id", intentID),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}

// ReleaseCardGuarantee drops the hold without charging
func (e *CancellationPolicyEngine) ReleaseCardGuarantee(ctx context.Context, reservationID string) (*models.CardGuarantee, error) {
	ctx, span := util.StartSpan(ctx, "CancellationPolicyEngine.ReleaseCardGuarantee")
	defer span.End()

	g, err := e.savedGuarantee(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	g.Status = models.GuaranteeStatusExpired
	g.UpdatedAt = e.now()
	if err := e.repo.UpdateCardGuarantee(ctx, g); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update card guarantee: %w", err)
	}
	return g, nil
}

func (e *CancellationPolicyEngine) savedGuarantee(ctx context.Context, reservationID string) (*models.CardGuarantee, error) {
	g, err := e.repo.GetCardGuaranteeByReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get card guarantee: %w", err)
	}
	if g == nil {
		return nil, ErrGuaranteeNotFound
	}
	if g.Status != models.GuaranteeStatusSaved {
		return nil, fmt.Errorf("%w: guarantee is %s", ErrInvalidGuaranteeState, g.Status)
	}
	return g, nil
}

// GetCancellationPolicyPreview renders the location's thresholds for guests
func (e *CancellationPolicyEngine) GetCancellationPolicyPreview(ctx context.Context, locationID string) (*PolicyPreview, error) {
	policy, err := loadPolicy(ctx, e.repo, locationID)
	if err != nil {
		return nil, err
	}
	return &PolicyPreview{Policy: policy, Lines: policyLines(policy)}, nil
}

func policyLines(p *models.CancellationPolicy) []string {
	lines := []string{
		fmt.Sprintf("Free cancellation up to %d hours before your reservation.", p.FreeCancellationHours),
	}
	if p.FeeEnabled && p.FeePercentage > 0 {
		lines = append(lines, fmt.Sprintf("Cancellations within %d hours are charged %d%% of the deposit.",
			p.FreeCancellationHours, p.FeePercentage))
	} else {
		lines = append(lines, "Late cancellations are not charged.")
	}
	if p.NoShowPercentage > 0 {
		lines = append(lines, fmt.Sprintf("No-shows are charged %d%% of the deposit.", p.NoShowPercentage))
	}
	if p.CardGuaranteeRequired {
		lines = append(lines, "A card is required to hold the booking. It is only charged if a fee applies.")
	}
	if p.ReconfirmationRequired {
		cutoff := p.ReconfirmationCutoffHours
		if cutoff <= 0 {
			cutoff = defaultReconfirmationCutoffHours
		}
		who := "All bookings"
		if p.ReconfirmationMinPartySize > 1 {
			who = fmt.Sprintf("Parties of %d or more", p.ReconfirmationMinPartySize)
		}
		lines = append(lines, fmt.Sprintf("%s must reconfirm. Unconfirmed bookings are cancelled %d hours before.", who, cutoff))
	}
	return lines
}
