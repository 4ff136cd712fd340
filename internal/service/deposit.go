package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/payment"
	"reservation-service/internal/store"
	"reservation-service/internal/timewindow"
	"reservation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cancellation outcomes, also used as metric labels
const (
	OutcomeNoDeposit     = "no_deposit"
	OutcomeFullRefund    = "full_refund"
	OutcomePartialRefund = "partial_refund"
	OutcomeCharged       = "charged"
	OutcomeNoAction      = "no_action"
)

// CancellationOutcome describes what the ledger did with the deposit
type CancellationOutcome struct {
	Outcome string          `json:"outcome"`
	Deposit *models.Deposit `json:"deposit,omitempty"`
	Quote   ChargeQuote     `json:"quote"`
}

// NoShowOutcome describes the deposit capture and guest penalty of a no-show
type NoShowOutcome struct {
	Deposit     *models.Deposit `json:"deposit,omitempty"`
	NoShowCount int             `json:"no_show_count"`
	Blocked     bool            `json:"blocked"`
}

// DepositLedger drives the deposit payment state machine
type DepositLedger struct {
	repo     Repository
	payments payment.Provider
	events   EventPublisher
	now      Clock
	logger   *zap.Logger
}

// NewDepositLedger creates a new deposit ledger
func NewDepositLedger(repo Repository, payments payment.Provider, events EventPublisher) *DepositLedger {
	return &DepositLedger{
		repo:     repo,
		payments: payments,
		events:   events,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// IsDepositRequired applies the location's deposit rule to the reservation
func (l *DepositLedger) IsDepositRequired(ctx context.Context, r *models.Reservation) (bool, error) {
	settings, err := loadSettings(ctx, l.repo, r.LocationID)
	if err != nil {
		return false, err
	}
	return depositRequired(settings, r.PartySize), nil
}

func depositRequired(settings *models.LocationSettings, partySize int) bool {
	if !settings.DepositRequired {
		return false
	}
	return settings.DepositMinPartySize <= 0 || partySize >= settings.DepositMinPartySize
}

// CalculateDepositAmount returns rate × party size, or zero when a promo waives it
func (l *DepositLedger) CalculateDepositAmount(ctx context.Context, reservationID string) (int64, error) {
	r, err := l.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return 0, fmt.Errorf("failed to get reservation: %w", err)
	}
	amount, _, err := l.amountFor(ctx, r.LocationID, r.PromoCode, r.PartySize)
	return amount, err
}

func (l *DepositLedger) amountFor(ctx context.Context, locationID, promoCode string, partySize int) (int64, *models.LocationSettings, error) {
	settings, err := loadSettings(ctx, l.repo, locationID)
	if err != nil {
		return 0, nil, err
	}
	if promoCode != "" {
		promo, err := l.repo.GetPromoCode(ctx, locationID, promoCode)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to get promo code: %w", err)
		}
		if promo != nil && promo.Active && promo.WaivesDeposit {
			return 0, settings, nil
		}
	}
	return settings.DepositPerPerson * int64(partySize), settings, nil
}

// depositDue reports the amount a new booking would have to put down, zero when none applies
func (l *DepositLedger) depositDue(ctx context.Context, locationID, promoCode string, partySize int) (int64, error) {
	amount, settings, err := l.amountFor(ctx, locationID, promoCode, partySize)
	if err != nil {
		return 0, err
	}
	if !depositRequired(settings, partySize) {
		return 0, nil
	}
	return amount, nil
}

// CreateDeposit authorizes the deposit with the provider and links it to the reservation.
// On authorization failure the deposit is left failed and unlinked, and is returned with the error.
func (l *DepositLedger) CreateDeposit(ctx context.Context, reservationID string) (*models.Deposit, error) {
	ctx, span := util.StartSpan(ctx, "DepositLedger.CreateDeposit")
	defer span.End()

	r, err := l.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	existing, err := l.repo.GetDepositByReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing deposit: %w", err)
	}
	if existing != nil {
		return nil, ErrDepositExists
	}

	amount, settings, err := l.amountFor(ctx, r.LocationID, r.PromoCode, r.PartySize)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, ErrZeroDepositAmount
	}

	now := l.now()
	d := &models.Deposit{
		ID:            uuid.New().String(),
		ReservationID: r.ID,
		LocationID:    r.LocationID,
		Amount:        amount,
		PerPersonRate: settings.DepositPerPerson,
		Currency:      settings.Currency,
		Status:        models.DepositStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.repo.CreateDeposit(ctx, d); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDepositExists
		}
		return nil, fmt.Errorf("failed to create deposit: %w", err)
	}
	util.DepositTransitionsTotal.WithLabelValues(d.Status).Inc()

	metadata := map[string]string{
		"reservation_id": r.ID,
		"deposit_id":     d.ID,
		"location_id":    r.LocationID,
	}
	start := time.Now()
	intent, err := l.payments.AuthorizePayment(ctx, amount, d.Currency, metadata)
	util.PaymentProviderLatency.WithLabelValues("authorize").Observe(time.Since(start).Seconds())
	if err == nil && intent.Status == payment.IntentStatusFailed {
		err = payment.ErrDeclined
	}
	if err != nil {
		util.RecordError(span, err)
		l.fail(ctx, d, models.DepositStatusPending, err)
		return d, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	d.Status = models.DepositStatusAuthorized
	d.PaymentIntentID = intent.ID
	if err := l.transition(ctx, d, models.DepositStatusPending, models.EventTypeDepositAuthorized, ""); err != nil {
		return nil, err
	}
	if err := l.repo.LinkDeposit(ctx, r.ID, d.ID); err != nil {
		return nil, fmt.Errorf("failed to link deposit: %w", err)
	}

	l.logger.Info("Deposit authorized",
		zap.String("deposit_id", d.ID),
		zap.String("reservation_id", r.ID),
		zap.String("amount", formatMoney(d.Amount, d.Currency)))
	return d, nil
}

// ChargeDeposit captures an authorized deposit in full
func (l *DepositLedger) ChargeDeposit(ctx context.Context, depositID string) (*models.Deposit, error) {
	ctx, span := util.StartSpan(ctx, "DepositLedger.ChargeDeposit")
	defer span.End()

	d, err := l.repo.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return l.charge(ctx, d, "")
}

func (l *DepositLedger) charge(ctx context.Context, d *models.Deposit, reason string) (*models.Deposit, error) {
	if d.Status != models.DepositStatusAuthorized {
		return nil, fmt.Errorf("%w: cannot charge a %s deposit", ErrInvalidDepositState, d.Status)
	}
	if d.PaymentIntentID == "" {
		return nil, ErrNoPaymentIntent
	}

	start := time.Now()
	err := l.payments.CapturePayment(ctx, d.PaymentIntentID)
	util.PaymentProviderLatency.WithLabelValues("capture").Observe(time.Since(start).Seconds())
	if err != nil {
		l.fail(ctx, d, models.DepositStatusAuthorized, err)
		return d, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	d.Status = models.DepositStatusCharged
	d.ChargedAmount = d.Amount
	if err := l.transition(ctx, d, models.DepositStatusAuthorized, models.EventTypeDepositCharged, reason); err != nil {
		return nil, err
	}

	l.logger.Info("Deposit charged",
		zap.String("deposit_id", d.ID),
		zap.String("amount", formatMoney(d.ChargedAmount, d.Currency)))
	return d, nil
}

// RefundDeposit returns amount (default: everything not yet refunded) to the guest.
// The cumulative refund never exceeds the original amount.
func (l *DepositLedger) RefundDeposit(ctx context.Context, depositID string, amount *int64, reason string) (*models.Deposit, error) {
	ctx, span := util.StartSpan(ctx, "DepositLedger.RefundDeposit")
	defer span.End()

	d, err := l.repo.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return l.refund(ctx, d, amount, reason)
}

func (l *DepositLedger) refund(ctx context.Context, d *models.Deposit, amount *int64, reason string) (*models.Deposit, error) {
	if d.Status != models.DepositStatusAuthorized && d.Status != models.DepositStatusCharged {
		return nil, fmt.Errorf("%w: cannot refund a %s deposit", ErrInvalidDepositState, d.Status)
	}
	if d.PaymentIntentID == "" {
		return nil, ErrNoPaymentIntent
	}

	remaining := d.Amount - d.RefundedAmount
	refund := remaining
	if amount != nil {
		refund = *amount
	}
	if refund <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrInvalidRequest)
	}
	if refund > remaining {
		return nil, fmt.Errorf("%w: %s requested, %s refundable", ErrRefundExceedsDeposit,
			formatMoney(refund, d.Currency), formatMoney(remaining, d.Currency))
	}

	from := d.Status
	start := time.Now()
	err := l.payments.RefundPayment(ctx, d.PaymentIntentID, refund)
	util.PaymentProviderLatency.WithLabelValues("refund").Observe(time.Since(start).Seconds())
	if err != nil {
		if from == models.DepositStatusAuthorized {
			l.fail(ctx, d, from, err)
		} else {
			// charged is terminal; the failure is recorded but the capture stands
			l.logger.Error("Refund of charged deposit failed",
				zap.String("deposit_id", d.ID),
				zap.Int64("amount", refund),
				zap.Error(err))
		}
		return d, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	d.Status = models.DepositStatusRefunded
	d.RefundedAmount += refund
	d.RefundReason = reason
	if err := l.transition(ctx, d, from, models.EventTypeDepositRefunded, reason); err != nil {
		return nil, err
	}

	l.logger.Info("Deposit refunded",
		zap.String("deposit_id", d.ID),
		zap.String("amount", formatMoney(refund, d.Currency)),
		zap.String("reason", reason))
	return d, nil
}

// HandleCancellation settles the deposit of a cancelled reservation against the current policy
func (l *DepositLedger) HandleCancellation(ctx context.Context, reservationID string) (*CancellationOutcome, error) {
	ctx, span := util.StartSpan(ctx, "DepositLedger.HandleCancellation")
	defer span.End()

	d, err := l.repo.GetDepositByReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	if d == nil {
		return &CancellationOutcome{Outcome: OutcomeNoDeposit}, nil
	}

	r, err := l.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	policy, err := loadPolicy(ctx, l.repo, r.LocationID)
	if err != nil {
		return nil, err
	}
	start, err := reservationStart(ctx, l.repo, r)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reservation start: %w", err)
	}

	quote := CalculateCancellationCharge(policy, d.Amount-d.RefundedAmount, timewindow.HoursUntil(l.now(), start))
	out := &CancellationOutcome{Deposit: d, Quote: quote}

	switch {
	case d.Status != models.DepositStatusAuthorized && d.Status != models.DepositStatusCharged:
		out.Outcome = OutcomeNoAction
	case quote.ChargeAmount == 0:
		out.Outcome = OutcomeFullRefund
		out.Deposit, err = l.refund(ctx, d, nil, quote.Reason)
	case quote.RefundAmount > 0:
		out.Outcome = OutcomePartialRefund
		if d.Status == models.DepositStatusAuthorized {
			// the fee is kept by capturing the hold, then the rest goes back
			if d, err = l.charge(ctx, d, quote.Reason); err != nil {
				out.Deposit = d
				break
			}
		}
		out.Deposit, err = l.refund(ctx, d, &quote.RefundAmount, quote.Reason)
	case d.Status == models.DepositStatusAuthorized:
		out.Outcome = OutcomeCharged
		out.Deposit, err = l.charge(ctx, d, quote.Reason)
	default:
		// already captured, nothing comes back
		out.Outcome = OutcomeCharged
	}
	if err != nil {
		util.RecordError(span, err)
		return out, err
	}

	util.CancellationsTotal.WithLabelValues(out.Outcome).Inc()
	l.logger.Info("Deposit settled for cancellation",
		zap.String("reservation_id", reservationID),
		zap.String("outcome", out.Outcome),
		zap.Int64("charge", quote.ChargeAmount),
		zap.Int64("refund", quote.RefundAmount))
	return out, nil
}

// HandleNoShow captures an authorized deposit in full and counts the no-show
// against the guest, blocking the profile once the location's threshold is hit.
// The counter is updated even when the capture fails; the capture error is returned.
func (l *DepositLedger) HandleNoShow(ctx context.Context, reservationID string) (*NoShowOutcome, error) {
	ctx, span := util.StartSpan(ctx, "DepositLedger.HandleNoShow")
	defer span.End()

	r, err := l.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	out := &NoShowOutcome{}
	var chargeErr error

	d, err := l.repo.GetDepositByReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	if d != nil {
		out.Deposit = d
		if d.Status == models.DepositStatusAuthorized {
			charged, err := l.charge(ctx, d, "no_show")
			if err != nil {
				chargeErr = err
				util.RecordError(span, err)
			} else {
				out.Deposit = charged
			}
		}
	}

	if r.CustomerID != nil {
		count, blocked, err := l.penalizeGuest(ctx, r)
		if err != nil {
			l.logger.Error("Failed to record no-show against guest",
				zap.String("customer_id", *r.CustomerID),
				zap.Error(err))
		}
		out.NoShowCount = count
		out.Blocked = blocked
	}

	return out, chargeErr
}

func (l *DepositLedger) penalizeGuest(ctx context.Context, r *models.Reservation) (int, bool, error) {
	count, err := l.repo.IncrementNoShow(ctx, *r.CustomerID)
	if err != nil {
		return 0, false, err
	}

	settings, err := loadSettings(ctx, l.repo, r.LocationID)
	if err != nil {
		return count, false, err
	}
	if settings.NoShowBlockThreshold <= 0 || count < settings.NoShowBlockThreshold {
		return count, false, nil
	}

	customer, err := l.repo.GetCustomer(ctx, *r.CustomerID)
	if err != nil {
		return count, false, err
	}
	if customer.Blocked {
		return count, true, nil
	}

	reason := fmt.Sprintf("Automatically blocked after %d no-shows", count)
	if err := l.repo.BlockCustomer(ctx, customer.ID, reason, l.now()); err != nil {
		return count, false, err
	}
	util.GuestsBlockedTotal.Inc()
	l.logger.Warn("Guest blocked for repeated no-shows",
		zap.String("customer_id", customer.ID),
		zap.Int("no_show_count", count))
	return count, true, nil
}

// transition persists d only if the stored status is still from
func (l *DepositLedger) transition(ctx context.Context, d *models.Deposit, from, eventType, reason string) error {
	d.UpdatedAt = l.now()
	if err := l.repo.TransitionDeposit(ctx, d, from); err != nil {
		return stateConflict(fmt.Errorf("failed to update deposit: %w", err), ErrInvalidDepositState)
	}
	util.DepositTransitionsTotal.WithLabelValues(d.Status).Inc()
	publishDeposit(ctx, l.events, l.logger, newDepositEvent(d, eventType, reason, d.UpdatedAt))
	return nil
}

// fail moves d to failed after a provider error. The provider error is what the caller reports.
func (l *DepositLedger) fail(ctx context.Context, d *models.Deposit, from string, cause error) {
	d.Status = models.DepositStatusFailed
	d.FailureReason = cause.Error()
	if err := l.transition(ctx, d, from, models.EventTypeDepositFailed, d.FailureReason); err != nil {
		l.logger.Error("Failed to record deposit failure",
			zap.String("deposit_id", d.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	l.logger.Warn("Deposit failed", zap.String("deposit_id", d.ID), zap.Error(cause))
}
