package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservation-service/internal/messaging"
	"reservation-service/internal/models"
	"reservation-service/internal/store"
	"reservation-service/internal/timewindow"
	"reservation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingOptions tune the booking flow
type BookingOptions struct {
	LockTTL                   time.Duration
	AutoAssign                bool
	ReconfirmationCutoffHours int
}

// ReservationService orchestrates the booking lifecycle across the engine components
type ReservationService struct {
	repo         Repository
	locker       Locker
	events       EventPublisher
	messenger    messaging.Messenger
	availability *AvailabilityChecker
	pacing       *PacingController
	seating      *SeatingAssigner
	deposits     *DepositLedger
	policies     *CancellationPolicyEngine
	occupancy    *OccupancyService
	opts         BookingOptions
	now          Clock
	logger       *zap.Logger
}

// NewReservationService creates a new reservation service
func NewReservationService(
	repo Repository,
	locker Locker,
	events EventPublisher,
	messenger messaging.Messenger,
	availability *AvailabilityChecker,
	pacing *PacingController,
	seating *SeatingAssigner,
	deposits *DepositLedger,
	policies *CancellationPolicyEngine,
	occupancy *OccupancyService,
	opts BookingOptions,
) *ReservationService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &ReservationService{
		repo:         repo,
		locker:       locker,
		events:       events,
		messenger:    messenger,
		availability: availability,
		pacing:       pacing,
		seating:      seating,
		deposits:     deposits,
		policies:     policies,
		occupancy:    occupancy,
		opts:         opts,
		now:          time.Now,
		logger:       util.GetLogger(),
	}
}

// CreateReservationRequest represents a booking request
type CreateReservationRequest struct {
	LocationID      string `json:"location_id" binding:"required"`
	Date            string `json:"date" binding:"required"`
	Time            string `json:"time" binding:"required"`
	PartySize       int    `json:"party_size" binding:"required,min=1"`
	ZoneID          string `json:"zone_id,omitempty"`
	ServiceID       string `json:"service_id,omitempty"`
	GuestName       string `json:"guest_name" binding:"required"`
	GuestEmail      string `json:"guest_email,omitempty"`
	GuestPhone      string `json:"guest_phone,omitempty"`
	Notes           string `json:"notes,omitempty"`
	PromoCode       string `json:"promo_code,omitempty"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// BookingResult is the outcome of a booking request. Rejections are results, not errors.
type BookingResult struct {
	Accepted       bool                  `json:"accepted"`
	Duplicate      bool                  `json:"duplicate,omitempty"`
	Code           string                `json:"code,omitempty"`
	Reason         string                `json:"reason,omitempty"`
	SuggestedTimes []string              `json:"suggested_times,omitempty"`
	MaxPartySize   int                   `json:"max_party_size,omitempty"`
	Reservation    *models.Reservation   `json:"reservation,omitempty"`
	Table          *TableRecommendation  `json:"table,omitempty"`
	Deposit        *models.Deposit       `json:"deposit,omitempty"`
	DepositError   string                `json:"deposit_error,omitempty"`
	Guarantee      *models.CardGuarantee `json:"guarantee,omitempty"`
}

func rejectBooking(code, reason string) *BookingResult {
	util.ReservationsRejectedTotal.WithLabelValues(code).Inc()
	return &BookingResult{Accepted: false, Code: code, Reason: reason}
}

// CreateReservation checks capacity and pacing and persists the booking under the
// booking lock, then seats it, secures it and tells the guest.
func (s *ReservationService) CreateReservation(ctx context.Context, req *CreateReservationRequest) (*BookingResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.CreateReservation")
	defer span.End()

	if req.GuestName == "" {
		return nil, fmt.Errorf("%w: guest_name is required", ErrInvalidRequest)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetReservationByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate booking request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("reservation_id", existing.ID))
			return s.duplicateResult(ctx, existing)
		}
	}

	var customerID *string
	if req.GuestEmail != "" || req.GuestPhone != "" {
		customer, err := s.repo.EnsureCustomer(ctx, req.LocationID, req.GuestName, req.GuestEmail, req.GuestPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to load guest profile: %w", err)
		}
		if customer.Blocked {
			s.logger.Info("Blocked guest tried to book",
				zap.String("customer_id", customer.ID),
				zap.String("location_id", req.LocationID))
			return rejectBooking(CodeGuestBlocked, "We are unable to accept this booking, please contact the restaurant"), nil
		}
		customerID = &customer.ID
	}

	policy, err := loadPolicy(ctx, s.repo, req.LocationID)
	if err != nil {
		return nil, err
	}
	depositDue, err := s.deposits.depositDue(ctx, req.LocationID, req.PromoCode, req.PartySize)
	if err != nil {
		return nil, err
	}
	if policy.CardGuaranteeRequired && depositDue == 0 && req.PaymentMethodID == "" {
		return rejectBooking(CodeCardGuaranteeRequired, "A card is required to guarantee this booking"), nil
	}

	var (
		r      *models.Reservation
		result *BookingResult
	)
	err = withLock(ctx, s.locker, bookingLockKey(req.LocationID, req.Date), s.opts.LockTTL, func() error {
		var err error
		r, result, err = s.checkAndInsert(ctx, req, policy, customerID)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	util.ReservationsCreatedTotal.Inc()
	s.occupancy.Invalidate(ctx, r.LocationID, r.Date)
	publishReservation(ctx, s.events, s.logger, newReservationEvent(r, models.EventTypeReservationCreated, "", r.CreatedAt))

	result = &BookingResult{Accepted: true, Code: CodeAvailable, Reservation: r}

	if s.opts.AutoAssign {
		table, err := s.seating.AutoAssignTable(ctx, r.ID)
		if err != nil {
			s.logger.Warn("Immediate auto-assignment failed",
				zap.String("reservation_id", r.ID),
				zap.Error(err))
		} else {
			result.Table = table
			r.TableID = &table.TableID
			r.ZoneID = &table.ZoneID
			r.AutoAssigned = true
		}
	}

	if depositDue > 0 {
		d, err := s.deposits.CreateDeposit(ctx, r.ID)
		result.Deposit = d
		if err != nil {
			result.DepositError = err.Error()
			s.logger.Warn("Deposit could not be secured",
				zap.String("reservation_id", r.ID),
				zap.Error(err))
		} else {
			r.DepositID = &d.ID
		}
	} else if req.PaymentMethodID != "" {
		g, err := s.policies.SaveCardGuarantee(ctx, r.ID, req.PaymentMethodID)
		if err != nil {
			s.logger.Warn("Card guarantee could not be saved",
				zap.String("reservation_id", r.ID),
				zap.Error(err))
		} else {
			result.Guarantee = g
		}
	}

	s.sendConfirmation(ctx, r)

	s.logger.Info("Reservation created",
		zap.String("reservation_id", r.ID),
		zap.String("location_id", r.LocationID),
		zap.String("date", r.Date),
		zap.String("time", r.Time),
		zap.Int("party_size", r.PartySize),
		zap.String("status", r.Status))
	return result, nil
}

// checkAndInsert runs with the booking lock held. A non-nil result is a rejection.
func (s *ReservationService) checkAndInsert(ctx context.Context, req *CreateReservationRequest, policy *models.CancellationPolicy, customerID *string) (*models.Reservation, *BookingResult, error) {
	avail, err := s.availability.CheckAvailability(ctx, AvailabilityRequest{
		LocationID: req.LocationID,
		Date:       req.Date,
		Time:       req.Time,
		PartySize:  req.PartySize,
		ZoneID:     req.ZoneID,
		ServiceID:  req.ServiceID,
	})
	if err != nil {
		return nil, nil, err
	}
	if !avail.Available {
		res := rejectBooking(avail.Code, avail.Reason)
		res.SuggestedTimes = avail.SuggestedTimes
		res.MaxPartySize = avail.MaxPartySize
		return nil, res, nil
	}

	pacing, err := s.pacing.CheckPacing(ctx, PacingRequest{
		LocationID: req.LocationID,
		Date:       req.Date,
		Time:       req.Time,
		PartySize:  req.PartySize,
		ServiceID:  avail.ServiceID,
	})
	if err != nil {
		return nil, nil, err
	}
	if !pacing.Allowed {
		return nil, rejectBooking(pacing.Code, pacing.Reason), nil
	}

	svc, err := s.repo.GetService(ctx, avail.ServiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load service: %w", err)
	}
	minute, err := timewindow.ParseClock(req.Time)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := s.now()
	r := &models.Reservation{
		ID:              uuid.New().String(),
		LocationID:      req.LocationID,
		CustomerID:      customerID,
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		GuestPhone:      req.GuestPhone,
		PartySize:       req.PartySize,
		Date:            req.Date,
		Time:            timewindow.FormatClock(minute),
		DurationMinutes: durationFor(svc),
		ServiceID:       svc.ID,
		ZoneID:          strPtr(req.ZoneID),
		Status:          models.ReservationStatusConfirmed,
		PromoCode:       req.PromoCode,
		Notes:           req.Notes,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	start, err := reservationStart(ctx, s.repo, r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve reservation start: %w", err)
	}
	plan := planReconfirmation(policy, r.PartySize, start, now, s.opts.ReconfirmationCutoffHours)
	plan.apply(r)
	if plan.Required {
		r.Status = models.ReservationStatusPending
	}

	if err := s.repo.CreateReservation(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) && req.IdempotencyKey != "" {
			existing, getErr := s.repo.GetReservationByIdempotencyKey(ctx, req.IdempotencyKey)
			if getErr == nil && existing != nil {
				if res, dupErr := s.duplicateResult(ctx, existing); dupErr == nil {
					return nil, res, nil
				}
			}
		}
		return nil, nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	return r, nil, nil
}

func (s *ReservationService) duplicateResult(ctx context.Context, r *models.Reservation) (*BookingResult, error) {
	d, err := s.repo.GetDepositByReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return &BookingResult{
		Accepted:    true,
		Duplicate:   true,
		Code:        CodeAvailable,
		Reservation: r,
		Deposit:     d,
	}, nil
}

func (s *ReservationService) sendConfirmation(ctx context.Context, r *models.Reservation) {
	subject := "Your reservation is confirmed"
	body := fmt.Sprintf("Hi %s, we look forward to seeing your party of %d on %s at %s.",
		r.GuestName, r.PartySize, r.Date, r.Time)
	if r.Status == models.ReservationStatusPending {
		subject = "Your reservation request"
		body += " We will ask you to reconfirm closer to the date."
	}
	notifyGuest(ctx, s.messenger, s.logger, r.GuestEmail, r.GuestPhone, subject, body)
}

// ReservationDetails is a reservation with its payment records
type ReservationDetails struct {
	Reservation *models.Reservation   `json:"reservation"`
	Deposit     *models.Deposit       `json:"deposit,omitempty"`
	Guarantee   *models.CardGuarantee `json:"guarantee,omitempty"`
}

// GetReservation retrieves a reservation with its deposit and card guarantee
func (s *ReservationService) GetReservation(ctx context.Context, reservationID string) (*ReservationDetails, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.GetReservation")
	defer span.End()

	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	d, err := s.repo.GetDepositByReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	g, err := s.repo.GetCardGuaranteeByReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get card guarantee: %w", err)
	}
	return &ReservationDetails{Reservation: r, Deposit: d, Guarantee: g}, nil
}

// SeatReservation marks the party as arrived, assigning a table first if none is set
func (s *ReservationService) SeatReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.SeatReservation")
	defer span.End()

	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.ReservationStatusPending && r.Status != models.ReservationStatusConfirmed {
		return nil, fmt.Errorf("%w: cannot seat a %s reservation", ErrInvalidReservationState, r.Status)
	}

	if r.TableID == nil {
		table, err := s.seating.AutoAssignTable(ctx, r.ID)
		if err != nil {
			util.RecordError(span, err)
			return nil, err
		}
		r.TableID = &table.TableID
		r.ZoneID = &table.ZoneID
		r.AutoAssigned = true
	}

	now := s.now()
	if err := s.repo.UpdateReservationStatus(ctx, r.ID, r.Status, models.ReservationStatusSeated, now); err != nil {
		util.RecordError(span, err)
		return nil, stateConflict(err, ErrInvalidReservationState)
	}
	r.Status = models.ReservationStatusSeated
	r.SeatedAt = timePtr(now)

	publishReservation(ctx, s.events, s.logger, newReservationEvent(r, models.EventTypeReservationSeated, "", now))
	s.logger.Info("Reservation seated",
		zap.String("reservation_id", r.ID),
		zap.String("table_id", r.TableIDValue()))
	return r, nil
}

// CompleteReservation frees the table of a seated party
func (s *ReservationService) CompleteReservation(ctx context.Context, reservationID string) (*ReleaseResult, error) {
	return s.seating.ReleaseTable(ctx, reservationID)
}

// CancelRequest asks for a reservation to be cancelled
type CancelRequest struct {
	ReservationID string `json:"-"`
	Reason        string `json:"reason"`
	Notify        bool   `json:"notify"`
}

// CancelResult describes the cancellation and its financial settlement
type CancelResult struct {
	Reservation  *models.Reservation   `json:"reservation"`
	Settlement   *CancellationOutcome  `json:"settlement,omitempty"`
	Guarantee    *models.CardGuarantee `json:"guarantee,omitempty"`
	PaymentError string                `json:"payment_error,omitempty"`
}

// CancelReservation cancels the booking, then settles its deposit or card guarantee
// against the policy in force now. A payment failure does not undo the cancellation.
func (s *ReservationService) CancelReservation(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.CancelReservation")
	defer span.End()

	r, err := s.repo.GetReservation(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.ReservationStatusPending && r.Status != models.ReservationStatusConfirmed {
		return nil, fmt.Errorf("%w: cannot cancel a %s reservation", ErrInvalidReservationState, r.Status)
	}

	reason := req.Reason
	if reason == "" {
		reason = "Cancelled by guest"
	}
	now := s.now()
	if err := s.repo.CancelReservation(ctx, r.ID, models.ReservationStatusCancelled, reason, now); err != nil {
		util.RecordError(span, err)
		return nil, stateConflict(err, ErrInvalidReservationState)
	}
	r.Status = models.ReservationStatusCancelled
	r.CancellationReason = reason
	r.CancelledAt = timePtr(now)

	result := &CancelResult{Reservation: r}
	settlement, err := s.deposits.HandleCancellation(ctx, r.ID)
	result.Settlement = settlement
	if err != nil {
		result.PaymentError = err.Error()
		s.logger.Error("Deposit settlement failed", zap.String("reservation_id", r.ID), zap.Error(err))
	} else if settlement.Outcome == OutcomeNoDeposit {
		result.Guarantee, err = s.settleGuaranteeOnCancel(ctx, r.ID)
		if err != nil {
			result.PaymentError = err.Error()
			s.logger.Error("Card guarantee settlement failed", zap.String("reservation_id", r.ID), zap.Error(err))
		}
	}

	s.occupancy.Invalidate(ctx, r.LocationID, r.Date)
	publishReservation(ctx, s.events, s.logger, newReservationEvent(r, models.EventTypeReservationCancelled, reason, now))

	if req.Notify {
		body := fmt.Sprintf("Hi %s, your reservation for %d on %s at %s has been cancelled.", r.GuestName, r.PartySize, r.Date, r.Time)
		if settlement != nil && settlement.Deposit != nil && settlement.Quote.RefundAmount > 0 && result.PaymentError == "" {
			body += fmt.Sprintf(" %s will be refunded.", formatMoney(settlement.Quote.RefundAmount, settlement.Deposit.Currency))
		}
		notifyGuest(ctx, s.messenger, s.logger, r.GuestEmail, r.GuestPhone, "Your reservation has been cancelled", body)
	}

	s.logger.Info("Reservation cancelled",
		zap.String("reservation_id", r.ID),
		zap.String("reason", reason))
	return result, nil
}

// settleGuaranteeOnCancel charges the late fee against a saved card, or releases it
func (s *ReservationService) settleGuaranteeOnCancel(ctx context.Context, reservationID string) (*models.CardGuarantee, error) {
	quote, err := s.policies.QuoteCancellation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !quote.HasGuarantee {
		util.CancellationsTotal.WithLabelValues(OutcomeNoDeposit).Inc()
		return nil, nil
	}
	if quote.Quote.ChargeAmount > 0 {
		util.CancellationsTotal.WithLabelValues(OutcomeCharged).Inc()
		return s.policies.ChargeCardGuarantee(ctx, reservationID, quote.Quote.ChargeAmount, "late_cancellation")
	}
	util.CancellationsTotal.WithLabelValues(OutcomeFullRefund).Inc()
	return s.policies.ReleaseCardGuarantee(ctx, reservationID)
}

// NoShowResult describes the no-show penalty
type NoShowResult struct {
	Reservation  *models.Reservation   `json:"reservation"`
	Outcome      *NoShowOutcome        `json:"outcome,omitempty"`
	Guarantee    *models.CardGuarantee `json:"guarantee,omitempty"`
	PaymentError string                `json:"payment_error,omitempty"`
}

// MarkNoShow records that the party never arrived and applies the no-show penalty
func (s *ReservationService) MarkNoShow(ctx context.Context, reservationID string) (*NoShowResult, error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.MarkNoShow")
	defer span.End()

	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.ReservationStatusPending && r.Status != models.ReservationStatusConfirmed {
		return nil, fmt.Errorf("%w: cannot mark a %s reservation as no-show", ErrInvalidReservationState, r.Status)
	}

	now := s.now()
	if err := s.repo.UpdateReservationStatus(ctx, r.ID, r.Status, models.ReservationStatusNoShow, now); err != nil {
		util.RecordError(span, err)
		return nil, stateConflict(err, ErrInvalidReservationState)
	}
	r.Status = models.ReservationStatusNoShow
	util.NoShowsTotal.Inc()

	result := &NoShowResult{Reservation: r}
	outcome, err := s.deposits.HandleNoShow(ctx, r.ID)
	result.Outcome = outcome
	if err != nil {
		result.PaymentError = err.Error()
		s.logger.Error("No-show deposit capture failed", zap.String("reservation_id", r.ID), zap.Error(err))
	}
	if outcome != nil && outcome.Deposit == nil {
		result.Guarantee, err = s.chargeGuaranteeForNoShow(ctx, r)
		if err != nil {
			result.PaymentError = err.Error()
			s.logger.Error("No-show card charge failed", zap.String("reservation_id", r.ID), zap.Error(err))
		}
	}

	s.occupancy.Invalidate(ctx, r.LocationID, r.Date)
	publishReservation(ctx, s.events, s.logger, newReservationEvent(r, models.EventTypeReservationNoShow, "", now))

	s.logger.Info("Reservation marked as no-show", zap.String("reservation_id", r.ID))
	return result, nil
}

func (s *ReservationService) chargeGuaranteeForNoShow(ctx context.Context, r *models.Reservation) (*models.CardGuarantee, error) {
	g, err := s.repo.GetCardGuaranteeByReservation(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get card guarantee: %w", err)
	}
	if g == nil || g.Status != models.GuaranteeStatusSaved {
		return g, nil
	}

	policy, err := s.policies.PolicyFor(ctx, r.LocationID)
	if err != nil {
		return nil, err
	}
	settings, err := loadSettings(ctx, s.repo, r.LocationID)
	if err != nil {
		return nil, err
	}
	quote := CalculateNoShowCharge(policy, guaranteeBase(settings, r.PartySize))
	if quote.ChargeAmount <= 0 {
		return s.policies.ReleaseCardGuarantee(ctx, r.ID)
	}
	return s.policies.ChargeCardGuarantee(ctx, r.ID, quote.ChargeAmount, "no_show")
}
