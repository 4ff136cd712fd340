package service

import (
	"context"
	"fmt"
	"time"

	"reservation-service/internal/messaging"
	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// ReconfirmationExpiredReason is recorded on bookings cancelled by the sweep
const ReconfirmationExpiredReason = "Reservation not reconfirmed before the deadline"

const defaultReminderHoursBefore = 24

// Canceller runs the full cancellation path for a reservation
type Canceller interface {
	CancelReservation(ctx context.Context, req CancelRequest) (*CancelResult, error)
}

// reconfirmationPlan is when to remind and when to give up
type reconfirmationPlan struct {
	Required bool
	RemindAt time.Time
	Deadline time.Time
}

// planReconfirmation decides whether a booking must be reconfirmed. A booking made
// after its deadline has already passed is not asked to reconfirm.
func planReconfirmation(policy *models.CancellationPolicy, partySize int, start, now time.Time, fallbackCutoffHours int) reconfirmationPlan {
	if !policy.ReconfirmationRequired {
		return reconfirmationPlan{}
	}
	if policy.ReconfirmationMinPartySize > 0 && partySize < policy.ReconfirmationMinPartySize {
		return reconfirmationPlan{}
	}

	cutoff := policy.ReconfirmationCutoffHours
	if cutoff <= 0 {
		cutoff = fallbackCutoffHours
	}
	if cutoff <= 0 {
		cutoff = defaultReconfirmationCutoffHours
	}
	hoursBefore := policy.ReconfirmationHoursBefore
	if hoursBefore <= 0 {
		hoursBefore = defaultReminderHoursBefore
	}

	deadline := start.Add(-time.Duration(cutoff) * time.Hour)
	if !deadline.After(now) {
		return reconfirmationPlan{}
	}
	remindAt := start.Add(-time.Duration(hoursBefore) * time.Hour)
	if remindAt.Before(now) {
		remindAt = now
	}
	if remindAt.After(deadline) {
		remindAt = deadline
	}
	return reconfirmationPlan{Required: true, RemindAt: remindAt, Deadline: deadline}
}

func (p reconfirmationPlan) apply(r *models.Reservation) {
	r.ReconfirmationRequired = p.Required
	if !p.Required {
		r.ReconfirmationRemindAt = nil
		r.ReconfirmationDeadline = nil
		return
	}
	r.ReconfirmationRemindAt = timePtr(p.RemindAt)
	r.ReconfirmationDeadline = timePtr(p.Deadline)
}

// SweepResult summarizes one pass of the expiry sweep
type SweepResult struct {
	Processed int `json:"processed"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

// ReconfirmationController schedules reminders and cancels bookings nobody reconfirmed
type ReconfirmationController struct {
	repo        Repository
	canceller   Canceller
	messenger   messaging.Messenger
	events      EventPublisher
	cutoffHours int
	now         Clock
	logger      *zap.Logger
}

// NewReconfirmationController creates a new reconfirmation controller
func NewReconfirmationController(
	repo Repository,
	canceller Canceller,
	messenger messaging.Messenger,
	events EventPublisher,
	cutoffHours int,
) *ReconfirmationController {
	return &ReconfirmationController{
		repo:        repo,
		canceller:   canceller,
		messenger:   messenger,
		events:      events,
		cutoffHours: cutoffHours,
		now:         time.Now,
		logger:      util.GetLogger(),
	}
}

// ScheduleReconfirmation recomputes the reminder and deadline of a pending reservation
// against the current policy
func (c *ReconfirmationController) ScheduleReconfirmation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "ReconfirmationController.ScheduleReconfirmation")
	defer span.End()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if r.Status != models.ReservationStatusPending || r.ReconfirmedAt != nil {
		return r, nil
	}

	policy, err := loadPolicy(ctx, c.repo, r.LocationID)
	if err != nil {
		return nil, err
	}
	start, err := reservationStart(ctx, c.repo, r)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reservation start: %w", err)
	}

	planReconfirmation(policy, r.PartySize, start, c.now(), c.cutoffHours).apply(r)
	if err := c.repo.UpdateReconfirmation(ctx, r); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update reconfirmation: %w", err)
	}
	return r, nil
}

// Reconfirm records the guest's reconfirmation and confirms the booking
func (c *ReconfirmationController) Reconfirm(ctx context.Context, reservationID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "ReconfirmationController.Reconfirm")
	defer span.End()

	r, err := c.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if r.ReconfirmedAt != nil && r.Status == models.ReservationStatusConfirmed {
		return r, nil
	}
	if r.Status != models.ReservationStatusPending {
		return nil, fmt.Errorf("%w: reservation is %s", ErrInvalidReservationState, r.Status)
	}

	now := c.now()
	if r.ReconfirmationDeadline != nil && !now.Before(*r.ReconfirmationDeadline) {
		return nil, fmt.Errorf("%w: reconfirmation deadline has passed", ErrInvalidReservationState)
	}

	if err := c.repo.UpdateReservationStatus(ctx, r.ID, models.ReservationStatusPending, models.ReservationStatusConfirmed, now); err != nil {
		util.RecordError(span, err)
		return nil, stateConflict(err, ErrInvalidReservationState)
	}
	r.Status = models.ReservationStatusConfirmed
	r.ReconfirmedAt = timePtr(now)
	if err := c.repo.UpdateReconfirmation(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to record reconfirmation: %w", err)
	}

	publishReservation(ctx, c.events, c.logger, newReservationEvent(r, models.EventTypeReservationConfirmed, "reconfirmed", now))
	c.logger.Info("Reservation reconfirmed", zap.String("reservation_id", r.ID))
	return r, nil
}

// SendDueReminders asks guests to reconfirm once their reminder time has come
func (c *ReconfirmationController) SendDueReminders(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "ReconfirmationController.SendDueReminders")
	defer span.End()

	now := c.now()
	due, err := c.repo.ListDueReconfirmationReminders(ctx, now)
	if err != nil {
		util.RecordError(span, err)
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		r := &due[i]
		body := fmt.Sprintf("Hi %s, please reconfirm your reservation for %d on %s at %s", r.GuestName, r.PartySize, r.Date, r.Time)
		if r.ReconfirmationDeadline != nil {
			body += fmt.Sprintf(" before %s", r.ReconfirmationDeadline.Format("Jan 2 15:04"))
		}
		body += ", otherwise it will be released."
		notifyGuest(ctx, c.messenger, c.logger, r.GuestEmail, r.GuestPhone, "Please reconfirm your reservation", body)

		if err := c.repo.MarkReminderSent(ctx, r.ID, now); err != nil {
			c.logger.Error("Failed to mark reminder sent", zap.String("reservation_id", r.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// ProcessExpiredReconfirmations cancels every pending booking past its deadline.
// One failure does not stop the rest.
func (c *ReconfirmationController) ProcessExpiredReconfirmations(ctx context.Context) (*SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "ReconfirmationController.ProcessExpiredReconfirmations")
	defer span.End()

	expired, err := c.repo.ListExpiredReconfirmations(ctx, c.now())
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list expired reconfirmations: %w", err)
	}

	result := &SweepResult{}
	for i := range expired {
		r := &expired[i]
		result.Processed++

		_, err := c.canceller.CancelReservation(ctx, CancelRequest{
			ReservationID: r.ID,
			Reason:        ReconfirmationExpiredReason,
			Notify:        false,
		})
		if err != nil {
			result.Failed++
			c.logger.Error("Failed to cancel unconfirmed reservation",
				zap.String("reservation_id", r.ID),
				zap.Error(err))
			continue
		}
		result.Cancelled++
		util.ReconfirmationsExpiredTotal.Inc()

		body := fmt.Sprintf("Hi %s, your reservation for %d on %s at %s was released because it was not reconfirmed in time.",
			r.GuestName, r.PartySize, r.Date, r.Time)
		notifyGuest(ctx, c.messenger, c.logger, r.GuestEmail, r.GuestPhone, "Your reservation has been cancelled", body)
	}

	if result.Processed > 0 {
		c.logger.Info("Reconfirmation sweep finished",
			zap.Int("processed", result.Processed),
			zap.Int("cancelled", result.Cancelled),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}
