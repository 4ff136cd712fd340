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

const (
	defaultSlotMinutes               = 15
	defaultDurationMinutes           = 90
	defaultMinPartySize              = 1
	defaultMaxPartySize              = 20
	defaultReconfirmationCutoffHours = 4
	defaultLockTTL                   = 10 * time.Second
)

// defaultLocationSettings applies when a location has no stored settings row
func defaultLocationSettings(locationID string) *models.LocationSettings {
	return &models.LocationSettings{
		LocationID:   locationID,
		Timezone:     "UTC",
		Currency:     "EUR",
		MinPartySize: defaultMinPartySize,
		MaxPartySize: defaultMaxPartySize,
		SlotMinutes:  defaultSlotMinutes,
	}
}

// defaultCancellationPolicy applies when a location has no stored policy
func defaultCancellationPolicy(locationID string) *models.CancellationPolicy {
	return &models.CancellationPolicy{
		LocationID:                locationID,
		FreeCancellationHours:     24,
		NoShowPercentage:          100,
		ReconfirmationCutoffHours: defaultReconfirmationCutoffHours,
	}
}

func loadSettings(ctx context.Context, repo CatalogReader, locationID string) (*models.LocationSettings, error) {
	settings, err := repo.GetLocationSettings(ctx, locationID)
	if errors.Is(err, store.ErrNotFound) {
		return defaultLocationSettings(locationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load location settings: %w", err)
	}
	if settings.MinPartySize <= 0 {
		settings.MinPartySize = defaultMinPartySize
	}
	if settings.MaxPartySize <= 0 {
		settings.MaxPartySize = defaultMaxPartySize
	}
	if settings.SlotMinutes <= 0 {
		settings.SlotMinutes = defaultSlotMinutes
	}
	return settings, nil
}

func loadPolicy(ctx context.Context, repo CatalogReader, locationID string) (*models.CancellationPolicy, error) {
	policy, err := repo.GetCancellationPolicy(ctx, locationID)
	if errors.Is(err, store.ErrNotFound) {
		return defaultCancellationPolicy(locationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cancellation policy: %w", err)
	}
	return policy, nil
}

// serviceHours returns the service window in minutes since midnight
func serviceHours(svc *models.Service) (start, end int, err error) {
	start, err = timewindow.ParseClock(svc.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err = timewindow.ParseClock(svc.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// serviceStartMinute maps minute onto the service's continuous axis
func serviceStartMinute(svc *models.Service, minute int) int {
	start, end, err := serviceHours(svc)
	if err != nil || end > start {
		return minute
	}
	return timewindow.Normalize(minute, start)
}

func slotMinutesFor(svc *models.Service, settings *models.LocationSettings) int {
	if svc != nil && svc.SlotMinutes > 0 {
		return svc.SlotMinutes
	}
	if settings != nil && settings.SlotMinutes > 0 {
		return settings.SlotMinutes
	}
	return defaultSlotMinutes
}

func durationFor(svc *models.Service) int {
	if svc != nil && svc.DefaultDurationMinutes > 0 {
		return svc.DefaultDurationMinutes
	}
	return defaultDurationMinutes
}

// serviceIndex resolves reservation windows against the services they were booked into
type serviceIndex map[string]*models.Service

func loadServiceIndex(ctx context.Context, repo CatalogReader, locationID string) (serviceIndex, error) {
	services, err := repo.ListServices(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	idx := make(serviceIndex, len(services))
	for i := range services {
		idx[services[i].ID] = &services[i]
	}
	return idx, nil
}

// window returns the reservation's occupied interval on its service date
func (idx serviceIndex) window(r *models.Reservation) (timewindow.Interval, error) {
	minute, err := timewindow.ParseClock(r.Time)
	if err != nil {
		return timewindow.Interval{}, err
	}
	svc := idx[r.ServiceID]
	if svc != nil {
		minute = serviceStartMinute(svc, minute)
	}
	duration := r.DurationMinutes
	if duration <= 0 {
		duration = durationFor(svc)
	}
	return timewindow.NewInterval(minute, duration), nil
}

// reservationStart returns the absolute start instant in the location's timezone
func reservationStart(ctx context.Context, repo CatalogReader, r *models.Reservation) (time.Time, error) {
	settings, err := loadSettings(ctx, repo, r.LocationID)
	if err != nil {
		return time.Time{}, err
	}
	idx, err := loadServiceIndex(ctx, repo, r.LocationID)
	if err != nil {
		return time.Time{}, err
	}
	w, err := idx.window(r)
	if err != nil {
		return time.Time{}, err
	}
	return timewindow.At(r.Date, w.Start, timewindow.LoadLocation(settings.Timezone))
}

func newBaseEvent(eventType string, now time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now,
	}
}

func newReservationEvent(r *models.Reservation, eventType, reason string, now time.Time) *models.ReservationEvent {
	return &models.ReservationEvent{
		BaseEvent:     newBaseEvent(eventType, now),
		ReservationID: r.ID,
		LocationID:    r.LocationID,
		Status:        r.Status,
		PartySize:     r.PartySize,
		Date:          r.Date,
		Time:          r.Time,
		TableID:       r.TableIDValue(),
		AutoAssigned:  r.AutoAssigned,
		Reason:        reason,
	}
}

func newDepositEvent(d *models.Deposit, eventType, reason string, now time.Time) *models.DepositEvent {
	return &models.DepositEvent{
		BaseEvent:       newBaseEvent(eventType, now),
		DepositID:       d.ID,
		ReservationID:   d.ReservationID,
		Status:          d.Status,
		Amount:          d.Amount,
		ChargedAmount:   d.ChargedAmount,
		RefundedAmount:  d.RefundedAmount,
		PaymentIntentID: d.PaymentIntentID,
		Reason:          reason,
	}
}

func publishReservation(ctx context.Context, events EventPublisher, logger *zap.Logger, event *models.ReservationEvent) {
	if events == nil {
		return
	}
	if err := events.PublishReservationEvent(ctx, event); err != nil {
		logger.Error("Failed to publish reservation event",
			zap.String("event_type", event.EventType),
			zap.String("reservation_id", event.ReservationID),
			zap.Error(err))
	}
}

func publishDeposit(ctx context.Context, events EventPublisher, logger *zap.Logger, event *models.DepositEvent) {
	if events == nil {
		return
	}
	if err := events.PublishDepositEvent(ctx, event); err != nil {
		logger.Error("Failed to publish deposit event",
			zap.String("event_type", event.EventType),
			zap.String("deposit_id", event.DepositID),
			zap.Error(err))
	}
}

// notifyGuest sends by email when an address is known, otherwise by SMS.
// Failures are logged and never propagate.
func notifyGuest(ctx context.Context, messenger messaging.Messenger, logger *zap.Logger, email, phone, subject, body string) {
	if messenger == nil {
		return
	}
	switch {
	case email != "":
		if err := messenger.SendEmail(ctx, email, subject, body); err != nil {
			util.NotificationFailuresTotal.WithLabelValues(messaging.ChannelEmail).Inc()
			logger.Warn("Failed to send email", zap.String("subject", subject), zap.Error(err))
		}
	case phone != "":
		if err := messenger.SendSMS(ctx, phone, body); err != nil {
			util.NotificationFailuresTotal.WithLabelValues(messaging.ChannelSMS).Inc()
			logger.Warn("Failed to send SMS", zap.String("subject", subject), zap.Error(err))
		}
	default:
		logger.Debug("No contact details for notification", zap.String("subject", subject))
	}
}

// withLock runs fn while holding the advisory lock for key. A nil locker runs fn directly.
func withLock(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func() error) error {
	if locker == nil {
		return fn()
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	var (
		token string
		ok    bool
		err   error
	)
	for attempt := 0; attempt < 3; attempt++ {
		token, ok, err = locker.AcquireLock(ctx, key, ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(50*(attempt+1)) * time.Millisecond):
		}
	}
	if !ok {
		util.BookingLockContentionTotal.Inc()
		return ErrSlotBusy
	}

	defer func() {
		// detached so a cancelled request still frees the lock
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := locker.ReleaseLock(releaseCtx, key, token); err != nil {
			util.GetLogger().Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn()
}

func bookingLockKey(locationID, date string) string {
	return fmt.Sprintf("booking:%s:%s", locationID, date)
}

func seatingLockKey(locationID, date string) string {
	return fmt.Sprintf("seating:%s:%s", locationID, date)
}

func formatMoney(amount int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, currency)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// stateConflict maps a lost conditional write onto the state-machine sentinel
func stateConflict(err error, sentinel error) error {
	if errors.Is(err, store.ErrConcurrentUpdate) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return err
}
