package store

import (
	"context"
	"time"

	"reservation-service/internal/models"

	"github.com/lib/pq"
)

// CreateReservation inserts a reservation. A reused idempotency key yields ErrDuplicate.
func (s *Store) CreateReservation(ctx context.Context, r *models.Reservation) error {
	query := `
		INSERT INTO reservations (
			id, location_id, customer_id, guest_name, guest_email, guest_phone, party_size,
			date, time, duration_minutes, service_id, zone_id, table_id, auto_assigned, status,
			promo_code, notes, idempotency_key, reconfirmation_required, reconfirmation_remind_at,
			reconfirmation_deadline, created_at, updated_at
		) VALUES (
			:id, :location_id, :customer_id, :guest_name, :guest_email, :guest_phone, :party_size,
			:date, :time, :duration_minutes, :service_id, :zone_id, :table_id, :auto_assigned, :status,
			:promo_code, :notes, :idempotency_key, :reconfirmation_required, :reconfirmation_remind_at,
			:reconfirmation_deadline, :created_at, :updated_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return mapError(err)
	}
	return nil
}

// GetReservation retrieves a reservation by ID
func (s *Store) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	if err := s.get(ctx, &r, "SELECT * FROM reservations WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReservationByIdempotencyKey retrieves a reservation by idempotency key
func (s *Store) GetReservationByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error) {
	var r models.Reservation
	found, err := s.getOptional(ctx, &r, "SELECT * FROM reservations WHERE idempotency_key = $1", key)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// ListActiveReservations retrieves the reservations holding capacity on a date
func (s *Store) ListActiveReservations(ctx context.Context, locationID, date string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.SelectContext(ctx, &reservations, `
		SELECT * FROM reservations
		WHERE location_id = $1 AND date = $2 AND status = ANY($3)
		ORDER BY time, created_at`,
		locationID, date, pq.Array(models.ActiveReservationStatuses))
	return reservations, err
}

// ListUnassignedConfirmed retrieves confirmed reservations without a table
func (s *Store) ListUnassignedConfirmed(ctx context.Context, locationID, date string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.SelectContext(ctx, &reservations, `
		SELECT * FROM reservations
		WHERE location_id = $1 AND date = $2 AND status = $3 AND table_id IS NULL
		ORDER BY time, created_at`,
		locationID, date, models.ReservationStatusConfirmed)
	return reservations, err
}

// FindSeatedReservationByTable returns the party currently seated at the table, or nil
func (s *Store) FindSeatedReservationByTable(ctx context.Context, tableID string) (*models.Reservation, error) {
	var r models.Reservation
	found, err := s.getOptional(ctx, &r, `
		SELECT * FROM reservations
		WHERE table_id = $1 AND status = $2
		ORDER BY seated_at DESC
		LIMIT 1`,
		tableID, models.ReservationStatusSeated)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// ListExpiredReconfirmations retrieves pending reservations whose deadline has passed
func (s *Store) ListExpiredReconfirmations(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.SelectContext(ctx, &reservations, `
		SELECT * FROM reservations
		WHERE status = $1
		  AND reconfirmation_required
		  AND reconfirmed_at IS NULL
		  AND reconfirmation_deadline <= $2
		ORDER BY reconfirmation_deadline`,
		models.ReservationStatusPending, now)
	return reservations, err
}

// ListDueReconfirmationReminders retrieves pending reservations whose reminder is due and not yet sent
func (s *Store) ListDueReconfirmationReminders(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.SelectContext(ctx, &reservations, `
		SELECT * FROM reservations
		WHERE status = $1
		  AND reconfirmation_required
		  AND reconfirmed_at IS NULL
		  AND reconfirmation_sent_at IS NULL
		  AND reconfirmation_remind_at <= $2
		  AND reconfirmation_deadline > $2
		ORDER BY reconfirmation_remind_at`,
		models.ReservationStatusPending, now)
	return reservations, err
}

// UpdateReservationStatus moves a reservation from fromStatus to toStatus, stamping
// seated_at or completed_at. ErrConcurrentUpdate means the status had already changed.
func (s *Store) UpdateReservationStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) error {
	return s.exec(ctx, ErrConcurrentUpdate, `
		UPDATE reservations
		SET status = $1::text,
		    seated_at = CASE WHEN $1::text = 'seated' THEN $2 ELSE seated_at END,
		    completed_at = CASE WHEN $1::text = 'completed' THEN $2 ELSE completed_at END,
		    updated_at = $2
		WHERE id = $3 AND status = $4`,
		toStatus, at, id, fromStatus)
}

// AssignTable sets the table of an active reservation
func (s *Store) AssignTable(ctx context.Context, id, tableID, zoneID string, auto bool) error {
	return s.exec(ctx, ErrConcurrentUpdate, `
		UPDATE reservations
		SET table_id = $1, zone_id = COALESCE(NULLIF($2::text, ''), zone_id), auto_assigned = $3, updated_at = NOW()
		WHERE id = $4 AND status = ANY($5)`,
		tableID, zoneID, auto, id, pq.Array(models.ActiveReservationStatuses))
}

// CancelReservation ends a pending or confirmed reservation with status and reason
func (s *Store) CancelReservation(ctx context.Context, id, status, reason string, at time.Time) error {
	return s.exec(ctx, ErrConcurrentUpdate, `
		UPDATE reservations
		SET status = $1, cancellation_reason = $2, cancelled_at = $3, updated_at = $3
		WHERE id = $4 AND status IN ('pending', 'confirmed')`,
		status, reason, at, id)
}

// UpdateReconfirmation writes the reconfirmation schedule and reconfirmed_at
func (s *Store) UpdateReconfirmation(ctx context.Context, r *models.Reservation) error {
	return s.exec(ctx, ErrNotFound, `
		UPDATE reservations
		SET reconfirmation_required = $1, reconfirmation_remind_at = $2,
		    reconfirmation_deadline = $3, reconfirmed_at = $4, updated_at = NOW()
		WHERE id = $5`,
		r.ReconfirmationRequired, r.ReconfirmationRemindAt, r.ReconfirmationDeadline, r.ReconfirmedAt, r.ID)
}

// MarkReminderSent stamps the reconfirmation reminder
func (s *Store) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, ErrNotFound,
		"UPDATE reservations SET reconfirmation_sent_at = $1 WHERE id = $2", at, id)
}

// LinkDeposit records the deposit on its reservation
func (s *Store) LinkDeposit(ctx context.Context, reservationID, depositID string) error {
	return s.exec(ctx, ErrNotFound,
		"UPDATE reservations SET deposit_id = $1, updated_at = NOW() WHERE id = $2", depositID, reservationID)
}
