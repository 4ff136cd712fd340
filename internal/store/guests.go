package store

import (
	"context"
	"errors"
	"time"

	"reservation-service/internal/models"

	"github.com/google/uuid"
)

// EnsureCustomer returns the profile matching the email (case-insensitive), or the
// phone when no email is given, creating one when none exists.
func (s *Store) EnsureCustomer(ctx context.Context, locationID, name, email, phone string) (*models.CustomerProfile, error) {
	existing, err := s.findCustomer(ctx, locationID, email, phone)
	if err != nil || existing != nil {
		return existing, err
	}

	c := &models.CustomerProfile{
		ID:         uuid.New().String(),
		LocationID: locationID,
		Name:       name,
		Email:      email,
		Phone:      phone,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO customers (id, location_id, name, email, phone, no_show_count, blocked, blocked_reason, created_at)
		VALUES (:id, :location_id, :name, :email, :phone, 0, FALSE, '', :created_at)`, c)
	if err = mapError(err); errors.Is(err, ErrDuplicate) {
		// lost a race with a concurrent booking for the same guest
		return s.findCustomer(ctx, locationID, email, phone)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) findCustomer(ctx context.Context, locationID, email, phone string) (*models.CustomerProfile, error) {
	var (
		c     models.CustomerProfile
		found bool
		err   error
	)
	switch {
	case email != "":
		found, err = s.getOptional(ctx, &c,
			"SELECT * FROM customers WHERE location_id = $1 AND LOWER(email) = LOWER($2)", locationID, email)
	case phone != "":
		found, err = s.getOptional(ctx, &c,
			"SELECT * FROM customers WHERE location_id = $1 AND phone = $2 ORDER BY created_at LIMIT 1", locationID, phone)
	}
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

// GetCustomer retrieves a customer profile by ID
func (s *Store) GetCustomer(ctx context.Context, id string) (*models.CustomerProfile, error) {
	var c models.CustomerProfile
	if err := s.get(ctx, &c, "SELECT * FROM customers WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &c, nil
}

// IncrementNoShow bumps the no-show counter and returns the new value
func (s *Store) IncrementNoShow(ctx context.Context, customerID string) (int, error) {
	var count int
	err := s.get(ctx, &count,
		"UPDATE customers SET no_show_count = no_show_count + 1 WHERE id = $1 RETURNING no_show_count", customerID)
	return count, err
}

func (s *Store) BlockCustomer(ctx context.Context, customerID, reason string, at time.Time) error {
	return s.exec(ctx, ErrNotFound,
		"UPDATE customers SET blocked = TRUE, blocked_reason = $1, blocked_at = $2 WHERE id = $3",
		reason, at, customerID)
}

// FindWaitlistCandidate returns the longest-waiting party that fits the capacity range, or nil
func (s *Store) FindWaitlistCandidate(ctx context.Context, locationID, date string, minCapacity, maxCapacity int) (*models.WaitlistEntry, error) {
	var e models.WaitlistEntry
	found, err := s.getOptional(ctx, &e, `
		SELECT * FROM waitlist_entries
		WHERE location_id = $1 AND date = $2 AND status = $3 AND party_size BETWEEN $4 AND $5
		ORDER BY created_at
		LIMIT 1`,
		locationID, date, models.WaitlistStatusWaiting, minCapacity, maxCapacity)
	if err != nil || !found {
		return nil, err
	}
	return &e, nil
}

// MarkWaitlistNotified flags a waiting entry as offered a table
func (s *Store) MarkWaitlistNotified(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, ErrConcurrentUpdate,
		"UPDATE waitlist_entries SET status = $1, notified_at = $2 WHERE id = $3 AND status = $4",
		models.WaitlistStatusNotified, at, id, models.WaitlistStatusWaiting)
}

