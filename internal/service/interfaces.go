package service

import (
	"context"
	"time"

	"reservation-service/internal/models"
)

// CatalogReader exposes per-location configuration. It is read-only to the engine.
type CatalogReader interface {
	GetLocationSettings(ctx context.Context, locationID string) (*models.LocationSettings, error)
	GetClosure(ctx context.Context, locationID, date string) (*models.Closure, error)
	GetCancellationPolicy(ctx context.Context, locationID string) (*models.CancellationPolicy, error)
	GetService(ctx context.Context, serviceID string) (*models.Service, error)
	ListServices(ctx context.Context, locationID string) ([]models.Service, error)
	GetZone(ctx context.Context, zoneID string) (*models.Zone, error)
	GetTable(ctx context.Context, tableID string) (*models.Table, error)
	ListTables(ctx context.Context, locationID, zoneID string) ([]models.Table, error)
	GetPromoCode(ctx context.Context, locationID, code string) (*models.PromoCode, error)
}

// ReservationStore persists reservations
type ReservationStore interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservationByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error)
	ListActiveReservations(ctx context.Context, locationID, date string) ([]models.Reservation, error)
	ListUnassignedConfirmed(ctx context.Context, locationID, date string) ([]models.Reservation, error)
	FindSeatedReservationByTable(ctx context.Context, tableID string) (*models.Reservation, error)
	ListExpiredReconfirmations(ctx context.Context, now time.Time) ([]models.Reservation, error)
	ListDueReconfirmationReminders(ctx context.Context, now time.Time) ([]models.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) error
	AssignTable(ctx context.Context, id, tableID, zoneID string, auto bool) error
	CancelReservation(ctx context.Context, id, status, reason string, at time.Time) error
	UpdateReconfirmation(ctx context.Context, r *models.Reservation) error
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
	LinkDeposit(ctx context.Context, reservationID, depositID string) error
}

// DepositStore persists deposits and card guarantees
type DepositStore interface {
	CreateDeposit(ctx context.Context, d *models.Deposit) error
	GetDeposit(ctx context.Context, id string) (*models.Deposit, error)
	GetDepositByReservation(ctx context.Context, reservationID string) (*models.Deposit, error)
	// TransitionDeposit writes d only if the stored status still equals fromStatus
	TransitionDeposit(ctx context.Context, d *models.Deposit, fromStatus string) error
	CreateCardGuarantee(ctx context.Context, g *models.CardGuarantee) error
	GetCardGuaranteeByReservation(ctx context.Context, reservationID string) (*models.CardGuarantee, error)
	UpdateCardGuarantee(ctx context.Context, g *models.CardGuarantee) error
}

// GuestStore persists customer profiles and the waitlist
type GuestStore interface {
	EnsureCustomer(ctx context.Context, locationID, name, email, phone string) (*models.CustomerProfile, error)
	GetCustomer(ctx context.Context, id string) (*models.CustomerProfile, error)
	IncrementNoShow(ctx context.Context, customerID string) (int, error)
	BlockCustomer(ctx context.Context, customerID, reason string, at time.Time) error
	FindWaitlistCandidate(ctx context.Context, locationID, date string, minCapacity, maxCapacity int) (*models.WaitlistEntry, error)
	MarkWaitlistNotified(ctx context.Context, id string, at time.Time) error
}

// Repository is the full record store the engine runs against
type Repository interface {
	CatalogReader
	ReservationStore
	DepositStore
	GuestStore
}

// Locker serializes check-then-act sequences across processes
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishReservationEvent(ctx context.Context, event *models.ReservationEvent) error
	PublishDepositEvent(ctx context.Context, event *models.DepositEvent) error
	PublishWaitlistEvent(ctx context.Context, event *models.WaitlistEvent) error
}

// Clock returns the current time
type Clock func() time.Time
