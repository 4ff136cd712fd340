package models

import "time"

// Reservation represents a guest booking at a location
type Reservation struct {
	ID                     string     `db:"id" json:"id"`
	LocationID             string     `db:"location_id" json:"location_id"`
	CustomerID             *string    `db:"customer_id" json:"customer_id,omitempty"`
	GuestName              string     `db:"guest_name" json:"guest_name"`
	GuestEmail             string     `db:"guest_email" json:"guest_email,omitempty"`
	GuestPhone             string     `db:"guest_phone" json:"guest_phone,omitempty"`
	PartySize              int        `db:"party_size" json:"party_size"`
	Date                   string     `db:"date" json:"date"`
	Time                   string     `db:"time" json:"time"`
	DurationMinutes        int        `db:"duration_minutes" json:"duration_minutes"`
	ServiceID              string     `db:"service_id" json:"service_id"`
	ZoneID                 *string    `db:"zone_id" json:"zone_id,omitempty"`
	TableID                *string    `db:"table_id" json:"table_id,omitempty"`
	AutoAssigned           bool       `db:"auto_assigned" json:"auto_assigned"`
	Status                 string     `db:"status" json:"status"`
	DepositID              *string    `db:"deposit_id" json:"deposit_id,omitempty"`
	PromoCode              string     `db:"promo_code" json:"promo_code,omitempty"`
	Notes                  string     `db:"notes" json:"notes,omitempty"`
	IdempotencyKey         string     `db:"idempotency_key" json:"idempotency_key,omitempty"`
	ReconfirmationRequired bool       `db:"reconfirmation_required" json:"reconfirmation_required"`
	ReconfirmationRemindAt *time.Time `db:"reconfirmation_remind_at" json:"reconfirmation_remind_at,omitempty"`
	ReconfirmationDeadline *time.Time `db:"reconfirmation_deadline" json:"reconfirmation_deadline,omitempty"`
	ReconfirmationSentAt   *time.Time `db:"reconfirmation_sent_at" json:"reconfirmation_sent_at,omitempty"`
	ReconfirmedAt          *time.Time `db:"reconfirmed_at" json:"reconfirmed_at,omitempty"`
	CancellationReason     string     `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt            *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	SeatedAt               *time.Time `db:"seated_at" json:"seated_at,omitempty"`
	CompletedAt            *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// Reservation statuses
const (
	ReservationStatusPending   = "pending"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusSeated    = "seated"
	ReservationStatusCompleted = "completed"
	ReservationStatusCancelled = "cancelled"
	ReservationStatusNoShow    = "no_show"
)

// ActiveReservationStatuses are the statuses that hold capacity and tables
var ActiveReservationStatuses = []string{
	ReservationStatusPending,
	ReservationStatusConfirmed,
	ReservationStatusSeated,
}

// IsActive reports whether the reservation still holds capacity
func (r *Reservation) IsActive() bool {
	switch r.Status {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusSeated:
		return true
	}
	return false
}

// IsTerminal reports whether the reservation can no longer change
func (r *Reservation) IsTerminal() bool {
	switch r.Status {
	case ReservationStatusCompleted, ReservationStatusCancelled, ReservationStatusNoShow:
		return true
	}
	return false
}

// ZoneIDValue returns the requested zone or ""
func (r *Reservation) ZoneIDValue() string {
	if r.ZoneID == nil {
		return ""
	}
	return *r.ZoneID
}

// TableIDValue returns the assigned table or ""
func (r *Reservation) TableIDValue() string {
	if r.TableID == nil {
		return ""
	}
	return *r.TableID
}

// Service is a named recurring operating window such as lunch or dinner
type Service struct {
	ID                     string `db:"id" json:"id"`
	LocationID             string `db:"location_id" json:"location_id"`
	Name                   string `db:"name" json:"name"`
	StartTime              string `db:"start_time" json:"start_time"`
	EndTime                string `db:"end_time" json:"end_time"`
	SlotMinutes            int    `db:"slot_minutes" json:"slot_minutes"`
	MaxCovers              *int   `db:"max_covers" json:"max_covers,omitempty"`
	DefaultDurationMinutes int    `db:"default_duration_minutes" json:"default_duration_minutes"`
	Active                 bool   `db:"active" json:"active"`
}

// Zone is a capacity-bounded seating area
type Zone struct {
	ID         string `db:"id" json:"id"`
	LocationID string `db:"location_id" json:"location_id"`
	Name       string `db:"name" json:"name"`
	Capacity   int    `db:"capacity" json:"capacity"`
	Active     bool   `db:"active" json:"active"`
}

// Table is a physical table inside a zone
type Table struct {
	ID          string `db:"id" json:"id"`
	LocationID  string `db:"location_id" json:"location_id"`
	ZoneID      string `db:"zone_id" json:"zone_id"`
	Name        string `db:"name" json:"name"`
	MinCapacity int    `db:"min_capacity" json:"min_capacity"`
	MaxCapacity int    `db:"max_capacity" json:"max_capacity"`
	Combinable  bool   `db:"combinable" json:"combinable"`
	Active      bool   `db:"active" json:"active"`
}

// Fits reports whether the party size lies within the table's capacity range
func (t *Table) Fits(partySize int) bool {
	return partySize >= t.MinCapacity && partySize <= t.MaxCapacity
}

// LocationSettings holds per-location booking rules
type LocationSettings struct {
	LocationID            string `db:"location_id" json:"location_id"`
	Timezone              string `db:"timezone" json:"timezone"`
	Currency              string `db:"currency" json:"currency"`
	MinPartySize          int    `db:"min_party_size" json:"min_party_size"`
	MaxPartySize          int    `db:"max_party_size" json:"max_party_size"`
	SlotMinutes           int    `db:"slot_minutes" json:"slot_minutes"`
	MaxCoversPerSlot      *int   `db:"max_covers_per_slot" json:"max_covers_per_slot,omitempty"`
	PacingWindowMinutes   int    `db:"pacing_window_minutes" json:"pacing_window_minutes"`
	PacingMaxCovers       int    `db:"pacing_max_covers" json:"pacing_max_covers"`
	PacingMaxReservations int    `db:"pacing_max_reservations" json:"pacing_max_reservations"`
	DepositRequired       bool   `db:"deposit_required" json:"deposit_required"`
	DepositMinPartySize   int    `db:"deposit_min_party_size" json:"deposit_min_party_size"`
	DepositPerPerson      int64  `db:"deposit_per_person" json:"deposit_per_person"`
	NoShowBlockThreshold  int    `db:"no_show_block_threshold" json:"no_show_block_threshold"`
}

// Closure marks a date on which a location takes no bookings
type Closure struct {
	LocationID string `db:"location_id" json:"location_id"`
	Date       string `db:"date" json:"date"`
	Note       string `db:"note" json:"note"`
}

// CancellationPolicy holds per-location cancellation and reconfirmation thresholds
type CancellationPolicy struct {
	LocationID                 string `db:"location_id" json:"location_id"`
	FreeCancellationHours      int    `db:"free_cancellation_hours" json:"free_cancellation_hours"`
	FeeEnabled                 bool   `db:"fee_enabled" json:"fee_enabled"`
	FeePercentage              int    `db:"fee_percentage" json:"fee_percentage"`
	NoShowPercentage           int    `db:"no_show_percentage" json:"no_show_percentage"`
	CardGuaranteeRequired      bool   `db:"card_guarantee_required" json:"card_guarantee_required"`
	ReconfirmationRequired     bool   `db:"reconfirmation_required" json:"reconfirmation_required"`
	ReconfirmationMinPartySize int    `db:"reconfirmation_min_party_size" json:"reconfirmation_min_party_size"`
	ReconfirmationHoursBefore  int    `db:"reconfirmation_hours_before" json:"reconfirmation_hours_before"`
	ReconfirmationCutoffHours  int    `db:"reconfirmation_cutoff_hours" json:"reconfirmation_cutoff_hours"`
}

// Deposit is a pre-authorized payment tied 1:1 to a reservation
type Deposit struct {
	ID              string    `db:"id" json:"id"`
	ReservationID   string    `db:"reservation_id" json:"reservation_id"`
	LocationID      string    `db:"location_id" json:"location_id"`
	Amount          int64     `db:"amount" json:"amount"`
	PerPersonRate   int64     `db:"per_person_rate" json:"per_person_rate"`
	Currency        string    `db:"currency" json:"currency"`
	Status          string    `db:"status" json:"status"`
	PaymentIntentID string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	ChargedAmount   int64     `db:"charged_amount" json:"charged_amount"`
	RefundedAmount  int64     `db:"refunded_amount" json:"refunded_amount"`
	FailureReason   string    `db:"failure_reason" json:"failure_reason,omitempty"`
	RefundReason    string    `db:"refund_reason" json:"refund_reason,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Deposit statuses
const (
	DepositStatusPending    = "pending"
	DepositStatusAuthorized = "authorized"
	DepositStatusCharged    = "charged"
	DepositStatusRefunded   = "refunded"
	DepositStatusFailed     = "failed"
)

// CardGuarantee is a saved, uncharged payment method held against a reservation
type CardGuarantee struct {
	ID              string    `db:"id" json:"id"`
	ReservationID   string    `db:"reservation_id" json:"reservation_id"`
	PaymentMethodID string    `db:"payment_method_id" json:"payment_method_id"`
	Status          string    `db:"status" json:"status"`
	PaymentIntentID string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	ChargedAmount   int64     `db:"charged_amount" json:"charged_amount"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Card guarantee statuses
const (
	GuaranteeStatusSaved    = "saved"
	GuaranteeStatusCharged  = "charged"
	GuaranteeStatusRefunded = "refunded"
	GuaranteeStatusExpired  = "expired"
)

// CustomerProfile tracks a guest across reservations at a location
type CustomerProfile struct {
	ID            string     `db:"id" json:"id"`
	LocationID    string     `db:"location_id" json:"location_id"`
	Name          string     `db:"name" json:"name"`
	Email         string     `db:"email" json:"email"`
	Phone         string     `db:"phone" json:"phone,omitempty"`
	NoShowCount   int        `db:"no_show_count" json:"no_show_count"`
	Blocked       bool       `db:"blocked" json:"blocked"`
	BlockedReason string     `db:"blocked_reason" json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `db:"blocked_at" json:"blocked_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// PromoCode can waive the deposit for a booking
type PromoCode struct {
	Code          string `db:"code" json:"code"`
	LocationID    string `db:"location_id" json:"location_id"`
	WaivesDeposit bool   `db:"waives_deposit" json:"waives_deposit"`
	Active        bool   `db:"active" json:"active"`
}

// WaitlistEntry is a walk-in or phone party waiting for a table
type WaitlistEntry struct {
	ID         string     `db:"id" json:"id"`
	LocationID string     `db:"location_id" json:"location_id"`
	Date       string     `db:"date" json:"date"`
	GuestName  string     `db:"guest_name" json:"guest_name"`
	GuestPhone string     `db:"guest_phone" json:"guest_phone,omitempty"`
	GuestEmail string     `db:"guest_email" json:"guest_email,omitempty"`
	PartySize  int        `db:"party_size" json:"party_size"`
	Status     string     `db:"status" json:"status"`
	NotifiedAt *time.Time `db:"notified_at" json:"notified_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Waitlist statuses
const (
	WaitlistStatusWaiting  = "waiting"
	WaitlistStatusNotified = "notified"
	WaitlistStatusSeated   = "seated"
)
