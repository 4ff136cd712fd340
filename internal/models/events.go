package models

import "time"

// Event types
const (
	EventTypeReservationCreated   = "RESERVATION_CREATED"
	EventTypeReservationConfirmed = "RESERVATION_CONFIRMED"
	EventTypeTableAssigned        = "TABLE_ASSIGNED"
	EventTypeReservationSeated    = "RESERVATION_SEATED"
	EventTypeReservationCompleted = "RESERVATION_COMPLETED"
	EventTypeReservationCancelled = "RESERVATION_CANCELLED"
	EventTypeReservationNoShow    = "RESERVATION_NO_SHOW"
	EventTypeDepositAuthorized    = "DEPOSIT_AUTHORIZED"
	EventTypeDepositCharged       = "DEPOSIT_CHARGED"
	EventTypeDepositRefunded      = "DEPOSIT_REFUNDED"
	EventTypeDepositFailed        = "DEPOSIT_FAILED"
	EventTypeWaitlistNotified     = "WAITLIST_NOTIFIED"

	// Inbound from the point-of-sale system
	EventTypeTableVacated = "TABLE_VACATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReservationEvent is published on every reservation lifecycle transition
type ReservationEvent struct {
	BaseEvent
	ReservationID string `json:"reservation_id"`
	LocationID    string `json:"location_id"`
	Status        string `json:"status"`
	PartySize     int    `json:"party_size"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	TableID       string `json:"table_id,omitempty"`
	AutoAssigned  bool   `json:"auto_assigned,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// DepositEvent is published on every deposit transition
type DepositEvent struct {
	BaseEvent
	DepositID       string `json:"deposit_id"`
	ReservationID   string `json:"reservation_id"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	ChargedAmount   int64  `json:"charged_amount"`
	RefundedAmount  int64  `json:"refunded_amount"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// WaitlistEvent is published when a waiting party is offered a freed table
type WaitlistEvent struct {
	BaseEvent
	EntryID    string `json:"entry_id"`
	LocationID string `json:"location_id"`
	TableID    string `json:"table_id"`
	PartySize  int    `json:"party_size"`
}

// TableVacatedEvent is emitted by the POS when a physical table is closed out
type TableVacatedEvent struct {
	BaseEvent
	LocationID string `json:"location_id"`
	TableID    string `json:"table_id"`
}
