package service

import "errors"

// State-machine violations. These indicate a caller bug, not a capacity outcome.
var (
	ErrDepositExists           = errors.New("deposit already exists for reservation")
	ErrInvalidDepositState     = errors.New("invalid deposit state for operation")
	ErrZeroDepositAmount       = errors.New("deposit amount is zero")
	ErrRefundExceedsDeposit    = errors.New("refund exceeds deposit amount")
	ErrInvalidReservationState = errors.New("invalid reservation state for operation")
	ErrGuaranteeExists         = errors.New("card guarantee already saved for reservation")
	ErrInvalidGuaranteeState   = errors.New("invalid card guarantee state for operation")
)

// Seating and booking failures
var (
	ErrTableCapacity     = errors.New("party size outside table capacity")
	ErrTableOccupied     = errors.New("table occupied for the reservation window")
	ErrTableInactive     = errors.New("table inactive or at another location")
	ErrNoTableAvailable  = errors.New("no suitable table available")
	ErrSlotBusy          = errors.New("another booking for this slot is in progress")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrServiceNotFound   = errors.New("service not found for location")
	ErrPaymentFailed     = errors.New("payment provider failure")
	ErrNoPaymentIntent   = errors.New("deposit has no payment intent")
	ErrGuaranteeNotFound = errors.New("no card guarantee for reservation")
)
