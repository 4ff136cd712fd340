package store

import (
	"context"

	"reservation-service/internal/models"
)

// CreateDeposit inserts a deposit. A second deposit for the same reservation yields ErrDuplicate.
func (s *Store) CreateDeposit(ctx context.Context, d *models.Deposit) error {
	query := `
		INSERT INTO deposits (
			id, reservation_id, location_id, amount, per_person_rate, currency, status,
			payment_intent_id, charged_amount, refunded_amount, failure_reason, refund_reason,
			created_at, updated_at
		) VALUES (
			:id, :reservation_id, :location_id, :amount, :per_person_rate, :currency, :status,
			:payment_intent_id, :charged_amount, :refunded_amount, :failure_reason, :refund_reason,
			:created_at, :updated_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, d); err != nil {
		return mapError(err)
	}
	return nil
}

// GetDeposit retrieves a deposit by ID
func (s *Store) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	var d models.Deposit
	if err := s.get(ctx, &d, "SELECT * FROM deposits WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDepositByReservation returns the deposit of a reservation, or nil
func (s *Store) GetDepositByReservation(ctx context.Context, reservationID string) (*models.Deposit, error) {
	var d models.Deposit
	found, err := s.getOptional(ctx, &d, "SELECT * FROM deposits WHERE reservation_id = $1", reservationID)
	if err != nil || !found {
		return nil, err
	}
	return &d, nil
}

// TransitionDeposit writes d only while the stored status is still fromStatus
func (s *Store) TransitionDeposit(ctx context.Context, d *models.Deposit, fromStatus string) error {
	return s.exec(ctx, ErrConcurrentUpdate, `
		UPDATE deposits
		SET status = $1, payment_intent_id = $2, charged_amount = $3, refunded_amount = $4,
		    failure_reason = $5, refund_reason = $6, updated_at = $7
		WHERE id = $8 AND status = $9`,
		d.Status, d.PaymentIntentID, d.ChargedAmount, d.RefundedAmount,
		d.FailureReason, d.RefundReason, d.UpdatedAt, d.ID, fromStatus)
}

// CreateCardGuarantee inserts a card guarantee, one per reservation
func (s *Store) CreateCardGuarantee(ctx context.Context, g *models.CardGuarantee) error {
	query := `
		INSERT INTO card_guarantees (
			id, reservation_id, payment_method_id, status, payment_intent_id, charged_amount,
			created_at, updated_at
		) VALUES (
			:id, :reservation_id, :payment_method_id, :status, :payment_intent_id, :charged_amount,
			:created_at, :updated_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, g); err != nil {
		return mapError(err)
	}
	return nil
}

// GetCardGuaranteeByReservation returns the guarantee of a reservation, or nil
func (s *Store) GetCardGuaranteeByReservation(ctx context.Context, reservationID string) (*models.CardGuarantee, error) {
	var g models.CardGuarantee
	found, err := s.getOptional(ctx, &g, "SELECT * FROM card_guarantees WHERE reservation_id = $1", reservationID)
	if err != nil || !found {
		return nil, err
	}
	return &g, nil
}

func (s *Store) UpdateCardGuarantee(ctx context.Context, g *models.CardGuarantee) error {
	return s.exec(ctx, ErrNotFound, `
		UPDATE card_guarantees
		SET status = $1, payment_intent_id = $2, charged_amount = $3, updated_at = $4
		WHERE reservation_id = $5`,
		g.Status, g.PaymentIntentID, g.ChargedAmount, g.UpdatedAt, g.ReservationID)
}
