package service

import (
	"context"
	"testing"
	"time"

	"reservation-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookingReq(partySize int, clock string) *CreateReservationRequest {
	return &CreateReservationRequest{
		LocationID: testLocation,
		Date:       testDate,
		Time:       clock,
		PartySize:  partySize,
		GuestName:  "Guest",
		GuestEmail: "guest@example.com",
	}
}

func TestCreateReservation_AcceptThenRejectAtCapacity(t *testing.T) {
	f := newFixture(t).withDinner(intPtr(10))
	ctx := context.Background()

	first, err := f.reservations.CreateReservation(ctx, bookingReq(6, "20:00"))
	require.NoError(t, err)
	require.True(t, first.Accepted)
	assert.Equal(t, models.ReservationStatusConfirmed, first.Reservation.Status)
	assert.Equal(t, dinnerID, first.Reservation.ServiceID)
	assert.Equal(t, 90, first.Reservation.DurationMinutes)
	require.NotNil(t, first.Reservation.CustomerID)

	second, err := f.reservations.CreateReservation(ctx, bookingReq(5, "20:00"))
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, CodeServiceFull, second.Code)
	assert.Equal(t, []string{"21:30", "21:45", "22:00"}, second.SuggestedTimes)

	assert.Len(t, f.repo.reservations, 1)
	assert.Equal(t, []string{models.EventTypeReservationCreated}, f.events.reservationTypes())
	assert.False(t, f.locker.isHeld(bookingLockKey(testLocation, testDate)))
	assert.Len(t, f.messenger.messages(), 1)
}

func TestCreateReservation_PacingRejects(t *testing.T) {
	f := newFixture(t).withDinner(intPtr(40))
	withPacing(f, 15, 8)
	ctx := context.Background()

	first, err := f.reservations.CreateReservation(ctx, bookingReq(5, "20:00"))
	require.NoError(t, err)
	assert.True(t, first.Accepted)

	second, err := f.reservations.CreateReservation(ctx, bookingReq(5, "20:05"))
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, CodePacingLimit, second.Code)
	assert.Len(t, f.repo.reservations, 1)
}

func TestCreateReservation_Idempotent(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	ctx := context.Background()
	req := bookingReq(4, "20:00")
	req.IdempotencyKey = "req-123"

	first, err := f.reservations.CreateReservation(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := f.reservations.CreateReservation(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Accepted)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Reservation.ID, second.Reservation.ID)

	assert.Len(t, f.repo.reservations, 1)
	assert.Len(t, f.messenger.messages(), 1)
}

func TestCreateReservation_RejectsBlockedGuest(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	f.repo.customers["cust-1"] = models.CustomerProfile{
		ID: "cust-1", LocationID: testLocation, Email: "Guest@Example.com", Blocked: true,
	}

	res, err := f.reservations.CreateReservation(context.Background(), bookingReq(2, "20:00"))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, CodeGuestBlocked, res.Code)
	assert.Empty(t, f.repo.reservations)
}

func TestCreateReservation_CardGuarantee(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	policy := latePolicy(50)
	policy.CardGuaranteeRequired = true
	f.setPolicy(policy)
	ctx := context.Background()

	res, err := f.reservations.CreateReservation(ctx, bookingReq(4, "20:00"))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, CodeCardGuaranteeRequired, res.Code)

	req := bookingReq(4, "20:00")
	req.PaymentMethodID = "pm_visa"
	res, err = f.reservations.CreateReservation(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.NotNil(t, res.Guarantee)
	assert.Equal(t, models.GuaranteeStatusSaved, res.Guarantee.Status)
	assert.Equal(t, "pm_visa", f.repo.guarantees[res.Reservation.ID].PaymentMethodID)
}

func TestCreateReservation_Deposit(t *testing.T) {
	ctx := context.Background()

	t.Run("authorized with the booking", func(t *testing.T) {
		f := newFixture(t).withDinner(nil)
		withDeposits(f, 6, 1000)

		res, err := f.reservations.CreateReservation(ctx, bookingReq(6, "20:00"))
		require.NoError(t, err)
		require.True(t, res.Accepted)
		require.NotNil(t, res.Deposit)
		assert.Equal(t, models.DepositStatusAuthorized, res.Deposit.Status)
		assert.Equal(t, int64(6000), res.Deposit.Amount)
		assert.Empty(t, res.DepositError)
		assert.Equal(t, res.Deposit.ID, *f.reservation(t, res.Reservation.ID).DepositID)
	})

	t.Run("small party pays nothing", func(t *testing.T) {
		f := newFixture(t).withDinner(nil)
		withDeposits(f, 6, 1000)

		res, err := f.reservations.CreateReservation(ctx, bookingReq(2, "20:00"))
		require.NoError(t, err)
		require.True(t, res.Accepted)
		assert.Nil(t, res.Deposit)
		assert.Empty(t, f.payments.Calls())
	})

	t.Run("declined card keeps the booking", func(t *testing.T) {
		f := newFixture(t).withDinner(nil)
		withDeposits(f, 6, 1000)
		f.payments.FailAuthorize = true

		res, err := f.reservations.CreateReservation(ctx, bookingReq(6, "20:00"))
		require.NoError(t, err)
		require.True(t, res.Accepted)
		assert.NotEmpty(t, res.DepositError)
		require.NotNil(t, res.Deposit)
		assert.Equal(t, models.DepositStatusFailed, res.Deposit.Status)
		assert.Equal(t, models.ReservationStatusConfirmed, f.reservation(t, res.Reservation.ID).Status)
	})
}

func TestCreateReservation_SlotBusy(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	f.locker.held[bookingLockKey(testLocation, testDate)] = "someone-else"

	_, err := f.reservations.CreateReservation(context.Background(), bookingReq(2, "20:00"))
	assert.ErrorIs(t, err, ErrSlotBusy)
	assert.Empty(t, f.repo.reservations)
}

func TestCreateReservation_AutoAssign(t *testing.T) {
	f := newFixture(t).withDinner(nil).withTable("A", "main", 2, 4)
	svc := NewReservationService(f.repo, f.locker, f.events, f.messenger,
		f.availability, f.pacing, f.seating, f.deposits, f.policies, f.occupancy,
		BookingOptions{AutoAssign: true})
	svc.now = func() time.Time { return f.now }

	res, err := svc.CreateReservation(context.Background(), bookingReq(4, "20:00"))
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.NotNil(t, res.Table)
	assert.Equal(t, "A", res.Table.TableID)
	assert.Equal(t, "A", res.Reservation.TableIDValue())
	assert.True(t, f.reservation(t, res.Reservation.ID).AutoAssigned)
}

func TestCreateReservation_Validation(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	ctx := context.Background()

	req := bookingReq(2, "20:00")
	req.GuestName = ""
	_, err := f.reservations.CreateReservation(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.reservations.CreateReservation(ctx, bookingReq(2, "25:00"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateReservation_NotificationFailureIsTolerated(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	f.messenger.fail = true

	res, err := f.reservations.CreateReservation(context.Background(), bookingReq(2, "20:00"))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Len(t, f.repo.reservations, 1)
}

func TestCancelReservation_LateFeeOnDeposit(t *testing.T) {
	f := newFixture(t).withDinner(intPtr(10))
	f.setPolicy(latePolicy(50))
	r := f.addReservation(6, "20:00")
	d := f.addAuthorizedDeposit(t, r.ID, 4000)
	f.now = time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	ctx := context.Background()

	result, err := f.reservations.CancelReservation(ctx, CancelRequest{ReservationID: r.ID, Notify: true})
	require.NoError(t, err)
	assert.Empty(t, result.PaymentError)
	assert.Equal(t, OutcomePartialRefund, result.Settlement.Outcome)
	assert.Equal(t, int64(2000), result.Settlement.Quote.RefundAmount)

	stored := f.reservation(t, r.ID)
	assert.Equal(t, models.ReservationStatusCancelled, stored.Status)
	assert.Equal(t, "Cancelled by guest", stored.CancellationReason)
	assert.Equal(t, int64(4000), f.repo.deposits[d.ID].ChargedAmount)
	assert.Equal(t, int64(2000), f.repo.deposits[d.ID].RefundedAmount)
	assert.Contains(t, f.events.reservationTypes(), models.EventTypeReservationCancelled)

	msgs := f.messenger.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "20.00 EUR will be refunded")

	// the freed covers are bookable again
	avail, err := f.availability.CheckAvailability(ctx, availabilityReq(10, "20:00"))
	require.NoError(t, err)
	assert.True(t, avail.Available)

	_, err = f.reservations.CancelReservation(ctx, CancelRequest{ReservationID: r.ID})
	assert.ErrorIs(t, err, ErrInvalidReservationState)
}

func TestCancelReservation_SettlesCardGuarantee(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) (*fixture, *models.Reservation) {
		f := newFixture(t).withDinner(nil)
		f.setPolicy(latePolicy(50))
		f.updateSettings(func(s *models.LocationSettings) { s.DepositPerPerson = 1000 })
		r := f.addReservation(4, "20:00", func(r *models.Reservation) { r.Date = "2026-03-11" })
		f.repo.guarantees[r.ID] = models.CardGuarantee{ID: "g1", ReservationID: r.ID, PaymentMethodID: "pm_visa", Status: models.GuaranteeStatusSaved}
		return f, r
	}

	t.Run("late cancellation charges the fee", func(t *testing.T) {
		f, r := setup(t)
		f.now = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

		result, err := f.reservations.CancelReservation(ctx, CancelRequest{ReservationID: r.ID})
		require.NoError(t, err)
		require.NotNil(t, result.Guarantee)
		assert.Equal(t, models.GuaranteeStatusCharged, result.Guarantee.Status)
		assert.Equal(t, int64(2000), result.Guarantee.ChargedAmount)
	})

	t.Run("free cancellation releases the card", func(t *testing.T) {
		f, r := setup(t)

		result, err := f.reservations.CancelReservation(ctx, CancelRequest{ReservationID: r.ID})
		require.NoError(t, err)
		require.NotNil(t, result.Guarantee)
		assert.Equal(t, models.GuaranteeStatusExpired, result.Guarantee.Status)
		assert.Empty(t, f.payments.Calls())
	})

	t.Run("declined fee does not undo the cancellation", func(t *testing.T) {
		f, r := setup(t)
		f.now = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
		f.payments.FailAuthorize = true

		result, err := f.reservations.CancelReservation(ctx, CancelRequest{ReservationID: r.ID})
		require.NoError(t, err)
		assert.NotEmpty(t, result.PaymentError)
		assert.Equal(t, models.ReservationStatusCancelled, f.reservation(t, r.ID).Status)
	})
}

func TestMarkNoShow(t *testing.T) {
	ctx := context.Background()

	t.Run("captures the deposit", func(t *testing.T) {
		f := newFixture(t).withDinner(nil)
		r := f.addReservation(4, "20:00")
		d := f.addAuthorizedDeposit(t, r.ID, 4000)

		result, err := f.reservations.MarkNoShow(ctx, r.ID)
		require.NoError(t, err)
		assert.Empty(t, result.PaymentError)
		assert.Equal(t, models.ReservationStatusNoShow, f.reservation(t, r.ID).Status)
		assert.Equal(t, models.DepositStatusCharged, f.repo.deposits[d.ID].Status)
		assert.Contains(t, f.events.reservationTypes(), models.EventTypeReservationNoShow)
	})

	t.Run("charges the card guarantee", func(t *testing.T) {
		f := newFixture(t).withDinner(nil)
		f.updateSettings(func(s *models.LocationSettings) { s.DepositPerPerson = 1000 })
		r := f.addReservation(4, "20:00")
		f.repo.guarantees[r.ID] = models.CardGuarantee{ID: "g1", ReservationID: r.ID, PaymentMethodID: "pm_visa", Status: models.GuaranteeStatusSaved}

		result, err := f.reservations.MarkNoShow(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, result.Guarantee)
		assert.Equal(t, models.GuaranteeStatusCharged, result.Guarantee.Status)
		assert.Equal(t, int64(4000), result.Guarantee.ChargedAmount)
	})

	t.Run("only before seating", func(t *testing.T) {
		f := newFixture(t).withDinner(nil)
		r := f.addReservation(4, "20:00", withStatus(models.ReservationStatusSeated))

		_, err := f.reservations.MarkNoShow(ctx, r.ID)
		assert.ErrorIs(t, err, ErrInvalidReservationState)
	})
}

func TestSeatAndCompleteReservation(t *testing.T) {
	f := newFixture(t).withDinner(nil).withTable("A", "main", 2, 4)
	r := f.addReservation(4, "20:00")
	ctx := context.Background()

	seated, err := f.reservations.SeatReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusSeated, seated.Status)
	assert.Equal(t, "A", seated.TableIDValue())
	assert.NotNil(t, f.reservation(t, r.ID).SeatedAt)

	_, err = f.reservations.SeatReservation(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidReservationState)

	released, err := f.reservations.CompleteReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCompleted, released.Reservation.Status)

	assert.Equal(t, []string{
		models.EventTypeTableAssigned,
		models.EventTypeReservationSeated,
		models.EventTypeReservationCompleted,
	}, f.events.reservationTypes())
}

func TestSeatReservation_NoTable(t *testing.T) {
	f := newFixture(t).withDinner(nil).withTable("A", "main", 1, 2)
	r := f.addReservation(4, "20:00")

	_, err := f.reservations.SeatReservation(context.Background(), r.ID)
	assert.ErrorIs(t, err, ErrNoTableAvailable)
	assert.Equal(t, models.ReservationStatusConfirmed, f.reservation(t, r.ID).Status)
}

func TestGetReservation(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	r := f.addReservation(4, "20:00")
	d := f.addAuthorizedDeposit(t, r.ID, 4000)

	details, err := f.reservations.GetReservation(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, details.Reservation.ID)
	require.NotNil(t, details.Deposit)
	assert.Equal(t, d.ID, details.Deposit.ID)
	assert.Nil(t, details.Guarantee)
}
