package service

import (
	"context"
	"testing"

	"reservation-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPacing(f *fixture, window, maxCovers int) {
	f.updateSettings(func(s *models.LocationSettings) {
		s.PacingWindowMinutes = window
		s.PacingMaxCovers = maxCovers
	})
}

func pacingReq(partySize int, clock string) PacingRequest {
	return PacingRequest{LocationID: testLocation, Date: testDate, Time: clock, PartySize: partySize, ServiceID: dinnerID}
}

func TestCheckPacing_ThrottlesBelowServiceCapacity(t *testing.T) {
	f := newFixture(t).withDinner(intPtr(40))
	withPacing(f, 15, 8)
	f.addReservation(5, "20:00")
	f.addReservation(5, "20:00")
	ctx := context.Background()

	avail, err := f.availability.CheckAvailability(ctx, availabilityReq(4, "20:05"))
	require.NoError(t, err)
	assert.True(t, avail.Available)

	res, err := f.pacing.CheckPacing(ctx, pacingReq(4, "20:05"))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, CodePacingLimit, res.Code)
	assert.Equal(t, 10, res.CurrentCovers)
	assert.Equal(t, 8, res.MaxCovers)
	assert.Equal(t, "20:00", res.WindowStart)
}

func TestCheckPacing_RollingWindowLooksAhead(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	withPacing(f, 15, 8)
	f.addReservation(5, "20:10")

	res, err := f.pacing.CheckPacing(context.Background(), pacingReq(4, "20:00"))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 5, res.CurrentCovers)
}

func TestCheckPacing_WindowBoundaryIsExclusive(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	withPacing(f, 15, 8)
	f.addReservation(5, "20:00")

	res, err := f.pacing.CheckPacing(context.Background(), pacingReq(4, "20:15"))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.CurrentCovers)
}

func TestCheckPacing_DefaultsWindowToSlot(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	withPacing(f, 0, 8)
	f.addReservation(6, "20:00")

	res, err := f.pacing.CheckPacing(context.Background(), pacingReq(4, "20:14"))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 15, res.WindowMinutes)
}

func TestCheckPacing_NoCapAllowsEverything(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	f.addReservation(10, "20:00")

	res, err := f.pacing.CheckPacing(context.Background(), pacingReq(10, "20:00"))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckPacing_ReservationCountCap(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	f.updateSettings(func(s *models.LocationSettings) {
		s.PacingWindowMinutes = 30
		s.PacingMaxReservations = 2
	})
	f.addReservation(2, "19:00")
	f.addReservation(2, "19:10")

	res, err := f.pacing.CheckPacing(context.Background(), pacingReq(2, "19:20"))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.CurrentReservations)
}

func TestCheckPacing_ResolvesServiceFromTime(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	withPacing(f, 15, 8)

	req := pacingReq(2, "20:00")
	req.ServiceID = ""
	res, err := f.pacing.CheckPacing(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	req.Time = "09:00"
	_, err = f.pacing.CheckPacing(context.Background(), req)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestCheckPacing_RejectsForeignOrInactiveService(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	withPacing(f, 15, 8)
	f.repo.services["svc-other"] = models.Service{
		ID: "svc-other", LocationID: "loc-other", Name: "Dinner",
		StartTime: "17:00", EndTime: "23:00", DefaultDurationMinutes: 90, Active: true,
	}
	ctx := context.Background()

	req := pacingReq(2, "20:00")
	req.ServiceID = "svc-other"
	_, err := f.pacing.CheckPacing(ctx, req)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	_, err = f.pacing.GetPacingStatusForService(ctx, testLocation, testDate, "svc-other")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	dinner := f.repo.services[dinnerID]
	dinner.Active = false
	f.repo.services[dinnerID] = dinner
	_, err = f.pacing.CheckPacing(ctx, pacingReq(2, "20:00"))
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestGetPacingStatusForService(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	withPacing(f, 15, 8)
	f.addReservation(5, "20:00")
	f.addReservation(2, "20:05")
	f.addReservation(8, "21:00")

	status, err := f.pacing.GetPacingStatusForService(context.Background(), testLocation, testDate, dinnerID)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", status.ServiceName)
	require.Len(t, status.Slots, 24)

	bySlot := make(map[string]SlotPacing, len(status.Slots))
	for _, s := range status.Slots {
		bySlot[s.Time] = s
	}
	assert.Equal(t, 7, bySlot["20:00"].CurrentCovers)
	assert.InDelta(t, 87.5, bySlot["20:00"].Utilization, 0.001)
	assert.Equal(t, SlotStatusAlmostFull, bySlot["20:00"].Status)
	assert.Equal(t, SlotStatusFull, bySlot["21:00"].Status)
	assert.Equal(t, SlotStatusAvailable, bySlot["20:15"].Status)
	assert.Equal(t, 0, bySlot["20:15"].CurrentCovers)
}

func TestSuggestOptimalTimeSlots(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	withPacing(f, 15, 8)
	f.addReservation(5, "17:00")
	f.addReservation(2, "17:15")

	slots, err := f.pacing.SuggestOptimalTimeSlots(context.Background(), testLocation, testDate, dinnerID, 4, 3)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	// 17:00 cannot take four more; empty slots come first in time order
	assert.Equal(t, "17:30", slots[0].Time)
	assert.Equal(t, "17:45", slots[1].Time)
	assert.Equal(t, "18:00", slots[2].Time)
	for _, s := range slots {
		assert.Zero(t, s.Utilization)
	}
}

func TestGetPacingStatusForService_RequiresService(t *testing.T) {
	f := newFixture(t).withDinner(nil)
	_, err := f.pacing.GetPacingStatusForService(context.Background(), testLocation, testDate, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
