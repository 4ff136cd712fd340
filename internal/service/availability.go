package service

import (
	"context"
	"errors"
	"fmt"

	"reservation-service/internal/models"
	"reservation-service/internal/store"
	"reservation-service/internal/timewindow"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// Rejection codes shared by availability, pacing and booking results
const (
	CodeAvailable             = "available"
	CodeLocationClosed        = "location_closed"
	CodePartyTooSmall         = "party_too_small"
	CodePartyTooLarge         = "party_too_large"
	CodeNoService             = "no_service"
	CodeOutsideServiceHours   = "outside_service_hours"
	CodeServiceFull           = "service_full"
	CodeZoneInactive          = "zone_inactive"
	CodeZoneFull              = "zone_full"
	CodeNoSuitableTable       = "no_suitable_table"
	CodeSlotFull              = "slot_full"
	CodePacingLimit           = "pacing_limit"
	CodeGuestBlocked          = "guest_blocked"
	CodeCardGuaranteeRequired = "card_guarantee_required"
)

const maxSuggestedTimes = 3

// AvailabilityRequest asks whether a party can be booked
type AvailabilityRequest struct {
	LocationID string `json:"location_id" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Time       string `json:"time" binding:"required"`
	PartySize  int    `json:"party_size" binding:"required,min=1"`
	ZoneID     string `json:"zone_id,omitempty"`
	ServiceID  string `json:"service_id,omitempty"`
}

// AvailabilityResult is the accept/reject decision. Rejections are results, not errors.
type AvailabilityResult struct {
	Available      bool     `json:"available"`
	Code           string   `json:"code"`
	Reason         string   `json:"reason,omitempty"`
	SuggestedTimes []string `json:"suggested_times,omitempty"`
	MaxPartySize   int      `json:"max_party_size,omitempty"`
	CurrentCovers  int      `json:"current_covers"`
	MaxCovers      int      `json:"max_covers,omitempty"`
	ServiceID      string   `json:"service_id,omitempty"`
}

func reject(code, reason string) *AvailabilityResult {
	return &AvailabilityResult{Available: false, Code: code, Reason: reason}
}

// AvailabilityChecker decides whether a booking request can be accepted
type AvailabilityChecker struct {
	repo   Repository
	logger *zap.Logger
}

// NewAvailabilityChecker creates a new availability checker
func NewAvailabilityChecker(repo Repository) *AvailabilityChecker {
	return &AvailabilityChecker{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// CheckAvailability runs the capacity checks in order and stops at the first failure.
// It has no side effects.
func (a *AvailabilityChecker) CheckAvailability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error) {
	ctx, span := util.StartSpan(ctx, "AvailabilityChecker.CheckAvailability")
	defer span.End()

	result, err := a.check(ctx, req)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.AvailabilityChecksTotal.WithLabelValues(result.Code).Inc()
	if !result.Available {
		a.logger.Debug("Booking request unavailable",
			zap.String("location_id", req.LocationID),
			zap.String("date", req.Date),
			zap.String("time", req.Time),
			zap.Int("party_size", req.PartySize),
			zap.String("code", result.Code))
	}
	return result, nil
}

func (a *AvailabilityChecker) check(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error) {
	if _, err := timewindow.ParseDate(req.Date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	requested, err := timewindow.ParseClock(req.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	closure, err := a.repo.GetClosure(ctx, req.LocationID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to check closures: %w", err)
	}
	if closure != nil {
		reason := "Restaurant closed on this date"
		if closure.Note != "" {
			reason = fmt.Sprintf("%s: %s", reason, closure.Note)
		}
		return reject(CodeLocationClosed, reason), nil
	}

	settings, err := loadSettings(ctx, a.repo, req.LocationID)
	if err != nil {
		return nil, err
	}
	if req.PartySize < settings.MinPartySize {
		return reject(CodePartyTooSmall, fmt.Sprintf("Minimum party size is %d", settings.MinPartySize)), nil
	}
	if req.PartySize > settings.MaxPartySize {
		res := reject(CodePartyTooLarge, fmt.Sprintf("Maximum party size is %d, please contact the restaurant", settings.MaxPartySize))
		res.MaxPartySize = settings.MaxPartySize
		return res, nil
	}

	svc, res, err := a.resolveService(ctx, req.LocationID, req.ServiceID, requested)
	if err != nil || res != nil {
		return res, err
	}

	start, end, err := serviceHours(svc)
	if err != nil {
		return nil, fmt.Errorf("service %s has invalid hours: %w", svc.ID, err)
	}
	if !timewindow.InWindow(requested, start, end) {
		return reject(CodeOutsideServiceHours,
			fmt.Sprintf("%s runs from %s to %s", svc.Name, svc.StartTime, svc.EndTime)), nil
	}

	reservations, err := a.repo.ListActiveReservations(ctx, req.LocationID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	idx, err := loadServiceIndex(ctx, a.repo, req.LocationID)
	if err != nil {
		return nil, err
	}
	idx[svc.ID] = svc

	target := timewindow.NewInterval(serviceStartMinute(svc, requested), durationFor(svc))
	inService := func(r *models.Reservation) bool { return r.ServiceID == svc.ID }

	currentCovers := coversOverlapping(idx, reservations, target, inService)
	result := &AvailabilityResult{
		Available:     true,
		Code:          CodeAvailable,
		CurrentCovers: currentCovers,
		ServiceID:     svc.ID,
	}

	if svc.MaxCovers != nil && *svc.MaxCovers > 0 {
		maxCovers := *svc.MaxCovers
		result.MaxCovers = maxCovers
		if currentCovers+req.PartySize > maxCovers {
			result.Available = false
			result.Code = CodeServiceFull
			result.Reason = fmt.Sprintf("%s is fully booked at %s (%d/%d covers)", svc.Name, req.Time, currentCovers, maxCovers)
			result.SuggestedTimes = suggestTimes(idx, reservations, svc, settings, target.Start, req.PartySize, inService)
			return result, nil
		}
	}

	if req.ZoneID != "" {
		if res, err := a.checkZone(ctx, req, idx, reservations, target); err != nil || res != nil {
			if res != nil {
				res.CurrentCovers = currentCovers
				res.MaxCovers = result.MaxCovers
				res.ServiceID = svc.ID
			}
			return res, err
		}
	}

	if settings.MaxCoversPerSlot != nil && *settings.MaxCoversPerSlot > 0 {
		slotMinutes := slotMinutesFor(svc, settings)
		slot := timewindow.RoundDownToSlot(target.Start, slotMinutes)
		slotCovers := coversInSlot(idx, reservations, slot, slotMinutes)
		if slotCovers+req.PartySize > *settings.MaxCoversPerSlot {
			result.Available = false
			result.Code = CodeSlotFull
			result.Reason = fmt.Sprintf("The %s slot is full (%d/%d covers)",
				timewindow.FormatClock(slot), slotCovers, *settings.MaxCoversPerSlot)
			return result, nil
		}
	}

	return result, nil
}

// resolveService returns the explicit service or the one whose window covers the
// requested minute. A non-nil result means the request is rejected.
func (a *AvailabilityChecker) resolveService(ctx context.Context, locationID, serviceID string, minute int) (*models.Service, *AvailabilityResult, error) {
	if serviceID != "" {
		svc, err := a.repo.GetService(ctx, serviceID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, reject(CodeNoService, "Service not found"), nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load service: %w", err)
		}
		if svc.LocationID != locationID || !svc.Active {
			return nil, reject(CodeNoService, "Service not available at this location"), nil
		}
		return svc, nil, nil
	}

	svc, err := findServiceForMinute(ctx, a.repo, locationID, minute)
	if err != nil {
		return nil, nil, err
	}
	if svc == nil {
		return nil, reject(CodeNoService, fmt.Sprintf("No service runs at %s", timewindow.FormatClock(minute))), nil
	}
	return svc, nil, nil
}

// findServiceForMinute scans active services for the one whose window contains minute
func findServiceForMinute(ctx context.Context, repo CatalogReader, locationID string, minute int) (*models.Service, error) {
	services, err := repo.ListServices(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	for i := range services {
		svc := &services[i]
		if !svc.Active {
			continue
		}
		start, end, err := serviceHours(svc)
		if err != nil {
			continue
		}
		if timewindow.InWindow(minute, start, end) {
			return svc, nil
		}
	}
	return nil, nil
}

func (a *AvailabilityChecker) checkZone(ctx context.Context, req AvailabilityRequest, idx serviceIndex, reservations []models.Reservation, target timewindow.Interval) (*AvailabilityResult, error) {
	zone, err := a.repo.GetZone(ctx, req.ZoneID)
	if errors.Is(err, store.ErrNotFound) {
		return reject(CodeZoneInactive, "Seating area not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load zone: %w", err)
	}
	if !zone.Active || zone.LocationID != req.LocationID {
		return reject(CodeZoneInactive, fmt.Sprintf("%s is not open for bookings", zone.Name)), nil
	}

	inZone := func(r *models.Reservation) bool { return r.ZoneIDValue() == zone.ID }
	zoneCovers := coversOverlapping(idx, reservations, target, inZone)
	if zone.Capacity > 0 && zoneCovers+req.PartySize > zone.Capacity {
		return reject(CodeZoneFull, fmt.Sprintf("%s is full at %s (%d/%d covers)", zone.Name, req.Time, zoneCovers, zone.Capacity)), nil
	}

	tables, err := a.repo.ListTables(ctx, req.LocationID, zone.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	for i := range tables {
		if tables[i].Active && tables[i].Fits(req.PartySize) {
			return nil, nil
		}
	}
	return reject(CodeNoSuitableTable, fmt.Sprintf("No table in %s seats a party of %d", zone.Name, req.PartySize)), nil
}

// coversOverlapping sums party sizes of reservations matching keep whose window overlaps target
func coversOverlapping(idx serviceIndex, reservations []models.Reservation, target timewindow.Interval, keep func(*models.Reservation) bool) int {
	covers := 0
	for i := range reservations {
		r := &reservations[i]
		if !r.IsActive() || (keep != nil && !keep(r)) {
			continue
		}
		w, err := idx.window(r)
		if err != nil {
			continue
		}
		if w.Overlaps(target) {
			covers += r.PartySize
		}
	}
	return covers
}

// coversInSlot sums party sizes of reservations starting inside [slot, slot+slotMinutes)
func coversInSlot(idx serviceIndex, reservations []models.Reservation, slot, slotMinutes int) int {
	bucket := timewindow.NewInterval(slot, slotMinutes)
	covers := 0
	for i := range reservations {
		r := &reservations[i]
		if !r.IsActive() {
			continue
		}
		w, err := idx.window(r)
		if err != nil {
			continue
		}
		if bucket.Contains(w.Start) {
			covers += r.PartySize
		}
	}
	return covers
}

// suggestTimes scans forward through the service's slots for times with headroom
func suggestTimes(idx serviceIndex, reservations []models.Reservation, svc *models.Service, settings *models.LocationSettings, after, partySize int, keep func(*models.Reservation) bool) []string {
	if svc.MaxCovers == nil {
		return nil
	}
	start, end, err := serviceHours(svc)
	if err != nil {
		return nil
	}

	duration := durationFor(svc)
	var suggestions []string
	for _, slot := range timewindow.Slots(start, end, slotMinutesFor(svc, settings)) {
		if slot <= after {
			continue
		}
		covers := coversOverlapping(idx, reservations, timewindow.NewInterval(slot, duration), keep)
		if covers+partySize <= *svc.MaxCovers {
			suggestions = append(suggestions, timewindow.FormatClock(slot))
			if len(suggestions) == maxSuggestedTimes {
				break
			}
		}
	}
	return suggestions
}
