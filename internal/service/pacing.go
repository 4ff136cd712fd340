package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"reservation-service/internal/models"
	"reservation-service/internal/store"
	"reservation-service/internal/timewindow"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// Slot pacing statuses
const (
	SlotStatusAvailable  = "available"
	SlotStatusAlmostFull = "almost_full"
	SlotStatusFull       = "full"
)

const almostFullUtilization = 80.0

// PacingRequest asks whether a booking fits the short-window throttle
type PacingRequest struct {
	LocationID string `json:"location_id" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Time       string `json:"time" binding:"required"`
	PartySize  int    `json:"party_size" binding:"required,min=1"`
	ServiceID  string `json:"service_id,omitempty"`
}

// PacingResult is the throttle decision for one request
type PacingResult struct {
	Allowed             bool   `json:"allowed"`
	CurrentCovers       int    `json:"current_covers"`
	MaxCovers           int    `json:"max_covers"`
	CurrentReservations int    `json:"current_reservations"`
	MaxReservations     int    `json:"max_reservations,omitempty"`
	WindowMinutes       int    `json:"window_minutes"`
	WindowStart         string `json:"window_start,omitempty"`
	Code                string `json:"code,omitempty"`
	Reason              string `json:"reason,omitempty"`
}

// SlotPacing is the per-slot dashboard view
type SlotPacing struct {
	Time          string  `json:"time"`
	CurrentCovers int     `json:"current_covers"`
	MaxCovers     int     `json:"max_covers"`
	Utilization   float64 `json:"utilization"`
	Status        string  `json:"status"`
}

// PacingStatus is the full-service breakdown
type PacingStatus struct {
	LocationID    string       `json:"location_id"`
	Date          string       `json:"date"`
	ServiceID     string       `json:"service_id"`
	ServiceName   string       `json:"service_name"`
	WindowMinutes int          `json:"window_minutes"`
	Slots         []SlotPacing `json:"slots"`
}

// PacingController throttles arrivals within a short rolling window
type PacingController struct {
	repo   Repository
	logger *zap.Logger
}

// NewPacingController creates a new pacing controller
func NewPacingController(repo Repository) *PacingController {
	return &PacingController{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

type pacingContext struct {
	settings     *models.LocationSettings
	service      *models.Service
	idx          serviceIndex
	reservations []models.Reservation
	window       int
}

func (p *PacingController) load(ctx context.Context, locationID, date, serviceID string, minute int) (*pacingContext, error) {
	settings, err := loadSettings(ctx, p.repo, locationID)
	if err != nil {
		return nil, err
	}

	var svc *models.Service
	if serviceID != "" {
		svc, err = p.repo.GetService(ctx, serviceID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load service: %w", err)
		}
		if svc.LocationID != locationID || !svc.Active {
			return nil, fmt.Errorf("%w: %s is not available at %s", ErrServiceNotFound, serviceID, locationID)
		}
	} else {
		svc, err = findServiceForMinute(ctx, p.repo, locationID, minute)
		if err != nil {
			return nil, err
		}
		if svc == nil {
			return nil, fmt.Errorf("%w at %s", ErrServiceNotFound, timewindow.FormatClock(minute))
		}
	}

	all, err := p.repo.ListActiveReservations(ctx, locationID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	reservations := make([]models.Reservation, 0, len(all))
	for i := range all {
		if all[i].ServiceID == svc.ID && all[i].IsActive() {
			reservations = append(reservations, all[i])
		}
	}

	idx, err := loadServiceIndex(ctx, p.repo, locationID)
	if err != nil {
		return nil, err
	}
	idx[svc.ID] = svc

	window := settings.PacingWindowMinutes
	if window <= 0 {
		window = slotMinutesFor(svc, settings)
	}

	return &pacingContext{
		settings:     settings,
		service:      svc,
		idx:          idx,
		reservations: reservations,
		window:       window,
	}, nil
}

// startsIn sums covers and reservation counts starting inside [from, from+window)
func (pc *pacingContext) startsIn(from int) (covers, count int) {
	bucket := timewindow.NewInterval(from, pc.window)
	for i := range pc.reservations {
		w, err := pc.idx.window(&pc.reservations[i])
		if err != nil {
			continue
		}
		if bucket.Contains(w.Start) {
			covers += pc.reservations[i].PartySize
			count++
		}
	}
	return covers, count
}

// busiestWindowAround returns the busiest window of pacing length that would contain minute.
// Candidate windows start at minute itself or at any existing arrival in (minute-window, minute].
func (pc *pacingContext) busiestWindowAround(minute int) (start, covers, count int) {
	start = minute
	covers, count = pc.startsIn(minute)
	for i := range pc.reservations {
		w, err := pc.idx.window(&pc.reservations[i])
		if err != nil {
			continue
		}
		if w.Start > minute-pc.window && w.Start <= minute {
			c, n := pc.startsIn(w.Start)
			if c > covers || (c == covers && n > count) {
				start, covers, count = w.Start, c, n
			}
		}
	}
	return start, covers, count
}

// CheckPacing enforces the rolling-window covers and reservation caps
func (p *PacingController) CheckPacing(ctx context.Context, req PacingRequest) (*PacingResult, error) {
	ctx, span := util.StartSpan(ctx, "PacingController.CheckPacing")
	defer span.End()

	minute, err := timewindow.ParseClock(req.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	pc, err := p.load(ctx, req.LocationID, req.Date, req.ServiceID, minute)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	result := &PacingResult{
		Allowed:         true,
		MaxCovers:       pc.settings.PacingMaxCovers,
		MaxReservations: pc.settings.PacingMaxReservations,
		WindowMinutes:   pc.window,
	}
	if pc.settings.PacingMaxCovers <= 0 && pc.settings.PacingMaxReservations <= 0 {
		return result, nil
	}

	minute = serviceStartMinute(pc.service, minute)
	start, covers, count := pc.busiestWindowAround(minute)
	result.CurrentCovers = covers
	result.CurrentReservations = count
	result.WindowStart = timewindow.FormatClock(start)

	switch {
	case pc.settings.PacingMaxCovers > 0 && covers+req.PartySize > pc.settings.PacingMaxCovers:
		result.Allowed = false
		result.Code = CodePacingLimit
		result.Reason = fmt.Sprintf("Too many arrivals around %s (%d/%d covers per %d minutes)",
			req.Time, covers, pc.settings.PacingMaxCovers, pc.window)
	case pc.settings.PacingMaxReservations > 0 && count+1 > pc.settings.PacingMaxReservations:
		result.Allowed = false
		result.Code = CodePacingLimit
		result.Reason = fmt.Sprintf("Too many arrivals around %s (%d/%d bookings per %d minutes)",
			req.Time, count, pc.settings.PacingMaxReservations, pc.window)
	}

	if !result.Allowed {
		util.PacingRejectionsTotal.Inc()
		p.logger.Debug("Pacing limit reached",
			zap.String("location_id", req.LocationID),
			zap.String("time", req.Time),
			zap.Int("current_covers", covers),
			zap.Int("party_size", req.PartySize))
	}
	return result, nil
}

// GetPacingStatusForService breaks the service down slot by slot for dashboards
func (p *PacingController) GetPacingStatusForService(ctx context.Context, locationID, date, serviceID string) (*PacingStatus, error) {
	ctx, span := util.StartSpan(ctx, "PacingController.GetPacingStatusForService")
	defer span.End()

	if serviceID == "" {
		return nil, fmt.Errorf("%w: service_id is required", ErrInvalidRequest)
	}
	pc, err := p.load(ctx, locationID, date, serviceID, 0)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	start, end, err := serviceHours(pc.service)
	if err != nil {
		return nil, fmt.Errorf("service %s has invalid hours: %w", pc.service.ID, err)
	}

	status := &PacingStatus{
		LocationID:    locationID,
		Date:          date,
		ServiceID:     pc.service.ID,
		ServiceName:   pc.service.Name,
		WindowMinutes: pc.window,
	}
	for _, slot := range timewindow.Slots(start, end, slotMinutesFor(pc.service, pc.settings)) {
		covers, _ := pc.startsIn(slot)
		status.Slots = append(status.Slots, slotPacing(slot, covers, pc.settings.PacingMaxCovers))
	}
	return status, nil
}

// SuggestOptimalTimeSlots ranks slots that can still take the party by ascending utilization
func (p *PacingController) SuggestOptimalTimeSlots(ctx context.Context, locationID, date, serviceID string, partySize, limit int) ([]SlotPacing, error) {
	status, err := p.GetPacingStatusForService(ctx, locationID, date, serviceID)
	if err != nil {
		return nil, err
	}

	candidates := make([]SlotPacing, 0, len(status.Slots))
	for _, s := range status.Slots {
		if s.MaxCovers > 0 && s.CurrentCovers+partySize > s.MaxCovers {
			continue
		}
		candidates = append(candidates, s)
	}

	// stable keeps chronological order among equally loaded slots
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Utilization < candidates[j].Utilization
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func slotPacing(slot, covers, maxCovers int) SlotPacing {
	sp := SlotPacing{
		Time:          timewindow.FormatClock(slot),
		CurrentCovers: covers,
		MaxCovers:     maxCovers,
		Status:        SlotStatusAvailable,
	}
	if maxCovers <= 0 {
		return sp
	}
	sp.Utilization = float64(covers) / float64(maxCovers) * 100
	switch {
	case covers >= maxCovers:
		sp.Status = SlotStatusFull
	case sp.Utilization >= almostFullUtilization:
		sp.Status = SlotStatusAlmostFull
	}
	return sp
}
