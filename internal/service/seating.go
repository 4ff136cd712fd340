package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"reservation-service/internal/messaging"
	"reservation-service/internal/models"
	"reservation-service/internal/store"
	"reservation-service/internal/timewindow"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

const (
	baseTableScore      = 100
	perfectFitBonus     = 50
	minCapacityBonus    = 30
	wastedSeatPenalty   = 10
	preferredZoneBonus  = 20
	maxRecommendations  = 5
	assignModeAuto      = "auto"
	assignModeManual    = "manual"
	waitlistSMSTemplate = "Hi %s, a table for %d is ready for you now. Please come to the host stand."
)

// TablePreferences narrows or biases recommendations
type TablePreferences struct {
	ZoneID string `json:"zone_id,omitempty" form:"zone_id"`
	Limit  int    `json:"limit,omitempty" form:"limit"`
}

// TableRecommendation is a scored free table
type TableRecommendation struct {
	TableID     string `json:"table_id"`
	TableName   string `json:"table_name"`
	ZoneID      string `json:"zone_id"`
	MinCapacity int    `json:"min_capacity"`
	MaxCapacity int    `json:"max_capacity"`
	Score       int    `json:"score"`
	Reason      string `json:"reason"`
}

// AssignFailure records one reservation the bulk run could not seat
type AssignFailure struct {
	ReservationID string `json:"reservation_id"`
	Error         string `json:"error"`
}

// BulkAssignResult summarizes AutoAssignAllPending
type BulkAssignResult struct {
	Processed int             `json:"processed"`
	Assigned  int             `json:"assigned"`
	Failed    int             `json:"failed"`
	Failures  []AssignFailure `json:"failures,omitempty"`
}

// ReleaseResult describes a completed reservation and any waitlist party offered its table
type ReleaseResult struct {
	Reservation   *models.Reservation   `json:"reservation"`
	NotifiedEntry *models.WaitlistEntry `json:"notified_entry,omitempty"`
}

// SeatingAssigner picks physical tables for reservations
type SeatingAssigner struct {
	repo      Repository
	locker    Locker
	events    EventPublisher
	messenger messaging.Messenger
	occupancy *OccupancyService
	now       Clock
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewSeatingAssigner creates a new seating assigner
func NewSeatingAssigner(
	repo Repository,
	locker Locker,
	events EventPublisher,
	messenger messaging.Messenger,
	occupancy *OccupancyService,
) *SeatingAssigner {
	return &SeatingAssigner{
		repo:      repo,
		locker:    locker,
		events:    events,
		messenger: messenger,
		occupancy: occupancy,
		now:       time.Now,
		lockTTL:   defaultLockTTL,
		logger:    util.GetLogger(),
	}
}

// GetTableRecommendations ranks free tables for the reservation's window
func (s *SeatingAssigner) GetTableRecommendations(ctx context.Context, reservationID string, prefs *TablePreferences) ([]TableRecommendation, error) {
	ctx, span := util.StartSpan(ctx, "SeatingAssigner.GetTableRecommendations")
	defer span.End()

	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if !r.IsActive() {
		return nil, fmt.Errorf("%w: reservation is %s", ErrInvalidReservationState, r.Status)
	}

	recs, err := s.recommend(ctx, r, prefs)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return recs, nil
}

func (s *SeatingAssigner) recommend(ctx context.Context, r *models.Reservation, prefs *TablePreferences) ([]TableRecommendation, error) {
	var filterZone, preferredZone string
	limit := maxRecommendations
	if prefs != nil {
		filterZone = prefs.ZoneID
		if prefs.Limit > 0 && prefs.Limit < limit {
			limit = prefs.Limit
		}
	}
	preferredZone = filterZone
	if preferredZone == "" {
		preferredZone = r.ZoneIDValue()
	}

	tables, err := s.repo.ListTables(ctx, r.LocationID, filterZone)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	occupied, err := s.occupiedTables(ctx, r)
	if err != nil {
		return nil, err
	}

	recs := make([]TableRecommendation, 0, len(tables))
	for i := range tables {
		t := &tables[i]
		if !t.Active || occupied[t.ID] {
			continue
		}
		score, reason := scoreTable(t, r.PartySize, preferredZone)
		if score == 0 {
			continue
		}
		recs = append(recs, TableRecommendation{
			TableID:     t.ID,
			TableName:   t.Name,
			ZoneID:      t.ZoneID,
			MinCapacity: t.MinCapacity,
			MaxCapacity: t.MaxCapacity,
			Score:       score,
			Reason:      reason,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].MaxCapacity != recs[j].MaxCapacity {
			return recs[i].MaxCapacity < recs[j].MaxCapacity
		}
		return recs[i].TableName < recs[j].TableName
	})

	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// occupiedTables returns tables held by other active reservations overlapping r
func (s *SeatingAssigner) occupiedTables(ctx context.Context, r *models.Reservation) (map[string]bool, error) {
	reservations, err := s.repo.ListActiveReservations(ctx, r.LocationID, r.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	idx, err := loadServiceIndex(ctx, s.repo, r.LocationID)
	if err != nil {
		return nil, err
	}
	target, err := idx.window(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	occupied := make(map[string]bool)
	for i := range reservations {
		other := &reservations[i]
		if other.ID == r.ID || !other.IsActive() || other.TableID == nil {
			continue
		}
		w, err := idx.window(other)
		if err != nil {
			continue
		}
		if w.Overlaps(target) {
			occupied[*other.TableID] = true
		}
	}
	return occupied, nil
}

// scoreTable rates a table for the party. Zero means the table cannot take it.
func scoreTable(t *models.Table, partySize int, preferredZone string) (int, string) {
	if t.MaxCapacity < partySize || t.MinCapacity > partySize {
		return 0, ""
	}

	score := baseTableScore
	var reason string
	wasted := t.MaxCapacity - partySize
	if wasted == 0 {
		score += perfectFitBonus
		reason = "Perfect fit"
	} else {
		score -= wastedSeatPenalty * wasted
		reason = fmt.Sprintf("%d empty seat(s)", wasted)
	}
	if t.MinCapacity == partySize {
		score += minCapacityBonus
	}
	if preferredZone != "" && t.ZoneID == preferredZone {
		score += preferredZoneBonus
		reason += ", preferred zone"
	}
	// a fitting table must stay distinguishable from an excluded one
	if score < 1 {
		score = 1
	}
	return score, reason
}

// AutoAssignTable persists the top recommendation and flags it as automatic
func (s *SeatingAssigner) AutoAssignTable(ctx context.Context, reservationID string) (*TableRecommendation, error) {
	ctx, span := util.StartSpan(ctx, "SeatingAssigner.AutoAssignTable")
	defer span.End()

	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	var chosen *TableRecommendation
	err = withLock(ctx, s.locker, seatingLockKey(r.LocationID, r.Date), s.lockTTL, func() error {
		current, err := s.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("failed to get reservation: %w", err)
		}
		if !current.IsActive() {
			return fmt.Errorf("%w: reservation is %s", ErrInvalidReservationState, current.Status)
		}
		if current.TableID != nil {
			return fmt.Errorf("%w: table already assigned", ErrInvalidReservationState)
		}

		recs, err := s.recommend(ctx, current, nil)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("%w for party of %d at %s", ErrNoTableAvailable, current.PartySize, current.Time)
		}
		chosen = &recs[0]

		if err := s.repo.AssignTable(ctx, current.ID, chosen.TableID, chosen.ZoneID, true); err != nil {
			return fmt.Errorf("failed to assign table: %w", err)
		}
		current.TableID = &chosen.TableID
		current.ZoneID = &chosen.ZoneID
		current.AutoAssigned = true
		r = current
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.afterAssign(ctx, r, assignModeAuto)
	return chosen, nil
}

// AssignTable manually assigns tableID after re-validating capacity and occupancy
func (s *SeatingAssigner) AssignTable(ctx context.Context, reservationID, tableID string) error {
	ctx, span := util.StartSpan(ctx, "SeatingAssigner.AssignTable")
	defer span.End()

	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("failed to get reservation: %w", err)
	}

	err = withLock(ctx, s.locker, seatingLockKey(r.LocationID, r.Date), s.lockTTL, func() error {
		current, err := s.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("failed to get reservation: %w", err)
		}
		if !current.IsActive() {
			return fmt.Errorf("%w: reservation is %s", ErrInvalidReservationState, current.Status)
		}

		table, err := s.repo.GetTable(ctx, tableID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrTableInactive, tableID)
		}
		if err != nil {
			return fmt.Errorf("failed to get table: %w", err)
		}
		if !table.Active || table.LocationID != current.LocationID {
			return fmt.Errorf("%w: %s", ErrTableInactive, table.Name)
		}
		if !table.Fits(current.PartySize) {
			return fmt.Errorf("%w: %s seats %d-%d, party of %d",
				ErrTableCapacity, table.Name, table.MinCapacity, table.MaxCapacity, current.PartySize)
		}

		occupied, err := s.occupiedTables(ctx, current)
		if err != nil {
			return err
		}
		if occupied[table.ID] {
			return fmt.Errorf("%w: %s at %s", ErrTableOccupied, table.Name, current.Time)
		}

		if err := s.repo.AssignTable(ctx, current.ID, table.ID, table.ZoneID, false); err != nil {
			return fmt.Errorf("failed to assign table: %w", err)
		}
		current.TableID = &table.ID
		current.ZoneID = &table.ZoneID
		current.AutoAssigned = false
		r = current
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	s.afterAssign(ctx, r, assignModeManual)
	return nil
}

func (s *SeatingAssigner) afterAssign(ctx context.Context, r *models.Reservation, mode string) {
	util.TablesAssignedTotal.WithLabelValues(mode).Inc()
	s.occupancy.Invalidate(ctx, r.LocationID, r.Date)
	publishReservation(ctx, s.events, s.logger, newReservationEvent(r, models.EventTypeTableAssigned, "", s.now()))

	s.logger.Info("Table assigned",
		zap.String("reservation_id", r.ID),
		zap.String("table_id", r.TableIDValue()),
		zap.String("mode", mode))
}

// AutoAssignAllPending seats every unassigned confirmed reservation of the day,
// earliest first, so earlier bookings get first pick.
func (s *SeatingAssigner) AutoAssignAllPending(ctx context.Context, locationID, date string) (*BulkAssignResult, error) {
	ctx, span := util.StartSpan(ctx, "SeatingAssigner.AutoAssignAllPending")
	defer span.End()

	pending, err := s.repo.ListUnassignedConfirmed(ctx, locationID, date)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to list unassigned reservations: %w", err)
	}
	idx, err := loadServiceIndex(ctx, s.repo, locationID)
	if err != nil {
		return nil, err
	}
	sortByStart(idx, pending)

	result := &BulkAssignResult{}
	for i := range pending {
		result.Processed++
		if _, err := s.AutoAssignTable(ctx, pending[i].ID); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, AssignFailure{ReservationID: pending[i].ID, Error: err.Error()})
			util.AutoAssignFailuresTotal.Inc()
			s.logger.Warn("Auto-assignment failed",
				zap.String("reservation_id", pending[i].ID),
				zap.Error(err))
			continue
		}
		result.Assigned++
	}

	s.logger.Info("Bulk auto-assignment finished",
		zap.String("location_id", locationID),
		zap.String("date", date),
		zap.Int("assigned", result.Assigned),
		zap.Int("failed", result.Failed))
	return result, nil
}

// sortByStart orders reservations by service-normalized start, then creation
func sortByStart(idx serviceIndex, reservations []models.Reservation) {
	start := func(r *models.Reservation) int {
		w, err := idx.window(r)
		if err != nil {
			return timewindow.MinutesPerDay * 2
		}
		return w.Start
	}
	sort.SliceStable(reservations, func(i, j int) bool {
		si, sj := start(&reservations[i]), start(&reservations[j])
		if si != sj {
			return si < sj
		}
		return reservations[i].CreatedAt.Before(reservations[j].CreatedAt)
	})
}

// ReleaseTable completes a seated reservation and offers the table to the waitlist
func (s *SeatingAssigner) ReleaseTable(ctx context.Context, reservationID string) (*ReleaseResult, error) {
	ctx, span := util.StartSpan(ctx, "SeatingAssigner.ReleaseTable")
	defer span.End()

	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if r.Status != models.ReservationStatusSeated {
		return nil, fmt.Errorf("%w: cannot complete a %s reservation", ErrInvalidReservationState, r.Status)
	}

	now := s.now()
	if err := s.repo.UpdateReservationStatus(ctx, r.ID, models.ReservationStatusSeated, models.ReservationStatusCompleted, now); err != nil {
		util.RecordError(span, err)
		return nil, stateConflict(err, ErrInvalidReservationState)
	}
	r.Status = models.ReservationStatusCompleted
	r.CompletedAt = timePtr(now)

	s.expireGuarantee(ctx, r.ID)
	s.occupancy.Invalidate(ctx, r.LocationID, r.Date)
	publishReservation(ctx, s.events, s.logger, newReservationEvent(r, models.EventTypeReservationCompleted, "", now))

	result := &ReleaseResult{Reservation: r}
	if r.TableID != nil {
		result.NotifiedEntry = s.offerToWaitlist(ctx, r, *r.TableID)
	}

	s.logger.Info("Table released",
		zap.String("reservation_id", r.ID),
		zap.String("table_id", r.TableIDValue()))
	return result, nil
}

// ReleaseTableByPOS completes whatever reservation is seated at tableID.
// A table with nobody seated is a no-op.
func (s *SeatingAssigner) ReleaseTableByPOS(ctx context.Context, tableID string) (*ReleaseResult, error) {
	ctx, span := util.StartSpan(ctx, "SeatingAssigner.ReleaseTableByPOS")
	defer span.End()

	r, err := s.repo.FindSeatedReservationByTable(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to find seated reservation: %w", err)
	}
	if r == nil {
		s.logger.Info("POS vacated a table with no seated reservation", zap.String("table_id", tableID))
		return nil, nil
	}
	return s.ReleaseTable(ctx, r.ID)
}

// expireGuarantee releases an unused card hold once the guests have dined
func (s *SeatingAssigner) expireGuarantee(ctx context.Context, reservationID string) {
	g, err := s.repo.GetCardGuaranteeByReservation(ctx, reservationID)
	if err != nil || g == nil || g.Status != models.GuaranteeStatusSaved {
		if err != nil {
			s.logger.Warn("Failed to load card guarantee", zap.String("reservation_id", reservationID), zap.Error(err))
		}
		return
	}
	g.Status = models.GuaranteeStatusExpired
	g.UpdatedAt = s.now()
	if err := s.repo.UpdateCardGuarantee(ctx, g); err != nil {
		s.logger.Warn("Failed to expire card guarantee", zap.String("reservation_id", reservationID), zap.Error(err))
	}
}

// offerToWaitlist notifies the oldest waiting party the freed table can seat
func (s *SeatingAssigner) offerToWaitlist(ctx context.Context, r *models.Reservation, tableID string) *models.WaitlistEntry {
	table, err := s.repo.GetTable(ctx, tableID)
	if err != nil {
		s.logger.Warn("Failed to load released table", zap.String("table_id", tableID), zap.Error(err))
		return nil
	}

	entry, err := s.repo.FindWaitlistCandidate(ctx, r.LocationID, r.Date, table.MinCapacity, table.MaxCapacity)
	if err != nil {
		s.logger.Warn("Waitlist scan failed", zap.String("table_id", tableID), zap.Error(err))
		return nil
	}
	if entry == nil {
		return nil
	}

	now := s.now()
	if err := s.repo.MarkWaitlistNotified(ctx, entry.ID, now); err != nil {
		s.logger.Warn("Failed to mark waitlist entry notified", zap.String("entry_id", entry.ID), zap.Error(err))
		return nil
	}
	entry.Status = models.WaitlistStatusNotified
	entry.NotifiedAt = timePtr(now)

	if entry.GuestPhone != "" && s.messenger != nil {
		if err := s.messenger.SendSMS(ctx, entry.GuestPhone, fmt.Sprintf(waitlistSMSTemplate, entry.GuestName, entry.PartySize)); err != nil {
			util.NotificationFailuresTotal.WithLabelValues(messaging.ChannelSMS).Inc()
			s.logger.Warn("Failed to text waitlist party", zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}

	if s.events != nil {
		event := &models.WaitlistEvent{
			BaseEvent:  newBaseEvent(models.EventTypeWaitlistNotified, now),
			EntryID:    entry.ID,
			LocationID: entry.LocationID,
			TableID:    tableID,
			PartySize:  entry.PartySize,
		}
		if err := s.events.PublishWaitlistEvent(ctx, event); err != nil {
			s.logger.Error("Failed to publish waitlist event", zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}
	return entry
}
