package service

import (
	"context"
	"time"

	"reservation-service/internal/timewindow"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

const defaultOccupancyTTL = 5 * time.Minute

// OccupancyCache stores the derived per-table view. It is never authoritative.
type OccupancyCache interface {
	CacheOccupancy(ctx context.Context, locationID, date string, byTable map[string][]timewindow.Interval, ttl time.Duration) error
	GetOccupancy(ctx context.Context, locationID, date string) (map[string][]timewindow.Interval, bool, error)
	InvalidateOccupancy(ctx context.Context, locationID, date string) error
}

// OccupancyService serves per-table occupancy for dashboards. Seating decisions
// always recompute from reservations and never read this index.
type OccupancyService struct {
	repo   Repository
	cache  OccupancyCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewOccupancyService creates a new occupancy service. cache may be nil.
func NewOccupancyService(repo Repository, cache OccupancyCache, ttl time.Duration) *OccupancyService {
	if ttl <= 0 {
		ttl = defaultOccupancyTTL
	}
	return &OccupancyService{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// GetOccupancy returns merged busy intervals per table for the day
func (o *OccupancyService) GetOccupancy(ctx context.Context, locationID, date string) (map[string][]timewindow.Interval, error) {
	ctx, span := util.StartSpan(ctx, "OccupancyService.GetOccupancy")
	defer span.End()

	if o.cache != nil {
		cached, found, err := o.cache.GetOccupancy(ctx, locationID, date)
		if err != nil {
			o.logger.Warn("Occupancy cache read failed", zap.String("location_id", locationID), zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	byTable, err := o.build(ctx, locationID, date)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	if o.cache != nil {
		if err := o.cache.CacheOccupancy(ctx, locationID, date, byTable, o.ttl); err != nil {
			o.logger.Warn("Failed to cache occupancy", zap.String("location_id", locationID), zap.Error(err))
		}
	}
	return byTable, nil
}

func (o *OccupancyService) build(ctx context.Context, locationID, date string) (map[string][]timewindow.Interval, error) {
	reservations, err := o.repo.ListActiveReservations(ctx, locationID, date)
	if err != nil {
		return nil, err
	}
	idx, err := loadServiceIndex(ctx, o.repo, locationID)
	if err != nil {
		return nil, err
	}

	raw := make(map[string][]timewindow.Interval)
	for i := range reservations {
		r := &reservations[i]
		if !r.IsActive() || r.TableID == nil {
			continue
		}
		w, err := idx.window(r)
		if err != nil {
			continue
		}
		raw[*r.TableID] = append(raw[*r.TableID], w)
	}

	byTable := make(map[string][]timewindow.Interval, len(raw))
	for tableID, intervals := range raw {
		byTable[tableID] = timewindow.MergeIntervals(intervals)
	}
	return byTable, nil
}

// Invalidate drops the cached view. Safe on a nil receiver.
func (o *OccupancyService) Invalidate(ctx context.Context, locationID, date string) {
	if o == nil || o.cache == nil {
		return
	}
	if err := o.cache.InvalidateOccupancy(ctx, locationID, date); err != nil {
		o.logger.Warn("Failed to invalidate occupancy cache",
			zap.String("location_id", locationID),
			zap.String("date", date),
			zap.Error(err))
	}
}
