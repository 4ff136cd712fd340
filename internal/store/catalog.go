package store

import (
	"context"

	"reservation-service/internal/models"
)

// GetLocationSettings retrieves the booking rules of a location
func (s *Store) GetLocationSettings(ctx context.Context, locationID string) (*models.LocationSettings, error) {
	var settings models.LocationSettings
	if err := s.get(ctx, &settings, "SELECT * FROM location_settings WHERE location_id = $1", locationID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetClosure returns the closure for the date, or nil when the location is open
func (s *Store) GetClosure(ctx context.Context, locationID, date string) (*models.Closure, error) {
	var closure models.Closure
	found, err := s.getOptional(ctx, &closure,
		"SELECT * FROM closures WHERE location_id = $1 AND date = $2", locationID, date)
	if err != nil || !found {
		return nil, err
	}
	return &closure, nil
}

// GetCancellationPolicy retrieves the current policy of a location
func (s *Store) GetCancellationPolicy(ctx context.Context, locationID string) (*models.CancellationPolicy, error) {
	var policy models.CancellationPolicy
	if err := s.get(ctx, &policy, "SELECT * FROM cancellation_policies WHERE location_id = $1", locationID); err != nil {
		return nil, err
	}
	return &policy, nil
}

// GetService retrieves a service by ID
func (s *Store) GetService(ctx context.Context, serviceID string) (*models.Service, error) {
	var svc models.Service
	if err := s.get(ctx, &svc, "SELECT * FROM services WHERE id = $1", serviceID); err != nil {
		return nil, err
	}
	return &svc, nil
}

// ListServices retrieves all services of a location ordered by start time
func (s *Store) ListServices(ctx context.Context, locationID string) ([]models.Service, error) {
	var services []models.Service
	err := s.db.SelectContext(ctx, &services,
		"SELECT * FROM services WHERE location_id = $1 ORDER BY start_time", locationID)
	return services, err
}

// GetZone retrieves a zone by ID
func (s *Store) GetZone(ctx context.Context, zoneID string) (*models.Zone, error) {
	var zone models.Zone
	if err := s.get(ctx, &zone, "SELECT * FROM zones WHERE id = $1", zoneID); err != nil {
		return nil, err
	}
	return &zone, nil
}

// GetTable retrieves a table by ID
func (s *Store) GetTable(ctx context.Context, tableID string) (*models.Table, error) {
	var table models.Table
	if err := s.get(ctx, &table, "SELECT * FROM dining_tables WHERE id = $1", tableID); err != nil {
		return nil, err
	}
	return &table, nil
}

// ListTables retrieves the tables of a location, optionally limited to one zone
func (s *Store) ListTables(ctx context.Context, locationID, zoneID string) ([]models.Table, error) {
	var tables []models.Table
	err := s.db.SelectContext(ctx, &tables,
		"SELECT * FROM dining_tables WHERE location_id = $1 AND ($2::text = '' OR zone_id = $2) ORDER BY name",
		locationID, zoneID)
	return tables, err
}

// GetPromoCode looks a code up case-insensitively; nil when unknown
func (s *Store) GetPromoCode(ctx context.Context, locationID, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	found, err := s.getOptional(ctx, &promo,
		"SELECT * FROM promo_codes WHERE location_id = $1 AND UPPER(code) = UPPER($2)", locationID, code)
	if err != nil || !found {
		return nil, err
	}
	return &promo, nil
}
