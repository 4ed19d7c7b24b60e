// Package service contains the business logic for the Placetrail sync core.
// Services validate inputs, enforce business rules, and orchestrate repo
// calls. No SQL lives here — services depend on repo interfaces, not
// implementations.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/internal/repo"
)

// PlaceService implements business logic for Place operations. It holds the
// trips repo as well because assigning a place to a trip requires verifying
// the trip exists.
type PlaceService struct {
	places repo.PlaceRepo
	trips  repo.TripRepo
}

// NewPlaceService constructs a PlaceService backed by the provided repos.
func NewPlaceService(places repo.PlaceRepo, trips repo.TripRepo) *PlaceService {
	return &PlaceService{places: places, trips: trips}
}

// Create validates and persists a new place.
// Returns an error matching domain.ErrValidation if input violates business
// rules, domain.ErrNotFound if a referenced trip does not exist.
func (s *PlaceService) Create(ctx context.Context, place domain.Place) (domain.Place, error) {
	if place.Category == "" {
		place.Category = domain.CategoryOther
	}
	if err := validatePlace(place); err != nil {
		return domain.Place{}, err
	}
	if err := s.checkTripRef(ctx, place.TripID); err != nil {
		return domain.Place{}, fmt.Errorf("service.PlaceService.Create: %w", err)
	}
	result, err := s.places.Create(ctx, place)
	if err != nil {
		return domain.Place{}, fmt.Errorf("service.PlaceService.Create: %w", err)
	}
	return result, nil
}

// GetByID returns a single place by ID.
// Returns domain.ErrNotFound if no place with that ID exists.
func (s *PlaceService) GetByID(ctx context.Context, id uuid.UUID) (domain.Place, error) {
	result, err := s.places.GetByID(ctx, id)
	if err != nil {
		return domain.Place{}, fmt.Errorf("service.PlaceService.GetByID: %w", err)
	}
	return result, nil
}

// List returns all places matching filter.
// Always returns a non-nil slice so callers can safely range over it.
func (s *PlaceService) List(ctx context.Context, filter domain.PlaceFilter) ([]domain.Place, error) {
	places, err := s.places.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service.PlaceService.List: %w", err)
	}
	if places == nil {
		return []domain.Place{}, nil
	}
	return places, nil
}

// ListPaged returns one page of matching places and the total match count.
func (s *PlaceService) ListPaged(ctx context.Context, filter domain.PlaceFilter, p domain.PaginationParams) ([]domain.Place, int64, error) {
	places, total, err := s.places.ListPaged(ctx, filter, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.PlaceService.ListPaged: %w", err)
	}
	if places == nil {
		places = []domain.Place{}
	}
	return places, total, nil
}

// Update validates and persists changes to an existing place.
// Returns an error matching domain.ErrValidation for invalid input,
// domain.ErrNotFound if the place (or a referenced trip) does not exist.
func (s *PlaceService) Update(ctx context.Context, place domain.Place) (domain.Place, error) {
	if place.Category == "" {
		place.Category = domain.CategoryOther
	}
	if err := validatePlace(place); err != nil {
		return domain.Place{}, err
	}
	if err := s.checkTripRef(ctx, place.TripID); err != nil {
		return domain.Place{}, fmt.Errorf("service.PlaceService.Update: %w", err)
	}
	result, err := s.places.Update(ctx, place)
	if err != nil {
		return domain.Place{}, fmt.Errorf("service.PlaceService.Update: %w", err)
	}
	return result, nil
}

// Delete removes a place by ID.
// Returns domain.ErrNotFound if the place does not exist.
func (s *PlaceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.places.Delete(ctx, id); err != nil {
		return fmt.Errorf("service.PlaceService.Delete: %w", err)
	}
	return nil
}

// AssignTrip points a place at tripID, or clears the reference when tripID
// is nil. A place references at most one trip: assigning a new trip
// implicitly replaces the previous reference.
func (s *PlaceService) AssignTrip(ctx context.Context, placeID uuid.UUID, tripID *uuid.UUID) (domain.Place, error) {
	if err := s.checkTripRef(ctx, tripID); err != nil {
		return domain.Place{}, fmt.Errorf("service.PlaceService.AssignTrip: %w", err)
	}
	place, err := s.places.GetByID(ctx, placeID)
	if err != nil {
		return domain.Place{}, fmt.Errorf("service.PlaceService.AssignTrip: %w", err)
	}
	place.TripID = tripID
	result, err := s.places.Update(ctx, place)
	if err != nil {
		return domain.Place{}, fmt.Errorf("service.PlaceService.AssignTrip: %w", err)
	}
	return result, nil
}

// checkTripRef verifies the referenced trip exists when tripID is non-nil.
func (s *PlaceService) checkTripRef(ctx context.Context, tripID *uuid.UUID) error {
	if tripID == nil {
		return nil
	}
	if _, err := s.trips.GetByID(ctx, *tripID); err != nil {
		return err
	}
	return nil
}

// validatePlace enforces business rules common to both Create and Update.
//   - Name must be non-empty (whitespace-only names are rejected).
//   - Category must be one of the fixed set.
//   - Coordinates must be within valid ranges.
//   - Rating is 0–5 and must stay 0 while the place is unvisited.
//   - VisitedDate may only be set once the place is visited.
func validatePlace(place domain.Place) error {
	if strings.TrimSpace(place.Name) == "" {
		return &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	if !place.Category.Valid() {
		return &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", place.Category)}
	}
	if place.Latitude < -90 || place.Latitude > 90 {
		return &domain.ValidationError{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if place.Longitude < -180 || place.Longitude > 180 {
		return &domain.ValidationError{Field: "longitude", Reason: "must be between -180 and 180"}
	}
	if place.Rating < 0 || place.Rating > 5 {
		return &domain.ValidationError{Field: "rating", Reason: "must be between 0 and 5"}
	}
	if !place.IsVisited {
		if place.Rating != 0 {
			return &domain.ValidationError{Field: "rating", Reason: "must be 0 for an unvisited place"}
		}
		if place.VisitedDate != nil {
			return &domain.ValidationError{Field: "visited_date", Reason: "must be empty for an unvisited place"}
		}
	}
	return nil
}
