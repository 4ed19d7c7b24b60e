package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/internal/repo"
)

// PlaceCreator is the slice of the Entity Store the import path needs.
// Import goes through it (normally *PlaceService) rather than the repo so
// every imported record passes the same commit-time validation as a place
// created in the UI.
type PlaceCreator interface {
	Create(ctx context.Context, place domain.Place) (domain.Place, error)
}

// ExportService serializes the full place set to a portable JSON document
// and rebuilds places from such a document. Trips and the trip-to-place
// association are never part of the document; imported places arrive
// unassigned.
type ExportService struct {
	places  repo.PlaceRepo
	creator PlaceCreator
}

// NewExportService constructs an ExportService backed by the provided repo
// and place creator.
func NewExportService(places repo.PlaceRepo, creator PlaceCreator) *ExportService {
	return &ExportService{places: places, creator: creator}
}

// Export returns one record per place, optionally restricted to visited
// places. Record order follows the store's stable name ordering and the JSON
// keys of each record are alphabetical, so exporting the same data twice
// yields the same document.
func (s *ExportService) Export(ctx context.Context, visitedOnly bool) ([]domain.ExportRecord, error) {
	places, err := s.places.List(ctx, domain.PlaceFilter{VisitedOnly: visitedOnly})
	if err != nil {
		return nil, fmt.Errorf("service.ExportService.Export: %w", err)
	}

	records := make([]domain.ExportRecord, 0, len(places))
	for _, p := range places {
		records = append(records, placeToRecord(p))
	}
	return records, nil
}

// Import creates one new place per record through the Entity Store.
// A malformed or missing id is replaced with a freshly generated one rather
// than failing the import; a record failing field validation is skipped and
// counted. The returned summary reports both outcomes — the import as a
// whole succeeds as long as the well-formed records were applied.
func (s *ExportService) Import(ctx context.Context, records []domain.ExportRecord) (domain.ImportSummary, error) {
	var summary domain.ImportSummary
	for i, rec := range records {
		if _, err := s.creator.Create(ctx, recordToPlace(rec)); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		summary.Imported++
	}
	return summary, nil
}

// placeToRecord flattens a place into the interchange shape. Empty optional
// strings become JSON null.
func placeToRecord(p domain.Place) domain.ExportRecord {
	return domain.ExportRecord{
		Address:            optionalString(p.Address),
		Category:           string(p.Category),
		CreatedAt:          optionalTimeString(&p.CreatedAt),
		ID:                 p.ID.String(),
		IsVisited:          p.IsVisited,
		Latitude:           p.Latitude,
		Longitude:          p.Longitude,
		Name:               p.Name,
		PersonalReflection: optionalString(p.PersonalReflection),
		PlaceDescription:   optionalString(p.Description),
		Rating:             p.Rating,
		UpdatedAt:          optionalTimeString(&p.UpdatedAt),
		VisitedDate:        optionalTimeString(p.VisitedDate),
	}
}

// recordToPlace rebuilds a place from an interchange record. The trip
// association is deliberately absent: imported places are unassigned.
// Timestamps that fail to parse are treated as absent (the store stamps
// fresh ones); a bad id is replaced, not fatal.
func recordToPlace(rec domain.ExportRecord) domain.Place {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.New()
	}

	place := domain.Place{
		ID:                 id,
		Name:               rec.Name,
		Description:        stringValue(rec.PlaceDescription),
		Category:           domain.Category(rec.Category),
		Address:            stringValue(rec.Address),
		Latitude:           rec.Latitude,
		Longitude:          rec.Longitude,
		IsVisited:          rec.IsVisited,
		Rating:             rec.Rating,
		PersonalReflection: stringValue(rec.PersonalReflection),
	}
	if t, ok := parseOptionalTime(rec.VisitedDate); ok {
		place.VisitedDate = &t
	}
	if t, ok := parseOptionalTime(rec.CreatedAt); ok {
		place.CreatedAt = t
	}
	if t, ok := parseOptionalTime(rec.UpdatedAt); ok {
		place.UpdatedAt = t
	}
	return place
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalTimeString(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(domain.ExportTimeFormat)
	return &s
}

func parseOptionalTime(s *string) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(domain.ExportTimeFormat, *s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
