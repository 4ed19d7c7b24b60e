// Package handler implements the HTTP handlers for the Placetrail API.
// All handlers are methods on Server; they translate between HTTP and the
// service layer and own no business logic. Methods are split into
// domain-specific files (place.go, trip.go, sync.go, ...) but all share the
// same Server struct so they can access its dependencies.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/internal/sync"
)

// PlaceServicer defines the business operations the place handlers depend on.
// Defining the interface here (in the consumer package) follows the Go
// convention: "accept interfaces, return concrete types". It lets handler
// tests inject a mock without touching the database or service layer.
type PlaceServicer interface {
	Create(ctx context.Context, place domain.Place) (domain.Place, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Place, error)
	ListPaged(ctx context.Context, filter domain.PlaceFilter, p domain.PaginationParams) ([]domain.Place, int64, error)
	Update(ctx context.Context, place domain.Place) (domain.Place, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AssignTrip(ctx context.Context, placeID uuid.UUID, tripID *uuid.UUID) (domain.Place, error)
}

// TripServicer defines the business operations the trip handlers depend on.
type TripServicer interface {
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	List(ctx context.Context) ([]domain.Trip, error)
	Update(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Places(ctx context.Context, tripID uuid.UUID) ([]domain.Place, error)
}

// ExportServicer defines the export/import operations.
type ExportServicer interface {
	Export(ctx context.Context, visitedOnly bool) ([]domain.ExportRecord, error)
	Import(ctx context.Context, records []domain.ExportRecord) (domain.ImportSummary, error)
}

// Syncer triggers an immediate push/pull cycle ("force sync now").
type Syncer interface {
	SyncNow(ctx context.Context) error
}

// StatusSource exposes the current sync status and a subscription feed.
// Implemented by *sync.Monitor.
type StatusSource interface {
	Current() sync.StatusUpdate
	Subscribe() (<-chan sync.StatusUpdate, func())
}

// DataResetter wipes the whole local dataset ("clear all data").
// Implemented by *repo.DB.
type DataResetter interface {
	ResetAll(ctx context.Context) error
}

// Server holds the dependencies for all API endpoints.
// Methods are in domain-specific files but all operate on this struct.
type Server struct {
	places   PlaceServicer
	trips    TripServicer
	export   ExportServicer
	syncer   Syncer
	status   StatusSource
	resetter DataResetter
}

// NewServer constructs the Server with all its dependencies.
func NewServer(places PlaceServicer, trips TripServicer, export ExportServicer, syncer Syncer, status StatusSource, resetter DataResetter) *Server {
	return &Server{
		places:   places,
		trips:    trips,
		export:   export,
		syncer:   syncer,
		status:   status,
		resetter: resetter,
	}
}

// Routes mounts every endpoint on a fresh chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)

	r.Route("/places", func(r chi.Router) {
		r.Post("/", s.CreatePlace)
		r.Get("/", s.ListPlaces)
		r.Get("/{id}", s.GetPlace)
		r.Put("/{id}", s.UpdatePlace)
		r.Delete("/{id}", s.DeletePlace)
		r.Put("/{id}/trip", s.AssignPlaceTrip)
	})

	r.Route("/trips", func(r chi.Router) {
		r.Post("/", s.CreateTrip)
		r.Get("/", s.ListTrips)
		r.Get("/{id}", s.GetTrip)
		r.Put("/{id}", s.UpdateTrip)
		r.Delete("/{id}", s.DeleteTrip)
		r.Get("/{id}/places", s.ListTripPlaces)
	})

	r.Get("/export", s.GetExport)
	r.Post("/import", s.PostImport)

	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", s.GetSyncStatus)
		r.Get("/status/ws", s.StreamSyncStatus)
		r.Post("/now", s.PostSyncNow)
	})

	r.Delete("/data", s.DeleteAllData)

	return r
}

// GetHealth handles GET /healthz.
// It returns HTTP 200 with {"status":"ok"} when the server is running.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
