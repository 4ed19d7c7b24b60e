package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkordes/placetrail/internal/domain"
)

// tripRequest is the request body for creating or updating a trip.
type tripRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

func (req tripRequest) toDomain() domain.Trip {
	return domain.Trip{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
}

// CreateTrip handles POST /trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req tripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestError(w, "invalid request body")
		return
	}

	created, err := s.trips.Create(r.Context(), req.toDomain())
	if err != nil {
		writeDomainError(w, err, "trip not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListTrips handles GET /trips.
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := s.trips.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

// GetTrip handles GET /trips/{id}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, "invalid trip id")
		return
	}
	trip, err := s.trips.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "trip not found")
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// UpdateTrip handles PUT /trips/{id}.
func (s *Server) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, "invalid trip id")
		return
	}
	var req tripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestError(w, "invalid request body")
		return
	}
	trip := req.toDomain()
	trip.ID = id

	updated, err := s.trips.Update(r.Context(), trip)
	if err != nil {
		writeDomainError(w, err, "trip not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteTrip handles DELETE /trips/{id}.
// The trip's places survive the deletion with their trip reference cleared.
func (s *Server) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, "invalid trip id")
		return
	}
	if err := s.trips.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "trip not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTripPlaces handles GET /trips/{id}/places.
func (s *Server) ListTripPlaces(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, "invalid trip id")
		return
	}
	places, err := s.trips.Places(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "trip not found")
		return
	}
	writeJSON(w, http.StatusOK, places)
}
