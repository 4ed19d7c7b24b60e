package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/placetrail/internal/domain"
)

// placeRequest is the request body for creating or updating a place.
// Pointer fields are optional; the zero value is used when absent.
type placeRequest struct {
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Category           string     `json:"category"`
	Address            string     `json:"address"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	IsVisited          bool       `json:"is_visited"`
	VisitedDate        *time.Time `json:"visited_date"`
	Rating             int        `json:"rating"`
	PersonalReflection string     `json:"personal_reflection"`
	TripID             *uuid.UUID `json:"trip_id"`
}

func (req placeRequest) toDomain() domain.Place {
	return domain.Place{
		Name:               req.Name,
		Description:        req.Description,
		Category:           domain.Category(req.Category),
		Address:            req.Address,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		IsVisited:          req.IsVisited,
		VisitedDate:        req.VisitedDate,
		Rating:             req.Rating,
		PersonalReflection: req.PersonalReflection,
		TripID:             req.TripID,
	}
}

// pagedPlaces is the response shape for list endpoints.
type pagedPlaces struct {
	Data       []domain.Place `json:"data"`
	Pagination pagination     `json:"pagination"`
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// CreatePlace handles POST /places.
func (s *Server) CreatePlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestError(w, "invalid request body")
		return
	}

	created, err := s.places.Create(r.Context(), req.toDomain())
	if err != nil {
		writeDomainError(w, err, "trip not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListPlaces handles GET /places.
// Supports ?visited=true, ?category=, ?trip_id=, ?page= and ?limit=.
func (s *Server) ListPlaces(w http.ResponseWriter, r *http.Request) {
	filter, err := placeFilterFromQuery(r)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	params := domain.NewPaginationParams(queryInt(r, "page"), queryInt(r, "limit"))

	places, total, err := s.places.ListPaged(r.Context(), filter, params)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, pagedPlaces{
		Data:       places,
		Pagination: pagination{Page: params.Page, Limit: params.Limit, Total: total},
	})
}

// GetPlace handles GET /places/{id}.
func (s *Server) GetPlace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, "invalid place id")
		return
	}
	place, err := s.places.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "place not found")
		return
	}
	writeJSON(w, http.StatusOK, place)
}

// UpdatePlace handles PUT /places/{id}.
func (s *Server) UpdatePlace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, "invalid place id")
		return
	}
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestError(w, "invalid request body")
		return
	}
	place := req.toDomain()
	place.ID = id

	updated, err := s.places.Update(r.Context(), place)
	if err != nil {
		writeDomainError(w, err, "place not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeletePlace handles DELETE /places/{id}.
func (s *Server) DeletePlace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, "invalid place id")
		return
	}
	if err := s.places.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "place not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignPlaceTrip handles PUT /places/{id}/trip.
// Body: {"trip_id": "<uuid>"} to assign, {"trip_id": null} to clear.
// Assigning implicitly replaces any previous trip reference.
func (s *Server) AssignPlaceTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		requestError(w, "invalid place id")
		return
	}
	var req struct {
		TripID *uuid.UUID `json:"trip_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestError(w, "invalid request body")
		return
	}

	updated, err := s.places.AssignTrip(r.Context(), id, req.TripID)
	if err != nil {
		writeDomainError(w, err, "place or trip not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- query helpers ----------------------------------------------------------

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func placeFilterFromQuery(r *http.Request) (domain.PlaceFilter, error) {
	var filter domain.PlaceFilter
	q := r.URL.Query()

	if v := q.Get("visited"); v != "" {
		visited, err := strconv.ParseBool(v)
		if err != nil {
			return domain.PlaceFilter{}, errors.New("invalid visited parameter")
		}
		filter.VisitedOnly = visited
	}
	if v := q.Get("category"); v != "" {
		filter.Category = domain.Category(v)
	}
	if v := q.Get("trip_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return domain.PlaceFilter{}, errors.New("invalid trip_id parameter")
		}
		filter.TripID = &id
	}
	return filter, nil
}

func queryInt(r *http.Request, name string) *int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
