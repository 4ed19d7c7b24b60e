package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/internal/handler"
)

// ---- mock TripServicer -----------------------------------------------------

type mockTripServicer struct {
	create  func(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	getByID func(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	list    func(ctx context.Context) ([]domain.Trip, error)
	update  func(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	delete  func(ctx context.Context, id uuid.UUID) error
	places  func(ctx context.Context, tripID uuid.UUID) ([]domain.Place, error)
}

func (m *mockTripServicer) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	return m.create(ctx, trip)
}
func (m *mockTripServicer) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return m.getByID(ctx, id)
}
func (m *mockTripServicer) List(ctx context.Context) ([]domain.Trip, error) {
	return m.list(ctx)
}
func (m *mockTripServicer) Update(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	return m.update(ctx, trip)
}
func (m *mockTripServicer) Delete(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, id)
}
func (m *mockTripServicer) Places(ctx context.Context, tripID uuid.UUID) ([]domain.Place, error) {
	return m.places(ctx, tripID)
}

// compile-time check: mockTripServicer must satisfy handler.TripServicer.
var _ handler.TripServicer = (*mockTripServicer)(nil)

// newTripHTTPHandler wires a Server with only the trip service mock.
func newTripHTTPHandler(trips handler.TripServicer) http.Handler {
	return handler.NewServer(nil, trips, nil, nil, nil, nil).Routes()
}

// ---- POST /trips -----------------------------------------------------------

func TestCreateTrip_OK(t *testing.T) {
	stored := domain.Trip{ID: uuid.New(), Name: "Sydney Long Weekend"}
	svc := &mockTripServicer{
		create: func(_ context.Context, tr domain.Trip) (domain.Trip, error) {
			return stored, nil
		},
	}

	body := `{"name":"Sydney Long Weekend","start_date":"2025-04-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/trips", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTripHTTPHandler(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var got domain.Trip
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, stored.ID, got.ID)
}

func TestCreateTrip_ValidationError(t *testing.T) {
	svc := &mockTripServicer{
		create: func(_ context.Context, _ domain.Trip) (domain.Trip, error) {
			return domain.Trip{}, &domain.ValidationError{Field: "end_date", Reason: "must not be before start_date"}
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/trips", strings.NewReader(`{"name":"Backwards"}`))
	rec := httptest.NewRecorder()
	newTripHTTPHandler(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "end_date")
}

// ---- GET /trips ------------------------------------------------------------

func TestListTrips_OK(t *testing.T) {
	svc := &mockTripServicer{
		list: func(_ context.Context) ([]domain.Trip, error) {
			return []domain.Trip{{ID: uuid.New(), Name: "Sydney Long Weekend"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/trips", nil)
	rec := httptest.NewRecorder()
	newTripHTTPHandler(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sydney Long Weekend")
}

// ---- GET /trips/{id} -------------------------------------------------------

func TestGetTrip_NotFound(t *testing.T) {
	svc := &mockTripServicer{
		getByID: func(_ context.Context, _ uuid.UUID) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/trips/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	newTripHTTPHandler(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ---- DELETE /trips/{id} ----------------------------------------------------

func TestDeleteTrip_NoContent(t *testing.T) {
	svc := &mockTripServicer{
		delete: func(_ context.Context, _ uuid.UUID) error { return nil },
	}

	req := httptest.NewRequest(http.MethodDelete, "/trips/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	newTripHTTPHandler(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// ---- GET /trips/{id}/places ------------------------------------------------

func TestListTripPlaces_OK(t *testing.T) {
	tripID := uuid.New()
	svc := &mockTripServicer{
		places: func(_ context.Context, id uuid.UUID) ([]domain.Place, error) {
			assert.Equal(t, tripID, id)
			return []domain.Place{{ID: uuid.New(), Name: "Opera House", TripID: &tripID}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/trips/"+tripID.String()+"/places", nil)
	rec := httptest.NewRecorder()
	newTripHTTPHandler(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Opera House")
}

func TestListTripPlaces_TripNotFound(t *testing.T) {
	svc := &mockTripServicer{
		places: func(_ context.Context, _ uuid.UUID) ([]domain.Place, error) {
			return nil, domain.ErrNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/trips/"+uuid.NewString()+"/places", nil)
	rec := httptest.NewRecorder()
	newTripHTTPHandler(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
