package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/placetrail/internal/domain"
)

// TripRepo defines the persistence operations for Trips.
type TripRepo interface {
	// Create inserts a new trip and returns the persisted record. A nil ID
	// gets a freshly generated UUID; zero timestamps are stamped with the
	// commit time.
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// List returns all trips ordered by start_date descending, nulls last.
	List(ctx context.Context) ([]domain.Trip, error)

	// Update overwrites the mutable fields of a trip and returns the updated
	// record. Returns domain.ErrNotFound if no trip with that ID exists.
	Update(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// Delete removes a trip by ID. Member places are never deleted: in the
	// same commit their trip reference is cleared and that clearing is
	// recorded in the change log so other devices converge.
	// Returns domain.ErrNotFound if the trip does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// ApplyChange merges one inbound trip delta from another device.
	ApplyChange(ctx context.Context, change domain.Change) error
}

// sqliteTripRepo is the SQLite implementation of TripRepo.
type sqliteTripRepo struct {
	db *DB
}

// NewTripRepo constructs a TripRepo backed by the provided DB.
func NewTripRepo(db *DB) TripRepo {
	return &sqliteTripRepo{db: db}
}

const tripColumns = `id, name, description, start_date, end_date, created_at, updated_at`

func (r *sqliteTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	now := time.Now().UTC()
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = now
	}
	if trip.UpdatedAt.Before(trip.CreatedAt) {
		trip.UpdatedAt = trip.CreatedAt
	}

	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		if err := insertTrip(ctx, tx, trip); err != nil {
			return err
		}
		return logChange(ctx, tx, domain.Change{
			Kind:     domain.KindTrip,
			EntityID: trip.ID,
			Op:       domain.OpCreate,
			Fields:   tripFields(trip),
			At:       trip.UpdatedAt,
		})
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return trip, nil
}

func (r *sqliteTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE id = ?`
	trip, err := scanTrip(r.db.QueryRowContext(ctx, q, id.String()))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return trip, nil
}

func (r *sqliteTripRepo) List(ctx context.Context) ([]domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips
		ORDER BY start_date IS NULL, start_date DESC, name COLLATE NOCASE`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.List: %w", err)
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.TripRepo.List: scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.List: rows: %w", err)
	}
	return trips, nil
}

func (r *sqliteTripRepo) Update(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	var result domain.Trip
	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		old, err := getTripTx(ctx, tx, trip.ID)
		if err != nil {
			return err
		}
		trip.CreatedAt = old.CreatedAt

		changed := diffTrip(old, trip)
		if len(changed) == 0 {
			result = old
			return nil
		}

		now := time.Now().UTC()
		if now.Before(old.UpdatedAt) {
			now = old.UpdatedAt
		}
		trip.UpdatedAt = now
		changed["updated_at"] = timeToText(now)

		if err := updateTrip(ctx, tx, trip); err != nil {
			return err
		}
		result = trip
		return logChange(ctx, tx, domain.Change{
			Kind:     domain.KindTrip,
			EntityID: trip.ID,
			Op:       domain.OpUpdate,
			Fields:   changed,
			At:       now,
		})
	})
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Update: %w", err)
	}
	return result, nil
}

func (r *sqliteTripRepo) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		// Clear the back-reference on every member place first, and log
		// each clearing so other devices converge. The places themselves
		// are untouched — a trip never owns its places' lifetime.
		memberIDs, err := tripMemberIDs(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(memberIDs) > 0 {
			_, err = tx.ExecContext(ctx,
				`UPDATE places SET trip_id = NULL, updated_at = ? WHERE trip_id = ?`,
				timeToText(now), id.String())
			if err != nil {
				return fmt.Errorf("%w: clear trip refs: %v", domain.ErrStorage, err)
			}
			for _, placeID := range memberIDs {
				err := logChange(ctx, tx, domain.Change{
					Kind:     domain.KindPlace,
					EntityID: placeID,
					Op:       domain.OpUpdate,
					Fields:   map[string]any{"trip_id": nil, "updated_at": timeToText(now)},
					At:       now,
				})
				if err != nil {
					return err
				}
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return logChange(ctx, tx, domain.Change{
			Kind:     domain.KindTrip,
			EntityID: id,
			Op:       domain.OpDelete,
			At:       now,
		})
	})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.Delete: %w", err)
	}
	return nil
}

func (r *sqliteTripRepo) ApplyChange(ctx context.Context, change domain.Change) error {
	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		if change.Op == domain.OpDelete {
			// Mirror the local delete semantics: member places survive
			// with their reference cleared. The remote side logged its
			// own per-place clearings, but clearing here too keeps the
			// store consistent even if those deltas arrive later.
			_, err := tx.ExecContext(ctx,
				`UPDATE places SET trip_id = NULL WHERE trip_id = ?`, change.EntityID.String())
			if err != nil {
				return fmt.Errorf("%w: clear trip refs: %v", domain.ErrStorage, err)
			}
			_, err = tx.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, change.EntityID.String())
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrStorage, err)
			}
			return nil
		}

		old, err := getTripTx(ctx, tx, change.EntityID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			trip := domain.Trip{ID: change.EntityID}
			if err := applyTripFields(&trip, change.Fields); err != nil {
				return err
			}
			if trip.CreatedAt.IsZero() {
				trip.CreatedAt = change.At
			}
			if trip.UpdatedAt.IsZero() {
				trip.UpdatedAt = change.At
			}
			return insertTrip(ctx, tx, trip)
		case err != nil:
			return err
		}

		merged := old
		if err := applyTripFields(&merged, change.Fields); err != nil {
			return err
		}
		if merged.UpdatedAt.Before(old.UpdatedAt) {
			merged.UpdatedAt = old.UpdatedAt
		}
		return updateTrip(ctx, tx, merged)
	})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.ApplyChange: %w", err)
	}
	return nil
}

// --- SQL helpers ------------------------------------------------------------

func insertTrip(ctx context.Context, tx *sql.Tx, t domain.Trip) error {
	const q = `
		INSERT INTO trips (id, name, description, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, q,
		t.ID.String(), t.Name, t.Description,
		nullTimeToText(t.StartDate), nullTimeToText(t.EndDate),
		timeToText(t.CreatedAt), timeToText(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: insert trip: %v", domain.ErrStorage, err)
	}
	return nil
}

func updateTrip(ctx context.Context, tx *sql.Tx, t domain.Trip) error {
	const q = `
		UPDATE trips
		SET name = ?, description = ?, start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ?`

	_, err := tx.ExecContext(ctx, q,
		t.Name, t.Description, nullTimeToText(t.StartDate), nullTimeToText(t.EndDate),
		timeToText(t.UpdatedAt), t.ID.String())
	if err != nil {
		return fmt.Errorf("%w: update trip: %v", domain.ErrStorage, err)
	}
	return nil
}

func getTripTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE id = ?`
	return scanTrip(tx.QueryRowContext(ctx, q, id.String()))
}

func tripMemberIDs(ctx context.Context, tx *sql.Tx, tripID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM places WHERE trip_id = ?`, tripID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: member places: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: member places: %v", domain.ErrStorage, err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("member place id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanTrip maps a single database row into a domain.Trip.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t         domain.Trip
		id        string
		startDate sql.NullString
		endDate   sql.NullString
		createdAt string
		updatedAt string
	)
	err := s.Scan(&id, &t.Name, &t.Description, &startDate, &endDate, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	if t.ID, err = uuid.Parse(id); err != nil {
		return domain.Trip{}, fmt.Errorf("trip id: %w", err)
	}
	if t.StartDate, err = nullTimeFromText(startDate); err != nil {
		return domain.Trip{}, fmt.Errorf("start_date: %w", err)
	}
	if t.EndDate, err = nullTimeFromText(endDate); err != nil {
		return domain.Trip{}, fmt.Errorf("end_date: %w", err)
	}
	if t.CreatedAt, err = timeFromText(createdAt); err != nil {
		return domain.Trip{}, fmt.Errorf("created_at: %w", err)
	}
	if t.UpdatedAt, err = timeFromText(updatedAt); err != nil {
		return domain.Trip{}, fmt.Errorf("updated_at: %w", err)
	}
	return t, nil
}

// tripFields returns the full field delta for a freshly created trip.
func tripFields(t domain.Trip) map[string]any {
	return map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"start_date":  encodeNullTime(t.StartDate),
		"end_date":    encodeNullTime(t.EndDate),
		"created_at":  timeToText(t.CreatedAt),
		"updated_at":  timeToText(t.UpdatedAt),
	}
}

// diffTrip returns the fields whose values differ between old and next.
func diffTrip(old, next domain.Trip) map[string]any {
	changed := map[string]any{}
	if old.Name != next.Name {
		changed["name"] = next.Name
	}
	if old.Description != next.Description {
		changed["description"] = next.Description
	}
	if !equalNullTime(old.StartDate, next.StartDate) {
		changed["start_date"] = encodeNullTime(next.StartDate)
	}
	if !equalNullTime(old.EndDate, next.EndDate) {
		changed["end_date"] = encodeNullTime(next.EndDate)
	}
	return changed
}

// applyTripFields overwrites exactly the named fields on t.
func applyTripFields(t *domain.Trip, fields map[string]any) error {
	for name, value := range fields {
		var err error
		switch name {
		case "name":
			t.Name, err = asString(value)
		case "description":
			t.Description, err = asString(value)
		case "start_date":
			t.StartDate, err = asNullTime(value)
		case "end_date":
			t.EndDate, err = asNullTime(value)
		case "created_at":
			var at time.Time
			if at, err = asTime(value); err == nil {
				t.CreatedAt = at
			}
		case "updated_at":
			var at time.Time
			if at, err = asTime(value); err == nil {
				t.UpdatedAt = at
			}
		default:
			// Skip fields from newer schema versions.
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}
