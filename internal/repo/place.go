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

// PlaceRepo defines the persistence operations for Places.
// The service layer depends on this interface, not the concrete SQLite
// implementation, which allows the service to be unit-tested with a mock.
//
// Create, Update, and Delete record a field delta in the change log inside
// the same transaction; ApplyChange is the inbound counterpart used by the
// sync engine and never touches the change log.
type PlaceRepo interface {
	// Create inserts a new place and returns the persisted record. A nil ID
	// gets a freshly generated UUID; zero timestamps are stamped with the
	// commit time.
	Create(ctx context.Context, place domain.Place) (domain.Place, error)

	// GetByID retrieves a single place by its UUID.
	// Returns domain.ErrNotFound if no place with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Place, error)

	// List returns all places matching filter, ordered by name then creation time.
	List(ctx context.Context, filter domain.PlaceFilter) ([]domain.Place, error)

	// ListPaged returns one page of matching places and the total match count.
	ListPaged(ctx context.Context, filter domain.PlaceFilter, p domain.PaginationParams) ([]domain.Place, int64, error)

	// Update overwrites the mutable fields of a place and returns the updated
	// record with a refreshed UpdatedAt. Only fields that actually changed are
	// written to the change log; a no-op update writes nothing.
	// Returns domain.ErrNotFound if no place with that ID exists.
	Update(ctx context.Context, place domain.Place) (domain.Place, error)

	// Delete removes a place by ID. The place simply leaves its trip's
	// derived set; nothing else is touched.
	// Returns domain.ErrNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// ApplyChange merges one inbound field delta from another device.
	// Exactly the fields named by the delta are overwritten; every other
	// field keeps its local value. Unknown records are created, delete
	// deltas remove the record (idempotently).
	ApplyChange(ctx context.Context, change domain.Change) error
}

// sqlitePlaceRepo is the SQLite implementation of PlaceRepo.
type sqlitePlaceRepo struct {
	db *DB
}

// NewPlaceRepo constructs a PlaceRepo backed by the provided DB.
func NewPlaceRepo(db *DB) PlaceRepo {
	return &sqlitePlaceRepo{db: db}
}

const placeColumns = `id, name, description, category, address, latitude, longitude,
	is_visited, visited_date, rating, personal_reflection, trip_id, created_at, updated_at`

func (r *sqlitePlaceRepo) Create(ctx context.Context, place domain.Place) (domain.Place, error) {
	now := time.Now().UTC()
	if place.ID == uuid.Nil {
		place.ID = uuid.New()
	}
	if place.CreatedAt.IsZero() {
		place.CreatedAt = now
	}
	if place.UpdatedAt.Before(place.CreatedAt) {
		place.UpdatedAt = place.CreatedAt
	}

	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		if err := insertPlace(ctx, tx, place); err != nil {
			return err
		}
		return logChange(ctx, tx, domain.Change{
			Kind:     domain.KindPlace,
			EntityID: place.ID,
			Op:       domain.OpCreate,
			Fields:   placeFields(place),
			At:       place.UpdatedAt,
		})
	})
	if err != nil {
		return domain.Place{}, fmt.Errorf("repo.PlaceRepo.Create: %w", err)
	}
	return place, nil
}

func (r *sqlitePlaceRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Place, error) {
	q := `SELECT ` + placeColumns + ` FROM places WHERE id = ?`
	row := r.db.QueryRowContext(ctx, q, id.String())
	place, err := scanPlace(row)
	if err != nil {
		return domain.Place{}, fmt.Errorf("repo.PlaceRepo.GetByID: %w", err)
	}
	return place, nil
}

func (r *sqlitePlaceRepo) List(ctx context.Context, filter domain.PlaceFilter) ([]domain.Place, error) {
	q, args := placeListQuery(filter)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repo.PlaceRepo.List: %w", err)
	}
	defer rows.Close()

	var places []domain.Place
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.PlaceRepo.List: scan: %w", err)
		}
		places = append(places, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.PlaceRepo.List: rows: %w", err)
	}
	return places, nil
}

func (r *sqlitePlaceRepo) ListPaged(ctx context.Context, filter domain.PlaceFilter, p domain.PaginationParams) ([]domain.Place, int64, error) {
	where, args := placeFilterWhere(filter)

	var total int64
	countQ := `SELECT COUNT(*) FROM places` + where
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.PlaceRepo.ListPaged: count: %w", err)
	}

	q := `SELECT ` + placeColumns + ` FROM places` + where +
		` ORDER BY name COLLATE NOCASE, created_at LIMIT ? OFFSET ?`
	args = append(args, p.Limit, p.Offset())

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.PlaceRepo.ListPaged: %w", err)
	}
	defer rows.Close()

	places := []domain.Place{}
	for rows.Next() {
		pl, err := scanPlace(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.PlaceRepo.ListPaged: scan: %w", err)
		}
		places = append(places, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.PlaceRepo.ListPaged: rows: %w", err)
	}
	return places, total, nil
}

func (r *sqlitePlaceRepo) Update(ctx context.Context, place domain.Place) (domain.Place, error) {
	var result domain.Place
	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		old, err := getPlaceTx(ctx, tx, place.ID)
		if err != nil {
			return err
		}

		// Immutable fields always come from the stored row.
		place.CreatedAt = old.CreatedAt

		changed := diffPlace(old, place)
		if len(changed) == 0 {
			result = old
			return nil
		}

		// UpdatedAt is refreshed on every mutation and never moves backwards.
		now := time.Now().UTC()
		if now.Before(old.UpdatedAt) {
			now = old.UpdatedAt
		}
		place.UpdatedAt = now
		changed["updated_at"] = timeToText(now)

		if err := updatePlace(ctx, tx, place); err != nil {
			return err
		}
		result = place
		return logChange(ctx, tx, domain.Change{
			Kind:     domain.KindPlace,
			EntityID: place.ID,
			Op:       domain.OpUpdate,
			Fields:   changed,
			At:       now,
		})
	})
	if err != nil {
		return domain.Place{}, fmt.Errorf("repo.PlaceRepo.Update: %w", err)
	}
	return result, nil
}

func (r *sqlitePlaceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id.String())
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
			Kind:     domain.KindPlace,
			EntityID: id,
			Op:       domain.OpDelete,
			At:       time.Now().UTC(),
		})
	})
	if err != nil {
		return fmt.Errorf("repo.PlaceRepo.Delete: %w", err)
	}
	return nil
}

func (r *sqlitePlaceRepo) ApplyChange(ctx context.Context, change domain.Change) error {
	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		if change.Op == domain.OpDelete {
			// Idempotent: the record may already be gone locally.
			_, err := tx.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, change.EntityID.String())
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrStorage, err)
			}
			return nil
		}

		old, err := getPlaceTx(ctx, tx, change.EntityID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			place := domain.Place{ID: change.EntityID, Category: domain.CategoryOther}
			if err := applyPlaceFields(&place, change.Fields); err != nil {
				return err
			}
			if place.CreatedAt.IsZero() {
				place.CreatedAt = change.At
			}
			if place.UpdatedAt.IsZero() {
				place.UpdatedAt = change.At
			}
			if err := resolveTripRef(ctx, tx, &place); err != nil {
				return err
			}
			return insertPlace(ctx, tx, place)
		case err != nil:
			return err
		}

		merged := old
		if err := applyPlaceFields(&merged, change.Fields); err != nil {
			return err
		}
		// Keep UpdatedAt non-decreasing even when the delta carries an
		// older stamp than the local row.
		if merged.UpdatedAt.Before(old.UpdatedAt) {
			merged.UpdatedAt = old.UpdatedAt
		}
		if err := resolveTripRef(ctx, tx, &merged); err != nil {
			return err
		}
		return updatePlace(ctx, tx, merged)
	})
	if err != nil {
		return fmt.Errorf("repo.PlaceRepo.ApplyChange: %w", err)
	}
	return nil
}

// --- SQL helpers ------------------------------------------------------------

func insertPlace(ctx context.Context, tx *sql.Tx, p domain.Place) error {
	const q = `
		INSERT INTO places (id, name, description, category, address, latitude, longitude,
			is_visited, visited_date, rating, personal_reflection, trip_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, q,
		p.ID.String(), p.Name, p.Description, string(p.Category), p.Address,
		p.Latitude, p.Longitude, p.IsVisited, nullTimeToText(p.VisitedDate),
		p.Rating, p.PersonalReflection, nullUUIDToText(p.TripID),
		timeToText(p.CreatedAt), timeToText(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: insert place: %v", domain.ErrStorage, err)
	}
	return nil
}

func updatePlace(ctx context.Context, tx *sql.Tx, p domain.Place) error {
	const q = `
		UPDATE places
		SET name = ?, description = ?, category = ?, address = ?, latitude = ?,
		    longitude = ?, is_visited = ?, visited_date = ?, rating = ?,
		    personal_reflection = ?, trip_id = ?, updated_at = ?
		WHERE id = ?`

	_, err := tx.ExecContext(ctx, q,
		p.Name, p.Description, string(p.Category), p.Address, p.Latitude,
		p.Longitude, p.IsVisited, nullTimeToText(p.VisitedDate), p.Rating,
		p.PersonalReflection, nullUUIDToText(p.TripID), timeToText(p.UpdatedAt),
		p.ID.String())
	if err != nil {
		return fmt.Errorf("%w: update place: %v", domain.ErrStorage, err)
	}
	return nil
}

// resolveTripRef clears a trip reference pointing at a trip missing from the
// local store. An inbound delta can carry such a reference when another
// device assigned the place to a trip that was deleted here first; the
// delete wins, exactly as the deleting device recorded for its own member
// places, so the merge resolves instead of tripping the foreign key.
func resolveTripRef(ctx context.Context, tx *sql.Tx, p *domain.Place) error {
	if p.TripID == nil {
		return nil
	}
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM trips WHERE id = ?`, p.TripID.String()).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.TripID = nil
		return nil
	case err != nil:
		return fmt.Errorf("%w: check trip reference: %v", domain.ErrStorage, err)
	}
	return nil
}

func getPlaceTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (domain.Place, error) {
	q := `SELECT ` + placeColumns + ` FROM places WHERE id = ?`
	return scanPlace(tx.QueryRowContext(ctx, q, id.String()))
}

func placeFilterWhere(filter domain.PlaceFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.VisitedOnly {
		conds = append(conds, `is_visited = 1`)
	}
	if filter.Category != "" {
		conds = append(conds, `category = ?`)
		args = append(args, string(filter.Category))
	}
	if filter.TripID != nil {
		conds = append(conds, `trip_id = ?`)
		args = append(args, filter.TripID.String())
	}
	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func placeListQuery(filter domain.PlaceFilter) (string, []any) {
	where, args := placeFilterWhere(filter)
	q := `SELECT ` + placeColumns + ` FROM places` + where +
		` ORDER BY name COLLATE NOCASE, created_at`
	return q, args
}

// scanner is satisfied by both *sql.Row and *sql.Rows, allowing the scan
// helpers to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanPlace maps a single database row into a domain.Place.
func scanPlace(s scanner) (domain.Place, error) {
	var (
		p           domain.Place
		id          string
		category    string
		visitedDate sql.NullString
		tripID      sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := s.Scan(&id, &p.Name, &p.Description, &category, &p.Address,
		&p.Latitude, &p.Longitude, &p.IsVisited, &visitedDate, &p.Rating,
		&p.PersonalReflection, &tripID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Place{}, domain.ErrNotFound
		}
		return domain.Place{}, err
	}

	p.ID, err = uuid.Parse(id)
	if err != nil {
		return domain.Place{}, fmt.Errorf("place id: %w", err)
	}
	p.Category = domain.Category(category)
	if p.VisitedDate, err = nullTimeFromText(visitedDate); err != nil {
		return domain.Place{}, fmt.Errorf("visited_date: %w", err)
	}
	if tripID.Valid && tripID.String != "" {
		tid, err := uuid.Parse(tripID.String)
		if err != nil {
			return domain.Place{}, fmt.Errorf("trip_id: %w", err)
		}
		p.TripID = &tid
	}
	if p.CreatedAt, err = timeFromText(createdAt); err != nil {
		return domain.Place{}, fmt.Errorf("created_at: %w", err)
	}
	if p.UpdatedAt, err = timeFromText(updatedAt); err != nil {
		return domain.Place{}, fmt.Errorf("updated_at: %w", err)
	}
	return p, nil
}

// placeFields returns the full field delta for a freshly created place.
func placeFields(p domain.Place) map[string]any {
	return map[string]any{
		"name":                p.Name,
		"description":         p.Description,
		"category":            string(p.Category),
		"address":             p.Address,
		"latitude":            p.Latitude,
		"longitude":           p.Longitude,
		"is_visited":          p.IsVisited,
		"visited_date":        encodeNullTime(p.VisitedDate),
		"rating":              p.Rating,
		"personal_reflection": p.PersonalReflection,
		"trip_id":             encodeNullUUID(p.TripID),
		"created_at":          timeToText(p.CreatedAt),
		"updated_at":          timeToText(p.UpdatedAt),
	}
}

// diffPlace returns the fields whose values differ between old and next,
// keyed by column name with the next value. UpdatedAt/CreatedAt are handled
// by the caller.
func diffPlace(old, next domain.Place) map[string]any {
	changed := map[string]any{}
	if old.Name != next.Name {
		changed["name"] = next.Name
	}
	if old.Description != next.Description {
		changed["description"] = next.Description
	}
	if old.Category != next.Category {
		changed["category"] = string(next.Category)
	}
	if old.Address != next.Address {
		changed["address"] = next.Address
	}
	if old.Latitude != next.Latitude {
		changed["latitude"] = next.Latitude
	}
	if old.Longitude != next.Longitude {
		changed["longitude"] = next.Longitude
	}
	if old.IsVisited != next.IsVisited {
		changed["is_visited"] = next.IsVisited
	}
	if !equalNullTime(old.VisitedDate, next.VisitedDate) {
		changed["visited_date"] = encodeNullTime(next.VisitedDate)
	}
	if old.Rating != next.Rating {
		changed["rating"] = next.Rating
	}
	if old.PersonalReflection != next.PersonalReflection {
		changed["personal_reflection"] = next.PersonalReflection
	}
	if !equalNullUUID(old.TripID, next.TripID) {
		changed["trip_id"] = encodeNullUUID(next.TripID)
	}
	return changed
}

// applyPlaceFields overwrites exactly the named fields on p.
// Values arrive JSON-decoded, so numbers are float64 and times are strings.
func applyPlaceFields(p *domain.Place, fields map[string]any) error {
	for name, value := range fields {
		var err error
		switch name {
		case "name":
			p.Name, err = asString(value)
		case "description":
			p.Description, err = asString(value)
		case "category":
			var s string
			if s, err = asString(value); err == nil {
				p.Category = domain.Category(s)
			}
		case "address":
			p.Address, err = asString(value)
		case "latitude":
			p.Latitude, err = asFloat(value)
		case "longitude":
			p.Longitude, err = asFloat(value)
		case "is_visited":
			p.IsVisited, err = asBool(value)
		case "visited_date":
			p.VisitedDate, err = asNullTime(value)
		case "rating":
			var f float64
			if f, err = asFloat(value); err == nil {
				p.Rating = int(f)
			}
		case "personal_reflection":
			p.PersonalReflection, err = asString(value)
		case "trip_id":
			p.TripID, err = asNullUUID(value)
		case "created_at":
			var t time.Time
			if t, err = asTime(value); err == nil {
				p.CreatedAt = t
			}
		case "updated_at":
			var t time.Time
			if t, err = asTime(value); err == nil {
				p.UpdatedAt = t
			}
		default:
			// Unknown fields come from newer schema versions on other
			// devices; skip them rather than failing the whole merge.
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}
