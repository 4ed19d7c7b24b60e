package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/placetrail/internal/domain"
)

// LoggedChange is a change log row: a field delta plus its queue position.
type LoggedChange struct {
	Seq int64
	domain.Change
}

// ChangeLogRepo exposes the outbound change queue to the sync engine.
// Rows are written by the place/trip repos inside the same transaction as
// the data change itself, so the queue can never disagree with the store.
type ChangeLogRepo interface {
	// Unpushed returns every change not yet transmitted, oldest first.
	Unpushed(ctx context.Context) ([]LoggedChange, error)

	// MarkPushed flags all rows up to and including seq as transmitted.
	MarkPushed(ctx context.Context, seq int64) error

	// PendingFields returns the set of field names touched by unpushed
	// local changes to one record. The sync engine uses it to report
	// field-level conflicts resolved by an inbound merge.
	PendingFields(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (map[string]bool, error)

	// Cursor returns the persisted pull position, empty when the store
	// has never pulled. The engine resumes from it on restart so pulls
	// stay incremental across process lifetimes.
	Cursor(ctx context.Context) (string, error)

	// SetCursor durably records the pull position returned by the remote.
	SetCursor(ctx context.Context, cursor string) error
}

// sqliteChangeLogRepo is the SQLite implementation of ChangeLogRepo.
type sqliteChangeLogRepo struct {
	db *DB
}

// NewChangeLogRepo constructs a ChangeLogRepo backed by the provided DB.
func NewChangeLogRepo(db *DB) ChangeLogRepo {
	return &sqliteChangeLogRepo{db: db}
}

func (r *sqliteChangeLogRepo) Unpushed(ctx context.Context) ([]LoggedChange, error) {
	const q = `
		SELECT seq, kind, entity_id, op, fields, changed_at
		FROM change_log
		WHERE pushed = 0
		ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.ChangeLogRepo.Unpushed: %w", err)
	}
	defer rows.Close()

	var out []LoggedChange
	for rows.Next() {
		var (
			lc        LoggedChange
			kind, op  string
			entityID  string
			fieldsRaw string
			changedAt string
		)
		if err := rows.Scan(&lc.Seq, &kind, &entityID, &op, &fieldsRaw, &changedAt); err != nil {
			return nil, fmt.Errorf("repo.ChangeLogRepo.Unpushed: scan: %w", err)
		}
		id, err := uuid.Parse(entityID)
		if err != nil {
			return nil, fmt.Errorf("repo.ChangeLogRepo.Unpushed: entity id: %w", err)
		}
		at, err := timeFromText(changedAt)
		if err != nil {
			return nil, fmt.Errorf("repo.ChangeLogRepo.Unpushed: changed_at: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(fieldsRaw), &fields); err != nil {
			return nil, fmt.Errorf("repo.ChangeLogRepo.Unpushed: fields: %w", err)
		}
		lc.Change = domain.Change{
			Kind:     domain.EntityKind(kind),
			EntityID: id,
			Op:       domain.ChangeOp(op),
			Fields:   fields,
			At:       at,
		}
		out = append(out, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.ChangeLogRepo.Unpushed: rows: %w", err)
	}
	return out, nil
}

func (r *sqliteChangeLogRepo) MarkPushed(ctx context.Context, seq int64) error {
	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE change_log SET pushed = 1 WHERE seq <= ? AND pushed = 0`, seq)
		if err != nil {
			return fmt.Errorf("repo.ChangeLogRepo.MarkPushed: %w: %v", domain.ErrStorage, err)
		}
		return nil
	})
	return err
}

func (r *sqliteChangeLogRepo) PendingFields(ctx context.Context, kind domain.EntityKind, id uuid.UUID) (map[string]bool, error) {
	const q = `
		SELECT fields
		FROM change_log
		WHERE pushed = 0 AND kind = ? AND entity_id = ?`

	rows, err := r.db.QueryContext(ctx, q, string(kind), id.String())
	if err != nil {
		return nil, fmt.Errorf("repo.ChangeLogRepo.PendingFields: %w", err)
	}
	defer rows.Close()

	pending := map[string]bool{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("repo.ChangeLogRepo.PendingFields: scan: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("repo.ChangeLogRepo.PendingFields: fields: %w", err)
		}
		for k := range fields {
			pending[k] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.ChangeLogRepo.PendingFields: rows: %w", err)
	}
	return pending, nil
}

const pullCursorKey = "pull_cursor"

func (r *sqliteChangeLogRepo) Cursor(ctx context.Context) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = ?`, pullCursorKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("repo.ChangeLogRepo.Cursor: %w: %v", domain.ErrStorage, err)
	}
	return v, nil
}

func (r *sqliteChangeLogRepo) SetCursor(ctx context.Context, cursor string) error {
	err := r.db.Commit(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
			pullCursorKey, cursor)
		if err != nil {
			return fmt.Errorf("repo.ChangeLogRepo.SetCursor: %w: %v", domain.ErrStorage, err)
		}
		return nil
	})
	return err
}

// logChange appends a field delta to the change log inside the caller's
// transaction. Every local write calls this; inbound merges never do, so
// remote changes are not echoed back out.
func logChange(ctx context.Context, tx *sql.Tx, c domain.Change) error {
	fields := c.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("repo: marshal change fields: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO change_log (kind, entity_id, op, fields, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(c.Kind), c.EntityID.String(), string(c.Op), string(raw), timeToText(c.At))
	if err != nil {
		return fmt.Errorf("repo: log change: %w", err)
	}
	return nil
}
