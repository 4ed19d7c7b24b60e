// Package repo contains all database access logic for the Placetrail sync
// core. Each resource has its own file with an interface and a SQLite
// implementation. No business logic lives here — only SQL and type mapping.
//
// The store is a local SQLite file so the application stays fully usable
// with no network at all; everything that leaves the device goes through
// the change log and the sync engine, never through this package.
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/migrations"
)

// DB wraps the SQLite handle and enforces the single-writer discipline:
// every mutation goes through Commit, which marshals the work onto one
// writer goroutine and runs it in a single transaction. Reads go straight
// to the pool and see a consistent WAL snapshot.
//
// This is per store instance, not a process-wide lock — two DBs over two
// files write independently.
type DB struct {
	sql     *sql.DB
	commits chan commitReq
	changed chan struct{}
	quit    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

type commitReq struct {
	ctx context.Context
	fn  func(*sql.Tx) error
	res chan error
}

// Open opens (or creates) the SQLite database at path, applies all embedded
// goose migrations, and starts the writer goroutine. Open never terminates
// the process: any failure (unreadable file, bad directory, schema mismatch)
// comes back as an error wrapping domain.ErrStorage so the caller can retry,
// fall back, or surface it.
func Open(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("repo.Open: %w: database path is required", domain.ErrStorage)
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repo.Open: %w: open: %v", domain.ErrStorage, err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("repo.Open: %w: ping: %v", domain.ErrStorage, err)
	}

	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("repo.Open: %w: migrate: %v", domain.ErrStorage, err)
	}

	d := &DB{
		sql:     sqlDB,
		commits: make(chan commitReq),
		changed: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.writeLoop()
	return d, nil
}

// migrate applies all pending embedded migrations.
var migrateMu sync.Mutex

func migrate(db *sql.DB) error {
	// goose keeps package-level dialect/FS state; serialize configuration
	// so two stores opening concurrently (tests) do not race.
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}

// Commit runs fn inside one transaction on the writer goroutine. Either
// every statement in fn is durably persisted or none are. Errors returned
// by fn pass through unchanged; transaction machinery failures wrap
// domain.ErrStorage and leave the store at its last-good state.
func (d *DB) Commit(ctx context.Context, fn func(*sql.Tx) error) error {
	req := commitReq{ctx: ctx, fn: fn, res: make(chan error, 1)}
	select {
	case d.commits <- req:
	case <-d.quit:
		return fmt.Errorf("repo.DB.Commit: %w: store closed", domain.ErrStorage)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.res:
		return err
	case <-ctx.Done():
		// The commit may still run to completion; the caller has only
		// abandoned waiting for it.
		return ctx.Err()
	}
}

func (d *DB) writeLoop() {
	defer close(d.done)
	for {
		select {
		case req := <-d.commits:
			req.res <- d.runCommit(req.ctx, req.fn)
		case <-d.quit:
			return
		}
	}
}

func (d *DB) runCommit(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repo.DB.Commit: %w: begin: %v", domain.ErrStorage, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repo.DB.Commit: %w: commit: %v", domain.ErrStorage, err)
	}
	d.notifyChanged()
	return nil
}

// notifyChanged signals Changes without blocking; back-to-back commits
// coalesce into one pending signal.
func (d *DB) notifyChanged() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// Changes returns a signal channel that receives after every successful
// commit. The sync engine listens on it to schedule outbound pushes.
func (d *DB) Changes() <-chan struct{} {
	return d.changed
}

// QueryContext runs a read-only query against the pool.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sql.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row read against the pool.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sql.QueryRowContext(ctx, query, args...)
}

// ResetAll erases every place, trip, pending change, and the pull cursor
// in one commit.
// This backs the UI's "clear all data" action; it is a local reset and
// deliberately does not enqueue deletes for other devices.
func (d *DB) ResetAll(ctx context.Context) error {
	err := d.Commit(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM change_log`,
			`DELETE FROM sync_state`,
			`DELETE FROM places`,
			`DELETE FROM trips`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("repo.DB.ResetAll: %w: %v", domain.ErrStorage, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// Close stops the writer goroutine and releases the database handle.
// In-flight Commit calls fail with domain.ErrStorage.
func (d *DB) Close() error {
	d.closeOnce.Do(func() { close(d.quit) })
	<-d.done
	return d.sql.Close()
}

// storeTimeFormat is how timestamps are persisted in TEXT columns.
const storeTimeFormat = time.RFC3339Nano

func timeToText(t time.Time) string {
	return t.UTC().Format(storeTimeFormat)
}

func timeFromText(s string) (time.Time, error) {
	return time.Parse(storeTimeFormat, s)
}

func nullTimeToText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeToText(*t)
}

func nullTimeFromText(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := timeFromText(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
