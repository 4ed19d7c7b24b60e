// Package testutil provides shared helpers for tests that need a real
// store. SQLite needs no running server, so unlike a Postgres-backed
// setup these helpers never skip — every test gets its own throwaway
// database file with all migrations applied.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/pkordes/placetrail/internal/repo"
)

// OpenDB opens a fresh SQLite store in the test's temp directory with all
// embedded migrations applied. The store is closed automatically when the
// test (and all its subtests) finish.
//
// Each call returns an independent database file, giving free per-test
// isolation without any manual cleanup.
func OpenDB(t *testing.T) *repo.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "placetrail.db")
	db, err := repo.Open(path)
	if err != nil {
		t.Fatalf("testutil.OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
