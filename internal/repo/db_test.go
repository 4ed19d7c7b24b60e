package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/internal/repo"
	"github.com/pkordes/placetrail/testutil"
)

// ---- Open ------------------------------------------------------------------

func TestOpen_EmptyPath(t *testing.T) {
	_, err := repo.Open("   ")

	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestOpen_BadDirectory(t *testing.T) {
	_, err := repo.Open("/nonexistent-dir/placetrail.db")

	assert.ErrorIs(t, err, domain.ErrStorage)
}

// ---- Commit ----------------------------------------------------------------

func TestDB_Commit_AllOrNothing(t *testing.T) {
	db := testutil.OpenDB(t)
	places := repo.NewPlaceRepo(db)

	// A commit whose callback fails must leave no trace of its earlier
	// statements.
	boom := assert.AnError
	err := db.Commit(context.Background(), func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(context.Background(),
			`INSERT INTO trips (id, name, description, created_at, updated_at)
			 VALUES ('11111111-1111-1111-1111-111111111111', 'Doomed', '', ?, ?)`,
			time.Now().UTC().Format(time.RFC3339Nano),
			time.Now().UTC().Format(time.RFC3339Nano))
		require.NoError(t, execErr)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	trips, listErr := repo.NewTripRepo(db).List(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, trips)

	// The store keeps accepting writes after a rolled-back commit.
	_, err = places.Create(context.Background(), newPlace("Still Works"))
	require.NoError(t, err)
}

func TestDB_Commit_SignalsChanges(t *testing.T) {
	db := testutil.OpenDB(t)
	places := repo.NewPlaceRepo(db)

	_, err := places.Create(context.Background(), newPlace("Bondi Beach"))
	require.NoError(t, err)

	select {
	case <-db.Changes():
	case <-time.After(time.Second):
		t.Fatal("expected a change signal after a successful commit")
	}
}

func TestDB_Commit_AfterClose(t *testing.T) {
	path := t.TempDir() + "/placetrail.db"
	db, err := repo.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = db.Commit(context.Background(), func(tx *sql.Tx) error { return nil })

	assert.ErrorIs(t, err, domain.ErrStorage)
}

// ---- ResetAll --------------------------------------------------------------

func TestDB_ResetAll_WipesEverything(t *testing.T) {
	db := testutil.OpenDB(t)
	places := repo.NewPlaceRepo(db)
	trips := repo.NewTripRepo(db)

	mustCreatePlace(t, places, newPlace("Bondi Beach"))
	mustCreateTrip(t, trips, newTrip("Sydney Long Weekend"))

	require.NoError(t, db.ResetAll(context.Background()))

	gotPlaces, err := places.List(context.Background(), domain.PlaceFilter{})
	require.NoError(t, err)
	assert.Empty(t, gotPlaces)

	gotTrips, err := trips.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotTrips)

	// The pending queue is gone too; nothing from before the reset may ever
	// be pushed.
	assert.Empty(t, unpushed(t, db))
}

// ---- two stores ------------------------------------------------------------

func TestOpen_TwoStoresAreIndependent(t *testing.T) {
	dbA := testutil.OpenDB(t)
	dbB := testutil.OpenDB(t)

	placesA := repo.NewPlaceRepo(dbA)
	placesB := repo.NewPlaceRepo(dbB)

	mustCreatePlace(t, placesA, newPlace("Only In A"))

	gotB, err := placesB.List(context.Background(), domain.PlaceFilter{})
	require.NoError(t, err)
	assert.Empty(t, gotB)
}
