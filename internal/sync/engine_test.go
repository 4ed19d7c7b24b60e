package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/internal/repo"
)

// ---- harness ---------------------------------------------------------------

// device bundles one store with its running engine, standing in for one of a
// user's devices.
type device struct {
	db     *repo.DB
	places repo.PlaceRepo
	trips  repo.TripRepo
	engine *Engine
}

func newDevice(t *testing.T, remote Remote) *device {
	t.Helper()

	db, err := repo.Open(filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	places := repo.NewPlaceRepo(db)
	trips := repo.NewTripRepo(db)
	changeLog := repo.NewChangeLogRepo(db)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(db, places, trips, changeLog, remote, logger)
	engine.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = engine.Run(ctx) }()

	return &device{db: db, places: places, trips: trips, engine: engine}
}

func syncNow(t *testing.T, d *device) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.engine.SyncNow(ctx))
}

func beachPlace(name string) domain.Place {
	return domain.Place{
		Name:      name,
		Category:  domain.CategoryBeach,
		Latitude:  -33.8908,
		Longitude: 151.2743,
	}
}

// ---- two-device sync -------------------------------------------------------

func TestEngine_CreatePropagatesBetweenDevices(t *testing.T) {
	hub := NewLoopback()
	devA := newDevice(t, hub.Attach())
	devB := newDevice(t, hub.Attach())

	created, err := devA.places.Create(context.Background(), beachPlace("Bondi Beach"))
	require.NoError(t, err)

	syncNow(t, devA)

	require.Eventually(t, func() bool {
		got, err := devB.places.GetByID(context.Background(), created.ID)
		return err == nil && got.Name == "Bondi Beach"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEngine_FieldLevelMerge_BothEditsSurvive(t *testing.T) {
	hub := NewLoopback()
	devA := newDevice(t, hub.Attach())
	devB := newDevice(t, hub.Attach())

	created, err := devA.places.Create(context.Background(), beachPlace("Bondi Beach"))
	require.NoError(t, err)
	syncNow(t, devA)
	require.Eventually(t, func() bool {
		_, err := devB.places.GetByID(context.Background(), created.ID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// Concurrent edits to different fields of the same place: A rates it,
	// B renames it. Neither edit may be lost.
	onA, err := devA.places.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	onA.IsVisited = true
	onA.Rating = 4
	_, err = devA.places.Update(context.Background(), onA)
	require.NoError(t, err)

	onB, err := devB.places.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	onB.Name = "Bondi"
	_, err = devB.places.Update(context.Background(), onB)
	require.NoError(t, err)

	syncNow(t, devA)
	syncNow(t, devB)
	syncNow(t, devA)

	converged := func(p repo.PlaceRepo) bool {
		got, err := p.GetByID(context.Background(), created.ID)
		return err == nil && got.Name == "Bondi" && got.Rating == 4 && got.IsVisited
	}
	require.Eventually(t, func() bool {
		return converged(devA.places) && converged(devB.places)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEngine_DeletePropagates(t *testing.T) {
	hub := NewLoopback()
	devA := newDevice(t, hub.Attach())
	devB := newDevice(t, hub.Attach())

	created, err := devA.places.Create(context.Background(), beachPlace("Bondi Beach"))
	require.NoError(t, err)
	syncNow(t, devA)
	require.Eventually(t, func() bool {
		_, err := devB.places.GetByID(context.Background(), created.ID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, devA.places.Delete(context.Background(), created.ID))
	syncNow(t, devA)

	require.Eventually(t, func() bool {
		_, err := devB.places.GetByID(context.Background(), created.ID)
		return errors.Is(err, domain.ErrNotFound)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEngine_TripDeleteLeavesPlacesOnOtherDevice(t *testing.T) {
	hub := NewLoopback()
	devA := newDevice(t, hub.Attach())
	devB := newDevice(t, hub.Attach())

	trip, err := devA.trips.Create(context.Background(), domain.Trip{Name: "Sydney"})
	require.NoError(t, err)
	place := beachPlace("Bondi Beach")
	place.TripID = &trip.ID
	created, err := devA.places.Create(context.Background(), place)
	require.NoError(t, err)
	syncNow(t, devA)
	require.Eventually(t, func() bool {
		_, err := devB.places.GetByID(context.Background(), created.ID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, devA.trips.Delete(context.Background(), trip.ID))
	syncNow(t, devA)

	require.Eventually(t, func() bool {
		got, err := devB.places.GetByID(context.Background(), created.ID)
		if err != nil || got.TripID != nil {
			return false
		}
		_, err = devB.trips.GetByID(context.Background(), trip.ID)
		return errors.Is(err, domain.ErrNotFound)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEngine_TripAssignmentAfterRemoteDeleteConverges(t *testing.T) {
	hub := NewLoopback()
	devA := newDevice(t, hub.Attach())
	devB := newDevice(t, hub.Attach())

	trip, err := devA.trips.Create(context.Background(), domain.Trip{Name: "Sydney"})
	require.NoError(t, err)
	syncNow(t, devA)
	require.Eventually(t, func() bool {
		_, err := devB.trips.GetByID(context.Background(), trip.ID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// Concurrently: B assigns a new place to the trip while A deletes it.
	place := beachPlace("Bondi Beach")
	place.TripID = &trip.ID
	created, err := devB.places.Create(context.Background(), place)
	require.NoError(t, err)
	require.NoError(t, devA.trips.Delete(context.Background(), trip.ID))

	// A pulls an assignment referencing the trip it just deleted. The
	// delete wins; the merge must resolve, not fail.
	syncNow(t, devB)
	syncNow(t, devA)
	syncNow(t, devB)

	converged := func(d *device) bool {
		got, err := d.places.GetByID(context.Background(), created.ID)
		if err != nil || got.TripID != nil {
			return false
		}
		_, err = d.trips.GetByID(context.Background(), trip.ID)
		return errors.Is(err, domain.ErrNotFound)
	}
	require.Eventually(t, func() bool {
		return converged(devA) && converged(devB)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEngine_DebouncedPushWithoutManualSync(t *testing.T) {
	hub := NewLoopback()
	devA := newDevice(t, hub.Attach())
	devB := newDevice(t, hub.Attach())

	created, err := devA.places.Create(context.Background(), beachPlace("Bondi Beach"))
	require.NoError(t, err)

	// No SyncNow: the commit signal alone must schedule the push, and the
	// loopback notification must trigger B's pull.
	require.Eventually(t, func() bool {
		_, err := devB.places.GetByID(context.Background(), created.ID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

// ---- degraded modes --------------------------------------------------------

func TestEngine_SyncNow_NoRemote(t *testing.T) {
	devA := newDevice(t, nil)

	err := devA.engine.SyncNow(context.Background())

	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)
}

func TestEngine_LocalWritesSurviveRemoteFailure(t *testing.T) {
	devA := newDevice(t, &failingRemote{})

	created, err := devA.places.Create(context.Background(), beachPlace("Bondi Beach"))
	require.NoError(t, err)

	err = devA.engine.SyncNow(context.Background())
	assert.ErrorIs(t, err, domain.ErrSyncUnavailable)

	// The store is untouched by the failed push and the delta stays queued.
	got, err := devA.places.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bondi Beach", got.Name)

	pending, err := repo.NewChangeLogRepo(devA.db).Unpushed(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
}

func TestEngine_PullSkipsUnmergeableChange(t *testing.T) {
	good := domain.Change{
		Kind:     domain.KindPlace,
		EntityID: uuid.New(),
		Op:       domain.OpCreate,
		Fields:   map[string]any{"name": "Bondi Beach", "category": "beach"},
		At:       time.Now().UTC(),
	}
	bad := domain.Change{
		Kind:     domain.KindPlace,
		EntityID: uuid.New(),
		Op:       domain.OpCreate,
		Fields:   map[string]any{"name": float64(42)}, // name must be a string
		At:       time.Now().UTC(),
	}
	remote := &scriptedRemote{
		changes: []domain.Change{bad, good},
		cursors: make(chan string, 8),
	}
	dev := newDevice(t, remote)

	// The malformed delta is skipped, not fatal: the pass succeeds and the
	// deltas after it still land.
	syncNow(t, dev)

	got, err := dev.places.GetByID(context.Background(), good.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "Bondi Beach", got.Name)

	_, err = dev.places.GetByID(context.Background(), bad.EntityID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The cursor moved past the bad delta, so it is never re-pulled.
	cur, err := repo.NewChangeLogRepo(dev.db).Cursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "served", cur)
}

func TestEngine_ResumesFromPersistedCursor(t *testing.T) {
	db, err := repo.Open(filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	changeLog := repo.NewChangeLogRepo(db)
	require.NoError(t, changeLog.SetCursor(context.Background(), "42"))

	remote := &scriptedRemote{cursors: make(chan string, 8)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(db, repo.NewPlaceRepo(db), repo.NewTripRepo(db), changeLog, remote, logger)
	engine.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = engine.Run(ctx) }()

	select {
	case cur := <-remote.cursors:
		assert.Equal(t, "42", cur)
	case <-time.After(5 * time.Second):
		t.Fatal("engine never pulled")
	}
}

// scriptedRemote serves a canned set of changes on the first pull and
// records the cursor of every pull it sees.
type scriptedRemote struct {
	changes []domain.Change
	cursors chan string
}

func (r *scriptedRemote) Push(ctx context.Context, changes []domain.Change) error { return nil }
func (r *scriptedRemote) Pull(ctx context.Context, cursor string) ([]domain.Change, string, error) {
	select {
	case r.cursors <- cursor:
	default:
	}
	out := r.changes
	r.changes = nil
	return out, "served", nil
}
func (r *scriptedRemote) Notifications() <-chan struct{} { return nil }
func (r *scriptedRemote) Ping(ctx context.Context) error { return ctx.Err() }

var _ Remote = (*scriptedRemote)(nil)

// failingRemote refuses all traffic, simulating an unreachable service.
type failingRemote struct{}

func (f *failingRemote) Push(ctx context.Context, changes []domain.Change) error {
	return errors.New("service unreachable")
}
func (f *failingRemote) Pull(ctx context.Context, cursor string) ([]domain.Change, string, error) {
	return nil, "", errors.New("service unreachable")
}
func (f *failingRemote) Notifications() <-chan struct{} { return nil }
func (f *failingRemote) Ping(ctx context.Context) error { return errors.New("service unreachable") }

var _ Remote = (*failingRemote)(nil)

// ---- coalesce --------------------------------------------------------------

func TestCoalesce_MergesUpdatesPerRecord(t *testing.T) {
	id := uuid.New()
	pending := []repo.LoggedChange{
		{Seq: 1, Change: domain.Change{Kind: domain.KindPlace, EntityID: id, Op: domain.OpUpdate,
			Fields: map[string]any{"name": "First", "rating": 2}}},
		{Seq: 2, Change: domain.Change{Kind: domain.KindPlace, EntityID: id, Op: domain.OpUpdate,
			Fields: map[string]any{"name": "Second"}}},
	}

	changes, maxSeq := coalesce(pending)

	require.Len(t, changes, 1)
	assert.Equal(t, int64(2), maxSeq)
	assert.Equal(t, "Second", changes[0].Fields["name"])
	assert.Equal(t, 2, changes[0].Fields["rating"])
}

func TestCoalesce_DeleteWins(t *testing.T) {
	id := uuid.New()
	pending := []repo.LoggedChange{
		{Seq: 1, Change: domain.Change{Kind: domain.KindPlace, EntityID: id, Op: domain.OpCreate,
			Fields: map[string]any{"name": "Short Lived"}}},
		{Seq: 2, Change: domain.Change{Kind: domain.KindPlace, EntityID: id, Op: domain.OpUpdate,
			Fields: map[string]any{"rating": 3}}},
		{Seq: 3, Change: domain.Change{Kind: domain.KindPlace, EntityID: id, Op: domain.OpDelete}},
	}

	changes, maxSeq := coalesce(pending)

	require.Len(t, changes, 1)
	assert.Equal(t, int64(3), maxSeq)
	assert.Equal(t, domain.OpDelete, changes[0].Op)
	assert.Nil(t, changes[0].Fields)
}

func TestCoalesce_CreateAfterDeleteSupersedes(t *testing.T) {
	id := uuid.New()
	pending := []repo.LoggedChange{
		{Seq: 1, Change: domain.Change{Kind: domain.KindPlace, EntityID: id, Op: domain.OpDelete}},
		{Seq: 2, Change: domain.Change{Kind: domain.KindPlace, EntityID: id, Op: domain.OpCreate,
			Fields: map[string]any{"name": "Back Again"}}},
	}

	changes, _ := coalesce(pending)

	require.Len(t, changes, 1)
	assert.Equal(t, domain.OpCreate, changes[0].Op)
	assert.Equal(t, "Back Again", changes[0].Fields["name"])
}

func TestCoalesce_KeepsDistinctRecordsApart(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	pending := []repo.LoggedChange{
		{Seq: 1, Change: domain.Change{Kind: domain.KindPlace, EntityID: a, Op: domain.OpUpdate,
			Fields: map[string]any{"name": "A"}}},
		{Seq: 2, Change: domain.Change{Kind: domain.KindTrip, EntityID: b, Op: domain.OpUpdate,
			Fields: map[string]any{"name": "B"}}},
	}

	changes, maxSeq := coalesce(pending)

	require.Len(t, changes, 2)
	assert.Equal(t, int64(2), maxSeq)
}
