package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/internal/repo"
)

// EventType names the sync activity a lifecycle event belongs to.
// "import" is an inbound pull/merge pass, "export" an outbound push,
// "setup" the initial session configuration.
type EventType string

const (
	EventSetup  EventType = "setup"
	EventImport EventType = "import"
	EventExport EventType = "export"
)

// Event is one sync lifecycle transition. An event with no EndedAt marks
// the start of a pass; the matching completion event carries EndedAt and,
// on failure, Err.
type Event struct {
	Type      EventType
	StartedAt time.Time
	EndedAt   *time.Time
	Err       error
}

// defaultDebounce batches rapid consecutive local commits into one push.
const defaultDebounce = 500 * time.Millisecond

// Engine drives synchronization for one store instance. Local commits
// (signalled by the store) schedule a debounced push of pending change-log
// deltas; remote notifications trigger a pull/merge pass. All merges are
// applied through the store's writer, so they serialize with local edits.
//
// The engine is purely notification-driven — no polling loop — and a sync
// failure only ever degrades the status signal; the store itself keeps
// accepting reads and writes.
type Engine struct {
	localChanges <-chan struct{}
	places       repo.PlaceRepo
	trips        repo.TripRepo
	changeLog    repo.ChangeLogRepo
	remote       Remote
	log          *slog.Logger

	debounce time.Duration
	cursor   string
	events   chan Event
	manual   chan chan error
}

// NewEngine wires an Engine to one store's repos and change signal. remote
// may be nil, in which case the store runs local-only: Run still consumes
// signals but never transmits, and SyncNow reports domain.ErrSyncUnavailable.
func NewEngine(db *repo.DB, places repo.PlaceRepo, trips repo.TripRepo, changeLog repo.ChangeLogRepo, remote Remote, logger *slog.Logger) *Engine {
	return &Engine{
		localChanges: db.Changes(),
		places:       places,
		trips:        trips,
		changeLog:    changeLog,
		remote:       remote,
		log:          logger,
		debounce:     defaultDebounce,
		events:       make(chan Event, 32),
		manual:       make(chan chan error),
	}
}

// Events returns the lifecycle event stream consumed by the status monitor.
// The channel is buffered; if a consumer falls far behind, the oldest
// events are dropped rather than blocking sync work.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// SyncNow forces an immediate push-then-pull cycle, bypassing the debounce.
// It backs the UI's "force sync" action. Returns the first error of the
// cycle, or domain.ErrSyncUnavailable when the engine is not running or has
// no remote.
func (e *Engine) SyncNow(ctx context.Context) error {
	if e.remote == nil {
		return fmt.Errorf("sync.Engine.SyncNow: %w: no remote configured", domain.ErrSyncUnavailable)
	}
	res := make(chan error, 1)
	select {
	case e.manual <- res:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes sync triggers until ctx is cancelled. It never returns a
// transport error — those surface as error events — only ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	if e.remote == nil {
		e.log.Info("sync disabled, store runs local-only")
		<-ctx.Done()
		return ctx.Err()
	}

	e.setup(ctx)

	// Resume the pull position of the previous run so restarts stay
	// incremental instead of re-walking the whole feed.
	if cur, err := e.changeLog.Cursor(ctx); err != nil {
		e.log.Error("loading pull cursor", "error", err)
	} else {
		e.cursor = cur
	}

	var (
		pushTimer *time.Timer
		pushC     <-chan time.Time
	)
	armPush := func() {
		if pushTimer == nil {
			pushTimer = time.NewTimer(e.debounce)
			pushC = pushTimer.C
			return
		}
		if !pushTimer.Stop() {
			select {
			case <-pushTimer.C:
			default:
			}
		}
		pushTimer.Reset(e.debounce)
	}

	// Catch up on anything left unpushed or unpulled from a previous run.
	e.pull(ctx)
	e.push(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()

		case <-e.localChanges:
			armPush()

		case <-pushC:
			pushC = nil
			if err := e.push(ctx); err != nil {
				e.log.Error("push failed", "error", err)
			}

		case <-e.remote.Notifications():
			if err := e.pull(ctx); err != nil {
				e.log.Error("pull failed", "error", err)
			}

		case res := <-e.manual:
			err := e.push(ctx)
			if pullErr := e.pull(ctx); err == nil {
				err = pullErr
			}
			res <- err
		}
	}
}

// setup emits the session-configuration lifecycle pair. With a Remote
// already constructed there is nothing left that can fail locally, so the
// completion follows immediately; a real service client would do its
// handshake between the two events.
func (e *Engine) setup(ctx context.Context) {
	start := time.Now().UTC()
	e.emit(Event{Type: EventSetup, StartedAt: start})
	end := time.Now().UTC()
	e.emit(Event{Type: EventSetup, StartedAt: start, EndedAt: &end, Err: ctx.Err()})
}

// push transmits all unpushed change-log deltas, coalesced per record.
// No pending changes means no events and no traffic.
func (e *Engine) push(ctx context.Context) error {
	pending, err := e.changeLog.Unpushed(ctx)
	if err != nil {
		return fmt.Errorf("sync.Engine.push: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	start := time.Now().UTC()
	e.emit(Event{Type: EventExport, StartedAt: start})

	changes, maxSeq := coalesce(pending)
	if err := e.remote.Push(ctx, changes); err != nil {
		err = fmt.Errorf("sync.Engine.push: %w: %v", domain.ErrSyncUnavailable, err)
		e.complete(EventExport, start, err)
		return err
	}
	if err := e.changeLog.MarkPushed(ctx, maxSeq); err != nil {
		err = fmt.Errorf("sync.Engine.push: %w", err)
		e.complete(EventExport, start, err)
		return err
	}

	e.log.Debug("pushed local changes", "records", len(changes), "deltas", len(pending))
	e.complete(EventExport, start, nil)
	return nil
}

// pull fetches changes from other devices and merges them into the store
// under the field-level policy: each inbound delta overwrites exactly the
// fields it names. Overlaps with unpushed local edits are resolved in favor
// of the inbound side and reported as informational conflicts.
//
// A delta that cannot be applied (malformed field from a newer peer) is
// skipped and logged rather than failing the pass; the cursor still
// advances, so one bad record degrades per-record instead of blocking
// every future merge.
func (e *Engine) pull(ctx context.Context) error {
	start := time.Now().UTC()
	e.emit(Event{Type: EventImport, StartedAt: start})

	changes, cursor, err := e.remote.Pull(ctx, e.cursor)
	if err != nil {
		err = fmt.Errorf("sync.Engine.pull: %w: %v", domain.ErrSyncUnavailable, err)
		e.complete(EventImport, start, err)
		return err
	}

	conflicts, skipped := 0, 0
	for _, change := range changes {
		conflicts += e.reportConflicts(ctx, change)
		if err := e.apply(ctx, change); err != nil {
			skipped++
			e.log.Error("skipping unmergeable change",
				"kind", change.Kind, "id", change.EntityID, "error", err)
		}
	}
	e.cursor = cursor
	if err := e.changeLog.SetCursor(ctx, cursor); err != nil {
		e.log.Error("persisting pull cursor", "error", err)
	}

	if len(changes) > 0 || conflicts > 0 {
		e.log.Info("merged remote changes",
			"changes", len(changes), "conflicts", conflicts, "skipped", skipped)
	}
	e.complete(EventImport, start, nil)
	return nil
}

func (e *Engine) apply(ctx context.Context, change domain.Change) error {
	switch change.Kind {
	case domain.KindPlace:
		return e.places.ApplyChange(ctx, change)
	case domain.KindTrip:
		return e.trips.ApplyChange(ctx, change)
	default:
		// A kind from a newer app version; skipping keeps older devices alive.
		e.log.Warn("skipping change of unknown kind", "kind", change.Kind)
		return nil
	}
}

// reportConflicts counts inbound fields that collide with unpushed local
// edits. Not an error: the policy resolves them (incoming side wins those
// fields) and the event is informational only.
func (e *Engine) reportConflicts(ctx context.Context, change domain.Change) int {
	pending, err := e.changeLog.PendingFields(ctx, change.Kind, change.EntityID)
	if err != nil || len(pending) == 0 {
		return 0
	}
	n := 0
	for field := range change.Fields {
		if pending[field] {
			n++
			e.log.Info("field conflict resolved by incoming change",
				"kind", change.Kind, "id", change.EntityID, "field", field)
		}
	}
	return n
}

func (e *Engine) complete(t EventType, start time.Time, err error) {
	end := time.Now().UTC()
	e.emit(Event{Type: t, StartedAt: start, EndedAt: &end, Err: err})
}

// emit publishes an event without ever blocking sync work: when the buffer
// is full the oldest event is discarded, since only the newest matters to
// a status indicator.
func (e *Engine) emit(ev Event) {
	for {
		select {
		case e.events <- ev:
			return
		default:
			select {
			case <-e.events:
			default:
			}
		}
	}
}

// coalesce folds the ordered change-log rows into at most one delta per
// record and returns the highest sequence number consumed. Later field
// values win within a record; a delete wins over everything; a create
// followed by updates stays a create carrying the merged fields.
func coalesce(pending []repo.LoggedChange) ([]domain.Change, int64) {
	type key struct {
		kind domain.EntityKind
		id   string
	}

	var (
		order  []key
		byKey  = map[key]*domain.Change{}
		maxSeq int64
	)
	for _, lc := range pending {
		if lc.Seq > maxSeq {
			maxSeq = lc.Seq
		}
		k := key{kind: lc.Kind, id: lc.EntityID.String()}
		cur, ok := byKey[k]
		if !ok {
			c := lc.Change
			byKey[k] = &c
			order = append(order, k)
			continue
		}

		cur.At = lc.At
		switch {
		case lc.Op == domain.OpDelete:
			cur.Op = domain.OpDelete
			cur.Fields = nil
		case cur.Op == domain.OpDelete:
			// Delete followed by re-create under the same id: the create
			// supersedes the delete.
			cur.Op = lc.Op
			cur.Fields = lc.Fields
		default:
			if cur.Fields == nil {
				cur.Fields = map[string]any{}
			}
			for f, v := range lc.Fields {
				cur.Fields[f] = v
			}
		}
	}

	out := make([]domain.Change, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out, maxSeq
}
