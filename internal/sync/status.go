package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"
)

// Status is the coarse sync state shown to the user.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

const (
	// statusResetDelay is how long a terminal status (synced/error) stays
	// visible before the indicator drops back to idle.
	statusResetDelay = 3 * time.Second

	// probeTimeout bounds a single reachability probe. Hitting it means
	// "offline", never "error".
	probeTimeout = 3 * time.Second
)

// StatusUpdate is one published snapshot of the sync indicator.
type StatusUpdate struct {
	Status  Status    `json:"status"`
	Message string    `json:"message,omitempty"`
	Online  bool      `json:"online"`
	At      time.Time `json:"at"`
}

// Monitor folds engine lifecycle events into the idle → syncing →
// {synced | error} → idle state machine and republishes each transition to
// its subscribers. Terminal states auto-reset to idle after a fixed delay
// unless a newer event supersedes the pending reset.
type Monitor struct {
	mu      gosync.Mutex
	current StatusUpdate
	timer   *time.Timer
	subs    map[int]chan StatusUpdate
	nextSub int

	resetDelay time.Duration
	log        *slog.Logger
}

// NewMonitor creates a Monitor. resetDelay <= 0 selects the default 3 s
// auto-reset window; tests shorten it instead of mocking time.
func NewMonitor(logger *slog.Logger, resetDelay time.Duration) *Monitor {
	if resetDelay <= 0 {
		resetDelay = statusResetDelay
	}
	return &Monitor{
		current:    StatusUpdate{Status: StatusIdle, At: time.Now().UTC()},
		subs:       map[int]chan StatusUpdate{},
		resetDelay: resetDelay,
		log:        logger,
	}
}

// Run consumes engine events until ctx is cancelled or the channel closes.
func (m *Monitor) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Apply(ev)
		}
	}
}

// Apply folds one lifecycle event into the state machine:
// no end time yet means a pass is in flight (syncing); a completion with no
// error means synced; a completion with an error means error(message).
func (m *Monitor) Apply(ev Event) {
	m.mu.Lock()

	update := m.current
	update.At = time.Now().UTC()
	switch {
	case ev.EndedAt == nil:
		update.Status = StatusSyncing
		update.Message = ""
	case ev.Err != nil:
		update.Status = StatusError
		update.Message = ev.Err.Error()
	default:
		update.Status = StatusSynced
		update.Message = ""
	}

	m.setLocked(update)

	// A terminal status schedules a fall back to idle; any newer event
	// cancels the stale reset so resets never stack.
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if update.Status == StatusSynced || update.Status == StatusError {
		m.timer = time.AfterFunc(m.resetDelay, m.resetToIdle)
	}
	m.mu.Unlock()
}

func (m *Monitor) resetToIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Status != StatusSynced && m.current.Status != StatusError {
		return
	}
	update := m.current
	update.Status = StatusIdle
	update.Message = ""
	update.At = time.Now().UTC()
	m.setLocked(update)
}

// SetOnline publishes the coarse reachability flag alongside the status.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Online == online {
		return
	}
	update := m.current
	update.Online = online
	update.At = time.Now().UTC()
	m.setLocked(update)
}

// Current returns the latest published snapshot.
func (m *Monitor) Current() StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers a consumer of status updates and returns its channel
// plus a cancel function. Publishing is latest-wins: a subscriber that
// stops draining loses old updates, never blocks the monitor.
func (m *Monitor) Subscribe() (<-chan StatusUpdate, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan StatusUpdate, 8)
	ch <- m.current
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// setLocked records and fans out an update. Callers hold m.mu.
func (m *Monitor) setLocked(update StatusUpdate) {
	m.current = update
	for _, ch := range m.subs {
		for {
			select {
			case ch <- update:
			default:
				// Full buffer: drop the oldest pending update and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// RunProbe periodically checks service reachability on a background
// goroutine with a bounded wait, so it never blocks UI-facing calls. Late
// results are simply superseded by the next probe.
func (m *Monitor) RunProbe(ctx context.Context, remote Remote, interval time.Duration) {
	if remote == nil {
		m.SetOnline(false)
		return
	}

	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		err := remote.Ping(probeCtx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.log.Debug("reachability probe failed", "error", err)
		}
		m.SetOnline(err == nil)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}
