// Package sync bridges the local entity store to the remote multi-device
// synchronization service. It owns the outbound push of field deltas, the
// inbound merge under the field-level conflict policy, and the coarse
// status signal the UI consumes.
//
// The package never implements its own transport: the managed service is
// reached through the [Remote] interface, and everything here works the
// same whether the other end is the hosted service or the in-process
// [Loopback] used in development and tests.
package sync

import (
	"context"
	"fmt"
	"strconv"
	gosync "sync"

	"github.com/pkordes/placetrail/internal/domain"
)

// Remote is one device's session with the managed synchronization service.
// The dataset behind it is private to a single user; cross-user visibility
// is the service's problem, not this package's.
//
// Cursors are opaque: pass the cursor returned by the previous Pull to get
// only the changes since then. The empty cursor means "from the beginning".
type Remote interface {
	// Push transmits local field deltas to the service.
	Push(ctx context.Context, changes []domain.Change) error

	// Pull returns changes made by other devices since cursor, plus the
	// next cursor. The device's own pushes are never returned.
	Pull(ctx context.Context, cursor string) ([]domain.Change, string, error)

	// Notifications signals that other devices have pushed new changes.
	// Signals coalesce; receiving one means "pull now", not "one change".
	Notifications() <-chan struct{}

	// Ping probes service reachability. Callers bound it with a context
	// timeout; an error (including deadline) means offline, nothing worse.
	Ping(ctx context.Context) error
}

// Loopback is an in-process stand-in for the managed service: one instance
// is one user's private dataset, and every client attached to it is one of
// that user's devices. Two engines attached to the same Loopback behave
// like two devices syncing through the real service, which is exactly what
// the multi-device tests need.
type Loopback struct {
	mu      gosync.Mutex
	feed    []loopbackEntry
	clients []*LoopbackClient
	nextID  int
}

type loopbackEntry struct {
	device int
	change domain.Change
}

// NewLoopback creates an empty dataset with no attached devices.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Attach registers a new device and returns its session.
func (l *Loopback) Attach() *LoopbackClient {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := &LoopbackClient{
		hub:      l,
		device:   l.nextID,
		notified: make(chan struct{}, 1),
	}
	l.nextID++
	l.clients = append(l.clients, c)
	return c
}

func (l *Loopback) push(device int, changes []domain.Change) {
	l.mu.Lock()
	for _, c := range changes {
		l.feed = append(l.feed, loopbackEntry{device: device, change: c})
	}
	clients := make([]*LoopbackClient, len(l.clients))
	copy(clients, l.clients)
	l.mu.Unlock()

	for _, c := range clients {
		if c.device == device {
			continue
		}
		select {
		case c.notified <- struct{}{}:
		default:
		}
	}
}

func (l *Loopback) pull(device int, cursor string) ([]domain.Change, string, error) {
	from := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("loopback: bad cursor %q: %w", cursor, err)
		}
		from = n
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if from > len(l.feed) {
		from = len(l.feed)
	}
	var out []domain.Change
	for _, entry := range l.feed[from:] {
		if entry.device == device {
			continue
		}
		out = append(out, entry.change)
	}
	return out, strconv.Itoa(len(l.feed)), nil
}

// LoopbackClient is one device's session with a Loopback dataset.
type LoopbackClient struct {
	hub      *Loopback
	device   int
	notified chan struct{}
}

var _ Remote = (*LoopbackClient)(nil)

func (c *LoopbackClient) Push(ctx context.Context, changes []domain.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.hub.push(c.device, changes)
	return nil
}

func (c *LoopbackClient) Pull(ctx context.Context, cursor string) ([]domain.Change, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	return c.hub.pull(c.device, cursor)
}

func (c *LoopbackClient) Notifications() <-chan struct{} {
	return c.notified
}

func (c *LoopbackClient) Ping(ctx context.Context) error {
	return ctx.Err()
}
