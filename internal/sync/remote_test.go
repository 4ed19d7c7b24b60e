package sync_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/placetrail/internal/domain"
	"github.com/pkordes/placetrail/internal/sync"
)

func placeCreateChange() domain.Change {
	return domain.Change{
		Kind:     domain.KindPlace,
		EntityID: uuid.New(),
		Op:       domain.OpCreate,
		Fields:   map[string]any{"name": "Bondi Beach"},
		At:       time.Now().UTC(),
	}
}

func TestLoopback_PullSkipsOwnPushes(t *testing.T) {
	hub := sync.NewLoopback()
	devA := hub.Attach()
	devB := hub.Attach()

	change := placeCreateChange()
	require.NoError(t, devA.Push(context.Background(), []domain.Change{change}))

	own, _, err := devA.Pull(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, own)

	others, _, err := devB.Pull(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, change.EntityID, others[0].EntityID)
}

func TestLoopback_CursorAdvances(t *testing.T) {
	hub := sync.NewLoopback()
	devA := hub.Attach()
	devB := hub.Attach()

	require.NoError(t, devA.Push(context.Background(), []domain.Change{placeCreateChange()}))

	first, cursor, err := devB.Pull(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Nothing new since the cursor.
	second, cursor2, err := devB.Pull(context.Background(), cursor)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, cursor, cursor2)

	require.NoError(t, devA.Push(context.Background(), []domain.Change{placeCreateChange()}))

	third, _, err := devB.Pull(context.Background(), cursor2)
	require.NoError(t, err)
	assert.Len(t, third, 1)
}

func TestLoopback_BadCursor(t *testing.T) {
	hub := sync.NewLoopback()
	dev := hub.Attach()

	_, _, err := dev.Pull(context.Background(), "not-a-number")

	assert.Error(t, err)
}

func TestLoopback_NotifiesOtherDevicesOnly(t *testing.T) {
	hub := sync.NewLoopback()
	devA := hub.Attach()
	devB := hub.Attach()

	require.NoError(t, devA.Push(context.Background(), []domain.Change{placeCreateChange()}))

	select {
	case <-devB.Notifications():
	case <-time.After(time.Second):
		t.Fatal("expected a notification on the other device")
	}

	select {
	case <-devA.Notifications():
		t.Fatal("a device must not be notified of its own push")
	default:
	}
}
