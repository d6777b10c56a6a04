package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quillsync/internal/domain"
)

func TestStatusTrackerStartsIdle(t *testing.T) {
	tracker := NewStatusTracker()
	status := tracker.Status()
	require.Equal(t, domain.SyncStateIdle, status.State)
	require.Nil(t, status.LastSyncTime)
}

func TestStatusTrackerSetAndMarkSynced(t *testing.T) {
	tracker := NewStatusTracker()

	tracker.Set(domain.SyncStateSyncingUp)
	require.Equal(t, domain.SyncStateSyncingUp, tracker.Status().State)

	tracker.MarkSynced(12345)
	tracker.Set(domain.SyncStateSuccess)

	status := tracker.Status()
	require.Equal(t, domain.SyncStateSuccess, status.State)
	require.NotNil(t, status.LastSyncTime)
	require.Equal(t, int64(12345), *status.LastSyncTime)
}

func TestStatusTrackerSubscribe(t *testing.T) {
	tracker := NewStatusTracker()
	updates, cancel := tracker.Subscribe()
	defer cancel()

	tracker.Set(domain.SyncStateConnecting)

	select {
	case status := <-updates:
		require.Equal(t, domain.SyncStateConnecting, status.State)
	case <-time.After(time.Second):
		t.Fatal("no status update received")
	}
}

func TestStatusTrackerCancelClosesChannel(t *testing.T) {
	tracker := NewStatusTracker()
	updates, cancel := tracker.Subscribe()

	cancel()
	_, open := <-updates
	require.False(t, open)

	// Further transitions must not panic after cancellation.
	tracker.Set(domain.SyncStateSuccess)
}

func TestSyncStateTerminal(t *testing.T) {
	require.True(t, domain.SyncStateSuccess.Terminal())
	require.True(t, domain.SyncStateCancelled.Terminal())
	require.True(t, domain.SyncStateErrorSync.Terminal())
	require.False(t, domain.SyncStateIdle.Terminal())
	require.False(t, domain.SyncStateSyncingDown.Terminal())
}
