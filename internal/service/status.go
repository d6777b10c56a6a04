package service

import (
	"sync"

	"quillsync/internal/domain"
)

// StatusTracker holds the observable sync state plus the time of the last
// successful run, and fans state transitions out to subscribers (the
// websocket hub, tests). Slow subscribers miss intermediate transitions
// rather than blocking the engine.
type StatusTracker struct {
	mu       sync.RWMutex
	state    domain.SyncState
	lastSync *int64
	subs     map[int]chan domain.SyncStatus
	nextID   int
}

// NewStatusTracker starts in the Idle state.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		state: domain.SyncStateIdle,
		subs:  make(map[int]chan domain.SyncStatus),
	}
}

// Set records a state transition and notifies subscribers.
func (t *StatusTracker) Set(state domain.SyncState) {
	t.mu.Lock()
	t.state = state
	status := t.statusLocked()
	subs := make([]chan domain.SyncStatus, 0, len(t.subs))
	for _, ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// MarkSynced records the completion time of a successful run.
func (t *StatusTracker) MarkSynced(nowMillis int64) {
	t.mu.Lock()
	t.lastSync = &nowMillis
	t.mu.Unlock()
}

// Status returns the current observable status.
func (t *StatusTracker) Status() domain.SyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statusLocked()
}

func (t *StatusTracker) statusLocked() domain.SyncStatus {
	status := domain.SyncStatus{State: t.state}
	if t.lastSync != nil {
		ts := *t.lastSync
		status.LastSyncTime = &ts
	}
	return status
}

// Subscribe registers a status listener. The returned cancel function
// removes the subscription and closes the channel.
func (t *StatusTracker) Subscribe() (<-chan domain.SyncStatus, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	ch := make(chan domain.SyncStatus, 16)
	t.subs[id] = ch

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
