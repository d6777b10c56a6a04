package domain

// SyncState is the observable state of the sync engine.
type SyncState string

const (
	SyncStateIdle            SyncState = "idle"
	SyncStateConnecting      SyncState = "connecting"
	SyncStateAuthenticating  SyncState = "authenticating"
	SyncStateSyncingUp       SyncState = "syncing_up"
	SyncStateSyncingDown     SyncState = "syncing_down"
	SyncStateSuccess         SyncState = "success"
	SyncStateErrorConnection SyncState = "error_connection"
	SyncStateErrorAuth       SyncState = "error_auth"
	SyncStateErrorSync       SyncState = "error_sync"
	SyncStateCancelled       SyncState = "cancelled"
)

// Terminal reports whether the state ends a synchronization run.
func (s SyncState) Terminal() bool {
	switch s {
	case SyncStateSuccess, SyncStateErrorConnection, SyncStateErrorAuth,
		SyncStateErrorSync, SyncStateCancelled:
		return true
	}
	return false
}

// SyncResult summarizes one synchronization run for the UI collaborator.
//
// Conflicts counts remote overwrites of existing local records (merge rule
// "remote newer"), which approximates true concurrent-edit conflicts: a
// remote-newer overwrite of a clean local record is counted even though
// nothing diverged. Callers wanting stricter semantics can use
// DirtyConflicts, which counts only overwrites of records that were
// themselves awaiting upload at merge time.
type SyncResult struct {
	Uploaded       int    `json:"uploaded"`
	Downloaded     int    `json:"downloaded"`
	Conflicts      int    `json:"conflicts"`
	DirtyConflicts int    `json:"dirty_conflicts"`
	Success        bool   `json:"success"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// SyncStatus is the observable status value exposed alongside results.
// LastSyncTime is milliseconds since epoch, nil before the first
// successful run.
type SyncStatus struct {
	State        SyncState `json:"state"`
	LastSyncTime *int64    `json:"last_sync_time,omitempty"`
}

// RemoteDeletePolicy decides what a remote "removed" change event does to
// the linked local record. The behavior is deliberately configurable: the
// safe default is to ignore removals and leave cleanup to explicit user
// action.
type RemoteDeletePolicy string

const (
	RemoteDeleteIgnore RemoteDeletePolicy = "ignore"
	RemoteDeleteTrash  RemoteDeletePolicy = "trash"
	RemoteDeletePurge  RemoteDeletePolicy = "purge"
)

// ParseRemoteDeletePolicy maps a config string to a policy, falling back
// to ignore.
func ParseRemoteDeletePolicy(s string) RemoteDeletePolicy {
	switch RemoteDeletePolicy(s) {
	case RemoteDeleteTrash:
		return RemoteDeleteTrash
	case RemoteDeletePurge:
		return RemoteDeletePurge
	default:
		return RemoteDeleteIgnore
	}
}
