package service

import "errors"

var (
	// ErrNotSignedIn means no valid session exists; synchronization is not
	// attempted.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrNoConnection means the remote store is unreachable;
	// synchronization is not attempted.
	ErrNoConnection = errors.New("no connection")

	// ErrSyncInProgress is returned when Synchronize is called while a
	// run is already in flight.
	ErrSyncInProgress = errors.New("synchronization already in progress")

	// ErrSyncDebounced is returned when Synchronize is called again too
	// soon after the previous run started.
	ErrSyncDebounced = errors.New("synchronization debounced")

	// ErrLocked is returned when a locked note is mutated without the
	// correct passcode.
	ErrLocked = errors.New("note is locked")

	// ErrBadPasscode is returned when a lock passcode does not match.
	ErrBadPasscode = errors.New("incorrect passcode")
)
