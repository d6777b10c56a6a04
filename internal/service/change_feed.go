package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quillsync/internal/domain"
	"quillsync/internal/repository"
)

// DefaultStaleWindow bounds how far an event's modified_date may lag
// behind its receipt before the event is discarded instead of applied.
// A full run covers the same documents, so applying long-delayed events
// would only risk reordering against newer feed traffic.
const DefaultStaleWindow = 5 * time.Minute

// ChangeFeed consumes the remote store's continuous change stream and
// applies incoming batches through the sync engine's merge rule, keeping
// the local store current between full runs. Batches are dropped, never
// queued, when a full run is in flight or the batch is stale; the next
// full run reconciles whatever was skipped.
type ChangeFeed struct {
	remote       repository.RemoteStore
	engine       *SyncEngine
	notes        repository.NoteRepository
	session      Session
	logger       *slog.Logger
	deviceID     string
	deletePolicy domain.RemoteDeletePolicy
	staleWindow  time.Duration
}

// NewChangeFeed wires the feed to its collaborators.
func NewChangeFeed(
	remote repository.RemoteStore,
	engine *SyncEngine,
	notes repository.NoteRepository,
	session Session,
	deviceID string,
	deletePolicy domain.RemoteDeletePolicy,
	logger *slog.Logger,
) *ChangeFeed {
	return &ChangeFeed{
		remote:       remote,
		engine:       engine,
		notes:        notes,
		session:      session,
		logger:       logger.With("component", "change_feed"),
		deviceID:     deviceID,
		deletePolicy: deletePolicy,
		staleWindow:  DefaultStaleWindow,
	}
}

// SetStaleWindow overrides the default staleness cutoff.
func (f *ChangeFeed) SetStaleWindow(d time.Duration) {
	f.staleWindow = d
}

// Run subscribes to the change stream for the current principal and
// applies batches until ctx is cancelled or the subscription fails.
func (f *ChangeFeed) Run(ctx context.Context) error {
	if !f.session.IsAuthenticated() {
		return ErrNotSignedIn
	}
	ownerID := f.session.OwnerID()

	sub, err := f.remote.Changes(ctx, ownerID)
	if err != nil {
		return err
	}
	defer sub.Close()

	f.logger.Info("change feed started", "owner_id", ownerID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return nil
			}
			f.HandleBatch(ctx, batch)
		}
	}
}

// HandleBatch filters and applies one batch. Exported for the full-run
// path in tests; errors are logged, never returned, so one bad batch
// cannot stop the feed.
func (f *ChangeFeed) HandleBatch(ctx context.Context, batch domain.ChangeBatch) {
	var upserts []repository.RemoteNote
	var removals []string
	for _, ev := range batch.Events {
		switch ev.Type {
		case domain.ChangeRemoved:
			removals = append(removals, ev.DocID)
		default:
			if ev.Doc == nil {
				continue
			}
			// Skip echoes of this device's own writes.
			if ev.Doc.DeviceID == f.deviceID {
				continue
			}
			// Skip events whose edit long predates receipt; the next
			// full run covers them.
			if age := batch.ReceivedAt - ev.Doc.ModifiedDate; age > f.staleWindow.Milliseconds() {
				f.logger.Warn("dropping stale change event",
					"doc_id", ev.DocID, "age_ms", age)
				continue
			}
			upserts = append(upserts, repository.RemoteNote{ID: ev.DocID, Doc: *ev.Doc})
		}
	}

	if len(upserts) > 0 {
		downloaded, applied, err := f.engine.MergeBatch(ctx, upserts)
		if err != nil {
			f.logger.Warn("failed to apply change batch", "error", err)
		} else if !applied {
			f.logger.Debug("dropping change batch, full run in flight",
				"events", len(upserts))
		} else if downloaded > 0 {
			f.logger.Info("applied change batch", "downloaded", downloaded)
		}
	}

	for _, docID := range removals {
		if err := f.applyRemoval(ctx, docID); err != nil {
			f.logger.Warn("failed to apply remote removal",
				"doc_id", docID, "error", err)
		}
	}
}

// applyRemoval handles a remote deletion per the configured policy.
func (f *ChangeFeed) applyRemoval(ctx context.Context, docID string) error {
	if f.deletePolicy == domain.RemoteDeleteIgnore {
		return nil
	}

	local, err := f.notes.FindByCloudID(ctx, docID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch f.deletePolicy {
	case domain.RemoteDeleteTrash:
		local.IsTrashed = true
		local.NeedsSync = false
		_, err := f.notes.UpsertOne(ctx, local)
		return err
	case domain.RemoteDeletePurge:
		return f.notes.DeletePermanent(ctx, local.LocalID)
	}
	return nil
}

// MergeBatch applies a change-feed batch through the merge rule unless a
// full run is in flight, in which case the batch is skipped and applied
// reports false.
func (e *SyncEngine) MergeBatch(ctx context.Context, remoteNotes []repository.RemoteNote) (downloaded int, applied bool, err error) {
	if !e.running.CompareAndSwap(false, true) {
		return 0, false, nil
	}
	defer e.running.Store(false)

	downloaded, _, _, err = e.MergeRemoteNotes(ctx, remoteNotes)
	return downloaded, true, err
}
