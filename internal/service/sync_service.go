package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quillsync/internal/domain"
	"quillsync/internal/repository"
)

// Session is the authentication/connectivity collaborator consulted as a
// precondition of every synchronization run.
type Session interface {
	OwnerID() string
	IsAuthenticated() bool
	IsConnected(ctx context.Context) bool
}

// SyncEngine orchestrates bidirectional reconciliation between the local
// record store and the remote document store: upload of dirty records with
// duplicate resolution, download and merge of the owner's remote documents,
// and merge of incremental change-feed batches.
//
// Only one run is active at a time; re-entrant Synchronize calls are
// rejected, and calls arriving within the debounce window of the previous
// start are ignored. Two concurrent passes could otherwise both decide to
// create a remote document for the same dirty record, which is exactly the
// duplicate race this engine exists to prevent.
type SyncEngine struct {
	notes      repository.NoteRepository
	categories repository.CategoryRepository
	remote     repository.RemoteStore
	resolver   *DuplicateResolver
	session    Session
	status     *StatusTracker
	logger     *slog.Logger
	deviceID   string
	debounce   time.Duration

	running     atomic.Bool
	attemptMu   sync.Mutex
	lastAttempt time.Time

	// Snapshot of the last successful remote query, used as the cache
	// source when a later download cannot reach the server.
	cacheMu          sync.Mutex
	cachedNotes      []repository.RemoteNote
	cachedCategories []repository.RemoteCategory

	now func() time.Time
}

// DefaultDebounce is the window within which repeated Synchronize calls
// are ignored.
const DefaultDebounce = 5 * time.Second

// NewSyncEngine wires the engine to its stores and collaborators. All
// handles are injected; the engine owns no global state.
func NewSyncEngine(
	notes repository.NoteRepository,
	categories repository.CategoryRepository,
	remote repository.RemoteStore,
	resolver *DuplicateResolver,
	session Session,
	status *StatusTracker,
	deviceID string,
	logger *slog.Logger,
) *SyncEngine {
	return &SyncEngine{
		notes:      notes,
		categories: categories,
		remote:     remote,
		resolver:   resolver,
		session:    session,
		status:     status,
		logger:     logger.With("component", "sync"),
		deviceID:   deviceID,
		debounce:   DefaultDebounce,
		now:        time.Now,
	}
}

// SetDebounce overrides the default debounce window.
func (e *SyncEngine) SetDebounce(d time.Duration) {
	e.debounce = d
}

// Synchronize runs one upload-then-download reconciliation pass for the
// current principal. Uploads are strictly attempted before the download
// merge so a record created in this pass is not perceived as a duplicate
// of itself. Cancellation via ctx aborts further processing but never
// rolls back per-record writes already committed.
func (e *SyncEngine) Synchronize(ctx context.Context) (*domain.SyncResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	e.attemptMu.Lock()
	if e.now().Sub(e.lastAttempt) < e.debounce {
		e.attemptMu.Unlock()
		return nil, ErrSyncDebounced
	}
	e.lastAttempt = e.now()
	e.attemptMu.Unlock()

	result := &domain.SyncResult{}

	e.status.Set(domain.SyncStateConnecting)
	if !e.session.IsConnected(ctx) {
		e.status.Set(domain.SyncStateErrorConnection)
		result.ErrorMessage = ErrNoConnection.Error()
		return result, ErrNoConnection
	}

	e.status.Set(domain.SyncStateAuthenticating)
	if !e.session.IsAuthenticated() {
		e.status.Set(domain.SyncStateErrorAuth)
		result.ErrorMessage = ErrNotSignedIn.Error()
		return result, ErrNotSignedIn
	}
	ownerID := e.session.OwnerID()

	e.status.Set(domain.SyncStateSyncingUp)
	if err := e.uploadCategories(ctx, ownerID); err != nil {
		return e.fail(result, err)
	}
	if err := e.uploadNotes(ctx, ownerID, result); err != nil {
		return e.fail(result, err)
	}

	e.status.Set(domain.SyncStateSyncingDown)
	e.downloadCategories(ctx, ownerID)

	remoteNotes, err := e.fetchRemoteNotes(ctx, ownerID)
	if err != nil {
		// Degraded result: the upload already happened and its counts
		// stand; only the download phase failed.
		e.logger.Error("download phase failed", "error", err)
		e.status.Set(domain.SyncStateErrorSync)
		result.ErrorMessage = err.Error()
		return result, nil
	}

	downloaded, conflicts, dirtyConflicts, err := e.MergeRemoteNotes(ctx, remoteNotes)
	result.Downloaded += downloaded
	result.Conflicts += conflicts
	result.DirtyConflicts += dirtyConflicts
	if err != nil {
		return e.fail(result, err)
	}

	result.Success = true
	e.status.MarkSynced(e.now().UnixMilli())
	e.status.Set(domain.SyncStateSuccess)
	e.logger.Info("synchronization complete",
		"uploaded", result.Uploaded,
		"downloaded", result.Downloaded,
		"conflicts", result.Conflicts)
	return result, nil
}

func (e *SyncEngine) fail(result *domain.SyncResult, err error) (*domain.SyncResult, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		e.status.Set(domain.SyncStateCancelled)
		result.ErrorMessage = "cancelled"
		return result, err
	}
	e.status.Set(domain.SyncStateErrorSync)
	result.ErrorMessage = err.Error()
	return result, err
}

// uploadNotes pushes every dirty note. Records are processed
// independently: one failed upload is logged and skipped, never aborting
// the batch.
func (e *SyncEngine) uploadNotes(ctx context.Context, ownerID string, result *domain.SyncResult) error {
	dirty, err := e.notes.GetDirty(ctx)
	if err != nil {
		return err
	}
	for _, note := range dirty {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.uploadNote(ctx, ownerID, note); err != nil {
			e.logger.Warn("failed to upload note",
				"local_id", note.LocalID, "error", err)
			continue
		}
		result.Uploaded++
	}
	return nil
}

func (e *SyncEngine) uploadNote(ctx context.Context, ownerID string, note *domain.Note) error {
	docID, err := e.resolver.Resolve(ctx, note, ownerID)
	if err != nil {
		return err
	}

	doc := note.Document(e.categoryCloudID(ctx, note.CategoryRef), e.deviceID)
	doc.OwnerID = ownerID

	if docID != "" {
		// An equivalent document exists: link first, then update it.
		if note.CloudID != docID {
			if err := e.notes.SetCloudLink(ctx, note.LocalID, docID); err != nil {
				return err
			}
			note.CloudID = docID
		}
		if _, err := e.remote.PutNote(ctx, docID, doc); err != nil {
			return err
		}
	} else {
		generated, err := e.remote.PutNote(ctx, "", doc)
		if err != nil {
			return err
		}
		if err := e.notes.SetCloudLink(ctx, note.LocalID, generated); err != nil {
			return err
		}
		note.CloudID = generated
	}

	return e.notes.SetSyncFlag(ctx, note.LocalID, false)
}

// uploadCategories pushes dirty categories ahead of notes so note
// documents can reference their category's cloud id. Dedup is exact name
// match only.
func (e *SyncEngine) uploadCategories(ctx context.Context, ownerID string) error {
	dirty, err := e.categories.GetDirty(ctx)
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	remoteCats, err := e.remote.CategoriesByOwner(ctx, ownerID)
	if err != nil {
		e.logger.Warn("failed to list remote categories, skipping category upload", "error", err)
		return nil
	}
	byName := make(map[string]string, len(remoteCats))
	for _, rc := range remoteCats {
		byName[rc.Doc.Name] = rc.ID
	}

	for _, category := range dirty {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.uploadCategory(ctx, ownerID, category, byName); err != nil {
			e.logger.Warn("failed to upload category",
				"local_id", category.LocalID, "error", err)
		}
	}
	return nil
}

func (e *SyncEngine) uploadCategory(ctx context.Context, ownerID string, category *domain.Category, byName map[string]string) error {
	docID := category.CloudID
	if docID == "" {
		docID = byName[category.Name]
	}

	doc := category.Document(e.deviceID)
	doc.OwnerID = ownerID

	generated, err := e.remote.PutCategory(ctx, docID, doc)
	if err != nil {
		return err
	}
	if category.CloudID != generated {
		if err := e.categories.SetCloudLink(ctx, category.LocalID, generated); err != nil {
			return err
		}
		category.CloudID = generated
	}
	return e.categories.SetSyncFlag(ctx, category.LocalID, false)
}

// downloadCategories merges the owner's remote categories. Failures are
// logged and do not abort the note download; an unresolved category on an
// incoming note simply yields a nil category reference.
func (e *SyncEngine) downloadCategories(ctx context.Context, ownerID string) {
	remoteCats, err := e.fetchRemoteCategories(ctx, ownerID)
	if err != nil {
		e.logger.Warn("failed to download categories", "error", err)
		return
	}

	for _, rc := range remoteCats {
		if err := e.mergeCategory(ctx, rc); err != nil {
			e.logger.Warn("failed to merge remote category",
				"doc_id", rc.ID, "error", err)
		}
	}
}

func (e *SyncEngine) mergeCategory(ctx context.Context, rc repository.RemoteCategory) error {
	local, err := e.categories.FindByCloudID(ctx, rc.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if local == nil {
		// Exact name match links an existing unlinked category instead
		// of duplicating it.
		local, err = e.categories.FindByName(ctx, rc.Doc.Name)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}

	if local == nil {
		_, err := e.categories.UpsertOne(ctx, rc.Doc.Category(rc.ID))
		return err
	}

	if rc.Doc.ModifiedDate > local.ModifiedAt {
		local.Name = rc.Doc.Name
		local.Color = rc.Doc.Color
		local.ModifiedAt = rc.Doc.ModifiedDate
		local.CloudID = rc.ID
		local.NeedsSync = false
		_, err := e.categories.UpsertOne(ctx, local)
		return err
	}
	if local.CloudID == "" {
		return e.categories.SetCloudLink(ctx, local.LocalID, rc.ID)
	}
	return nil
}

// MergeRemoteNotes applies the merge rule to each incoming remote note.
// It is shared by the download phase and the change feed. Returned counts:
// downloaded (inserts plus overwrites), conflicts (every remote-newer
// overwrite, an approximation of true conflicts), and dirtyConflicts
// (overwrites where the local record was itself awaiting upload).
func (e *SyncEngine) MergeRemoteNotes(ctx context.Context, remoteNotes []repository.RemoteNote) (downloaded, conflicts, dirtyConflicts int, err error) {
	for _, rn := range remoteNotes {
		if err := ctx.Err(); err != nil {
			return downloaded, conflicts, dirtyConflicts, err
		}
		ins, conf, dirty, err := e.mergeNote(ctx, rn)
		if err != nil {
			e.logger.Warn("failed to merge remote note",
				"doc_id", rn.ID, "error", err)
			continue
		}
		downloaded += ins
		conflicts += conf
		dirtyConflicts += dirty
	}
	return downloaded, conflicts, dirtyConflicts, nil
}

func (e *SyncEngine) mergeNote(ctx context.Context, rn repository.RemoteNote) (downloaded, conflicts, dirtyConflicts int, err error) {
	local, err := e.notes.FindByCloudID(ctx, rn.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return 0, 0, 0, err
	}
	if local == nil {
		// No recorded link: fall back to content matching so a record
		// that exists locally but was never linked is not re-created.
		locals, err := e.notes.GetAllActive(ctx)
		if err != nil {
			return 0, 0, 0, err
		}
		local = e.resolver.MatchLocal(locals, &rn.Doc)
	}

	if local == nil {
		note := rn.Doc.Note(rn.ID, e.localCategoryRef(ctx, rn.Doc.CategoryID))
		if _, err := e.notes.UpsertOne(ctx, note); err != nil {
			return 0, 0, 0, err
		}
		return 1, 0, 0, nil
	}

	if rn.Doc.ModifiedDate > local.ModifiedAt {
		wasDirty := local.NeedsSync

		local.Title = rn.Doc.Title
		local.Body = rn.Doc.Content
		local.CreatedAt = rn.Doc.CreatedDate
		local.ModifiedAt = rn.Doc.ModifiedDate
		local.IsTrashed = rn.Doc.IsInTrash
		local.IsLocked = rn.Doc.IsLocked
		local.LabelRefs = rn.Doc.Labels
		local.CategoryRef = e.localCategoryRef(ctx, rn.Doc.CategoryID)
		local.CloudID = rn.ID
		// Presentation fields keep unsynced local edits.
		if !wasDirty {
			local.ColorTag = rn.Doc.ColorID
			local.IsFavorite = rn.Doc.IsFavorite
		}
		local.NeedsSync = false

		if _, err := e.notes.UpsertOne(ctx, local); err != nil {
			return 0, 0, 0, err
		}
		if wasDirty {
			dirtyConflicts = 1
		}
		return 1, 1, dirtyConflicts, nil
	}

	// Local wins. Record the link if it is missing so the next upload
	// updates instead of re-creating.
	if local.CloudID == "" {
		if err := e.notes.SetCloudLink(ctx, local.LocalID, rn.ID); err != nil {
			return 0, 0, 0, err
		}
	}
	return 0, 0, 0, nil
}

// fetchRemoteNotes tries the server, then the cached snapshot of the last
// successful query, then a default source that tries both once more.
func (e *SyncEngine) fetchRemoteNotes(ctx context.Context, ownerID string) ([]repository.RemoteNote, error) {
	notes, err := e.fetchNotesFromServer(ctx, ownerID)
	if err == nil {
		return notes, nil
	}
	e.logger.Warn("server source failed, trying cache", "error", err)

	if notes, ok := e.cachedNoteSnapshot(); ok {
		return notes, nil
	}

	// Default source: server once more, then cache again.
	if notes, retryErr := e.fetchNotesFromServer(ctx, ownerID); retryErr == nil {
		return notes, nil
	}
	if notes, ok := e.cachedNoteSnapshot(); ok {
		return notes, nil
	}
	return nil, err
}

func (e *SyncEngine) fetchNotesFromServer(ctx context.Context, ownerID string) ([]repository.RemoteNote, error) {
	notes, err := e.remote.NotesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	e.cacheMu.Lock()
	e.cachedNotes = notes
	e.cacheMu.Unlock()
	return notes, nil
}

func (e *SyncEngine) cachedNoteSnapshot() ([]repository.RemoteNote, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.cachedNotes == nil {
		return nil, false
	}
	return e.cachedNotes, true
}

func (e *SyncEngine) fetchRemoteCategories(ctx context.Context, ownerID string) ([]repository.RemoteCategory, error) {
	categories, err := e.remote.CategoriesByOwner(ctx, ownerID)
	if err == nil {
		e.cacheMu.Lock()
		e.cachedCategories = categories
		e.cacheMu.Unlock()
		return categories, nil
	}
	e.cacheMu.Lock()
	cached := e.cachedCategories
	e.cacheMu.Unlock()
	if cached != nil {
		return cached, nil
	}
	return nil, err
}

// categoryCloudID resolves a local category reference to its cloud id,
// or "" when the note has no category or the category is not linked yet.
func (e *SyncEngine) categoryCloudID(ctx context.Context, ref *int64) string {
	if ref == nil {
		return ""
	}
	category, err := e.categories.FindByID(ctx, *ref)
	if err != nil {
		return ""
	}
	return category.CloudID
}

// localCategoryRef resolves a remote category id to the linked local
// category, or nil when unknown.
func (e *SyncEngine) localCategoryRef(ctx context.Context, cloudID string) *int64 {
	if cloudID == "" {
		return nil
	}
	category, err := e.categories.FindByCloudID(ctx, cloudID)
	if err != nil {
		return nil
	}
	id := category.LocalID
	return &id
}
