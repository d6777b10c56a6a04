package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quillsync/internal/domain"
	"quillsync/internal/repository"
	"quillsync/pkg/hash"
)

// NoteService is the local mutation surface for notes. Every write goes
// through Touch so the record is marked dirty and its modified timestamp
// advances, which is what the sync engine keys off.
type NoteService struct {
	notes   repository.NoteRepository
	remote  repository.RemoteStore
	session Session
	logger  *slog.Logger

	now func() time.Time
}

func NewNoteService(
	notes repository.NoteRepository,
	remote repository.RemoteStore,
	session Session,
	logger *slog.Logger,
) *NoteService {
	return &NoteService{
		notes:   notes,
		remote:  remote,
		session: session,
		logger:  logger.With("component", "notes"),
		now:     time.Now,
	}
}

func (s *NoteService) Create(ctx context.Context, req *domain.CreateNoteRequest) (*domain.Note, error) {
	now := s.now().UnixMilli()
	note := &domain.Note{
		Title:       req.Title,
		Body:        req.Body,
		CreatedAt:   now,
		ModifiedAt:  now,
		ColorTag:    req.ColorTag,
		CategoryRef: req.CategoryRef,
		LabelRefs:   req.LabelRefs,
		IsFavorite:  req.IsFavorite,
		NeedsSync:   true,
		OwnerID:     s.session.OwnerID(),
	}

	id, err := s.notes.UpsertOne(ctx, note)
	if err != nil {
		return nil, err
	}
	note.LocalID = id
	return note, nil
}

func (s *NoteService) Get(ctx context.Context, localID int64) (*domain.Note, error) {
	return s.notes.FindByID(ctx, localID)
}

func (s *NoteService) ListActive(ctx context.Context) ([]*domain.Note, error) {
	return s.notes.GetAllActive(ctx)
}

func (s *NoteService) ListTrashed(ctx context.Context) ([]*domain.Note, error) {
	return s.notes.GetTrashed(ctx)
}

func (s *NoteService) Update(ctx context.Context, localID int64, req *domain.UpdateNoteRequest) (*domain.Note, error) {
	note, err := s.notes.FindByID(ctx, localID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLock(note, req.Passcode); err != nil {
		return nil, err
	}

	if req.Title != nil {
		note.Title = *req.Title
	}
	if req.Body != nil {
		note.Body = *req.Body
	}
	if req.ColorTag != nil {
		note.ColorTag = *req.ColorTag
	}
	if req.CategoryRef != nil {
		note.CategoryRef = req.CategoryRef
	}
	if req.LabelRefs != nil {
		note.LabelRefs = req.LabelRefs
	}
	if req.IsFavorite != nil {
		note.IsFavorite = *req.IsFavorite
	}

	note.Touch(s.now().UnixMilli())
	if _, err := s.notes.UpsertOne(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// Trash soft-deletes a note. The record stays local and syncable; only
// DeletePermanent removes data.
func (s *NoteService) Trash(ctx context.Context, localID int64) (*domain.Note, error) {
	return s.setTrashed(ctx, localID, true)
}

func (s *NoteService) Restore(ctx context.Context, localID int64) (*domain.Note, error) {
	return s.setTrashed(ctx, localID, false)
}

func (s *NoteService) setTrashed(ctx context.Context, localID int64, trashed bool) (*domain.Note, error) {
	note, err := s.notes.FindByID(ctx, localID)
	if err != nil {
		return nil, err
	}
	note.IsTrashed = trashed
	note.Touch(s.now().UnixMilli())
	if _, err := s.notes.UpsertOne(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// DeletePermanent removes the local record and, when the note is linked,
// attempts to delete the remote document too. A failed remote delete is
// logged and does not block the local removal; the change feed of other
// devices will still see the local copy gone on this one.
func (s *NoteService) DeletePermanent(ctx context.Context, localID int64) error {
	note, err := s.notes.FindByID(ctx, localID)
	if err != nil {
		return err
	}

	if note.CloudID != "" {
		if err := s.remote.DeleteNote(ctx, note.CloudID); err != nil &&
			!errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to delete remote document",
				"doc_id", note.CloudID, "error", err)
		}
	}
	return s.notes.DeletePermanent(ctx, localID)
}

// Lock protects a note behind a passcode. The hash never leaves the
// local store.
func (s *NoteService) Lock(ctx context.Context, localID int64, passcode string) error {
	note, err := s.notes.FindByID(ctx, localID)
	if err != nil {
		return err
	}
	if note.IsLocked {
		return ErrLocked
	}

	hashed, err := hash.Passcode(passcode)
	if err != nil {
		return err
	}
	if err := s.notes.SetLock(ctx, localID, true, hashed); err != nil {
		return err
	}

	note.IsLocked = true
	note.LockHash = hashed
	note.Touch(s.now().UnixMilli())
	_, err = s.notes.UpsertOne(ctx, note)
	return err
}

func (s *NoteService) Unlock(ctx context.Context, localID int64, passcode string) error {
	note, err := s.notes.FindByID(ctx, localID)
	if err != nil {
		return err
	}
	if !note.IsLocked {
		return nil
	}
	if err := hash.Compare(note.LockHash, passcode); err != nil {
		return ErrBadPasscode
	}
	if err := s.notes.SetLock(ctx, localID, false, ""); err != nil {
		return err
	}

	note.IsLocked = false
	note.LockHash = ""
	note.Touch(s.now().UnixMilli())
	_, err = s.notes.UpsertOne(ctx, note)
	return err
}

func (s *NoteService) checkLock(note *domain.Note, passcode string) error {
	if !note.IsLocked {
		return nil
	}
	if passcode == "" {
		return ErrLocked
	}
	if err := hash.Compare(note.LockHash, passcode); err != nil {
		return ErrBadPasscode
	}
	return nil
}
