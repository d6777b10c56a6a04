package repository

import (
	"context"

	"quillsync/internal/domain"
)

// RemoteNote pairs a remote document id with its decoded note document.
type RemoteNote struct {
	ID  string
	Doc domain.NoteDocument
}

// RemoteCategory pairs a remote document id with its decoded category
// document.
type RemoteCategory struct {
	ID  string
	Doc domain.CategoryDocument
}

// ChangeSubscription is a long-lived, cancellable subscription over remote
// change events. Events yields finite batches until the subscription ends;
// after the channel closes, Err reports why.
type ChangeSubscription interface {
	Events() <-chan domain.ChangeBatch
	Err() error
	Close() error
}

// RemoteStore abstracts the remote document database. A missing document is
// ErrNotFound; connectivity failures wrap ErrRemoteUnavailable. Putting
// with an empty id creates a new document and returns its generated id.
type RemoteStore interface {
	PutNote(ctx context.Context, docID string, doc *domain.NoteDocument) (string, error)
	GetNote(ctx context.Context, docID string) (*domain.NoteDocument, error)
	DeleteNote(ctx context.Context, docID string) error
	NotesByOwner(ctx context.Context, ownerID string) ([]RemoteNote, error)
	NotesByTitle(ctx context.Context, ownerID, title string) ([]RemoteNote, error)
	NotesByContentPrefix(ctx context.Context, ownerID, prefix string) ([]RemoteNote, error)

	PutCategory(ctx context.Context, docID string, doc *domain.CategoryDocument) (string, error)
	DeleteCategory(ctx context.Context, docID string) error
	CategoriesByOwner(ctx context.Context, ownerID string) ([]RemoteCategory, error)

	// Changes opens a continuous subscription to note changes for the
	// given owner, starting from "now" (no historical backlog).
	Changes(ctx context.Context, ownerID string) (ChangeSubscription, error)

	// Ping reports whether the remote store is currently reachable.
	Ping(ctx context.Context) bool
}
