package repository

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"quillsync/internal/domain"
)

const (
	notePrefix     = "note:"
	categoryPrefix = "category:"

	docTypeNote     = "note"
	docTypeCategory = "category"

	// High-sentinel upper bound for content prefix range queries.
	rangeSentinel = "\ufff0"

	// Window during which consecutive change events are grouped into one
	// batch before delivery.
	changeBatchWindow = 250 * time.Millisecond
)

// CouchStore implements RemoteStore on a CouchDB database. Notes and
// categories share one database and are distinguished by a doc id prefix
// plus a "type" field, so a single changes feed covers the whole account.
type CouchStore struct {
	client *kivik.Client
	dbName string
	logger *slog.Logger
}

// NewCouchStore returns a CouchStore bound to the given client and database.
func NewCouchStore(client *kivik.Client, dbName string, logger *slog.Logger) *CouchStore {
	return &CouchStore{
		client: client,
		dbName: dbName,
		logger: logger.With("component", "remote"),
	}
}

// EnsureDatabase creates the database and the Mango indexes the duplicate
// resolver queries depend on. Safe to call on every startup.
func (s *CouchStore) EnsureDatabase(ctx context.Context) error {
	exists, err := s.client.DBExists(ctx, s.dbName)
	if err != nil {
		return translateError("check database", err)
	}
	if !exists {
		if err := s.client.CreateDB(ctx, s.dbName); err != nil {
			return translateError("create database", err)
		}
		s.logger.Info("created remote database", "db", s.dbName)
	}

	db := s.client.DB(s.dbName)
	indexes := []struct {
		name   string
		fields []string
	}{
		{"by-owner", []string{"type", "owner_id"}},
		{"by-owner-title", []string{"type", "owner_id", "title"}},
		{"by-owner-content", []string{"type", "owner_id", "content"}},
	}
	for _, idx := range indexes {
		index := map[string]any{"fields": idx.fields}
		if err := db.CreateIndex(ctx, "sync-indexes", idx.name, index); err != nil {
			return translateError("create index "+idx.name, err)
		}
	}
	return nil
}

// Ping reports reachability of the CouchDB node.
func (s *CouchStore) Ping(ctx context.Context) bool {
	up, err := s.client.Ping(ctx)
	return err == nil && up
}

// noteDoc is the stored shape of a note document: the typed schema plus
// CouchDB bookkeeping fields.
type noteDoc struct {
	ID   string `json:"_id,omitempty"`
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.NoteDocument
}

type categoryDoc struct {
	ID   string `json:"_id,omitempty"`
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.CategoryDocument
}

func (s *CouchStore) PutNote(ctx context.Context, docID string, doc *domain.NoteDocument) (string, error) {
	if docID == "" {
		docID = uuid.NewString()
	}
	fields := doc.Fields()
	fields["type"] = docTypeNote
	if err := s.put(ctx, notePrefix+docID, fields); err != nil {
		return "", err
	}
	return docID, nil
}

func (s *CouchStore) GetNote(ctx context.Context, docID string) (*domain.NoteDocument, error) {
	db := s.client.DB(s.dbName)

	var doc noteDoc
	row := db.Get(ctx, notePrefix+docID)
	if err := row.ScanDoc(&doc); err != nil {
		return nil, translateError("get note", err)
	}
	if doc.Type != docTypeNote {
		return nil, fmt.Errorf("get note %s: %w", docID, ErrNotFound)
	}
	return &doc.NoteDocument, nil
}

func (s *CouchStore) DeleteNote(ctx context.Context, docID string) error {
	return s.delete(ctx, "delete note", notePrefix+docID)
}

func (s *CouchStore) NotesByOwner(ctx context.Context, ownerID string) ([]RemoteNote, error) {
	return s.findNotes(ctx, map[string]any{
		"type":     docTypeNote,
		"owner_id": ownerID,
	})
}

func (s *CouchStore) NotesByTitle(ctx context.Context, ownerID, title string) ([]RemoteNote, error) {
	return s.findNotes(ctx, map[string]any{
		"type":     docTypeNote,
		"owner_id": ownerID,
		"title":    title,
	})
}

// NotesByContentPrefix narrows candidates for the fuzzy matcher with an
// inclusive-lower, exclusive-upper range filter on content.
func (s *CouchStore) NotesByContentPrefix(ctx context.Context, ownerID, prefix string) ([]RemoteNote, error) {
	return s.findNotes(ctx, map[string]any{
		"type":     docTypeNote,
		"owner_id": ownerID,
		"content": map[string]any{
			"$gte": prefix,
			"$lt":  prefix + rangeSentinel,
		},
	})
}

func (s *CouchStore) findNotes(ctx context.Context, selector map[string]any) ([]RemoteNote, error) {
	db := s.client.DB(s.dbName)

	rows := db.Find(ctx, map[string]any{"selector": selector})
	if err := rows.Err(); err != nil {
		return nil, translateError("query notes", err)
	}
	defer rows.Close()

	var notes []RemoteNote
	for rows.Next() {
		var doc noteDoc
		if err := rows.ScanDoc(&doc); err != nil {
			s.logger.Warn("skipping undecodable note document", "error", err)
			continue
		}
		notes = append(notes, RemoteNote{
			ID:  strings.TrimPrefix(doc.ID, notePrefix),
			Doc: doc.NoteDocument,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("query notes", err)
	}
	return notes, nil
}

func (s *CouchStore) PutCategory(ctx context.Context, docID string, doc *domain.CategoryDocument) (string, error) {
	if docID == "" {
		docID = uuid.NewString()
	}
	fields := doc.Fields()
	fields["type"] = docTypeCategory
	if err := s.put(ctx, categoryPrefix+docID, fields); err != nil {
		return "", err
	}
	return docID, nil
}

func (s *CouchStore) DeleteCategory(ctx context.Context, docID string) error {
	return s.delete(ctx, "delete category", categoryPrefix+docID)
}

func (s *CouchStore) CategoriesByOwner(ctx context.Context, ownerID string) ([]RemoteCategory, error) {
	db := s.client.DB(s.dbName)

	rows := db.Find(ctx, map[string]any{"selector": map[string]any{
		"type":     docTypeCategory,
		"owner_id": ownerID,
	}})
	if err := rows.Err(); err != nil {
		return nil, translateError("query categories", err)
	}
	defer rows.Close()

	var categories []RemoteCategory
	for rows.Next() {
		var doc categoryDoc
		if err := rows.ScanDoc(&doc); err != nil {
			s.logger.Warn("skipping undecodable category document", "error", err)
			continue
		}
		categories = append(categories, RemoteCategory{
			ID:  strings.TrimPrefix(doc.ID, categoryPrefix),
			Doc: doc.CategoryDocument,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("query categories", err)
	}
	return categories, nil
}

// put writes fields at docID, carrying the current revision forward when
// the document already exists.
func (s *CouchStore) put(ctx context.Context, docID string, fields map[string]any) error {
	db := s.client.DB(s.dbName)

	var existing map[string]any
	row := db.Get(ctx, docID)
	if err := row.ScanDoc(&existing); err == nil {
		fields["_rev"] = existing["_rev"]
	} else if kivik.HTTPStatus(err) != http.StatusNotFound {
		return translateError("fetch existing document", err)
	}

	if _, err := db.Put(ctx, docID, fields); err != nil {
		return translateError("put document", err)
	}
	return nil
}

func (s *CouchStore) delete(ctx context.Context, op, docID string) error {
	db := s.client.DB(s.dbName)

	var existing map[string]any
	row := db.Get(ctx, docID)
	if err := row.ScanDoc(&existing); err != nil {
		return translateError(op, err)
	}
	rev, _ := existing["_rev"].(string)
	if _, err := db.Delete(ctx, docID, rev); err != nil {
		return translateError(op, err)
	}
	return nil
}

// Changes opens a continuous changes feed filtered down to this owner's
// note documents. Events arriving close together are grouped into batches.
func (s *CouchStore) Changes(ctx context.Context, ownerID string) (ChangeSubscription, error) {
	db := s.client.DB(s.dbName)

	subCtx, cancel := context.WithCancel(ctx)
	changes := db.Changes(subCtx, kivik.Params(map[string]any{
		"feed":         "continuous",
		"since":        "now",
		"include_docs": true,
		"heartbeat":    30000,
	}))
	if err := changes.Err(); err != nil {
		cancel()
		return nil, translateError("open changes feed", err)
	}

	sub := &couchSubscription{
		out:    make(chan domain.ChangeBatch),
		cancel: cancel,
	}
	raw := make(chan domain.ChangeEvent)
	go sub.read(subCtx, changes, ownerID, raw, s.logger)
	go sub.batch(subCtx, raw)
	return sub, nil
}

type couchSubscription struct {
	out    chan domain.ChangeBatch
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (c *couchSubscription) Events() <-chan domain.ChangeBatch { return c.out }

func (c *couchSubscription) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *couchSubscription) Close() error {
	c.cancel()
	return nil
}

func (c *couchSubscription) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// read converts raw feed rows into change events. Category and foreign
// documents are dropped here; owner filtering happens client-side because
// the feed is account-wide.
func (c *couchSubscription) read(ctx context.Context, changes *kivik.Changes, ownerID string, raw chan<- domain.ChangeEvent, logger *slog.Logger) {
	defer close(raw)

	for changes.Next() {
		docID := changes.ID()
		if !strings.HasPrefix(docID, notePrefix) {
			continue
		}

		ev := domain.ChangeEvent{DocID: strings.TrimPrefix(docID, notePrefix)}
		if changes.Deleted() {
			ev.Type = domain.ChangeRemoved
		} else {
			var doc noteDoc
			if err := changes.ScanDoc(&doc); err != nil {
				logger.Warn("skipping undecodable change event", "doc_id", docID, "error", err)
				continue
			}
			if doc.Type != docTypeNote || doc.OwnerID != ownerID {
				continue
			}
			ev.Doc = &doc.NoteDocument
			ev.Type = domain.ChangeModified
			// A first-generation revision means the document was just
			// created.
			if revs := changes.Changes(); len(revs) > 0 && strings.HasPrefix(revs[0], "1-") {
				ev.Type = domain.ChangeAdded
			}
		}

		select {
		case raw <- ev:
		case <-ctx.Done():
			return
		}
	}
	if err := changes.Err(); err != nil && ctx.Err() == nil {
		c.setErr(translateError("changes feed", err))
	}
}

// batch groups events that arrive within changeBatchWindow of the first
// pending event, then emits them as one ChangeBatch.
func (c *couchSubscription) batch(ctx context.Context, raw <-chan domain.ChangeEvent) {
	defer close(c.out)

	var pending []domain.ChangeEvent
	var flush <-chan time.Time

	emit := func() {
		if len(pending) == 0 {
			return
		}
		batch := domain.ChangeBatch{
			Events:     pending,
			ReceivedAt: time.Now().UnixMilli(),
		}
		pending = nil
		flush = nil
		select {
		case c.out <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case ev, ok := <-raw:
			if !ok {
				emit()
				return
			}
			pending = append(pending, ev)
			if flush == nil {
				flush = time.After(changeBatchWindow)
			}
		case <-flush:
			emit()
		case <-ctx.Done():
			return
		}
	}
}

// translateError maps kivik errors onto the repository error taxonomy:
// a 404 is ErrNotFound, anything without a definite HTTP status (or a
// server-side failure) is a connectivity problem.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status := kivik.HTTPStatus(err); {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case status == 0 || status >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: %v", op, ErrRemoteUnavailable, err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
