package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"quillsync/internal/domain"
	"quillsync/internal/repository"
)

// In-memory doubles shared by the service tests.

type mockNoteRepo struct {
	mu     sync.Mutex
	notes  map[int64]*domain.Note
	nextID int64

	failUpsert bool
}

func newMockNoteRepo() *mockNoteRepo {
	return &mockNoteRepo{notes: make(map[int64]*domain.Note), nextID: 1}
}

func (m *mockNoteRepo) UpsertOne(ctx context.Context, note *domain.Note) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return 0, fmt.Errorf("upsert failed")
	}
	if note.LocalID == 0 {
		note.LocalID = m.nextID
		m.nextID++
	} else if _, ok := m.notes[note.LocalID]; !ok {
		return 0, repository.ErrNotFound
	}
	clone := *note
	m.notes[note.LocalID] = &clone
	return note.LocalID, nil
}

func (m *mockNoteRepo) UpsertMany(ctx context.Context, notes []*domain.Note) error {
	for _, n := range notes {
		if _, err := m.UpsertOne(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockNoteRepo) GetDirty(ctx context.Context) ([]*domain.Note, error) {
	return m.filter(func(n *domain.Note) bool { return n.NeedsSync }), nil
}

func (m *mockNoteRepo) GetAllActive(ctx context.Context) ([]*domain.Note, error) {
	return m.filter(func(n *domain.Note) bool { return !n.IsTrashed }), nil
}

func (m *mockNoteRepo) GetTrashed(ctx context.Context) ([]*domain.Note, error) {
	return m.filter(func(n *domain.Note) bool { return n.IsTrashed }), nil
}

func (m *mockNoteRepo) filter(keep func(*domain.Note) bool) []*domain.Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Note
	for _, n := range m.notes {
		if keep(n) {
			clone := *n
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out
}

func (m *mockNoteRepo) FindByID(ctx context.Context, localID int64) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[localID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (m *mockNoteRepo) FindByCloudID(ctx context.Context, cloudID string) (*domain.Note, error) {
	if cloudID == "" {
		return nil, repository.ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.CloudID == cloudID {
			clone := *n
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockNoteRepo) SetCloudLink(ctx context.Context, localID int64, cloudID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[localID]
	if !ok {
		return repository.ErrNotFound
	}
	n.CloudID = cloudID
	return nil
}

func (m *mockNoteRepo) SetSyncFlag(ctx context.Context, localID int64, needsSync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[localID]
	if !ok {
		return repository.ErrNotFound
	}
	n.NeedsSync = needsSync
	return nil
}

func (m *mockNoteRepo) SetLock(ctx context.Context, localID int64, locked bool, lockHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[localID]
	if !ok {
		return repository.ErrNotFound
	}
	n.IsLocked = locked
	n.LockHash = lockHash
	return nil
}

func (m *mockNoteRepo) DeletePermanent(ctx context.Context, localID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[localID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.notes, localID)
	return nil
}

func (m *mockNoteRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notes)
}

type mockCategoryRepo struct {
	mu         sync.Mutex
	categories map[int64]*domain.Category
	nextID     int64
}

func newMockCategoryRepo() *mockCategoryRepo {
	return &mockCategoryRepo{categories: make(map[int64]*domain.Category), nextID: 1}
}

func (m *mockCategoryRepo) UpsertOne(ctx context.Context, category *domain.Category) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if category.LocalID == 0 {
		category.LocalID = m.nextID
		m.nextID++
	} else if _, ok := m.categories[category.LocalID]; !ok {
		return 0, repository.ErrNotFound
	}
	clone := *category
	m.categories[category.LocalID] = &clone
	return category.LocalID, nil
}

func (m *mockCategoryRepo) GetAll(ctx context.Context) ([]*domain.Category, error) {
	return m.filter(func(*domain.Category) bool { return true }), nil
}

func (m *mockCategoryRepo) GetDirty(ctx context.Context) ([]*domain.Category, error) {
	return m.filter(func(c *domain.Category) bool { return c.NeedsSync }), nil
}

func (m *mockCategoryRepo) filter(keep func(*domain.Category) bool) []*domain.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Category
	for _, c := range m.categories {
		if keep(c) {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out
}

func (m *mockCategoryRepo) FindByID(ctx context.Context, localID int64) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[localID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *mockCategoryRepo) FindByCloudID(ctx context.Context, cloudID string) (*domain.Category, error) {
	if cloudID == "" {
		return nil, repository.ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.CloudID == cloudID {
			clone := *c
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockCategoryRepo) FindByName(ctx context.Context, name string) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == name {
			clone := *c
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockCategoryRepo) SetCloudLink(ctx context.Context, localID int64, cloudID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[localID]
	if !ok {
		return repository.ErrNotFound
	}
	c.CloudID = cloudID
	return nil
}

func (m *mockCategoryRepo) SetSyncFlag(ctx context.Context, localID int64, needsSync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[localID]
	if !ok {
		return repository.ErrNotFound
	}
	c.NeedsSync = needsSync
	return nil
}

func (m *mockCategoryRepo) Delete(ctx context.Context, localID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[localID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.categories, localID)
	return nil
}

// mockRemoteStore is an in-memory RemoteStore with per-call error
// injection for connectivity tests.
type mockRemoteStore struct {
	mu         sync.Mutex
	notes      map[string]domain.NoteDocument
	categories map[string]domain.CategoryDocument
	nextID     int

	failPut  bool
	failList bool
	down     bool

	putCalls int
}

func newMockRemoteStore() *mockRemoteStore {
	return &mockRemoteStore{
		notes:      make(map[string]domain.NoteDocument),
		categories: make(map[string]domain.CategoryDocument),
		nextID:     1,
	}
}

func (m *mockRemoteStore) PutNote(ctx context.Context, docID string, doc *domain.NoteDocument) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failPut || m.down {
		return "", repository.ErrRemoteUnavailable
	}
	if docID == "" {
		docID = fmt.Sprintf("doc-%d", m.nextID)
		m.nextID++
	}
	m.notes[docID] = *doc
	return docID, nil
}

func (m *mockRemoteStore) GetNote(ctx context.Context, docID string) (*domain.NoteDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, repository.ErrRemoteUnavailable
	}
	doc, ok := m.notes[docID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &doc, nil
}

func (m *mockRemoteStore) DeleteNote(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return repository.ErrRemoteUnavailable
	}
	if _, ok := m.notes[docID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.notes, docID)
	return nil
}

func (m *mockRemoteStore) NotesByOwner(ctx context.Context, ownerID string) ([]repository.RemoteNote, error) {
	return m.find(func(doc domain.NoteDocument) bool {
		return doc.OwnerID == ownerID
	})
}

func (m *mockRemoteStore) NotesByTitle(ctx context.Context, ownerID, title string) ([]repository.RemoteNote, error) {
	return m.find(func(doc domain.NoteDocument) bool {
		return doc.OwnerID == ownerID && doc.Title == title
	})
}

func (m *mockRemoteStore) NotesByContentPrefix(ctx context.Context, ownerID, prefix string) ([]repository.RemoteNote, error) {
	return m.find(func(doc domain.NoteDocument) bool {
		return doc.OwnerID == ownerID && strings.HasPrefix(doc.Content, prefix)
	})
}

func (m *mockRemoteStore) find(keep func(domain.NoteDocument) bool) ([]repository.RemoteNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList || m.down {
		return nil, repository.ErrRemoteUnavailable
	}
	var out []repository.RemoteNote
	for id, doc := range m.notes {
		if keep(doc) {
			out = append(out, repository.RemoteNote{ID: id, Doc: doc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRemoteStore) PutCategory(ctx context.Context, docID string, doc *domain.CategoryDocument) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut || m.down {
		return "", repository.ErrRemoteUnavailable
	}
	if docID == "" {
		docID = fmt.Sprintf("cat-%d", m.nextID)
		m.nextID++
	}
	m.categories[docID] = *doc
	return docID, nil
}

func (m *mockRemoteStore) DeleteCategory(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return repository.ErrRemoteUnavailable
	}
	if _, ok := m.categories[docID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.categories, docID)
	return nil
}

func (m *mockRemoteStore) CategoriesByOwner(ctx context.Context, ownerID string) ([]repository.RemoteCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList || m.down {
		return nil, repository.ErrRemoteUnavailable
	}
	var out []repository.RemoteCategory
	for id, doc := range m.categories {
		if doc.OwnerID == ownerID {
			out = append(out, repository.RemoteCategory{ID: id, Doc: doc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRemoteStore) Changes(ctx context.Context, ownerID string) (repository.ChangeSubscription, error) {
	if m.down {
		return nil, repository.ErrRemoteUnavailable
	}
	return newMockSubscription(), nil
}

func (m *mockRemoteStore) Ping(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.down
}

func (m *mockRemoteStore) noteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notes)
}

type mockSubscription struct {
	events chan domain.ChangeBatch
	err    error
}

func newMockSubscription() *mockSubscription {
	return &mockSubscription{events: make(chan domain.ChangeBatch, 16)}
}

func (s *mockSubscription) Events() <-chan domain.ChangeBatch { return s.events }
func (s *mockSubscription) Err() error                        { return s.err }
func (s *mockSubscription) Close() error                      { return nil }

type mockSession struct {
	ownerID       string
	authenticated bool
	connected     bool
}

func (s *mockSession) OwnerID() string                      { return s.ownerID }
func (s *mockSession) IsAuthenticated() bool                { return s.authenticated }
func (s *mockSession) IsConnected(ctx context.Context) bool { return s.connected }
