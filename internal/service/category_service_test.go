package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"quillsync/internal/domain"
	"quillsync/internal/repository"
)

func newCategoryServiceFixture() (*CategoryService, *mockCategoryRepo, *mockNoteRepo, *mockRemoteStore) {
	categories := newMockCategoryRepo()
	notes := newMockNoteRepo()
	remote := newMockRemoteStore()
	session := &mockSession{ownerID: "alice", authenticated: true, connected: true}
	svc := NewCategoryService(categories, notes, remote, session, testLogger())
	return svc, categories, notes, remote
}

func TestCategoryServiceCreateDedupesByName(t *testing.T) {
	svc, _, _, _ := newCategoryServiceFixture()

	first, err := svc.Create(context.Background(), &domain.CreateCategoryRequest{Name: "work", Color: 1})
	require.NoError(t, err)
	require.True(t, first.NeedsSync)

	second, err := svc.Create(context.Background(), &domain.CreateCategoryRequest{Name: "work", Color: 9})
	require.NoError(t, err)
	require.Equal(t, first.LocalID, second.LocalID)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCategoryServiceUpdate(t *testing.T) {
	svc, _, _, _ := newCategoryServiceFixture()

	category, err := svc.Create(context.Background(), &domain.CreateCategoryRequest{Name: "work"})
	require.NoError(t, err)

	name := "projects"
	updated, err := svc.Update(context.Background(), category.LocalID, &domain.UpdateCategoryRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "projects", updated.Name)
	require.True(t, updated.NeedsSync)
	require.Greater(t, updated.ModifiedAt, category.CreatedAt)
}

func TestCategoryServiceDeleteBlockedWhileInUse(t *testing.T) {
	svc, _, notes, _ := newCategoryServiceFixture()

	category, err := svc.Create(context.Background(), &domain.CreateCategoryRequest{Name: "work"})
	require.NoError(t, err)

	ref := category.LocalID
	_, err = notes.UpsertOne(context.Background(), &domain.Note{
		Title: "meeting", CategoryRef: &ref, OwnerID: "alice",
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(context.Background(), category.LocalID), ErrCategoryInUse)
}

func TestCategoryServiceDeleteRemovesRemote(t *testing.T) {
	svc, categories, _, remote := newCategoryServiceFixture()

	category, err := svc.Create(context.Background(), &domain.CreateCategoryRequest{Name: "work"})
	require.NoError(t, err)

	docID, err := remote.PutCategory(context.Background(), "", &domain.CategoryDocument{Name: "work", OwnerID: "alice"})
	require.NoError(t, err)
	require.NoError(t, categories.SetCloudLink(context.Background(), category.LocalID, docID))

	require.NoError(t, svc.Delete(context.Background(), category.LocalID))

	_, err = categories.FindByID(context.Background(), category.LocalID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	remaining, err := remote.CategoriesByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Empty(t, remaining)
}
