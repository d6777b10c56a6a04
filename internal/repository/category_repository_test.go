package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"quillsync/internal/domain"
)

func TestCategoryRepositoryInsertAndQueries(t *testing.T) {
	repo := NewCategoryRepository(openTestDB(t))
	ctx := context.Background()

	category := &domain.Category{
		Name: "work", Color: 2, CreatedAt: 100, ModifiedAt: 100,
		NeedsSync: true, OwnerID: "alice",
	}
	id, err := repo.UpsertOne(ctx, category)
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = repo.UpsertOne(ctx, &domain.Category{Name: "home", OwnerID: "alice"})
	require.NoError(t, err)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	dirty, err := repo.GetDirty(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	require.Equal(t, "work", dirty[0].Name)

	byName, err := repo.FindByName(ctx, "home")
	require.NoError(t, err)
	require.Equal(t, "home", byName.Name)

	_, err = repo.FindByName(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryRepositoryCloudLinkAndSyncFlag(t *testing.T) {
	repo := NewCategoryRepository(openTestDB(t))
	ctx := context.Background()

	category := &domain.Category{Name: "work", NeedsSync: true, OwnerID: "alice"}
	_, err := repo.UpsertOne(ctx, category)
	require.NoError(t, err)

	require.NoError(t, repo.SetCloudLink(ctx, category.LocalID, "cat-1"))
	require.NoError(t, repo.SetSyncFlag(ctx, category.LocalID, false))

	got, err := repo.FindByCloudID(ctx, "cat-1")
	require.NoError(t, err)
	require.Equal(t, category.LocalID, got.LocalID)
	require.False(t, got.NeedsSync)
}

func TestCategoryRepositoryDelete(t *testing.T) {
	repo := NewCategoryRepository(openTestDB(t))
	ctx := context.Background()

	category := &domain.Category{Name: "work", OwnerID: "alice"}
	_, err := repo.UpsertOne(ctx, category)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, category.LocalID))
	_, err = repo.FindByID(ctx, category.LocalID)
	require.ErrorIs(t, err, ErrNotFound)
}
