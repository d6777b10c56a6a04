package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quillsync/internal/domain"
)

// CategoryRepository is the local durable store of categories. It follows
// the same dirty-flag and cloud-linkage rules as the note store.
type CategoryRepository interface {
	UpsertOne(ctx context.Context, category *domain.Category) (int64, error)
	GetAll(ctx context.Context) ([]*domain.Category, error)
	GetDirty(ctx context.Context) ([]*domain.Category, error)
	FindByID(ctx context.Context, localID int64) (*domain.Category, error)
	FindByCloudID(ctx context.Context, cloudID string) (*domain.Category, error)
	FindByName(ctx context.Context, name string) (*domain.Category, error)
	SetCloudLink(ctx context.Context, localID int64, cloudID string) error
	SetSyncFlag(ctx context.Context, localID int64, needsSync bool) error
	Delete(ctx context.Context, localID int64) error
}

type sqliteCategoryRepository struct {
	db DBTX
}

// NewCategoryRepository returns a CategoryRepository bound to the given DBTX.
func NewCategoryRepository(db DBTX) CategoryRepository {
	return &sqliteCategoryRepository{db: db}
}

const categoryColumns = `id, cloud_id, name, color, created_at, modified_at, needs_sync, owner_id`

func (r *sqliteCategoryRepository) UpsertOne(ctx context.Context, category *domain.Category) (int64, error) {
	if category.LocalID == 0 {
		query := `INSERT INTO categories (cloud_id, name, color, created_at, modified_at, needs_sync, owner_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		res, err := r.db.ExecContext(ctx, query,
			category.CloudID, category.Name, category.Color,
			category.CreatedAt, category.ModifiedAt, category.NeedsSync, category.OwnerID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert category: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get inserted category id: %w", err)
		}
		category.LocalID = id
		return id, nil
	}

	query := `UPDATE categories SET cloud_id=?, name=?, color=?, created_at=?, modified_at=?, needs_sync=?, owner_id=?
		WHERE id=?`
	res, err := r.db.ExecContext(ctx, query,
		category.CloudID, category.Name, category.Color,
		category.CreatedAt, category.ModifiedAt, category.NeedsSync, category.OwnerID,
		category.LocalID)
	if err != nil {
		return 0, fmt.Errorf("failed to update category: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return 0, fmt.Errorf("category %d: %w", category.LocalID, ErrNotFound)
	}
	return category.LocalID, nil
}

func (r *sqliteCategoryRepository) GetAll(ctx context.Context) ([]*domain.Category, error) {
	return r.selectCategories(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
}

func (r *sqliteCategoryRepository) GetDirty(ctx context.Context) ([]*domain.Category, error) {
	return r.selectCategories(ctx, `SELECT `+categoryColumns+` FROM categories WHERE needs_sync=1 ORDER BY id`)
}

func (r *sqliteCategoryRepository) FindByID(ctx context.Context, localID int64) (*domain.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=?`, localID)
	return scanCategory(row)
}

func (r *sqliteCategoryRepository) FindByCloudID(ctx context.Context, cloudID string) (*domain.Category, error) {
	if cloudID == "" {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE cloud_id=?`, cloudID)
	return scanCategory(row)
}

func (r *sqliteCategoryRepository) FindByName(ctx context.Context, name string) (*domain.Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name=?`, name)
	return scanCategory(row)
}

func (r *sqliteCategoryRepository) SetCloudLink(ctx context.Context, localID int64, cloudID string) error {
	return r.updateOne(ctx, `UPDATE categories SET cloud_id=? WHERE id=?`, cloudID, localID)
}

func (r *sqliteCategoryRepository) SetSyncFlag(ctx context.Context, localID int64, needsSync bool) error {
	return r.updateOne(ctx, `UPDATE categories SET needs_sync=? WHERE id=?`, needsSync, localID)
}

func (r *sqliteCategoryRepository) Delete(ctx context.Context, localID int64) error {
	return r.updateOne(ctx, `DELETE FROM categories WHERE id=?`, localID)
}

func (r *sqliteCategoryRepository) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteCategoryRepository) selectCategories(ctx context.Context, query string, args ...any) ([]*domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select categories: %w", err)
	}
	defer rows.Close()

	var result []*domain.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	var category domain.Category
	err := row.Scan(&category.LocalID, &category.CloudID, &category.Name, &category.Color,
		&category.CreatedAt, &category.ModifiedAt, &category.NeedsSync, &category.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return &category, nil
}
