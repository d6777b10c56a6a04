package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"quillsync/internal/domain"
)

// NoteRepository is the local durable store of note records consumed by the
// sync engine and the note service. All operations are atomic at the
// single-record granularity; UpsertMany is not transactional across records
// and may apply partially on failure.
type NoteRepository interface {
	UpsertOne(ctx context.Context, note *domain.Note) (int64, error)
	UpsertMany(ctx context.Context, notes []*domain.Note) error
	GetDirty(ctx context.Context) ([]*domain.Note, error)
	GetAllActive(ctx context.Context) ([]*domain.Note, error)
	GetTrashed(ctx context.Context) ([]*domain.Note, error)
	FindByID(ctx context.Context, localID int64) (*domain.Note, error)
	FindByCloudID(ctx context.Context, cloudID string) (*domain.Note, error)
	SetCloudLink(ctx context.Context, localID int64, cloudID string) error
	SetSyncFlag(ctx context.Context, localID int64, needsSync bool) error
	SetLock(ctx context.Context, localID int64, locked bool, lockHash string) error
	DeletePermanent(ctx context.Context, localID int64) error
}

type sqliteNoteRepository struct {
	db DBTX
}

// NewNoteRepository returns a NoteRepository bound to the given DBTX.
func NewNoteRepository(db DBTX) NoteRepository {
	return &sqliteNoteRepository{db: db}
}

const noteColumns = `id, cloud_id, title, body, created_at, modified_at,
	is_favorite, is_trashed, is_locked, color_tag, category_id,
	labels, attachments, needs_sync, owner_id, lock_hash`

// UpsertOne inserts the note when LocalID is zero and assigns the generated
// id, otherwise it rewrites the existing row in full.
func (r *sqliteNoteRepository) UpsertOne(ctx context.Context, note *domain.Note) (int64, error) {
	labels, attachments, err := encodeRefs(note)
	if err != nil {
		return 0, err
	}

	if note.LocalID == 0 {
		query := `INSERT INTO notes (cloud_id, title, body, created_at, modified_at,
				is_favorite, is_trashed, is_locked, color_tag, category_id,
				labels, attachments, needs_sync, owner_id, lock_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := r.db.ExecContext(ctx, query,
			note.CloudID, note.Title, note.Body, note.CreatedAt, note.ModifiedAt,
			note.IsFavorite, note.IsTrashed, note.IsLocked, note.ColorTag, nullableRef(note.CategoryRef),
			labels, attachments, note.NeedsSync, note.OwnerID, note.LockHash)
		if err != nil {
			return 0, fmt.Errorf("failed to insert note: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get inserted note id: %w", err)
		}
		note.LocalID = id
		return id, nil
	}

	query := `UPDATE notes SET cloud_id=?, title=?, body=?, created_at=?, modified_at=?,
			is_favorite=?, is_trashed=?, is_locked=?, color_tag=?, category_id=?,
			labels=?, attachments=?, needs_sync=?, owner_id=?, lock_hash=?
		WHERE id=?`
	res, err := r.db.ExecContext(ctx, query,
		note.CloudID, note.Title, note.Body, note.CreatedAt, note.ModifiedAt,
		note.IsFavorite, note.IsTrashed, note.IsLocked, note.ColorTag, nullableRef(note.CategoryRef),
		labels, attachments, note.NeedsSync, note.OwnerID, note.LockHash,
		note.LocalID)
	if err != nil {
		return 0, fmt.Errorf("failed to update note: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return 0, fmt.Errorf("note %d: %w", note.LocalID, ErrNotFound)
	}
	return note.LocalID, nil
}

// UpsertMany applies UpsertOne per record; a failed record does not stop
// the rest, and all failures are joined into the returned error.
func (r *sqliteNoteRepository) UpsertMany(ctx context.Context, notes []*domain.Note) error {
	var errs []error
	for _, note := range notes {
		if _, err := r.UpsertOne(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *sqliteNoteRepository) GetDirty(ctx context.Context) ([]*domain.Note, error) {
	return r.selectNotes(ctx, `SELECT `+noteColumns+` FROM notes WHERE needs_sync=1 ORDER BY id`)
}

func (r *sqliteNoteRepository) GetAllActive(ctx context.Context) ([]*domain.Note, error) {
	return r.selectNotes(ctx, `SELECT `+noteColumns+` FROM notes WHERE is_trashed=0 ORDER BY modified_at DESC`)
}

func (r *sqliteNoteRepository) GetTrashed(ctx context.Context) ([]*domain.Note, error) {
	return r.selectNotes(ctx, `SELECT `+noteColumns+` FROM notes WHERE is_trashed=1 ORDER BY modified_at DESC`)
}

func (r *sqliteNoteRepository) FindByID(ctx context.Context, localID int64) (*domain.Note, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=?`, localID)
	return scanNote(row)
}

func (r *sqliteNoteRepository) FindByCloudID(ctx context.Context, cloudID string) (*domain.Note, error) {
	if cloudID == "" {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE cloud_id=?`, cloudID)
	return scanNote(row)
}

func (r *sqliteNoteRepository) SetCloudLink(ctx context.Context, localID int64, cloudID string) error {
	return r.updateOne(ctx, `UPDATE notes SET cloud_id=? WHERE id=?`, cloudID, localID)
}

func (r *sqliteNoteRepository) SetSyncFlag(ctx context.Context, localID int64, needsSync bool) error {
	return r.updateOne(ctx, `UPDATE notes SET needs_sync=? WHERE id=?`, needsSync, localID)
}

func (r *sqliteNoteRepository) SetLock(ctx context.Context, localID int64, locked bool, lockHash string) error {
	return r.updateOne(ctx, `UPDATE notes SET is_locked=?, lock_hash=? WHERE id=?`, locked, lockHash, localID)
}

func (r *sqliteNoteRepository) DeletePermanent(ctx context.Context, localID int64) error {
	return r.updateOne(ctx, `DELETE FROM notes WHERE id=?`, localID)
}

func (r *sqliteNoteRepository) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
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

func (r *sqliteNoteRepository) selectNotes(ctx context.Context, query string, args ...any) ([]*domain.Note, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*domain.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*domain.Note, error) {
	var (
		note        domain.Note
		categoryRef sql.NullInt64
		labels      string
		attachments string
	)
	err := row.Scan(&note.LocalID, &note.CloudID, &note.Title, &note.Body,
		&note.CreatedAt, &note.ModifiedAt, &note.IsFavorite, &note.IsTrashed,
		&note.IsLocked, &note.ColorTag, &categoryRef, &labels, &attachments,
		&note.NeedsSync, &note.OwnerID, &note.LockHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}
	if categoryRef.Valid {
		note.CategoryRef = &categoryRef.Int64
	}
	if err := json.Unmarshal([]byte(labels), &note.LabelRefs); err != nil {
		return nil, fmt.Errorf("failed to decode note labels: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &note.AttachmentRefs); err != nil {
		return nil, fmt.Errorf("failed to decode note attachments: %w", err)
	}
	return &note, nil
}

func encodeRefs(note *domain.Note) (labels string, attachments string, err error) {
	lb, err := json.Marshal(emptyIfNil(note.LabelRefs))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode note labels: %w", err)
	}
	at, err := json.Marshal(emptyIfNil(note.AttachmentRefs))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode note attachments: %w", err)
	}
	return string(lb), string(at), nil
}

func emptyIfNil(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}

func nullableRef(ref *int64) any {
	if ref == nil {
		return nil
	}
	return *ref
}
