package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quillsync/internal/domain"
	"quillsync/internal/repository"
)

// ErrCategoryInUse is returned when deleting a category that still has
// notes assigned.
var ErrCategoryInUse = errors.New("category still has notes assigned")

// CategoryService is the local mutation surface for categories.
type CategoryService struct {
	categories repository.CategoryRepository
	notes      repository.NoteRepository
	remote     repository.RemoteStore
	session    Session
	logger     *slog.Logger

	now func() time.Time
}

func NewCategoryService(
	categories repository.CategoryRepository,
	notes repository.NoteRepository,
	remote repository.RemoteStore,
	session Session,
	logger *slog.Logger,
) *CategoryService {
	return &CategoryService{
		categories: categories,
		notes:      notes,
		remote:     remote,
		session:    session,
		logger:     logger.With("component", "categories"),
		now:        time.Now,
	}
}

func (s *CategoryService) Create(ctx context.Context, req *domain.CreateCategoryRequest) (*domain.Category, error) {
	// Category names dedupe exactly: creating an existing name returns
	// the existing record instead of a duplicate.
	existing, err := s.categories.FindByName(ctx, req.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := s.now().UnixMilli()
	category := &domain.Category{
		Name:       req.Name,
		Color:      req.Color,
		CreatedAt:  now,
		ModifiedAt: now,
		NeedsSync:  true,
		OwnerID:    s.session.OwnerID(),
	}

	id, err := s.categories.UpsertOne(ctx, category)
	if err != nil {
		return nil, err
	}
	category.LocalID = id
	return category, nil
}

func (s *CategoryService) List(ctx context.Context) ([]*domain.Category, error) {
	return s.categories.GetAll(ctx)
}

func (s *CategoryService) Update(ctx context.Context, localID int64, req *domain.UpdateCategoryRequest) (*domain.Category, error) {
	category, err := s.categories.FindByID(ctx, localID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		category.Name = *req.Name
	}
	if req.Color != nil {
		category.Color = *req.Color
	}

	category.Touch(s.now().UnixMilli())
	if _, err := s.categories.UpsertOne(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// Delete removes a category locally and, when linked, remotely. Notes
// still referencing the category block the delete.
func (s *CategoryService) Delete(ctx context.Context, localID int64) error {
	category, err := s.categories.FindByID(ctx, localID)
	if err != nil {
		return err
	}

	active, err := s.notes.GetAllActive(ctx)
	if err != nil {
		return err
	}
	for _, note := range active {
		if note.CategoryRef != nil && *note.CategoryRef == localID {
			return ErrCategoryInUse
		}
	}

	if category.CloudID != "" {
		if err := s.remote.DeleteCategory(ctx, category.CloudID); err != nil &&
			!errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to delete remote category",
				"doc_id", category.CloudID, "error", err)
		}
	}
	return s.categories.Delete(ctx, localID)
}
