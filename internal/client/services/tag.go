package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/offsync/internal/client/capture"
	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/tags"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/google/uuid"
)

type TagService interface {
	Create(ctx context.Context, name string) (*models.Tag, error)
	Rename(ctx context.Context, id, name string) (*models.Tag, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Tag, error)
	Resolve(ctx context.Context, ref string) (*models.Tag, error)
}

type tagService struct {
	db    dbx.DBTX
	repo  *capture.Tags
	mode  DeleteMode
	newID func() string
}

func NewTagService(db dbx.DBTX, repo *capture.Tags, mode DeleteMode) TagService {
	if !mode.Valid() {
		mode = DeleteHard
	}
	return &tagService{db: db, repo: repo, mode: mode, newID: uuid.NewString}
}

// checkName trims name and makes sure no other live tag uses it.
func (s *tagService) checkName(ctx context.Context, name, selfID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: tag name is required", common.ErrValidation)
	}

	existing, err := tags.NewSQLiteRepository(s.db).FindByName(ctx, name)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return name, nil
	case err != nil:
		return "", err
	case existing.ID != selfID:
		return "", fmt.Errorf("tag %q: %w", name, common.ErrAlreadyExists)
	}
	return name, nil
}

func (s *tagService) Create(ctx context.Context, name string) (*models.Tag, error) {
	name, err := s.checkName(ctx, name, "")
	if err != nil {
		return nil, err
	}
	t := &models.Tag{ID: s.newID(), Name: name}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("error creating tag: %w", err)
	}
	return t, nil
}

func (s *tagService) Rename(ctx context.Context, id, name string) (*models.Tag, error) {
	name, err := s.checkName(ctx, name, id)
	if err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, func(t *models.Tag) error {
		if t.DeletedAt != nil {
			return fmt.Errorf("tag %s is deleted: %w", id, common.ErrNotFound)
		}
		t.Name = name
		return nil
	})
}

func (s *tagService) Delete(ctx context.Context, id string) error {
	if s.mode == DeleteSoft {
		_, err := s.repo.SoftDelete(ctx, id)
		return err
	}
	return s.repo.Delete(ctx, id)
}

// List returns live tags, most recently changed first.
func (s *tagService) List(ctx context.Context) ([]*models.Tag, error) {
	list, err := tags.NewSQLiteRepository(s.db).List(ctx, false)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt > list[j].UpdatedAt })
	return list, nil
}

// Resolve finds a live tag by id or name.
func (s *tagService) Resolve(ctx context.Context, ref string) (*models.Tag, error) {
	return resolveTag(ctx, s.db, ref)
}
