package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/offsync/internal/client/capture"
	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/friends"
	"github.com/dmitrijs2005/offsync/internal/client/repositories/tags"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/google/uuid"
)

// DeleteMode selects how user deletes are recorded.
type DeleteMode string

const (
	// DeleteHard removes the row and syncs a delete by key.
	DeleteHard DeleteMode = "hard"
	// DeleteSoft keeps a tombstone and syncs it as an upsert.
	DeleteSoft DeleteMode = "soft"
)

func (m DeleteMode) Valid() bool {
	return m == DeleteHard || m == DeleteSoft
}

// FriendPatch lists the fields an update changes; nil fields are kept.
type FriendPatch struct {
	Name *string
	Age  *int
}

type FriendService interface {
	Add(ctx context.Context, name string, age int, tagRefs []string) (*models.Friend, error)
	Update(ctx context.Context, id string, patch FriendPatch) (*models.Friend, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Friend, error)
	List(ctx context.Context, includeDeleted bool) ([]*models.Friend, error)
	ListByAgeRange(ctx context.Context, min, max int) ([]*models.Friend, error)
	Tag(ctx context.Context, id, tagRef string) (*models.Friend, error)
	Untag(ctx context.Context, id, tagRef string) (*models.Friend, error)
}

type friendService struct {
	db    dbx.DBTX
	repo  *capture.Friends
	mode  DeleteMode
	newID func() string
}

func NewFriendService(db dbx.DBTX, repo *capture.Friends, mode DeleteMode) FriendService {
	if !mode.Valid() {
		mode = DeleteHard
	}
	return &friendService{db: db, repo: repo, mode: mode, newID: uuid.NewString}
}

func validateFriend(name string, age int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", common.ErrValidation)
	}
	if age < 0 {
		return "", fmt.Errorf("%w: age must not be negative", common.ErrValidation)
	}
	return name, nil
}

func (s *friendService) Add(ctx context.Context, name string, age int, tagRefs []string) (*models.Friend, error) {
	name, err := validateFriend(name, age)
	if err != nil {
		return nil, err
	}

	tagIDs := make([]string, 0, len(tagRefs))
	for _, ref := range tagRefs {
		t, err := resolveTag(ctx, s.db, ref)
		if err != nil {
			return nil, err
		}
		if !contains(tagIDs, t.ID) {
			tagIDs = append(tagIDs, t.ID)
		}
	}

	f := &models.Friend{ID: s.newID(), Name: name, Age: age, RecordTags: tagIDs}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("error adding friend: %w", err)
	}
	return f, nil
}

func (s *friendService) Update(ctx context.Context, id string, patch FriendPatch) (*models.Friend, error) {
	return s.repo.Update(ctx, id, func(f *models.Friend) error {
		if !f.Live() {
			return fmt.Errorf("friend %s is deleted: %w", id, common.ErrNotFound)
		}
		name, age := f.Name, f.Age
		if patch.Name != nil {
			name = *patch.Name
		}
		if patch.Age != nil {
			age = *patch.Age
		}
		name, err := validateFriend(name, age)
		if err != nil {
			return err
		}
		f.Name, f.Age = name, age
		return nil
	})
}

func (s *friendService) Delete(ctx context.Context, id string) error {
	if s.mode == DeleteSoft {
		if _, err := s.repo.SoftDelete(ctx, id); err != nil {
			return fmt.Errorf("error deleting friend: %w", err)
		}
		return nil
	}

	// a hard delete does not need the row, but deleting an unknown id is
	// almost always a typo
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("error deleting friend: %w", err)
	}
	return nil
}

func (s *friendService) Get(ctx context.Context, id string) (*models.Friend, error) {
	return friends.NewSQLiteRepository(s.db).Get(ctx, id)
}

func (s *friendService) List(ctx context.Context, includeDeleted bool) ([]*models.Friend, error) {
	return friends.NewSQLiteRepository(s.db).List(ctx, includeDeleted)
}

func (s *friendService) ListByAgeRange(ctx context.Context, min, max int) ([]*models.Friend, error) {
	if min > max {
		return nil, fmt.Errorf("%w: min age %d is greater than max age %d", common.ErrValidation, min, max)
	}
	return friends.NewSQLiteRepository(s.db).ListByAgeRange(ctx, min, max)
}

func (s *friendService) Tag(ctx context.Context, id, tagRef string) (*models.Friend, error) {
	t, err := resolveTag(ctx, s.db, tagRef)
	if err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, func(f *models.Friend) error {
		if !f.HasTag(t.ID) {
			f.RecordTags = append(f.RecordTags, t.ID)
		}
		return nil
	})
}

func (s *friendService) Untag(ctx context.Context, id, tagRef string) (*models.Friend, error) {
	tagID := tagRef
	if t, err := resolveTag(ctx, s.db, tagRef); err == nil {
		tagID = t.ID
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	return s.repo.Update(ctx, id, func(f *models.Friend) error {
		kept := f.RecordTags[:0]
		for _, t := range f.RecordTags {
			if t != tagID {
				kept = append(kept, t)
			}
		}
		f.RecordTags = kept
		return nil
	})
}

// resolveTag finds a live tag by id or, failing that, by name.
func resolveTag(ctx context.Context, db dbx.DBTX, ref string) (*models.Tag, error) {
	repo := tags.NewSQLiteRepository(db)
	t, err := repo.Get(ctx, ref)
	if err == nil && t.DeletedAt == nil {
		return t, nil
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	return repo.FindByName(ctx, strings.TrimSpace(ref))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
