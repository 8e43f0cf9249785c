package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
)

const columns = `id, tag_name, updated_at, deleted_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTag(s scanner) (*models.Tag, error) {
	var (
		t       models.Tag
		deleted sql.NullInt64
	)
	if err := s.Scan(&t.ID, &t.Name, &t.UpdatedAt, &deleted); err != nil {
		return nil, err
	}
	if deleted.Valid {
		t.DeletedAt = models.Int64(deleted.Int64)
	}
	return &t, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Tag, error) {
	t, err := scanTag(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM record_tags WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get tag %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag %s: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) FindByName(ctx context.Context, name string) (*models.Tag, error) {
	query := `SELECT ` + columns + ` FROM record_tags
		WHERE tag_name = ? COLLATE NOCASE AND deleted_at IS NULL
		ORDER BY updated_at LIMIT 1`
	t, err := scanTag(r.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find tag %q: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tag %q: %w", name, err)
	}
	return t, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, t *models.Tag) error {
	query := `INSERT INTO record_tags (` + columns + `) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.UpdatedAt, t.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tag %s: %w", t.ID, common.ErrAlreadyExists)
	}
	return nil
}

func (r *SQLiteRepository) Put(ctx context.Context, t *models.Tag) error {
	query := `INSERT INTO record_tags (` + columns + `) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tag_name = excluded.tag_name,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.UpdatedAt, t.DeletedAt); err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Replace(ctx context.Context, t *models.Tag) error {
	return r.Put(ctx, t)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM record_tags WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tag %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, includeDeleted bool) ([]*models.Tag, error) {
	query := `SELECT ` + columns + ` FROM record_tags`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY tag_name COLLATE NOCASE, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var result []*models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tag rows: %w", err)
	}
	return result, nil
}
