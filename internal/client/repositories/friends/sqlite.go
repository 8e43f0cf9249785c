package friends

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/dbx"
)

const columns = `id, name, age, record_tags, updated_at, deleted_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFriend(s scanner) (*models.Friend, error) {
	var (
		f       models.Friend
		tags    string
		deleted sql.NullInt64
	)
	if err := s.Scan(&f.ID, &f.Name, &f.Age, &tags, &f.UpdatedAt, &deleted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &f.RecordTags); err != nil {
		return nil, fmt.Errorf("decode record_tags of friend %s: %w", f.ID, err)
	}
	if deleted.Valid {
		f.DeletedAt = models.Int64(deleted.Int64)
	}
	f.Normalize()
	return &f, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Friend, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM friends WHERE id = ?`, id)
	f, err := scanFriend(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get friend %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get friend %s: %w", id, err)
	}
	return f, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, f *models.Friend) error {
	tags, err := encodeTags(f.RecordTags)
	if err != nil {
		return err
	}

	query := `INSERT INTO friends (` + columns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, f.ID, f.Name, f.Age, tags, f.UpdatedAt, f.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert friend: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("friend %s: %w", f.ID, common.ErrAlreadyExists)
	}
	return nil
}

func (r *SQLiteRepository) Put(ctx context.Context, f *models.Friend) error {
	tags, err := encodeTags(f.RecordTags)
	if err != nil {
		return err
	}

	query := `INSERT INTO friends (` + columns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			record_tags = excluded.record_tags,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`
	if _, err := r.db.ExecContext(ctx, query, f.ID, f.Name, f.Age, tags, f.UpdatedAt, f.DeletedAt); err != nil {
		return fmt.Errorf("failed to upsert friend: %w", err)
	}
	return nil
}

// Replace has nothing local-only to keep, so it is a full Put.
func (r *SQLiteRepository) Replace(ctx context.Context, f *models.Friend) error {
	return r.Put(ctx, f)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM friends WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete friend %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, includeDeleted bool) ([]*models.Friend, error) {
	query := `SELECT ` + columns + ` FROM friends`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY name, id`
	return r.query(ctx, query)
}

func (r *SQLiteRepository) ListByAgeRange(ctx context.Context, min, max int) ([]*models.Friend, error) {
	query := `SELECT ` + columns + ` FROM friends
		WHERE age BETWEEN ? AND ? AND deleted_at IS NULL
		ORDER BY age, name, id`
	return r.query(ctx, query, min, max)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Friend, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var result []*models.Friend
	for rows.Next() {
		f, err := scanFriend(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend row: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friend rows: %w", err)
	}
	return result, nil
}
