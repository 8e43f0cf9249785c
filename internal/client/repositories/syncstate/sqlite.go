package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `SELECT last_seq FROM sync_state WHERE key = ?`, key).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get sync_state[%s]: %w", key, err)
	}
	return seq, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, lastSeq int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, last_seq) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET last_seq = excluded.last_seq
	`, key, lastSeq)
	if err != nil {
		return fmt.Errorf("failed to set sync_state[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete sync_state[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, last_seq FROM sync_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync_state: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var (
			key string
			seq int64
		)
		if err := rows.Scan(&key, &seq); err != nil {
			return nil, fmt.Errorf("failed to scan sync_state row: %w", err)
		}
		result[key] = seq
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync_state rows: %w", err)
	}

	return result, nil
}
