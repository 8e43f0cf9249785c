package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/client/models"
	"github.com/dmitrijs2005/offsync/internal/dbx"
)

const columns = `seq, change_id, table_name, primary_key, op, payload, ts, attempts, last_error, next_attempt_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.OutboxEntry, error) {
	var (
		e       models.OutboxEntry
		payload []byte
	)
	err := s.Scan(&e.Seq, &e.ChangeID, &e.Table, &e.PrimaryKey, &e.Op, &payload,
		&e.TS, &e.Attempts, &e.LastError, &e.NextAttemptAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		e.Payload = payload
	}
	return &e, nil
}

func (r *SQLiteRepository) Append(ctx context.Context, e *models.OutboxEntry) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}

	query := `INSERT INTO outbox (change_id, table_name, primary_key, op, payload, ts, attempts, last_error, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, e.ChangeID, string(e.Table), e.PrimaryKey, string(e.Op),
		payload, e.TS, e.Attempts, e.LastError, e.NextAttemptAt)
	if err != nil {
		return fmt.Errorf("failed to append outbox entry: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read outbox seq: %w", err)
	}
	e.Seq = seq
	return nil
}

func (r *SQLiteRepository) Head(ctx context.Context) (*models.OutboxEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM outbox ORDER BY ts, seq LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox head: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*models.OutboxEntry, error) {
	query := `SELECT ` + columns + ` FROM outbox WHERE seq > ? ORDER BY ts, seq LIMIT ?`
	return r.query(ctx, query, afterSeq, limit)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.OutboxEntry, error) {
	return r.query(ctx, `SELECT `+columns+` FROM outbox ORDER BY ts, seq`)
}

func (r *SQLiteRepository) DeleteByChangeIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `DELETE FROM outbox WHERE change_id IN (` + dbx.Placeholders(len(ids)) + `)`
	result, err := r.db.ExecContext(ctx, query, dbx.Args(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete outbox entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) RecordFailure(ctx context.Context, ids []string, lastError string, nextAttemptAt int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE outbox SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?
		WHERE change_id IN (` + dbx.Placeholders(len(ids)) + `)`
	args := append([]any{lastError, nextAttemptAt}, dbx.Args(ids)...)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) MaxTS(ctx context.Context) (int64, error) {
	var ts int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(ts), 0) FROM outbox`).Scan(&ts); err != nil {
		return 0, fmt.Errorf("failed to read outbox max ts: %w", err)
	}
	return ts, nil
}

func (r *SQLiteRepository) HasPending(ctx context.Context, table models.Table, pk string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM outbox WHERE table_name = ? AND primary_key = ? LIMIT 1`, string(table), pk).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up outbox entry: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	defer rows.Close()

	var result []*models.OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox rows: %w", err)
	}
	return result, nil
}
