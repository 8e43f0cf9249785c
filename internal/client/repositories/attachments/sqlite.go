package attachments

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

const columns = `id, filename, mime_type, size, url, upload_status, friend_id, record_tags, blob_ref, updated_at, deleted_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttachment(s scanner) (*models.Attachment, error) {
	var (
		a       models.Attachment
		tags    string
		deleted sql.NullInt64
	)
	err := s.Scan(&a.ID, &a.Filename, &a.MimeType, &a.Size, &a.URL, &a.UploadStatus,
		&a.FriendID, &tags, &a.BlobRef, &a.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &a.RecordTags); err != nil {
		return nil, fmt.Errorf("decode record_tags of attachment %s: %w", a.ID, err)
	}
	if deleted.Valid {
		a.DeletedAt = models.Int64(deleted.Int64)
	}
	a.Normalize()
	return &a, nil
}

func args(a *models.Attachment) ([]any, error) {
	tags := a.RecordTags
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return []any{a.ID, a.Filename, a.MimeType, a.Size, a.URL, string(a.UploadStatus),
		a.FriendID, string(b), a.BlobRef, a.UpdatedAt, a.DeletedAt}, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Attachment, error) {
	a, err := scanAttachment(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM attachments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get attachment %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", id, err)
	}
	return a, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, a *models.Attachment) error {
	values, err := args(a)
	if err != nil {
		return err
	}
	query := `INSERT INTO attachments (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, values...)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("attachment %s: %w", a.ID, common.ErrAlreadyExists)
	}
	return nil
}

func (r *SQLiteRepository) Put(ctx context.Context, a *models.Attachment) error {
	return r.upsert(ctx, a, true)
}

func (r *SQLiteRepository) Replace(ctx context.Context, a *models.Attachment) error {
	return r.upsert(ctx, a, false)
}

func (r *SQLiteRepository) upsert(ctx context.Context, a *models.Attachment, withBlob bool) error {
	values, err := args(a)
	if err != nil {
		return err
	}

	query := `INSERT INTO attachments (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			mime_type = excluded.mime_type,
			size = excluded.size,
			url = excluded.url,
			upload_status = excluded.upload_status,
			friend_id = excluded.friend_id,
			record_tags = excluded.record_tags,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`
	if withBlob {
		query += `,
			blob_ref = excluded.blob_ref`
	}

	if _, err := r.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to upsert attachment: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attachment %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, includeDeleted bool) ([]*models.Attachment, error) {
	query := `SELECT ` + columns + ` FROM attachments`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY updated_at, id`
	return r.query(ctx, query)
}

func (r *SQLiteRepository) ListByFriend(ctx context.Context, friendID string) ([]*models.Attachment, error) {
	query := `SELECT ` + columns + ` FROM attachments
		WHERE friend_id = ? AND deleted_at IS NULL ORDER BY updated_at, id`
	return r.query(ctx, query, friendID)
}

func (r *SQLiteRepository) GetAllPendingUpload(ctx context.Context) ([]*models.Attachment, error) {
	return r.ListByStatus(ctx, models.UploadPending)
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, status models.UploadStatus) ([]*models.Attachment, error) {
	query := `SELECT ` + columns + ` FROM attachments
		WHERE upload_status = ? AND deleted_at IS NULL ORDER BY updated_at, id`
	return r.query(ctx, query, string(status))
}

func (r *SQLiteRepository) CountByBlobRef(ctx context.Context, ref string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments WHERE blob_ref = ?`, ref).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count blob references: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting attachments: %w", err)
	}
	defer rows.Close()

	var result []*models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment row: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
