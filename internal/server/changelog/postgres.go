package changelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offsync/internal/dbx"
	"github.com/dmitrijs2005/offsync/internal/server/migrations"
	"github.com/dmitrijs2005/offsync/internal/server/models"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore keeps the change log in the "changes" table.
type PostgresStore struct {
	db *sql.DB
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// OpenPostgres connects with the pgx stdlib driver and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append writes the batch in one transaction. The table lock orders
// concurrent appends so sequence values commit in increasing order; readers
// are not blocked.
func (s *PostgresStore) Append(ctx context.Context, changes []*models.Change) error {
	if len(changes) == 0 {
		return nil
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE changes IN EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("failed to lock changes: %w", err)
		}
		for _, c := range changes {
			seq, err := appendOne(ctx, tx, c)
			if err != nil {
				return err
			}
			c.Seq = seq
		}
		return nil
	})
}

func appendOne(ctx context.Context, tx dbx.DBTX, c *models.Change) (int64, error) {
	var data any
	if len(c.Data) > 0 {
		data = string(c.Data)
	}

	query := `
		INSERT INTO changes (change_id, table_name, pk, op, data, client_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (change_id) DO NOTHING
		RETURNING seq
	`
	var seq int64
	err := tx.QueryRowContext(ctx, query, c.ChangeID, c.Table, c.PK, string(c.Op), data, c.ClientTS).Scan(&seq)
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to append change %s: %w", c.ChangeID, err)
	}

	// already stored
	if err := tx.QueryRowContext(ctx, `SELECT seq FROM changes WHERE change_id = $1`, c.ChangeID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to look up change %s: %w", c.ChangeID, err)
	}
	return seq, nil
}

func (s *PostgresStore) Since(ctx context.Context, since int64, limit int) ([]*models.Change, bool, error) {
	query := `
		SELECT seq, change_id, table_name, pk, op, data, client_ts
		FROM changes
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, since, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to select changes: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Change, 0, limit)
	for rows.Next() {
		var (
			item models.Change
			op   string
			data sql.NullString
		)
		if err := rows.Scan(&item.Seq, &item.ChangeID, &item.Table, &item.PK, &op, &data, &item.ClientTS); err != nil {
			return nil, false, fmt.Errorf("failed to scan change: %w", err)
		}
		item.Op = models.Op(op)
		if data.Valid {
			item.Data = []byte(data.String)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(result) > limit
	if hasMore {
		result = result[:limit]
	}
	return result, hasMore, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
