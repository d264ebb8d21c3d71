package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type kvRow struct {
	Key       string        `db:"key"`
	Value     string        `db:"value"`
	ExpiresAt sql.NullInt64 `db:"expires_at_unixms"`
	UpdatedAt int64         `db:"updated_at_unixms"`
}

// SQLKVRepository persists entries in the kv_entries table. Queries are written with `?`
// placeholders and rebound for the active driver.
type SQLKVRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLKVRepository constructs the repository.
func NewSQLKVRepository(db *sqlx.DB) *SQLKVRepository {
	return &SQLKVRepository{db: db, now: time.Now}
}

// Get fetches a single value by key. Expired rows read as a miss.
func (r *SQLKVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	query := r.db.Rebind(`SELECT key, value, expires_at_unixms, updated_at_unixms FROM kv_entries WHERE key = ?`)
	var row kvRow
	if err := r.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("get kv entry %s: %w", key, err)
	}
	if row.ExpiresAt.Valid && row.ExpiresAt.Int64 <= r.now().UnixMilli() {
		return nil, appErrors.ErrCacheMiss
	}
	return []byte(row.Value), nil
}

// Set inserts or updates an entry.
func (r *SQLKVRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := r.db.Rebind(`INSERT INTO kv_entries (key, value, expires_at_unixms, updated_at_unixms)
VALUES (?, ?, ?, ?)
ON CONFLICT (key)
DO UPDATE SET value = excluded.value, expires_at_unixms = excluded.expires_at_unixms,
              updated_at_unixms = excluded.updated_at_unixms`)
	now := r.now()
	var expires sql.NullInt64
	if ttl > 0 {
		expires = sql.NullInt64{Int64: now.Add(ttl).UnixMilli(), Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, key, string(value), expires, now.UnixMilli()); err != nil {
		return fmt.Errorf("upsert kv entry %s: %w", key, err)
	}
	return nil
}

// Delete removes an entry.
func (r *SQLKVRepository) Delete(ctx context.Context, key string) error {
	query := r.db.Rebind(`DELETE FROM kv_entries WHERE key = ?`)
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete kv entry %s: %w", key, err)
	}
	return nil
}

// PurgeExpired removes rows whose expiry has passed.
func (r *SQLKVRepository) PurgeExpired(ctx context.Context) (int64, error) {
	query := r.db.Rebind(`DELETE FROM kv_entries WHERE expires_at_unixms IS NOT NULL AND expires_at_unixms <= ?`)
	res, err := r.db.ExecContext(ctx, query, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge kv entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge kv entries: %w", err)
	}
	return removed, nil
}

// Close releases the database handle.
func (r *SQLKVRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
