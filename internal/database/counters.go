package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CKsangiacomo/clickeen-sub004/internal/counter"
)

// Compile-time check that CounterStore implements counter.Store.
var _ counter.Store = (*CounterStore)(nil)

// CounterStore exposes the usage_counters table through the counter.Store
// interface. Expired entries read as absent and are lazily deleted.
type CounterStore struct {
	db *sql.DB
}

// Counters returns the counter store backed by this database.
func (s *SQLiteDB) Counters() *CounterStore {
	return &CounterStore{db: s.db}
}

func (c *CounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresStr sql.NullString
	err := c.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM usage_counters WHERE key = ?`, key,
	).Scan(&value, &expiresStr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get counter: %w", err)
	}
	if expiresStr.Valid && expiresStr.String != "" {
		if expires, err := time.Parse(time.RFC3339, expiresStr.String); err == nil && time.Now().After(expires) {
			c.db.ExecContext(ctx, `DELETE FROM usage_counters WHERE key = ?`, key)
			return "", false, nil
		}
	}
	return value, true, nil
}

func (c *CounterStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = time.Now().Add(ttl).UTC().Format(time.RFC3339)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO usage_counters (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires,
	)
	if err != nil {
		return fmt.Errorf("put counter: %w", err)
	}
	return nil
}
