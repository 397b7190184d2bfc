package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	perrors "github.com/p-blackswan/buffr/internal/errors"
)

// Bucket is a named key space of JSON documents.
type Bucket struct {
	name string
	db   *sql.DB
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Get decodes the document stored under key into v.
// Returns an error wrapping perrors.ErrNotFound when the key is absent.
func (b *Bucket) Get(ctx context.Context, key string, v interface{}) error {
	var raw []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM blobs WHERE bucket = ? AND key = ?`, b.name, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", b.name, key, perrors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s/%s: %w", b.name, key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", b.name, key, err)
	}
	return nil
}

// Put encodes v as JSON and stores it under key, replacing any previous value.
func (b *Bucket) Put(ctx context.Context, key string, v interface{}) error {
	if key == "" {
		return fmt.Errorf("%s: empty key: %w", b.name, perrors.ErrInvalidInput)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", b.name, key, err)
	}
	now := time.Now().UnixMilli()
	_, err = b.db.ExecContext(ctx, `
	INSERT INTO blobs (bucket, key, value, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, b.name, key, raw, now, now)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", b.name, key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blobs WHERE bucket = ? AND key = ?`, b.name, key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check %s/%s: %w", b.name, key, err)
	}
	return n > 0, nil
}

// Delete removes key. Returns false if the key did not exist.
func (b *Bucket) Delete(ctx context.Context, key string) (bool, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM blobs WHERE bucket = ? AND key = ?`, b.name, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", b.name, key, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeletePrefix removes every key starting with prefix and returns how many went.
func (b *Bucket) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE bucket = ? AND substr(key, 1, ?) = ?`,
		b.name, len(prefix), prefix,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s/%s*: %w", b.name, prefix, err)
	}
	return res.RowsAffected()
}

// Keys lists keys starting with prefix in key order.
func (b *Bucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key FROM blobs WHERE bucket = ? AND substr(key, 1, ?) = ? ORDER BY key`,
		b.name, len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", b.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Each calls fn with every raw document whose key starts with prefix, in key order.
func (b *Bucket) Each(ctx context.Context, prefix string, fn func(key string, raw []byte) error) error {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key, value FROM blobs WHERE bucket = ? AND substr(key, 1, ?) = ? ORDER BY key`,
		b.name, len(prefix), prefix,
	)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", b.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return fmt.Errorf("failed to scan %s: %w", b.name, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	return rows.Err()
}

// List decodes every document under prefix into a slice of T.
func List[T any](ctx context.Context, b *Bucket, prefix string) ([]T, error) {
	out := []T{}
	err := b.Each(ctx, prefix, func(key string, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("failed to decode %s/%s: %w", b.name, key, err)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
