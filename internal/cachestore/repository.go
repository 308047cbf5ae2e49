// Package cachestore provides persistent caching for derived computations.
// Values are stored as msgpack blobs with expiration timestamps for cache-first behavior.
package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Namespaces stored in the cache database.
const (
	NamespaceCovariance = "covariance"
)

// AllNamespaces lists all namespaces for cleanup operations.
var AllNamespaces = []string{
	NamespaceCovariance,
}

// validNamespaces is a set for O(1) namespace validation.
var validNamespaces = func() map[string]bool {
	m := make(map[string]bool, len(AllNamespaces))
	for _, ns := range AllNamespaces {
		m[ns] = true
	}
	return m
}()

// Repository provides cache operations over the cache_entries table.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func validateNamespace(namespace string) error {
	if !validNamespaces[namespace] {
		return fmt.Errorf("invalid cache namespace: %s", namespace)
	}
	return nil
}

// Store saves value with expiration = now + ttl, replacing any existing entry.
func (r *Repository) Store(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}

	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	expiresAt := r.now().Add(ttl).Unix()
	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache_entries (namespace, cache_key, value, expires_at) VALUES (?, ?, ?, ?)",
		namespace, key, data, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s/%s: %w", namespace, key, err)
	}
	return nil
}

// GetIfFresh decodes the entry into out only if it has not expired.
// Returns false, nil if the key doesn't exist or the entry is expired.
func (r *Repository) GetIfFresh(ctx context.Context, namespace, key string, out interface{}) (bool, error) {
	if err := validateNamespace(namespace); err != nil {
		return false, err
	}

	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE namespace = ? AND cache_key = ? AND expires_at > ?",
		namespace, key, r.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache entry %s/%s: %w", namespace, key, err)
	}

	if err := msgpack.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(ctx context.Context, namespace, key string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE namespace = ? AND cache_key = ?", namespace, key,
	); err != nil {
		return fmt.Errorf("failed to delete cache entry %s/%s: %w", namespace, key, err)
	}
	return nil
}

// DeleteExpired removes all entries of a namespace where expires_at <= now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(ctx context.Context, namespace string) (int64, error) {
	if err := validateNamespace(namespace); err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE namespace = ? AND expires_at <= ?", namespace, r.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries from %s: %w", namespace, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", namespace, err)
	}
	return deleted, nil
}

// DeleteAllExpired removes expired entries from every namespace.
// Returns a map of namespace to number of rows deleted.
func (r *Repository) DeleteAllExpired(ctx context.Context) (map[string]int64, error) {
	results := make(map[string]int64)

	for _, namespace := range AllNamespaces {
		deleted, err := r.DeleteExpired(ctx, namespace)
		if err != nil {
			return results, err
		}
		results[namespace] = deleted
	}

	return results, nil
}
