package optimization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/meridian/internal/cachestore"
)

// CovarianceStore is the persistence behind the covariance cache.
type CovarianceStore interface {
	Store(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error
	GetIfFresh(ctx context.Context, namespace, key string, out interface{}) (bool, error)
	DeleteExpired(ctx context.Context, namespace string) (int64, error)
}

// CovarianceCache memoizes covariance estimates of store-resolved return windows.
type CovarianceCache struct {
	store CovarianceStore
	ttl   time.Duration
}

// NewCovarianceCache creates a cache whose entries live for ttl.
func NewCovarianceCache(store CovarianceStore, ttl time.Duration) *CovarianceCache {
	if ttl <= 0 {
		ttl = cachestore.TTLCovariance
	}
	return &CovarianceCache{store: store, ttl: ttl}
}

// CovarianceKey identifies an estimate by universe (in order), as-of date, window
// length and shrinkage intensity.
func CovarianceKey(universe []string, asOf string, windowDays int, shrinkage float64) string {
	raw := fmt.Sprintf("%s|%s|%d|%.6f", strings.Join(universe, ","), asOf, windowDays, shrinkage)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}

// Get returns the cached matrix for key, if fresh.
func (c *CovarianceCache) Get(ctx context.Context, key string) (CovarianceMatrix, bool, error) {
	var rows [][]float64
	found, err := c.store.GetIfFresh(ctx, cachestore.NamespaceCovariance, key, &rows)
	if err != nil || !found {
		return CovarianceMatrix{}, false, err
	}
	cov, err := NewCovarianceMatrix(rows)
	if err != nil {
		return CovarianceMatrix{}, false, fmt.Errorf("cached covariance %s is corrupt: %w", key, err)
	}
	return cov, true, nil
}

// Put stores cov under key.
func (c *CovarianceCache) Put(ctx context.Context, key string, cov CovarianceMatrix) error {
	return c.store.Store(ctx, cachestore.NamespaceCovariance, key, cov.Rows(), c.ttl)
}

// PurgeExpired removes expired covariance entries.
func (c *CovarianceCache) PurgeExpired(ctx context.Context) (int64, error) {
	return c.store.DeleteExpired(ctx, cachestore.NamespaceCovariance)
}
