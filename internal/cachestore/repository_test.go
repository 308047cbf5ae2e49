package cachestore

import (
	"context"
	"testing"
	"time"

	testingpkg "github.com/aristath/meridian/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *Repository {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn())
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rows := [][]float64{{0.04, 0.01}, {0.01, 0.09}}
	require.NoError(t, repo.Store(ctx, NamespaceCovariance, "k1", rows, time.Hour))

	var got [][]float64
	found, err := repo.GetIfFresh(ctx, NamespaceCovariance, "k1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rows, got)
}

func TestStoreUpsert(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, NamespaceCovariance, "k1", map[string]string{"version": "1"}, time.Hour))
	require.NoError(t, repo.Store(ctx, NamespaceCovariance, "k1", map[string]string{"version": "2"}, time.Hour))

	var count int
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM cache_entries WHERE cache_key = ?", "k1").Scan(&count))
	assert.Equal(t, 1, count)

	var got map[string]string
	found, err := repo.GetIfFresh(ctx, NamespaceCovariance, "k1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", got["version"])
}

func TestGetIfFresh_ExpiredAndMissing(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	require.NoError(t, repo.Store(ctx, NamespaceCovariance, "old", []float64{1}, time.Hour))

	repo.now = func() time.Time { return base.Add(2 * time.Hour) }

	var got []float64
	found, err := repo.GetIfFresh(ctx, NamespaceCovariance, "old", &got)
	require.NoError(t, err)
	assert.False(t, found, "expired entries are not returned")

	found, err = repo.GetIfFresh(ctx, NamespaceCovariance, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidNamespace(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	err := repo.Store(ctx, "bogus; DROP TABLE cache_entries", "k", 1, time.Hour)
	assert.Error(t, err)

	_, err = repo.DeleteExpired(ctx, "bogus")
	assert.Error(t, err)
}

func TestDeleteAllExpired(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	require.NoError(t, repo.Store(ctx, NamespaceCovariance, "short", 1, time.Minute))
	require.NoError(t, repo.Store(ctx, NamespaceCovariance, "long", 2, 48*time.Hour))

	repo.now = func() time.Time { return base.Add(time.Hour) }
	results, err := repo.DeleteAllExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[NamespaceCovariance])

	var got int
	found, err := repo.GetIfFresh(ctx, NamespaceCovariance, "long", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, got)
}

func TestDelete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, NamespaceCovariance, "k", 1, time.Hour))
	require.NoError(t, repo.Delete(ctx, NamespaceCovariance, "k"))

	var got int
	found, err := repo.GetIfFresh(ctx, NamespaceCovariance, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
