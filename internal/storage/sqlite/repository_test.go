package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fintrack/internal/storage"
	"fintrack/internal/storage/storagetest"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "nested", "fintrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteStores(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Stores {
		return newTestRepository(t).Stores()
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fintrack.db")

	repo, err := NewRepository(path)
	require.NoError(t, err)
	stores := repo.Stores()
	require.NoError(t, stores.Pending.Create(ctx, storagetest.Tx(1, "3.50", 0)))
	require.NoError(t, stores.Pending.MarkDeletion(ctx, 9))
	require.NoError(t, repo.Close())

	repo, err = NewRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	stores = repo.Stores()

	got, err := stores.Pending.FetchByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "3.50", got.Amount)

	marks, err := stores.Pending.FetchPendingDeletions(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{9}, marks)
}

func TestCacheAndPendingAreSeparate(t *testing.T) {
	ctx := context.Background()
	stores := newTestRepository(t).Stores()

	require.NoError(t, stores.Cache.Create(ctx, storagetest.Tx(1, "1", 0)))
	_, err := stores.Pending.FetchByID(ctx, 1)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
