package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fintrack/internal/storage"
	"fintrack/internal/storage/storagetest"
)

func TestBoltStores(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Stores {
		s, err := Open(filepath.Join(t.TempDir(), "fintrack.bolt"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s.Stores()
	})
}

func TestCanceledContext(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "fintrack.bolt"))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Stores().Cache.FetchAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestItob(t *testing.T) {
	for _, v := range []int64{0, 1, 1 << 40, -5} {
		require.Equal(t, v, btoi(itob(v)))
	}
}
