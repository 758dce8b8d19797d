package memory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stepflow/pkg/stepflow/memory"
)

func TestSQLiteStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) memory.Store {
		store, err := memory.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "stepflow.db")

	store1, err := memory.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Save(ctx, "flow-1", map[string]any{"answer": float64(42)}))
	require.NoError(t, store1.Close())

	store2, err := memory.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	out, err := store2.Load(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": float64(42)}, out)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := memory.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}
