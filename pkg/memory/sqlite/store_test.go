package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/finqa-agent-go/pkg/memory"
	memsqlite "github.com/finqa/finqa-agent-go/pkg/memory/sqlite"
)

func setupStore(t *testing.T) *memsqlite.Store {
	t.Helper()
	store, err := memsqlite.NewStore(&memsqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "memory.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RetrieveMatchesInMemory(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	ref := memory.NewInMemoryStore()

	contents := []struct {
		content string
		kind    memory.Kind
	}{
		{"stock price lookup for 600519", memory.KindStrategy},
		{"bond holdings report", memory.KindStrategy},
		{"stock list", memory.KindContext},
		{"price of stock yesterday", memory.KindStrategy},
	}
	for _, c := range contents {
		rec := memory.NewRecord(c.content, c.kind, map[string]interface{}{"plan_steps": 6.0})
		require.NoError(t, store.Store(ctx, rec))
		require.NoError(t, ref.Store(ctx, rec))
	}

	got, err := store.Retrieve(ctx, "stock price", 10, "")
	require.NoError(t, err)
	want, err := ref.Retrieve(ctx, "stock price", 10, "")
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Content, got[i].Content)
		assert.InDelta(t, want[i].Relevance, got[i].Relevance, 1e-9)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
		assert.Equal(t, 6.0, got[i].Metadata["plan_steps"])
	}

	got, err = store.Retrieve(ctx, "stock", 10, memory.KindContext)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "stock list", got[0].Content)
}

func TestStore_Recent(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	base := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)

	for i, c := range []string{"first", "second", "third"} {
		rec := memory.NewRecord(c, memory.KindAction, nil)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Store(ctx, rec))
	}

	got, err := store.Recent(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Nil(t, got[0].Metadata)
}

func TestStore_ClearAndValidate(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	assert.ErrorIs(t, store.Store(ctx, nil), memory.ErrNilRecord)
	require.NoError(t, store.Store(ctx, memory.NewRecord("x", memory.KindResult, nil)))
	require.NoError(t, store.Clear(ctx))

	got, err := store.Recent(ctx, 10, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	first, err := memsqlite.NewStore(&memsqlite.Config{DBPath: path})
	require.NoError(t, err)
	require.NoError(t, first.Store(ctx, memory.NewRecord("kept across reopen", memory.KindStrategy, nil)))
	require.NoError(t, first.Close())

	second, err := memsqlite.NewStore(&memsqlite.Config{DBPath: path})
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	got, err := second.Retrieve(ctx, "kept", 1, memory.KindStrategy)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept across reopen", got[0].Content)
}

func TestNewStore_InvalidTable(t *testing.T) {
	_, err := memsqlite.NewStore(&memsqlite.Config{DBPath: ":memory:", TableName: "bad name;"})
	assert.Error(t, err)
}
