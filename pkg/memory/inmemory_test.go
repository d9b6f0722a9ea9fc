package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/memory"
)

func record(content string, kind memory.Kind, at time.Time) *memory.Record {
	rec := memory.NewRecord(content, kind, nil)
	rec.CreatedAt = at
	return rec
}

func TestInMemoryStore_Retrieve(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()

	require.NoError(t, store.Store(ctx, memory.NewRecord("stock price lookup for 600519", memory.KindStrategy, nil)))
	require.NoError(t, store.Store(ctx, memory.NewRecord("bond holdings report", memory.KindStrategy, nil)))
	require.NoError(t, store.Store(ctx, memory.NewRecord("stock list", memory.KindContext, nil)))
	require.NoError(t, store.Store(ctx, memory.NewRecord("price of stock yesterday", memory.KindStrategy, nil)))

	t.Run("ordered by score, ties in insertion order", func(t *testing.T) {
		got, err := store.Retrieve(ctx, "stock price", 10, "")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "stock price lookup for 600519", got[0].Content)
		assert.Equal(t, "price of stock yesterday", got[1].Content)
		assert.Equal(t, "stock list", got[2].Content)
		for i, r := range got {
			assert.Greater(t, r.Relevance, 0.0)
			if i > 0 {
				assert.GreaterOrEqual(t, got[i-1].Relevance, r.Relevance)
			}
		}
	})

	t.Run("filter by kind", func(t *testing.T) {
		got, err := store.Retrieve(ctx, "stock", 10, memory.KindContext)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, memory.KindContext, got[0].Kind)
	})

	t.Run("top k", func(t *testing.T) {
		got, err := store.Retrieve(ctx, "stock", 1, "")
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = store.Retrieve(ctx, "stock", 0, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := store.Retrieve(ctx, "fibonacci", 5, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestInMemoryStore_RetrieveDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	require.NoError(t, store.Store(ctx, memory.NewRecord("stock price", memory.KindResult, map[string]interface{}{"step": 1})))

	first, err := store.Retrieve(ctx, "stock", 5, "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1.0, first[0].Relevance)

	first[0].Content = "changed"
	first[0].Metadata["step"] = 99

	second, err := store.Retrieve(ctx, "stock price", 5, "")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "stock price", second[0].Content)
	assert.Equal(t, 1, second[0].Metadata["step"])

	recent, err := store.Recent(ctx, 5, "")
	require.NoError(t, err)
	assert.Zero(t, recent[0].Relevance)
}

func TestInMemoryStore_StoreCopiesInput(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()

	rec := memory.NewRecord("original", memory.KindAction, map[string]interface{}{"k": "v"})
	require.NoError(t, store.Store(ctx, rec))
	rec.Content = "mutated"
	rec.Metadata["k"] = "mutated"

	got, err := store.Recent(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "original", got[0].Content)
	assert.Equal(t, "v", got[0].Metadata["k"])
}

func TestInMemoryStore_Recent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	base := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)

	require.NoError(t, store.Store(ctx, record("oldest", memory.KindAction, base)))
	require.NoError(t, store.Store(ctx, record("newest", memory.KindResult, base.Add(2*time.Minute))))
	require.NoError(t, store.Store(ctx, record("tie-a", memory.KindAction, base.Add(time.Minute))))
	require.NoError(t, store.Store(ctx, record("tie-b", memory.KindAction, base.Add(time.Minute))))

	got, err := store.Recent(ctx, 10, "")
	require.NoError(t, err)
	var contents []string
	for i, r := range got {
		contents = append(contents, r.Content)
		if i > 0 {
			assert.False(t, r.CreatedAt.After(got[i-1].CreatedAt))
		}
	}
	assert.Equal(t, []string{"newest", "tie-a", "tie-b", "oldest"}, contents)

	got, err = store.Recent(ctx, 2, memory.KindAction)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tie-a", got[0].Content)
	assert.Equal(t, "tie-b", got[1].Content)

	got, err = store.Recent(ctx, 0, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	require.NoError(t, store.Store(ctx, memory.NewRecord("a", memory.KindAction, nil)))
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Len())
	got, err := store.Recent(ctx, 5, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemoryStore_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()

	assert.ErrorIs(t, store.Store(ctx, nil), memory.ErrNilRecord)
	assert.ErrorIs(t, store.Store(ctx, memory.NewRecord("x", memory.Kind("thought"), nil)), memory.ErrInvalidKind)
	assert.Equal(t, 0, store.Len())
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = store.Store(ctx, memory.NewRecord(fmt.Sprintf("worker %d item %d", w, i), memory.KindResult, nil))
				_, _ = store.Retrieve(ctx, "worker item", 3, "")
				_, _ = store.Recent(ctx, 3, "")
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 400, store.Len())
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	rec := memory.NewRecord("查询 600519 收盘价", memory.KindResult, map[string]interface{}{
		"error": true,
		"tool":  "QueryDB",
		"step":  2.0,
	})
	rec.Relevance = 0.75

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	_, err = time.Parse(time.RFC3339, raw["created_at"].(string))
	assert.NoError(t, err, "created_at is ISO-8601")

	var decoded memory.Record
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, rec.Content, decoded.Content)
	assert.Equal(t, rec.Kind, decoded.Kind)
	assert.True(t, rec.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, rec.Metadata, decoded.Metadata)
}

func TestNewRecord(t *testing.T) {
	rec := memory.NewRecord("plan", memory.KindStrategy, nil)
	assert.Len(t, rec.ID, 12)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())

	k, err := memory.ParseKind("context")
	require.NoError(t, err)
	assert.Equal(t, memory.KindContext, k)

	_, err = memory.ParseKind("observation")
	assert.ErrorIs(t, err, memory.ErrInvalidKind)
}

type failingStore struct{}

func (failingStore) Store(context.Context, *memory.Record) error {
	return errors.New("disk full")
}

func (failingStore) Retrieve(context.Context, string, int, memory.Kind) ([]*memory.Record, error) {
	return nil, errors.New("disk full")
}

func (failingStore) Recent(context.Context, int, memory.Kind) ([]*memory.Record, error) {
	return nil, errors.New("disk full")
}

func (failingStore) Clear(context.Context) error {
	return nil
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("stores", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		rec := memory.NewRecorder(store, zap.NewNop())
		id := rec.Record(ctx, "tool started", memory.KindAction, map[string]interface{}{"tool": "QueryDB"})
		assert.Len(t, id, 12)
		assert.Equal(t, 1, store.Len())
		assert.Same(t, store, rec.Store())
	})

	t.Run("swallows store errors", func(t *testing.T) {
		rec := memory.NewRecorder(failingStore{}, nil)
		assert.Equal(t, "", rec.Record(ctx, "x", memory.KindResult, nil))
		assert.Empty(t, rec.Retrieve(ctx, "x", 3, ""))
	})

	t.Run("nil store", func(t *testing.T) {
		rec := memory.NewRecorder(nil, nil)
		assert.Equal(t, "", rec.Record(ctx, "x", memory.KindResult, nil))
		assert.Empty(t, rec.Retrieve(ctx, "x", 3, ""))
	})
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	base := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	summary, err := memory.Summarize(ctx, store, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Nil(t, summary.Latest)

	require.NoError(t, store.Store(ctx, record("a", memory.KindAction, base)))
	require.NoError(t, store.Store(ctx, record("b", memory.KindResult, base.Add(time.Second))))
	require.NoError(t, store.Store(ctx, record("c", memory.KindAction, base.Add(2*time.Second))))

	summary, err = memory.Summarize(ctx, store, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByKind[memory.KindAction])
	assert.Equal(t, 1, summary.ByKind[memory.KindResult])
	require.NotNil(t, summary.Latest)
	assert.Equal(t, "c", summary.Latest.Content)

	summary, err = memory.Summarize(ctx, store, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
}
