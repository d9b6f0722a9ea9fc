package postgres_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/finqa-agent-go/pkg/storage"
	postgresStore "github.com/finqa/finqa-agent-go/pkg/storage/postgres"
)

func setupPostgresTest(t *testing.T) storage.VectorStore {
	t.Helper()

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("Skipping PostgreSQL test: POSTGRES_PASSWORD not set")
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(os.Getenv("POSTGRES_PORT"))
	if err != nil {
		port = 5432
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}
	dbName := os.Getenv("POSTGRES_DATABASE")
	if dbName == "" {
		dbName = "finqa_test"
	}

	store, err := postgresStore.NewClient(&postgresStore.Config{
		Host:               host,
		Port:               port,
		User:               user,
		Password:           password,
		DBName:             dbName,
		CollectionName:     "test_knowledge_chunks",
		EmbeddingModelDims: 3,
	})
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: failed to connect: %v", err)
	}

	ctx := context.Background()
	_ = store.DeleteAll(ctx)
	t.Cleanup(func() {
		_ = store.DeleteAll(ctx)
		_ = store.Close()
	})
	return store
}

func TestPostgresClient_Search(t *testing.T) {
	store := setupPostgresTest(t)
	ctx := context.Background()

	for _, e := range []*storage.Entry{
		{ID: 1, Content: "x", Embedding: []float64{1, 0, 0}, Metadata: map[string]interface{}{"chunk_type": "column"}},
		{ID: 2, Content: "y", Embedding: []float64{0, 1, 0}, Metadata: map[string]interface{}{"chunk_type": "column"}},
		{ID: 3, Content: "x2", Embedding: []float64{2, 0, 0}, Metadata: map[string]interface{}{"chunk_type": "table"}},
	} {
		require.NoError(t, store.Insert(ctx, e))
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := store.Search(ctx, []float64{1, 0, 0}, &storage.SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)

	got, err = store.Search(ctx, []float64{1, 0, 0}, &storage.SearchOptions{
		Filters: map[string]interface{}{"chunk_type": "table"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x2", got[0].Content)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := postgresStore.NewClient(&postgresStore.Config{CollectionName: "bad name", EmbeddingModelDims: 3})
	assert.Error(t, err)

	_, err = postgresStore.NewClient(&postgresStore.Config{CollectionName: "ok"})
	assert.Error(t, err)
}
