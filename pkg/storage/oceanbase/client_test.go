package oceanbase

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/finqa-agent-go/pkg/storage"
)

func TestVectorString(t *testing.T) {
	assert.Equal(t, "[]", vectorToString(nil))
	assert.Equal(t, "[0.1,-2,3.5]", vectorToString([]float64{0.1, -2, 3.5}))

	v, err := stringToVector(" [0.1, -2,3.5] ")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, -2, 3.5}, v)

	v, err = stringToVector("[]")
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = stringToVector("[a,b]")
	assert.Error(t, err)
}

func TestBuildWhereClause(t *testing.T) {
	clause, args, err := buildWhereClause(map[string]interface{}{"table": "stock_daily", "chunk_type": "column"})
	require.NoError(t, err)
	assert.Equal(t,
		"WHERE JSON_UNQUOTE(JSON_EXTRACT(metadata, '$.chunk_type')) = ? AND JSON_UNQUOTE(JSON_EXTRACT(metadata, '$.table')) = ?",
		clause)
	assert.Equal(t, []interface{}{"column", "stock_daily"}, args)

	clause, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, clause)
	assert.Empty(t, args)

	_, _, err = buildWhereClause(map[string]interface{}{"x') OR 1=1 --": "y"})
	assert.Error(t, err)
}

func TestGenerateHash(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", generateHash(""))
	assert.Len(t, generateHash("table stock_daily"), 32)
}

func TestConfigDSN(t *testing.T) {
	cfg := &Config{Host: "ob.local", Port: 2881, User: "root@sys", Password: "p@ss", DBName: "finqa"}
	parsed, err := mysql.ParseDSN(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "ob.local:2881", parsed.Addr)
	assert.Equal(t, "root@sys", parsed.User)
	assert.Equal(t, "p@ss", parsed.Passwd)
	assert.Equal(t, "finqa", parsed.DBName)
	assert.True(t, parsed.ParseTime)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&Config{CollectionName: "bad name", EmbeddingModelDims: 3})
	assert.Error(t, err)

	_, err = NewClient(&Config{CollectionName: "ok"})
	assert.Error(t, err)
}

func TestOceanBaseClient_Search(t *testing.T) {
	host := os.Getenv("OCEANBASE_HOST")
	if host == "" {
		t.Skip("Skipping OceanBase test: OCEANBASE_HOST not set")
	}
	port, err := strconv.Atoi(os.Getenv("OCEANBASE_PORT"))
	if err != nil {
		port = 2881
	}

	store, err := NewClient(&Config{
		Host:               host,
		Port:               port,
		User:               os.Getenv("OCEANBASE_USER"),
		Password:           os.Getenv("OCEANBASE_PASSWORD"),
		DBName:             os.Getenv("OCEANBASE_DATABASE"),
		CollectionName:     "test_knowledge_chunks",
		EmbeddingModelDims: 3,
	})
	if err != nil {
		t.Skipf("Skipping OceanBase test: failed to connect: %v", err)
	}
	ctx := context.Background()
	_ = store.DeleteAll(ctx)
	defer func() {
		_ = store.DeleteAll(ctx)
		_ = store.Close()
	}()

	for _, e := range []*storage.Entry{
		{ID: 1, Content: "x", Embedding: []float64{1, 0, 0}, Metadata: map[string]interface{}{"chunk_type": "column"}},
		{ID: 2, Content: "y", Embedding: []float64{0, 1, 0}, Metadata: map[string]interface{}{"chunk_type": "column"}},
		{ID: 3, Content: "x2", Embedding: []float64{2, 0, 0}, Metadata: map[string]interface{}{"chunk_type": "table"}},
	} {
		require.NoError(t, store.Insert(ctx, e))
	}
	assert.Error(t, store.Insert(ctx, &storage.Entry{ID: 4, Embedding: []float64{1}}))

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
