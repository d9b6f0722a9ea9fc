package search_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/finqa-agent-go/pkg/knowledge"
	"github.com/finqa/finqa-agent-go/pkg/tool/search"
)

type errRetriever struct{ err error }

func (r errRetriever) Retrieve(context.Context, string, int) ([]knowledge.Hit, error) {
	return nil, r.err
}

func TestEmbeddingSearch(t *testing.T) {
	doc := &knowledge.Document{Tables: []knowledge.Table{
		{TableName: "stock_daily", BusinessDescription: "daily stock quotes",
			Columns: []knowledge.Column{{Name: "close", Type: "REAL"}}},
	}}
	s := search.New(knowledge.NewKeywordRetriever(doc), 1, nil)
	assert.Equal(t, "EmbeddingSearch", s.Name())

	out, err := s.Call(context.Background(), "stock_daily")
	require.NoError(t, err)
	assert.Equal(t, "[1] (1.00) table: stock_daily\ndescription: daily stock quotes", out)

	out, err = s.Call(context.Background(), "bond")
	require.NoError(t, err)
	assert.Equal(t, search.NoResults, out)
}

func TestEmbeddingSearch_Error(t *testing.T) {
	boom := errors.New("index unavailable")
	_, err := search.New(errRetriever{err: boom}, 0, nil).Call(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}
