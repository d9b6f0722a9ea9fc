package relevance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finqa/finqa-agent-go/pkg/relevance"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"stock", "price", "600519"}, relevance.Tokenize("  Stock\tPRICE\n600519 "))
	assert.Empty(t, relevance.Tokenize("   "))
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		content string
		want    float64
	}{
		{name: "full containment", query: "stock price", content: "the closing price of the stock", want: 1},
		{name: "partial", query: "stock price date", content: "stock list", want: 1.0 / 3.0},
		{name: "no overlap", query: "stock price", content: "bond yield", want: 0},
		{name: "case insensitive", query: "Stock", content: "STOCK", want: 1},
		{name: "empty query", query: "", content: "anything", want: 0},
		{name: "empty content", query: "stock", content: "", want: 0},
		{name: "repeated query token counted once per match", query: "a a b", content: "a b", want: 2.0 / 3.0},
		{name: "repeated in both", query: "a a", content: "a a a", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, relevance.Score(tt.query, tt.content), 1e-9)
		})
	}
}

func TestScoreIsAsymmetric(t *testing.T) {
	short := "price"
	long := "price of a share on the exchange"
	assert.Equal(t, 1.0, relevance.Score(short, long))
	assert.Less(t, relevance.Score(long, short), 1.0)
}

func TestRank(t *testing.T) {
	items := []string{
		"bond yield curve",
		"stock price on date",
		"stock list",
		"price history",
		"stock price",
	}
	id := func(s string) string { return s }

	got := relevance.Rank("stock price", items, 10, id)

	var texts []string
	for _, s := range got {
		texts = append(texts, s.Item)
		assert.Greater(t, s.Score, 0.0)
	}
	// full matches keep input order, then half matches in input order
	assert.Equal(t, []string{"stock price on date", "stock price", "stock list", "price history"}, texts)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRankTopK(t *testing.T) {
	items := []string{"a", "a b", "a b c"}
	id := func(s string) string { return s }

	assert.Len(t, relevance.Rank("a", items, 2, id), 2)
	assert.Nil(t, relevance.Rank("a", items, 0, id))
	assert.Nil(t, relevance.Rank("a", nil, 3, id))
	assert.Empty(t, relevance.Rank("z", items, 3, id))
}
