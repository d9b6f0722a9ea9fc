package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/finqa/finqa-agent-go/pkg/relevance"
)

// Hit is a ranked chunk.
type Hit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Retriever returns the chunks most relevant to a query, highest score first,
// ties in document order, at most topK of them.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Hit, error)
}

// KeywordRetriever ranks chunks with the token-containment score. Chunks with
// no overlap are never returned.
type KeywordRetriever struct {
	chunks []Chunk
}

// NewKeywordRetriever chunks doc for keyword retrieval.
func NewKeywordRetriever(doc *Document) *KeywordRetriever {
	return &KeywordRetriever{chunks: doc.Chunks()}
}

// Retrieve implements Retriever.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := relevance.Rank(query, r.chunks, topK, func(c Chunk) string { return c.Content })
	hits := make([]Hit, len(ranked))
	for i, s := range ranked {
		hits[i] = Hit{Chunk: s.Item, Score: s.Score}
	}
	return hits, nil
}

// FormatHits renders hits as prompt context, one chunk per block.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%d] (%.2f) %s\n", i+1, h.Score, h.Chunk.Content)
	}
	return sb.String()
}

var _ Retriever = (*KeywordRetriever)(nil)
