// Package search provides the EmbeddingSearch tool over a knowledge
// retriever.
package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/knowledge"
	"github.com/finqa/finqa-agent-go/pkg/tool"
)

// NoResults is the observation returned when nothing matches.
const NoResults = "no relevant schema found"

// EmbeddingSearch looks up schema chunks relevant to its input.
type EmbeddingSearch struct {
	retriever knowledge.Retriever
	topK      int
	logger    *zap.Logger
}

// New creates the EmbeddingSearch tool. A non-positive topK defaults to 5.
func New(r knowledge.Retriever, topK int, logger *zap.Logger) *EmbeddingSearch {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingSearch{retriever: r, topK: topK, logger: logger}
}

// Name implements tool.Tool.
func (s *EmbeddingSearch) Name() string { return "EmbeddingSearch" }

// Description implements tool.Tool.
func (s *EmbeddingSearch) Description() string {
	return "EmbeddingSearch[keywords]: finds the tables and columns most relevant to the keywords."
}

// Call implements tool.Tool.
func (s *EmbeddingSearch) Call(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	hits, err := s.retriever.Retrieve(ctx, query, s.topK)
	if err != nil {
		return "", err
	}

	s.logger.Info("embedding_search", zap.String("query", query), zap.Int("hits", len(hits)))
	if len(hits) == 0 {
		return NoResults, nil
	}
	return strings.TrimRight(knowledge.FormatHits(hits), "\n"), nil
}

var _ tool.Tool = (*EmbeddingSearch)(nil)
