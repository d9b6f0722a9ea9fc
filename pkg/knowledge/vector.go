package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/embedder"
	"github.com/finqa/finqa-agent-go/pkg/storage"
)

// VectorRetriever embeds chunks and queries with an embedder.Provider and
// searches a storage.VectorStore.
//
// Chunk IDs come from a snowflake node, so they increase in indexing order and
// the store's id tie-break keeps equal scores in document order.
type VectorRetriever struct {
	embedder embedder.Provider
	store    storage.VectorStore
	node     *snowflake.Node
	minScore float64
	logger   *zap.Logger
}

// VectorOption configures a VectorRetriever.
type VectorOption func(*VectorRetriever)

// WithMinScore drops hits below score.
func WithMinScore(score float64) VectorOption {
	return func(r *VectorRetriever) {
		r.minScore = score
	}
}

// WithVectorLogger sets the logger.
func WithVectorLogger(logger *zap.Logger) VectorOption {
	return func(r *VectorRetriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewVectorRetriever creates a vector retriever. nodeID selects the snowflake
// node (0-1023) so several indexers can share one store.
func NewVectorRetriever(emb embedder.Provider, store storage.VectorStore, nodeID int64, opts ...VectorOption) (*VectorRetriever, error) {
	if emb == nil || store == nil {
		return nil, fmt.Errorf("knowledge: vector retriever needs an embedder and a store")
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}

	r := &VectorRetriever{
		embedder: emb,
		store:    store,
		node:     node,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Index replaces the store's contents with the chunks of doc and returns the
// number of chunks indexed.
func (r *VectorRetriever) Index(ctx context.Context, doc *Document) (int, error) {
	chunks := doc.Chunks()

	if err := r.store.DeleteAll(ctx); err != nil {
		return 0, fmt.Errorf("Index: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("Index: embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("Index: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	now := time.Now().UTC()
	for i, c := range chunks {
		entry := &storage.Entry{
			ID:        r.node.Generate().Int64(),
			Content:   c.Content,
			Embedding: vectors[i],
			Metadata:  c.metadata(),
			CreatedAt: now,
		}
		if err := r.store.Insert(ctx, entry); err != nil {
			return i, fmt.Errorf("Index: %w", err)
		}
	}

	r.logger.Info("indexed knowledge document",
		zap.String("db_name", doc.DBName),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// Retrieve implements Retriever.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Retrieve: embed: %w", err)
	}

	entries, err := r.store.Search(ctx, vec, &storage.SearchOptions{
		Limit:    topK,
		MinScore: r.minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("Retrieve: %w", err)
	}

	hits := make([]Hit, len(entries))
	for i, e := range entries {
		hits[i] = Hit{Chunk: chunkFromMetadata(e.Content, e.Metadata), Score: e.Score}
	}
	return hits, nil
}

var _ Retriever = (*VectorRetriever)(nil)
