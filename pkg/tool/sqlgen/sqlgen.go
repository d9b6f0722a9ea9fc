// Package sqlgen provides the QueryToSQL tool, which turns a natural-language
// question into a SQL statement using the LLM and the knowledge document.
package sqlgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/knowledge"
	"github.com/finqa/finqa-agent-go/pkg/llm"
	"github.com/finqa/finqa-agent-go/pkg/tool"
	"github.com/finqa/finqa-agent-go/pkg/tool/database"
)

// DefaultTopK is the number of schema chunks put into the prompt.
const DefaultTopK = 5

// ErrEmptySQL is returned when the model produced no statement.
var ErrEmptySQL = errors.New("sqlgen: model returned no SQL")

const promptTemplate = `You are a SQL expert for a financial database.
Write one SQL query that answers the question, using only the tables and columns below.
Return the SQL only, without explanation.

Schema:
%s
Question: %s
SQL:`

// QueryToSQL implements tool.Tool.
type QueryToSQL struct {
	provider  llm.Provider
	retriever knowledge.Retriever
	document  *knowledge.Document
	topK      int
	genOpts   []llm.GenerateOption
	logger    *zap.Logger
}

// Option configures QueryToSQL.
type Option func(*QueryToSQL)

// WithRetriever selects schema context by retrieval instead of the whole
// document.
func WithRetriever(r knowledge.Retriever, topK int) Option {
	return func(q *QueryToSQL) {
		q.retriever = r
		if topK > 0 {
			q.topK = topK
		}
	}
}

// WithDocument uses the full document as schema context.
func WithDocument(doc *knowledge.Document) Option {
	return func(q *QueryToSQL) {
		q.document = doc
	}
}

// WithGenerateOptions sets the generation options.
func WithGenerateOptions(opts ...llm.GenerateOption) Option {
	return func(q *QueryToSQL) {
		q.genOpts = opts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(q *QueryToSQL) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New creates the QueryToSQL tool.
func New(provider llm.Provider, opts ...Option) *QueryToSQL {
	q := &QueryToSQL{
		provider: provider,
		topK:     DefaultTopK,
		genOpts:  []llm.GenerateOption{llm.WithTemperature(0)},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name implements tool.Tool.
func (q *QueryToSQL) Name() string { return "QueryToSQL" }

// Description implements tool.Tool.
func (q *QueryToSQL) Description() string {
	return "QueryToSQL[question]: writes a SQL query for a natural-language question using the database schema."
}

// Call implements tool.Tool.
func (q *QueryToSQL) Call(ctx context.Context, input string) (string, error) {
	question := strings.TrimSpace(input)

	schema, err := q.schemaContext(ctx, question)
	if err != nil {
		return "", fmt.Errorf("QueryToSQL: %w", err)
	}

	out, err := q.provider.Generate(ctx, fmt.Sprintf(promptTemplate, schema, question), q.genOpts...)
	if err != nil {
		return "", fmt.Errorf("QueryToSQL: %w", err)
	}

	sql := database.StripCodeFence(out)
	if sql == "" {
		return "", ErrEmptySQL
	}
	q.logger.Info("query_to_sql", zap.String("question", question), zap.String("sql", sql))
	return sql, nil
}

func (q *QueryToSQL) schemaContext(ctx context.Context, question string) (string, error) {
	if q.retriever != nil {
		hits, err := q.retriever.Retrieve(ctx, question, q.topK)
		if err != nil {
			return "", err
		}
		if len(hits) > 0 {
			return knowledge.FormatHits(hits), nil
		}
	}
	if q.document != nil {
		return q.document.ContextText(), nil
	}
	return "(no schema available)\n", nil
}

var _ tool.Tool = (*QueryToSQL)(nil)
