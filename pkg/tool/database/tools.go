package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/tool"
)

// DefaultMaxRows caps the rows QueryDB returns to the model.
const DefaultMaxRows = 50

// Option configures the database tools.
type Option func(*options)

type options struct {
	maxRows int
	logger  *zap.Logger
}

// WithMaxRows sets the row cap for QueryDB.
func WithMaxRows(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRows = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{maxRows: DefaultMaxRows, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// QueryDB executes the SQL in its input and returns the rows as JSON.
type QueryDB struct {
	client *Client
	opts   *options
}

// NewQueryDB creates the QueryDB tool.
func NewQueryDB(client *Client, opts ...Option) *QueryDB {
	return &QueryDB{client: client, opts: applyOptions(opts)}
}

// Name implements tool.Tool.
func (q *QueryDB) Name() string { return "QueryDB" }

// Description implements tool.Tool.
func (q *QueryDB) Description() string {
	return "QueryDB[sql]: executes a read-only SQL statement against the financial database and returns the rows as JSON."
}

// Call implements tool.Tool.
func (q *QueryDB) Call(ctx context.Context, input string) (string, error) {
	query := StripCodeFence(input)
	q.opts.logger.Info("query_db", zap.String("sql", query))

	rows, err := q.client.Query(ctx, query)
	if err != nil {
		q.opts.logger.Error("query_db failed", zap.String("sql", query), zap.Error(err))
		return "", err
	}

	total := len(rows)
	if total > q.opts.maxRows {
		rows = rows[:q.opts.maxRows]
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("QueryDB: %w", err)
	}
	if total > len(rows) {
		return fmt.Sprintf("%s\n(%d of %d rows shown)", data, len(rows), total), nil
	}
	return string(data), nil
}

// TableInfo is one entry of the CheckDBInfo output.
type TableInfo struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// CheckDBInfo lists every table with its columns. Its input is ignored.
type CheckDBInfo struct {
	client *Client
	opts   *options
}

// NewCheckDBInfo creates the CheckDBInfo tool.
func NewCheckDBInfo(client *Client, opts ...Option) *CheckDBInfo {
	return &CheckDBInfo{client: client, opts: applyOptions(opts)}
}

// Name implements tool.Tool.
func (c *CheckDBInfo) Name() string { return "CheckDBInfo" }

// Description implements tool.Tool.
func (c *CheckDBInfo) Description() string {
	return "CheckDBInfo[]: lists the tables of the financial database and their columns."
}

// Call implements tool.Tool.
func (c *CheckDBInfo) Call(ctx context.Context, _ string) (string, error) {
	tables, err := c.client.Tables(ctx)
	if err != nil {
		return "", err
	}

	info := make([]TableInfo, 0, len(tables))
	for _, t := range tables {
		cols, err := c.client.Columns(ctx, t)
		if err != nil {
			return "", err
		}
		info = append(info, TableInfo{Table: t, Columns: cols})
	}
	c.opts.logger.Info("check_db_info", zap.Int("tables", len(info)))

	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("CheckDBInfo: %w", err)
	}
	return string(data), nil
}

// StripCodeFence removes a surrounding markdown code fence, with or without
// a language tag, and trims whitespace.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var (
	_ tool.Tool = (*QueryDB)(nil)
	_ tool.Tool = (*CheckDBInfo)(nil)
)
