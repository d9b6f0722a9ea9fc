// Package postgres provides a PostgreSQL + pgvector implementation of
// storage.VectorStore for shared knowledge indexes.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/finqa/finqa-agent-go/pkg/storage"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Client is a PostgreSQL + pgvector client.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
	SSLMode            string
}

// DSN renders the lib/pq connection string.
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// NewClient creates a new PostgreSQL client, enabling the vector extension
// and creating the collection table when missing.
func NewClient(cfg *Config) (*Client, error) {
	collection := cfg.CollectionName
	if collection == "" {
		collection = "knowledge_chunks"
	}
	if !identPattern.MatchString(collection) {
		return nil, fmt.Errorf("NewPostgresClient: invalid collection name %q", collection)
	}
	if cfg.EmbeddingModelDims <= 0 {
		return nil, fmt.Errorf("NewPostgresClient: embedding dimensions must be positive")
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: collection,
		dimensions:     cfg.EmbeddingModelDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`, c.collectionName, c.dimensions)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}
	return nil
}

// Insert inserts an entry.
func (c *Client) Insert(ctx context.Context, entry *storage.Entry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.collectionName)

	_, err = c.db.ExecContext(ctx, query,
		entry.ID,
		entry.Content,
		vectorToString(entry.Embedding),
		string(metadataJSON),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// Search performs vector search using pgvector's cosine distance operator.
// Results are ordered by similarity and then id, matching the other backends.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Entry, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	whereClause, filterArgs, err := buildWhereClauseWithOffset(opts.Filters, opts.MinScore, 2)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, content, embedding::text, metadata, created_at,
			1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY similarity DESC, id ASC
	`, c.collectionName, whereClause)

	args := []interface{}{vectorToString(embedding)}
	args = append(args, filterArgs...)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*storage.Entry
	for rows.Next() {
		var (
			entry        storage.Entry
			embeddingStr string
			metadata     []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Content, &embeddingStr, &metadata, &entry.CreatedAt, &entry.Score); err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}

		vec, err := parseVectorString(embeddingStr)
		if err != nil {
			return nil, fmt.Errorf("Search: parse embedding: %w", err)
		}
		entry.Embedding = vec

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("Search: parse metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (c *Client) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c.collectionName)).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

// DeleteAll deletes every entry.
func (c *Client) DeleteAll(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c.collectionName)); err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// vectorToString renders a vector in pgvector text format: "[0.1,0.2,0.3]".
func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}

	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVectorString parses pgvector text format.
func parseVectorString(s string) ([]float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

var _ storage.VectorStore = (*Client)(nil)
