// Package oceanbase provides an OceanBase implementation of
// storage.VectorStore. OceanBase speaks the MySQL protocol and stores the
// embeddings in a native VECTOR column.
package oceanbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/finqa/finqa-agent-go/pkg/storage"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Client is an OceanBase client.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains OceanBase configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
}

// DSN renders the go-sql-driver/mysql connection string.
func (c *Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.DBName
	mc.ParseTime = true
	return mc.FormatDSN()
}

// NewClient creates a new OceanBase client and the collection table when
// missing.
func NewClient(cfg *Config) (*Client, error) {
	collection := cfg.CollectionName
	if collection == "" {
		collection = "knowledge_chunks"
	}
	if !identPattern.MatchString(collection) {
		return nil, fmt.Errorf("NewOceanBaseClient: invalid collection name %q", collection)
	}
	if cfg.EmbeddingModelDims <= 0 {
		return nil, fmt.Errorf("NewOceanBaseClient: embedding dimensions must be positive")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
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
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			embedding VECTOR(%d),
			document LONGTEXT,
			metadata JSON,
			hash VARCHAR(32),
			created_at VARCHAR(128)
		)
	`, c.collectionName, c.dimensions)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}
	return nil
}

// Insert inserts an entry. The chunk text goes to the document column.
func (c *Client) Insert(ctx context.Context, entry *storage.Entry) error {
	if len(entry.Embedding) != c.dimensions {
		return fmt.Errorf("Insert: embedding has %d dimensions, want %d", len(entry.Embedding), c.dimensions)
	}

	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, document, metadata, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.collectionName)

	_, err = c.db.ExecContext(ctx, query,
		entry.ID,
		vectorToString(entry.Embedding),
		entry.Content,
		metadataJSON,
		generateHash(entry.Content),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// Search performs vector search with cosine_distance. Results are ordered by
// similarity and then id, matching the other backends.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Entry, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	whereClause, filterArgs, err := buildWhereClause(opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, document, embedding, metadata, created_at,
			cosine_distance(embedding, ?) AS distance
		FROM %s
		%s
		ORDER BY distance ASC, id ASC
	`, c.collectionName, whereClause)

	args := []interface{}{vectorToString(embedding)}
	args = append(args, filterArgs...)
	if opts.Limit > 0 && opts.MinScore <= 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*storage.Entry
	for rows.Next() {
		entry, distance, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		entry.Score = 1.0 - distance
		if entry.Score < opts.MinScore {
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return storage.SortByScore(entries, opts.Limit), nil
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

func scanEntry(rows *sql.Rows) (*storage.Entry, float64, error) {
	var (
		entry        storage.Entry
		embeddingStr string
		metadataJSON []byte
		createdAt    sql.NullString
		distance     float64
	)
	if err := rows.Scan(&entry.ID, &entry.Content, &embeddingStr, &metadataJSON, &createdAt, &distance); err != nil {
		return nil, 0, err
	}

	if embeddingStr != "" {
		vec, err := stringToVector(embeddingStr)
		if err != nil {
			return nil, 0, err
		}
		entry.Embedding = vec
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, 0, err
		}
	}

	if createdAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, createdAt.String); err == nil {
			entry.CreatedAt = t
		}
	}
	return &entry, distance, nil
}

var _ storage.VectorStore = (*Client)(nil)
