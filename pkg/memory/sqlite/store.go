// Package sqlite provides a SQLite-backed memory store.
//
// Records are kept in a single table in insertion order. Relevance ranking is
// done in process with the same scorer as the in-memory store, so both stores
// return identical orderings for identical contents.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finqa/finqa-agent-go/pkg/memory"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements memory.Store on SQLite.
type Store struct {
	db        *sql.DB
	tableName string
}

// Config contains configuration for creating a SQLite memory store.
type Config struct {
	// DBPath is the path to the SQLite database file. ":memory:" is accepted.
	DBPath string

	// TableName is the table holding records, defaults to "memories".
	TableName string
}

// NewStore opens (or creates) the database and its table.
//
// Parameters:
//   - cfg: Configuration containing the database path and table name
//
// Returns:
//   - *Store: The store instance
//   - error: Error if the database cannot be opened or the table created
func NewStore(cfg *Config) (*Store, error) {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "memories"
	}
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("NewStore: invalid table name %q", tableName)
	}

	dsn := cfg.DBPath
	if dsn != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, fmt.Errorf("NewStore: failed to create directory: %w", err)
			}
		}
		dsn += "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writes
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	s := &Store{db: db, tableName: tableName}
	if err := s.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL,
			metadata TEXT
		)
	`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_kind ON %s(kind)`, s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}
	return nil
}

// Store inserts a record. Metadata is stored as JSON and created_at as
// RFC 3339 text.
func (s *Store) Store(ctx context.Context, rec *memory.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("Store: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, content, kind, created_at, metadata) VALUES (?, ?, ?, ?, ?)`, s.tableName)
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Content,
		string(rec.Kind),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("Store: %w", err)
	}
	return nil
}

// Retrieve loads candidate records in insertion order and ranks them in process.
func (s *Store) Retrieve(ctx context.Context, query string, topK int, kind memory.Kind) ([]*memory.Record, error) {
	if topK <= 0 {
		return []*memory.Record{}, nil
	}

	whereClause, args := buildWhereClause(kind)
	q := fmt.Sprintf(`SELECT id, content, kind, created_at, metadata FROM %s %s ORDER BY seq ASC`, s.tableName, whereClause)

	records, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("Retrieve: %w", err)
	}
	return memory.Rank(query, records, topK), nil
}

// Recent returns the newest records, ties in insertion order.
func (s *Store) Recent(ctx context.Context, limit int, kind memory.Kind) ([]*memory.Record, error) {
	if limit <= 0 {
		return []*memory.Record{}, nil
	}

	whereClause, args := buildWhereClause(kind)
	q := fmt.Sprintf(`SELECT id, content, kind, created_at, metadata FROM %s %s ORDER BY seq ASC`, s.tableName, whereClause)

	records, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	return memory.SortRecent(records, limit), nil
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.tableName)); err != nil {
		return fmt.Errorf("Clear: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]*memory.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (*memory.Record, error) {
	var (
		rec         memory.Record
		kind        string
		createdAt   string
		metadataStr sql.NullString
	)
	if err := rows.Scan(&rec.ID, &rec.Content, &kind, &createdAt, &metadataStr); err != nil {
		return nil, err
	}

	rec.Kind = memory.Kind(kind)

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = t.UTC()

	if metadataStr.Valid && metadataStr.String != "" && metadataStr.String != "null" {
		if err := json.Unmarshal([]byte(metadataStr.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &rec, nil
}

func buildWhereClause(kind memory.Kind) (string, []interface{}) {
	if kind == "" {
		return "", nil
	}
	return "WHERE kind = ?", []interface{}{string(kind)}
}

var _ memory.Store = (*Store)(nil)
