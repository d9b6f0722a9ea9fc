// Package database provides the QueryDB and CheckDBInfo tools over a
// relational data source.
//
// MySQL is the production backend. The client also understands SQLite so the
// tools can run against a local file.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names accepted by NewClient.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// ErrReadOnly is returned for statements that could modify data.
var ErrReadOnly = errors.New("database: only read statements are allowed")

// Config contains MySQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DSN formats the connection string.
func (c *Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// Column describes one column of a table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      string `json:"key,omitempty"`
}

// Client runs read queries and inspects the schema.
type Client struct {
	db     *sql.DB
	driver string
}

// Open connects to MySQL.
func Open(cfg *Config) (*Client, error) {
	db, err := sql.Open(DriverMySQL, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	return &Client{db: db, driver: DriverMySQL}, nil
}

// NewClient wraps an open database. driver selects the schema queries.
func NewClient(db *sql.DB, driver string) (*Client, error) {
	switch driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
	return &Client{db: db, driver: driver}, nil
}

// Query runs a read statement and returns each row keyed by column name.
//
// Besides the statement check, the database itself enforces read-only
// access: MySQL queries run in a READ ONLY transaction that is rolled back,
// and SQLite queries run on a connection with query_only set.
func (c *Client) Query(ctx context.Context, query string) ([]map[string]interface{}, error) {
	if !isReadStatement(query) {
		return nil, ErrReadOnly
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if c.driver == DriverSQLite {
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return nil, fmt.Errorf("Query: %w", err)
		}
		defer func() { _, _ = conn.ExecContext(context.Background(), "PRAGMA query_only = OFF") }()

		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("Query: %w", err)
		}
		return collectRows(rows)
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	return collectRows(rows)
}

func collectRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}

	out := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("Query: %w", err)
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	return out, nil
}

// Tables lists the tables of the current database, sorted by name.
func (c *Client) Tables(ctx context.Context) ([]string, error) {
	query := "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	if c.driver == DriverMySQL {
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name"
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("Tables: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Tables: %w", err)
	}
	return tables, nil
}

// Columns describes the columns of table in declaration order.
func (c *Client) Columns(ctx context.Context, table string) ([]Column, error) {
	if c.driver == DriverMySQL {
		return c.mysqlColumns(ctx, table)
	}
	return c.sqliteColumns(ctx, table)
}

func (c *Client) mysqlColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT column_name, column_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, fmt.Errorf("Columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Key); err != nil {
			return nil, fmt.Errorf("Columns: %w", err)
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Columns: %w", err)
	}
	return cols, nil
}

func (c *Client) sqliteColumns(ctx context.Context, table string) ([]Column, error) {
	ident := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", ident))
	if err != nil {
		return nil, fmt.Errorf("Columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			col     Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("Columns: %w", err)
		}
		col.Nullable = notNull == 0
		if pk > 0 {
			col.Key = "PRI"
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Columns: %w", err)
	}
	return cols, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

var readKeywords = map[string]bool{
	"select": true, "show": true, "with": true, "describe": true,
	"desc": true, "explain": true,
}

// isReadStatement accepts a single statement starting with a read keyword
// that does not export rows to a server-side file.
func isReadStatement(query string) bool {
	query = strings.TrimRight(strings.TrimSpace(query), "; \t\n")
	if strings.Contains(query, ";") {
		return false
	}
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return false
	}
	if !readKeywords[strings.TrimLeft(fields[0], "(")] {
		return false
	}
	for i := 0; i+1 < len(fields); i++ {
		next := fields[i+1]
		if fields[i] == "into" && (strings.HasPrefix(next, "outfile") || strings.HasPrefix(next, "dumpfile")) {
			return false
		}
	}
	return true
}
