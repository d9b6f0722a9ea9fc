package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DefaultDescriptions maps well-known fund and stock tables to their business
// descriptions.
var DefaultDescriptions = map[string]string{
	"基金基本信息":    "存储基金的基本信息，包括基金代码、名称、管理人、托管人、成立日期等核心信息",
	"基金股票持仓明细":  "记录基金持有股票的详细信息，包括持仓数量、市值、占比等投资组合数据",
	"基金债券持仓明细":  "记录基金持有债券的详细信息，包括债券类型、持仓数量、市值占比等",
	"基金可转债持仓明细": "记录基金持有可转债的详细信息，包括对应股票代码、持仓数量等",
	"基金日行情表":    "记录基金每日的交易行情数据，包括单位净值、累计净值、资产净值等",
	"A股票日行情表":   "A股市场股票的日行情数据，包括开盘价、收盘价、最高价、最低价、成交量等",
	"港股票日行情表":   "港股市场股票的日行情数据，包括开盘价、收盘价、最高价、最低价、成交量等",
	"A股公司行业划分表": "A股公司的行业分类信息，包括行业划分标准、一级行业、二级行业等",
	"基金规模变动表":   "记录基金规模的变动情况，包括申购、赎回、份额变化等信息",
	"基金份额持有人结构": "记录基金份额持有人的结构分布，包括机构投资者和个人投资者的占比",
}

// DefaultKeyFields are the column names used to infer relationships.
var DefaultKeyFields = []string{"基金代码", "股票代码", "交易日", "交易日期"}

// Extractor reads a SQLite database and produces its knowledge document.
type Extractor struct {
	dbPath       string
	descriptions map[string]string
	keyFields    []string
	sampleRows   int
	logger       *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithDescriptions replaces the table description dictionary.
func WithDescriptions(descriptions map[string]string) ExtractorOption {
	return func(e *Extractor) {
		e.descriptions = descriptions
	}
}

// WithKeyFields replaces the relationship key fields.
func WithKeyFields(fields ...string) ExtractorOption {
	return func(e *Extractor) {
		e.keyFields = fields
	}
}

// WithSampleRows sets how many rows are sampled per table (default 3).
func WithSampleRows(n int) ExtractorOption {
	return func(e *Extractor) {
		e.sampleRows = n
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *zap.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an extractor for the database at dbPath.
func NewExtractor(dbPath string, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		dbPath:       dbPath,
		descriptions: DefaultDescriptions,
		keyFields:    DefaultKeyFields,
		sampleRows:   3,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads every table's schema, indexes, foreign keys and sample rows.
// A table that cannot be read is logged and skipped.
func (e *Extractor) Extract(ctx context.Context) (*Document, error) {
	db, err := sql.Open("sqlite3", e.dbPath)
	if err != nil {
		return nil, fmt.Errorf("Extract: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("Extract: %w", err)
	}

	names, err := e.tableNames(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("Extract: %w", err)
	}
	e.logger.Info("found tables", zap.Int("count", len(names)), zap.Strings("tables", names))

	doc := &Document{
		DBName:    strings.TrimSuffix(filepath.Base(e.dbPath), filepath.Ext(e.dbPath)),
		DBPath:    e.dbPath,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	for _, name := range names {
		table, err := e.extractTable(ctx, db, name)
		if err != nil {
			e.logger.Warn("failed to extract table", zap.String("table", name), zap.Error(err))
			continue
		}
		doc.Tables = append(doc.Tables, *table)
	}

	doc.Relationships = e.relationships(doc.Tables)
	doc.BusinessSummary = businessSummary(doc)
	return doc, nil
}

func (e *Extractor) tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (e *Extractor) extractTable(ctx context.Context, db *sql.DB, name string) (*Table, error) {
	ident := quoteIdent(name)
	table := &Table{TableName: name, Indexes: []string{}, Constraints: []string{}}

	cols, err := queryMaps(ctx, db, fmt.Sprintf("PRAGMA table_info(%s)", ident))
	if err != nil {
		return nil, fmt.Errorf("table_info: %w", err)
	}
	for _, c := range cols {
		nullable := "YES"
		if toInt(c["notnull"]) != 0 {
			nullable = "NO"
		}
		var def interface{}
		if v := c["dflt_value"]; v != nil && fmt.Sprint(v) != "" {
			def = v
		}
		table.Columns = append(table.Columns, Column{
			Name:       fmt.Sprint(c["name"]),
			Type:       fmt.Sprint(c["type"]),
			Nullable:   nullable,
			Default:    def,
			PrimaryKey: toInt(c["pk"]) == 1,
		})
	}

	idx, err := queryMaps(ctx, db, fmt.Sprintf("PRAGMA index_list(%s)", ident))
	if err != nil {
		return nil, fmt.Errorf("index_list: %w", err)
	}
	for _, i := range idx {
		table.Indexes = append(table.Indexes, fmt.Sprint(i["name"]))
	}

	fks, err := queryMaps(ctx, db, fmt.Sprintf("PRAGMA foreign_key_list(%s)", ident))
	if err != nil {
		return nil, fmt.Errorf("foreign_key_list: %w", err)
	}
	for _, fk := range fks {
		table.Constraints = append(table.Constraints,
			fmt.Sprintf("FOREIGN KEY(%v) REFERENCES %v(%v)", fk["from"], fk["table"], fk["to"]))
	}

	if e.sampleRows > 0 {
		sample, err := sampleData(ctx, db, ident, e.sampleRows)
		if err != nil {
			return nil, fmt.Errorf("sample data: %w", err)
		}
		table.SampleData = sample
	}

	table.BusinessDescription = e.describe(table)
	return table, nil
}

func (e *Extractor) describe(t *Table) string {
	base, ok := e.descriptions[t.TableName]
	if !ok {
		base = fmt.Sprintf("business data of table %s", t.TableName)
	}

	var keys []string
	for i, c := range t.Columns {
		if i >= 5 {
			break
		}
		keys = append(keys, c.Name)
	}
	return fmt.Sprintf("%s. Key fields: %s.", base, strings.Join(keys, ", "))
}

// relationships links every pair of tables that share a key field.
func (e *Extractor) relationships(tables []Table) []Relationship {
	rels := []Relationship{}
	for _, field := range e.keyFields {
		var having []string
		for _, t := range tables {
			for _, c := range t.Columns {
				if c.Name == field {
					having = append(having, t.TableName)
					break
				}
			}
		}
		for i := 0; i < len(having); i++ {
			for j := i + 1; j < len(having); j++ {
				rels = append(rels, Relationship{
					Type:        "FOREIGN_KEY",
					FromTable:   having[i],
					ToTable:     having[j],
					Field:       field,
					Description: fmt.Sprintf("%s and %s are linked by %s", having[i], having[j], field),
				})
			}
		}
	}
	return rels
}

func businessSummary(doc *Document) string {
	return fmt.Sprintf("Financial database %s with %d tables: %s. Key fields %s link related tables.",
		doc.DBName, len(doc.Tables), strings.Join(doc.TableNames(), ", "), strings.Join(DefaultKeyFields, ", "))
}

func sampleData(ctx context.Context, db *sql.DB, ident string, limit int) (*SampleData, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", ident, limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	sample := &SampleData{Columns: cols, Rows: [][]interface{}{}}
	for rows.Next() {
		values, err := scanValues(rows, len(cols))
		if err != nil {
			return nil, err
		}
		sample.Rows = append(sample.Rows, values)
	}
	return sample, rows.Err()
}

// queryMaps runs query and returns each row keyed by column name.
func queryMaps(ctx context.Context, db *sql.DB, query string) ([]map[string]interface{}, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values, err := scanValues(rows, len(cols))
		if err != nil {
			return nil, err
		}
		m := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			m[c] = values[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanValues(rows *sql.Rows, n int) ([]interface{}, error) {
	values := make([]interface{}, n)
	ptrs := make([]interface{}, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func toInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
	}
	return 0
}
