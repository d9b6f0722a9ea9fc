package knowledge_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finqa/finqa-agent-go/pkg/knowledge"
)

func createFundDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fund_data.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	stmts := []string{
		`CREATE TABLE "基金基本信息" ("基金代码" TEXT PRIMARY KEY, "基金全称" TEXT NOT NULL, "管理费率" TEXT DEFAULT '1.5%')`,
		`CREATE TABLE "基金日行情表" ("基金代码" TEXT, "交易日期" TEXT, "单位净值" REAL,
			FOREIGN KEY("基金代码") REFERENCES "基金基本信息"("基金代码"))`,
		`CREATE INDEX idx_nav_date ON "基金日行情表"("交易日期")`,
		`INSERT INTO "基金基本信息" VALUES ('000001', '华夏成长混合', '1.5%'), ('000002', '华夏债券', '0.6%')`,
		`INSERT INTO "基金日行情表" VALUES ('000001', '20210105', 1.23), ('000001', '20210106', 1.25),
			('000002', '20210105', 1.01), ('000002', '20210106', 1.02)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return path
}

func TestExtractor_Extract(t *testing.T) {
	path := createFundDB(t)

	doc, err := knowledge.NewExtractor(path).Extract(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fund_data", doc.DBName)
	assert.Equal(t, path, doc.DBPath)
	assert.NotEmpty(t, doc.CreatedAt)
	assert.Equal(t, []string{"基金基本信息", "基金日行情表"}, doc.TableNames())

	info, ok := doc.Table("基金基本信息")
	require.True(t, ok)
	require.Len(t, info.Columns, 3)
	assert.Equal(t, "基金代码", info.Columns[0].Name)
	assert.True(t, info.Columns[0].PrimaryKey)
	assert.Equal(t, "NO", info.Columns[1].Nullable)
	assert.Equal(t, "YES", info.Columns[2].Nullable)
	assert.Equal(t, "'1.5%'", info.Columns[2].Default)
	assert.Contains(t, info.BusinessDescription, "存储基金的基本信息")
	assert.Contains(t, info.BusinessDescription, "Key fields: 基金代码, 基金全称, 管理费率.")
	require.NotNil(t, info.SampleData)
	assert.Len(t, info.SampleData.Rows, 2)

	nav, ok := doc.Table("基金日行情表")
	require.True(t, ok)
	assert.Contains(t, nav.Indexes, "idx_nav_date")
	assert.Equal(t, []string{"FOREIGN KEY(基金代码) REFERENCES 基金基本信息(基金代码)"}, nav.Constraints)
	require.NotNil(t, nav.SampleData)
	assert.Len(t, nav.SampleData.Rows, 3, "sampling is capped")
	assert.Equal(t, []string{"基金代码", "交易日期", "单位净值"}, nav.SampleData.Columns)
	assert.Equal(t, "000001", nav.SampleData.Rows[0][0])
	assert.Equal(t, 1.23, nav.SampleData.Rows[0][2])

	require.Len(t, doc.Relationships, 1)
	assert.Equal(t, "基金基本信息", doc.Relationships[0].FromTable)
	assert.Equal(t, "基金日行情表", doc.Relationships[0].ToTable)
	assert.Equal(t, "基金代码", doc.Relationships[0].Field)

	assert.Contains(t, doc.BusinessSummary, "2 tables")
	assert.NotEmpty(t, doc.Chunks())
}

func TestExtractor_Options(t *testing.T) {
	path := createFundDB(t)

	doc, err := knowledge.NewExtractor(path,
		knowledge.WithDescriptions(map[string]string{}),
		knowledge.WithKeyFields("交易日期"),
		knowledge.WithSampleRows(0),
		knowledge.WithExtractorLogger(nil),
	).Extract(context.Background())
	require.NoError(t, err)

	info, ok := doc.Table("基金基本信息")
	require.True(t, ok)
	assert.Contains(t, info.BusinessDescription, "business data of table 基金基本信息")
	assert.Nil(t, info.SampleData)
	assert.Empty(t, doc.Relationships)
}
