package core_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/agent"
	"github.com/finqa/finqa-agent-go/pkg/core"
	"github.com/finqa/finqa-agent-go/pkg/knowledge"
	"github.com/finqa/finqa-agent-go/pkg/llm"
	"github.com/finqa/finqa-agent-go/pkg/memory"
	"github.com/finqa/finqa-agent-go/pkg/tool"
)

// routedLLM answers by matching the question in the prompt, so concurrent
// runs see their own script.
type routedLLM struct {
	mu     sync.Mutex
	routes map[string][]string
	seen   map[string]int
}

func newRoutedLLM(routes map[string][]string) *routedLLM {
	return &routedLLM{routes: routes, seen: make(map[string]int)}
}

func (r *routedLLM) Generate(_ context.Context, prompt string, _ ...llm.GenerateOption) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for question, script := range r.routes {
		if strings.Contains(prompt, "Question: "+question+"\n") {
			i := r.seen[question]
			r.seen[question]++
			if i >= len(script) {
				i = len(script) - 1
			}
			return script[i], nil
		}
	}
	return "Action: finish[unknown]", nil
}

func (r *routedLLM) GenerateWithMessages(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return r.Generate(ctx, msgs[len(msgs)-1].Content, opts...)
}

func (r *routedLLM) Close() error { return nil }

// financeDB creates a small SQLite database with one quote table.
func financeDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finance.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE stock_daily (
		stock_code TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		close REAL,
		PRIMARY KEY (stock_code, trade_date)
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO stock_daily VALUES ('600519', '20210105', 2000.5), ('000001', '20210105', 19.2)`)
	require.NoError(t, err)
	return path
}

func newTestClient(t *testing.T, provider llm.Provider, opts ...core.ClientOption) *core.Client {
	t.Helper()
	cfg := &core.Config{
		Database: core.DatabaseConfig{Provider: core.DatabaseSQLite, Path: financeDB(t)},
		Agent:    core.AgentConfig{MaxSteps: 5, UsePlanner: true},
	}
	opts = append([]core.ClientOption{core.WithLLM(provider), core.WithLogger(zap.NewNop())}, opts...)
	client, err := core.NewClient(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

const closeQuestion = "what was the close price of 600519 on 20210105"

func TestClient_Invoke(t *testing.T) {
	ctx := context.Background()
	provider := newRoutedLLM(map[string][]string{
		closeQuestion: {
			"Thought: query the quote table\nAction: QueryDB\nAction Input: SELECT close FROM stock_daily WHERE stock_code = '600519' AND trade_date = '20210105'",
			"Thought: I know the answer\nAction: finish[2000.5]",
		},
	})
	client := newTestClient(t, provider)

	assert.Equal(t, []string{"QueryDB", "CheckDBInfo", "QueryToSQL", "EmbeddingSearch"}, client.Tools())
	require.NotNil(t, client.Document())
	assert.Equal(t, []string{"stock_daily"}, client.Document().TableNames())

	res, err := client.Invoke(ctx, closeQuestion)
	require.NoError(t, err)
	assert.Equal(t, "2000.5", res.FinalAnswer)
	assert.Equal(t, 2, res.StepsTaken)
	require.Len(t, res.ToolResults, 1)
	assert.Contains(t, res.ToolResults[0].Output, "2000.5")
	assert.Len(t, res.Plan, 6, "the question mentions a price")

	summary, err := client.MemorySummary(ctx, 100)
	require.NoError(t, err)
	assert.Greater(t, summary.ByKind[memory.KindAction], 0)
	assert.Greater(t, summary.ByKind[memory.KindResult], 0)
	assert.Greater(t, summary.ByKind[memory.KindStrategy], 0)
	assert.Greater(t, summary.ByKind[memory.KindContext], 0)
}

func TestClient_ReadOnlyDatabase(t *testing.T) {
	provider := newRoutedLLM(map[string][]string{
		"drop it": {"Action: QueryDB\nAction Input: DROP TABLE stock_daily"},
	})
	client := newTestClient(t, provider)

	res, err := client.Invoke(context.Background(), "drop it")
	assert.ErrorIs(t, err, agent.ErrToolFailed)
	assert.Empty(t, res.ToolResults)
}

func TestClient_Retrieve(t *testing.T) {
	client := newTestClient(t, newRoutedLLM(nil))

	hits, err := client.Retrieve(context.Background(), "stock_daily close", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Chunk.Content, "stock_daily")
}

func TestClient_Plan(t *testing.T) {
	client := newTestClient(t, newRoutedLLM(nil))

	plan, err := client.Plan(context.Background(), "写一个斐波那契函数")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 5)
}

func TestClient_InjectedComponents(t *testing.T) {
	store := memory.NewInMemoryStore()
	doc := &knowledge.Document{Tables: []knowledge.Table{{TableName: "fund_info", BusinessDescription: "fund basics"}}}
	echo := tool.NewFunc("Echo", "echoes its input", func(_ context.Context, in string) (string, error) {
		return in, nil
	})
	provider := newRoutedLLM(map[string][]string{
		"echo": {"Action: Echo[hi]", "Action: finish[hi]"},
	})

	client, err := core.NewClient(&core.Config{},
		core.WithLLM(provider),
		core.WithLogger(zap.NewNop()),
		core.WithMemoryStore(store),
		core.WithDocument(doc),
		core.WithTools(echo),
	)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, []string{"QueryToSQL", "EmbeddingSearch", "Echo"}, client.Tools())

	res, err := client.Invoke(context.Background(), "echo")
	require.NoError(t, err)
	assert.Equal(t, "hi", res.FinalAnswer)
	assert.Greater(t, store.Len(), 0)
}

func TestClient_Stream(t *testing.T) {
	provider := newRoutedLLM(map[string][]string{
		"tables": {"Action: CheckDBInfo", "Action: finish[stock_daily]"},
	})
	client := newTestClient(t, provider)

	var last *agent.ExecutionState
	phases := []agent.Phase{}
	for st := range client.Stream(context.Background(), "tables") {
		phases = append(phases, st.Phase)
		last = st
	}
	assert.Equal(t, []agent.Phase{agent.PhaseToolDispatch, agent.PhaseReasoning, agent.PhaseFinished}, phases)
	require.NotNil(t, last)
	assert.Equal(t, "stock_daily", last.FinalAnswer)
	require.Len(t, last.ToolResults, 1)
	assert.Contains(t, last.ToolResults[0].Output, "stock_daily")
}

func TestClient_Close(t *testing.T) {
	client := newTestClient(t, newRoutedLLM(nil))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	res, err := client.Invoke(context.Background(), "q")
	assert.ErrorIs(t, err, core.ErrClosed)
	require.NotNil(t, res)

	var states []*agent.ExecutionState
	for st := range client.Stream(context.Background(), "q") {
		states = append(states, st)
	}
	require.Len(t, states, 1)
	assert.ErrorIs(t, states[0].Err, core.ErrClosed)

	_, err = client.MemorySummary(context.Background(), 10)
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestNewClient_Errors(t *testing.T) {
	_, err := core.NewClient(nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = core.NewClient(&core.Config{LLM: core.LLMConfig{Provider: "anthropic"}})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	// no provider configured and none injected
	_, err = core.NewClient(&core.Config{}, core.WithLogger(zap.NewNop()))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = core.NewClient(&core.Config{Knowledge: core.KnowledgeConfig{DocumentPath: filepath.Join(t.TempDir(), "missing.json")}},
		core.WithLLM(newRoutedLLM(nil)), core.WithLogger(zap.NewNop()))
	var agentErr *core.AgentError
	assert.ErrorAs(t, err, &agentErr)

	_, err = core.NewClient(&core.Config{}, core.WithLLM(newRoutedLLM(nil)), core.WithLogger(zap.NewNop()),
		core.WithTools(tool.NewFunc("A", "", nil), tool.NewFunc("A", "", nil)))
	assert.ErrorIs(t, err, tool.ErrDuplicateTool)
}

func TestNewClient_Ollama(t *testing.T) {
	client, err := core.NewClient(&core.Config{LLM: core.LLMConfig{Provider: core.ProviderOllama}}, core.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	// no database or document, so no tools are registered
	assert.Empty(t, client.Tools())
}

func TestAsyncClient(t *testing.T) {
	provider := newRoutedLLM(map[string][]string{
		"first":  {"Action: finish[one]"},
		"second": {"Action: CheckDBInfo", "Action: finish[two]"},
	})
	cfg := &core.Config{Database: core.DatabaseConfig{Provider: core.DatabaseSQLite, Path: financeDB(t)}}
	ac, err := core.NewAsyncClient(cfg, core.WithLLM(provider), core.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	ctx := context.Background()
	first := ac.InvokeAsync(ctx, "first")
	second := ac.InvokeAsync(ctx, "second")
	ac.Wait()

	r1 := <-first
	r2 := <-second
	require.NoError(t, r1.Error)
	require.NoError(t, r2.Error)
	assert.Equal(t, "one", r1.Result.FinalAnswer)
	assert.Equal(t, "two", r2.Result.FinalAnswer)

	_, open := <-first
	assert.False(t, open)

	require.NoError(t, ac.Close())
}
