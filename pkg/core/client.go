package core

import (
	"context"
	"database/sql"
	"io"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/agent"
	"github.com/finqa/finqa-agent-go/pkg/embedder"
	openaiEmbedder "github.com/finqa/finqa-agent-go/pkg/embedder/openai"
	"github.com/finqa/finqa-agent-go/pkg/knowledge"
	"github.com/finqa/finqa-agent-go/pkg/llm"
	"github.com/finqa/finqa-agent-go/pkg/llm/ollama"
	openaiLLM "github.com/finqa/finqa-agent-go/pkg/llm/openai"
	"github.com/finqa/finqa-agent-go/pkg/memory"
	sqliteMemory "github.com/finqa/finqa-agent-go/pkg/memory/sqlite"
	"github.com/finqa/finqa-agent-go/pkg/planner"
	"github.com/finqa/finqa-agent-go/pkg/storage"
	"github.com/finqa/finqa-agent-go/pkg/storage/oceanbase"
	postgresStore "github.com/finqa/finqa-agent-go/pkg/storage/postgres"
	sqliteStore "github.com/finqa/finqa-agent-go/pkg/storage/sqlite"
	"github.com/finqa/finqa-agent-go/pkg/tool"
	"github.com/finqa/finqa-agent-go/pkg/tool/database"
	"github.com/finqa/finqa-agent-go/pkg/tool/search"
	"github.com/finqa/finqa-agent-go/pkg/tool/sqlgen"
)

// Client answers financial questions with the reasoning and tool-call agent.
//
// It owns everything it builds from the configuration:
//   - LLM provider (OpenAI-compatible: Qwen, OpenAI, DeepSeek; or a local Ollama)
//   - Memory store (in-process or SQLite)
//   - Knowledge retriever (keyword, or vector on SQLite, PostgreSQL or OceanBase)
//   - Database tools (MySQL or SQLite), QueryToSQL and EmbeddingSearch
//   - Planner and agent
//
// The client is safe for concurrent use; each Invoke has its own state and
// all of them share the memory store.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	res, err := client.Invoke(ctx, "请查询20210105日股票代码600519的收盘价")
type Client struct {
	config    *Config
	logger    *zap.Logger
	llm       llm.Provider
	store     memory.Store
	document  *knowledge.Document
	retriever knowledge.Retriever
	tools     *tool.Registry
	planner   *planner.Builder
	agent     *agent.Agent

	// closers are released in reverse order by Close.
	closers []io.Closer

	mu     sync.Mutex
	closed bool
}

// ClientOption injects a component instead of building it from Config.
type ClientOption func(*clientOptions)

type clientOptions struct {
	llm      llm.Provider
	embedder embedder.Provider
	store    memory.Store
	document *knowledge.Document
	logger   *zap.Logger
	tools    []tool.Tool
	onToken  func(step int, delta string)
}

// WithLLM uses provider instead of Config.LLM. The client does not close it.
func WithLLM(provider llm.Provider) ClientOption {
	return func(o *clientOptions) {
		o.llm = provider
	}
}

// WithEmbedder uses provider instead of Config.Embedder. The client does not
// close it.
func WithEmbedder(provider embedder.Provider) ClientOption {
	return func(o *clientOptions) {
		o.embedder = provider
	}
}

// WithMemoryStore uses store instead of Config.Memory.
func WithMemoryStore(store memory.Store) ClientOption {
	return func(o *clientOptions) {
		o.store = store
	}
}

// WithDocument uses doc instead of loading Config.Knowledge.DocumentPath.
func WithDocument(doc *knowledge.Document) ClientOption {
	return func(o *clientOptions) {
		o.document = doc
	}
}

// WithLogger uses logger instead of building one from Config.Log.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithTools registers extra tools after the built-in ones.
func WithTools(tools ...tool.Tool) ClientOption {
	return func(o *clientOptions) {
		o.tools = append(o.tools, tools...)
	}
}

// WithTokenHandler forwards model output as it is produced.
func WithTokenHandler(fn func(step int, delta string)) ClientOption {
	return func(o *clientOptions) {
		o.onToken = fn
	}
}

// NewClient creates a client.
//
// Parameters:
//   - cfg: Configuration for the providers, stores, tools and agent
//   - opts: Components injected instead of being built from cfg
//
// Returns a new Client instance, or an error if initialization fails. On
// error everything built so far is released.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, invalidConfig("NewClient", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{config: cfg}
	if err := c.init(o); err != nil {
		_ = c.release()
		return nil, err
	}

	c.logger.Info("client ready",
		zap.Strings("tools", c.tools.Names()),
		zap.Bool("knowledge", c.retriever != nil),
		zap.Bool("planner", cfg.Agent.UsePlanner),
	)
	return c, nil
}

func (c *Client) init(o *clientOptions) error {
	cfg := c.config

	c.logger = o.logger
	if c.logger == nil {
		logger, err := NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		c.logger = logger
	}

	c.llm = o.llm
	if c.llm == nil {
		provider, err := initLLM(cfg.LLM)
		if err != nil {
			return err
		}
		c.llm = provider
		c.closers = append(c.closers, provider)
	}

	c.store = o.store
	if c.store == nil {
		store, err := initMemory(cfg.Memory)
		if err != nil {
			return err
		}
		c.store = store
		if closer, ok := store.(io.Closer); ok {
			c.closers = append(c.closers, closer)
		}
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		c.closers = append(c.closers, db)
	}

	c.document = o.document
	if c.document == nil {
		doc, err := c.loadDocument()
		if err != nil {
			return err
		}
		c.document = doc
	}

	if c.document != nil {
		if err := c.initKnowledge(o.embedder); err != nil {
			return err
		}
	}

	if err := c.initTools(db, o.tools); err != nil {
		return err
	}

	c.planner = planner.NewBuilder(memory.NewRecorder(c.store, c.logger), planner.WithLogger(c.logger))

	agentOpts := []agent.Option{
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithMemoryStore(c.store),
		agent.WithLogger(c.logger),
	}
	if cfg.Agent.UsePlanner {
		agentOpts = append(agentOpts, agent.WithPlanner(c.planner))
	}
	if c.retriever != nil {
		agentOpts = append(agentOpts, agent.WithKnowledge(c.retriever, cfg.Knowledge.TopK))
	}
	if cfg.LLM.Temperature != nil {
		agentOpts = append(agentOpts, agent.WithGenerateOptions(llm.WithTemperature(*cfg.LLM.Temperature)))
	}
	if cfg.LLM.MaxTokens > 0 {
		agentOpts = append(agentOpts, agent.WithGenerateOptions(llm.WithMaxTokens(cfg.LLM.MaxTokens)))
	}
	if o.onToken != nil {
		agentOpts = append(agentOpts, agent.WithTokenHandler(o.onToken))
	}
	c.agent = agent.New(c.llm, c.tools, agentOpts...)
	return nil
}

// loadDocument reads the configured knowledge file, or extracts the schema
// of a SQLite database when no file is configured.
func (c *Client) loadDocument() (*knowledge.Document, error) {
	cfg := c.config
	switch {
	case cfg.Knowledge.DocumentPath != "":
		doc, err := knowledge.LoadDocument(cfg.Knowledge.DocumentPath)
		if err != nil {
			return nil, NewAgentError("NewClient", err)
		}
		return doc, nil
	case cfg.Database.Provider == DatabaseSQLite:
		doc, err := knowledge.NewExtractor(cfg.Database.Path,
			knowledge.WithExtractorLogger(c.logger)).Extract(context.Background())
		if err != nil {
			return nil, NewAgentError("NewClient", err)
		}
		return doc, nil
	default:
		return nil, nil
	}
}

func (c *Client) initKnowledge(emb embedder.Provider) error {
	cfg := c.config.Knowledge
	if cfg.Backend == "" || cfg.Backend == KnowledgeKeyword {
		c.retriever = knowledge.NewKeywordRetriever(c.document)
		return nil
	}

	if emb == nil {
		created, err := initEmbedder(c.config.Embedder)
		if err != nil {
			return err
		}
		emb = created
		c.closers = append(c.closers, created)
	}

	vectors, err := initVectorStore(cfg, emb.Dimensions())
	if err != nil {
		return err
	}
	c.closers = append(c.closers, vectors)

	retriever, err := knowledge.NewVectorRetriever(emb, vectors, 1, knowledge.WithVectorLogger(c.logger))
	if err != nil {
		return NewAgentError("NewClient", err)
	}
	n, err := retriever.Index(context.Background(), c.document)
	if err != nil {
		return NewAgentError("NewClient", err)
	}
	c.logger.Info("knowledge indexed", zap.String("backend", cfg.Backend), zap.Int("chunks", n))
	c.retriever = retriever
	return nil
}

func (c *Client) initTools(db *database.Client, extra []tool.Tool) error {
	var tools []tool.Tool
	if db != nil {
		tools = append(tools,
			database.NewQueryDB(db, database.WithLogger(c.logger)),
			database.NewCheckDBInfo(db, database.WithLogger(c.logger)),
		)
	}
	if db != nil || c.document != nil {
		genOpts := []sqlgen.Option{sqlgen.WithDocument(c.document), sqlgen.WithLogger(c.logger)}
		if c.retriever != nil {
			genOpts = append(genOpts, sqlgen.WithRetriever(c.retriever, c.config.Knowledge.TopK))
		}
		tools = append(tools, sqlgen.New(c.llm, genOpts...))
	}
	if c.retriever != nil {
		tools = append(tools, search.New(c.retriever, c.config.Knowledge.TopK, c.logger))
	}
	tools = append(tools, extra...)

	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return NewAgentError("NewClient", err)
	}
	c.tools = registry
	return nil
}

// Invoke answers query. The Result is always non-nil; see agent.Agent.Invoke.
func (c *Client) Invoke(ctx context.Context, query string) (*agent.Result, error) {
	if err := c.checkOpen("Invoke"); err != nil {
		return &agent.Result{Err: err}, err
	}
	return c.agent.Invoke(ctx, query)
}

// Stream answers query and sends a state snapshot after every transition.
// The caller must drain the channel.
func (c *Client) Stream(ctx context.Context, query string) <-chan *agent.ExecutionState {
	if err := c.checkOpen("Stream"); err != nil {
		out := make(chan *agent.ExecutionState, 1)
		out <- &agent.ExecutionState{Query: query, Phase: agent.PhaseFinished, Finished: true, Err: err}
		close(out)
		return out
	}
	return c.agent.Stream(ctx, query)
}

// Plan builds the advisory plan for query without running the agent.
func (c *Client) Plan(ctx context.Context, query string) (*planner.Plan, error) {
	if err := c.checkOpen("Plan"); err != nil {
		return nil, err
	}
	plan, err := c.planner.CreatePlan(ctx, query, nil)
	if err != nil {
		return nil, NewAgentError("Plan", err)
	}
	return plan, nil
}

// Retrieve returns the knowledge chunks most relevant to query.
func (c *Client) Retrieve(ctx context.Context, query string, topK int) ([]knowledge.Hit, error) {
	if err := c.checkOpen("Retrieve"); err != nil {
		return nil, err
	}
	if c.retriever == nil {
		return nil, NewAgentError("Retrieve", ErrNoKnowledge)
	}
	hits, err := c.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, NewAgentError("Retrieve", err)
	}
	return hits, nil
}

// MemorySummary summarizes the newest limit records of the memory store.
func (c *Client) MemorySummary(ctx context.Context, limit int) (*memory.Summary, error) {
	if err := c.checkOpen("MemorySummary"); err != nil {
		return nil, err
	}
	summary, err := memory.Summarize(ctx, c.store, limit)
	if err != nil {
		return nil, NewAgentError("MemorySummary", err)
	}
	return summary, nil
}

// Tools returns the registered tool names in registration order.
func (c *Client) Tools() []string {
	return c.tools.Names()
}

// Document returns the knowledge document, nil when none is configured.
func (c *Client) Document() *knowledge.Document {
	return c.document
}

// Close releases everything the client created. It is safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.release()
}

func (c *Client) release() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return NewAgentError("Close", first)
}

func (c *Client) checkOpen(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewAgentError(op, ErrClosed)
	}
	return nil
}

// initLLM initializes the LLM provider.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	baseURL := cfg.BaseURL
	model := cfg.Model
	defaultURL, defaultModel := llmDefaults(cfg.Provider)
	if baseURL == "" {
		baseURL = defaultURL
	}
	if model == "" {
		model = defaultModel
	}

	switch cfg.Provider {
	case ProviderOpenAI, ProviderQwen, ProviderDeepSeek:
		client, err := openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   model,
			BaseURL: baseURL,
			Stream:  cfg.Stream,
		})
		if err != nil {
			return nil, NewAgentError("initLLM", err)
		}
		return client, nil
	case ProviderOllama:
		client, err := ollama.NewClient(&ollama.Config{
			APIKey:  cfg.APIKey,
			Model:   model,
			BaseURL: baseURL,
			Stream:  cfg.Stream,
		})
		if err != nil {
			return nil, NewAgentError("initLLM", err)
		}
		return client, nil
	default:
		return nil, invalidConfig("initLLM", "llm provider %q", cfg.Provider)
	}
}

// initEmbedder initializes the embedder provider.
func initEmbedder(cfg EmbedderConfig) (*openaiEmbedder.Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI, ProviderQwen:
		baseURL := cfg.BaseURL
		model := cfg.Model
		defaultURL, defaultModel := embedderDefaults(cfg.Provider)
		if baseURL == "" {
			baseURL = defaultURL
		}
		if model == "" {
			model = defaultModel
		}
		client, err := openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      model,
			BaseURL:    baseURL,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, NewAgentError("initEmbedder", err)
		}
		return client, nil
	default:
		return nil, invalidConfig("initEmbedder", "embedder provider %q", cfg.Provider)
	}
}

// initMemory initializes the memory store.
func initMemory(cfg MemoryConfig) (memory.Store, error) {
	switch cfg.Provider {
	case "", MemoryInProcess:
		return memory.NewInMemoryStore(), nil
	case MemorySQLite:
		store, err := sqliteMemory.NewStore(&sqliteMemory.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			return nil, NewAgentError("initMemory", err)
		}
		return store, nil
	default:
		return nil, invalidConfig("initMemory", "memory provider %q", cfg.Provider)
	}
}

// initVectorStore initializes the knowledge vector store.
func initVectorStore(cfg KnowledgeConfig, dims int) (storage.VectorStore, error) {
	switch cfg.Backend {
	case KnowledgeSQLite:
		client, err := sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             cfg.SQLitePath,
			EmbeddingModelDims: dims,
		})
		if err != nil {
			return nil, NewAgentError("initVectorStore", err)
		}
		return client, nil
	case KnowledgePostgres:
		pg := cfg.Postgres
		client, err := postgresStore.NewClient(&postgresStore.Config{
			Host:               pg.Host,
			Port:               pg.Port,
			User:               pg.User,
			Password:           pg.Password,
			DBName:             pg.DBName,
			CollectionName:     pg.CollectionName,
			EmbeddingModelDims: dims,
			SSLMode:            pg.SSLMode,
		})
		if err != nil {
			return nil, NewAgentError("initVectorStore", err)
		}
		return client, nil
	case KnowledgeOceanBase:
		ob := cfg.OceanBase
		client, err := oceanbase.NewClient(&oceanbase.Config{
			Host:               ob.Host,
			Port:               ob.Port,
			User:               ob.User,
			Password:           ob.Password,
			DBName:             ob.DBName,
			CollectionName:     ob.CollectionName,
			EmbeddingModelDims: dims,
		})
		if err != nil {
			return nil, NewAgentError("initVectorStore", err)
		}
		return client, nil
	default:
		return nil, invalidConfig("initVectorStore", "knowledge backend %q", cfg.Backend)
	}
}

// initDatabase opens the financial database, nil when none is configured.
func initDatabase(cfg DatabaseConfig) (*database.Client, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case DatabaseMySQL:
		client, err := database.Open(&database.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
		})
		if err != nil {
			return nil, NewAgentError("initDatabase", err)
		}
		return client, nil
	case DatabaseSQLite:
		db, err := sql.Open(database.DriverSQLite, cfg.Path)
		if err != nil {
			return nil, NewAgentError("initDatabase", err)
		}
		client, err := database.NewClient(db, database.DriverSQLite)
		if err != nil {
			_ = db.Close()
			return nil, NewAgentError("initDatabase", err)
		}
		return client, nil
	default:
		return nil, invalidConfig("initDatabase", "database provider %q", cfg.Provider)
	}
}
