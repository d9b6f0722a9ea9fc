package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/finqa/finqa-agent-go/pkg/llm/ollama"
)

// Supported provider and backend names.
const (
	ProviderOpenAI   = "openai"
	ProviderQwen     = "qwen"
	ProviderDeepSeek = "deepseek"
	ProviderOllama   = "ollama"

	MemoryInProcess = "memory"
	MemorySQLite    = "sqlite"

	KnowledgeKeyword   = "keyword"
	KnowledgeSQLite    = "sqlite"
	KnowledgePostgres  = "postgres"
	KnowledgeOceanBase = "oceanbase"

	DatabaseMySQL  = "mysql"
	DatabaseSQLite = "sqlite"
)

// Config contains the complete configuration for a financial QA client.
//
// It includes settings for:
//   - LLM provider (reasoning and SQL generation)
//   - Embedding provider (vector knowledge retrieval, optional)
//   - Memory store (execution trail)
//   - Knowledge document and its retrieval backend
//   - Financial database queried by the tools (optional)
//
// Example:
//
//	config := &core.Config{
//	    LLM: core.LLMConfig{
//	        Provider: "qwen",
//	        APIKey:   "sk-...",
//	        Model:    "qwen-plus",
//	    },
//	    Knowledge: core.KnowledgeConfig{
//	        DocumentPath: "./schema.json",
//	        Backend:      "keyword",
//	    },
//	    Agent: core.AgentConfig{MaxSteps: 5, UsePlanner: true},
//	}
type Config struct {
	// LLM contains LLM provider configuration.
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration. Only required for
	// the vector knowledge backends.
	Embedder EmbedderConfig `json:"embedder"`

	// Memory selects the memory store.
	Memory MemoryConfig `json:"memory"`

	// Knowledge configures the schema knowledge retriever.
	Knowledge KnowledgeConfig `json:"knowledge"`

	// Database configures the financial database behind QueryDB and
	// CheckDBInfo. An empty provider disables the database tools.
	Database DatabaseConfig `json:"database"`

	// Agent contains execution loop settings.
	Agent AgentConfig `json:"agent"`

	// Log configures the zap logger built by NewClient.
	Log LogConfig `json:"log"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: qwen, openai, deepseek and ollama. The first three are
// reached through the OpenAI-compatible API; BaseURL defaults per provider.
type LLMConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`

	// Stream requests incremental generation from the backend.
	Stream bool `json:"stream,omitempty"`

	// Temperature and MaxTokens apply to every reasoning call when set.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
type EmbedderConfig struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	BaseURL    string `json:"base_url,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// MemoryConfig selects the memory store: "memory" (default) or "sqlite".
type MemoryConfig struct {
	Provider   string `json:"provider"`
	SQLitePath string `json:"sqlite_path,omitempty"`
}

// KnowledgeConfig configures schema retrieval.
//
// Backend is "keyword" (default), "sqlite", "postgres" or "oceanbase". The
// vector backends embed every chunk of the document at startup.
type KnowledgeConfig struct {
	// DocumentPath is the knowledge JSON file. When empty and the database is
	// SQLite, the document is extracted from the database itself.
	DocumentPath string `json:"document_path,omitempty"`

	Backend    string          `json:"backend"`
	TopK       int             `json:"top_k,omitempty"`
	SQLitePath string          `json:"sqlite_path,omitempty"`
	Postgres   PostgresConfig  `json:"postgres,omitempty"`
	OceanBase  OceanBaseConfig `json:"oceanbase,omitempty"`
}

// PostgresConfig contains the pgvector connection settings.
type PostgresConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	User           string `json:"user"`
	Password       string `json:"password"`
	DBName         string `json:"db_name"`
	CollectionName string `json:"collection_name,omitempty"`
	SSLMode        string `json:"ssl_mode,omitempty"`
}

// OceanBaseConfig contains the OceanBase vector store connection settings.
type OceanBaseConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	User           string `json:"user"`
	Password       string `json:"password"`
	DBName         string `json:"db_name"`
	CollectionName string `json:"collection_name,omitempty"`
}

// DatabaseConfig contains the financial database settings.
//
// Provider is "mysql" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Provider string `json:"provider"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"db_name,omitempty"`
	Path     string `json:"path,omitempty"`
}

// AgentConfig contains execution loop settings.
type AgentConfig struct {
	// MaxSteps bounds the reasoning turns; 0 means the agent default.
	MaxSteps int `json:"max_steps"`

	// UsePlanner builds an advisory plan before the first turn.
	UsePlanner bool `json:"use_planner"`
}

// LogConfig configures logging. Level is a zap level name, Format is
// "json" (default) or "console".
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL, LLM_STREAM,
//     LLM_TEMPERATURE, LLM_MAX_TOKENS
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - MEMORY_PROVIDER, MEMORY_SQLITE_PATH
//   - KNOWLEDGE_PATH, KNOWLEDGE_BACKEND, KNOWLEDGE_TOP_K, KNOWLEDGE_SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_COLLECTION, POSTGRES_SSLMODE
//   - OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD,
//     OCEANBASE_DATABASE, OCEANBASE_COLLECTION
//   - DATABASE_PROVIDER, MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD,
//     MYSQL_DATABASE, SQLITE_DB_PATH
//   - AGENT_MAX_STEPS, AGENT_USE_PLANNER
//   - LOG_LEVEL, LOG_FORMAT
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	llmProvider := getEnvOrDefault("LLM_PROVIDER", ProviderQwen)
	llmBaseURL, llmModel := llmDefaults(llmProvider)

	embedderProvider := os.Getenv("EMBEDDING_PROVIDER")
	embedderBaseURL, embedderModel := embedderDefaults(embedderProvider)

	config := &Config{
		LLM: LLMConfig{
			Provider:  llmProvider,
			APIKey:    os.Getenv("LLM_API_KEY"),
			Model:     getEnvOrDefault("LLM_MODEL", llmModel),
			BaseURL:   getEnvOrDefault("LLM_BASE_URL", llmBaseURL),
			Stream:    getEnvBool("LLM_STREAM"),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 0),
		},
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", embedderModel),
			BaseURL:    getEnvOrDefault("EMBEDDING_BASE_URL", embedderBaseURL),
			Dimensions: getEnvInt("EMBEDDING_DIMS", 1536),
		},
		Memory: MemoryConfig{
			Provider:   getEnvOrDefault("MEMORY_PROVIDER", MemoryInProcess),
			SQLitePath: getEnvOrDefault("MEMORY_SQLITE_PATH", "./finqa_memory.db"),
		},
		Knowledge: KnowledgeConfig{
			DocumentPath: os.Getenv("KNOWLEDGE_PATH"),
			Backend:      getEnvOrDefault("KNOWLEDGE_BACKEND", KnowledgeKeyword),
			TopK:         getEnvInt("KNOWLEDGE_TOP_K", 5),
			SQLitePath:   getEnvOrDefault("KNOWLEDGE_SQLITE_PATH", "./finqa_knowledge.db"),
			Postgres: PostgresConfig{
				Host:           getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:           getEnvInt("POSTGRES_PORT", 5432),
				User:           getEnvOrDefault("POSTGRES_USER", "postgres"),
				Password:       os.Getenv("POSTGRES_PASSWORD"),
				DBName:         getEnvOrDefault("POSTGRES_DATABASE", "finqa"),
				CollectionName: getEnvOrDefault("POSTGRES_COLLECTION", "knowledge_chunks"),
				SSLMode:        getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
			},
			OceanBase: OceanBaseConfig{
				Host:           getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1"),
				Port:           getEnvInt("OCEANBASE_PORT", 2881),
				User:           getEnvOrDefault("OCEANBASE_USER", "root@sys"),
				Password:       os.Getenv("OCEANBASE_PASSWORD"),
				DBName:         getEnvOrDefault("OCEANBASE_DATABASE", "finqa"),
				CollectionName: getEnvOrDefault("OCEANBASE_COLLECTION", "knowledge_chunks"),
			},
		},
		Database: DatabaseConfig{
			Provider: os.Getenv("DATABASE_PROVIDER"),
			Host:     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			Port:     getEnvInt("MYSQL_PORT", 3306),
			User:     getEnvOrDefault("MYSQL_USER", "root"),
			Password: os.Getenv("MYSQL_PASSWORD"),
			DBName:   os.Getenv("MYSQL_DATABASE"),
			Path:     os.Getenv("SQLITE_DB_PATH"),
		},
		Agent: AgentConfig{
			MaxSteps:   getEnvInt("AGENT_MAX_STEPS", 5),
			UsePlanner: getEnvBool("AGENT_USE_PLANNER"),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, invalidConfig("LoadConfigFromEnv", "LLM_TEMPERATURE %q", v)
		}
		config.LLM.Temperature = &t
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAgentError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewAgentError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Empty provider and backend names select the defaults; unknown names, a
// vector knowledge backend without an embedder and negative limits are
// rejected. The LLM provider may be empty when a provider is injected with
// WithLLM.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "", ProviderOpenAI, ProviderQwen, ProviderDeepSeek, ProviderOllama:
	default:
		return invalidConfig("Validate", "unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Memory.Provider {
	case "", MemoryInProcess:
	case MemorySQLite:
		if c.Memory.SQLitePath == "" {
			return invalidConfig("Validate", "memory sqlite_path is required")
		}
	default:
		return invalidConfig("Validate", "unknown memory provider %q", c.Memory.Provider)
	}

	switch c.Knowledge.Backend {
	case "", KnowledgeKeyword:
	case KnowledgeSQLite, KnowledgePostgres, KnowledgeOceanBase:
		if c.Embedder.Provider == "" {
			return invalidConfig("Validate", "knowledge backend %q needs an embedder", c.Knowledge.Backend)
		}
	default:
		return invalidConfig("Validate", "unknown knowledge backend %q", c.Knowledge.Backend)
	}

	switch c.Database.Provider {
	case "":
	case DatabaseMySQL:
		if c.Database.DBName == "" {
			return invalidConfig("Validate", "database db_name is required")
		}
	case DatabaseSQLite:
		if c.Database.Path == "" {
			return invalidConfig("Validate", "database path is required")
		}
	default:
		return invalidConfig("Validate", "unknown database provider %q", c.Database.Provider)
	}

	if c.Agent.MaxSteps < 0 {
		return invalidConfig("Validate", "max_steps must not be negative")
	}
	if c.Knowledge.TopK < 0 {
		return invalidConfig("Validate", "top_k must not be negative")
	}
	return nil
}

func llmDefaults(provider string) (baseURL, model string) {
	switch provider {
	case ProviderQwen:
		return "https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-plus"
	case ProviderDeepSeek:
		return "https://api.deepseek.com", "deepseek-chat"
	case ProviderOllama:
		return ollama.DefaultBaseURL, "qwen2.5:14b"
	default:
		return "", "gpt-4"
	}
}

func embedderDefaults(provider string) (baseURL, model string) {
	switch provider {
	case ProviderQwen:
		return "https://dashscope.aliyuncs.com/compatible-mode/v1", "text-embedding-v4"
	default:
		return "", "text-embedding-3-small"
	}
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
