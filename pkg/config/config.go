package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for kgraph-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Knowledge-graph metadata store (PostgreSQL with pgvector)
	KGStore KGStoreConfig `yaml:"kg_store"`

	// Vector index persistence
	VectorIndex VectorIndexConfig `yaml:"vector_index"`

	// LLM and embedding endpoints
	AI AIConfig `yaml:"ai"`

	// Agent pipeline tuning
	Agents AgentConfig `yaml:"agents"`
}

// KGStoreConfig holds connection settings for the KG metadata store.
type KGStoreConfig struct {
	Host           string `yaml:"host" env:"KG_HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"KG_PORT" env-default:"5432"`
	User           string `yaml:"user" env:"KG_USER" env-default:"kgraph"`
	Password       string `yaml:"-" env:"KG_PASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"KG_DATABASE" env-default:"kgraph_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"KG_SSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"KG_MAX_CONNECTIONS" env-default:"25"`
}

// ConnectionString returns a PostgreSQL connection string for the KG store.
func (c *KGStoreConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// VectorIndexConfig holds settings for the persistent vector index.
type VectorIndexConfig struct {
	// PersistDir is the directory where vector collections are stored on disk.
	PersistDir string `yaml:"persist_dir" env:"CHROMA_PERSIST_DIR" env-default:".kgraph/vectors"`
	// Compress enables gzip compression of persisted collections.
	Compress bool `yaml:"compress" env:"CHROMA_COMPRESS" env-default:"false"`
}

// AIConfig holds LLM and embedding endpoint configuration.
type AIConfig struct {
	// Provider selects the chat backend: "openai" (any OpenAI-compatible endpoint)
	// or "anthropic". Embeddings always use the OpenAI-compatible endpoint.
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`

	LLMBaseURL      string `yaml:"llm_base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	LLMModel        string `yaml:"llm_model" env:"LLM_MODEL" env-default:"gpt-4o"`
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`    // Secret
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret
	AnthropicModel  string `yaml:"anthropic_model" env:"ANTHROPIC_MODEL" env-default:"claude-sonnet-4-20250514"`

	EmbeddingBaseURL string `yaml:"embedding_base_url" env:"EMBEDDING_BASE_URL" env-default:""`
	EmbeddingModel   string `yaml:"embedding_model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	EmbeddingDim     int    `yaml:"embedding_dim" env:"EMBEDDING_DIM" env-default:"1536"`

	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"LLM_REQUEST_TIMEOUT_SECONDS" env-default:"60"`
}

// EffectiveEmbeddingBaseURL returns the embedding endpoint, falling back to the
// LLM endpoint when no dedicated embedding endpoint is configured.
func (c *AIConfig) EffectiveEmbeddingBaseURL() string {
	if c.EmbeddingBaseURL != "" {
		return c.EmbeddingBaseURL
	}
	return c.LLMBaseURL
}

// AgentConfig holds tuning knobs for the query pipeline.
type AgentConfig struct {
	// MaxRetries bounds error-router redirections per query.
	MaxRetries int `yaml:"max_retries" env:"AGENT_MAX_RETRIES" env-default:"3"`
	// VectorTopK is the number of table candidates retrieved by vector search.
	VectorTopK int `yaml:"vector_top_k" env:"AGENT_VECTOR_TOP_K" env-default:"10"`
	// SimilarQueriesK is the number of similar past queries fed to SQL generation.
	SimilarQueriesK int `yaml:"similar_queries_k" env:"AGENT_SIMILAR_QUERIES_K" env-default:"5"`
	// RowLimit caps result rows when the generated SQL has no LIMIT clause.
	RowLimit int `yaml:"row_limit" env:"AGENT_ROW_LIMIT" env-default:"10000"`
	// StatementTimeoutSeconds bounds target-database execution time.
	StatementTimeoutSeconds int `yaml:"statement_timeout_seconds" env:"AGENT_STATEMENT_TIMEOUT_SECONDS" env-default:"30"`
	// CompressionThreshold is the lesson word count that schedules compaction.
	CompressionThreshold int `yaml:"compression_threshold" env:"SUMMARY_COMPRESSION_THRESHOLD" env-default:"500"`
	// GenerateDescriptions enables the LLM enrichment phase during KG builds.
	GenerateDescriptions bool `yaml:"generate_descriptions" env:"KG_GENERATE_DESCRIPTIONS" env-default:"true"`
	// GenerateEmbeddings enables the embedding phase during KG builds.
	GenerateEmbeddings bool `yaml:"generate_embeddings" env:"KG_GENERATE_EMBEDDINGS" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml does not exist, configuration comes from the environment only.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if cfg.Agents.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0, got %d", cfg.Agents.MaxRetries)
	}
	if cfg.AI.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding_dim must be > 0, got %d", cfg.AI.EmbeddingDim)
	}

	return cfg, nil
}
