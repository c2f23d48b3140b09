// Package config defines the configuration surface for the cogito agent.
//
// Configuration is loaded from a YAML file with ${ENV_VAR} expansion applied
// to every string field. Each section carries its own SetDefaults and
// Validate so zero-config startup works against local services.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the agent process.
type Config struct {
	LLM           LLMProviderConfig   `yaml:"llm"`
	Embedder      EmbedderConfig      `yaml:"embedder"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store"`
	Metadata      MetadataStoreConfig `yaml:"metadata"`
	Research      ResearchConfig      `yaml:"research"`
	Encyclopedia  EncyclopediaConfig  `yaml:"encyclopedia"`
	Conversations ConversationsConfig `yaml:"conversations"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LLMProviderConfig configures the OpenAI-compatible chat completion surface.
type LLMProviderConfig struct {
	// Model name (e.g. "gpt-oss-120b", "gpt-4o").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// Host overrides the default API endpoint.
	Host string `yaml:"host,omitempty"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Timeout in seconds for a single request.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries for transient HTTP failures.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// RetryDelay base delay in seconds between retries.
	RetryDelay int `yaml:"retry_delay,omitempty"`

	// TokenizerModel selects the tiktoken encoding used for budgeting.
	TokenizerModel string `yaml:"tokenizer_model,omitempty"`
}

func (c *LLMProviderConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.Temperature == nil {
		t := 0.7
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
	if c.TokenizerModel == "" {
		c.TokenizerModel = "gpt-4o"
	}
}

func (c *LLMProviderConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("llm: api_key is required (set OPENAI_API_KEY or llm.api_key)")
	}
	if c.Timeout < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("llm: timeout and max_retries must be non-negative")
	}
	return nil
}

// EmbedderConfig configures the embedding collaborator.
type EmbedderConfig struct {
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"`
	Timeout   int    `yaml:"timeout,omitempty"`
	BatchSize int    `yaml:"batch_size,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Host == "" {
		c.Host = "https://api.openai.com/v1"
	}
	if c.Dimension == 0 {
		switch c.Model {
		case "text-embedding-3-large":
			c.Dimension = 3072
		default:
			c.Dimension = 1536
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("embedder: api_key is required")
	}
	return nil
}

// VectorStoreConfig configures the Qdrant connection.
type VectorStoreConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	EnableTLS  *bool  `yaml:"enable_tls,omitempty"`

	// Limit is the number of nearest-neighbor hits returned per query.
	Limit int `yaml:"limit,omitempty"`
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "gutenberg"
	}
	if c.EnableTLS == nil {
		f := false
		c.EnableTLS = &f
	}
	if c.Limit == 0 {
		c.Limit = 1
	}
}

func (c *VectorStoreConfig) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("vector_store: collection is required")
	}
	if c.Limit < 1 {
		return fmt.Errorf("vector_store: limit must be at least 1")
	}
	return nil
}

// MetadataStoreConfig configures the Postgres author/source catalog.
type MetadataStoreConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`

	// FiltersTable holds (authors, sources) rows.
	FiltersTable string `yaml:"filters_table,omitempty"`

	// NotifyChannel is LISTENed on for catalog refreshes.
	NotifyChannel string `yaml:"notify_channel,omitempty"`
}

func (c *MetadataStoreConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.Database == "" {
		c.Database = "cogito"
	}
	if c.User == "" {
		c.User = "postgres"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.FiltersTable == "" {
		c.FiltersTable = "filters"
	}
	if c.NotifyChannel == "" {
		c.NotifyChannel = "filters_changes"
	}
}

func (c *MetadataStoreConfig) Validate() error {
	if c.Database == "" || c.User == "" {
		return fmt.Errorf("metadata: database and user are required")
	}
	return nil
}

// ConnectionString renders a lib/pq DSN.
func (c *MetadataStoreConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.SSLMode)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	return dsn
}

// ResearchConfig carries the orchestration budgets.
type ResearchConfig struct {
	// HistoryTokenLimit is the threshold above which old history is
	// summarized before the turn starts.
	HistoryTokenLimit int `yaml:"history_token_limit,omitempty"`

	// ContextTokenCap ends research when the encoded conversation
	// exceeds it.
	ContextTokenCap int `yaml:"context_token_cap,omitempty"`

	// MaxIterationsSimple and MaxIterationsDeep cap planning iterations
	// per effort tier.
	MaxIterationsSimple int `yaml:"max_iterations_simple,omitempty"`
	MaxIterationsDeep   int `yaml:"max_iterations_deep,omitempty"`

	// FuzzyMatchThreshold is the score floor for author/title resolution;
	// a match must score strictly above it to resolve.
	FuzzyMatchThreshold int `yaml:"fuzzy_match_threshold,omitempty"`

	// ClassifierMaxAttempts bounds effort-classifier retries before
	// falling back to SIMPLE.
	ClassifierMaxAttempts int `yaml:"classifier_max_attempts,omitempty"`

	// PlannerMaxParseAttempts bounds planner JSON retries before research
	// is ended.
	PlannerMaxParseAttempts int `yaml:"planner_max_parse_attempts,omitempty"`

	// FanOutWorkers caps concurrent source adapters per iteration.
	FanOutWorkers int `yaml:"fan_out_workers,omitempty"`
}

func (c *ResearchConfig) SetDefaults() {
	if c.HistoryTokenLimit == 0 {
		c.HistoryTokenLimit = 10000
	}
	if c.ContextTokenCap == 0 {
		c.ContextTokenCap = 100000
	}
	if c.MaxIterationsSimple == 0 {
		c.MaxIterationsSimple = 4
	}
	if c.MaxIterationsDeep == 0 {
		c.MaxIterationsDeep = 8
	}
	if c.FuzzyMatchThreshold == 0 {
		c.FuzzyMatchThreshold = 80
	}
	if c.ClassifierMaxAttempts == 0 {
		c.ClassifierMaxAttempts = 3
	}
	if c.PlannerMaxParseAttempts == 0 {
		c.PlannerMaxParseAttempts = 5
	}
	if c.FanOutWorkers == 0 {
		c.FanOutWorkers = 2
	}
}

func (c *ResearchConfig) Validate() error {
	if c.MaxIterationsSimple > c.MaxIterationsDeep {
		return fmt.Errorf("research: max_iterations_simple (%d) must not exceed max_iterations_deep (%d)",
			c.MaxIterationsSimple, c.MaxIterationsDeep)
	}
	if c.FanOutWorkers < 1 {
		return fmt.Errorf("research: fan_out_workers must be at least 1")
	}
	return nil
}

// EncyclopediaConfig configures the Stanford Encyclopedia of Philosophy
// adapter.
type EncyclopediaConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	UserAgent string `yaml:"user_agent,omitempty"`

	// Timeout in seconds per HTTP request.
	Timeout int `yaml:"timeout,omitempty"`

	// SearchLimit is the number of search hits fetched per query.
	SearchLimit int `yaml:"search_limit,omitempty"`

	// SectionMaxAttempts bounds section-selection JSON retries before
	// falling back to the leading sections.
	SectionMaxAttempts int `yaml:"section_max_attempts,omitempty"`
}

func (c *EncyclopediaConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://plato.stanford.edu"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Cogito Research Bot"
	}
	if c.Timeout == 0 {
		c.Timeout = 10
	}
	if c.SearchLimit == 0 {
		c.SearchLimit = 1
	}
	if c.SectionMaxAttempts == 0 {
		c.SectionMaxAttempts = 3
	}
}

func (c *EncyclopediaConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("encyclopedia: base_url is required")
	}
	return nil
}

// ConversationsConfig configures on-disk conversation persistence.
type ConversationsConfig struct {
	// Dir is the directory holding one JSON file per conversation.
	// Defaults to ~/.cogito/conversations.
	Dir string `yaml:"dir,omitempty"`
}

func (c *ConversationsConfig) SetDefaults() {
	if c.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Dir = filepath.Join(home, ".cogito", "conversations")
	}
}

func (c *ConversationsConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("conversations: dir is required")
	}
	return nil
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Metadata.SetDefaults()
	c.Research.SetDefaults()
	c.Encyclopedia.SetDefaults()
	c.Conversations.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Embedder.Validate(); err != nil {
		return err
	}
	if err := c.VectorStore.Validate(); err != nil {
		return err
	}
	if err := c.Metadata.Validate(); err != nil {
		return err
	}
	if err := c.Research.Validate(); err != nil {
		return err
	}
	if err := c.Encyclopedia.Validate(); err != nil {
		return err
	}
	if err := c.Conversations.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads a YAML config file, expands environment variables, applies
// defaults, and validates the result. An empty path yields a defaulted
// config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		expanded := ExpandEnvVarsInData(raw)
		out, err := yaml.Marshal(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode expanded config: %w", err)
		}
		if err := yaml.Unmarshal(out, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// BoolPtr is a convenience for optional boolean fields.
func BoolPtr(b bool) *bool { return &b }
