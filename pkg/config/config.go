// Package config loads the interviewer configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/mcp-interviewer/pkg/engine"
	"github.com/txn2/mcp-interviewer/pkg/evaluate"
	"github.com/txn2/mcp-interviewer/pkg/oracle"
	"github.com/txn2/mcp-interviewer/pkg/question"
)

// Backend names.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	SourceEmbedded = "embedded"
	SourceFile     = "file"
	SourcePostgres = "postgres"

	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config holds the complete interviewer configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Session    SessionConfig    `yaml:"session"`
	Questions  QuestionsConfig  `yaml:"questions"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Interview  engine.Policy    `yaml:"interview"`
}

// ServerConfig configures the transports.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Transport       string        `yaml:"transport"` // "http", "stdio"
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CookieSecure    bool          `yaml:"cookie_secure"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text"
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	Store           string        `yaml:"store"` // "memory", "postgres"
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// QuestionsConfig configures the question bank.
type QuestionsConfig struct {
	Source            string           `yaml:"source"` // "embedded", "file", "postgres"
	File              string           `yaml:"file"`
	QuestionsPerTopic int              `yaml:"questions_per_topic"`
	Topics            []question.Topic `yaml:"topics"`
}

// OracleConfig configures the language model.
type OracleConfig struct {
	Provider        string        `yaml:"provider"` // "none", "gemini", "openai"
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	Temperature     float32       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	ParseRetries    int           `yaml:"parse_retries"`
}

// Client returns the oracle client configuration.
func (o OracleConfig) Client() oracle.Config {
	return oracle.Config{
		Provider:        o.Provider,
		APIKey:          o.APIKey,
		Model:           o.Model,
		BaseURL:         o.BaseURL,
		Timeout:         o.Timeout,
		Temperature:     o.Temperature,
		MaxOutputTokens: o.MaxOutputTokens,
	}
}

// EvaluationConfig configures answer grading.
type EvaluationConfig struct {
	HighThreshold       float64 `yaml:"high_threshold"`
	LowThreshold        float64 `yaml:"low_threshold"`
	SemanticConcurrency int     `yaml:"semantic_concurrency"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// newConfig returns the base that YAML is decoded onto. Fields where zero is
// a meaningful value are seeded here rather than in applyDefaults.
func newConfig() *Config {
	return &Config{
		Interview: engine.DefaultPolicy(),
		Evaluation: EvaluationConfig{
			HighThreshold: evaluate.DefaultHighThreshold,
			LowThreshold:  evaluate.DefaultLowThreshold,
		},
	}
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "mcp-interviewer"
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportHTTP
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = StoreMemory
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 30 * time.Minute
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = time.Minute
	}
	if cfg.Questions.Source == "" {
		cfg.Questions.Source = SourceEmbedded
	}
	if cfg.Questions.QuestionsPerTopic == 0 {
		cfg.Questions.QuestionsPerTopic = 1
	}
	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = oracle.ProviderNone
	}
	if cfg.Oracle.Timeout == 0 {
		cfg.Oracle.Timeout = 15 * time.Second
	}
	if cfg.Oracle.ParseRetries == 0 {
		cfg.Oracle.ParseRetries = 1
	}
	if cfg.Evaluation.SemanticConcurrency == 0 {
		cfg.Evaluation.SemanticConcurrency = 4
	}
}

// ApplyEnv overrides configuration from environment variables. API keys
// select their provider when none is configured.
func (c *Config) ApplyEnv() error {
	var errs []string

	if v := os.Getenv("SESSION_TTL_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("SESSION_TTL_MINUTES must be a positive integer, got %q", v))
		} else {
			c.Session.TTL = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.useKey(oracle.ProviderGemini, v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.useKey(oracle.ProviderOpenAI, v)
	}
	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}

	for name, dst := range map[string]*float64{
		"EVAL_HIGH_THRESHOLD": &c.Evaluation.HighThreshold,
		"EVAL_LOW_THRESHOLD":  &c.Evaluation.LowThreshold,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a number, got %q", name, v))
			continue
		}
		*dst = f
	}

	if v := os.Getenv("RETRY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("RETRY_LIMIT must be an integer, got %q", v))
		} else {
			c.Interview.RetryLimit = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) useKey(provider, key string) {
	switch c.Oracle.Provider {
	case "", oracle.ProviderNone:
		c.Oracle.Provider = provider
		c.Oracle.APIKey = key
	case provider:
		if c.Oracle.APIKey == "" {
			c.Oracle.APIKey = key
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch c.Server.Transport {
	case TransportHTTP, TransportStdio:
	default:
		errs = append(errs, fmt.Sprintf("server.transport must be %q or %q", TransportHTTP, TransportStdio))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of debug, info, warn, error")
	}

	switch c.Session.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required when session.store is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown session.store %q", c.Session.Store))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, "session.ttl must be positive")
	}

	switch c.Questions.Source {
	case SourceEmbedded:
	case SourceFile:
		if c.Questions.File == "" {
			errs = append(errs, "questions.file is required when questions.source is file")
		}
	case SourcePostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required when questions.source is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown questions.source %q", c.Questions.Source))
	}
	for _, t := range c.Questions.Topics {
		if !t.Valid() {
			errs = append(errs, fmt.Sprintf("unknown topic %q", t))
		}
	}

	switch c.Oracle.Provider {
	case oracle.ProviderNone, oracle.ProviderGemini, oracle.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Sprintf("unknown oracle.provider %q", c.Oracle.Provider))
	}

	e := c.Evaluation
	if e.LowThreshold < 0 || e.HighThreshold > 1 || e.LowThreshold > e.HighThreshold {
		errs = append(errs, "evaluation thresholds must satisfy 0 <= low_threshold <= high_threshold <= 1")
	}

	if c.Interview.RetryLimit < 1 {
		errs = append(errs, "interview.retry_limit must be at least 1")
	}
	if c.Interview.MaxFollowUps < 0 {
		errs = append(errs, "interview.max_follow_ups must not be negative")
	}
	if c.Interview.StartDifficulty < question.MinDifficulty || c.Interview.StartDifficulty > question.MaxDifficulty {
		errs = append(errs, fmt.Sprintf("interview.start_difficulty must be between %d and %d",
			question.MinDifficulty, question.MaxDifficulty))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
