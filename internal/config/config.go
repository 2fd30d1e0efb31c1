package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/controller"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/tools"
)

// EnvPrefix prefixes environment overrides for keys without a bound name,
// e.g. RAG_LLM_MODEL for llm.model.
const EnvPrefix = "RAG"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// #region types
// Config is the full controller configuration.
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Codec     CodecConfig     `mapstructure:"codec"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AgentConfig holds the loop budgets and answer thresholds.
type AgentConfig struct {
	RetrievalK            int           `mapstructure:"retrieval_k"`
	FinalK                int           `mapstructure:"final_k"`
	SnippetLength         int           `mapstructure:"snippet_length"`
	MaxTurns              int           `mapstructure:"max_turns"`
	MaxErrorRetries       int           `mapstructure:"max_error_retries"`
	AccuracyThreshold     int           `mapstructure:"accuracy_threshold"`
	RelevanceThreshold    int           `mapstructure:"relevance_threshold"`
	CompletenessThreshold int           `mapstructure:"completeness_threshold"`
	CallTimeout           time.Duration `mapstructure:"call_timeout"`
	RetryAttempts         int           `mapstructure:"retry_attempts"`
	RetryInitial          time.Duration `mapstructure:"retry_initial"`
	RetryMax              time.Duration `mapstructure:"retry_max"`
}

// LLMConfig selects the chat model backend.
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"` // ollama | codec
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float64 `mapstructure:"temperature"`
}

type CodecConfig struct {
	Addr string `mapstructure:"addr"`
}

// RetrievalConfig selects the vector backend and corpus handling.
type RetrievalConfig struct {
	Backend             string        `mapstructure:"backend"` // memory | codec | pgvector
	Corpus              string        `mapstructure:"corpus"`  // directory loaded into the in-memory indexes
	SimilarityThreshold float32       `mapstructure:"similarity_threshold"`
	MaxEvidenceLen      int           `mapstructure:"max_evidence_len"`
	ChunkSize           int           `mapstructure:"chunk_size"`
	ChunkOverlap        int           `mapstructure:"chunk_overlap"`
	PostgresDSN         string        `mapstructure:"postgres_dsn"`
	Cache               string        `mapstructure:"cache"` // none | memory | redis
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	RedisAddr           string        `mapstructure:"redis_addr"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Production bool   `mapstructure:"production"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the /metrics listener
}

// #endregion types

// #region load
// envNames binds keys to their historical environment variable names.
var envNames = map[string]string{
	"agent.retrieval_k":            "RETRIEVAL_K",
	"agent.final_k":                "FINAL_K",
	"agent.snippet_length":         "CHUNK_SNIPPET_LENGTH",
	"agent.max_turns":              "MAX_AGENT_TURNS",
	"agent.max_error_retries":      "MAX_ERROR_RETRIES",
	"agent.accuracy_threshold":     "ACCURACY_THRESHOLD",
	"agent.relevance_threshold":    "RELEVANCE_THRESHOLD",
	"agent.completeness_threshold": "COMPLETENESS_THRESHOLD",
}

func setDefaults(v *viper.Viper) {
	cc := controller.DefaultConfig()
	lim := tools.DefaultLimits()
	th := eval.DefaultThresholds()
	rc := retrieval.DefaultConfig()
	lc := logging.DefaultConfig()

	v.SetDefault("agent.retrieval_k", lim.RetrievalK)
	v.SetDefault("agent.final_k", lim.FinalK)
	v.SetDefault("agent.snippet_length", lim.SnippetLength)
	v.SetDefault("agent.max_turns", cc.MaxTurns)
	v.SetDefault("agent.max_error_retries", cc.MaxErrorRetries)
	v.SetDefault("agent.accuracy_threshold", th.Accuracy)
	v.SetDefault("agent.relevance_threshold", th.Relevance)
	v.SetDefault("agent.completeness_threshold", th.Completeness)
	v.SetDefault("agent.call_timeout", cc.CallTimeout)
	v.SetDefault("agent.retry_attempts", cc.Retry.MaxAttempts)
	v.SetDefault("agent.retry_initial", cc.Retry.InitialInterval)
	v.SetDefault("agent.retry_max", cc.Retry.MaxInterval)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "qwen2.5:7b")
	v.SetDefault("llm.embedding_model", "nomic-embed-text")
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("codec.addr", "localhost:50051")

	v.SetDefault("retrieval.backend", "memory")
	v.SetDefault("retrieval.corpus", "")
	v.SetDefault("retrieval.similarity_threshold", rc.SimilarityThreshold)
	v.SetDefault("retrieval.max_evidence_len", rc.MaxEvidenceLen)
	v.SetDefault("retrieval.chunk_size", 800)
	v.SetDefault("retrieval.chunk_overlap", 100)
	v.SetDefault("retrieval.postgres_dsn", "")
	v.SetDefault("retrieval.cache", "memory")
	v.SetDefault("retrieval.cache_ttl", time.Hour)
	v.SetDefault("retrieval.redis_addr", "localhost:6379")

	v.SetDefault("store.path", "agentic-rag.db")

	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.file", lc.File)
	v.SetDefault("log.production", lc.Production)
	v.SetDefault("log.max_size_mb", lc.MaxSizeMB)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age_days", lc.MaxAgeDays)

	v.SetDefault("metrics.addr", "")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envNames {
		_ = v.BindEnv(key, env)
	}
	return v
}

// Load reads path (YAML, JSON or TOML by extension) when non-empty, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// #endregion load

// #region validate
// Validate rejects non-positive budgets, FINAL_K above RETRIEVAL_K,
// thresholds outside 1..5 and unknown backends.
func (c *Config) Validate() error {
	a := c.Agent
	for name, n := range map[string]int{
		"RETRIEVAL_K":          a.RetrievalK,
		"FINAL_K":              a.FinalK,
		"CHUNK_SNIPPET_LENGTH": a.SnippetLength,
		"MAX_AGENT_TURNS":      a.MaxTurns,
		"MAX_ERROR_RETRIES":    a.MaxErrorRetries,
		"retry_attempts":       a.RetryAttempts,
	} {
		if n <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, name, n)
		}
	}
	if a.FinalK > a.RetrievalK {
		return fmt.Errorf("%w: FINAL_K (%d) exceeds RETRIEVAL_K (%d)", ErrInvalid, a.FinalK, a.RetrievalK)
	}
	if a.CallTimeout <= 0 {
		return fmt.Errorf("%w: call_timeout must be positive", ErrInvalid)
	}
	for name, n := range map[string]int{
		"ACCURACY_THRESHOLD":     a.AccuracyThreshold,
		"RELEVANCE_THRESHOLD":    a.RelevanceThreshold,
		"COMPLETENESS_THRESHOLD": a.CompletenessThreshold,
	} {
		if n < eval.MinScore || n > eval.MaxScore {
			return fmt.Errorf("%w: %s must be in %d..%d, got %d", ErrInvalid, name, eval.MinScore, eval.MaxScore, n)
		}
	}

	switch c.LLM.Provider {
	case "ollama", "codec":
	default:
		return fmt.Errorf("%w: llm.provider %q (must be ollama or codec)", ErrInvalid, c.LLM.Provider)
	}
	switch c.Retrieval.Backend {
	case "memory", "codec":
	case "pgvector":
		if c.Retrieval.PostgresDSN == "" {
			return fmt.Errorf("%w: retrieval.postgres_dsn is required for the pgvector backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: retrieval.backend %q (must be memory, codec or pgvector)", ErrInvalid, c.Retrieval.Backend)
	}
	switch c.Retrieval.Cache {
	case "", "none", "memory", "redis":
	default:
		return fmt.Errorf("%w: retrieval.cache %q (must be none, memory or redis)", ErrInvalid, c.Retrieval.Cache)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("%w: retrieval.chunk_overlap must be smaller than chunk_size", ErrInvalid)
	}
	return nil
}

// #endregion validate

// #region views
func (c *Config) Controller() controller.Config {
	return controller.Config{
		MaxTurns:        c.Agent.MaxTurns,
		MaxErrorRetries: c.Agent.MaxErrorRetries,
		CallTimeout:     c.Agent.CallTimeout,
		Retry: controller.RetryConfig{
			MaxAttempts:     c.Agent.RetryAttempts,
			InitialInterval: c.Agent.RetryInitial,
			MaxInterval:     c.Agent.RetryMax,
		},
	}
}

func (c *Config) Limits() tools.Limits {
	return tools.Limits{
		RetrievalK:    c.Agent.RetrievalK,
		FinalK:        c.Agent.FinalK,
		SnippetLength: c.Agent.SnippetLength,
	}
}

func (c *Config) Thresholds() eval.Thresholds {
	return eval.Thresholds{
		Accuracy:     c.Agent.AccuracyThreshold,
		Relevance:    c.Agent.RelevanceThreshold,
		Completeness: c.Agent.CompletenessThreshold,
	}
}

func (c *Config) Logging() logging.Config {
	return logging.Config(c.Log)
}

func (c *Config) Sidecar() retrieval.RetrievalConfig {
	return retrieval.RetrievalConfig{
		SimilarityThreshold: c.Retrieval.SimilarityThreshold,
		MaxEvidenceLen:      c.Retrieval.MaxEvidenceLen,
	}
}

// #endregion views
