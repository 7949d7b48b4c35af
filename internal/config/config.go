package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/parcel/internal/common"
)

// Config is the immutable runtime configuration, built once at startup.
type Config struct {
	Notify   NotifyConfig
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
}

// DatabaseConfig locates the sqlite record store.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// LLMConfig configures the inference provider.
type LLMConfig struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	CacheTTL    time.Duration
	RateLimit   int
	MaxRetries  int
	MaxTokens   int
	Temperature float64
}

// PipelineConfig tunes extraction, proposal lifetime and the sweeper.
type PipelineConfig struct {
	InferenceTimeout    time.Duration
	ProposalTTL         time.Duration
	Retention           time.Duration
	SweepInterval       time.Duration
	BreakerCooldown     time.Duration
	BreakerThreshold    int
	ContextTurns        int
	ConfidenceThreshold float64
	PatternConfidence   float64
}

// ServerConfig configures the HTTP API. With TLS set the server uses a
// self-signed certificate kept in CertDir.
type ServerConfig struct {
	Addr    string
	CertDir string
	TLS     bool
}

// NotifyConfig configures event fan-out.
type NotifyConfig struct {
	NATSURL       string
	SubjectPrefix string
}

// SetDefaults registers default values for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.local/share/parcel/parcel.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.cache_ttl", 15*time.Minute)
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.max_tokens", 400)
	v.SetDefault("llm.temperature", 0.1)

	v.SetDefault("pipeline.inference_timeout", 8*time.Second)
	v.SetDefault("pipeline.proposal_ttl", 5*time.Minute)
	v.SetDefault("pipeline.retention", time.Hour)
	v.SetDefault("pipeline.sweep_interval", 30*time.Second)
	v.SetDefault("pipeline.breaker_threshold", 3)
	v.SetDefault("pipeline.breaker_cooldown", 30*time.Second)
	v.SetDefault("pipeline.context_turns", 6)
	v.SetDefault("pipeline.confidence_threshold", 0.7)
	v.SetDefault("pipeline.pattern_confidence", 0.5)

	v.SetDefault("server.addr", "127.0.0.1:8420")
	v.SetDefault("server.cert_dir", "~/.local/share/parcel/certs")
	v.SetDefault("notify.subject_prefix", "parcel")
}

// Load reads every key from v into an immutable Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		LLM: LLMConfig{
			Provider:    v.GetString("llm.provider"),
			APIKey:      v.GetString("llm.api_key"),
			Model:       v.GetString("llm.model"),
			BaseURL:     v.GetString("llm.base_url"),
			CacheTTL:    v.GetDuration("llm.cache_ttl"),
			RateLimit:   v.GetInt("llm.rate_limit"),
			MaxRetries:  v.GetInt("llm.max_retries"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			Temperature: v.GetFloat64("llm.temperature"),
		},
		Pipeline: PipelineConfig{
			InferenceTimeout:    v.GetDuration("pipeline.inference_timeout"),
			ProposalTTL:         v.GetDuration("pipeline.proposal_ttl"),
			Retention:           v.GetDuration("pipeline.retention"),
			SweepInterval:       v.GetDuration("pipeline.sweep_interval"),
			BreakerCooldown:     v.GetDuration("pipeline.breaker_cooldown"),
			BreakerThreshold:    v.GetInt("pipeline.breaker_threshold"),
			ContextTurns:        v.GetInt("pipeline.context_turns"),
			ConfidenceThreshold: v.GetFloat64("pipeline.confidence_threshold"),
			PatternConfidence:   v.GetFloat64("pipeline.pattern_confidence"),
		},
		Server: ServerConfig{
			Addr:    v.GetString("server.addr"),
			CertDir: ExpandPath(v.GetString("server.cert_dir")),
			TLS:     v.GetBool("server.tls"),
		},
		Notify: NotifyConfig{
			NATSURL:       v.GetString("notify.nats_url"),
			SubjectPrefix: v.GetString("notify.subject_prefix"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	p := c.Pipeline
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	case p.InferenceTimeout <= 0:
		return fmt.Errorf("%w: pipeline.inference_timeout must be positive", common.ErrInvalidConfig)
	case p.ProposalTTL <= 0:
		return fmt.Errorf("%w: pipeline.proposal_ttl must be positive", common.ErrInvalidConfig)
	case p.SweepInterval <= 0:
		return fmt.Errorf("%w: pipeline.sweep_interval must be positive", common.ErrInvalidConfig)
	case p.Retention < 0:
		return fmt.Errorf("%w: pipeline.retention must not be negative", common.ErrInvalidConfig)
	case p.BreakerThreshold < 1:
		return fmt.Errorf("%w: pipeline.breaker_threshold must be at least 1", common.ErrInvalidConfig)
	case p.ContextTurns < 0:
		return fmt.Errorf("%w: pipeline.context_turns must not be negative", common.ErrInvalidConfig)
	case p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1:
		return fmt.Errorf("%w: pipeline.confidence_threshold must be within [0,1]", common.ErrInvalidConfig)
	case p.PatternConfidence < 0 || p.PatternConfidence > 1:
		return fmt.Errorf("%w: pipeline.pattern_confidence must be within [0,1]", common.ErrInvalidConfig)
	}
	return nil
}
