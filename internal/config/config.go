package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/filmgrid/enrich-cli/internal/conflict"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig         `yaml:"store" mapstructure:"store"`
	Sources   SourcesConfig       `yaml:"sources" mapstructure:"sources"`
	Resolver  ResolverConfig      `yaml:"resolver" mapstructure:"resolver"`
	Conflict  conflict.Thresholds `yaml:"conflict" mapstructure:"conflict"`
	RateLimit RateLimitConfig     `yaml:"rate_limit" mapstructure:"rate_limit"`
	Batch     BatchConfig         `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig        `yaml:"server" mapstructure:"server"`
	Log       LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourcesConfig points at the declarative source registry.
type SourcesConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Fixtures string `yaml:"fixtures" mapstructure:"fixtures"`
}

// ResolverConfig tunes the waterfall engine.
type ResolverConfig struct {
	StopEarlyThreshold  float64 `yaml:"stop_early_threshold" mapstructure:"stop_early_threshold"`
	ConfidenceFloor     float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	MinAcceptConfidence float64 `yaml:"min_accept_confidence" mapstructure:"min_accept_confidence"`
	MaxAdaptersTried    int     `yaml:"max_adapters_tried" mapstructure:"max_adapters_tried"`
	RetryBackoffSecs    int     `yaml:"retry_backoff_secs" mapstructure:"retry_backoff_secs"`
}

// RateLimitConfig shapes outbound request limiting.
type RateLimitConfig struct {
	MaxInFlight  int64   `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	DefaultRPS   float64 `yaml:"default_rps" mapstructure:"default_rps"`
	DefaultBurst int     `yaml:"default_burst" mapstructure:"default_burst"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentEntities int `yaml:"max_concurrent_entities" mapstructure:"max_concurrent_entities"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("sources.path", "sources.yaml")
	v.SetDefault("resolver.stop_early_threshold", 0.8)
	v.SetDefault("resolver.confidence_floor", 0.5)
	v.SetDefault("resolver.min_accept_confidence", 0.0)
	v.SetDefault("resolver.max_adapters_tried", 0)
	v.SetDefault("resolver.retry_backoff_secs", 2)
	v.SetDefault("conflict.string_high", 0.8)
	v.SetDefault("conflict.string_medium", 0.9)
	v.SetDefault("conflict.float_high", 0.25)
	v.SetDefault("conflict.float_medium", 0.10)
	v.SetDefault("rate_limit.max_in_flight", 20)
	v.SetDefault("rate_limit.default_rps", 4)
	v.SetDefault("rate_limit.default_burst", 4)
	v.SetDefault("batch.max_concurrent_entities", 20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
