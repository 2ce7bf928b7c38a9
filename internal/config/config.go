package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Firecrawl    FirecrawlConfig    `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Gateway      GatewayConfig      `yaml:"gateway" mapstructure:"gateway"`
	Extract      ExtractConfig      `yaml:"extract" mapstructure:"extract"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Schedule     ScheduleConfig     `yaml:"schedule" mapstructure:"schedule"`
	Sources      SourcesConfig      `yaml:"sources" mapstructure:"sources"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Stripe       StripeConfig       `yaml:"stripe" mapstructure:"stripe"`
	Subscription SubscriptionConfig `yaml:"subscription" mapstructure:"subscription"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	// TouchStores enables the stores.last_updated refresh after a daily run.
	TouchStores bool `yaml:"touch_stores" mapstructure:"touch_stores"`
}

// FirecrawlConfig holds scraping service settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GatewayConfig holds settings for an OpenAI-compatible chat-completions gateway.
type GatewayConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ExtractConfig configures the candidate extraction step.
type ExtractConfig struct {
	// Provider selects the extraction backend: "anthropic" or "gateway".
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	MaxChars    int     `yaml:"max_chars" mapstructure:"max_chars"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// FetchConfig configures content fetching. MaxAttempts of 1 disables retries.
type FetchConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// PipelineConfig configures the refresh cycle.
type PipelineConfig struct {
	StoreDelay time.Duration `yaml:"store_delay" mapstructure:"store_delay"`
	WindowDays int           `yaml:"window_days" mapstructure:"window_days"`
}

// ScheduleConfig configures the cron trigger used by serve. An empty Daily
// disables the schedule.
type ScheduleConfig struct {
	Daily string `yaml:"daily" mapstructure:"daily"`
}

// SourcesConfig points at the store → aggregator URL mapping.
type SourcesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RedisConfig configures the optional per-store reconcile lock.
type RedisConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	LockTTL time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

// StripeConfig holds payments provider settings.
type StripeConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SubscriptionConfig configures subscription status checks.
type SubscriptionConfig struct {
	MinInterval time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("RABATT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows, so keys
	// without a default are bound explicitly.
	for _, key := range []string{
		"store.database_url",
		"firecrawl.key",
		"anthropic.key",
		"gateway.key",
		"stripe.key",
		"redis.url",
	} {
		_ = v.BindEnv(key)
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.touch_stores", false)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gateway.base_url", "https://ai.gateway.lovable.dev/v1")
	v.SetDefault("gateway.model", "google/gemini-3-flash-preview")
	v.SetDefault("extract.provider", "anthropic")
	v.SetDefault("extract.max_chars", 8000)
	v.SetDefault("extract.max_tokens", 2000)
	v.SetDefault("extract.temperature", 0.1)
	v.SetDefault("fetch.max_attempts", 1)
	v.SetDefault("fetch.initial_backoff_ms", 500)
	v.SetDefault("fetch.max_backoff_ms", 5000)
	v.SetDefault("pipeline.store_delay", time.Second)
	v.SetDefault("pipeline.window_days", 7)
	v.SetDefault("schedule.daily", "0 5 * * *")
	v.SetDefault("sources.path", "sources.yaml")
	v.SetDefault("redis.lock_ttl", 2*time.Minute)
	v.SetDefault("stripe.base_url", "https://api.stripe.com")
	v.SetDefault("subscription.min_interval", 30*time.Second)
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
