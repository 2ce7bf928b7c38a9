package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.False(t, cfg.Store.TouchStores)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.firecrawl.dev/v1", cfg.Firecrawl.BaseURL)
	assert.Equal(t, "anthropic", cfg.Extract.Provider)
	assert.Equal(t, 8000, cfg.Extract.MaxChars)
	assert.Equal(t, 2000, cfg.Extract.MaxTokens)
	assert.InDelta(t, 0.1, cfg.Extract.Temperature, 0.0001)
	assert.Equal(t, 1, cfg.Fetch.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Pipeline.StoreDelay)
	assert.Equal(t, 7, cfg.Pipeline.WindowDays)
	assert.Equal(t, "0 5 * * *", cfg.Schedule.Daily)
	assert.Equal(t, "sources.yaml", cfg.Sources.Path)
	assert.Equal(t, 2*time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, 30*time.Second, cfg.Subscription.MinInterval)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: rabatt.db
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  store_delay: 250ms
extract:
  provider: gateway
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "rabatt.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.StoreDelay)
	assert.Equal(t, "gateway", cfg.Extract.Provider)
	// Defaults still apply for unset values
	assert.Equal(t, 8000, cfg.Extract.MaxChars)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("RABATT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RABATT_SERVER_PORT", "3000")
	t.Setenv("RABATT_FIRECRAWL_KEY", "fc-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "fc-key", cfg.Firecrawl.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes every validation scope.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/rabatt"
	cfg.Firecrawl.Key = "fc"
	cfg.Anthropic.Key = "sk-ant"
	cfg.Extract.Provider = "anthropic"
	cfg.Stripe.Key = "sk_test"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "scrape ok", scope: "scrape"},
		{name: "daily ok", scope: "daily"},
		{name: "serve ok", scope: "serve"},
		{name: "subscription ok", scope: "subscription"},
		{
			name:    "missing firecrawl key",
			scope:   "scrape",
			mutate:  func(c *Config) { c.Firecrawl.Key = "" },
			wantErr: "Firecrawl API key",
		},
		{
			name:    "missing anthropic key",
			scope:   "daily",
			mutate:  func(c *Config) { c.Anthropic.Key = "" },
			wantErr: "Anthropic API key",
		},
		{
			name:   "gateway provider needs gateway key",
			scope:  "scrape",
			mutate: func(c *Config) {
				c.Extract.Provider = "gateway"
			},
			wantErr: "gateway API key",
		},
		{
			name:    "unknown provider",
			scope:   "scrape",
			mutate:  func(c *Config) { c.Extract.Provider = "llama" },
			wantErr: "unknown extract provider",
		},
		{
			name:    "postgres without url",
			scope:   "serve",
			mutate:  func(c *Config) { c.Store.DatabaseURL = "" },
			wantErr: "store database url",
		},
		{
			name:  "sqlite without url is fine",
			scope: "serve",
			mutate: func(c *Config) {
				c.Store.Driver = "sqlite"
				c.Store.DatabaseURL = ""
			},
		},
		{
			name:    "missing stripe key",
			scope:   "subscription",
			mutate:  func(c *Config) { c.Stripe.Key = "" },
			wantErr: "Stripe secret key",
		},
		{
			name:    "unknown scope",
			scope:   "enrichment",
			wantErr: "unknown validation scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.scope)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_MissingKeyIsNotConfigured(t *testing.T) {
	cfg := validDefaults()
	cfg.Firecrawl.Key = ""
	err := cfg.Validate("scrape")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLoadSecretsFromEnvOnly(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RABATT_STORE_DATABASE_URL", "postgres://db/rabatt")
	t.Setenv("RABATT_ANTHROPIC_KEY", "sk-ant")
	t.Setenv("RABATT_STRIPE_KEY", "sk_live")
	t.Setenv("RABATT_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/rabatt", cfg.Store.DatabaseURL)
	assert.Equal(t, "sk-ant", cfg.Anthropic.Key)
	assert.Equal(t, "sk_live", cfg.Stripe.Key)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}
