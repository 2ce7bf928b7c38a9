package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/internal/catalog"
	"github.com/sells-group/rabatt-cli/internal/dispatch"
	"github.com/sells-group/rabatt-cli/internal/extract"
	"github.com/sells-group/rabatt-cli/internal/fetch"
	"github.com/sells-group/rabatt-cli/internal/lock"
	"github.com/sells-group/rabatt-cli/internal/pipeline"
	"github.com/sells-group/rabatt-cli/internal/reconcile"
	"github.com/sells-group/rabatt-cli/internal/resilience"
	"github.com/sells-group/rabatt-cli/internal/score"
	"github.com/sells-group/rabatt-cli/internal/store"
	"github.com/sells-group/rabatt-cli/internal/subscription"
	"github.com/sells-group/rabatt-cli/internal/sweep"
	"github.com/sells-group/rabatt-cli/pkg/firecrawl"
	"github.com/sells-group/rabatt-cli/pkg/stripe"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "rabatt.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("postgres store requires a database url (RABATT_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// appEnv holds the store and every component the commands share.
type appEnv struct {
	Store         store.Store
	Pipeline      *pipeline.Pipeline // nil when scrape keys are missing
	Dispatcher    *dispatch.Dispatcher
	Catalog       *catalog.Service
	Subscriptions *subscription.Checker // nil without a Stripe key
	closers       []io.Closer
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	for _, c := range e.closers {
		_ = c.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens and migrates the store and builds the refresh pipeline when
// its credentials are present. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{
		Store:      st,
		Dispatcher: dispatch.New(),
		Catalog:    catalog.New(st),
	}

	if cfg.Stripe.Key != "" {
		env.Subscriptions = subscription.NewChecker(stripe.NewClient(cfg.Stripe.Key, stripe.WithBaseURL(cfg.Stripe.BaseURL)))
	}

	if err := cfg.ValidateScrapeKeys(); err != nil {
		zap.L().Warn("refresh pipeline disabled", zap.Error(err))
		return env, nil
	}

	p, err := buildPipeline(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Pipeline = p
	return env, nil
}

func buildPipeline(ctx context.Context, env *appEnv) (*pipeline.Pipeline, error) {
	completer, err := extract.NewCompleter(extract.ProviderConfig{
		Provider:       cfg.Extract.Provider,
		AnthropicKey:   cfg.Anthropic.Key,
		AnthropicModel: cfg.Anthropic.Model,
		GatewayKey:     cfg.Gateway.Key,
		GatewayBaseURL: cfg.Gateway.BaseURL,
		GatewayModel:   cfg.Gateway.Model,
	})
	if err != nil {
		return nil, err
	}

	locker, err := initLocker(ctx, env)
	if err != nil {
		return nil, err
	}

	sources, err := pipeline.LoadSources(cfg.Sources.Path)
	if err != nil {
		return nil, err
	}

	fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	retry := resilience.FromMillis(cfg.Fetch.MaxAttempts, cfg.Fetch.InitialBackoffMs, cfg.Fetch.MaxBackoffMs)

	return pipeline.New(pipeline.Deps{
		Store:     env.Store,
		Fetcher:   fetch.New(fc, retry),
		Extractor: extract.New(completer, extract.Config{
			MaxChars:    cfg.Extract.MaxChars,
			MaxTokens:   cfg.Extract.MaxTokens,
			Temperature: cfg.Extract.Temperature,
		}),
		Reconciler: reconcile.New(env.Store, reconcile.WithLocker(locker)),
		Sweeper:    sweep.New(env.Store),
		Aggregator: score.New(env.Store),
		Dispatcher: env.Dispatcher,
		Sources:    sources,
	}, pipeline.Config{
		StoreDelay:  cfg.Pipeline.StoreDelay,
		WindowDays:  cfg.Pipeline.WindowDays,
		TouchStores: cfg.Store.TouchStores,
	}), nil
}

// initLocker returns a Redis-backed locker when redis.url is set so several
// replicas serialize reconciles per store, else an in-process one.
func initLocker(ctx context.Context, env *appEnv) (lock.Locker, error) {
	if cfg.Redis.URL == "" {
		return lock.NewLocal(), nil
	}
	rdb, err := lock.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, rdb)
	return lock.NewRedis(rdb, "rabatt:reconcile:", cfg.Redis.LockTTL), nil
}

// parseStores splits a comma-separated --stores value.
func parseStores(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
