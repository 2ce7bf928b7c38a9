// Package pipeline drives the scrape and daily refresh cycles across stores.
package pipeline

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/rabatt-cli/internal/model"
	"github.com/sells-group/rabatt-cli/internal/score"
	"github.com/sells-group/rabatt-cli/internal/store"
)

// Fetcher retrieves page text. A false result means nothing usable came back.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, bool)
}

// Extractor proposes candidate codes from page text.
type Extractor interface {
	Extract(ctx context.Context, storeID, storeName, text string) []model.Candidate
}

// Reconciler merges candidates into the catalog and returns inserts.
type Reconciler interface {
	Reconcile(ctx context.Context, storeID, storeName string, candidates []model.Candidate) int
}

// Sweeper retires expired codes.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Aggregator rescores codes from recent reports.
type Aggregator interface {
	Recompute(ctx context.Context, windowDays int) ([]model.CodeUpdate, int, error)
}

// Dispatcher runs a task in the background without the caller waiting.
type Dispatcher interface {
	Go(ctx context.Context, name string, fn func(context.Context) error)
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Store      store.Store
	Fetcher    Fetcher
	Extractor  Extractor
	Reconciler Reconciler
	Sweeper    Sweeper
	Aggregator Aggregator
	Dispatcher Dispatcher
	Sources    Sources
}

// Config tunes a Pipeline.
type Config struct {
	// StoreDelay is the minimum spacing between stores during a scrape.
	StoreDelay time.Duration
	// WindowDays is the report look-back for rescoring.
	WindowDays int
	// TouchStores refreshes stores.last_updated at the end of Daily when the
	// store backend supports it.
	TouchStores bool
}

// Pipeline orchestrates scraping, extraction, reconciliation, sweeping and
// rescoring.
type Pipeline struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = score.DefaultWindowDays
	}
	if deps.Sources == nil {
		deps.Sources = DefaultSources()
	}
	return &Pipeline{deps: deps, cfg: cfg, now: time.Now}
}

// ScrapeSummary reports codes added per store name.
type ScrapeSummary struct {
	TotalAdded int            `json:"totalAdded"`
	Results    map[string]int `json:"results"`
}

// DailySummary reports what one daily cycle changed.
type DailySummary struct {
	ExpiredCodes     int `json:"expiredCodes"`
	ReportsProcessed int `json:"reportsProcessed"`
	CodesUpdated     int `json:"codesUpdated"`
	CodesDeactivated int `json:"codesDeactivated"`
}

// ScrapeAll processes every store with configured sources, one at a time.
// An empty filter means all stores. Failures inside a store are logged and
// never stop the batch; only failing to list stores is returned.
func (p *Pipeline) ScrapeAll(ctx context.Context, filter []string) (*ScrapeSummary, error) {
	stores, err := p.deps.Store.ListStores(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list stores")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if p.cfg.StoreDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(p.cfg.StoreDelay), 1)
	}

	summary := &ScrapeSummary{Results: make(map[string]int)}
	zap.L().Info("pipeline: scrape starting", zap.Int("stores", len(stores)), zap.Strings("filter", filter))

	for _, st := range stores {
		if len(filter) > 0 && !slices.Contains(filter, st.ID) {
			continue
		}
		urls := p.deps.Sources.URLs(st.ID)
		if len(urls) == 0 {
			zap.L().Debug("pipeline: no sources configured", zap.String("store", st.Name))
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			zap.L().Warn("pipeline: scrape interrupted", zap.Error(err))
			break
		}

		added := p.processStore(ctx, st, urls)
		summary.Results[st.Name] = added
		summary.TotalAdded += added
	}

	zap.L().Info("pipeline: scrape complete", zap.Int("total_added", summary.TotalAdded))
	return summary, nil
}

// processStore runs fetch, extract and reconcile for one store. Panics are
// recovered so one store cannot take down the batch.
func (p *Pipeline) processStore(ctx context.Context, st model.Store, urls []string) (added int) {
	log := zap.L().With(zap.String("store", st.ID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: store panicked", zap.Any("panic", r))
			added = 0
		}
	}()

	var content strings.Builder
	for _, u := range urls {
		text, ok := p.deps.Fetcher.Fetch(ctx, u)
		if !ok || text == "" {
			continue
		}
		content.WriteString("\n\n--- Source: ")
		content.WriteString(u)
		content.WriteString(" ---\n")
		content.WriteString(text)
	}
	if content.Len() == 0 {
		log.Info("pipeline: no content scraped", zap.String("name", st.Name))
		return 0
	}

	candidates := p.deps.Extractor.Extract(ctx, st.ID, st.Name, content.String())
	added = p.deps.Reconciler.Reconcile(ctx, st.ID, st.Name, candidates)

	log.Info("pipeline: store complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("added", added),
		zap.Duration("elapsed", time.Since(start)),
	)
	return added
}

// Daily hands the scrape to the background dispatcher, then sweeps expired
// codes, rescores from reports and refreshes store timestamps. It returns
// before the scrape finishes. Step failures are logged and leave their
// counters at zero.
func (p *Pipeline) Daily(ctx context.Context, filter []string) DailySummary {
	var summary DailySummary

	p.deps.Dispatcher.Go(ctx, "scrape-discount-codes", func(ctx context.Context) error {
		s, err := p.ScrapeAll(ctx, filter)
		if err != nil {
			return err
		}
		zap.L().Info("pipeline: background scrape result",
			zap.Int("total_added", s.TotalAdded),
			zap.Any("results", s.Results),
		)
		return nil
	})

	expired, err := p.deps.Sweeper.Sweep(ctx)
	if err != nil {
		zap.L().Error("pipeline: sweep failed", zap.Error(err))
	}
	summary.ExpiredCodes = expired

	updates, reports, err := p.deps.Aggregator.Recompute(ctx, p.cfg.WindowDays)
	if err != nil {
		zap.L().Error("pipeline: recompute failed", zap.Error(err))
	}
	summary.ReportsProcessed = reports
	summary.CodesUpdated = len(updates)
	summary.CodesDeactivated = score.Deactivated(updates)

	if p.cfg.TouchStores {
		p.touchStores(ctx)
	}

	zap.L().Info("pipeline: daily update complete",
		zap.Int("expired_codes", summary.ExpiredCodes),
		zap.Int("reports_processed", summary.ReportsProcessed),
		zap.Int("codes_updated", summary.CodesUpdated),
		zap.Int("codes_deactivated", summary.CodesDeactivated),
	)
	return summary
}

func (p *Pipeline) touchStores(ctx context.Context) {
	toucher, ok := p.deps.Store.(store.TimestampToucher)
	if !ok {
		zap.L().Debug("pipeline: store backend cannot touch timestamps")
		return
	}
	n, err := toucher.TouchAllStores(ctx, p.now().UTC())
	if err != nil {
		zap.L().Warn("pipeline: touch store timestamps", zap.Error(err))
		return
	}
	zap.L().Info("pipeline: store timestamps refreshed", zap.Int("stores", n))
}
