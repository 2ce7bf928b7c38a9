// Package fetch retrieves aggregator pages as markdown.
package fetch

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/internal/resilience"
	"github.com/sells-group/rabatt-cli/pkg/firecrawl"
)

// Fetcher turns a URL into main-content markdown. Failures never propagate:
// they are logged and reported as ("", false).
type Fetcher struct {
	client firecrawl.Client
	retry  resilience.RetryConfig
}

// New creates a Fetcher. A zero retry config means a single attempt.
func New(client firecrawl.Client, retry resilience.RetryConfig) *Fetcher {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("firecrawl", "scrape")
	}
	return &Fetcher{client: client, retry: retry}
}

// Fetch scrapes url and returns its markdown.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, bool) {
	log := zap.L().With(zap.String("url", url))

	res, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*firecrawl.ScrapeResult, error) {
		return f.client.Scrape(ctx, firecrawl.MarkdownRequest(url))
	})
	if err != nil {
		log.Warn("fetch: scrape failed", zap.Error(err))
		return "", false
	}
	if res == nil || !res.OK() {
		log.Warn("fetch: empty scrape result")
		return "", false
	}

	log.Debug("fetch: scraped",
		zap.Stringer("shape", res.Shape),
		zap.Int("chars", len(res.Markdown)),
	)
	return res.Markdown, true
}
