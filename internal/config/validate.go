package config

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrNotConfigured is returned by Validate when a required credential is missing.
var ErrNotConfigured = errors.New("not configured")

// Validate checks that the settings needed by scope are present. Scopes:
// "scrape" and "daily" need the scraping and extraction keys plus a store,
// "serve" needs a store, "subscription" needs the Stripe key.
func (c *Config) Validate(scope string) error {
	switch scope {
	case "scrape", "daily":
		if err := c.ValidateScrapeKeys(); err != nil {
			return err
		}
		return c.validateStore()
	case "serve":
		return c.validateStore()
	case "subscription":
		if c.Stripe.Key == "" {
			return eris.Wrap(ErrNotConfigured, "Stripe secret key")
		}
		return nil
	default:
		return eris.Errorf("config: unknown validation scope %q", scope)
	}
}

// ValidateScrapeKeys checks the scraping-service and extraction-service keys.
func (c *Config) ValidateScrapeKeys() error {
	if c.Firecrawl.Key == "" {
		return eris.Wrap(ErrNotConfigured, "Firecrawl API key")
	}
	switch c.Extract.Provider {
	case "gateway":
		if c.Gateway.Key == "" {
			return eris.Wrap(ErrNotConfigured, "gateway API key")
		}
	case "anthropic", "":
		if c.Anthropic.Key == "" {
			return eris.Wrap(ErrNotConfigured, "Anthropic API key")
		}
	default:
		return eris.Errorf("config: unknown extract provider %q", c.Extract.Provider)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.Wrap(ErrNotConfigured, "store database url")
		}
	case "sqlite":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}
