package store

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/rabatt-cli/internal/model"
)

// Sentinel errors returned unwrapped so callers can match with errors.Is.
var (
	ErrNotFound   = errors.New("store: not found")
	ErrCodeExists = errors.New("store: code already exists for store")
)

// CodeRefresh carries the fields the reconciler rewrites on an existing code.
type CodeRefresh struct {
	Description  string
	Savings      string
	Context      []string
	Probability  int
	TrustLevel   model.TrustLevel
	LastVerified time.Time
}

// Store defines the persistence interface for the discount catalog.
type Store interface {
	// Stores and alternatives
	ListStores(ctx context.Context) ([]model.Store, error)
	UpsertStore(ctx context.Context, st model.Store) error
	TouchStore(ctx context.Context, storeID string, at time.Time) error
	ListAlternatives(ctx context.Context) ([]model.Alternative, error)
	UpsertAlternative(ctx context.Context, alt model.Alternative) error

	// Codes
	FindCode(ctx context.Context, storeID, code string) (*model.DiscountCode, error)
	GetCode(ctx context.Context, id string) (*model.DiscountCode, error)
	InsertCode(ctx context.Context, c model.DiscountCode) error
	RefreshCode(ctx context.Context, id string, r CodeRefresh) error
	ListActiveCodes(ctx context.Context, minProbability int) ([]model.DiscountCode, error)
	ApplyScore(ctx context.Context, u model.CodeUpdate) error
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)

	// Reports
	InsertReport(ctx context.Context, r model.CodeReport) error
	ReportsSince(ctx context.Context, since time.Time) ([]model.CodeReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// TimestampToucher is implemented by backends that can refresh
// stores.last_updated for every store in one statement.
type TimestampToucher interface {
	TouchAllStores(ctx context.Context, at time.Time) (int, error)
}
