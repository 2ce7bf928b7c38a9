package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/rabatt-cli/internal/model"
	"github.com/sells-group/rabatt-cli/internal/store"
)

// --- Store fake ---

type fakeStore struct {
	store.Store
	stores  []model.Store
	listErr error
}

func (f *fakeStore) ListStores(context.Context) ([]model.Store, error) {
	return f.stores, f.listErr
}

type touchingStore struct {
	fakeStore
	touched int
	at      time.Time
}

func (t *touchingStore) TouchAllStores(_ context.Context, at time.Time) (int, error) {
	t.at = at
	return t.touched, nil
}

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	args := m.Called(ctx, url)
	return args.String(0), args.Bool(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, storeID, storeName, text string) []model.Candidate {
	args := m.Called(ctx, storeID, storeName, text)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.Candidate)
}

// --- Reconciler Mock ---

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Reconcile(ctx context.Context, storeID, storeName string, candidates []model.Candidate) int {
	args := m.Called(ctx, storeID, storeName, candidates)
	return args.Int(0)
}

// --- Sweeper Mock ---

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) Sweep(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// --- Aggregator Mock ---

type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) Recompute(ctx context.Context, windowDays int) ([]model.CodeUpdate, int, error) {
	args := m.Called(ctx, windowDays)
	var updates []model.CodeUpdate
	if args.Get(0) != nil {
		updates = args.Get(0).([]model.CodeUpdate)
	}
	return updates, args.Int(1), args.Error(2)
}

// --- Dispatcher fake ---

// syncDispatcher runs tasks inline so tests can observe their effects.
type syncDispatcher struct {
	names []string
	errs  []error
}

func (d *syncDispatcher) Go(ctx context.Context, name string, fn func(context.Context) error) {
	d.names = append(d.names, name)
	d.errs = append(d.errs, fn(context.WithoutCancel(ctx)))
}

// deferredDispatcher records tasks without running them.
type deferredDispatcher struct {
	tasks []func(context.Context) error
}

func (d *deferredDispatcher) Go(_ context.Context, _ string, fn func(context.Context) error) {
	d.tasks = append(d.tasks, fn)
}
