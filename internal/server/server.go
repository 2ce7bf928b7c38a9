// Package server exposes the refresh triggers and catalog over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rabatt-cli/internal/catalog"
	"github.com/sells-group/rabatt-cli/internal/model"
	"github.com/sells-group/rabatt-cli/internal/pipeline"
	"github.com/sells-group/rabatt-cli/internal/subscription"
)

// maxBodyBytes caps request bodies on every endpoint.
const maxBodyBytes = 1 << 20

// Pipeline runs refresh cycles.
type Pipeline interface {
	ScrapeAll(ctx context.Context, filter []string) (*pipeline.ScrapeSummary, error)
	Daily(ctx context.Context, filter []string) pipeline.DailySummary
}

// Catalog reads the directory and records reports.
type Catalog interface {
	Stores(ctx context.Context) ([]catalog.Store, error)
	ReportCode(ctx context.Context, codeID string, worked bool, uc *model.UserContext) (string, error)
}

// SubscriptionChecker resolves a subscription by email.
type SubscriptionChecker interface {
	Check(ctx context.Context, email string) (subscription.Status, error)
}

// Deps wires the server's collaborators. Pipeline and Subscriptions may be
// nil when their credentials are missing; Preflight reports why.
type Deps struct {
	Pipeline      Pipeline
	Catalog       Catalog
	Subscriptions SubscriptionChecker
	// Preflight is called before any trigger runs. A non-nil error is
	// returned to the caller as a 500.
	Preflight func() error
}

// Server is the HTTP API.
type Server struct {
	router chi.Router
	deps   Deps
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{router: chi.NewRouter(), deps: deps}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Post("/daily-update", s.handleDaily)
	s.router.Post("/scrape-discount-codes", s.handleScrape)
	s.router.Get("/stores", s.handleStores)
	s.router.Post("/codes/{id}/reports", s.handleReport)
	s.router.Get("/subscription", s.handleSubscription)

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, failure{Success: false, Error: msg})
}

// storeFilter reads the optional {"stores": [...]} body. Anything that is
// not a JSON object with a stores list means all stores.
func storeFilter(w http.ResponseWriter, r *http.Request) []string {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || len(data) == 0 {
		return nil
	}
	var body struct {
		Stores []string `json:"stores"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil
	}
	return body.Stores
}

func (s *Server) preflight() error {
	if s.deps.Preflight != nil {
		if err := s.deps.Preflight(); err != nil {
			return err
		}
	}
	if s.deps.Pipeline == nil {
		return eris.New("pipeline not configured")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type dailyResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	ExpiredCodes     int    `json:"expiredCodes"`
	ReportsProcessed int    `json:"reportsProcessed"`
	CodesUpdated     int    `json:"codesUpdated"`
	CodesDeactivated int    `json:"codesDeactivated"`
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	if err := s.preflight(); err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary := s.deps.Pipeline.Daily(r.Context(), storeFilter(w, r))
	writeJSON(w, http.StatusOK, dailyResponse{
		Success:          true,
		Message:          "Daily update completed",
		ExpiredCodes:     summary.ExpiredCodes,
		ReportsProcessed: summary.ReportsProcessed,
		CodesUpdated:     summary.CodesUpdated,
		CodesDeactivated: summary.CodesDeactivated,
	})
}

type scrapeResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	TotalAdded int            `json:"totalAdded"`
	Results    map[string]int `json:"results"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if err := s.preflight(); err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary, err := s.deps.Pipeline.ScrapeAll(r.Context(), storeFilter(w, r))
	if err != nil {
		zap.L().Error("server: scrape failed", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to fetch stores")
		return
	}
	writeJSON(w, http.StatusOK, scrapeResponse{
		Success:    true,
		Message:    "Discount code scraping completed",
		TotalAdded: summary.TotalAdded,
		Results:    summary.Results,
	})
}

func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.deps.Catalog.Stores(r.Context())
	if err != nil {
		zap.L().Error("server: list catalog", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "Failed to fetch stores")
		return
	}
	q := r.URL.Query()
	stores = catalog.Search(stores, q.Get("q"))

	if uc, ok := contextFromQuery(q); ok {
		if err := uc.Validate(); err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		for i := range stores {
			stores[i] = catalog.ForContext(stores[i], uc)
		}
	}
	writeJSON(w, http.StatusOK, stores)
}

// contextFromQuery reads the shopper context filter. ok is false when no
// context parameter was given.
func contextFromQuery(q url.Values) (model.UserContext, bool) {
	uc := model.UserContext{
		CustomerType:    q.Get("customerType"),
		ShoppingContext: q.Get("shoppingContext"),
		PriceContext:    q.Get("priceContext"),
	}
	student := q.Get("isStudent")
	uc.IsStudent, _ = strconv.ParseBool(student)
	ok := uc.CustomerType != "" || uc.ShoppingContext != "" || uc.PriceContext != "" || student != ""
	return uc, ok
}

type reportRequest struct {
	Worked      *bool              `json:"worked"`
	UserContext *model.UserContext `json:"userContext"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Worked == nil {
		writeFailure(w, http.StatusBadRequest, "worked is required")
		return
	}

	id, err := s.deps.Catalog.ReportCode(r.Context(), chi.URLParam(r, "id"), *req.Worked, req.UserContext)
	switch {
	case errors.Is(err, catalog.ErrUnknownCode):
		writeFailure(w, http.StatusNotFound, "code not found")
		return
	case errors.Is(err, catalog.ErrInvalidReport):
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		zap.L().Error("server: record report", zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, "failed to record report")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	if s.deps.Subscriptions == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Stripe secret key: not configured"})
		return
	}
	st, err := s.deps.Subscriptions.Check(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		zap.L().Error("server: check subscription", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
