// Package httpd serves the artifacts of the most recent pipeline run
// over JSON: run status, coverage, growth, timing, and the rest of the
// report bundle, plus a health probe and Prometheus metrics.
package httpd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"panelrep/internal/config"
	"panelrep/internal/coverage"
	apperrors "panelrep/internal/errors"
	"panelrep/internal/infrastructure"
	"panelrep/internal/panel"
	"panelrep/internal/pipeline"
)

// Server exposes pipeline run artifacts over HTTP.
type Server struct {
	cfg     config.ServerConfig
	logger  *slog.Logger
	metrics *infrastructure.Metrics

	mu      sync.RWMutex
	current *pipeline.RunResult
	runner  func(context.Context) (*pipeline.RunResult, error)

	httpServer *http.Server
}

// NewServer builds the artifact server. metrics may be nil; the /metrics
// endpoint is only mounted when it is present.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, metrics *infrastructure.Metrics) *Server {
	s := &Server{cfg: cfg, logger: logger, metrics: metrics}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// SetResult publishes a finished run; subsequent requests serve it.
func (s *Server) SetResult(res *pipeline.RunResult) {
	s.mu.Lock()
	s.current = res
	s.mu.Unlock()
	s.logger.Info("serving run artifacts", slog.String("run_id", res.RunID))
}

// SetRunner installs the callback POST /api/v1/refresh uses to produce
// a fresh run.
func (s *Server) SetRunner(run func(context.Context) (*pipeline.RunResult, error)) {
	s.mu.Lock()
	s.runner = run
	s.mu.Unlock()
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimit())
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/run", s.handleRun)
		r.Get("/coverage", s.handleCoverage)
		r.Get("/shares", s.handleShares)
		r.Get("/growth", s.handleGrowth)
		r.Get("/divergence", s.handleDivergence)
		r.Get("/turning-points", s.handleTurningPoints)
		r.Get("/correlations", s.handleCorrelations)
		r.Get("/regressions", s.handleRegressions)
		r.Get("/survival", s.handleSurvival)
		r.Get("/flows", s.handleFlows)
		r.Get("/churn", s.handleChurn)
		r.Get("/quality", s.handleQuality)
		r.Get("/earnings", s.handleEarnings)
		r.Get("/earnings-growth", s.handleEarningsGrowth)
		r.Get("/reweighted", s.handleReweighted)
		r.Get("/client-tenure", s.handleClientTenure)
		r.Get("/tenure-by-group", s.handleTenureByGroup)
		r.Post("/refresh", s.handleRefresh)
	})

	return r
}

// ListenAndServe runs until ctx is cancelled, then drains with the
// configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("artifact server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// rateLimit applies a global token bucket across all clients.
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.RateLimitRPS), s.cfg.RateLimitBurst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				render.Render(w, r, apperrors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// result returns the published run or writes a 404.
func (s *Server) result(w http.ResponseWriter, r *http.Request) (*pipeline.RunResult, bool) {
	s.mu.RLock()
	res := s.current
	s.mu.RUnlock()
	if res == nil {
		render.Render(w, r, apperrors.ErrNoRun)
		return nil, false
	}
	return res, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	res, ok := s.result(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]any{
		"run_id":            res.RunID,
		"request_id":        middleware.GetReqID(r.Context()),
		"warnings":          res.Warnings,
		"raking_converged":  res.Raking.Converged,
		"raking_iterations": res.Raking.Iterations,
	})
}

// renderRows writes the artifact rows, or a 404 when the run produced
// none for this endpoint.
func renderRows[T any](w http.ResponseWriter, r *http.Request, rows []T) {
	if len(rows) == 0 {
		render.Render(w, r, apperrors.ErrArtifactNotFound)
		return
	}
	render.JSON(w, r, rows)
}

// parseLevel maps the level query value onto a configured grouping.
func parseLevel(value string) (panel.Level, bool) {
	for _, g := range panel.DefaultGroupings {
		if string(g.Level) == value {
			return g.Level, true
		}
	}
	return "", false
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	res, ok := s.result(w, r)
	if !ok {
		return
	}
	cells := res.Bundle.Coverage
	if value := r.URL.Query().Get("level"); value != "" {
		level, ok := parseLevel(value)
		if !ok {
			render.Render(w, r, apperrors.ErrInvalidRequest)
			return
		}
		filtered := make([]coverage.Cell, 0, len(cells))
		for _, c := range cells {
			if c.Key.Level == level {
				filtered = append(filtered, c)
			}
		}
		cells = filtered
	}
	renderRows(w, r, cells)
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.ShareComparisons)
	}
}

func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.GrowthComparison)
	}
}

func (s *Server) handleDivergence(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Divergence)
	}
}

func (s *Server) handleTurningPoints(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.TurningPoints)
	}
}

func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Correlations)
	}
}

func (s *Server) handleRegressions(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Regressions)
	}
}

func (s *Server) handleSurvival(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Survival)
	}
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Flows)
	}
}

func (s *Server) handleChurn(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Tenure)
	}
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Quality)
	}
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Earnings)
	}
}

func (s *Server) handleEarningsGrowth(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.EarningsGrowth)
	}
}

func (s *Server) handleReweighted(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.Reweighted)
	}
}

func (s *Server) handleClientTenure(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.ClientTenure)
	}
}

func (s *Server) handleTenureByGroup(w http.ResponseWriter, r *http.Request) {
	if res, ok := s.result(w, r); ok {
		renderRows(w, r, res.Bundle.TenureByGroup)
	}
}

// handleRefresh reruns the pipeline through the installed runner and
// publishes the new result.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	run := s.runner
	s.mu.RUnlock()
	if run == nil {
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}

	res, err := run(r.Context())
	if err != nil {
		s.logger.Error("refresh failed", slog.String("error", err.Error()))
		render.Render(w, r, apperrors.ToAPIError(err))
		return
	}
	s.SetResult(res)
	render.JSON(w, r, map[string]any{
		"run_id":   res.RunID,
		"warnings": res.Warnings,
	})
}
