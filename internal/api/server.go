// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handler "github.com/newthinker/skinquant/internal/api/handler/api"
	"github.com/newthinker/skinquant/internal/api/job"
	"github.com/newthinker/skinquant/internal/api/middleware"
	"github.com/newthinker/skinquant/internal/api/response"
	"github.com/newthinker/skinquant/internal/app"
	"github.com/newthinker/skinquant/internal/collector"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/metrics"
	"github.com/newthinker/skinquant/internal/storage/signal"
)

const healthPath = "/api/v1/health"

var (
	errRouteNotFound    = &core.Error{Code: "ROUTE_NOT_FOUND", Message: "route not found"}
	errMethodNotAllowed = &core.Error{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"}
)

// routeMethods are the methods any route is registered with.
var routeMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     *mux.Router
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MetricsPath string
}

// Dependencies holds the services the handlers call.
type Dependencies struct {
	App      *app.App
	Catalog  *collector.Catalog
	Market   collector.Collector
	Signals  signal.Store
	Jobs     *job.Store
	Sessions handler.Sessions
	Metrics  *metrics.Registry

	// BaseCtx parents background jobs so that they outlive the request
	// and stop on shutdown.
	BaseCtx context.Context
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.App == nil || deps.Catalog == nil || deps.Market == nil || deps.Signals == nil || deps.Jobs == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("server dependencies are incomplete")
	}
	if deps.BaseCtx == nil {
		deps.BaseCtx = context.Background()
	}

	router := mux.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		router: router,
	}

	s.setupRoutes(cfg, deps)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	if deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
		s.router.Use(metrics.HTTPMiddleware(deps.Metrics))
	}
	s.router.Use(metrics.LoggingMiddleware(s.logger))
	s.router.NotFoundHandler = http.HandlerFunc(s.handleUnmatched)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleUnmatched)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(middleware.APIKeyAuth(cfg.APIKey, healthPath))

	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	symbols := handler.NewSymbolsHandler(deps.Catalog, deps.Market, s.logger)
	signals := handler.NewSignalsHandler(deps.Signals)
	jobs := handler.NewJobsHandler(deps.BaseCtx, deps.Jobs, deps.App.Analyzer())
	analysis := handler.NewAnalysisHandler(deps.BaseCtx, deps.App, deps.Catalog, deps.Jobs)
	watchlist := handler.NewWatchlistHandler(deps.App, deps.Catalog)
	accounts := handler.NewAccountsHandler(deps.Sessions)

	v1.HandleFunc("/symbols", symbols.List).Methods(http.MethodGet)
	v1.HandleFunc("/symbols/{symbol}/bars", withVar("symbol", symbols.Bars)).Methods(http.MethodGet)
	v1.HandleFunc("/symbols/{symbol}/indicators", withVar("symbol", symbols.Indicators)).Methods(http.MethodGet)
	v1.HandleFunc("/symbols/{symbol}/signals", withVar("symbol", signals.ListForSymbol)).Methods(http.MethodGet)
	v1.HandleFunc("/symbols/{symbol}/onsale", withVar("symbol", symbols.OnSale)).Methods(http.MethodGet)
	v1.HandleFunc("/symbols/{symbol}/analyses", withVar("symbol", analysis.Analyze)).Methods(http.MethodPost)

	v1.HandleFunc("/signals", signals.List).Methods(http.MethodGet)
	v1.HandleFunc("/signals/{id}", withVar("id", signals.GetByID)).Methods(http.MethodGet)

	v1.HandleFunc("/backtests", jobs.CreateBacktest).Methods(http.MethodPost)
	v1.HandleFunc("/optimizations", jobs.CreateOptimization).Methods(http.MethodPost)
	v1.HandleFunc("/jobs/{id}", withVar("id", jobs.Get)).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}", withVar("id", jobs.Cancel)).Methods(http.MethodDelete)

	v1.HandleFunc("/analysis/trigger", analysis.Trigger).Methods(http.MethodPost)
	v1.HandleFunc("/analysis/stats", analysis.Stats).Methods(http.MethodGet)

	v1.HandleFunc("/watchlist", watchlist.List).Methods(http.MethodGet)
	v1.HandleFunc("/watchlist", watchlist.Add).Methods(http.MethodPost)
	v1.HandleFunc("/watchlist/{symbol}", withVar("symbol", watchlist.Remove)).Methods(http.MethodDelete)

	acct := v1.PathPrefix("/accounts/{user}").Subrouter()
	acct.HandleFunc("/portfolio", withVar("user", accounts.Portfolio)).Methods(http.MethodGet)
	acct.HandleFunc("/trades", withVar("user", accounts.Trade)).Methods(http.MethodPost)
	acct.HandleFunc("/trades", withVar("user", accounts.Trades)).Methods(http.MethodGet)
	acct.HandleFunc("/stats", withVar("user", accounts.Stats)).Methods(http.MethodGet)
	acct.HandleFunc("/recharges", withVar("user", accounts.CreateRecharge)).Methods(http.MethodPost)
	acct.HandleFunc("/recharges", withVar("user", accounts.Recharges)).Methods(http.MethodGet)
	acct.HandleFunc("/recharges/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		accounts.CompleteRecharge(w, r, vars["user"], vars["id"])
	}).Methods(http.MethodPost)
	acct.HandleFunc("/membership", withVar("user", accounts.Membership)).Methods(http.MethodGet)
}

// withVar adapts a handler that takes one path variable.
func withVar(name string, fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, mux.Vars(r)[name])
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleUnmatched answers 405 with an Allow header when the path is
// registered under other methods and 404 otherwise. Subrouters sharing the
// /api/v1 prefix lose mux's own method-mismatch result, so it is recomputed
// here.
func (s *Server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	var allowed []string
	for _, method := range routeMethods {
		if method == r.Method {
			continue
		}
		alt := r.Clone(r.Context())
		alt.Method = method
		var match mux.RouteMatch
		if s.router.Match(alt, &match) && match.MatchErr == nil {
			allowed = append(allowed, method)
		}
	}

	if len(allowed) == 0 {
		response.Error(w, http.StatusNotFound, core.Errorf(errRouteNotFound, "%s %s", r.Method, r.URL.Path))
		return
	}
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	response.Error(w, http.StatusMethodNotAllowed, core.Errorf(errMethodNotAllowed, "%s %s", r.Method, r.URL.Path))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
