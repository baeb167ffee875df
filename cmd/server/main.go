package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/crewrecovery/config"
	"github.com/liamcoop/crewrecovery/fdtl"
	"github.com/liamcoop/crewrecovery/internal/logger"
	"github.com/liamcoop/crewrecovery/internal/metrics"
	"github.com/liamcoop/crewrecovery/recovery"
	"github.com/liamcoop/crewrecovery/rules"
	"github.com/liamcoop/crewrecovery/store"
)

// slowRequest is the latency above which a request is logged as a warning
const slowRequest = time.Second

type Server struct {
	db        *sql.DB // nil when running on in-memory stores
	validator *fdtl.Validator
	costs     *recovery.CostModel
	policies  *rules.Engine
	selector  *recovery.Selector
	generator recovery.CandidateGenerator
	duty      store.DutyStore
	audit     store.AuditLog
	validate  *validator.Validate
	router    *chi.Mux
}

// Deps are the collaborators a Server is built from
type Deps struct {
	DB        *sql.DB
	Config    *config.Config
	Policies  rules.RuleStore
	Duty      store.DutyStore
	Audit     store.AuditLog
	Generator recovery.CandidateGenerator
}

// NewServer opens Postgres when a database URL is configured and falls back
// to in-memory stores otherwise
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.Server.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory stores")
		return NewServerWithDeps(Deps{
			Config:   cfg,
			Policies: rules.NewInMemoryRuleStore(),
			Duty:     store.NewInMemoryDutyStore(),
			Audit:    store.NewInMemoryAuditLog(),
		})
	}

	db, err := sql.Open("postgres", cfg.Server.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Server.OperatorID == "" {
		db.Close()
		return nil, &config.ConfigurationError{Err: errors.New("server.operator_id is required with a database")}
	}

	policies := rules.NewPostgresRuleStore(db, cfg.Server.OperatorID)
	if err := policies.EnsureOperator(); err != nil {
		db.Close()
		return nil, err
	}

	return NewServerWithDeps(Deps{
		DB:       db,
		Config:   cfg,
		Policies: policies,
		Duty:     store.NewPostgresDutyStore(db),
		Audit:    store.NewPostgresAuditLog(db),
	})
}

// NewServerWithDeps builds the engine from configuration and seeds configured policies
func NewServerWithDeps(d Deps) (*Server, error) {
	ruleSet, err := d.Config.RuleSet()
	if err != nil {
		return nil, err
	}
	v, err := fdtl.NewValidator(ruleSet)
	if err != nil {
		return nil, err
	}
	costs, err := d.Config.CostModel()
	if err != nil {
		return nil, err
	}

	engine, err := rules.NewEngine(d.Policies)
	if err != nil {
		return nil, fmt.Errorf("failed to load operating policies: %w", err)
	}
	if err := rules.Seed(engine, d.Config.Rules()); err != nil {
		return nil, err
	}

	sel, err := recovery.NewSelector(v, costs, recovery.WithPolicyGate(engine))
	if err != nil {
		return nil, err
	}

	gen := d.Generator
	if gen == nil {
		gen = recovery.NewPlaybookGenerator()
	}

	s := &Server{
		db:        d.DB,
		validator: v,
		costs:     costs,
		policies:  engine,
		selector:  sel,
		generator: gen,
		duty:      d.Duty,
		audit:     d.Audit,
		validate:  validator.New(),
	}
	s.setupRoutes()

	active, _ := engine.ActiveRules()
	logger.Info("recovery engine ready",
		"maxDailyFlightHours", ruleSet.MaxDailyFlightHours,
		"maxWeeklyFlightHours", ruleSet.MaxWeeklyFlightHours,
		"activePolicies", len(active),
		"currency", costs.Currency())

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/ruleset", s.handleRuleSet)

	r.Post("/api/v1/validate", s.handleValidate)
	r.Post("/api/v1/select", s.handleSelect)
	r.Post("/api/v1/disruptions/proposals", s.handleProposals)

	r.Get("/api/v1/proposals", s.handleListProposals)
	r.Get("/api/v1/proposals/{proposalId}", s.handleGetProposal)

	r.Route("/api/v1/policies", func(r chi.Router) {
		r.Get("/", s.handleListPolicies)
		r.Post("/", s.handleCreatePolicy)
		r.Get("/{policyId}", s.handleGetPolicy)
		r.Put("/{policyId}", s.handleUpdatePolicy)
		r.Delete("/{policyId}", s.handleDeletePolicy)
	})

	r.Get("/api/v1/pilots/{pilotId}/duty", s.handleGetDuty)
	r.Put("/api/v1/pilots/{pilotId}/duty", s.handlePutDuty)

	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// routeLabel is the matched chi pattern, never the raw path, so metric labels stay bounded
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}

// requestLogger records latency and status per route pattern
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := routeLabel(r)
		metrics.ObserveRequest(r.Method, route, status, elapsed)

		args := []any{
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed.String(),
			"requestId", middleware.GetReqID(r.Context()),
		}
		switch {
		case status >= 500:
			logger.Error("request failed", args...)
		case elapsed > slowRequest:
			logger.Warn("slow request", args...)
		default:
			logger.Debug("request", args...)
		}
	})
}

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "configs/crewrecovery.yaml"), "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	if cfg.Server.LogLevel != "" {
		if level, err := logger.ParseLevel(cfg.Server.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}

	logger.Info("server stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
