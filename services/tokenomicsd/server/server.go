// Package server exposes the settlement engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gravitywell/core"
	"gravitywell/gateway/idempotency"
	"gravitywell/gateway/middleware"
	nativecommon "gravitywell/native/common"
	"gravitywell/observability"
	"gravitywell/storage"
	"gravitywell/storage/journal"
)

const (
	// ScopeAdmin guards treasury and ledger administration routes.
	ScopeAdmin = "tokenomics:admin"
	// ScopeTrade lets the token subject trade its own account.
	ScopeTrade = "tokenomics:trade"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress  string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ServiceName    string
	LogRequests    bool
	AllowedOrigins []string
	Auth           middleware.AuthConfig
	RateLimit      middleware.RateLimit
	// Operators may unwind buckets. Empty allows any admin subject.
	Operators []string
}

// Deps are the collaborators the handlers drive. Snapshots and Journal are
// optional; without them mutations are not persisted. Without Idempotency,
// Idempotency-Key headers are ignored.
type Deps struct {
	Engine      *core.Engine
	Pauses      *nativecommon.Pauses
	Snapshots   *storage.SnapshotStore
	Journal     *journal.Journal
	Idempotency *idempotency.LevelDBStore
	Metrics     *observability.TokenomicsMetrics
	Logger      *slog.Logger
}

// Server hosts the public trading API and the admin API.
type Server struct {
	// mutations serialises engine writes with their persistence so each
	// journal entry carries the digest of the state it produced.
	mutations sync.Mutex
	cfg       Config
	engine    *core.Engine
	pauses    *nativecommon.Pauses
	snapshots *storage.SnapshotStore
	journal   *journal.Journal
	metrics   *observability.TokenomicsMetrics
	logger    *slog.Logger
	auth      *middleware.Authenticator
	limiter   *middleware.RateLimiter
	obs       *middleware.Observability
	replays   *idempotency.Middleware
}

// New wires the engine authority and pause view and builds the middleware
// stack.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("server: engine required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pauses == nil {
		deps.Pauses = nativecommon.NewPauses()
	}
	s := &Server{
		cfg:       cfg,
		engine:    deps.Engine,
		pauses:    deps.Pauses,
		snapshots: deps.Snapshots,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		logger:    logger,
		auth:      middleware.NewAuthenticator(cfg.Auth, logger),
		limiter:   middleware.NewRateLimiter(cfg.RateLimit, logger),
		obs: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: cfg.ServiceName,
			LogRequests: cfg.LogRequests,
		}, logger),
		replays: idempotency.NewMiddleware(deps.Idempotency, logger),
	}
	s.engine.SetAuthority(newOperatorAuthority(cfg.Operators))
	s.engine.SetPauses(s.pauses)
	return s, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.obs.Middleware)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: s.cfg.AllowedOrigins}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/state", s.handleState)
		r.Get("/buckets", s.handleBuckets)
		r.Get("/accounts/{account}", s.handleAccount)
		r.Post("/quote", s.handleQuote)
		r.Post("/poke", s.handlePoke)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeTrade))
			r.With(s.replays.Handler).Post("/buy", s.handleBuy)
			r.With(s.replays.Handler).Post("/sell", s.handleSell)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeAdmin))
			r.With(s.replays.Handler).Post("/credit", s.handleCredit)
			r.With(s.replays.Handler).Post("/unwind", s.handleUnwind)
			r.Post("/pause", s.handlePause)
			r.Get("/journal", s.handleJournal)
			r.Get("/journal/export", s.handleJournalExport)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	name := s.cfg.ServiceName
	if strings.TrimSpace(name) == "" {
		name = "tokenomicsd"
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(s.Handler(), name),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// persist saves a snapshot and journals the outcome of a committed mutation.
// The mutation already happened, so failures are logged rather than
// returned to the client.
func (s *Server) persist(ctx context.Context, kind, account string, outcome any) {
	if s.metrics != nil {
		view := s.engine.State()
		s.metrics.ObserveState(view, core.TaskNames())
	}
	var digest string
	if s.snapshots != nil {
		snap, err := s.engine.Snapshot()
		if err != nil {
			s.logger.Error("snapshot engine", "kind", kind, "error", err)
			return
		}
		seq, err := s.snapshots.Save(snap)
		if err != nil {
			s.logger.Error("save snapshot", "kind", kind, "error", err)
			return
		}
		digest = snap.Digest
		s.logger.Debug("snapshot saved", "kind", kind, "seq", seq, "digest", digest)
	}
	if s.journal != nil {
		if _, err := s.journal.Record(ctx, middleware.RequestID(ctx), kind, account, outcome, digest); err != nil {
			s.logger.Error("journal outcome", "kind", kind, "error", err)
		}
	}
}
