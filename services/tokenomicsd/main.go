// Command tokenomicsd serves the settlement engine over HTTP, persisting a
// snapshot and a journal entry after every state change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gravitywell/config"
	"gravitywell/core"
	"gravitywell/core/events"
	"gravitywell/gateway/idempotency"
	"gravitywell/gateway/middleware"
	"gravitywell/native/bank"
	"gravitywell/observability"
	"gravitywell/observability/logging"
	telemetry "gravitywell/observability/otel"
	"gravitywell/services/tokenomicsd/server"
	"gravitywell/storage"
	"gravitywell/storage/journal"
)

func main() {
	if err := run(); err != nil {
		slog.Error("tokenomicsd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath string
		listen  string
	)
	flag.StringVar(&cfgPath, "config", "", "path to a TOML or YAML configuration file")
	flag.StringVar(&listen, "listen", "", "override the configured listen address")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(listen) != "" {
		cfg.Service.ListenAddress = listen
	}
	obs := cfg.Service.Observability
	if env := strings.TrimSpace(os.Getenv("TOKENOMICS_ENV")); env != "" {
		obs.Environment = env
	}

	logger, logCloser := logging.SetupWithFile(obs.ServiceName, obs.Environment, logging.FileOptions{Path: obs.LogFile})
	defer logCloser.Close()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(rootCtx, telemetry.Config{
		ServiceName: obs.ServiceName,
		Environment: obs.Environment,
		Endpoint:    obs.OTLPEndpoint,
		Insecure:    obs.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     obs.Tracing,
		Traces:      obs.Tracing,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.Service.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.Service.DataDir, "snapshots"))
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer db.Close()
	snapshots := storage.NewSnapshotStore(db, cfg.Service.SnapshotHistory)

	dsn := cfg.Service.JournalDSN
	if strings.TrimSpace(dsn) == "" {
		dsn = filepath.Join(cfg.Service.DataDir, "journal.db")
	}
	j, err := journal.Open(dsn)
	if err != nil {
		return err
	}
	defer j.Close()

	replays, err := idempotency.OpenLevelDB(filepath.Join(cfg.Service.DataDir, "idempotency"))
	if err != nil {
		return err
	}
	defer replays.Close()
	go pruneReplays(rootCtx, replays, cfg.Service.IdempotencyTTL, logger)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	engine, err := core.New(engineCfg, bank.NewLedger())
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := restore(engine, snapshots, logger); err != nil {
		return err
	}

	var metrics *observability.TokenomicsMetrics
	emitters := events.Multi{eventLogger{logger: logger}}
	if obs.Metrics {
		metrics = observability.Tokenomics()
		metrics.ObserveState(engine.State(), core.TaskNames())
		emitters = append(emitters, metrics)
	}
	engine.SetEmitter(emitters)

	auth := cfg.Service.Auth
	srv, err := server.New(server.Config{
		ListenAddress:  cfg.Service.ListenAddress,
		ReadTimeout:    cfg.Service.ReadTimeout,
		WriteTimeout:   cfg.Service.WriteTimeout,
		ServiceName:    obs.ServiceName,
		LogRequests:    true,
		AllowedOrigins: cfg.Service.AllowedOrigins,
		Auth: middleware.AuthConfig{
			Enabled:    auth.Enabled,
			HMACSecret: auth.HMACSecret,
			Issuer:     auth.Issuer,
			Audience:   auth.Audience,
			ScopeClaim: auth.ScopeClaim,
			ClockSkew:  auth.ClockSkew,
		},
		RateLimit: middleware.RateLimit{
			RatePerSecond: cfg.Service.RateLimit.RatePerSecond,
			Burst:         cfg.Service.RateLimit.Burst,
			Tokens: map[string]int{
				"POST /v1/buy":  2,
				"POST /v1/sell": 2,
			},
		},
		Operators: auth.Operators,
	}, server.Deps{
		Engine:      engine,
		Snapshots:   snapshots,
		Journal:     j,
		Idempotency: replays,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if !auth.Enabled {
		logger.Warn("authentication disabled; X-Subject header is trusted for trading and admin routes")
	}
	return srv.Run(rootCtx)
}

// restore loads the latest persisted snapshot, if any.
func restore(engine *core.Engine, snapshots *storage.SnapshotStore, logger *slog.Logger) error {
	snap, err := snapshots.Latest()
	if errors.Is(err, storage.ErrNotFound) {
		logger.Info("no snapshot found; starting from genesis")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := engine.Restore(snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	logger.Info("engine restored", "digest", snap.Digest, "supply", snap.Supply)
	return nil
}

// pruneReplays drops idempotency records older than ttl until ctx ends.
func pruneReplays(ctx context.Context, store *idempotency.LevelDBStore, ttl time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.Prune(ctx, now.Add(-ttl))
			if err != nil {
				logger.Warn("prune idempotency records", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("pruned idempotency records", "removed", removed)
			}
		}
	}
}
