package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-tracker/config"
	httpHandler "payment-tracker/internal/adapter/http/handler"
	"payment-tracker/internal/adapter/identity"
	"payment-tracker/internal/adapter/storage/memory"
	pgStorage "payment-tracker/internal/adapter/storage/postgres"
	redisStorage "payment-tracker/internal/adapter/storage/redis"
	"payment-tracker/internal/core/ports"
	"payment-tracker/internal/service"
	"payment-tracker/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml or ./config/config.yaml)")
	issueToken := flag.Bool("issue-token", false, "print a bearer token for the configured identity and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	id, err := identity.NewStatic(cfg.Identity.Address, cfg.Identity.Role)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid identity")
	}
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	if *issueToken {
		token, expiresAt, err := tokenSvc.Generate(id.Address(), id.Role())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
		return
	}

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("ledger", cfg.Ledger.Driver).
		Str("address", id.Address()).
		Str("role", string(id.Role())).
		Msg("Starting Payment Tracker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		ledger   ports.LedgerClient
		checkers []ports.HealthChecker
	)
	switch cfg.Ledger.Driver {
	case config.LedgerDriverPostgres:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		log.Info().Msg("PostgreSQL connected")

		if cfg.Database.Migrate {
			if err := pgStorage.EnsureSchema(ctx, pool); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply ledger schema")
			}
		}
		ledger = pgStorage.NewLedgerStore(pool)
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
	default:
		log.Warn().Msg("Using the in-memory ledger; all transactions are lost on exit")
		ledger = memory.NewSimulator()
	}

	deps := httpHandler.RouterDeps{
		TokenSvc: tokenSvc,
		Identity: id,
		Logger:   logger.Component(log, "http"),
	}

	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		deps.IdempotencyCache = redisStorage.NewIdempotencyCache(rdb, id.Address())
		deps.RateLimitStore = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	} else {
		log.Warn().Msg("Redis disabled: no rate limiting, Idempotency-Key ignored")
	}
	deps.HealthCheckers = checkers

	engine, err := service.NewSyncEngine(ledger, id, service.SyncOptions{
		Workers:       cfg.Ledger.FetchWorkers,
		FetchTimeout:  cfg.Ledger.FetchTimeout,
		SubmitTimeout: cfg.Ledger.SubmitTimeout,
	}, logger.Component(log, "sync"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize sync engine")
	}
	defer engine.Close()
	deps.SyncSvc = engine

	if summary, err := engine.Resync(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial resync failed, serving an empty view until the ledger is reachable")
	} else {
		log.Info().Int("records", len(engine.Snapshot())).Uint64("count", summary.Count).Msg("Initial resync complete")
	}

	poller := service.NewPoller(engine, service.PollerConfig{
		Interval:    cfg.Sync.PollInterval,
		BaseBackoff: cfg.Sync.BaseBackoff,
		MaxBackoff:  cfg.Sync.MaxBackoff,
	}, logger.Component(log, "poller"))

	gin.SetMode(cfg.Server.Mode)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpHandler.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := poller.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		engine.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("Server exited")
}
