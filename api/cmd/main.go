package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SWMChefTory/recommend-service/internal/audit"
	"github.com/SWMChefTory/recommend-service/internal/config"
	"github.com/SWMChefTory/recommend-service/internal/infrastructure/elasticsearch"
	"github.com/SWMChefTory/recommend-service/internal/infrastructure/postgres"
	"github.com/SWMChefTory/recommend-service/internal/infrastructure/redis"
	"github.com/SWMChefTory/recommend-service/internal/interaction"
	"github.com/SWMChefTory/recommend-service/internal/personalize"
	"github.com/SWMChefTory/recommend-service/internal/pkg/logger"
	"github.com/SWMChefTory/recommend-service/internal/security"
	"github.com/SWMChefTory/recommend-service/internal/service"
	"github.com/SWMChefTory/recommend-service/internal/session"
	"github.com/SWMChefTory/recommend-service/internal/transport/rest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "recommend-service").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)

	// ---- Redis ----
	store := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	store.RecentWindow = cfg.RecentWindow
	store.RecentTTL = cfg.RecentTTL
	defer func() { _ = store.Close() }()

	// Best-effort ping; sessions will surface real failures per request
	if err := store.Ping(rootCtx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed (continuing)")
	} else {
		log.Info().Msg("redis connected")
	}

	// ---- Elasticsearch ----
	searcher, err := elasticsearch.New(cfg.ElasticAddrs, cfg.ElasticUser, cfg.ElasticPass, cfg.ElasticIndex)
	if err != nil {
		log.Fatal().Err(err).Msg("elasticsearch client create failed")
	}

	// ---- Application wiring ----
	sessions := session.NewManager(store, cfg.SnapshotTTL, cfg.PositionTTL)
	profiles := personalize.NewAggregator(repo)
	interactions := interaction.NewRecorder(repo, store)
	auditLog := audit.New(log)
	svc := service.New(sessions, searcher, interactions, profiles, auditLog, cfg.SeedLimit)

	h := rest.NewHandler(svc, cfg.MaxPageSize)
	verifier := security.NewHS256Verifier(cfg.JWTSecret, cfg.JWTIssuer)

	httpHandler := rest.NewRouter(rest.RouterDeps{
		Limiter:          store,
		Handler:          h,
		Verifier:         verifier,
		RateLimitEnabled: cfg.RLEnabled,
		RateLimit:        cfg.RLLimit,
		RateLimitWindow:  cfg.RLWindow,
	})

	// ---- Outbox worker (outbound interaction.* events) ----
	if cfg.OutboxEnabled {
		repo.StartOutboxWorker(rootCtx, cfg.RabbitURL, cfg.RabbitExchange)
		log.Info().Msg("outbox worker started")
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
