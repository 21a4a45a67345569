package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/coursefeedback/backend/internal/adapters/cache"
	"github.com/zatekoja/coursefeedback/backend/internal/adapters/database"
	"github.com/zatekoja/coursefeedback/backend/internal/adapters/directory"
	"github.com/zatekoja/coursefeedback/backend/internal/adapters/events"
	"github.com/zatekoja/coursefeedback/backend/internal/api/handlers"
	"github.com/zatekoja/coursefeedback/backend/internal/api/middleware"
	"github.com/zatekoja/coursefeedback/backend/internal/api/routes"
	"github.com/zatekoja/coursefeedback/backend/internal/application/services"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
	"github.com/zatekoja/coursefeedback/backend/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.App.Env, cfg.App.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	if cfg.Database.AutoMigrate {
		if err := pgClient.RunMigrations(); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	// Redis backs the shared cache and the event bus; the service runs without both
	var (
		cacheProvider providers.CacheProvider
		eventBus      providers.EventBus = events.NoopEventBus{}
	)
	readiness := map[string]handlers.Pinger{"postgres": pgClient}
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable; running without shared cache and events")
	} else {
		defer redisClient.Close()
		readiness["redis"] = redisClient
		cacheProvider = cache.NewRedisAdapter(redisClient)
		eventBus = events.NewRedisEventBus(redisClient)
		log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis client initialized")
	}

	feedbackAdapter := database.NewFeedbackAdapter(pgClient)
	sharingLinkAdapter := database.NewSharingLinkAdapter(pgClient)

	directoryClient := directory.NewCachedDirectory(
		directory.NewHTTPDirectory(cfg.Directory.BaseURL, cfg.Directory.Timeout),
		cacheProvider,
		cfg.Directory.LocalCacheSize,
		cfg.Directory.CacheTTL,
	)
	enricher := services.NewEnricher(directoryClient, directoryClient)

	auditLog := observability.NewAuditLogger(nil)

	// Writers bump the public view generations themselves; the subscriber
	// covers updates published by other instances.
	var (
		publisher                = eventBus
		cacheInvalidationService *services.CacheInvalidationService
		cacheMiddleware          *middleware.CacheMiddleware
	)
	if cacheProvider != nil {
		invalidator := services.NewCacheInvalidationService(cacheProvider, eventBus, sharingLinkAdapter)
		publisher = services.NewInvalidatingEventBus(eventBus, invalidator)
		cacheMiddleware = middleware.NewCacheMiddleware(cacheProvider, int(cfg.Server.PublicCacheTTL.Seconds()), handlers.PublicFeedbackCacheKeys)

		if err := invalidator.Start(); err != nil {
			log.Warn().Err(err).Msg("failed to subscribe to feedback updates; relying on local invalidation and cache TTL")
		} else {
			cacheInvalidationService = invalidator
		}
	}

	feedbackService := services.NewFeedbackService(feedbackAdapter, publisher)
	sharingService := services.NewSharingService(feedbackAdapter, sharingLinkAdapter, publisher, auditLog)
	reportingService := services.NewAdminReportingService(feedbackAdapter, enricher, cfg.Export.Location, publisher, auditLog)

	feedbackHandler := handlers.NewFeedbackHandler(feedbackService, sharingService, cacheProvider, metrics)
	adminHandler := handlers.NewAdminHandler(reportingService, sharingService, metrics)

	healthHandler := handlers.NewHealthHandler(readiness)

	router := routes.NewRouter(healthHandler, feedbackHandler, adminHandler, cacheMiddleware, cfg.Server.AllowedOrigins, metrics)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	if cacheInvalidationService != nil {
		cacheInvalidationService.Stop()
	}

	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event bus")
	}

	log.Info().Msg("server stopped")
}
