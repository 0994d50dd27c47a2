package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/dispatch-api/internal/config"
	authHandler "github.com/jwalitptl/dispatch-api/internal/handler/auth"
	"github.com/jwalitptl/dispatch-api/internal/handler/health"
	operatorHandler "github.com/jwalitptl/dispatch-api/internal/handler/operator"
	reportHandler "github.com/jwalitptl/dispatch-api/internal/handler/report"
	"github.com/jwalitptl/dispatch-api/internal/middleware"
	"github.com/jwalitptl/dispatch-api/internal/repository"
	"github.com/jwalitptl/dispatch-api/internal/repository/memory"
	"github.com/jwalitptl/dispatch-api/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/dispatch-api/internal/repository/redis"
	"github.com/jwalitptl/dispatch-api/internal/router"
	accountService "github.com/jwalitptl/dispatch-api/internal/service/account"
	"github.com/jwalitptl/dispatch-api/internal/service/analysis"
	fleetService "github.com/jwalitptl/dispatch-api/internal/service/fleet"
	reportService "github.com/jwalitptl/dispatch-api/internal/service/report"
	"github.com/jwalitptl/dispatch-api/pkg/auth"
	"github.com/jwalitptl/dispatch-api/pkg/circuitbreaker"
	"github.com/jwalitptl/dispatch-api/pkg/geo"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	redisbroker "github.com/jwalitptl/dispatch-api/pkg/messaging/redis"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
	"github.com/jwalitptl/dispatch-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = appLogger.ZL
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Log.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]health.Check{}

	var repos repository.Store
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		repos = memory.New().Repositories()
		appLogger.Warn("Using in-memory storage; data and events are lost on restart")

	case config.StoragePostgres:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if cfg.Storage.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("Failed to migrate database")
			}
		}

		redisClient, err := redisbroker.NewClient(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		repos = postgres.NewStore(db)
		repos.Sessions = redisrepo.NewSessionRepository(redisClient)

		checks["database"] = func(ctx context.Context) error { return db.PingContext(ctx) }
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	m := metrics.NewMetrics("dispatch", prometheus.DefaultRegisterer)

	resolver := geo.NewResolver(geocoder(cfg.Maps, appLogger), cfg.Maps.Timeout, appLogger)

	provider, err := newProvider(cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create analysis provider")
	}
	analyzer := analysis.NewAnalyzer(provider, analysis.Config{
		Timeout:  cfg.AI.Timeout,
		CacheTTL: cfg.AI.CacheTTL,
	}, appLogger, m)
	checks["ai"] = func(ctx context.Context) error {
		_, err := analyzer.Ping(ctx)
		return err
	}

	// Services
	accountSvc := accountService.NewService(
		repos.Accounts,
		repos.Hospitals,
		repos.Sessions,
		security.NewBcryptHasher(cfg.Auth.BcryptCost),
		auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		resolver,
		accountService.Config{SessionTTL: cfg.Auth.SessionTTL},
		appLogger,
	)
	fleetSvc := fleetService.NewService(repos.Ambulances, repos.Drivers, appLogger)
	reportSvc := reportService.NewService(repos.Reports, fleetSvc, accountSvc, analyzer, resolver, appLogger, m)
	feed := reportService.NewFeed(reportSvc, fleetSvc, appLogger)

	// Handlers
	authMW := middleware.NewAuthMiddleware(accountSvc)

	r, err := router.NewRouter(
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			AllowedOrigins:   cfg.Security.AllowedOrigins,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodySize:      cfg.Server.MaxBodyBytes,
			MaxUploadSize:    cfg.Server.MaxUploadBytes,
			MetricsPrefix:    "dispatch",
		},
		health.NewHandler(checks, prometheus.DefaultGatherer),
		authHandler.NewHandler(accountSvc, authMW),
		reportHandler.NewHandler(reportSvc, authMW),
		operatorHandler.NewHandler(reportSvc, fleetSvc, feed, cfg.Feed.Interval, authMW),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create router")
	}
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver, "ai_provider", provider.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	// Request contexts derive from ctx; cancelling ends open feed streams.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

func redisConfig(cfg config.RedisConfig) redisbroker.Config {
	return redisbroker.Config{
		URL:          cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
}

// geocoder returns nil when no maps key is configured, so the resolver
// falls straight back to the default location.
func geocoder(cfg config.MapsConfig, log *logger.Logger) geo.Geocoder {
	if cfg.APIKey == "" {
		log.Info("Maps API key not set; address geocoding disabled")
		return nil
	}
	g, err := geo.NewMapsGeocoder(cfg.APIKey)
	if err != nil {
		log.Error(err, "Address geocoding disabled")
		return nil
	}
	return g
}

func newProvider(cfg config.AIConfig) (analysis.Provider, error) {
	var p analysis.Provider
	switch cfg.Provider {
	case config.ProviderOpenAI:
		p = analysis.NewOpenAIProvider(analysis.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.Endpoint,
		})
	case config.ProviderGemini:
		p = analysis.NewGeminiProvider(analysis.GeminiConfig{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.Model,
			Endpoint: cfg.Endpoint,
			Timeout:  cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	return analysis.WithCircuitBreaker(p, circuitbreaker.Settings{
		MaxFailures: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
	}), nil
}
