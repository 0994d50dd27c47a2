package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/dispatch-api/internal/config"
	"github.com/jwalitptl/dispatch-api/internal/email"
	"github.com/jwalitptl/dispatch-api/internal/handler/health"
	"github.com/jwalitptl/dispatch-api/internal/repository/postgres"
	"github.com/jwalitptl/dispatch-api/internal/service/notification"
	internalworker "github.com/jwalitptl/dispatch-api/internal/worker"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/messaging"
	redisbroker "github.com/jwalitptl/dispatch-api/pkg/messaging/redis"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
	"github.com/jwalitptl/dispatch-api/pkg/worker"
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
	}).WithFields(map[string]interface{}{"worker_id": workerID()})
	log.Logger = appLogger.ZL
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Log.Level))

	// The in-memory store lives inside the API process; there is no outbox
	// for a separate worker to drain.
	if cfg.Storage.Driver != config.StoragePostgres {
		log.Fatal().Str("driver", cfg.Storage.Driver).Msg("Worker requires postgres storage")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	redisClient, err := redisbroker.NewClient(ctx, redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	broker := redisbroker.NewRedisBroker(redisClient, log.Logger)
	defer broker.Close()

	m := metrics.NewMetrics("dispatch_worker", prometheus.DefaultRegisterer)

	base := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(base)

	processor, err := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		worker.OutboxProcessorConfig{
			Channel:       cfg.Redis.Channel,
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
		},
		appLogger,
		m,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid outbox processor config")
	}

	cleanup, err := internalworker.NewOutboxCleanupWorker(processor, cfg.Outbox.CleanupSchedule, cfg.Outbox.Retention, appLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid outbox cleanup config")
	}

	notifier := notification.NewService(
		postgres.NewHospitalRepository(base),
		email.NewSMTPService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, appLogger),
		appLogger,
		m,
	)

	bus := messaging.NewBrokerAdapter(broker, 30*time.Second)
	if err := bus.Subscribe(ctx, cfg.Redis.Channel, notifier.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to events")
	}

	srv := healthServer(ctx, cfg.Server.HealthPort, map[string]health.Check{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Health check server failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	appLogger.Info("Worker started", "channel", cfg.Redis.Channel, "health_port", cfg.Server.HealthPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down...")

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health server forced to shutdown")
	}
}

func healthServer(ctx context.Context, port int, checks map[string]health.Check) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(checks, prometheus.DefaultGatherer).RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     engine,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
