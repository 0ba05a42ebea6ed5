package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/a1davida1/DomainEmpire-sub003/internal/config"
	"github.com/a1davida1/DomainEmpire-sub003/internal/content"
	"github.com/a1davida1/DomainEmpire-sub003/internal/idempotency"
	"github.com/a1davida1/DomainEmpire-sub003/internal/pipeline"
	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
	"github.com/a1davida1/DomainEmpire-sub003/internal/review"
	"github.com/a1davida1/DomainEmpire-sub003/internal/worker"
	"github.com/a1davida1/DomainEmpire-sub003/shared/logger"
	"github.com/a1davida1/DomainEmpire-sub003/shared/postgresql"
	"github.com/a1davida1/DomainEmpire-sub003/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Wire stores and services
	db := dbClient.GetDB()
	jobs := queue.NewPostgresStore(db, appLogger.Logger)
	articles := content.NewPostgresStore(db, appLogger.Logger)
	reviewStore := review.NewPostgresStore(db, appLogger.Logger)
	idemStore := idempotency.NewPostgresStore(db, cfg.Idempotency.Retention, appLogger.Logger)

	resolver := review.NewResolver(cfg.Review.Rules, cfg.Review.RiskDefaults)
	reviews := review.NewService(articles, reviewStore, resolver, appLogger.Logger)

	// Content generator: remote service when configured, deterministic
	// static output otherwise (local development).
	var generator pipeline.Generator
	if cfg.Pipeline.GeneratorURL != "" {
		generator = pipeline.NewRemoteGenerator(cfg.Pipeline.GeneratorURL, cfg.Pipeline.GeneratorTimeout, appLogger.Logger)
	} else {
		appLogger.Warn("No generator_url configured, using static generator")
		generator = pipeline.StaticGenerator{}
	}

	dispatcher := pipeline.NewDispatcher(jobs, reviews, appLogger.Logger)
	pipeline.NewStages(generator, articles, jobs, appLogger.Logger).RegisterAll(dispatcher)

	// RabbitMQ nudges are optional; the pool polls regardless.
	var rabbitClient *rabbitmq.Client
	var nudges chan struct{}
	if cfg.RabbitMQ.Host != "" {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		appLogger.Info("RabbitMQ connection established")

		deliveries, err := rabbitClient.Consume("worker-service")
		if err != nil {
			return fmt.Errorf("failed to start nudge consumer: %w", err)
		}

		nudges = make(chan struct{}, 1)
		go func() {
			for range deliveries {
				select {
				case nudges <- struct{}{}:
				default:
					// A pending wake-up already covers this nudge.
				}
			}
		}()
	}

	workerID := fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	pool := worker.NewPool(&worker.Config{
		Logger:           appLogger.Logger,
		Jobs:             jobs,
		Dispatcher:       dispatcher,
		WorkerID:         workerID,
		Concurrency:      cfg.Worker.Concurrency,
		PollInterval:     cfg.Worker.PollInterval,
		LeaseDuration:    cfg.Worker.LeaseDuration,
		JobTimeout:       cfg.Worker.JobTimeout,
		RetryBackoffBase: cfg.Pipeline.RetryBackoffBase,
		Nudges:           nudges,
	})

	maintenance, err := worker.NewMaintenance(jobs, idemStore, cfg.Maintenance.Sites, worker.MaintenanceSchedules{
		PurgeIdempotency: cfg.Idempotency.PurgeSchedule,
		AnalyticsFetch:   cfg.Maintenance.AnalyticsSchedule,
		RenewalCheck:     cfg.Maintenance.RenewalSchedule,
		DatasetCheck:     cfg.Maintenance.DatasetSchedule,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to set up maintenance schedules: %w", err)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	maintenance.Start()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerID),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	maintenance.Stop()
	cancel()

	// Give the pool time to finish in-flight jobs
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ nudge consumer
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		ExchangeName:      cfg.Exchange.Name,
		ExchangeType:      cfg.Exchange.Type,
		ExchangeDurable:   cfg.Exchange.Durable,
		QueueName:         cfg.Queue.Name,
		QueueDurable:      cfg.Queue.Durable,
		RoutingKey:        cfg.RoutingKey,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
