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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"salesconsumer/internal/app/consumer"
	"salesconsumer/internal/app/records"
	"salesconsumer/internal/config"
	records_http "salesconsumer/internal/handler/http/records"
	kafka_handler "salesconsumer/internal/handler/kafka"
	"salesconsumer/internal/infrastructure/database"
	kafka_infra "salesconsumer/internal/infrastructure/kafka"
	"salesconsumer/internal/metrics"
	"salesconsumer/internal/outbox"
	"salesconsumer/internal/quarantine"
	"salesconsumer/internal/reconciler"
	"salesconsumer/internal/repository/opportunity_repo"
	"salesconsumer/internal/repository/outbox_repo"
	"salesconsumer/internal/repository/project_repo"
	"salesconsumer/internal/retry"
	"salesconsumer/internal/router"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = lvl
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	return zapConfig.Build()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger = appLogger.With(zap.String("app", cfg.AppName))
	appLogger.Info("Sales consumer starting...")

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer bootCancel()

	appLogger.Info("Waiting for database to be available...", zap.String("driver", cfg.DBConfig.Driver))
	db, err := database.Connect(
		bootCtx,
		cfg.Database(),
		cfg.DBConfig.ConnectAttempts,
		cfg.DBConfig.ConnectDelay,
		appLogger.With(zap.String("component", "Database")),
	)
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	if err := database.Migrate(bootCtx, db); err != nil {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	if cfg.KafkaEnsureTopic {
		topics := []string{cfg.KafkaTopic}
		if cfg.QuarantineTopic != "" {
			topics = append(topics, cfg.QuarantineTopic)
		}
		if err := kafka_infra.EnsureTopics(bootCtx, cfg.KafkaBrokers, topics, appLogger); err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}
	}

	opportunityRepository := opportunity_repo.NewOpportunityRepository(db.Driver)
	projectRepository := project_repo.NewProjectRepository(db.Driver)

	recordRouter, err := router.New(
		reconciler.NewOpportunityReconciler(opportunityRepository, appLogger.With(zap.String("component", "OpportunityReconciler"))),
		reconciler.NewProjectReconciler(projectRepository, appLogger.With(zap.String("component", "ProjectReconciler"))),
	)
	if err != nil {
		appLogger.Fatal("Failed to build object type router", zap.Error(err))
	}

	fileSink, err := quarantine.NewFileSink(cfg.QuarantineFile)
	if err != nil {
		appLogger.Fatal("Failed to open quarantine file", zap.String("path", cfg.QuarantineFile), zap.Error(err))
	}
	defer func() {
		if err := fileSink.Close(); err != nil {
			appLogger.Error("Error closing quarantine file", zap.Error(err))
		}
	}()

	appMetrics := metrics.New()

	sinks := []quarantine.Sink{fileSink}
	var outboxProcessor *outbox.Processor
	if cfg.QuarantineTopic != "" {
		dlqProducer := kafka_infra.NewProducer(
			cfg.KafkaBrokers,
			cfg.QuarantineTopic,
			appLogger.With(zap.String("component", "QuarantineProducer")),
		)
		defer func() {
			if err := dlqProducer.Close(); err != nil {
				appLogger.Error("Error closing quarantine producer", zap.Error(err))
			} else {
				appLogger.Info("Quarantine producer closed.")
			}
		}()

		outboxRepository := outbox_repo.NewOutboxRepository(db.Driver)
		sinks = append(sinks, quarantine.NewOutboxSink(db.DB, outboxRepository))
		outboxProcessor = outbox.NewProcessor(
			db.DB,
			outboxRepository,
			dlqProducer,
			cfg.OutboxPollInterval,
			cfg.OutboxPollTimeout,
			cfg.OutboxBatchSize,
			appMetrics,
			appLogger.With(zap.String("component", "OutboxProcessor")),
		)
	}
	sink := quarantine.WithLogging(quarantine.FanOut(sinks...), appLogger.With(zap.String("component", "Quarantine")))

	salesEventHandler := kafka_handler.NewSalesEventHandler(
		db.DB,
		recordRouter,
		sink,
		retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
		},
		appMetrics,
		appLogger.With(zap.String("component", "SalesEventHandler")),
	)

	subscriber := kafka_infra.NewSubscriber(
		kafka_infra.SubscriberConfig{
			Brokers:     cfg.KafkaBrokers,
			Topic:       cfg.KafkaTopic,
			GroupID:     cfg.KafkaGroupID,
			StartOffset: cfg.KafkaAutoOffsetReset,
		},
		appLogger.With(zap.String("component", "KafkaSubscriber")),
	)
	consumerService := consumer.NewService(
		subscriber,
		salesEventHandler,
		cfg.RetryBaseDelay,
		appLogger.With(zap.String("component", "ConsumerService")),
	)

	recordService := records.NewRecordService(
		db.DB,
		opportunityRepository,
		projectRepository,
		appLogger.With(zap.String("component", "RecordService")),
	)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = appMetrics.Handler()
	}

	httpRouter := chi.NewRouter()
	httpRouter.Use(middleware.Logger)
	httpRouter.Use(middleware.Recoverer)
	httpRouter.Use(records_http.CORS(cfg.HTTPAllowedOrigins))
	records_http.RegisterRoutes(
		httpRouter,
		recordService,
		consumerService.Running,
		metricsHandler,
		appLogger.With(zap.String("component", "HTTPHandler")),
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if outboxProcessor != nil {
		outboxProcessor.Start(context.Background())
	}

	if err := consumerService.Start(context.Background()); err != nil {
		appLogger.Fatal("Failed to start consumer", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	appLogger.Info("Shutting down application...", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := consumerService.Stop(shutdownCtx); err != nil {
		appLogger.Error("Consumer did not stop cleanly", zap.Error(err))
	} else {
		appLogger.Info("Consumer stopped.")
	}

	if outboxProcessor != nil {
		if err := outboxProcessor.Stop(shutdownCtx); err != nil {
			appLogger.Error("Outbox processor did not stop cleanly", zap.Error(err))
		}
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	appLogger.Info("Application gracefully shut down.")
}
