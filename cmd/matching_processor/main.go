package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bank-reconciliation/internal/config"
	"github.com/bank-reconciliation/internal/data/mongo"
	"github.com/bank-reconciliation/internal/data/postgres"
	"github.com/bank-reconciliation/internal/logger"
	"github.com/bank-reconciliation/internal/matching_processor/components"
	"github.com/bank-reconciliation/internal/matching_processor/consumer"
	"github.com/bank-reconciliation/internal/matching_processor/outbox_poller"
	"github.com/bank-reconciliation/internal/matching_processor/service"
	"github.com/bank-reconciliation/internal/matching_processor/webhook_dispatcher"
	"github.com/bank-reconciliation/internal/platform/messaging/consumers"
	"github.com/bank-reconciliation/internal/platform/messaging/producers"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("matching_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Matching Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	txRepo := postgres.NewBankTransactionRepository(log, postgresDB)
	invoiceRepo := postgres.NewInvoiceRepository(log, postgresDB)
	paymentRepo := postgres.NewPaymentRepository(log, postgresDB)
	reconRepo := postgres.NewReconciliationRepository(log, postgresDB)
	webhookRepo := postgres.NewWebhookEventRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize Kafka producers
	matchReqProducer, err := producers.NewMatchReqMessageProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize match request Kafka producer", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer might be nil if DLQTopic is not configured. Handler is nil-safe.

	// Initialize match service with separated concerns
	matchService := components.CreateMatchService(
		postgresDB,
		auditRepo,
		log,
		cfg,
	)

	// Initialize match event handler
	matchEventHandler := consumer.NewMatchEventHandler(
		log,
		matchService,
		dlqProducer,
	)

	// Initialize outbox poller
	matchPublisher := outbox_poller.NewMatchPublisher(
		outboxRepo,
		matchReqProducer,
		log,
	)
	poller := outbox_poller.NewPoller(
		&cfg.Outbox,
		outboxRepo,
		matchPublisher,
		log,
	)

	// Initialize webhook dispatcher
	auditTrail := components.NewAuditRecorder(auditRepo, log)
	dispatcher := webhook_dispatcher.NewDispatcher(
		cfg.Webhook,
		webhookRepo,
		paymentRepo,
		reconRepo,
		invoiceRepo,
		txRepo,
		postgresDB,
		auditTrail,
		log,
	)

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.MatchRequestTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.MatchRequestTopic, cfg.Kafka.ConsumerGroup, matchEventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	// Start webhook dispatcher in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Shutdown the worker pool if it's a WorkerPoolMatchService
	if wpService, ok := matchService.(*service.WorkerPoolMatchService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close Kafka producers
	if err = matchReqProducer.Close(); err != nil {
		log.Error("Error closing match request Kafka producer", "error", err)
	}
	if dlqProducer != nil { // dlqProducer can be nil if DLQTopic was not configured
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Matching Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Matching Processor shutdown completed with errors")
	} else {
		log.Info("Matching Processor shutdown completed successfully")
	}
}
