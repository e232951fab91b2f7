package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bank-reconciliation/internal/api_gateway"
	"github.com/bank-reconciliation/internal/api_gateway/service"
	"github.com/bank-reconciliation/internal/config"
	"github.com/bank-reconciliation/internal/data/mongo"
	"github.com/bank-reconciliation/internal/data/postgres"
	"github.com/bank-reconciliation/internal/logger"
	"github.com/bank-reconciliation/internal/matching_processor/components"
	"github.com/bank-reconciliation/internal/platform/persistence"
	"github.com/bank-reconciliation/internal/settlement"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

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
	txRepo := postgres.NewBankTransactionRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	reconRepo := postgres.NewReconciliationRepository(log, postgresDB)
	feedbackRepo := postgres.NewFeedbackRepository(log, postgresDB)
	invoiceRepo := postgres.NewInvoiceRepository(log, postgresDB)
	paymentRepo := postgres.NewPaymentRepository(log, postgresDB)
	ruleRepo := postgres.NewMatchingRuleRepository(log, postgresDB)
	webhookRepo := postgres.NewWebhookEventRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	// Initialize services
	auditTrail := components.NewAuditRecorder(auditRepo, log)
	allocator := settlement.NewAllocator(postgresDB, invoiceRepo, reconRepo, log)
	poster := settlement.NewPostingService(postgresDB, invoiceRepo, paymentRepo, reconRepo, log)

	ingestionService := service.NewIngestionService(log, postgresDB, txRepo, outboxRepo, cfg.Ingest.BatchSize)
	reconciliationService := service.NewReconciliationService(log, reconRepo, feedbackRepo, txRepo, invoiceRepo,
		allocator, poster, auditTrail, cfg.Matching.AllowOverpayment)
	ruleService := service.NewRuleService(log, ruleRepo)
	webhookService := service.NewWebhookIntakeService(log, webhookRepo)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, ingestionService, reconciliationService, ruleService, webhookService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Shutdown HTTP server
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
