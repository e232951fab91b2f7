package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bank-reconciliation/internal/calibration"
	"github.com/bank-reconciliation/internal/config"
	"github.com/bank-reconciliation/internal/data/postgres"
	"github.com/bank-reconciliation/internal/logger"
	"github.com/bank-reconciliation/internal/matching_processor/components"
	"github.com/bank-reconciliation/internal/platform/persistence"
)

// The calibrator is a one-shot batch job: it recomputes per-company scoring
// profiles from recent feedback and exits. Run it from cron or a scheduler.
func main() {
	appCtx, cancelAppCtx := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("weight_calibrator")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Weight Calibrator",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"window", cfg.Matching.CalibrationWindow.String(),
	)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}
	feedbackRepo := postgres.NewFeedbackRepository(log, postgresDB)
	reconRepo := postgres.NewReconciliationRepository(log, postgresDB)
	profileRepo := postgres.NewScoringProfileRepository(log, postgresDB)

	calibrator := calibration.NewCalibrator(
		feedbackRepo,
		reconRepo,
		profileRepo,
		components.ScoringConfigFromMatching(cfg.Matching),
		log,
	)

	since := time.Now().Add(-cfg.Matching.CalibrationWindow)
	if err := calibrator.Run(appCtx, since); err != nil {
		log.Error("Calibration run failed", "error", err)
		postgresDB.Close()
		os.Exit(1)
	}

	postgresDB.Close()
	log.Info("Calibration run completed successfully")
}
