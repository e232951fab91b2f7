package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bank-reconciliation/internal/api_gateway/handler"
	"github.com/bank-reconciliation/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	importHandler *handler.ImportHandler,
	reconciliationHandler *handler.ReconciliationHandler,
	ruleHandler *handler.RuleHandler,
	webhookHandler *handler.WebhookHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Transaction ingestion
		imports := v1.Group("/imports")
		{
			imports.POST("/transactions", importHandler.ImportCSV)
			imports.DELETE("/:id", importHandler.CancelImport)
		}
		v1.POST("/feeds/:accountId/transactions", importHandler.IngestFeed)

		// Review queue and operator actions
		reconciliations := v1.Group("/reconciliations")
		{
			reconciliations.GET("", reconciliationHandler.List)
			reconciliations.GET("/:id", reconciliationHandler.GetByID)
			reconciliations.POST("/:id/match", reconciliationHandler.Match)
			reconciliations.POST("/:id/splits", reconciliationHandler.Splits)
			reconciliations.POST("/:id/approve", reconciliationHandler.Approve)
			reconciliations.POST("/:id/ignore", reconciliationHandler.Ignore)
			reconciliations.POST("/:id/feedback", reconciliationHandler.Feedback)
		}

		// Matching rule management
		rules := v1.Group("/rules")
		{
			rules.GET("", ruleHandler.List)
			rules.POST("", ruleHandler.Create)
			rules.GET("/:id", ruleHandler.GetByID)
			rules.PUT("/:id", ruleHandler.Update)
			rules.DELETE("/:id", ruleHandler.Delete)
		}

		// Provider event intake
		v1.POST("/webhooks/:provider", webhookHandler.Receive)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
