package routes

import (
	"github.com/gin-gonic/gin"

	handler "ledger-reconciliation-backend/internal/handlers"
	service "ledger-reconciliation-backend/internal/services/reconciliation"
	"ledger-reconciliation-backend/internal/services/writeback"
)

func RegisterRoutes(r *gin.Engine, reconService *service.ReconciliationService, writeBackService *writeback.WriteBackService) {
	reconHandler := handler.NewReconciliationHandler(reconService, writeBackService)

	api := r.Group("/api")

	// Health check
	api.GET("/health", reconHandler.Health)

	// Batch matching
	batches := api.Group("/batches")
	batches.GET("/:batchId/match/eligibility", reconHandler.GetEligibility)
	batches.GET("/:batchId/match", reconHandler.GetMatchProgress)
	batches.POST("/:batchId/match/advance", reconHandler.AdvanceMatch)
	batches.POST("/:batchId/match/reset", reconHandler.ResetMatch)
	batches.DELETE("/:batchId/matches", reconHandler.ClearMatches)
	batches.GET("/:batchId/orphans", reconHandler.ListOrphans)
	batches.GET("/:batchId/stats", reconHandler.GetBatchStats)

	// Transaction-level write-back
	tx := api.Group("/transactions")
	tx.POST("/:id/push", reconHandler.PushTransaction)
	tx.POST("/:id/transfer", reconHandler.PushTransfer)
	tx.POST("/:id/replicate", reconHandler.ReplicateTransaction)
	tx.GET("/:id/suggestion", reconHandler.SuggestClassification)

	// Whole-account reconciliation
	accounts := api.Group("/accounts")
	{
		accounts.POST("/:accountId/reconcile", reconHandler.ReconcileAccount)
	}
}
