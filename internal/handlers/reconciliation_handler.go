package handler

import (
	"errors"
	"net/http"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	service "ledger-reconciliation-backend/internal/services/reconciliation"
	"ledger-reconciliation-backend/internal/services/writeback"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserIDHeader carries the caller's user id. Authentication happens in front
// of this service.
const UserIDHeader = "X-User-ID"

type ReconciliationHandler struct {
	service   *service.ReconciliationService
	writeback *writeback.WriteBackService
}

func NewReconciliationHandler(svc *service.ReconciliationService, wb *writeback.WriteBackService) *ReconciliationHandler {
	return &ReconciliationHandler{service: svc, writeback: wb}
}

func userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader(UserIDHeader))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + UserIDHeader + " header"})
		return uuid.Nil, false
	}
	return id, true
}

func paramID(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + label})
		return uuid.Nil, false
	}
	return id, true
}

// ids reads the caller and one path id, writing the error response itself.
func ids(c *gin.Context, name, label string) (uuid.UUID, uuid.UUID, bool) {
	user, ok := userID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := paramID(c, name, label)
	return id, user, ok
}

func writeError(c *gin.Context, err error) {
	var (
		notEligible *service.NotEligibleError
		validation  *writeback.ValidationError
		apiErr      *ledger.APIError
	)
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &notEligible):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": notEligible.Reason, "reason": notEligible.Reason})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message})
	case errors.Is(err, writeback.ErrAlreadyPushed),
		errors.Is(err, writeback.ErrAlreadyMatched),
		errors.Is(err, writeback.ErrAlreadyReplicated):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		logger.FromContext(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *ReconciliationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ReconciliationHandler) GetEligibility(c *gin.Context) {
	batchID, user, ok := ids(c, "batchId", "batch ID")
	if !ok {
		return
	}
	elig, err := h.service.CanMatch(batchID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, elig)
}

// GetMatchProgress reports the match job without advancing it.
func (h *ReconciliationHandler) GetMatchProgress(c *gin.Context) {
	batchID, user, ok := ids(c, "batchId", "batch ID")
	if !ok {
		return
	}
	progress, err := h.service.GetProgress(batchID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// AdvanceMatch runs one step of the match job. Clients poll it until the
// status is complete or error.
func (h *ReconciliationHandler) AdvanceMatch(c *gin.Context) {
	batchID, user, ok := ids(c, "batchId", "batch ID")
	if !ok {
		return
	}
	progress, err := h.service.AdvanceMatchJob(c.Request.Context(), batchID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *ReconciliationHandler) ResetMatch(c *gin.Context) {
	batchID, user, ok := ids(c, "batchId", "batch ID")
	if !ok {
		return
	}
	progress, err := h.service.ResetMatchJob(batchID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *ReconciliationHandler) ClearMatches(c *gin.Context) {
	batchID, user, ok := ids(c, "batchId", "batch ID")
	if !ok {
		return
	}
	count, err := h.service.ClearMatches(batchID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":              "matches cleared",
		"transactions_cleared": count,
	})
}

func (h *ReconciliationHandler) ListOrphans(c *gin.Context) {
	batchID, user, ok := ids(c, "batchId", "batch ID")
	if !ok {
		return
	}
	orphans, err := h.service.ListOrphans(batchID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": orphans, "count": len(orphans)})
}

func (h *ReconciliationHandler) GetBatchStats(c *gin.Context) {
	batchID, user, ok := ids(c, "batchId", "batch ID")
	if !ok {
		return
	}
	stats, err := h.service.GetBatchStats(batchID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ReconciliationHandler) ReconcileAccount(c *gin.Context) {
	accountID, user, ok := ids(c, "accountId", "account ID")
	if !ok {
		return
	}
	result, err := h.service.ReconcileAccount(c.Request.Context(), accountID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
