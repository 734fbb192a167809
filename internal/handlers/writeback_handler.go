package handler

import (
	"net/http"

	"ledger-reconciliation-backend/internal/services/writeback"

	"github.com/gin-gonic/gin"
)

func (h *ReconciliationHandler) PushTransaction(c *gin.Context) {
	txID, user, ok := ids(c, "id", "transaction ID")
	if !ok {
		return
	}
	var payload writeback.PushRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.writeback.Push(c.Request.Context(), txID, user, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "transaction pushed", "result": result})
}

func (h *ReconciliationHandler) PushTransfer(c *gin.Context) {
	txID, user, ok := ids(c, "id", "transaction ID")
	if !ok {
		return
	}
	var payload writeback.TransferRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.writeback.PushTransfer(c.Request.Context(), txID, user, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "transfer pushed", "result": result})
}

func (h *ReconciliationHandler) ReplicateTransaction(c *gin.Context) {
	txID, user, ok := ids(c, "id", "transaction ID")
	if !ok {
		return
	}
	var payload writeback.ReplicateRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.writeback.Replicate(c.Request.Context(), txID, user, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "transaction replicated", "result": result})
}

func (h *ReconciliationHandler) SuggestClassification(c *gin.Context) {
	txID, user, ok := ids(c, "id", "transaction ID")
	if !ok {
		return
	}
	suggestion, found, err := h.writeback.Suggest(txID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"suggestion": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": suggestion})
}
