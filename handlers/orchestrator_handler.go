package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/EvidenceKeeper/evidence-aid-nsw/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrchestratorHandler handles POST /functions/evidence-intelligence-orchestrator
type OrchestratorHandler struct {
	orchestrator *service.OrchestratorService
}

// NewOrchestratorHandler creates a new orchestrator handler
func NewOrchestratorHandler(orchestrator *service.OrchestratorService) *OrchestratorHandler {
	return &OrchestratorHandler{orchestrator: orchestrator}
}

// OrchestrateRequestBody is the JSON body of an orchestrator trigger
type OrchestrateRequestBody struct {
	TriggerType string  `json:"trigger_type"`
	FileID      *string `json:"file_id"`
}

// Trigger starts an evidence-intelligence batch for the authenticated user
// and returns before the work completes
func (h *OrchestratorHandler) Trigger(c *gin.Context) {
	userID, ok := UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	// Both fields are optional; a bodyless POST is a valid manual trigger.
	var body OrchestrateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	var fileID *uuid.UUID
	if body.FileID != nil && *body.FileID != "" {
		id, err := uuid.Parse(*body.FileID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file_id format"})
			return
		}
		fileID = &id
	}

	result, err := h.orchestrator.Trigger(c.Request.Context(), service.OrchestrateRequest{
		UserID:      userID,
		TriggerType: body.TriggerType,
		FileID:      fileID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to start analysis",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
