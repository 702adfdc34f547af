package handlers

import (
	"errors"
	"net/http"

	"github.com/EvidenceKeeper/evidence-aid-nsw/service"

	"github.com/gin-gonic/gin"
)

// IngestHandler handles POST /functions/nsw-legal-ingestor
type IngestHandler struct {
	ingestionService *service.IngestionService
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingestionService *service.IngestionService) *IngestHandler {
	return &IngestHandler{ingestionService: ingestionService}
}

// Ingest runs the ingestion pipeline for one document
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req service.IngestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
			"status":  "failed",
		})
		return
	}

	result, err := h.ingestionService.Ingest(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEmptyContent) || errors.Is(err, service.ErrUnknownSourceType) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":   "ingestion failed",
			"details": err.Error(),
			"status":  "failed",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
