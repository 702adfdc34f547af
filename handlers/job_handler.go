package handlers

import (
	"net/http"

	"github.com/EvidenceKeeper/evidence-aid-nsw/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JobHandler exposes analysis-job polling
type JobHandler struct {
	jobRepo *repository.AnalysisJobRepository
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobRepo *repository.AnalysisJobRepository) *JobHandler {
	return &JobHandler{jobRepo: jobRepo}
}

// GetJob handles GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	userID, ok := UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_AUTHENTICATED",
				"message": "Authentication required",
			},
		})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid job ID format",
			},
		})
		return
	}

	job, err := h.jobRepo.GetByID(c.Request.Context(), id)
	if err != nil || job.UserID != userID {
		// Another user's job is indistinguishable from a missing one.
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Job not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    job,
	})
}
