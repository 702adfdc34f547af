package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/EvidenceKeeper/evidence-aid-nsw/service"

	"github.com/gin-gonic/gin"
)

// EvidenceHandler handles evidence file uploads and listing
type EvidenceHandler struct {
	evidenceService  *service.EvidenceService
	maxFileSize      int64
	allowedMimeTypes map[string]bool
}

// NewEvidenceHandler creates a new evidence handler
func NewEvidenceHandler(evidenceService *service.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{
		evidenceService: evidenceService,
		maxFileSize:     25 * 1024 * 1024, // 25MB
		allowedMimeTypes: map[string]bool{
			"application/pdf": true,
			"text/plain":      true,
			"message/rfc822":  true, // exported emails
		},
	}
}

// Upload handles POST /api/evidence/upload
func (h *EvidenceHandler) Upload(c *gin.Context) {
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

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "File is required",
			},
		})
		return
	}

	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize),
			},
		})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		filename := strings.ToLower(fileHeader.Filename)
		switch {
		case strings.HasSuffix(filename, ".pdf"):
			mimeType = "application/pdf"
		case strings.HasSuffix(filename, ".txt"):
			mimeType = "text/plain"
		case strings.HasSuffix(filename, ".eml"):
			mimeType = "message/rfc822"
		default:
			mimeType = "application/octet-stream"
		}
	}
	if !h.allowedMimeTypes[mimeType] && !strings.HasPrefix(mimeType, "text/") {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILE_TYPE",
				"message": "File type not allowed. Allowed types: PDF, TXT, EML",
			},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_OPEN_ERROR",
				"message": err.Error(),
			},
		})
		return
	}
	defer file.Close()

	record, err := h.evidenceService.Upload(c.Request.Context(), userID, fileHeader.Filename, mimeType, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UPLOAD_FAILED",
				"message": fmt.Sprintf("Failed to upload file: %v", err),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"id":         record.ID,
			"filename":   record.Filename,
			"mime_type":  record.MimeType,
			"size":       record.Size,
			"status":     record.Status,
			"created_at": record.CreatedAt,
		},
	})
}

// List handles GET /api/evidence
func (h *EvidenceHandler) List(c *gin.Context) {
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

	files, err := h.evidenceService.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIST_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    files,
	})
}
