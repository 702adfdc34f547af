package handlers

import (
	"errors"
	"net/http"

	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"
	"github.com/EvidenceKeeper/evidence-aid-nsw/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler handles POST /functions/assistant-chat
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ChatRequestBody is the JSON body of a chat turn
type ChatRequestBody struct {
	Prompt   string               `json:"prompt"`
	Messages []openai.ChatMessage `json:"messages"`
	Mode     string               `json:"mode"`
}

// Chat handles one chat turn for the authenticated user
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var body ChatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.chatService.Chat(c.Request.Context(), service.ChatRequest{
		UserID:   userID,
		Prompt:   body.Prompt,
		Messages: body.Messages,
		Mode:     body.Mode,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyPrompt) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status := http.StatusInternalServerError
		message := "chat failed"
		if errors.Is(err, openai.ErrAllModelsFailed) {
			message = "All models failed to respond"
		}
		c.JSON(status, gin.H{
			"error":   message,
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
