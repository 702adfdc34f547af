package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	chatCompletionsPath = "/chat/completions"
	embeddingsPath      = "/embeddings"
)

var (
	// ErrAllModelsFailed is returned when every model in the fallback list
	// failed to produce a response.
	ErrAllModelsFailed = errors.New("all models failed to respond")

	// ErrMissingAPIKey is returned when the client has no API key configured.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")
)

// ModelCapability describes the request-shaping quirks of one model: which
// token-limit parameter it accepts and whether it accepts temperature.
type ModelCapability struct {
	TokenParam          string
	SupportsTemperature bool
}

// modelCapabilities is the single declarative table consulted for per-model
// parameter naming. Models absent from the table get the conservative
// default (max_completion_tokens, no temperature).
var modelCapabilities = map[string]ModelCapability{
	"gpt-4o":      {TokenParam: "max_tokens", SupportsTemperature: true},
	"gpt-4o-mini": {TokenParam: "max_tokens", SupportsTemperature: true},
	"o1":          {TokenParam: "max_completion_tokens", SupportsTemperature: false},
	"o1-mini":     {TokenParam: "max_completion_tokens", SupportsTemperature: false},
}

// CapabilityFor returns the capability entry for a model.
func CapabilityFor(model string) ModelCapability {
	if capability, ok := modelCapabilities[model]; ok {
		return capability
	}
	return ModelCapability{TokenParam: "max_completion_tokens", SupportsTemperature: false}
}

// Default fallback lists. Order matters: first success wins.
var (
	DefaultChatModels      = []string{"gpt-4o", "gpt-4o-mini"}
	DefaultEmbeddingModels = []string{"text-embedding-3-large", "text-embedding-3-small"}
)

// Client calls the OpenAI chat-completion and embedding APIs with an ordered
// model-fallback list.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// Option is a functional option for Client
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatMessage is one message in a completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a chat-completion request over a fallback model list
type CompletionRequest struct {
	Models      []string // tried in order; empty means DefaultChatModels
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// CompletionResult carries the reply text and which model produced it
type CompletionResult struct {
	Text  string
	Model string
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Complete calls the chat-completion API, trying each model in order until
// one returns a usable reply. The capability table decides the token-limit
// parameter name and whether temperature is sent.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	models := req.Models
	if len(models) == 0 {
		models = DefaultChatModels
	}

	var lastErr error
	for _, model := range models {
		text, err := c.completeWithModel(ctx, model, req)
		if err != nil {
			c.log.Warn("completion model failed, trying next", "model", model, "error", err)
			lastErr = err
			continue
		}
		return &CompletionResult{Text: text, Model: model}, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
	}
	return nil, ErrAllModelsFailed
}

func (c *Client) completeWithModel(ctx context.Context, model string, req CompletionRequest) (string, error) {
	capability := CapabilityFor(model)

	body := map[string]interface{}{
		"model":    model,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		body[capability.TokenParam] = req.MaxTokens
	}
	if capability.SupportsTemperature {
		body["temperature"] = req.Temperature
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+chatCompletionsPath, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error: %d - %s", resp.StatusCode, string(respBody))
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("API returned no choices")
	}

	text := apiResp.Choices[0].Message.Content
	if text == "" {
		return "", fmt.Errorf("API returned empty content")
	}
	return text, nil
}
