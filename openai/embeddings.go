package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
)

// EmbeddingDimensions is requested explicitly for every embedding model so
// the pgvector column stays fixed-width across the fallback list.
const EmbeddingDimensions = 1536

// EmbeddingResult carries the vector and which model produced it
type EmbeddingResult struct {
	Vector []float64
	Model  string
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// Embed generates an L2-normalized embedding for text, trying each model in
// order (large first, small second by default).
func (c *Client) Embed(ctx context.Context, text string, models ...string) (*EmbeddingResult, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if len(models) == 0 {
		models = DefaultEmbeddingModels
	}

	var lastErr error
	for _, model := range models {
		vector, err := c.embedWithModel(ctx, model, text)
		if err != nil {
			c.log.Warn("embedding model failed, trying next", "model", model, "error", err)
			lastErr = err
			continue
		}
		Normalize(vector)
		return &EmbeddingResult{Vector: vector, Model: model}, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
	}
	return nil, ErrAllModelsFailed
}

func (c *Client) embedWithModel(ctx context.Context, model, text string) ([]float64, error) {
	reqBody := embeddingRequest{
		Model:      model,
		Input:      text,
		Dimensions: EmbeddingDimensions,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+embeddingsPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(respBody))
	}

	var apiResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Data) == 0 || len(apiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("API returned empty embedding")
	}

	return apiResp.Data[0].Embedding, nil
}

// Normalize scales a vector to unit L2 norm in place. Cosine-distance search
// assumes unit vectors on both sides.
func Normalize(embedding []float64) {
	var sumSq float64
	for _, v := range embedding {
		sumSq += v * v
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range embedding {
		embedding[i] /= norm
	}
}
