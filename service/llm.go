package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"
)

// Completer is the chat-completion surface services depend on. Satisfied by
// *openai.Client; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResult, error)
}

// Embedder is the embedding surface services depend on
type Embedder interface {
	Embed(ctx context.Context, text string, models ...string) (*openai.EmbeddingResult, error)
}

// stripCodeFences removes a surrounding markdown code fence from model output
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// extractJSONArray locates the JSON array in model output, tolerating prose
// or fences around it
func extractJSONArray(s string) (string, error) {
	s = stripCodeFences(s)
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON array in model output")
	}
	return s[start : end+1], nil
}

// extractJSONObject locates the JSON object in model output
func extractJSONObject(s string) (string, error) {
	s = stripCodeFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in model output")
	}
	return s[start : end+1], nil
}

// truncate hard-caps a string at n bytes, backing the cut up to a rune
// boundary so legal text with section signs, dashes, or curly quotes never
// yields invalid UTF-8
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
