package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 100
)

// ChunkConfig controls the chunking pass. Overlap guides only the model
// split: the fixed-width fallback applies no overlap, which is documented
// behavior, not drift.
type ChunkConfig struct {
	ChunkSize int `json:"chunk_size"`
	Overlap   int `json:"overlap"`
}

func (c ChunkConfig) withDefaults() ChunkConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.Overlap <= 0 {
		c.Overlap = defaultOverlap
	}
	return c
}

const chunkSplitPrompt = `Split the legal text below into chunks of at most %d characters each, with roughly %d characters of overlap between consecutive chunks. Respect sentence, paragraph, and legal-grouping boundaries; never split mid-sentence.

Return ONLY a JSON array of strings, one per chunk, in document order.

TEXT:
%s`

// chunkSections turns sections into embedding-ready chunks. chunk_order is
// assigned globally across all sections of the document: strictly increasing
// and gap-free from 0.
func chunkSections(ctx context.Context, llm Completer, sections []models.LegalSection, cfg ChunkConfig, log *logger.Logger) []models.LegalChunk {
	cfg = cfg.withDefaults()

	var chunks []models.LegalChunk
	order := 0
	for _, section := range sections {
		for _, text := range splitSection(ctx, llm, section, cfg, log) {
			chunks = append(chunks, models.LegalChunk{
				SectionID:     section.SectionNumber,
				ChunkText:     text,
				ChunkOrder:    order,
				LegalConcepts: section.LegalConcepts,
			})
			order++
		}
	}

	return chunks
}

func splitSection(ctx context.Context, llm Completer, section models.LegalSection, cfg ChunkConfig, log *logger.Logger) []string {
	if len(section.Content) <= cfg.ChunkSize {
		return []string{section.Content}
	}

	pieces, err := splitWithLLM(ctx, llm, section.Content, cfg)
	if err != nil {
		log.Warn("intelligent split failed, using fixed-width slices",
			"section", section.SectionNumber, "error", err)
		return fixedWidthSlices(section.Content, cfg.ChunkSize)
	}
	return pieces
}

func splitWithLLM(ctx context.Context, llm Completer, content string, cfg ChunkConfig) ([]string, error) {
	prompt := fmt.Sprintf(chunkSplitPrompt, cfg.ChunkSize, cfg.Overlap, content)

	result, err := llm.Complete(ctx, openai.CompletionRequest{
		Messages:    []openai.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   4000,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	raw, err := extractJSONArray(result.Text)
	if err != nil {
		return nil, err
	}

	var pieces []string
	if err := json.Unmarshal([]byte(raw), &pieces); err != nil {
		return nil, fmt.Errorf("failed to decode chunk list: %w", err)
	}

	valid := pieces[:0]
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		valid = append(valid, piece)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("model returned no usable chunks")
	}

	return valid, nil
}

// fixedWidthSlices cuts text into consecutive slices of at most size bytes,
// each cut backed up to a rune boundary so multi-byte characters stay intact.
// No overlap; joining the slices reproduces the input.
func fixedWidthSlices(text string, size int) []string {
	var out []string
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			out = append(out, text[start:])
			break
		}
		for end > start && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == start {
			// size is smaller than the rune at start; emit the whole rune
			_, width := utf8.DecodeRuneInString(text[start:])
			end = start + width
		}
		out = append(out, text[start:end])
		start = end
	}
	return out
}
