package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
	"github.com/EvidenceKeeper/evidence-aid-nsw/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSections_GlobalOrderIsGapFree(t *testing.T) {
	// Force the fixed-width fallback so chunk counts are deterministic.
	llm := failingCompleter(errors.New("model down"))
	sections := []models.LegalSection{
		{SectionNumber: "1", Content: strings.Repeat("a", 2500)},
		{SectionNumber: "2", Content: "short section"},
		{SectionNumber: "3", Content: strings.Repeat("b", 1200)},
	}

	chunks := chunkSections(context.Background(), llm, sections, ChunkConfig{ChunkSize: 1000}, logger.NewNop())

	// 3 + 1 + 2 chunks, ordered 0..5 with no gaps across section boundaries.
	require.Len(t, chunks, 6)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkOrder)
	}
	assert.Equal(t, "1", chunks[0].SectionID)
	assert.Equal(t, "2", chunks[3].SectionID)
	assert.Equal(t, "3", chunks[4].SectionID)
}

func TestChunkSections_ShortSectionKeptVerbatim(t *testing.T) {
	llm := failingCompleter(errors.New("must not be called"))
	sections := []models.LegalSection{
		{SectionNumber: "60CC", Content: "The court must consider the best interests of the child."},
	}

	chunks := chunkSections(context.Background(), llm, sections, ChunkConfig{}, logger.NewNop())

	require.Len(t, chunks, 1)
	assert.Equal(t, sections[0].Content, chunks[0].ChunkText)
	assert.Equal(t, 0, chunks[0].ChunkOrder)
}

func TestChunkSections_CarriesSectionConcepts(t *testing.T) {
	llm := failingCompleter(errors.New("model down"))
	sections := []models.LegalSection{
		{SectionNumber: "11", Content: "text", LegalConcepts: []string{"coercive control"}},
	}

	chunks := chunkSections(context.Background(), llm, sections, ChunkConfig{}, logger.NewNop())

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"coercive control"}, chunks[0].LegalConcepts)
}

func TestChunkSections_UsesModelSplitWhenAvailable(t *testing.T) {
	llm := staticCompleter(`["first piece", "second piece"]`)
	sections := []models.LegalSection{
		{SectionNumber: "1", Content: strings.Repeat("x", 1500)},
	}

	chunks := chunkSections(context.Background(), llm, sections, ChunkConfig{ChunkSize: 1000}, logger.NewNop())

	require.Len(t, chunks, 2)
	assert.Equal(t, "first piece", chunks[0].ChunkText)
	assert.Equal(t, "second piece", chunks[1].ChunkText)
}

func TestFixedWidthSlices_NoOverlapAndLossless(t *testing.T) {
	text := strings.Repeat("abcde", 500) // 2500 chars

	slices := fixedWidthSlices(text, 1000)

	require.Len(t, slices, 3)
	for _, slice := range slices {
		assert.LessOrEqual(t, len(slice), 1000)
	}
	// Slices concatenate back to the original: no overlap, no loss.
	assert.Equal(t, text, strings.Join(slices, ""))
}

func TestFixedWidthSlices_MultiByteRunesStayIntact(t *testing.T) {
	// Euro signs are 3 bytes; a 1000-byte cut would land mid-rune.
	text := strings.Repeat("€", 400)

	slices := fixedWidthSlices(text, 1000)

	require.Len(t, slices, 2)
	for i, slice := range slices {
		assert.True(t, utf8.ValidString(slice), "slice %d", i)
		assert.LessOrEqual(t, len(slice), 1000)
	}
	assert.Equal(t, text, strings.Join(slices, ""))
}

func TestChunkConfig_Defaults(t *testing.T) {
	cfg := ChunkConfig{}.withDefaults()
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.Overlap)

	// An explicit zero overlap is treated as unset, same as the zero value.
	zero := ChunkConfig{ChunkSize: 500, Overlap: 0}.withDefaults()
	assert.Equal(t, 100, zero.Overlap)

	custom := ChunkConfig{ChunkSize: 500, Overlap: 50}.withDefaults()
	assert.Equal(t, 500, custom.ChunkSize)
	assert.Equal(t, 50, custom.Overlap)
}
