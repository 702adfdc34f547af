package service

import (
	"context"
	"errors"
	"testing"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSections_ParsesModelOutput(t *testing.T) {
	llm := staticCompleter("```json\n" + `[
		{"section_number": "60CC", "title": "Best interests", "content": "The court must consider...", "level": 1},
		{"section_number": "", "title": "Untitled", "content": "Further provisions.", "level": 1},
		{"section_number": "61", "title": "Empty", "content": "", "level": 1}
	]` + "\n```")

	sections := extractSections(context.Background(), llm, "document text", logger.NewNop())

	// Empty-content entries are dropped; missing numbers are filled in.
	require.Len(t, sections, 2)
	assert.Equal(t, "60CC", sections[0].SectionNumber)
	assert.Equal(t, "2", sections[1].SectionNumber)
}

func TestExtractSections_FallsBackOnModelFailure(t *testing.T) {
	llm := failingCompleter(errors.New("model down"))
	text := "Preamble. Section 11 says something. s. 60CC covers the rest."

	sections := extractSections(context.Background(), llm, text, logger.NewNop())

	require.Len(t, sections, 2)
	assert.Equal(t, "11", sections[0].SectionNumber)
	assert.Equal(t, "60CC", sections[1].SectionNumber)
	assert.Contains(t, sections[0].Content, "Section 11 says something")
	assert.Contains(t, sections[1].Content, "s. 60CC covers the rest")
}

func TestExtractSections_FallsBackOnBadJSON(t *testing.T) {
	llm := staticCompleter("I could not parse the document, sorry.")

	sections := extractSections(context.Background(), llm, "Section 5 applies.", logger.NewNop())

	require.Len(t, sections, 1)
	assert.Equal(t, "5", sections[0].SectionNumber)
}

func TestFallbackSections_NoAnchorsYieldsSingleSection(t *testing.T) {
	text := "A plain document with no recognizable legal structure at all."

	sections := fallbackSections(text)

	require.Len(t, sections, 1)
	assert.Equal(t, "1", sections[0].SectionNumber)
	assert.Equal(t, "Document", sections[0].Title)
	assert.Equal(t, text, sections[0].Content)
}

func TestFallbackSections_AnchorsWithSuffixLetters(t *testing.T) {
	text := "Section 11A deals with orders. Section 11B deals with appeals."

	sections := fallbackSections(text)

	require.Len(t, sections, 2)
	assert.Equal(t, "11A", sections[0].SectionNumber)
	assert.Equal(t, "11B", sections[1].SectionNumber)
}
