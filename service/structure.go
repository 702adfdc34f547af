package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"
)

// sectionAnchorRe matches NSW-style section references used by the fallback
// splitter, e.g. "s. 60CC" or "Section 11A".
var sectionAnchorRe = regexp.MustCompile(`(?:s\.|Section)\s*(\d+[A-Z]*)`)

// structurePromptLimit bounds how much document text is sent to the model
const structurePromptLimit = 20000

const structurePrompt = `You are a legal document structure analyzer for NSW (Australia) legislation and case law.

Split the document below into its legal sections. NSW legislation uses Part / Division / Section hierarchy; sections are cited as "s 60CC" or "Section 11A". Case law splits on headings and paragraph numbers.

Return ONLY a JSON array, no other text. Each element:
{
  "section_number": "60CC",
  "title": "Best interests of the child",
  "content": "<the full verbatim text of the section>",
  "level": 1,
  "parent_section": "",
  "act_name": "",
  "normalized_citation": "",
  "cross_references": [],
  "legal_concepts": []
}

DOCUMENT:
%s`

// extractSections asks the model for a structured section list. Any failure
// on the model path (call error, malformed JSON, empty result) enters the
// regex fallback branch rather than aborting the ingestion.
func extractSections(ctx context.Context, llm Completer, text string, log *logger.Logger) []models.LegalSection {
	sections, err := extractSectionsLLM(ctx, llm, text)
	if err != nil {
		log.Warn("structure extraction fell back to anchor splitting", "error", err)
		return fallbackSections(text)
	}
	return sections
}

func extractSectionsLLM(ctx context.Context, llm Completer, text string) ([]models.LegalSection, error) {
	prompt := fmt.Sprintf(structurePrompt, truncate(text, structurePromptLimit))

	result, err := llm.Complete(ctx, openai.CompletionRequest{
		Messages:    []openai.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   4000,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("structure extraction call failed: %w", err)
	}

	raw, err := extractJSONArray(result.Text)
	if err != nil {
		return nil, err
	}

	var sections []models.LegalSection
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil, fmt.Errorf("failed to decode sections: %w", err)
	}

	// Drop empty entries; a model response with no usable content is treated
	// the same as a decode failure.
	valid := sections[:0]
	for _, section := range sections {
		if section.Content == "" {
			continue
		}
		if section.SectionNumber == "" {
			section.SectionNumber = fmt.Sprintf("%d", len(valid)+1)
		}
		valid = append(valid, section)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("model returned no usable sections")
	}

	return valid, nil
}

// fallbackSections splits on section anchors found in the text. Zero anchors
// means the whole document becomes a single section.
func fallbackSections(text string) []models.LegalSection {
	locs := sectionAnchorRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []models.LegalSection{{
			SectionNumber: "1",
			Title:         "Document",
			Content:       text,
			Level:         1,
		}}
	}

	sections := make([]models.LegalSection, 0, len(locs))
	for i, loc := range locs {
		start := loc[0]
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		number := text[loc[2]:loc[3]]
		sections = append(sections, models.LegalSection{
			SectionNumber: number,
			Title:         "Section " + number,
			Content:       text[start:end],
			Level:         1,
		})
	}

	return sections
}
