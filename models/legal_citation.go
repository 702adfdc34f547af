package models

import (
	"time"

	"github.com/google/uuid"
)

// CitationType classifies a legal citation
type CitationType string

const (
	CitationTypeStatute           CitationType = "statute"
	CitationTypeCaseLaw           CitationType = "case_law"
	CitationTypeRegulation        CitationType = "regulation"
	CitationTypePracticeDirection CitationType = "practice_direction"
	CitationTypeRule              CitationType = "rule"
)

// ValidCitationType reports whether t is one of the allowed citation types.
func ValidCitationType(t string) bool {
	switch CitationType(t) {
	case CitationTypeStatute, CitationTypeCaseLaw, CitationTypeRegulation,
		CitationTypePracticeDirection, CitationTypeRule:
		return true
	}
	return false
}

// LegalCitation represents an extracted citation. Rows are upserted keyed on
// (short_citation, section_id), so re-ingesting a document is idempotent for
// citations. Only candidates with ConfidenceScore > 0.7 are ever persisted.
type LegalCitation struct {
	ID              uuid.UUID    `json:"id"`
	SectionID       string       `json:"section_id"`
	CitationType    CitationType `json:"citation_type"`
	ShortCitation   string       `json:"short_citation"`
	FullCitation    string       `json:"full_citation"`
	NeutralCitation *string      `json:"neutral_citation,omitempty"`
	Court           *string      `json:"court,omitempty"`
	Year            *int         `json:"year,omitempty"`
	Jurisdiction    string       `json:"jurisdiction"`
	ConfidenceScore float64      `json:"confidence_score"`
	URL             *string      `json:"url,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
