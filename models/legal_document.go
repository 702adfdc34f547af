package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the lifecycle status of a legal document
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusActive     DocumentStatus = "active"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// LegalDocument represents an ingested legal source document
type LegalDocument struct {
	ID              uuid.UUID      `json:"id"`
	Title           string         `json:"title"`
	DocumentType    string         `json:"document_type"` // "legislation", "case_law", "regulation", "practice_direction"
	Jurisdiction    string         `json:"jurisdiction"`
	SourceURL       *string        `json:"source_url,omitempty"`
	SourceAuthority string         `json:"source_authority"`
	EffectiveDate   *string        `json:"effective_date,omitempty"`
	Checksum        string         `json:"checksum"` // hex SHA-256 of acquired text
	Status          DocumentStatus `json:"status"`
	TotalSections   int            `json:"total_sections"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// LegalSection is produced by structure extraction. Sections are transient
// within an ingestion run; only their chunks and citations are persisted.
type LegalSection struct {
	SectionNumber      string   `json:"section_number"`
	Title              string   `json:"title"`
	Content            string   `json:"content"`
	Level              int      `json:"level"`
	ParentSection      string   `json:"parent_section,omitempty"`
	ActName            string   `json:"act_name,omitempty"`
	Jurisdiction       string   `json:"jurisdiction,omitempty"`
	NormalizedCitation string   `json:"normalized_citation,omitempty"`
	CrossReferences    []string `json:"cross_references,omitempty"`
	LegalConcepts      []string `json:"legal_concepts,omitempty"`
}
