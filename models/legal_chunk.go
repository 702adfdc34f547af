package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChunkMetadata holds free-form per-chunk metadata
type ChunkMetadata map[string]interface{}

// Value implements driver.Valuer for JSONB
func (m ChunkMetadata) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(ChunkMetadata{})
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB
func (m *ChunkMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(ChunkMetadata)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*m = make(ChunkMetadata)
		return nil
	}
	if len(bytes) == 0 {
		*m = make(ChunkMetadata)
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// LegalChunk represents one bounded-length slice of a legal document, the
// unit of embedding and retrieval. Immutable once created. ChunkOrder is
// assigned globally across all sections of a document: strictly increasing
// and gap-free from 0.
type LegalChunk struct {
	ID                 uuid.UUID     `json:"id"`
	DocumentID         uuid.UUID     `json:"document_id"`
	SectionID          string        `json:"section_id"`
	ChunkText          string        `json:"chunk_text"`
	ChunkOrder         int           `json:"chunk_order"`
	Embedding          []float64     `json:"embedding,omitempty"`
	Metadata           ChunkMetadata `json:"metadata,omitempty"`
	CitationReferences []string      `json:"citation_references,omitempty"`
	LegalConcepts      []string      `json:"legal_concepts,omitempty"`
	ConfidenceScore    float64       `json:"confidence_score"`
	CreatedAt          time.Time     `json:"created_at"`
}

// LegalMatch is a similarity-search result from match_legal_chunks
type LegalMatch struct {
	ChunkID      uuid.UUID `json:"chunk_id"`
	DocumentID   uuid.UUID `json:"document_id"`
	SectionID    string    `json:"section_id"`
	Title        string    `json:"title"`
	ChunkText    string    `json:"chunk_text"`
	Jurisdiction string    `json:"jurisdiction"`
	Similarity   float64   `json:"similarity"`
}

// EvidenceMatch is a similarity-search result from match_user_chunks
type EvidenceMatch struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	FileID     uuid.UUID `json:"file_id"`
	Filename   string    `json:"filename"`
	ChunkText  string    `json:"chunk_text"`
	Similarity float64   `json:"similarity"`
}
