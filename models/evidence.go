package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EvidenceStatus represents the processing status of an evidence file
type EvidenceStatus string

const (
	EvidenceStatusUploaded  EvidenceStatus = "uploaded"
	EvidenceStatusProcessed EvidenceStatus = "processed"
)

// EvidenceFile represents a user-uploaded evidence document
type EvidenceFile struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	Size        int64          `json:"size"`
	StoragePath string         `json:"storage_path"`
	Status      EvidenceStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// EvidenceChunk is one embedded slice of an evidence file's text
type EvidenceChunk struct {
	ID         uuid.UUID `json:"id"`
	FileID     uuid.UUID `json:"file_id"`
	UserID     uuid.UUID `json:"user_id"`
	ChunkText  string    `json:"chunk_text"`
	ChunkOrder int       `json:"chunk_order"`
	Embedding  []float64 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// LensResult is the outcome of one analytical lens over an evidence file.
// A failed lens carries Error instead of Findings; synthesis proceeds with
// whatever succeeded.
type LensResult struct {
	Lens     string `json:"lens"`
	Findings string `json:"findings,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AnalysisPasses is the ordered list of lens results for one file
type AnalysisPasses []LensResult

// Value implements driver.Valuer for JSONB
func (a AnalysisPasses) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for JSONB
func (a *AnalysisPasses) Scan(value interface{}) error {
	if value == nil {
		*a = make(AnalysisPasses, 0)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*a = make(AnalysisPasses, 0)
		return nil
	}
	if len(bytes) == 0 {
		*a = make(AnalysisPasses, 0)
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// ComprehensiveAnalysis is the synthesized result of the five lens analyses
// for one evidence file. One row per file; re-running the orchestrator skips
// files that already have a row.
type ComprehensiveAnalysis struct {
	ID                       uuid.UUID      `json:"id"`
	FileID                   uuid.UUID      `json:"file_id"`
	AnalysisPasses           AnalysisPasses `json:"analysis_passes"`
	Synthesis                string         `json:"synthesis"`
	ConfidenceScore          float64        `json:"confidence_score"`
	LegalStrength            int            `json:"legal_strength"` // 0-100
	CaseImpact               string         `json:"case_impact"`
	KeyInsights              []string       `json:"key_insights"`
	StrategicRecommendations []string       `json:"strategic_recommendations"`
	EvidenceGapsIdentified   []string       `json:"evidence_gaps_identified"`
	PatternConnections       []string       `json:"pattern_connections"`
	TimelineSignificance     string         `json:"timeline_significance"`
	CreatedAt                time.Time      `json:"created_at"`
}

// TimelineEvent is a dated event extracted from an evidence file
type TimelineEvent struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	FileID       uuid.UUID `json:"file_id"`
	EventDate    string    `json:"event_date"`
	Description  string    `json:"description"`
	Significance string    `json:"significance"`
	CreatedAt    time.Time `json:"created_at"`
}
