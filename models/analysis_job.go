package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisJobStatus represents the status of an orchestrator batch job
type AnalysisJobStatus string

const (
	JobStatusQueued  AnalysisJobStatus = "queued"
	JobStatusRunning AnalysisJobStatus = "running"
	JobStatusDone    AnalysisJobStatus = "done"
	JobStatusFailed  AnalysisJobStatus = "failed"
)

// AnalysisJob is the durable record of one evidence-intelligence batch run.
// It is written before background work starts so crash recovery and client
// polling have an explicit contract.
type AnalysisJob struct {
	ID             uuid.UUID         `json:"id"`
	UserID         uuid.UUID         `json:"user_id"`
	TriggerType    string            `json:"trigger_type"`
	Status         AnalysisJobStatus `json:"status"`
	FilesTotal     int               `json:"files_total"`
	FilesProcessed int               `json:"files_processed"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}
