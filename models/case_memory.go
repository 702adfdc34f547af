package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// KeyFacts holds the durable facts recorded for a user's case
type KeyFacts map[string]interface{}

// Value implements driver.Valuer for JSONB
func (k KeyFacts) Value() (driver.Value, error) {
	if k == nil {
		return json.Marshal(KeyFacts{})
	}
	return json.Marshal(k)
}

// Scan implements sql.Scanner for JSONB
func (k *KeyFacts) Scan(value interface{}) error {
	if value == nil {
		*k = make(KeyFacts)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*k = make(KeyFacts)
		return nil
	}
	if len(bytes) == 0 {
		*k = make(KeyFacts)
		return nil
	}
	return json.Unmarshal(bytes, k)
}

// StageHistory records past stage transitions
type StageHistory []StageTransition

// StageTransition is one recorded stage change
type StageTransition struct {
	Stage     int       `json:"stage"`
	EnteredAt time.Time `json:"entered_at"`
}

// Value implements driver.Valuer for JSONB
func (s StageHistory) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(StageHistory{})
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *StageHistory) Scan(value interface{}) error {
	if value == nil {
		*s = make(StageHistory, 0)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = make(StageHistory, 0)
		return nil
	}
	if len(bytes) == 0 {
		*s = make(StageHistory, 0)
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// CaseMemory is the per-user singleton carrying goals, journey stage, and
// facts used to personalize chat responses. It is updated from multiple
// request paths; Version backs the conditional-update concurrency check so
// concurrent writers retry instead of silently overwriting each other.
type CaseMemory struct {
	UserID                 uuid.UUID    `json:"user_id"`
	PrimaryGoal            string       `json:"primary_goal"`
	CurrentStage           int          `json:"current_stage"` // 1-9
	CaseReadinessStatus    string       `json:"case_readiness_status"`
	KeyFacts               KeyFacts     `json:"key_facts"`
	PersonalizationProfile KeyFacts     `json:"personalization_profile"`
	SessionCount           int          `json:"session_count"`
	StageHistory           StageHistory `json:"stage_history"`
	Version                int          `json:"version"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// NewCaseMemory returns the implicit empty default for a user with no row.
func NewCaseMemory(userID uuid.UUID) *CaseMemory {
	return &CaseMemory{
		UserID:                 userID,
		CurrentStage:           1,
		CaseReadinessStatus:    "getting_started",
		KeyFacts:               make(KeyFacts),
		PersonalizationProfile: make(KeyFacts),
		StageHistory:           make(StageHistory, 0),
	}
}
