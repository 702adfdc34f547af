package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned when a conditional case-memory update lost
// the race against another writer. Callers reload and retry.
var ErrVersionConflict = errors.New("case memory version conflict")

// CaseMemoryRepository handles the per-user case memory singleton
type CaseMemoryRepository struct {
	db *pgxpool.Pool
}

// NewCaseMemoryRepository creates a new case memory repository
func NewCaseMemoryRepository(db *pgxpool.Pool) *CaseMemoryRepository {
	return &CaseMemoryRepository{db: db}
}

// Get loads a user's case memory, or nil when no row exists yet. Callers
// fall back to models.NewCaseMemory for the implicit default.
func (r *CaseMemoryRepository) Get(ctx context.Context, userID uuid.UUID) (*models.CaseMemory, error) {
	memory := &models.CaseMemory{}
	query := `
		SELECT user_id, primary_goal, current_stage, case_readiness_status,
			key_facts, personalization_profile, session_count, stage_history,
			version, updated_at
		FROM case_memory
		WHERE user_id = $1`

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&memory.UserID,
		&memory.PrimaryGoal,
		&memory.CurrentStage,
		&memory.CaseReadinessStatus,
		&memory.KeyFacts,
		&memory.PersonalizationProfile,
		&memory.SessionCount,
		&memory.StageHistory,
		&memory.Version,
		&memory.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case memory: %w", err)
	}

	return memory, nil
}

// Insert creates the first case memory row for a user
func (r *CaseMemoryRepository) Insert(ctx context.Context, memory *models.CaseMemory) error {
	query := `
		INSERT INTO case_memory (
			user_id, primary_goal, current_stage, case_readiness_status,
			key_facts, personalization_profile, session_count, stage_history, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)`

	_, err := r.db.Exec(
		ctx, query,
		memory.UserID,
		memory.PrimaryGoal,
		memory.CurrentStage,
		memory.CaseReadinessStatus,
		memory.KeyFacts,
		memory.PersonalizationProfile,
		memory.SessionCount,
		memory.StageHistory,
	)
	if err != nil {
		return fmt.Errorf("failed to insert case memory: %w", err)
	}

	memory.Version = 1
	return nil
}

// UpdateConditional writes memory only if the stored version still matches
// memory.Version. On success the version is bumped; on a lost race it
// returns ErrVersionConflict so the caller can reload and retry instead of
// overwriting another writer blindly.
func (r *CaseMemoryRepository) UpdateConditional(ctx context.Context, memory *models.CaseMemory) error {
	query := `
		UPDATE case_memory SET
			primary_goal = $2,
			current_stage = $3,
			case_readiness_status = $4,
			key_facts = $5,
			personalization_profile = $6,
			session_count = $7,
			stage_history = $8,
			version = version + 1,
			updated_at = NOW()
		WHERE user_id = $1 AND version = $9`

	tag, err := r.db.Exec(
		ctx, query,
		memory.UserID,
		memory.PrimaryGoal,
		memory.CurrentStage,
		memory.CaseReadinessStatus,
		memory.KeyFacts,
		memory.PersonalizationProfile,
		memory.SessionCount,
		memory.StageHistory,
		memory.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update case memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	memory.Version++
	return nil
}
