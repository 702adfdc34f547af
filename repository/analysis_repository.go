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

// AnalysisRepository handles database operations for comprehensive analyses
// and extracted timeline events
type AnalysisRepository struct {
	db *pgxpool.Pool
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// AnalysisExists reports whether a comprehensive-analysis row exists for a
// file. Analyzed files are skipped on re-runs.
func (r *AnalysisRepository) AnalysisExists(ctx context.Context, fileID uuid.UUID) (bool, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		"SELECT id FROM evidence_comprehensive_analysis WHERE file_id = $1", fileID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check analysis existence: %w", err)
	}
	return true, nil
}

// CreateAnalysis stores one comprehensive analysis row. Rows are never
// updated in place.
func (r *AnalysisRepository) CreateAnalysis(ctx context.Context, analysis *models.ComprehensiveAnalysis) error {
	query := `
		INSERT INTO evidence_comprehensive_analysis (
			file_id, analysis_passes, synthesis, confidence_score, legal_strength,
			case_impact, key_insights, strategic_recommendations,
			evidence_gaps_identified, pattern_connections, timeline_significance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		analysis.FileID,
		analysis.AnalysisPasses,
		analysis.Synthesis,
		analysis.ConfidenceScore,
		analysis.LegalStrength,
		analysis.CaseImpact,
		analysis.KeyInsights,
		analysis.StrategicRecommendations,
		analysis.EvidenceGapsIdentified,
		analysis.PatternConnections,
		analysis.TimelineSignificance,
	).Scan(&analysis.ID, &analysis.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert analysis for file %s: %w", analysis.FileID, err)
	}

	return nil
}

// InsertTimelineEvent stores one extracted timeline event
func (r *AnalysisRepository) InsertTimelineEvent(ctx context.Context, event *models.TimelineEvent) error {
	query := `
		INSERT INTO timeline_events (
			user_id, file_id, event_date, description, significance
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		event.UserID,
		event.FileID,
		event.EventDate,
		event.Description,
		event.Significance,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert timeline event: %w", err)
	}

	return nil
}

// ListRecentTimelineEvents returns the newest timeline events for a user
func (r *AnalysisRepository) ListRecentTimelineEvents(ctx context.Context, userID uuid.UUID, limit int) ([]*models.TimelineEvent, error) {
	query := `
		SELECT id, user_id, file_id, event_date, description, significance, created_at
		FROM timeline_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline events: %w", err)
	}
	defer rows.Close()

	var events []*models.TimelineEvent
	for rows.Next() {
		event := &models.TimelineEvent{}
		err := rows.Scan(
			&event.ID,
			&event.UserID,
			&event.FileID,
			&event.EventDate,
			&event.Description,
			&event.Significance,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
