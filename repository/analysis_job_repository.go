package repository

import (
	"context"
	"time"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalysisJobRepository handles database operations for orchestrator batch
// jobs. The job row is written before background work starts so polling
// clients have an explicit status contract.
type AnalysisJobRepository struct {
	db *pgxpool.Pool
}

// NewAnalysisJobRepository creates a new analysis job repository
func NewAnalysisJobRepository(db *pgxpool.Pool) *AnalysisJobRepository {
	return &AnalysisJobRepository{db: db}
}

// Create creates a new analysis job in queued status
func (r *AnalysisJobRepository) Create(ctx context.Context, job *models.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (
			user_id, trigger_type, status, files_total, files_processed, error_message
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		job.UserID,
		job.TriggerType,
		job.Status,
		job.FilesTotal,
		job.FilesProcessed,
		job.ErrorMessage,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	return err
}

// GetByID retrieves an analysis job by ID
func (r *AnalysisJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	job := &models.AnalysisJob{}
	query := `
		SELECT id, user_id, trigger_type, status, files_total, files_processed,
			error_message, created_at, updated_at, completed_at
		FROM analysis_jobs
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.UserID,
		&job.TriggerType,
		&job.Status,
		&job.FilesTotal,
		&job.FilesProcessed,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)

	if err != nil {
		return nil, err
	}

	return job, nil
}

// MarkRunning flips a job to running
func (r *AnalysisJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE analysis_jobs SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusRunning)
	return err
}

// UpdateProgress records how many files have been processed so far
func (r *AnalysisJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, filesProcessed int) error {
	query := `
		UPDATE analysis_jobs SET
			files_processed = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, filesProcessed)
	return err
}

// Complete marks a job as done
func (r *AnalysisJobRepository) Complete(ctx context.Context, id uuid.UUID, filesProcessed int) error {
	now := time.Now()
	query := `
		UPDATE analysis_jobs SET
			status = $2,
			files_processed = $3,
			completed_at = $4,
			updated_at = $4
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusDone, filesProcessed, now)
	return err
}

// Fail marks a job as failed with an error message
func (r *AnalysisJobRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE analysis_jobs SET
			status = $2,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusFailed, errorMessage)
	return err
}
