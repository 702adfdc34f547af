package repository

import (
	"context"
	"fmt"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EvidenceRepository handles database operations for evidence files and
// their embedded chunks
type EvidenceRepository struct {
	db *pgxpool.Pool
}

// NewEvidenceRepository creates a new evidence repository
func NewEvidenceRepository(db *pgxpool.Pool) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// CreateFile creates a new evidence file record
func (r *EvidenceRepository) CreateFile(ctx context.Context, file *models.EvidenceFile) error {
	query := `
		INSERT INTO evidence_files (
			user_id, filename, mime_type, size, storage_path, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		file.UserID,
		file.Filename,
		file.MimeType,
		file.Size,
		file.StoragePath,
		file.Status,
	).Scan(&file.ID, &file.CreatedAt)

	return err
}

// GetFileByID retrieves an evidence file by ID
func (r *EvidenceRepository) GetFileByID(ctx context.Context, id uuid.UUID) (*models.EvidenceFile, error) {
	file := &models.EvidenceFile{}
	query := `
		SELECT id, user_id, filename, mime_type, size, storage_path, status, created_at
		FROM evidence_files
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&file.ID,
		&file.UserID,
		&file.Filename,
		&file.MimeType,
		&file.Size,
		&file.StoragePath,
		&file.Status,
		&file.CreatedAt,
	)

	if err != nil {
		return nil, err
	}

	return file, nil
}

// ListFilesByUser retrieves all evidence files for a user
func (r *EvidenceRepository) ListFilesByUser(ctx context.Context, userID uuid.UUID) ([]*models.EvidenceFile, error) {
	query := `
		SELECT id, user_id, filename, mime_type, size, storage_path, status, created_at
		FROM evidence_files
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.EvidenceFile
	for rows.Next() {
		file := &models.EvidenceFile{}
		err := rows.Scan(
			&file.ID,
			&file.UserID,
			&file.Filename,
			&file.MimeType,
			&file.Size,
			&file.StoragePath,
			&file.Status,
			&file.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	return files, rows.Err()
}

// ListUnanalyzedFiles returns processed files that have no comprehensive
// analysis row yet. The absence of a row is the resumption marker the next
// orchestrator trigger picks up after a crash. When fileID is non-nil only
// that file is considered.
func (r *EvidenceRepository) ListUnanalyzedFiles(ctx context.Context, userID uuid.UUID, fileID *uuid.UUID) ([]*models.EvidenceFile, error) {
	query := `
		SELECT f.id, f.user_id, f.filename, f.mime_type, f.size, f.storage_path, f.status, f.created_at
		FROM evidence_files f
		LEFT JOIN evidence_comprehensive_analysis a ON a.file_id = f.id
		WHERE f.user_id = $1
			AND f.status = 'processed'
			AND a.id IS NULL
			AND ($2::uuid IS NULL OR f.id = $2)
		ORDER BY f.created_at ASC`

	rows, err := r.db.Query(ctx, query, userID, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanalyzed files: %w", err)
	}
	defer rows.Close()

	var files []*models.EvidenceFile
	for rows.Next() {
		file := &models.EvidenceFile{}
		err := rows.Scan(
			&file.ID,
			&file.UserID,
			&file.Filename,
			&file.MimeType,
			&file.Size,
			&file.StoragePath,
			&file.Status,
			&file.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence file: %w", err)
		}
		files = append(files, file)
	}

	return files, rows.Err()
}

// UpdateFileStatus updates the processing status of an evidence file
func (r *EvidenceRepository) UpdateFileStatus(ctx context.Context, id uuid.UUID, status models.EvidenceStatus) error {
	_, err := r.db.Exec(ctx,
		"UPDATE evidence_files SET status = $2 WHERE id = $1", id, status)
	return err
}

// InsertChunk stores one embedded evidence chunk
func (r *EvidenceRepository) InsertChunk(ctx context.Context, chunk *models.EvidenceChunk) error {
	var vectorValue interface{}
	if len(chunk.Embedding) > 0 {
		vectorValue = formatVector(chunk.Embedding)
	}

	query := `
		INSERT INTO evidence_chunks (
			file_id, user_id, chunk_text, chunk_order, embedding
		) VALUES ($1, $2, $3, $4, $5::vector)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		chunk.FileID,
		chunk.UserID,
		chunk.ChunkText,
		chunk.ChunkOrder,
		vectorValue,
	).Scan(&chunk.ID, &chunk.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert evidence chunk %d: %w", chunk.ChunkOrder, err)
	}

	return nil
}

// ChunkTextByFile returns the concatenated chunk text of a file in order,
// used as the analysis input for the intelligence lenses.
func (r *EvidenceRepository) ChunkTextByFile(ctx context.Context, fileID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx,
		"SELECT chunk_text FROM evidence_chunks WHERE file_id = $1 ORDER BY chunk_order ASC", fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence chunks: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan evidence chunk: %w", err)
		}
		texts = append(texts, text)
	}

	return texts, rows.Err()
}

// MatchUserChunks runs the match_user_chunks similarity search scoped to one
// user's evidence.
func (r *EvidenceRepository) MatchUserChunks(
	ctx context.Context,
	embedding []float64,
	threshold float64,
	count int,
	userID uuid.UUID,
) ([]models.EvidenceMatch, error) {
	query := `SELECT chunk_id, file_id, filename, chunk_text, similarity
		FROM match_user_chunks($1::vector, $2, $3, $4)`

	rows, err := r.db.Query(ctx, query, formatVector(embedding), threshold, count, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user chunks: %w", err)
	}
	defer rows.Close()

	var matches []models.EvidenceMatch
	for rows.Next() {
		var m models.EvidenceMatch
		err := rows.Scan(
			&m.ChunkID,
			&m.FileID,
			&m.Filename,
			&m.ChunkText,
			&m.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evidence match: %w", err)
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evidence matches: %w", err)
	}

	return matches, nil
}
