package repository

import (
	"context"
	"fmt"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LegalChunkRepository handles database operations for legal chunks
type LegalChunkRepository struct {
	db *pgxpool.Pool
}

// NewLegalChunkRepository creates a new legal chunk repository
func NewLegalChunkRepository(db *pgxpool.Pool) *LegalChunkRepository {
	return &LegalChunkRepository{db: db}
}

// Insert stores one chunk with its embedding. Chunks are immutable and have
// no dedup key, so re-ingesting a document creates fresh rows.
func (r *LegalChunkRepository) Insert(ctx context.Context, chunk *models.LegalChunk) error {
	var vectorValue interface{}
	if len(chunk.Embedding) > 0 {
		vectorValue = formatVector(chunk.Embedding)
	}

	query := `
		INSERT INTO legal_chunks (
			document_id, section_id, chunk_text, chunk_order,
			embedding, metadata, citation_references, legal_concepts, confidence_score
		) VALUES ($1, $2, $3, $4, $5::vector, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		chunk.DocumentID,
		chunk.SectionID,
		chunk.ChunkText,
		chunk.ChunkOrder,
		vectorValue,
		chunk.Metadata,
		chunk.CitationReferences,
		chunk.LegalConcepts,
		chunk.ConfidenceScore,
	).Scan(&chunk.ID, &chunk.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkOrder, err)
	}

	return nil
}

// CountByDocument returns the number of stored chunks for a document
func (r *LegalChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM legal_chunks WHERE document_id = $1", documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// MatchLegalChunks runs the match_legal_chunks similarity search over the
// global legal corpus. Threshold and count are passed through; ranking and
// filtering happen inside the database's vector index.
func (r *LegalChunkRepository) MatchLegalChunks(
	ctx context.Context,
	embedding []float64,
	threshold float64,
	count int,
	jurisdiction string,
) ([]models.LegalMatch, error) {
	query := `SELECT chunk_id, document_id, section_id, title, chunk_text, jurisdiction, similarity
		FROM match_legal_chunks($1::vector, $2, $3, $4)`

	rows, err := r.db.Query(ctx, query, formatVector(embedding), threshold, count, jurisdiction)
	if err != nil {
		return nil, fmt.Errorf("failed to query legal chunks: %w", err)
	}
	defer rows.Close()

	var matches []models.LegalMatch
	for rows.Next() {
		var m models.LegalMatch
		err := rows.Scan(
			&m.ChunkID,
			&m.DocumentID,
			&m.SectionID,
			&m.Title,
			&m.ChunkText,
			&m.Jurisdiction,
			&m.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan legal match: %w", err)
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legal matches: %w", err)
	}

	return matches, nil
}
