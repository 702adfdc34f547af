package repository

import (
	"context"
	"fmt"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LegalCitationRepository handles database operations for legal citations
type LegalCitationRepository struct {
	db *pgxpool.Pool
}

// NewLegalCitationRepository creates a new legal citation repository
func NewLegalCitationRepository(db *pgxpool.Pool) *LegalCitationRepository {
	return &LegalCitationRepository{db: db}
}

// Upsert inserts a citation or refreshes an existing one. The conflict key
// (short_citation, section_id) makes re-ingestion idempotent for citations.
func (r *LegalCitationRepository) Upsert(ctx context.Context, citation *models.LegalCitation) error {
	query := `
		INSERT INTO legal_citations (
			section_id, citation_type, short_citation, full_citation,
			neutral_citation, court, year, jurisdiction, confidence_score, url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (short_citation, section_id) DO UPDATE SET
			citation_type = EXCLUDED.citation_type,
			full_citation = EXCLUDED.full_citation,
			neutral_citation = EXCLUDED.neutral_citation,
			court = EXCLUDED.court,
			year = EXCLUDED.year,
			jurisdiction = EXCLUDED.jurisdiction,
			confidence_score = EXCLUDED.confidence_score,
			url = EXCLUDED.url
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		citation.SectionID,
		citation.CitationType,
		citation.ShortCitation,
		citation.FullCitation,
		citation.NeutralCitation,
		citation.Court,
		citation.Year,
		citation.Jurisdiction,
		citation.ConfidenceScore,
		citation.URL,
	).Scan(&citation.ID, &citation.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert citation %q: %w", citation.ShortCitation, err)
	}

	return nil
}
