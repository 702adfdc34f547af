package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LegalDocumentRepository handles database operations for legal documents
type LegalDocumentRepository struct {
	db *pgxpool.Pool
}

// NewLegalDocumentRepository creates a new legal document repository
func NewLegalDocumentRepository(db *pgxpool.Pool) *LegalDocumentRepository {
	return &LegalDocumentRepository{db: db}
}

// Create inserts a new document in processing status
func (r *LegalDocumentRepository) Create(ctx context.Context, doc *models.LegalDocument) error {
	query := `
		INSERT INTO legal_documents (
			title, document_type, jurisdiction, source_url, source_authority,
			effective_date, checksum, status, total_sections
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		doc.Title,
		doc.DocumentType,
		doc.Jurisdiction,
		doc.SourceURL,
		doc.SourceAuthority,
		doc.EffectiveDate,
		doc.Checksum,
		doc.Status,
		doc.TotalSections,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)

	return err
}

// GetByID retrieves a document by ID
func (r *LegalDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LegalDocument, error) {
	doc := &models.LegalDocument{}
	query := `
		SELECT id, title, document_type, jurisdiction, source_url, source_authority,
			effective_date, checksum, status, total_sections, created_at, updated_at
		FROM legal_documents
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.Title,
		&doc.DocumentType,
		&doc.Jurisdiction,
		&doc.SourceURL,
		&doc.SourceAuthority,
		&doc.EffectiveDate,
		&doc.Checksum,
		&doc.Status,
		&doc.TotalSections,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return doc, nil
}

// SetActive flips a document to active once quality validation passes
func (r *LegalDocumentRepository) SetActive(ctx context.Context, id uuid.UUID, totalSections int) error {
	query := `
		UPDATE legal_documents SET
			status = $2,
			total_sections = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.DocumentStatusActive, totalSections)
	return err
}

// MarkFailed flags a document whose ingestion produced no usable chunks
func (r *LegalDocumentRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE legal_documents SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.DocumentStatusFailed)
	return err
}

// formatVector formats an embedding as a pgvector literal for pgx
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(embedding))
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
