package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/storage"

	"github.com/google/uuid"
)

const evidenceChunkSize = 1000

type evidenceFileStore interface {
	CreateFile(ctx context.Context, file *models.EvidenceFile) error
	ListFilesByUser(ctx context.Context, userID uuid.UUID) ([]*models.EvidenceFile, error)
	UpdateFileStatus(ctx context.Context, id uuid.UUID, status models.EvidenceStatus) error
	InsertChunk(ctx context.Context, chunk *models.EvidenceChunk) error
}

// EvidenceService stores uploaded evidence and prepares it for retrieval:
// text extraction, chunking, and embedding. Files that fail processing stay
// in uploaded status and are retried on the next upload of the same content
// by the user re-uploading.
type EvidenceService struct {
	evidenceRepo evidenceFileStore
	store        storage.Storage
	pdf          PDFExtractor
	embedder     Embedder
	log          *logger.Logger
}

// EvidenceOption is a functional option for EvidenceService
type EvidenceOption func(*EvidenceService)

// EvidenceWithRepository sets the evidence repository
func EvidenceWithRepository(repo evidenceFileStore) EvidenceOption {
	return func(s *EvidenceService) {
		s.evidenceRepo = repo
	}
}

// EvidenceWithStorage sets the blob store
func EvidenceWithStorage(store storage.Storage) EvidenceOption {
	return func(s *EvidenceService) {
		s.store = store
	}
}

// EvidenceWithPDFExtractor sets the PDF text extractor
func EvidenceWithPDFExtractor(pdf PDFExtractor) EvidenceOption {
	return func(s *EvidenceService) {
		s.pdf = pdf
	}
}

// EvidenceWithEmbedder sets the embedding client
func EvidenceWithEmbedder(e Embedder) EvidenceOption {
	return func(s *EvidenceService) {
		s.embedder = e
	}
}

// EvidenceWithLogger sets the logger
func EvidenceWithLogger(log *logger.Logger) EvidenceOption {
	return func(s *EvidenceService) {
		s.log = log
	}
}

// NewEvidenceService creates a new evidence service
func NewEvidenceService(opts ...EvidenceOption) *EvidenceService {
	s := &EvidenceService{
		pdf: FitzExtractor{},
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload stores the file, records it, and processes it into embedded chunks.
// Processing failure leaves the row in uploaded status; the file is simply
// invisible to retrieval and the orchestrator until processed.
func (s *EvidenceService) Upload(ctx context.Context, userID uuid.UUID, filename, mimeType string, reader io.Reader) (*models.EvidenceFile, error) {
	if s.evidenceRepo == nil {
		return nil, errors.New("evidence repository not set")
	}
	if s.store == nil {
		return nil, errors.New("storage not set")
	}
	if s.embedder == nil {
		return nil, errors.New("embedding client not set")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}

	storagePath, err := s.store.Upload(ctx, uuid.New(), filename, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	file := &models.EvidenceFile{
		UserID:      userID,
		Filename:    filename,
		MimeType:    mimeType,
		Size:        int64(len(data)),
		StoragePath: storagePath,
		Status:      models.EvidenceStatusUploaded,
	}
	if err := s.evidenceRepo.CreateFile(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	if err := s.process(ctx, file, data); err != nil {
		s.log.Warn("evidence processing failed, file left in uploaded status",
			"file_id", file.ID, "error", err)
		return file, nil
	}

	return file, nil
}

// List returns a user's evidence files
func (s *EvidenceService) List(ctx context.Context, userID uuid.UUID) ([]*models.EvidenceFile, error) {
	if s.evidenceRepo == nil {
		return nil, errors.New("evidence repository not set")
	}
	return s.evidenceRepo.ListFilesByUser(ctx, userID)
}

// process extracts text, chunks it, embeds each chunk, and flips the file to
// processed. Magic bytes decide PDF handling; the extension is ignored.
func (s *EvidenceService) process(ctx context.Context, file *models.EvidenceFile, data []byte) error {
	var text string
	if bytes.HasPrefix(data, pdfMagic) {
		extracted, err := s.pdf.ExtractText(data)
		if err != nil {
			return fmt.Errorf("failed to extract pdf text: %w", err)
		}
		text = extracted
	} else {
		text = string(data)
	}
	if len(bytes.TrimSpace([]byte(text))) == 0 {
		return errors.New("no extractable text")
	}

	stored := 0
	for order, piece := range fixedWidthSlices(text, evidenceChunkSize) {
		embedding, err := s.embedder.Embed(ctx, piece)
		if err != nil {
			s.log.Warn("evidence embedding failed, skipping chunk",
				"file_id", file.ID, "chunk_order", order, "error", err)
			continue
		}
		chunk := &models.EvidenceChunk{
			FileID:     file.ID,
			UserID:     file.UserID,
			ChunkText:  piece,
			ChunkOrder: order,
			Embedding:  embedding.Vector,
		}
		if err := s.evidenceRepo.InsertChunk(ctx, chunk); err != nil {
			s.log.Warn("evidence chunk insert failed",
				"file_id", file.ID, "chunk_order", order, "error", err)
			continue
		}
		stored++
	}
	if stored == 0 {
		return errors.New("no chunks stored")
	}

	if err := s.evidenceRepo.UpdateFileStatus(ctx, file.ID, models.EvidenceStatusProcessed); err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}
	file.Status = models.EvidenceStatusProcessed

	return nil
}
