package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"

	"github.com/google/uuid"
)

const (
	// citationConfidenceThreshold gates persistence: candidates at or below
	// it are silently dropped.
	citationConfidenceThreshold = 0.7

	// conceptChunkLimit caps concept identification to the first chunks of a
	// document. Longer documents get no additional concept coverage.
	conceptChunkLimit = 5

	citationPromptLimit = 4000
)

var ErrNoChunksStored = errors.New("ingestion produced no stored chunks")

// contentAcquirer is the acquisition surface the ingestion service depends on
type contentAcquirer interface {
	Acquire(ctx context.Context, req *IngestionRequest) (string, error)
}

type documentStore interface {
	Create(ctx context.Context, doc *models.LegalDocument) error
	SetActive(ctx context.Context, id uuid.UUID, totalSections int) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type chunkStore interface {
	Insert(ctx context.Context, chunk *models.LegalChunk) error
	CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
}

type citationStore interface {
	Upsert(ctx context.Context, citation *models.LegalCitation) error
}

// DocumentMetadata describes the document being ingested
type DocumentMetadata struct {
	Title           string  `json:"title"`
	DocumentType    string  `json:"document_type"`
	Jurisdiction    string  `json:"jurisdiction"`
	SourceAuthority string  `json:"source_authority,omitempty"`
	EffectiveDate   *string `json:"effective_date,omitempty"`
}

// IngestionRequest is the body of POST /functions/nsw-legal-ingestor
type IngestionRequest struct {
	SourceType  string           `json:"source_type"` // "url", "file", "manual"
	SourceURL   *string          `json:"source_url,omitempty"`
	Content     string           `json:"content,omitempty"`
	FilePath    string           `json:"file_path,omitempty"`
	Metadata    DocumentMetadata `json:"metadata"`
	ChunkConfig *ChunkConfig     `json:"chunk_config,omitempty"`
}

// IngestionResult is the response body
type IngestionResult struct {
	DocumentID              uuid.UUID `json:"document_id"`
	ChunksCreated           int       `json:"chunks_created"`
	CitationsExtracted      int       `json:"citations_extracted"`
	LegalConceptsIdentified int       `json:"legal_concepts_identified"`
	Status                  string    `json:"status"`
}

// IngestionService runs the full pipeline: acquire, structure, chunk, extract
// citations and concepts, embed, store, validate.
type IngestionService struct {
	acquirer     contentAcquirer
	docRepo      documentStore
	chunkRepo    chunkStore
	citationRepo citationStore
	llm          Completer
	embedder     Embedder
	log          *logger.Logger
}

// IngestionOption is a functional option for IngestionService
type IngestionOption func(*IngestionService)

// IngestionWithAcquirer sets the content acquirer
func IngestionWithAcquirer(a contentAcquirer) IngestionOption {
	return func(s *IngestionService) {
		s.acquirer = a
	}
}

// IngestionWithDocumentRepository sets the document repository
func IngestionWithDocumentRepository(repo documentStore) IngestionOption {
	return func(s *IngestionService) {
		s.docRepo = repo
	}
}

// IngestionWithChunkRepository sets the chunk repository
func IngestionWithChunkRepository(repo chunkStore) IngestionOption {
	return func(s *IngestionService) {
		s.chunkRepo = repo
	}
}

// IngestionWithCitationRepository sets the citation repository
func IngestionWithCitationRepository(repo citationStore) IngestionOption {
	return func(s *IngestionService) {
		s.citationRepo = repo
	}
}

// IngestionWithCompleter sets the chat-completion client
func IngestionWithCompleter(llm Completer) IngestionOption {
	return func(s *IngestionService) {
		s.llm = llm
	}
}

// IngestionWithEmbedder sets the embedding client
func IngestionWithEmbedder(e Embedder) IngestionOption {
	return func(s *IngestionService) {
		s.embedder = e
	}
}

// IngestionWithLogger sets the logger
func IngestionWithLogger(log *logger.Logger) IngestionOption {
	return func(s *IngestionService) {
		s.log = log
	}
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(opts ...IngestionOption) *IngestionService {
	s := &IngestionService{
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest runs the pipeline for one request. Acquisition and persistence
// errors are fatal; per-chunk extraction and embedding failures degrade the
// result (lower counts) without aborting.
func (s *IngestionService) Ingest(ctx context.Context, req IngestionRequest) (*IngestionResult, error) {
	if s.acquirer == nil {
		return nil, errors.New("acquirer not set")
	}
	if s.docRepo == nil {
		return nil, errors.New("document repository not set")
	}
	if s.chunkRepo == nil {
		return nil, errors.New("chunk repository not set")
	}
	if s.citationRepo == nil {
		return nil, errors.New("citation repository not set")
	}
	if s.llm == nil {
		return nil, errors.New("completion client not set")
	}
	if s.embedder == nil {
		return nil, errors.New("embedding client not set")
	}

	// 1. Acquire. Runs before any row is written so a compliance rejection
	// leaves no document behind.
	content, err := s.acquirer.Acquire(ctx, &req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	// 2. Create the document in processing status.
	checksum := sha256.Sum256([]byte(content))
	doc := &models.LegalDocument{
		Title:           req.Metadata.Title,
		DocumentType:    req.Metadata.DocumentType,
		Jurisdiction:    req.Metadata.Jurisdiction,
		SourceURL:       req.SourceURL,
		SourceAuthority: req.Metadata.SourceAuthority,
		EffectiveDate:   req.Metadata.EffectiveDate,
		Checksum:        hex.EncodeToString(checksum[:]),
		Status:          models.DocumentStatusProcessing,
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	// 3. Structure + chunking, both with internal fallback branches.
	sections := extractSections(ctx, s.llm, content, s.log)

	cfg := ChunkConfig{}
	if req.ChunkConfig != nil {
		cfg = *req.ChunkConfig
	}
	chunks := chunkSections(ctx, s.llm, sections, cfg, s.log)

	// 4. Citations per chunk. Only candidates above the confidence threshold
	// are persisted; the upsert key makes re-ingestion idempotent here even
	// though chunk rows duplicate.
	citationsExtracted := 0
	for i := range chunks {
		candidates := s.extractCitations(ctx, &chunks[i], req.Metadata.Jurisdiction)
		var refs []string
		for _, citation := range candidates {
			if citation.ConfidenceScore <= citationConfidenceThreshold {
				continue
			}
			if err := s.citationRepo.Upsert(ctx, citation); err != nil {
				s.log.Warn("citation upsert failed", "citation", citation.ShortCitation, "error", err)
				continue
			}
			citationsExtracted++
			refs = append(refs, citation.ShortCitation)
		}
		chunks[i].CitationReferences = refs
	}

	// 5. Concepts over the leading chunks only.
	concepts := s.identifyConcepts(ctx, chunks)

	// 6. Embed and store sequentially. A failed embedding skips that chunk;
	// the caller sees only a lower chunks_created.
	stored := 0
	for i := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunks[i].ChunkText)
		if err != nil {
			s.log.Warn("embedding failed, skipping chunk", "chunk_order", chunks[i].ChunkOrder, "error", err)
			continue
		}
		chunks[i].DocumentID = doc.ID
		chunks[i].Embedding = embedding.Vector
		chunks[i].Metadata = models.ChunkMetadata{"embedding_model": embedding.Model}
		if err := s.chunkRepo.Insert(ctx, &chunks[i]); err != nil {
			s.log.Warn("chunk insert failed", "chunk_order", chunks[i].ChunkOrder, "error", err)
			continue
		}
		stored++
	}

	// 7. Quality validation: a non-zero stored count activates the document.
	count, err := s.chunkRepo.CountByDocument(ctx, doc.ID)
	if err != nil {
		s.log.Warn("chunk count failed, using in-run count", "error", err)
		count = stored
	}
	if count == 0 {
		if err := s.docRepo.MarkFailed(ctx, doc.ID); err != nil {
			s.log.Warn("failed to mark document failed", "document_id", doc.ID, "error", err)
		}
		return nil, ErrNoChunksStored
	}
	if err := s.docRepo.SetActive(ctx, doc.ID, len(sections)); err != nil {
		return nil, fmt.Errorf("failed to activate document: %w", err)
	}

	return &IngestionResult{
		DocumentID:              doc.ID,
		ChunksCreated:           stored,
		CitationsExtracted:      citationsExtracted,
		LegalConceptsIdentified: len(concepts),
		Status:                  "completed",
	}, nil
}

const citationPrompt = `Extract every legal citation from the NSW legal text below. Citation types: statute, case_law, regulation, practice_direction, rule.

Return ONLY a JSON array. Each element:
{
  "citation_type": "statute",
  "short_citation": "s 60CC",
  "full_citation": "Family Law Act 1975 (Cth) s 60CC",
  "neutral_citation": null,
  "court": null,
  "year": 1975,
  "jurisdiction": "NSW",
  "confidence_score": 0.95,
  "url": null
}

Return [] if there are no citations.

TEXT:
%s`

type citationCandidate struct {
	CitationType    string  `json:"citation_type"`
	ShortCitation   string  `json:"short_citation"`
	FullCitation    string  `json:"full_citation"`
	NeutralCitation *string `json:"neutral_citation"`
	Court           *string `json:"court"`
	Year            *int    `json:"year"`
	Jurisdiction    string  `json:"jurisdiction"`
	ConfidenceScore float64 `json:"confidence_score"`
	URL             *string `json:"url"`
}

// extractCitations runs one extraction call for a chunk. Any failure returns
// an empty list; extraction is best effort.
func (s *IngestionService) extractCitations(ctx context.Context, chunk *models.LegalChunk, jurisdiction string) []*models.LegalCitation {
	prompt := fmt.Sprintf(citationPrompt, truncate(chunk.ChunkText, citationPromptLimit))

	result, err := s.llm.Complete(ctx, openai.CompletionRequest{
		Messages:    []openai.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   1500,
		Temperature: 0.1,
	})
	if err != nil {
		s.log.Warn("citation extraction failed", "chunk_order", chunk.ChunkOrder, "error", err)
		return nil
	}

	raw, err := extractJSONArray(result.Text)
	if err != nil {
		s.log.Warn("citation extraction returned no JSON", "chunk_order", chunk.ChunkOrder, "error", err)
		return nil
	}

	var candidates []citationCandidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		s.log.Warn("citation decode failed", "chunk_order", chunk.ChunkOrder, "error", err)
		return nil
	}

	var citations []*models.LegalCitation
	for _, c := range candidates {
		if c.ShortCitation == "" || !models.ValidCitationType(c.CitationType) {
			continue
		}
		if c.Jurisdiction == "" {
			c.Jurisdiction = jurisdiction
		}
		citations = append(citations, &models.LegalCitation{
			SectionID:       chunk.SectionID,
			CitationType:    models.CitationType(c.CitationType),
			ShortCitation:   c.ShortCitation,
			FullCitation:    c.FullCitation,
			NeutralCitation: c.NeutralCitation,
			Court:           c.Court,
			Year:            c.Year,
			Jurisdiction:    c.Jurisdiction,
			ConfidenceScore: c.ConfidenceScore,
			URL:             c.URL,
		})
	}

	return citations
}

const conceptPrompt = `Identify the distinct legal concepts in the NSW legal text below (e.g. "best interests of the child", "apprehended violence order", "parental responsibility").

Return ONLY a JSON array of strings.

TEXT:
%s`

// identifyConcepts runs one call over the first chunks of the document.
// Failure yields an empty list.
func (s *IngestionService) identifyConcepts(ctx context.Context, chunks []models.LegalChunk) []string {
	if len(chunks) == 0 {
		return nil
	}

	limit := conceptChunkLimit
	if len(chunks) < limit {
		limit = len(chunks)
	}
	var texts []string
	for _, chunk := range chunks[:limit] {
		texts = append(texts, chunk.ChunkText)
	}

	prompt := fmt.Sprintf(conceptPrompt, truncate(strings.Join(texts, "\n\n"), citationPromptLimit))

	result, err := s.llm.Complete(ctx, openai.CompletionRequest{
		Messages:    []openai.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   800,
		Temperature: 0.1,
	})
	if err != nil {
		s.log.Warn("concept identification failed", "error", err)
		return nil
	}

	raw, err := extractJSONArray(result.Text)
	if err != nil {
		s.log.Warn("concept identification returned no JSON", "error", err)
		return nil
	}

	var concepts []string
	if err := json.Unmarshal([]byte(raw), &concepts); err != nil {
		s.log.Warn("concept decode failed", "error", err)
		return nil
	}

	// Dedup, preserving order.
	seen := make(map[string]bool)
	unique := concepts[:0]
	for _, concept := range concepts {
		key := strings.ToLower(strings.TrimSpace(concept))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, concept)
	}

	return unique
}
