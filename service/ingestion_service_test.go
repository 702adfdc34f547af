package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ingestionHarness wires an IngestionService over fakes with a scripted model
type ingestionHarness struct {
	svc       *IngestionService
	docs      *fakeDocStore
	chunks    *fakeChunkStore
	citations *fakeCitationStore
	llm       *routedCompleter
}

func newIngestionHarness(content string, embedder Embedder) *ingestionHarness {
	h := &ingestionHarness{
		docs:      newFakeDocStore(),
		chunks:    &fakeChunkStore{},
		citations: &fakeCitationStore{},
		llm:       newRoutedCompleter(),
	}
	// Default script: two sections, no citations, no concepts.
	h.llm.on("structure analyzer", `[
		{"section_number": "60CC", "title": "Best interests", "content": "The court must consider the child's best interests.", "level": 1},
		{"section_number": "61DA", "title": "Parental responsibility", "content": "Equal shared parental responsibility is presumed.", "level": 1}
	]`)
	h.llm.on("Extract every legal citation", "[]")
	h.llm.on("legal concepts", "[]")

	h.svc = NewIngestionService(
		IngestionWithAcquirer(&fakeAcquirer{content: content}),
		IngestionWithDocumentRepository(h.docs),
		IngestionWithChunkRepository(h.chunks),
		IngestionWithCitationRepository(h.citations),
		IngestionWithCompleter(h.llm),
		IngestionWithEmbedder(embedder),
	)
	return h
}

func manualRequest() IngestionRequest {
	return IngestionRequest{
		SourceType: "manual",
		Content:    "ignored, the fake acquirer answers",
		Metadata: DocumentMetadata{
			Title:        "Family Law Act 1975",
			DocumentType: "legislation",
			Jurisdiction: "NSW",
		},
	}
}

func TestIngest_ComplianceFailureLeavesNoDocument(t *testing.T) {
	docs := newFakeDocStore()
	svc := NewIngestionService(
		IngestionWithAcquirer(&fakeAcquirer{err: ErrCompliance}),
		IngestionWithDocumentRepository(docs),
		IngestionWithChunkRepository(&fakeChunkStore{}),
		IngestionWithCitationRepository(&fakeCitationStore{}),
		IngestionWithCompleter(staticCompleter("[]")),
		IngestionWithEmbedder(staticEmbedder([]float64{0.1})),
	)

	_, err := svc.Ingest(context.Background(), manualRequest())

	assert.ErrorIs(t, err, ErrCompliance)
	// Acquisition runs before document creation, so nothing was written.
	assert.Empty(t, docs.created)
}

func TestIngest_ChecksumIsSHA256OfAcquiredText(t *testing.T) {
	content := "The court must consider the child's best interests."
	h := newIngestionHarness(content, staticEmbedder([]float64{0.1, 0.2}))

	result, err := h.svc.Ingest(context.Background(), manualRequest())
	require.NoError(t, err)
	require.Len(t, h.docs.created, 1)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), h.docs.created[0].Checksum)
	assert.Equal(t, "completed", result.Status)
}

func TestIngest_CitationConfidenceGate(t *testing.T) {
	h := newIngestionHarness("some act text", staticEmbedder([]float64{0.1}))
	h.llm.on("Extract every legal citation", `[
		{"citation_type": "statute", "short_citation": "s 60CC", "full_citation": "Family Law Act 1975 (Cth) s 60CC", "confidence_score": 0.95},
		{"citation_type": "statute", "short_citation": "s 61DA", "full_citation": "Family Law Act 1975 (Cth) s 61DA", "confidence_score": 0.7},
		{"citation_type": "case_law", "short_citation": "Rice v Asplund", "full_citation": "Rice v Asplund (1979)", "confidence_score": 0.3},
		{"citation_type": "folklore", "short_citation": "s 999", "full_citation": "not a real type", "confidence_score": 0.99}
	]`)

	result, err := h.svc.Ingest(context.Background(), manualRequest())
	require.NoError(t, err)

	// Only strictly-above-0.7 candidates with a valid type persist. The 0.7
	// candidate is dropped: the gate is exclusive.
	// Two sections produce two chunks, each extraction returns the same list.
	for _, c := range h.citations.upserts {
		assert.Greater(t, c.ConfidenceScore, 0.7)
		assert.NotEqual(t, "folklore", string(c.CitationType))
	}
	assert.Equal(t, 2, result.ChunksCreated)
	assert.Equal(t, 2, len(h.citations.uniqueKeys()))
}

func TestIngest_ReingestionKeepsCitationKeysStable(t *testing.T) {
	script := func() *ingestionHarness {
		h := newIngestionHarness("some act text", staticEmbedder([]float64{0.1}))
		h.llm.on("Extract every legal citation", `[
			{"citation_type": "statute", "short_citation": "s 60CC", "full_citation": "Family Law Act 1975 (Cth) s 60CC", "confidence_score": 0.95}
		]`)
		return h
	}

	h := script()
	_, err := h.svc.Ingest(context.Background(), manualRequest())
	require.NoError(t, err)
	_, err = h.svc.Ingest(context.Background(), manualRequest())
	require.NoError(t, err)

	// Chunks duplicate across runs (no dedup key); citation upsert keys do not
	// multiply, they are hit again.
	assert.Len(t, h.chunks.chunks, 4)
	keys := h.citations.uniqueKeys()
	assert.Len(t, keys, 2) // one per section, not per run
	for _, hits := range keys {
		assert.Equal(t, 2, hits)
	}
}

func TestIngest_EmbeddingFailureSkipsChunk(t *testing.T) {
	calls := 0
	flaky := embedderFunc(func(ctx context.Context, text string, models ...string) (*openai.EmbeddingResult, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("rate limited")
		}
		return &openai.EmbeddingResult{Vector: []float64{0.5}, Model: "text-embedding-3-small"}, nil
	})
	h := newIngestionHarness("some act text", flaky)

	result, err := h.svc.Ingest(context.Background(), manualRequest())
	require.NoError(t, err)

	// One of the two chunks was skipped; the run still completes.
	assert.Equal(t, 1, result.ChunksCreated)
	assert.Len(t, h.chunks.chunks, 1)
	assert.Equal(t, "completed", result.Status)
}

func TestIngest_NoChunksStoredFailsDocument(t *testing.T) {
	dead := embedderFunc(func(ctx context.Context, text string, models ...string) (*openai.EmbeddingResult, error) {
		return nil, errors.New("embeddings down")
	})
	h := newIngestionHarness("some act text", dead)

	_, err := h.svc.Ingest(context.Background(), manualRequest())

	assert.ErrorIs(t, err, ErrNoChunksStored)
	require.Len(t, h.docs.created, 1)
	assert.True(t, h.docs.failed[h.docs.created[0].ID])
	assert.Empty(t, h.docs.activated)
}

func TestIngest_StoredChunksCarryOrderAndModel(t *testing.T) {
	h := newIngestionHarness("some act text", staticEmbedder([]float64{0.1}))

	_, err := h.svc.Ingest(context.Background(), manualRequest())
	require.NoError(t, err)

	require.Len(t, h.chunks.chunks, 2)
	for i, chunk := range h.chunks.chunks {
		assert.Equal(t, i, chunk.ChunkOrder)
		assert.Equal(t, "text-embedding-3-large", chunk.Metadata["embedding_model"])
		assert.Equal(t, h.docs.created[0].ID, chunk.DocumentID)
	}
}

func TestIngest_ActivatesDocumentWithSectionCount(t *testing.T) {
	h := newIngestionHarness("some act text", staticEmbedder([]float64{0.1}))

	_, err := h.svc.Ingest(context.Background(), manualRequest())
	require.NoError(t, err)

	require.Len(t, h.docs.created, 1)
	assert.Equal(t, 2, h.docs.activated[h.docs.created[0].ID])
}

func TestIngest_ConceptsComeFromLeadingChunksOnly(t *testing.T) {
	h := newIngestionHarness("some act text", staticEmbedder([]float64{0.1}))
	h.llm.on("legal concepts", `["best interests of the child", "Best Interests of the Child", "parental responsibility"]`)

	result, err := h.svc.Ingest(context.Background(), manualRequest())
	require.NoError(t, err)

	// Case-insensitive dedup.
	assert.Equal(t, 2, result.LegalConceptsIdentified)
}
