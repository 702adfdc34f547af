package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvidenceHarness(repo *fakeEvidenceFileStore, embedder Embedder, pdf PDFExtractor) *EvidenceService {
	opts := []EvidenceOption{
		EvidenceWithRepository(repo),
		EvidenceWithStorage(newMemStorage()),
		EvidenceWithEmbedder(embedder),
	}
	if pdf != nil {
		opts = append(opts, EvidenceWithPDFExtractor(pdf))
	}
	return NewEvidenceService(opts...)
}

func TestUpload_TextFileIsChunkedAndProcessed(t *testing.T) {
	repo := newFakeEvidenceFileStore()
	svc := newEvidenceHarness(repo, staticEmbedder([]float64{0.1}), nil)
	body := strings.Repeat("threatening message log. ", 100) // ~2500 chars

	file, err := svc.Upload(context.Background(), uuid.New(), "messages.txt", "text/plain", strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, models.EvidenceStatusProcessed, file.Status)
	assert.Equal(t, models.EvidenceStatusProcessed, repo.statuses[file.ID])
	require.Len(t, repo.chunks, 3)
	for i, chunk := range repo.chunks {
		assert.Equal(t, i, chunk.ChunkOrder)
		assert.Equal(t, file.ID, chunk.FileID)
		assert.NotEmpty(t, chunk.Embedding)
	}
}

func TestUpload_PDFMagicBytesRouteToExtractor(t *testing.T) {
	repo := newFakeEvidenceFileStore()
	extractor := &recordingExtractor{text: "extracted statement text"}
	svc := newEvidenceHarness(repo, staticEmbedder([]float64{0.1}), extractor)

	// Filename says .txt; the bytes say PDF. Bytes win.
	file, err := svc.Upload(context.Background(), uuid.New(), "statement.txt", "text/plain", strings.NewReader("%PDF-1.4 binary"))
	require.NoError(t, err)

	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, models.EvidenceStatusProcessed, file.Status)
	require.Len(t, repo.chunks, 1)
	assert.Equal(t, "extracted statement text", repo.chunks[0].ChunkText)
}

func TestUpload_ProcessingFailureLeavesUploadedStatus(t *testing.T) {
	repo := newFakeEvidenceFileStore()
	dead := embedderFunc(func(ctx context.Context, text string, models ...string) (*openai.EmbeddingResult, error) {
		return nil, errors.New("embeddings down")
	})
	svc := newEvidenceHarness(repo, dead, nil)

	// Upload still succeeds; the file just stays invisible to retrieval.
	file, err := svc.Upload(context.Background(), uuid.New(), "messages.txt", "text/plain", strings.NewReader("some text"))
	require.NoError(t, err)

	assert.Equal(t, models.EvidenceStatusUploaded, file.Status)
	assert.Empty(t, repo.chunks)
	assert.Empty(t, repo.statuses)
}

func TestUpload_EmptyBodyRejected(t *testing.T) {
	repo := newFakeEvidenceFileStore()
	svc := newEvidenceHarness(repo, staticEmbedder([]float64{0.1}), nil)

	_, err := svc.Upload(context.Background(), uuid.New(), "empty.txt", "text/plain", strings.NewReader(""))
	assert.Error(t, err)
	assert.Empty(t, repo.files)
}
