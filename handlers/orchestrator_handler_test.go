package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"
	"github.com/EvidenceKeeper/evidence-aid-nsw/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type stubEvidenceLister struct{}

func (stubEvidenceLister) ListUnanalyzedFiles(ctx context.Context, userID uuid.UUID, fileID *uuid.UUID) ([]*models.EvidenceFile, error) {
	return nil, nil
}

func (stubEvidenceLister) ChunkTextByFile(ctx context.Context, fileID uuid.UUID) ([]string, error) {
	return nil, nil
}

type stubAnalysisStore struct{}

func (stubAnalysisStore) AnalysisExists(ctx context.Context, fileID uuid.UUID) (bool, error) {
	return false, nil
}

func (stubAnalysisStore) CreateAnalysis(ctx context.Context, analysis *models.ComprehensiveAnalysis) error {
	return nil
}

func (stubAnalysisStore) InsertTimelineEvent(ctx context.Context, event *models.TimelineEvent) error {
	return nil
}

type stubJobStore struct{}

func (stubJobStore) Create(ctx context.Context, job *models.AnalysisJob) error { return nil }
func (stubJobStore) MarkRunning(ctx context.Context, id uuid.UUID) error       { return nil }
func (stubJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, filesProcessed int) error {
	return nil
}
func (stubJobStore) Complete(ctx context.Context, id uuid.UUID, filesProcessed int) error { return nil }
func (stubJobStore) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error    { return nil }

type stubCompleter struct{}

func (stubCompleter) Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResult, error) {
	return &openai.CompletionResult{Text: "{}"}, nil
}

func orchestratorRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewOrchestratorService(
		service.OrchestratorWithEvidenceRepository(stubEvidenceLister{}),
		service.OrchestratorWithAnalysisRepository(stubAnalysisStore{}),
		service.OrchestratorWithJobRepository(stubJobStore{}),
		service.OrchestratorWithCompleter(stubCompleter{}),
		service.OrchestratorWithSynchronousProcessing(),
		service.OrchestratorWithFileDelay(0),
	)
	r := gin.New()
	r.POST("/functions/evidence-intelligence-orchestrator", func(c *gin.Context) {
		c.Set(userIDKey, uuid.New())
	}, NewOrchestratorHandler(svc).Trigger)
	return r
}

func TestOrchestratorTrigger_EmptyBodyIsAccepted(t *testing.T) {
	r := orchestratorRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/evidence-intelligence-orchestrator", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no files awaiting analysis")
}

func TestOrchestratorTrigger_MalformedJSONRejected(t *testing.T) {
	r := orchestratorRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/evidence-intelligence-orchestrator", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrchestratorTrigger_InvalidFileIDRejected(t *testing.T) {
	r := orchestratorRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/functions/evidence-intelligence-orchestrator", strings.NewReader(`{"file_id": "not-a-uuid"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid file_id format")
}
