package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// fileDelay is the fixed pause between files, a crude self-imposed rate
	// limit on the upstream API.
	defaultFileDelay = 2 * time.Second

	// perFileEstimate drives the estimated_completion hint returned to the
	// caller before background work starts.
	perFileEstimate = 20 * time.Second

	lensPromptLimit      = 8000
	downstreamPostWindow = 30 * time.Second
)

type evidenceReader interface {
	ListUnanalyzedFiles(ctx context.Context, userID uuid.UUID, fileID *uuid.UUID) ([]*models.EvidenceFile, error)
	ChunkTextByFile(ctx context.Context, fileID uuid.UUID) ([]string, error)
}

type analysisStore interface {
	AnalysisExists(ctx context.Context, fileID uuid.UUID) (bool, error)
	CreateAnalysis(ctx context.Context, analysis *models.ComprehensiveAnalysis) error
	InsertTimelineEvent(ctx context.Context, event *models.TimelineEvent) error
}

type jobStore interface {
	Create(ctx context.Context, job *models.AnalysisJob) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, filesProcessed int) error
	Complete(ctx context.Context, id uuid.UUID, filesProcessed int) error
	Fail(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// OrchestrateRequest triggers an evidence-intelligence batch for a user,
// optionally narrowed to one file
type OrchestrateRequest struct {
	UserID      uuid.UUID
	TriggerType string     `json:"trigger_type,omitempty"`
	FileID      *uuid.UUID `json:"file_id,omitempty"`
}

// OrchestrateResult is returned immediately; the batch continues in the
// background and is observable through the job record.
type OrchestrateResult struct {
	Success             bool       `json:"success"`
	Message             string     `json:"message"`
	FilesToProcess      int        `json:"files_to_process"`
	JobID               *uuid.UUID `json:"job_id,omitempty"`
	EstimatedCompletion string     `json:"estimated_completion,omitempty"`
}

// analysisLenses are the five independent analytical passes run over each
// evidence file
var analysisLenses = []struct {
	name        string
	instruction string
}{
	{"legal_significance", "Assess the legal significance of this evidence under NSW law: which elements of which causes of action or protection-order grounds it supports, its admissibility concerns, and its probative value."},
	{"behavioral_patterns", "Identify behavioral patterns in this evidence: coercive control, escalation, isolation, financial control, monitoring, or manipulation, with the specific passages that show them."},
	{"chronology", "Extract the chronology from this evidence: every dated or dateable event in order, noting gaps and inconsistencies."},
	{"strategy", "Assess this evidence strategically: how it could be used in proceedings, what it proves, how opposing counsel might attack it, and how to reinforce it."},
	{"evidence_gaps", "Identify what is missing around this evidence: corroboration that should exist, records worth requesting, and unanswered questions a court would ask."},
}

// OrchestratorService runs the evidence-intelligence batch: per unanalyzed
// file, five concurrent lens analyses, one synthesis row, timeline
// extraction, and downstream notifications.
type OrchestratorService struct {
	evidenceRepo         evidenceReader
	analysisRepo         analysisStore
	jobRepo              jobStore
	llm                  Completer
	httpClient           *http.Client
	legalConnectionURL   string
	caseIntelligenceURL  string
	fileDelay            time.Duration
	background           bool
	log                  *logger.Logger
}

// OrchestratorOption is a functional option for OrchestratorService
type OrchestratorOption func(*OrchestratorService)

// OrchestratorWithEvidenceRepository sets the evidence repository
func OrchestratorWithEvidenceRepository(repo evidenceReader) OrchestratorOption {
	return func(s *OrchestratorService) {
		s.evidenceRepo = repo
	}
}

// OrchestratorWithAnalysisRepository sets the analysis repository
func OrchestratorWithAnalysisRepository(repo analysisStore) OrchestratorOption {
	return func(s *OrchestratorService) {
		s.analysisRepo = repo
	}
}

// OrchestratorWithJobRepository sets the job repository
func OrchestratorWithJobRepository(repo jobStore) OrchestratorOption {
	return func(s *OrchestratorService) {
		s.jobRepo = repo
	}
}

// OrchestratorWithCompleter sets the chat-completion client
func OrchestratorWithCompleter(llm Completer) OrchestratorOption {
	return func(s *OrchestratorService) {
		s.llm = llm
	}
}

// OrchestratorWithHTTPClient sets the client for downstream notifications
func OrchestratorWithHTTPClient(hc *http.Client) OrchestratorOption {
	return func(s *OrchestratorService) {
		s.httpClient = hc
	}
}

// OrchestratorWithDownstreamURLs configures the legal-connection and
// case-intelligence function endpoints; empty strings disable each call
func OrchestratorWithDownstreamURLs(legalConnection, caseIntelligence string) OrchestratorOption {
	return func(s *OrchestratorService) {
		s.legalConnectionURL = legalConnection
		s.caseIntelligenceURL = caseIntelligence
	}
}

// OrchestratorWithFileDelay overrides the inter-file pause. Tests set zero.
func OrchestratorWithFileDelay(d time.Duration) OrchestratorOption {
	return func(s *OrchestratorService) {
		s.fileDelay = d
	}
}

// OrchestratorWithSynchronousProcessing makes Trigger run the batch inline
// instead of in a goroutine. Tests only.
func OrchestratorWithSynchronousProcessing() OrchestratorOption {
	return func(s *OrchestratorService) {
		s.background = false
	}
}

// OrchestratorWithLogger sets the logger
func OrchestratorWithLogger(log *logger.Logger) OrchestratorOption {
	return func(s *OrchestratorService) {
		s.log = log
	}
}

// NewOrchestratorService creates a new orchestrator service
func NewOrchestratorService(opts ...OrchestratorOption) *OrchestratorService {
	s := &OrchestratorService{
		httpClient: &http.Client{Timeout: downstreamPostWindow},
		fileDelay:  defaultFileDelay,
		background: true,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger selects the unanalyzed files, writes the job record, and returns
// immediately while the batch continues in the background. Zero eligible
// files means no job record and no background work.
func (s *OrchestratorService) Trigger(ctx context.Context, req OrchestrateRequest) (*OrchestrateResult, error) {
	if s.evidenceRepo == nil {
		return nil, errors.New("evidence repository not set")
	}
	if s.analysisRepo == nil {
		return nil, errors.New("analysis repository not set")
	}
	if s.jobRepo == nil {
		return nil, errors.New("job repository not set")
	}
	if s.llm == nil {
		return nil, errors.New("completion client not set")
	}

	files, err := s.evidenceRepo.ListUnanalyzedFiles(ctx, req.UserID, req.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanalyzed files: %w", err)
	}

	if len(files) == 0 {
		return &OrchestrateResult{
			Success:        true,
			Message:        "no files awaiting analysis",
			FilesToProcess: 0,
		}, nil
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = "manual"
	}
	job := &models.AnalysisJob{
		UserID:      req.UserID,
		TriggerType: triggerType,
		Status:      models.JobStatusQueued,
		FilesTotal:  len(files),
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create analysis job: %w", err)
	}

	estimate := time.Now().Add(time.Duration(len(files)) * (perFileEstimate + s.fileDelay))

	if s.background {
		go s.processBatch(context.Background(), job.ID, files)
	} else {
		s.processBatch(ctx, job.ID, files)
	}

	return &OrchestrateResult{
		Success:             true,
		Message:             fmt.Sprintf("analysis started for %d file(s)", len(files)),
		FilesToProcess:      len(files),
		JobID:               &job.ID,
		EstimatedCompletion: estimate.Format(time.RFC3339),
	}, nil
}

// processBatch works through the files strictly sequentially with a fixed
// pause between them. Per-file failures are logged and skipped; the job
// fails only when nothing could be analyzed.
func (s *OrchestratorService) processBatch(ctx context.Context, jobID uuid.UUID, files []*models.EvidenceFile) {
	if err := s.jobRepo.MarkRunning(ctx, jobID); err != nil {
		s.log.Warn("failed to mark job running", "job_id", jobID, "error", err)
	}

	processed := 0
	for i, file := range files {
		if i > 0 {
			time.Sleep(s.fileDelay)
		}
		if err := s.analyzeFile(ctx, file); err != nil {
			s.log.Error("file analysis failed", "file_id", file.ID, "error", err)
			continue
		}
		processed++
		if err := s.jobRepo.UpdateProgress(ctx, jobID, processed); err != nil {
			s.log.Warn("failed to update job progress", "job_id", jobID, "error", err)
		}
	}

	if processed == 0 {
		if err := s.jobRepo.Fail(ctx, jobID, "no files could be analyzed"); err != nil {
			s.log.Warn("failed to mark job failed", "job_id", jobID, "error", err)
		}
		return
	}
	if err := s.jobRepo.Complete(ctx, jobID, processed); err != nil {
		s.log.Warn("failed to complete job", "job_id", jobID, "error", err)
	}
}

func (s *OrchestratorService) analyzeFile(ctx context.Context, file *models.EvidenceFile) error {
	// The file list is a snapshot; a concurrent trigger may have analyzed
	// this file since. The one-row-per-file constraint makes a recheck cheap.
	exists, err := s.analysisRepo.AnalysisExists(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("failed to check for existing analysis: %w", err)
	}
	if exists {
		return nil
	}

	texts, err := s.evidenceRepo.ChunkTextByFile(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("failed to load chunk text: %w", err)
	}
	content := strings.TrimSpace(strings.Join(texts, "\n"))
	if content == "" {
		return fmt.Errorf("file %s has no extracted text", file.ID)
	}

	passes := s.runLenses(ctx, content)
	analysis := s.synthesize(ctx, file, passes)

	if err := s.analysisRepo.CreateAnalysis(ctx, analysis); err != nil {
		return err
	}

	s.extractTimeline(ctx, file, content)
	s.notifyDownstream(file)

	return nil
}

// runLenses fans the five analyses out concurrently. A failed lens yields an
// error-stub pass; there is no minimum quorum, so synthesis proceeds over
// whatever came back.
func (s *OrchestratorService) runLenses(ctx context.Context, content string) models.AnalysisPasses {
	passes := make(models.AnalysisPasses, len(analysisLenses))
	content = truncate(content, lensPromptLimit)

	g, gctx := errgroup.WithContext(ctx)
	for i, lens := range analysisLenses {
		i, lens := i, lens
		g.Go(func() error {
			prompt := fmt.Sprintf("%s\n\nEVIDENCE:\n%s\n\nReply with your findings as plain text.", lens.instruction, content)
			result, err := s.llm.Complete(gctx, openai.CompletionRequest{
				Messages:    []openai.ChatMessage{{Role: "user", Content: prompt}},
				MaxTokens:   1000,
				Temperature: 0.3,
			})
			if err != nil {
				passes[i] = models.LensResult{Lens: lens.name, Error: err.Error()}
				return nil
			}
			passes[i] = models.LensResult{Lens: lens.name, Findings: result.Text}
			return nil
		})
	}
	// Lens goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()

	return passes
}

const synthesisPrompt = `You are synthesizing five analytical passes over one piece of evidence in an NSW family law / domestic violence matter. Some passes may contain an "error" field instead of findings; work with what succeeded.

PASSES:
%s

Return ONLY a JSON object:
{
  "synthesis": "<2-3 paragraph summary>",
  "confidence_score": 0.0,
  "legal_strength": 0,
  "case_impact": "<one sentence>",
  "key_insights": [],
  "strategic_recommendations": [],
  "evidence_gaps_identified": [],
  "pattern_connections": [],
  "timeline_significance": "<one sentence>"
}
legal_strength is 0-100; confidence_score is 0.0-1.0.`

type synthesisOutput struct {
	Synthesis                string   `json:"synthesis"`
	ConfidenceScore          float64  `json:"confidence_score"`
	LegalStrength            int      `json:"legal_strength"`
	CaseImpact               string   `json:"case_impact"`
	KeyInsights              []string `json:"key_insights"`
	StrategicRecommendations []string `json:"strategic_recommendations"`
	EvidenceGapsIdentified   []string `json:"evidence_gaps_identified"`
	PatternConnections       []string `json:"pattern_connections"`
	TimelineSignificance     string   `json:"timeline_significance"`
}

// synthesize produces the comprehensive-analysis row. Synthesis failure
// degrades to a stub row rather than losing the lens passes.
func (s *OrchestratorService) synthesize(ctx context.Context, file *models.EvidenceFile, passes models.AnalysisPasses) *models.ComprehensiveAnalysis {
	analysis := &models.ComprehensiveAnalysis{
		FileID:         file.ID,
		AnalysisPasses: passes,
	}

	passesJSON, err := json.Marshal(passes)
	if err != nil {
		s.log.Warn("failed to marshal passes", "file_id", file.ID, "error", err)
		analysis.Synthesis = "synthesis unavailable"
		return analysis
	}

	result, err := s.llm.Complete(ctx, openai.CompletionRequest{
		Messages:    []openai.ChatMessage{{Role: "user", Content: fmt.Sprintf(synthesisPrompt, string(passesJSON))}},
		MaxTokens:   1500,
		Temperature: 0.3,
	})
	if err != nil {
		s.log.Warn("synthesis call failed", "file_id", file.ID, "error", err)
		analysis.Synthesis = "synthesis unavailable"
		return analysis
	}

	raw, err := extractJSONObject(result.Text)
	if err != nil {
		s.log.Warn("synthesis returned no JSON, storing raw text", "file_id", file.ID)
		analysis.Synthesis = result.Text
		return analysis
	}
	var out synthesisOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.log.Warn("synthesis decode failed, storing raw text", "file_id", file.ID, "error", err)
		analysis.Synthesis = result.Text
		return analysis
	}

	analysis.Synthesis = out.Synthesis
	analysis.ConfidenceScore = out.ConfidenceScore
	analysis.LegalStrength = out.LegalStrength
	analysis.CaseImpact = out.CaseImpact
	analysis.KeyInsights = out.KeyInsights
	analysis.StrategicRecommendations = out.StrategicRecommendations
	analysis.EvidenceGapsIdentified = out.EvidenceGapsIdentified
	analysis.PatternConnections = out.PatternConnections
	analysis.TimelineSignificance = out.TimelineSignificance
	return analysis
}

const timelinePrompt = `Extract dated events from the evidence below. Use ISO dates where the text gives them; otherwise the most precise form available (e.g. "March 2024").

Return ONLY a JSON array, [] if none:
[{"event_date": "2024-03-15", "description": "...", "significance": "..."}]

EVIDENCE:
%s`

type timelineCandidate struct {
	EventDate    string `json:"event_date"`
	Description  string `json:"description"`
	Significance string `json:"significance"`
}

// extractTimeline is best effort; failures are logged and the batch moves on
func (s *OrchestratorService) extractTimeline(ctx context.Context, file *models.EvidenceFile, content string) {
	result, err := s.llm.Complete(ctx, openai.CompletionRequest{
		Messages:    []openai.ChatMessage{{Role: "user", Content: fmt.Sprintf(timelinePrompt, truncate(content, lensPromptLimit))}},
		MaxTokens:   1200,
		Temperature: 0.1,
	})
	if err != nil {
		s.log.Warn("timeline extraction failed", "file_id", file.ID, "error", err)
		return
	}

	raw, err := extractJSONArray(result.Text)
	if err != nil {
		s.log.Warn("timeline extraction returned no JSON", "file_id", file.ID, "error", err)
		return
	}
	var candidates []timelineCandidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		s.log.Warn("timeline decode failed", "file_id", file.ID, "error", err)
		return
	}

	for _, c := range candidates {
		if c.Description == "" {
			continue
		}
		event := &models.TimelineEvent{
			UserID:       file.UserID,
			FileID:       file.ID,
			EventDate:    c.EventDate,
			Description:  c.Description,
			Significance: c.Significance,
		}
		if err := s.analysisRepo.InsertTimelineEvent(ctx, event); err != nil {
			s.log.Warn("timeline event insert failed", "file_id", file.ID, "error", err)
		}
	}
}

// notifyDownstream fires the configured follow-on functions. Fire and
// forget: failures are logged, nothing waits on the result.
func (s *OrchestratorService) notifyDownstream(file *models.EvidenceFile) {
	for _, url := range []string{s.legalConnectionURL, s.caseIntelligenceURL} {
		if url == "" {
			continue
		}
		url := url
		go func() {
			body, _ := json.Marshal(map[string]string{
				"user_id": file.UserID.String(),
				"file_id": file.ID.String(),
			})
			req, err := http.NewRequest("POST", url, bytes.NewReader(body))
			if err != nil {
				s.log.Warn("downstream request build failed", "url", url, "error", err)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.httpClient.Do(req)
			if err != nil {
				s.log.Warn("downstream notification failed", "url", url, "error", err)
				return
			}
			resp.Body.Close()
		}()
	}
}
