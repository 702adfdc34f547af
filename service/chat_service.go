package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"
	"github.com/EvidenceKeeper/evidence-aid-nsw/repository"

	"github.com/google/uuid"
)

const (
	legalMatchThreshold    = 0.7
	legalMatchCount        = 12
	legalContextLimit      = 10 // unique document+section pairs
	evidenceMatchThreshold = 0.5
	evidenceMatchCount     = 10
	timelineEventLimit     = 5

	// Per-excerpt and per-block hard caps for the assembled system prompt.
	excerptCharLimit = 300
	blockCharLimit   = 500

	memoryUpdateAttempts = 3
)

var ErrEmptyPrompt = errors.New("no prompt provided")

type caseMemoryStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.CaseMemory, error)
	Insert(ctx context.Context, memory *models.CaseMemory) error
	UpdateConditional(ctx context.Context, memory *models.CaseMemory) error
}

type messageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	LogSession(ctx context.Context, session *models.ChatSession) error
}

type legalSearcher interface {
	MatchLegalChunks(ctx context.Context, embedding []float64, threshold float64, count int, jurisdiction string) ([]models.LegalMatch, error)
}

type evidenceSearcher interface {
	MatchUserChunks(ctx context.Context, embedding []float64, threshold float64, count int, userID uuid.UUID) ([]models.EvidenceMatch, error)
}

type timelineReader interface {
	ListRecentTimelineEvents(ctx context.Context, userID uuid.UUID, limit int) ([]*models.TimelineEvent, error)
}

// ChatRequest is one chat turn for an authenticated user
type ChatRequest struct {
	UserID   uuid.UUID
	Prompt   string
	Messages []openai.ChatMessage
	Mode     string
}

// ChatMetadata is returned alongside the reply
type ChatMetadata struct {
	ModelUsed       string `json:"model_used"`
	CurrentStage    int    `json:"current_stage"`
	LegalSources    int    `json:"legal_sources"`
	EvidenceSources int    `json:"evidence_sources"`
}

// ChatResult carries the assistant reply plus citations and metadata
type ChatResult struct {
	Response  string       `json:"response"`
	Citations []string     `json:"citations"`
	Metadata  ChatMetadata `json:"metadata"`
}

// ChatService answers user messages with retrieval-augmented completions.
// Retrieval failures degrade the context; only embedding and completion
// failures abort the turn.
type ChatService struct {
	memoryRepo       caseMemoryStore
	messageRepo      messageStore
	legalSearch      legalSearcher
	evidenceSearch   evidenceSearcher
	timeline         timelineReader
	llm              Completer
	embedder         Embedder
	trainingDocPath  string
	jurisdiction     string
	log              *logger.Logger
}

// ChatOption is a functional option for ChatService
type ChatOption func(*ChatService)

// ChatWithCaseMemoryRepository sets the case memory repository
func ChatWithCaseMemoryRepository(repo caseMemoryStore) ChatOption {
	return func(s *ChatService) {
		s.memoryRepo = repo
	}
}

// ChatWithMessageRepository sets the message repository
func ChatWithMessageRepository(repo messageStore) ChatOption {
	return func(s *ChatService) {
		s.messageRepo = repo
	}
}

// ChatWithLegalSearcher sets the legal corpus similarity search
func ChatWithLegalSearcher(search legalSearcher) ChatOption {
	return func(s *ChatService) {
		s.legalSearch = search
	}
}

// ChatWithEvidenceSearcher sets the per-user evidence similarity search
func ChatWithEvidenceSearcher(search evidenceSearcher) ChatOption {
	return func(s *ChatService) {
		s.evidenceSearch = search
	}
}

// ChatWithTimelineReader sets the timeline event reader
func ChatWithTimelineReader(reader timelineReader) ChatOption {
	return func(s *ChatService) {
		s.timeline = reader
	}
}

// ChatWithCompleter sets the chat-completion client
func ChatWithCompleter(llm Completer) ChatOption {
	return func(s *ChatService) {
		s.llm = llm
	}
}

// ChatWithEmbedder sets the embedding client
func ChatWithEmbedder(e Embedder) ChatOption {
	return func(s *ChatService) {
		s.embedder = e
	}
}

// ChatWithTrainingDocPath overrides the TRAINING_DOC_PATH lookup
func ChatWithTrainingDocPath(path string) ChatOption {
	return func(s *ChatService) {
		s.trainingDocPath = path
	}
}

// ChatWithLogger sets the logger
func ChatWithLogger(log *logger.Logger) ChatOption {
	return func(s *ChatService) {
		s.log = log
	}
}

// NewChatService creates a new chat service
func NewChatService(opts ...ChatOption) *ChatService {
	s := &ChatService{
		jurisdiction: "NSW",
		log:          logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stageContexts maps the nine journey stages to the phrase appended to the
// retrieval query. Stages outside 1-9 get the stage-1 phrase.
var stageContexts = map[int]string{
	1: "getting started and understanding their situation",
	2: "gathering and organizing evidence",
	3: "understanding their legal options",
	4: "building a timeline of events",
	5: "strengthening their evidence",
	6: "preparing court documents",
	7: "preparing for a court appearance",
	8: "attending hearings",
	9: "after court and next steps",
}

func stageContext(stage int) string {
	if phrase, ok := stageContexts[stage]; ok {
		return phrase
	}
	return stageContexts[1]
}

// Chat runs one turn: load case memory, retrieve context, complete, persist.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if s.memoryRepo == nil {
		return nil, errors.New("case memory repository not set")
	}
	if s.messageRepo == nil {
		return nil, errors.New("message repository not set")
	}
	if s.legalSearch == nil {
		return nil, errors.New("legal searcher not set")
	}
	if s.evidenceSearch == nil {
		return nil, errors.New("evidence searcher not set")
	}
	if s.llm == nil {
		return nil, errors.New("completion client not set")
	}
	if s.embedder == nil {
		return nil, errors.New("embedding client not set")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == "user" {
				prompt = strings.TrimSpace(req.Messages[i].Content)
				break
			}
		}
	}
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	// 2. Case memory, defaulting implicitly when the user has no row yet.
	memory, err := s.memoryRepo.Get(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case memory: %w", err)
	}
	if memory == nil {
		memory = models.NewCaseMemory(req.UserID)
	}

	// 3-4. Enhanced query and its embedding. Embedding failure is fatal:
	// without a vector there is no retrieval and no grounded answer.
	enhanced := buildEnhancedQuery(prompt, memory)
	embedding, err := s.embedder.Embed(ctx, enhanced)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// 5. Dual similarity search. Either search failing degrades to an empty
	// block rather than aborting the turn.
	legalMatches, err := s.legalSearch.MatchLegalChunks(ctx, embedding.Vector, legalMatchThreshold, legalMatchCount, s.jurisdiction)
	if err != nil {
		s.log.Warn("legal similarity search failed", "error", err)
		legalMatches = nil
	}
	legalMatches = filterLegalMatches(legalMatches, legalMatchThreshold, legalContextLimit)

	evidenceMatches, err := s.evidenceSearch.MatchUserChunks(ctx, embedding.Vector, evidenceMatchThreshold, evidenceMatchCount, req.UserID)
	if err != nil {
		s.log.Warn("evidence similarity search failed", "error", err)
		evidenceMatches = nil
	}

	var events []*models.TimelineEvent
	if s.timeline != nil {
		events, err = s.timeline.ListRecentTimelineEvents(ctx, req.UserID, timelineEventLimit)
		if err != nil {
			s.log.Warn("timeline lookup failed", "error", err)
			events = nil
		}
	}

	// 6. Assemble the system prompt: training doc plus fixed-order blocks.
	systemPrompt := s.buildSystemPrompt(memory, legalMatches, evidenceMatches, events)

	messages := []openai.ChatMessage{{Role: "system", Content: systemPrompt}}
	if len(req.Messages) > 0 {
		messages = append(messages, req.Messages...)
	} else {
		messages = append(messages, openai.ChatMessage{Role: "user", Content: prompt})
	}

	// 7. Completion over the ordered fallback list.
	completion, err := s.llm.Complete(ctx, openai.CompletionRequest{
		Messages:    messages,
		MaxTokens:   1200,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}

	citations := make([]string, 0, len(legalMatches))
	for _, m := range legalMatches {
		citations = append(citations, fmt.Sprintf("%s, s %s", m.Title, m.SectionID))
	}

	// 8. Persist both rows. The reply already exists; persistence failures
	// are logged, not surfaced.
	userMsg := &models.Message{UserID: req.UserID, Role: models.RoleUser, Content: prompt}
	if err := s.messageRepo.Create(ctx, userMsg); err != nil {
		s.log.Warn("failed to persist user message", "error", err)
	}
	assistantMsg := &models.Message{
		UserID:    req.UserID,
		Role:      models.RoleAssistant,
		Content:   completion.Text,
		Citations: citations,
	}
	if err := s.messageRepo.Create(ctx, assistantMsg); err != nil {
		s.log.Warn("failed to persist assistant message", "error", err)
	}

	// 9. Advisory bookkeeping, best effort.
	s.updateBookkeeping(ctx, req.UserID, completion.Model)

	return &ChatResult{
		Response:  completion.Text,
		Citations: citations,
		Metadata: ChatMetadata{
			ModelUsed:       completion.Model,
			CurrentStage:    memory.CurrentStage,
			LegalSources:    len(legalMatches),
			EvidenceSources: len(evidenceMatches),
		},
	}, nil
}

// buildEnhancedQuery augments the raw prompt with case context so retrieval
// reflects where the user is in their journey
func buildEnhancedQuery(prompt string, memory *models.CaseMemory) string {
	var parts []string
	parts = append(parts, prompt)
	if memory.PrimaryGoal != "" {
		parts = append(parts, "Goal: "+memory.PrimaryGoal)
	}
	parts = append(parts, "Context: user is "+stageContext(memory.CurrentStage))
	return strings.Join(parts, "\n")
}

// filterLegalMatches enforces the similarity threshold and deduplicates to at
// most limit unique document+section pairs, preserving rank order.
func filterLegalMatches(matches []models.LegalMatch, threshold float64, limit int) []models.LegalMatch {
	seen := make(map[string]bool)
	var out []models.LegalMatch
	for _, m := range matches {
		if m.Similarity < threshold {
			continue
		}
		key := m.DocumentID.String() + "|" + m.SectionID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out
}

// trainingDoc loads the static instruction document, falling back to the
// embedded default when the file is missing or unreadable
func (s *ChatService) trainingDoc() string {
	path := s.trainingDocPath
	if path == "" {
		path = os.Getenv("TRAINING_DOC_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data)
		}
		s.log.Warn("training doc unreadable, using embedded default", "path", path, "error", err)
	}
	return defaultTrainingDoc
}

// buildSystemPrompt concatenates the context blocks in fixed order. Every
// block is hard-truncated so one oversized source cannot crowd out the rest.
func (s *ChatService) buildSystemPrompt(
	memory *models.CaseMemory,
	legal []models.LegalMatch,
	evidence []models.EvidenceMatch,
	events []*models.TimelineEvent,
) string {
	var b strings.Builder
	b.WriteString(s.trainingDoc())
	b.WriteString("\n\n")

	if memory.SessionCount > 0 {
		continuity := fmt.Sprintf(
			"RETURNING USER: session %d. Goal: %s. Readiness: %s. Continue from where they left off; do not re-ask onboarding questions.",
			memory.SessionCount+1, memory.PrimaryGoal, memory.CaseReadinessStatus)
		b.WriteString(truncate(continuity, blockCharLimit))
		b.WriteString("\n\n")
	}

	if len(legal) > 0 {
		b.WriteString("LEGAL AUTHORITIES (cite these where relevant):\n")
		for _, m := range legal {
			excerpt := fmt.Sprintf("- %s, s %s: %s", m.Title, m.SectionID, m.ChunkText)
			b.WriteString(truncate(excerpt, excerptCharLimit))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	memoryBlock := fmt.Sprintf("CASE MEMORY: stage %d (%s); goal: %s; readiness: %s; key facts: %s",
		memory.CurrentStage, stageContext(memory.CurrentStage),
		memory.PrimaryGoal, memory.CaseReadinessStatus, summarizeFacts(memory.KeyFacts))
	b.WriteString(truncate(memoryBlock, blockCharLimit))
	b.WriteString("\n\n")

	if len(evidence) > 0 {
		b.WriteString("USER EVIDENCE EXCERPTS:\n")
		for _, m := range evidence {
			excerpt := fmt.Sprintf("- [%s] %s", m.Filename, m.ChunkText)
			b.WriteString(truncate(excerpt, excerptCharLimit))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(events) > 0 {
		b.WriteString("RECENT TIMELINE EVENTS:\n")
		var lines []string
		for _, e := range events {
			lines = append(lines, fmt.Sprintf("- %s: %s", e.EventDate, e.Description))
		}
		b.WriteString(truncate(strings.Join(lines, "\n"), blockCharLimit))
		b.WriteString("\n")
	}

	return b.String()
}

func summarizeFacts(facts models.KeyFacts) string {
	if len(facts) == 0 {
		return "none recorded"
	}
	var parts []string
	for key, value := range facts {
		parts = append(parts, fmt.Sprintf("%s=%v", key, value))
	}
	return strings.Join(parts, "; ")
}

// updateBookkeeping bumps the session counters after a successful reply.
// Every failure here is logged and swallowed; the reply already succeeded.
func (s *ChatService) updateBookkeeping(ctx context.Context, userID uuid.UUID, modelUsed string) {
	for attempt := 0; attempt < memoryUpdateAttempts; attempt++ {
		memory, err := s.memoryRepo.Get(ctx, userID)
		if err != nil {
			s.log.Warn("case memory reload failed", "user_id", userID, "error", err)
			break
		}
		if memory == nil {
			memory = models.NewCaseMemory(userID)
			memory.SessionCount = 1
			if err := s.memoryRepo.Insert(ctx, memory); err != nil {
				s.log.Warn("case memory insert failed", "user_id", userID, "error", err)
			}
			break
		}
		memory.SessionCount++
		err = s.memoryRepo.UpdateConditional(ctx, memory)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		s.log.Warn("case memory update failed", "user_id", userID, "error", err)
		break
	}

	session := &models.ChatSession{UserID: userID, MessageCount: 2, ModelUsed: modelUsed}
	if err := s.messageRepo.LogSession(ctx, session); err != nil {
		s.log.Warn("session log insert failed", "user_id", userID, "error", err)
	}
}

// defaultTrainingDoc is used when TRAINING_DOC_PATH is unset or unreadable
const defaultTrainingDoc = `You are a trauma-informed legal assistant for people navigating the NSW (Australia) court system, particularly in family law and domestic violence matters.

Principles:
- You provide legal information, not legal advice. Recommend LawAccess NSW (1300 888 529) or a community legal centre for advice.
- Ground every legal statement in the LEGAL AUTHORITIES block when one is supplied, and name the Act and section you rely on.
- Be warm and plain-spoken. Avoid legal jargon unless you explain it.
- The user's journey has nine stages, from understanding their situation (1) through evidence gathering, court preparation, hearings, and after-court steps (9). Meet them at their current stage; do not push ahead.
- If the user describes immediate danger, tell them to call 000 first.
- Never invent citations. If you are not certain a section exists, say so.`
