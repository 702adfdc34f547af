package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/EvidenceKeeper/evidence-aid-nsw/models"
	"github.com/EvidenceKeeper/evidence-aid-nsw/openai"
	"github.com/EvidenceKeeper/evidence-aid-nsw/repository"

	"github.com/google/uuid"
)

// completerFunc adapts a function to the Completer interface
type completerFunc func(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResult, error)

func (f completerFunc) Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResult, error) {
	return f(ctx, req)
}

func failingCompleter(err error) completerFunc {
	return func(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResult, error) {
		return nil, err
	}
}

func staticCompleter(text string) completerFunc {
	return func(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResult, error) {
		return &openai.CompletionResult{Text: text, Model: "gpt-4o"}, nil
	}
}

// routedCompleter answers by matching a substring of the prompt against the
// route table. Unmatched prompts error, which surfaces any test relying on a
// call it did not script.
type routedCompleter struct {
	mu     sync.Mutex
	routes map[string]string // prompt substring -> reply
	errOn  map[string]error  // prompt substring -> forced error
	calls  []string
}

func newRoutedCompleter() *routedCompleter {
	return &routedCompleter{
		routes: make(map[string]string),
		errOn:  make(map[string]error),
	}
}

func (r *routedCompleter) on(substring, reply string) *routedCompleter {
	r.routes[substring] = reply
	return r
}

func (r *routedCompleter) failOn(substring string, err error) *routedCompleter {
	r.errOn[substring] = err
	return r
}

func (r *routedCompleter) Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResult, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	r.mu.Lock()
	r.calls = append(r.calls, prompt)
	r.mu.Unlock()
	for substring, err := range r.errOn {
		if strings.Contains(prompt, substring) {
			return nil, err
		}
	}
	for substring, reply := range r.routes {
		if strings.Contains(prompt, substring) {
			return &openai.CompletionResult{Text: reply, Model: "gpt-4o"}, nil
		}
	}
	return nil, errors.New("unscripted prompt: " + truncate(prompt, 80))
}

// embedderFunc adapts a function to the Embedder interface
type embedderFunc func(ctx context.Context, text string, models ...string) (*openai.EmbeddingResult, error)

func (f embedderFunc) Embed(ctx context.Context, text string, models ...string) (*openai.EmbeddingResult, error) {
	return f(ctx, text, models...)
}

func staticEmbedder(vector []float64) embedderFunc {
	return func(ctx context.Context, text string, models ...string) (*openai.EmbeddingResult, error) {
		return &openai.EmbeddingResult{Vector: vector, Model: "text-embedding-3-large"}, nil
	}
}

// fakeDocStore records document lifecycle calls
type fakeDocStore struct {
	created      []*models.LegalDocument
	activated    map[uuid.UUID]int
	failed       map[uuid.UUID]bool
	createErr    error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		activated: make(map[uuid.UUID]int),
		failed:    make(map[uuid.UUID]bool),
	}
}

func (f *fakeDocStore) Create(ctx context.Context, doc *models.LegalDocument) error {
	if f.createErr != nil {
		return f.createErr
	}
	doc.ID = uuid.New()
	f.created = append(f.created, doc)
	return nil
}

func (f *fakeDocStore) SetActive(ctx context.Context, id uuid.UUID, totalSections int) error {
	f.activated[id] = totalSections
	return nil
}

func (f *fakeDocStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	f.failed[id] = true
	return nil
}

// fakeChunkStore records inserted chunks
type fakeChunkStore struct {
	chunks []models.LegalChunk
}

func (f *fakeChunkStore) Insert(ctx context.Context, chunk *models.LegalChunk) error {
	f.chunks = append(f.chunks, *chunk)
	return nil
}

func (f *fakeChunkStore) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	count := 0
	for _, chunk := range f.chunks {
		if chunk.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

// fakeCitationStore records upserts keyed the way the database does
type fakeCitationStore struct {
	upserts []models.LegalCitation
}

func (f *fakeCitationStore) Upsert(ctx context.Context, citation *models.LegalCitation) error {
	f.upserts = append(f.upserts, *citation)
	return nil
}

func (f *fakeCitationStore) uniqueKeys() map[string]int {
	keys := make(map[string]int)
	for _, c := range f.upserts {
		keys[c.ShortCitation+"|"+c.SectionID]++
	}
	return keys
}

// fakeAcquirer returns fixed content or a fixed error
type fakeAcquirer struct {
	content string
	err     error
}

func (f *fakeAcquirer) Acquire(ctx context.Context, req *IngestionRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

// memStorage is an in-memory storage.Storage
type memStorage struct {
	files map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (m *memStorage) Upload(ctx context.Context, fileID uuid.UUID, filename string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	path := fileID.String() + "/" + filename
	m.files[path] = b
	return path, nil
}

func (m *memStorage) Download(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	b, ok := m.files[storagePath]
	if !ok {
		return nil, errors.New("not found: " + storagePath)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStorage) Delete(ctx context.Context, storagePath string) error {
	delete(m.files, storagePath)
	return nil
}

// recordingExtractor fakes PDF extraction and records the bytes it saw
type recordingExtractor struct {
	text  string
	err   error
	calls int
}

func (r *recordingExtractor) ExtractText(data []byte) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.text, nil
}

// countingTransport counts outbound HTTP requests
type countingTransport struct {
	mu       sync.Mutex
	requests []*http.Request
	respond  func(req *http.Request) (*http.Response, error)
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.respond != nil {
		return c.respond(req)
	}
	return nil, errors.New("no responder configured")
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func stringReader(s string) io.Reader {
	return strings.NewReader(s)
}

func textResponse(status int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// fakeMemoryStore holds one case memory row and can inject version conflicts
type fakeMemoryStore struct {
	memory       *models.CaseMemory
	getCalls     int
	inserts      int
	conflictLeft int
	updateErr    error
}

func (f *fakeMemoryStore) Get(ctx context.Context, userID uuid.UUID) (*models.CaseMemory, error) {
	f.getCalls++
	if f.memory == nil {
		return nil, nil
	}
	copied := *f.memory
	return &copied, nil
}

func (f *fakeMemoryStore) Insert(ctx context.Context, memory *models.CaseMemory) error {
	f.inserts++
	memory.Version = 1
	copied := *memory
	f.memory = &copied
	return nil
}

func (f *fakeMemoryStore) UpdateConditional(ctx context.Context, memory *models.CaseMemory) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.conflictLeft > 0 {
		f.conflictLeft--
		return repository.ErrVersionConflict
	}
	memory.Version++
	copied := *memory
	f.memory = &copied
	return nil
}

// fakeMessageStore records message and session rows
type fakeMessageStore struct {
	messages   []models.Message
	sessions   []models.ChatSession
	createErr  error
	sessionErr error
}

func (f *fakeMessageStore) Create(ctx context.Context, msg *models.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	msg.ID = uuid.New()
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeMessageStore) LogSession(ctx context.Context, session *models.ChatSession) error {
	if f.sessionErr != nil {
		return f.sessionErr
	}
	f.sessions = append(f.sessions, *session)
	return nil
}

// fakeLegalSearcher returns a fixed match list
type fakeLegalSearcher struct {
	matches []models.LegalMatch
	err     error
}

func (f *fakeLegalSearcher) MatchLegalChunks(ctx context.Context, embedding []float64, threshold float64, count int, jurisdiction string) ([]models.LegalMatch, error) {
	return f.matches, f.err
}

// fakeEvidenceSearcher returns a fixed match list
type fakeEvidenceSearcher struct {
	matches []models.EvidenceMatch
	err     error
}

func (f *fakeEvidenceSearcher) MatchUserChunks(ctx context.Context, embedding []float64, threshold float64, count int, userID uuid.UUID) ([]models.EvidenceMatch, error) {
	return f.matches, f.err
}

// fakeTimelineReader returns fixed events
type fakeTimelineReader struct {
	events []*models.TimelineEvent
}

func (f *fakeTimelineReader) ListRecentTimelineEvents(ctx context.Context, userID uuid.UUID, limit int) ([]*models.TimelineEvent, error) {
	return f.events, nil
}

// fakeEvidenceReader serves files and their chunk text to the orchestrator
type fakeEvidenceReader struct {
	files     []*models.EvidenceFile
	chunkText map[uuid.UUID][]string
	listErr   error
}

func (f *fakeEvidenceReader) ListUnanalyzedFiles(ctx context.Context, userID uuid.UUID, fileID *uuid.UUID) ([]*models.EvidenceFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if fileID == nil {
		return f.files, nil
	}
	for _, file := range f.files {
		if file.ID == *fileID {
			return []*models.EvidenceFile{file}, nil
		}
	}
	return nil, nil
}

func (f *fakeEvidenceReader) ChunkTextByFile(ctx context.Context, fileID uuid.UUID) ([]string, error) {
	return f.chunkText[fileID], nil
}

// fakeAnalysisStore records analyses and timeline events
type fakeAnalysisStore struct {
	mu       sync.Mutex
	analyses []*models.ComprehensiveAnalysis
	events   []*models.TimelineEvent
}

func (f *fakeAnalysisStore) AnalysisExists(ctx context.Context, fileID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, analysis := range f.analyses {
		if analysis.FileID == fileID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAnalysisStore) CreateAnalysis(ctx context.Context, analysis *models.ComprehensiveAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis.ID = uuid.New()
	f.analyses = append(f.analyses, analysis)
	return nil
}

func (f *fakeAnalysisStore) InsertTimelineEvent(ctx context.Context, event *models.TimelineEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = uuid.New()
	f.events = append(f.events, event)
	return nil
}

// fakeJobStore records the full job lifecycle
type fakeJobStore struct {
	job       *models.AnalysisJob
	running   bool
	progress  []int
	completed bool
	failedMsg string
}

func (f *fakeJobStore) Create(ctx context.Context, job *models.AnalysisJob) error {
	job.ID = uuid.New()
	f.job = job
	return nil
}

func (f *fakeJobStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	f.running = true
	return nil
}

func (f *fakeJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, filesProcessed int) error {
	f.progress = append(f.progress, filesProcessed)
	return nil
}

func (f *fakeJobStore) Complete(ctx context.Context, id uuid.UUID, filesProcessed int) error {
	f.completed = true
	return nil
}

func (f *fakeJobStore) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	f.failedMsg = errorMessage
	return nil
}

// fakeEvidenceFileStore backs the evidence upload service
type fakeEvidenceFileStore struct {
	files    []*models.EvidenceFile
	chunks   []models.EvidenceChunk
	statuses map[uuid.UUID]models.EvidenceStatus
}

func newFakeEvidenceFileStore() *fakeEvidenceFileStore {
	return &fakeEvidenceFileStore{statuses: make(map[uuid.UUID]models.EvidenceStatus)}
}

func (f *fakeEvidenceFileStore) CreateFile(ctx context.Context, file *models.EvidenceFile) error {
	file.ID = uuid.New()
	f.files = append(f.files, file)
	return nil
}

func (f *fakeEvidenceFileStore) ListFilesByUser(ctx context.Context, userID uuid.UUID) ([]*models.EvidenceFile, error) {
	return f.files, nil
}

func (f *fakeEvidenceFileStore) UpdateFileStatus(ctx context.Context, id uuid.UUID, status models.EvidenceStatus) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeEvidenceFileStore) InsertChunk(ctx context.Context, chunk *models.EvidenceChunk) error {
	f.chunks = append(f.chunks, *chunk)
	return nil
}
