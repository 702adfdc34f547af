package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EvidenceKeeper/evidence-aid-nsw/logger"
	"github.com/EvidenceKeeper/evidence-aid-nsw/storage"
)

var (
	// ErrCompliance is returned when a source URL is not on the approved
	// legal-source allow-list. The check runs before any fetch.
	ErrCompliance = errors.New("source URL is not an approved legal source")

	ErrEmptyContent      = errors.New("no content provided")
	ErrUnknownSourceType = errors.New("unknown source type")
)

// allowedSourceHosts are the only hosts the ingestor will fetch from.
// Exact host or subdomain match.
var allowedSourceHosts = []string{
	"legislation.nsw.gov.au",
	"caselaw.nsw.gov.au",
	"austlii.edu.au",
	"legislation.gov.au",
	"courts.nsw.gov.au",
	"lawaccess.nsw.gov.au",
}

const acquisitionUserAgent = "EvidenceAidNSW-Ingestor/1.0 (legal document acquisition)"

var pdfMagic = []byte("%PDF-")

// AcquisitionService turns an ingestion source (URL, stored file, or pasted
// text) into a single UTF-8 text blob. Failures are fatal for the ingestion
// request; there is no retry at this layer.
type AcquisitionService struct {
	httpClient *http.Client
	store      storage.Storage
	pdf        PDFExtractor
	log        *logger.Logger
}

// AcquisitionOption is a functional option for AcquisitionService
type AcquisitionOption func(*AcquisitionService)

// AcquisitionWithHTTPClient sets the HTTP client used for URL fetches
func AcquisitionWithHTTPClient(hc *http.Client) AcquisitionOption {
	return func(s *AcquisitionService) {
		s.httpClient = hc
	}
}

// AcquisitionWithStorage sets the blob store used for file sources
func AcquisitionWithStorage(store storage.Storage) AcquisitionOption {
	return func(s *AcquisitionService) {
		s.store = store
	}
}

// AcquisitionWithPDFExtractor sets the PDF text extractor
func AcquisitionWithPDFExtractor(pdf PDFExtractor) AcquisitionOption {
	return func(s *AcquisitionService) {
		s.pdf = pdf
	}
}

// AcquisitionWithLogger sets the logger
func AcquisitionWithLogger(log *logger.Logger) AcquisitionOption {
	return func(s *AcquisitionService) {
		s.log = log
	}
}

// NewAcquisitionService creates a new acquisition service
func NewAcquisitionService(opts ...AcquisitionOption) *AcquisitionService {
	s := &AcquisitionService{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		pdf:        FitzExtractor{},
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire produces the document text for an ingestion request
func (s *AcquisitionService) Acquire(ctx context.Context, req *IngestionRequest) (string, error) {
	switch req.SourceType {
	case "url":
		if req.SourceURL == nil || *req.SourceURL == "" {
			return "", fmt.Errorf("source_type url requires source_url")
		}
		return s.acquireURL(ctx, *req.SourceURL)
	case "file":
		if req.FilePath == "" {
			return "", fmt.Errorf("source_type file requires file_path")
		}
		return s.acquireFile(ctx, req.FilePath)
	case "manual":
		if strings.TrimSpace(req.Content) == "" {
			return "", ErrEmptyContent
		}
		return req.Content, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSourceType, req.SourceType)
	}
}

// hostAllowed reports whether a hostname is on the allow-list, either exactly
// or as a subdomain
func hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range allowedSourceHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (s *AcquisitionService) acquireURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid source_url: %w", err)
	}

	// Compliance gate: no request leaves this process for an unapproved host.
	if !hostAllowed(u.Hostname()) {
		return "", fmt.Errorf("%w: %s", ErrCompliance, u.Hostname())
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", acquisitionUserAgent)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch failed with status %d for %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/pdf") {
		text, err := s.pdf.ExtractText(data)
		if err != nil {
			return "", fmt.Errorf("failed to extract pdf text: %w", err)
		}
		return text, nil
	}

	// HTML and plain text are returned untouched.
	return string(data), nil
}

func (s *AcquisitionService) acquireFile(ctx context.Context, filePath string) (string, error) {
	if s.store == nil {
		return "", errors.New("storage not set")
	}

	rc, err := s.store.Download(ctx, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", filePath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	// Magic bytes decide the branch; the file extension is ignored.
	if bytes.HasPrefix(data, pdfMagic) {
		text, err := s.pdf.ExtractText(data)
		if err != nil {
			return "", fmt.Errorf("failed to extract pdf text: %w", err)
		}
		return text, nil
	}

	return string(data), nil
}
