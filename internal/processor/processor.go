/**
 * Audit Processor for the Extraction Auditor
 *
 * Runs one document through the audit pipeline:
 * - native text extraction and quality scoring
 * - text structure extraction compared against visual layout
 * - embedded image signals and scanned-document classification
 * - OCR engine benchmark on sample pages
 * - extraction advice, persisted with a similarity profile
 *
 * Capability failures never fail a job; they are recorded in the report.
 */

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/advisor"
	"github.com/adverant/nexus/extraction-auditor/internal/clients"
	"github.com/adverant/nexus/extraction-auditor/internal/errors"
	"github.com/adverant/nexus/extraction-auditor/internal/extract"
	"github.com/adverant/nexus/extraction-auditor/internal/hierarchy"
	"github.com/adverant/nexus/extraction-auditor/internal/images"
	"github.com/adverant/nexus/extraction-auditor/internal/layout"
	"github.com/adverant/nexus/extraction-auditor/internal/logging"
	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/adverant/nexus/extraction-auditor/internal/ocrbench"
	"github.com/adverant/nexus/extraction-auditor/internal/quality"
	"github.com/adverant/nexus/extraction-auditor/internal/storage"
	"github.com/google/uuid"
)

// AuditProcessorInterface defines the interface used by the queue consumers
type AuditProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*AuditReport, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// ReportStore persists job status and finished reports
type ReportStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	SaveReport(ctx context.Context, rec *storage.ReportRecord) (string, error)
}

// ArtifactUploader publishes report files
type ArtifactUploader interface {
	UploadArtifact(ctx context.Context, req *clients.ArtifactUploadRequest) (*clients.ArtifactUploadResponse, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Capabilities   *Capabilities
	Store          ReportStore      // optional
	Artifacts      ArtifactUploader // optional
	MaxFileSize    int64
	MaxRenderPages int
	TempDir        string
}

// AuditOptions tune a single audit
type AuditOptions struct {
	SampleOCRPages int  `json:"sampleOcrPages,omitempty"`
	SkipLayout     bool `json:"skipLayout,omitempty"`
	SkipOCR        bool `json:"skipOcr,omitempty"`
}

// ProcessRequest represents an audit request. At least one of FileBuffer,
// FileURL or Text is required; Text replaces native extraction.
type ProcessRequest struct {
	JobID      string
	Filename   string
	MimeType   string
	FileSize   int64
	FileURL    string
	FileBuffer []byte
	Text       string
	Options    AuditOptions
}

// AuditProcessor runs audits
type AuditProcessor struct {
	config     *ProcessorConfig
	caps       *Capabilities
	store      ReportStore
	artifacts  ArtifactUploader
	httpClient *http.Client
	logger     *logging.Logger
}

// NewAuditProcessor creates a new audit processor
func NewAuditProcessor(cfg *ProcessorConfig) (*AuditProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Capabilities == nil {
		return nil, fmt.Errorf("capabilities are required")
	}

	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	if cfg.MaxRenderPages <= 0 {
		cfg.MaxRenderPages = 20
	}

	return &AuditProcessor{
		config:     cfg,
		caps:       cfg.Capabilities,
		store:      cfg.Store,
		artifacts:  cfg.Artifacts,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     logging.NewLogger("AuditProcessor"),
	}, nil
}

// Capabilities returns the shared capability context
func (p *AuditProcessor) Capabilities() *Capabilities {
	return p.caps
}

// validate checks the request before any work is done
func (p *AuditProcessor) validate(req *ProcessRequest) error {
	if req == nil {
		return errors.NewInvalidJobError("", "request is required", nil)
	}
	if req.JobID == "" {
		return errors.NewInvalidJobError("", "job ID is required", nil)
	}
	if len(req.FileBuffer) == 0 && req.FileURL == "" && req.Text == "" {
		return errors.NewInvalidJobError(req.JobID, "no file source or text provided", nil)
	}
	if p.config.MaxFileSize > 0 && int64(len(req.FileBuffer)) > p.config.MaxFileSize {
		return errors.NewInvalidJobError(req.JobID,
			fmt.Sprintf("file size exceeds maximum: %d > %d bytes", len(req.FileBuffer), p.config.MaxFileSize), nil)
	}
	if req.Options.SampleOCRPages < 0 {
		return errors.NewInvalidJobError(req.JobID, "sampleOcrPages must not be negative", nil)
	}
	return nil
}

// ProcessDocument audits a document and stores the report
func (p *AuditProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*AuditReport, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	logger := p.logger.With("job", req.JobID)
	startTime := time.Now()
	logger.Info("Starting audit", "filename", req.Filename, "mimeType", req.MimeType)

	var (
		doc  *models.Document
		data []byte
	)

	if len(req.FileBuffer) > 0 || req.FileURL != "" {
		var err error
		data, err = p.loadFile(ctx, req)
		if err != nil {
			return nil, errors.NewInvalidJobError(req.JobID, "failed to load file", err)
		}

		req.MimeType = resolveMimeType(req.MimeType, req.Filename, data)

		path, cleanup, err := p.spool(req, data)
		if err != nil {
			return nil, fmt.Errorf("failed to spool file: %w", err)
		}
		defer cleanup()

		doc = &models.Document{
			ID:       req.JobID,
			Path:     path,
			Filename: req.Filename,
			MimeType: req.MimeType,
		}
		doc.PageCount = p.pageCount(*doc, logger)
	}

	p.progress(ctx, req.JobID, 10)

	report := p.audit(ctx, req, doc, data, logger)
	report.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	if err := ctx.Err(); err != nil {
		return nil, errors.NewProcessingTimeoutError(req.JobID, time.Since(startTime), err)
	}

	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	if p.store != nil {
		if _, err := p.store.SaveReport(ctx, report.Record(body)); err != nil {
			return nil, errors.NewStorageFailedError(req.JobID, err)
		}
	}

	p.uploadReport(ctx, report, body, logger)

	logger.Info("Audit completed",
		"documentType", report.Scanned.DocumentType,
		"approach", report.Advice.RecommendedApproach,
		"quality", report.Quality.Value,
		"matchScore", report.Hierarchy.MatchScore,
		"duration", time.Since(startTime).String())

	return report, nil
}

// AuditText runs the text-only subset of the pipeline. Nothing is stored.
func (p *AuditProcessor) AuditText(ctx context.Context, text string) *AuditReport {
	req := &ProcessRequest{JobID: uuid.New().String(), Text: text, Options: AuditOptions{SkipLayout: true, SkipOCR: true}}
	startTime := time.Now()
	report := p.audit(ctx, req, nil, nil, p.logger.With("job", req.JobID))
	report.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	return report
}

// audit runs every analysis stage. doc is nil for text-only audits.
func (p *AuditProcessor) audit(ctx context.Context, req *ProcessRequest, doc *models.Document, data []byte, logger *logging.Logger) *AuditReport {
	report := &AuditReport{
		ID:        uuid.New().String(),
		JobID:     req.JobID,
		Filename:  req.Filename,
		MimeType:  req.MimeType,
		Warnings:  []string{},
		CreatedAt: time.Now().UTC(),
	}
	if doc != nil {
		report.PageCount = doc.PageCount
	}

	// Step 1: native text and its quality
	text := p.nativeText(ctx, req, data, report)
	logger.Debug("Native text ready", "chars", len([]rune(text)), "quality", report.Quality.Value)

	// Step 2: structure from text
	report.Structure = p.caps.Structure.Extract(text)
	p.progress(ctx, req.JobID, 25)

	// Step 3: page images for the visual stages
	var pages []models.PageImage
	if doc != nil && !(req.Options.SkipLayout && req.Options.SkipOCR) {
		pages = p.rasterize(ctx, req.JobID, *doc, report)
	}

	// Step 4: layout signal and hierarchy comparison
	report.Layout = layout.Unavailable()
	if !req.Options.SkipLayout && len(pages) > 0 {
		report.Layout = p.caps.Layout.Detect(ctx, pages, p.caps.Detector())
		if failed := report.Layout.FailedPages(); failed > 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("layout detection failed on %d of %d pages", failed, len(pages)))
		}
	}
	report.Hierarchy = p.caps.Comparator.Compare(report.Structure.Summary, report.Layout.Elements)
	report.Assessment = hierarchy.Assess(report.Structure.Summary, report.Hierarchy)
	p.progress(ctx, req.JobID, 50)

	// Step 5: image signals and scanned classification
	report.Images = p.collectImages(ctx, doc)
	report.Warnings = append(report.Warnings, report.Images.Warnings...)
	report.Scanned = p.caps.Classifier.Classify(report.Quality, report.Images)
	p.progress(ctx, req.JobID, 65)

	// Step 6: OCR benchmark on sample pages
	if !req.Options.SkipOCR && len(pages) > 0 && len(p.caps.Engines()) > 0 {
		n := req.Options.SampleOCRPages
		if n == 0 {
			n = p.caps.Benchmark.SampleCount()
		}
		bench := p.caps.Benchmark.Run(ctx, ocrbench.SamplePages(pages, n), p.caps.Engines())
		report.Benchmark = &bench
	} else if !req.Options.SkipOCR && doc != nil && len(p.caps.Engines()) == 0 {
		report.Warnings = append(report.Warnings, errors.NewCapabilityUnavailableError("ocr").Error())
	}
	p.progress(ctx, req.JobID, 85)

	// Step 7: advice
	report.Advice = advisor.Advise(report.Scanned, report.Benchmark)

	return report
}

// nativeText returns the text to audit and records each source's quality
func (p *AuditProcessor) nativeText(ctx context.Context, req *ProcessRequest, data []byte, report *AuditReport) string {
	if req.Text != "" {
		score := p.caps.Scorer.Score(req.Text)
		report.Quality = score
		report.Native = []NativeResult{{Source: "provided", Chars: len([]rune(req.Text)), Quality: &score}}
		return req.Text
	}

	report.Native = []NativeResult{}
	if len(data) == 0 || len(p.caps.Extractors()) == 0 {
		report.Warnings = append(report.Warnings, errors.NewCapabilityUnavailableError("native text extraction").Error())
		return ""
	}

	results := extract.Run(ctx, p.caps.Extractors(), data, req.MimeType)

	var scores []quality.Score
	for _, res := range results {
		nr := NativeResult{Source: res.Extractor, Chars: res.Chars, Error: res.Error}
		if res.OK() {
			score := p.caps.Scorer.Score(res.Text)
			nr.Quality = &score
			scores = append(scores, score)
		}
		report.Native = append(report.Native, nr)
	}

	if len(scores) == 0 {
		report.Warnings = append(report.Warnings,
			errors.NewExtractionFailedError(req.JobID, req.MimeType, fmt.Errorf("no extractor produced text")).Error())
	}

	report.Quality = quality.Average(scores...)
	return extract.Best(results)
}

// rasterize renders pages; failure leaves the visual stages without input
func (p *AuditProcessor) rasterize(ctx context.Context, jobID string, doc models.Document, report *AuditReport) []models.PageImage {
	rast := p.caps.Rasterizer()
	if rast == nil {
		report.Warnings = append(report.Warnings, errors.NewCapabilityUnavailableError("rasterizer").Error())
		return nil
	}

	pages, err := rast.Rasterize(ctx, doc, p.config.MaxRenderPages)
	if err != nil {
		report.Warnings = append(report.Warnings, errors.NewRasterizeFailedError(jobID, err).Error())
		return nil
	}
	return pages
}

// collectImages returns image signals. A raster image is one full-page image.
func (p *AuditProcessor) collectImages(ctx context.Context, doc *models.Document) images.Result {
	switch {
	case doc == nil:
		return images.Result{ImagesPerPage: []int{}, LargeImagePages: []int{}, Backends: []string{}}
	case doc.IsImage():
		return images.Result{
			Available:           true,
			PageCount:           1,
			ImagesPerPage:       []int{1},
			LargeImagePages:     []int{1},
			TotalImageAreaRatio: 1,
			Backends:            []string{"raster"},
		}
	case !doc.IsPDF():
		return images.Result{
			ImagesPerPage:   []int{},
			LargeImagePages: []int{},
			Backends:        []string{},
			Warnings:        []string{fmt.Sprintf("image signals not available for %s", doc.MimeType)},
		}
	}
	return p.caps.Images.Collect(ctx, *doc)
}

func (p *AuditProcessor) pageCount(doc models.Document, logger *logging.Logger) int {
	switch {
	case doc.IsImage():
		return 1
	case doc.IsPDF():
		n, err := images.PageCount(doc.Path)
		if err != nil {
			logger.Warn("Failed to read page count", "error", err)
			return 0
		}
		return n
	}
	return 0
}

// spool writes the document to a temp file for the path-based adapters
func (p *AuditProcessor) spool(req *ProcessRequest, data []byte) (string, func(), error) {
	f, err := os.CreateTemp(p.config.TempDir, "audit-*"+extensionFor(req.MimeType, req.Filename))
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

// uploadReport publishes the JSON report; failures are logged only
func (p *AuditProcessor) uploadReport(ctx context.Context, report *AuditReport, body []byte, logger *logging.Logger) {
	if p.artifacts == nil {
		return
	}

	resp, err := p.artifacts.UploadArtifact(ctx, &clients.ArtifactUploadRequest{
		FileBuffer:    body,
		Filename:      report.JobID + "-audit.json",
		MimeType:      "application/json",
		SourceService: "extraction-auditor",
		SourceID:      report.JobID,
		Metadata: map[string]interface{}{
			"report_id":     report.ID,
			"document_type": string(report.Scanned.DocumentType),
			"approach":      string(report.Advice.RecommendedApproach),
			"source_file":   report.Filename,
		},
	})
	if err != nil {
		logger.Warn("Report upload failed", "error", err)
		return
	}
	logger.Info("Report uploaded", "artifact", resp.Artifact.ID, "url", resp.Artifact.DownloadURL)
}

// progress records intermediate progress; failures are ignored
func (p *AuditProcessor) progress(ctx context.Context, jobID string, pct int) {
	if p.store == nil || ctx.Err() != nil {
		return
	}
	if err := p.UpdateJobStatus(ctx, jobID, "processing", pct, nil); err != nil {
		p.logger.Debug("Progress update failed", "job", jobID, "error", err)
	}
}

// UpdateJobStatus updates job status in the database. Known metadata keys
// are lifted into their own columns.
func (p *AuditProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Metadata: metadata,
	}

	if metadata != nil {
		if v, ok := metadata["filename"].(string); ok {
			update.Filename = v
		}
		if v, ok := metadata["mimeType"].(string); ok {
			update.MimeType = v
		}
		if v, ok := metadata["documentType"].(string); ok {
			update.DocumentType = v
		}
		if v, ok := metadata["approach"].(string); ok {
			update.Approach = v
		}
		if v, ok := metadata["qualityValue"].(int); ok {
			update.QualityValue = v
		}
		if v, ok := metadata["matchScore"].(float64); ok {
			update.MatchScore = v
		}
		if v, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = v
		}
		if v, ok := metadata["error"].(string); ok {
			update.ErrorCode = string(errors.ErrorInvalidJob)
			if code, ok := metadata["errorCode"].(string); ok && code != "" {
				update.ErrorCode = code
			}
			update.ErrorMessage = v
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// CompletionMetadata is the status metadata recorded for a finished report
func CompletionMetadata(report *AuditReport) map[string]interface{} {
	return map[string]interface{}{
		"reportId":       report.ID,
		"filename":       report.Filename,
		"mimeType":       report.MimeType,
		"documentType":   string(report.Scanned.DocumentType),
		"approach":       string(report.Advice.RecommendedApproach),
		"qualityValue":   report.Quality.Value,
		"matchScore":     report.Hierarchy.MatchScore,
		"processingTime": report.ProcessingTimeMs,
	}
}

// loadFile loads file from buffer or URL
func (p *AuditProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	if len(req.FileBuffer) > 0 {
		return req.FileBuffer, nil
	}

	if req.FileURL != "" {
		return p.downloadFileFromURL(ctx, req.JobID, req.FileURL, req.FileSize)
	}

	return nil, fmt.Errorf("no file source provided (buffer or URL)")
}

const maxDownloadAttempts = 5

var (
	initialBackoff = time.Second
	maxBackoff     = 32 * time.Second
)

// backoffFor returns the delay before the given retry (1-based), doubling up to maxBackoff
func backoffFor(attempt int) time.Duration {
	d := initialBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// downloadFileFromURL downloads a file with exponential backoff between attempts
func (p *AuditProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string, expectedSize int64) ([]byte, error) {
	logger := p.logger.With("job", jobID)
	var lastErr error

	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffFor(attempt - 1)
			logger.Info("Retrying download", "attempt", attempt, "delay", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		data, retry, err := p.download(ctx, fileURL, expectedSize, logger)
		if err == nil {
			logger.Info("Download successful", "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		lastErr = err
		logger.Warn("Download attempt failed", "attempt", attempt, "error", err)
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("failed to download file: %w", lastErr)
}

// download performs one attempt and reports whether a retry may help
func (p *AuditProcessor) download(ctx context.Context, fileURL string, expectedSize int64, logger *logging.Logger) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid file URL: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > 0 && expectedSize > 0 && resp.ContentLength != expectedSize {
		logger.Warn("Content-Length mismatch", "expected", expectedSize, "got", resp.ContentLength)
	}

	maxBytes := p.config.MaxFileSize
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024 * 1024
	}
	if resp.ContentLength > maxBytes {
		return nil, false, fmt.Errorf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, false, fmt.Errorf("file size exceeds maximum of %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("downloaded file is empty")
	}

	return data, false, nil
}
