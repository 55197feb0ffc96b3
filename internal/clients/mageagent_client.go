/**
 * MageAgent Client - Vision Capabilities for Extraction Auditing
 *
 * The auditor borrows two vision capabilities from MageAgent:
 * - analyze-layout: visual region detection used as the layout signal
 * - extract-text:   a vision model used as one of the benchmarked OCR engines
 *
 * Model selection stays on the MageAgent side; this client only moves page
 * images and decodes the responses.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/logging"
)

// MageAgentClient handles communication with MageAgent service
type MageAgentClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// VisionOCRRequest represents a request to extract text from an image
type VisionOCRRequest struct {
	Image          string                 `json:"image"`  // Base64 encoded image
	Format         string                 `json:"format"` // "base64" or "url"
	PreferAccuracy bool                   `json:"preferAccuracy"`
	Language       string                 `json:"language"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	JobID          string                 `json:"jobId,omitempty"`
}

// VisionOCRResponse is the synchronous extract-text response
type VisionOCRResponse struct {
	Success bool          `json:"success"`
	Data    VisionOCRData `json:"data"`
	Message string        `json:"message"`
}

// VisionOCRData contains the extracted text and metadata
type VisionOCRData struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ModelUsed      string  `json:"modelUsed"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
}

// LayoutAnalysisRequest represents a request to analyze document layout
type LayoutAnalysisRequest struct {
	Image    string `json:"image"`
	Format   string `json:"format"`
	Language string `json:"language"`
	JobID    string `json:"jobId,omitempty"`
}

// LayoutAnalysisResponse represents the response from layout analysis
type LayoutAnalysisResponse struct {
	Success bool               `json:"success"`
	Data    LayoutAnalysisData `json:"data"`
	Message string             `json:"message"`
}

// LayoutAnalysisData contains the detected regions of one page
type LayoutAnalysisData struct {
	Elements       []LayoutElement `json:"elements"`
	Confidence     float64         `json:"confidence"`
	ModelUsed      string          `json:"modelUsed"`
	ProcessingTime int64           `json:"processingTime"`
}

// LayoutElement represents a detected region
type LayoutElement struct {
	ID          int               `json:"id"`
	Type        string            `json:"type"` // heading, paragraph, list, table, image, ...
	BoundingBox LayoutBoundingBox `json:"boundingBox"`
	Content     string            `json:"content"`
	Confidence  float64           `json:"confidence"`
}

// LayoutBoundingBox is the pixel box reported by MageAgent
type LayoutBoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewMageAgentClient creates a new MageAgent client
func NewMageAgentClient(baseURL string, timeout time.Duration) *MageAgentClient {
	if timeout <= 0 {
		timeout = 120 * time.Second // Vision tasks can take time
	}
	return &MageAgentClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("MageAgentClient"),
	}
}

// postJSON sends body to path on the internal (rate-limit exempt) API and decodes into out
func (c *MageAgentClient) postJSON(ctx context.Context, path, requestPrefix string, body interface{}, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s", c.baseURL, path)

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "extraction-auditor")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("%s-%d", requestPrefix, time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request to MageAgent failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("MageAgent returned error status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// ExtractText runs vision OCR on one image
func (c *MageAgentClient) ExtractText(ctx context.Context, req *VisionOCRRequest) (*VisionOCRResponse, error) {
	var ocrResp VisionOCRResponse
	if err := c.postJSON(ctx, "/api/internal/vision/extract-text", "ocr", req, &ocrResp); err != nil {
		return nil, err
	}
	if !ocrResp.Success {
		return nil, fmt.Errorf("MageAgent operation failed: %s", ocrResp.Message)
	}

	c.logger.Debug("Vision text extraction complete",
		"modelUsed", ocrResp.Data.ModelUsed,
		"confidence", ocrResp.Data.Confidence,
		"processingTime", ocrResp.Data.ProcessingTime,
		"textLength", len(ocrResp.Data.Text))

	return &ocrResp, nil
}

// ExtractTextFromBytes base64-encodes imageData and calls ExtractText
func (c *MageAgentClient) ExtractTextFromBytes(ctx context.Context, imageData []byte, preferAccuracy bool, language string) (*VisionOCRResponse, error) {
	return c.ExtractText(ctx, &VisionOCRRequest{
		Image:          base64.StdEncoding.EncodeToString(imageData),
		Format:         "base64",
		PreferAccuracy: preferAccuracy,
		Language:       language,
		Metadata: map[string]interface{}{
			"source":    "extraction-auditor",
			"timestamp": time.Now().Unix(),
		},
	})
}

// AnalyzeLayout detects layout regions on one page image
func (c *MageAgentClient) AnalyzeLayout(ctx context.Context, req *LayoutAnalysisRequest) (*LayoutAnalysisResponse, error) {
	var layoutResp LayoutAnalysisResponse
	if err := c.postJSON(ctx, "/api/internal/vision/analyze-layout", "layout", req, &layoutResp); err != nil {
		return nil, err
	}
	if !layoutResp.Success {
		return nil, fmt.Errorf("MageAgent operation failed: %s", layoutResp.Message)
	}

	c.logger.Debug("Layout analysis complete",
		"modelUsed", layoutResp.Data.ModelUsed,
		"elements", len(layoutResp.Data.Elements),
		"processingTime", layoutResp.Data.ProcessingTime)

	return &layoutResp, nil
}

// AnalyzeLayoutFromBytes base64-encodes imageData and calls AnalyzeLayout
func (c *MageAgentClient) AnalyzeLayoutFromBytes(ctx context.Context, imageData []byte, language string) (*LayoutAnalysisResponse, error) {
	return c.AnalyzeLayout(ctx, &LayoutAnalysisRequest{
		Image:    base64.StdEncoding.EncodeToString(imageData),
		Format:   "base64",
		Language: language,
	})
}

// HealthCheck verifies MageAgent service is available
func (c *MageAgentClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
