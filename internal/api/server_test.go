package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/adverant/nexus/extraction-auditor/internal/config"
	"github.com/adverant/nexus/extraction-auditor/internal/errors"
	"github.com/adverant/nexus/extraction-auditor/internal/processor"
	"github.com/adverant/nexus/extraction-auditor/internal/queue"
	"github.com/adverant/nexus/extraction-auditor/internal/storage"
)

type fakeAuditor struct {
	caps *processor.Capabilities
	last *processor.ProcessRequest
}

func (f *fakeAuditor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.AuditReport, error) {
	f.last = req
	switch req.Filename {
	case "timeout.pdf":
		return nil, errors.NewProcessingTimeoutError(req.JobID, 0, context.DeadlineExceeded)
	case "broken.pdf":
		return nil, errors.NewStorageFailedError(req.JobID, fmt.Errorf("db down"))
	}
	return &processor.AuditReport{ID: "report-1", JobID: req.JobID, Filename: req.Filename}, nil
}

func (f *fakeAuditor) AuditText(ctx context.Context, text string) *processor.AuditReport {
	return &processor.AuditReport{ID: "text-report", JobID: "text-job"}
}

func (f *fakeAuditor) Capabilities() *processor.Capabilities { return f.caps }

type fakeReports struct{}

func (fakeReports) GetReport(ctx context.Context, id string) ([]byte, error) {
	if id != "report-1" {
		return nil, storage.ErrNotFound
	}
	return []byte(`{"id":"report-1"}`), nil
}

func (fakeReports) SimilarReports(ctx context.Context, id string, limit int) ([]storage.SimilarReport, error) {
	if id == "no-vectors" {
		return nil, storage.ErrSimilarityUnavailable
	}
	out := make([]storage.SimilarReport, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, storage.SimilarReport{ReportID: fmt.Sprintf("r%d", i), Score: 0.9})
	}
	return out, nil
}

func (fakeReports) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"postgres": "ok"}, nil
}

type fakeQueue struct {
	submitted []*queue.JobPayload
}

func (q *fakeQueue) Submit(ctx context.Context, payload *queue.JobPayload) (string, error) {
	q.submitted = append(q.submitted, payload)
	return payload.JobID, nil
}

func (q *fakeQueue) GetStats(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{"waiting": 2}, nil
}

func newTestServer(t *testing.T, withStore bool) (*Server, *fakeAuditor, *fakeQueue) {
	t.Helper()
	auditor := &fakeAuditor{caps: processor.NewCapabilities(config.DefaultThresholds(), processor.Adapters{})}
	q := &fakeQueue{}
	cfg := &ServerConfig{Port: "0", Auditor: auditor, Queue: q, MaxBodyBytes: 1024}
	if withStore {
		cfg.Reports = fakeReports{}
	}
	return NewServer(cfg), auditor, q
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("%s %s: response is not a JSON object: %s", method, path, rec.Body.String())
	}
	return rec, decoded
}

func TestCreateAudit(t *testing.T) {
	s, auditor, _ := newTestServer(t, true)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"buffer", `{"filename":"a.pdf","fileBuffer":"JVBERg=="}`, http.StatusOK, ""},
		{"text", `{"text":"Hello"}`, http.StatusOK, ""},
		{"no source", `{"filename":"a.pdf"}`, http.StatusBadRequest, "INVALID_JOB"},
		{"bad json", `{`, http.StatusBadRequest, "INVALID_JOB"},
		{"timeout", `{"filename":"timeout.pdf","text":"x"}`, http.StatusGatewayTimeout, "PROCESSING_TIMEOUT"},
		{"storage", `{"filename":"broken.pdf","text":"x"}`, http.StatusInternalServerError, "STORAGE_FAILED"},
		{"too large", `{"text":"` + strings.Repeat("a", 2048) + `"}`, http.StatusBadRequest, "INVALID_JOB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, s, http.MethodPost, "/api/v1/audits", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%v)", rec.Code, tt.status, body)
			}
			if tt.code != "" && body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}

	if auditor.last == nil || auditor.last.JobID == "" {
		t.Error("missing jobId should be assigned")
	}
}

func TestCreateAuditAsync(t *testing.T) {
	s, auditor, q := newTestServer(t, true)

	rec, body := do(t, s, http.MethodPost, "/api/v1/audits?async=true", `{"jobId":"job-9","fileUrl":"http://files/a.pdf"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d (%v)", rec.Code, body)
	}
	if body["jobId"] != "job-9" || len(q.submitted) != 1 {
		t.Errorf("unexpected response %v, submitted %d", body, len(q.submitted))
	}
	if auditor.last != nil {
		t.Error("async audits must not run inline")
	}
}

func TestAuditTextEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, false)

	rec, body := do(t, s, http.MethodPost, "/api/v1/audits/text", `{"text":"# Title\n\nBody"}`)
	if rec.Code != http.StatusOK || body["id"] != "text-report" {
		t.Errorf("status %d body %v", rec.Code, body)
	}

	rec, _ = do(t, s, http.MethodPost, "/api/v1/audits/text", `{"text":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank text status = %d", rec.Code)
	}
}

func TestGetReport(t *testing.T) {
	s, _, _ := newTestServer(t, true)

	rec, body := do(t, s, http.MethodGet, "/api/v1/audits/report-1", "")
	if rec.Code != http.StatusOK || body["id"] != "report-1" {
		t.Errorf("status %d body %v", rec.Code, body)
	}

	rec, _ = do(t, s, http.MethodGet, "/api/v1/audits/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing report status = %d", rec.Code)
	}

	noStore, _, _ := newTestServer(t, false)
	rec, body = do(t, noStore, http.MethodGet, "/api/v1/audits/report-1", "")
	if rec.Code != http.StatusServiceUnavailable || body["code"] != "CAPABILITY_UNAVAILABLE" {
		t.Errorf("without storage: status %d body %v", rec.Code, body)
	}
}

func TestSimilarReports(t *testing.T) {
	s, _, _ := newTestServer(t, true)

	tests := []struct {
		path   string
		status int
		count  int
	}{
		{"/api/v1/audits/report-1/similar", http.StatusOK, 5},
		{"/api/v1/audits/report-1/similar?limit=2", http.StatusOK, 2},
		{"/api/v1/audits/report-1/similar?limit=0", http.StatusBadRequest, 0},
		{"/api/v1/audits/report-1/similar?limit=abc", http.StatusBadRequest, 0},
		{"/api/v1/audits/no-vectors/similar", http.StatusServiceUnavailable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, body := do(t, s, http.MethodGet, tt.path, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%v)", rec.Code, tt.status, body)
			}
			if tt.status == http.StatusOK {
				similar, _ := body["similar"].([]interface{})
				if len(similar) != tt.count {
					t.Errorf("got %d similar reports, want %d", len(similar), tt.count)
				}
			}
		})
	}
}

func TestHealthAndQueueStats(t *testing.T) {
	s, _, _ := newTestServer(t, true)

	rec, body := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", rec.Code, body)
	}
	caps, ok := body["capabilities"].(map[string]interface{})
	if !ok || caps["rasterizer"] != false {
		t.Errorf("capabilities: %v", body["capabilities"])
	}
	if _, ok := body["storage"]; !ok {
		t.Error("storage stats missing")
	}

	rec, body = do(t, s, http.MethodGet, "/api/v1/queue/stats", "")
	if rec.Code != http.StatusOK || body["waiting"] != float64(2) {
		t.Errorf("queue stats: %d %v", rec.Code, body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", storage.ErrNotFound), http.StatusNotFound},
		{storage.ErrSimilarityUnavailable, http.StatusServiceUnavailable},
		{errors.NewInvalidJobError("j", "bad", nil), http.StatusBadRequest},
		{errors.NewCapabilityUnavailableError("queue"), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
