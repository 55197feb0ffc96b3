package storage

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
)

func TestSanitizeScore(t *testing.T) {
	testCases := []struct {
		in, want float64
	}{
		{-0.2, 0},
		{0, 0},
		{0.123456, 0.1235},
		{0.99999, 1},
		{1.7, 1},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%v", tc.in), func(t *testing.T) {
			if got := sanitizeScore(tc.in); got != tc.want {
				t.Errorf("sanitizeScore(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	in := []byte(`{"text":"a\u0000b\u0007c\u001fd","ok":"é"}`)
	want := `{"text":"ab c d","ok":"é"}`

	if got := string(sanitizeJSONForPostgres(in)); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := map[string]interface{}{
		"job_id":  "job-1",
		"pages":   3,
		"big":     int64(7),
		"score":   0.5,
		"scanned": true,
		"other":   []string{"x"},
	}

	out := fromPayload(toPayload(in))

	if out["job_id"] != "job-1" || out["scanned"] != true || out["score"] != 0.5 {
		t.Errorf("unexpected payload: %v", out)
	}
	if out["pages"] != int64(3) || out["big"] != int64(7) {
		t.Errorf("integers should come back as int64: %v", out)
	}
	if out["other"] != "[x]" {
		t.Errorf("unknown types should be stringified, got %v", out["other"])
	}

	raw := toPayload(map[string]interface{}{"n": 1})
	if _, ok := raw["n"].GetKind().(*qdrant.Value_IntegerValue); !ok {
		t.Errorf("int should map to an integer value")
	}
}

func TestValidateReport(t *testing.T) {
	profile := make([]float32, ProfileDimensions)

	testCases := []struct {
		name    string
		rec     *ReportRecord
		wantErr bool
	}{
		{"nil", nil, true},
		{"missing job", &ReportRecord{Report: []byte("{}"), Profile: profile}, true},
		{"missing body", &ReportRecord{JobID: "j", Profile: profile}, true},
		{"short profile", &ReportRecord{JobID: "j", Report: []byte("{}"), Profile: profile[:3]}, true},
		{"bad id", &ReportRecord{ID: "nope", JobID: "j", Report: []byte("{}"), Profile: profile}, true},
		{"valid", &ReportRecord{JobID: "j", Report: []byte("{}"), Profile: profile}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateReport(tc.rec)
			if (err != nil) != tc.wantErr {
				t.Fatalf("validateReport err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil {
				if _, perr := uuid.Parse(tc.rec.ID); perr != nil {
					t.Errorf("expected a generated UUID, got %q", tc.rec.ID)
				}
			}
		})
	}
}

func TestSimilarFromPoints(t *testing.T) {
	points := []*VectorPoint{
		{ID: "self", Score: 1},
		{ID: "a", Score: 0.9, Metadata: map[string]interface{}{"job_id": "ja", "document_type": "scanned"}},
		{ID: "b", Score: 0.8, Metadata: map[string]interface{}{"job_id": "jb"}},
		{ID: "c", Score: 0.7},
	}

	got := similarFromPoints("self", points, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ReportID != "a" || got[0].JobID != "ja" || got[0].DocumentType != "scanned" {
		t.Errorf("unexpected first result: %+v", got[0])
	}
	if got[1].ReportID != "b" {
		t.Errorf("unexpected second result: %+v", got[1])
	}
}

func TestNotFound(t *testing.T) {
	err := fmt.Errorf("report x: %w", ErrNotFound)
	if !IsNotFound(err) {
		t.Error("wrapped ErrNotFound should be detected")
	}
	if IsNotFound(fmt.Errorf("boom")) {
		t.Error("unrelated error detected as not found")
	}
}

func TestSimilarReportsWithoutVectorStore(t *testing.T) {
	sm := &StorageManager{}
	if _, err := sm.SimilarReports(context.Background(), "id", 3); err != ErrSimilarityUnavailable {
		t.Errorf("expected ErrSimilarityUnavailable, got %v", err)
	}
}

func TestPostgresReportLive(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	sm, err := NewStorageManager(url, "", "")
	if err != nil {
		t.Fatalf("NewStorageManager: %v", err)
	}
	defer sm.Close()

	ctx := context.Background()
	if err := sm.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	jobID := "test-" + uuid.New().String()
	if err := sm.UpdateJobStatus(ctx, &JobUpdate{JobID: jobID, Status: "processing", Progress: 10}); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}

	rec := &ReportRecord{
		JobID:        jobID,
		DocumentType: "digital",
		Approach:     "native_extraction",
		MatchScore:   0.8,
		QualityValue: 91,
		Evidence:     []string{"high text quality"},
		Report:       []byte(`{"job_id":"` + jobID + `"}`),
		Profile:      make([]float32, ProfileDimensions),
	}
	id, err := sm.SaveReport(ctx, rec)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	for _, key := range []string{id, jobID} {
		body, err := sm.GetReport(ctx, key)
		if err != nil {
			t.Fatalf("GetReport(%s): %v", key, err)
		}
		if len(body) == 0 {
			t.Errorf("empty report for %s", key)
		}
	}

	if _, err := sm.GetReport(ctx, uuid.New().String()); !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	job, err := sm.GetJobByID(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if job["status"] != "processing" {
		t.Errorf("status: %v", job["status"])
	}
}
