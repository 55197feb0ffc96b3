package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploadArtifact(t *testing.T) {
	var (
		gotPath   string
		gotFields map[string]string
		gotFile   string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			gotFile = string(data)
			f.Close()
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"artifact": map[string]interface{}{
				"id":              "art-1",
				"storage_backend": "postgres_buffer",
				"download_url":    "http://files/art-1",
			},
		})
	}))
	defer srv.Close()

	client := NewArtifactClient(srv.URL)
	resp, err := client.UploadArtifact(context.Background(), &ArtifactUploadRequest{
		FileBuffer:    []byte(`{"ok":true}`),
		Filename:      "job-1-audit.json",
		MimeType:      "application/json",
		SourceService: "extraction-auditor",
		SourceID:      "job-1",
		Metadata:      map[string]interface{}{"document_type": "scanned"},
	})
	if err != nil {
		t.Fatalf("UploadArtifact: %v", err)
	}

	if resp.Artifact.ID != "art-1" || resp.Artifact.DownloadURL != "http://files/art-1" {
		t.Errorf("unexpected response: %+v", resp.Artifact)
	}
	if gotPath != "/fileprocess/api/files/upload" {
		t.Errorf("path: %s", gotPath)
	}
	if gotFile != `{"ok":true}` {
		t.Errorf("file body: %q", gotFile)
	}
	if gotFields["source_id"] != "job-1" || gotFields["ttl_days"] != "36500" {
		t.Errorf("fields: %v", gotFields)
	}
	if !strings.Contains(gotFields["metadata"], `"document_type":"scanned"`) {
		t.Errorf("metadata: %s", gotFields["metadata"])
	}
}

func TestUploadArtifactErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Source") == "fail" {
			w.Write([]byte(`{"success":false,"error":"quota"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := NewArtifactClient(srv.URL)
	valid := func() *ArtifactUploadRequest {
		return &ArtifactUploadRequest{
			FileBuffer:    []byte("x"),
			Filename:      "r.json",
			SourceService: "extraction-auditor",
			SourceID:      "job",
		}
	}

	testCases := []struct {
		name    string
		mutate  func(r *ArtifactUploadRequest)
		wantErr string
	}{
		{"empty buffer", func(r *ArtifactUploadRequest) { r.FileBuffer = nil }, "file buffer"},
		{"no filename", func(r *ArtifactUploadRequest) { r.Filename = "" }, "filename"},
		{"no source id", func(r *ArtifactUploadRequest) { r.SourceID = "" }, "source_id"},
		{"http error", func(r *ArtifactUploadRequest) {}, "HTTP 500"},
		{"success false", func(r *ArtifactUploadRequest) { r.SourceService = "fail" }, "success=false"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(req)
			_, err := client.UploadArtifact(context.Background(), req)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestArtifactHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewArtifactClient(srv.URL).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
