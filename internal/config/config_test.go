package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/quality"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.QueueName != "audit:jobs" || cfg.QueueTransport != "redis" {
		t.Errorf("queue defaults: %s/%s", cfg.QueueName, cfg.QueueTransport)
	}
	if cfg.ProcessingTimeout != 5*time.Minute {
		t.Errorf("processing timeout: %v", cfg.ProcessingTimeout)
	}
	if len(cfg.OCREngines) != 1 || cfg.OCREngines[0] != "tesseract" {
		t.Errorf("engines: %v", cfg.OCREngines)
	}
	if cfg.Thresholds.Quality != quality.DefaultConfig() {
		t.Errorf("thresholds should default to the component defaults")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("QUEUE_TRANSPORT", "asynq")
	t.Setenv("PROCESSING_TIMEOUT", "90000")
	t.Setenv("MAGEAGENT_TIMEOUT", "45s")
	t.Setenv("OCR_ENGINES", "tesseract, vision ,")
	t.Setenv("MAGEAGENT_URL", "http://mageagent:8080")
	t.Setenv("UPLOAD_REPORTS", "true")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.QueueTransport != "asynq" {
		t.Errorf("transport: %s", cfg.QueueTransport)
	}
	if cfg.ProcessingTimeout != 90*time.Second {
		t.Errorf("bare milliseconds should parse: %v", cfg.ProcessingTimeout)
	}
	if cfg.MageAgentTimeout != 45*time.Second {
		t.Errorf("duration string should parse: %v", cfg.MageAgentTimeout)
	}
	if strings.Join(cfg.OCREngines, "|") != "tesseract|vision" {
		t.Errorf("engines: %v", cfg.OCREngines)
	}
	if !cfg.UploadReports {
		t.Error("UPLOAD_REPORTS not applied")
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.WorkerConcurrency)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RedisURL:          "redis://localhost:6379",
			QueueTransport:    "redis",
			WorkerConcurrency: 4,
			MaxFileSize:       1 << 20,
			ProcessingTimeout: time.Minute,
			RenderDPI:         150,
			OCREngines:        []string{"tesseract"},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing redis", func(c *Config) { c.RedisURL = "" }, "REDIS_URL"},
		{"bad transport", func(c *Config) { c.QueueTransport = "kafka" }, "QUEUE_TRANSPORT"},
		{"concurrency", func(c *Config) { c.WorkerConcurrency = 0 }, "WORKER_CONCURRENCY"},
		{"file size", func(c *Config) { c.MaxFileSize = 10 }, "MAX_FILE_SIZE"},
		{"timeout", func(c *Config) { c.ProcessingTimeout = time.Millisecond }, "PROCESSING_TIMEOUT"},
		{"dpi", func(c *Config) { c.RenderDPI = 1200 }, "RENDER_DPI"},
		{"unknown engine", func(c *Config) { c.OCREngines = []string{"abbyy"} }, "unknown OCR engine"},
		{"vision without mageagent", func(c *Config) { c.OCREngines = []string{"vision"} }, "MAGEAGENT_URL"},
		{"upload without api", func(c *Config) { c.UploadReports = true }, "FILEPROCESS_API_URL"},
		{"preprocess mode", func(c *Config) { c.OCRPreprocess = "sharpen" }, "OCR_PREPROCESS"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadThresholdsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	yaml := `
quality:
  garbage_penalty: 4
layout:
  page_timeout: 45s
scanned:
  scanned_threshold: 75
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	th, err := LoadThresholds(path)
	if err != nil {
		t.Fatalf("LoadThresholds: %v", err)
	}

	def := DefaultThresholds()
	if th.Quality.GarbagePenalty != 4 {
		t.Errorf("garbage penalty: %v", th.Quality.GarbagePenalty)
	}
	if th.Quality.RunPenalty != def.Quality.RunPenalty {
		t.Errorf("unset keys must keep defaults, run penalty %v", th.Quality.RunPenalty)
	}
	if th.Layout.PageTimeout != 45*time.Second {
		t.Errorf("page timeout: %v", th.Layout.PageTimeout)
	}
	if th.Scanned.ScannedThreshold != 75 || th.Scanned.MixedThreshold != def.Scanned.MixedThreshold {
		t.Errorf("scanned: %+v", th.Scanned)
	}
	if th.Hierarchy != def.Hierarchy {
		t.Errorf("untouched section changed: %+v", th.Hierarchy)
	}
}

func TestLoadThresholdsMissingFile(t *testing.T) {
	if _, err := LoadThresholds(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
