package errors

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestProcessingErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewOCRFailedError("tesseract", 3, cause)

	wrapped := fmt.Errorf("benchmark: %w", err)
	if got := CodeOf(wrapped); got != ErrorOCRFailed {
		t.Errorf("CodeOf: got %s, want %s", got, ErrorOCRFailed)
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap did not return cause")
	}

	m := err.ToMap()
	if m["engine"] != "tesseract" || m["page"] != 3 {
		t.Errorf("ToMap missing engine/page: %v", m)
	}
	if m["cause"] != "connection refused" {
		t.Errorf("ToMap cause: got %v", m["cause"])
	}
}

func TestIsTimeout(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"detection timeout", NewDetectionTimeoutError(1, time.Second), true},
		{"ocr timeout", NewOCRTimeoutError("vision", 2, time.Second), true},
		{"deadline exceeded", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"plain failure", NewDetectionError(1, fmt.Errorf("boom")), false},
		{"unstructured", fmt.Errorf("boom"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTimeout(tc.err); got != tc.want {
				t.Errorf("IsTimeout: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCodeOfNonStructured(t *testing.T) {
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("expected empty code, got %s", got)
	}
}
