package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the extraction auditor
 *
 * Capability and per-operation failures are absorbed by the analysis
 * components and recorded as data; only job-level failures (invalid job,
 * download, storage, job timeout) travel up as returned errors.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Capability errors
	ErrorCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"
	ErrorMalformedInput        ErrorCode = "MALFORMED_INPUT"

	// Per-operation errors
	ErrorDetectionFailed  ErrorCode = "DETECTION_FAILED"
	ErrorDetectionTimeout ErrorCode = "DETECTION_TIMEOUT"
	ErrorOCRFailed        ErrorCode = "OCR_FAILED"
	ErrorOCRTimeout       ErrorCode = "OCR_TIMEOUT"
	ErrorBackendFailed    ErrorCode = "BACKEND_FAILED"
	ErrorRasterizeFailed  ErrorCode = "RASTERIZE_FAILED"
	ErrorExtractionFailed ErrorCode = "EXTRACTION_FAILED"

	// Job errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorStorageFailed     ErrorCode = "STORAGE_FAILED"
	ErrorInvalidJob        ErrorCode = "INVALID_JOB"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Page      int
	Engine    string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewCapabilityUnavailableError(capability string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorCapabilityUnavailable,
		Message:   fmt.Sprintf("%s capability not configured", capability),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"capability": capability,
		},
	}
}

func NewDetectionError(page int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDetectionFailed,
		Message:   fmt.Sprintf("layout detection failed on page %d", page),
		Page:      page,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDetectionTimeoutError(page int, timeout time.Duration) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDetectionTimeout,
		Message:   fmt.Sprintf("layout detection on page %d timed out after %v", page, timeout),
		Page:      page,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": timeout.String(),
		},
	}
}

func NewOCRFailedError(engine string, page int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR engine %s failed on page %d", engine, page),
		Page:      page,
		Engine:    engine,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewOCRTimeoutError(engine string, page int, timeout time.Duration) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRTimeout,
		Message:   fmt.Sprintf("OCR engine %s timed out on page %d after %v", engine, page, timeout),
		Page:      page,
		Engine:    engine,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": timeout.String(),
		},
	}
}

func NewBackendFailedError(backend string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorBackendFailed,
		Message:   fmt.Sprintf("image backend %s failed", backend),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"backend": backend,
		},
		Cause: cause,
	}
}

func NewRasterizeFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRasterizeFailed,
		Message:   "failed to rasterize document pages",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewExtractionFailedError(jobID string, mimeType string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorExtractionFailed,
		Message:   fmt.Sprintf("native text extraction failed for %s", mimeType),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store audit report",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewInvalidJobError(jobID string, reason string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidJob,
		Message:   fmt.Sprintf("invalid job: %s", reason),
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not a ProcessingError
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsTimeout reports whether err is a timeout, structured or context-based
func IsTimeout(err error) bool {
	switch CodeOf(err) {
	case ErrorDetectionTimeout, ErrorOCRTimeout, ErrorProcessingTimeout:
		return true
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.JobID != "" {
		result["job_id"] = e.JobID
	}
	if e.Page > 0 {
		result["page"] = e.Page
	}
	if e.Engine != "" {
		result["engine"] = e.Engine
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
