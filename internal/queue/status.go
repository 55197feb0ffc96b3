package queue

import (
	"fmt"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/errors"
)

// Job statuses shared by both consumers
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const defaultProcessingTimeout = 5 * time.Minute

// key builds a Redis key in the queue's namespace
func key(queue, suffix string) string {
	return fmt.Sprintf("%s:%s", queue, suffix)
}

// transition describes how a status change moves a job between Redis sets
type transition struct {
	remove string // set to leave, "" for none
	add    string // set to join
	hash   string // hash receiving the result or error body, "" for none
}

func transitionFor(queue, status string) (transition, bool) {
	switch status {
	case StatusProcessing:
		return transition{add: key(queue, "processing")}, true
	case StatusCompleted:
		return transition{remove: key(queue, "processing"), add: key(queue, "completed"), hash: key(queue, "results")}, true
	case StatusFailed:
		return transition{remove: key(queue, "processing"), add: key(queue, "failed"), hash: key(queue, "errors")}, true
	}
	return transition{}, false
}

// retryable reports whether a failed job should go back on the queue.
// Invalid jobs fail the same way every time.
func retryable(err error, attempts, maxRetries int) bool {
	if errors.CodeOf(err) == errors.ErrorInvalidJob {
		return false
	}
	return attempts < maxRetries
}

// failureMetadata is the status metadata recorded for a failed job
func failureMetadata(err error, duration time.Duration) map[string]interface{} {
	code := errors.CodeOf(err)
	if code == "" && errors.IsTimeout(err) {
		code = errors.ErrorProcessingTimeout
	}
	md := map[string]interface{}{
		"error":          err.Error(),
		"processingTime": duration.Milliseconds(),
	}
	if code != "" {
		md["errorCode"] = string(code)
	}
	return md
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultProcessingTimeout
}
