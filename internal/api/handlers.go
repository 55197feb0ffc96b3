package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/adverant/nexus/extraction-auditor/internal/errors"
	"github.com/adverant/nexus/extraction-auditor/internal/logging"
	"github.com/adverant/nexus/extraction-auditor/internal/queue"
	"github.com/adverant/nexus/extraction-auditor/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type handlers struct {
	auditor      Auditor
	reports      ReportReader
	queue        Queue
	maxBodyBytes int64
	logger       *logging.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":       "ok",
		"capabilities": h.auditor.Capabilities().Describe(),
	}
	if h.reports != nil {
		stats, err := h.reports.GetStats(r.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["storage_error"] = err.Error()
		} else {
			resp["storage"] = stats
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// createAudit runs an audit synchronously, or enqueues it with ?async=true
func (h *handlers) createAudit(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := queue.DecodePayload(body)
	if err != nil {
		writeError(w, errors.NewInvalidJobError("", "invalid audit payload", err))
		return
	}
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if h.queue == nil {
			writeError(w, errors.NewCapabilityUnavailableError("queue"))
			return
		}
		id, err := h.queue.Submit(r.Context(), payload)
		if err != nil {
			h.logger.Error("Failed to enqueue audit", "job", payload.JobID, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id, "status": "queued"})
		return
	}

	report, err := h.auditor.ProcessDocument(r.Context(), payload.ToRequest())
	if err != nil {
		h.logger.Warn("Audit failed", "job", payload.JobID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type textAuditRequest struct {
	Text string `json:"text"`
}

func (h *handlers) auditText(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req textAuditRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.NewInvalidJobError("", "invalid JSON body", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, errors.NewInvalidJobError("", "text is required", nil))
		return
	}

	writeJSON(w, http.StatusOK, h.auditor.AuditText(r.Context(), req.Text))
}

func (h *handlers) getReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, errors.NewCapabilityUnavailableError("storage"))
		return
	}

	id := chi.URLParam(r, "id")
	body, err := h.reports.GetReport(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *handlers) similarReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, errors.NewCapabilityUnavailableError("storage"))
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 50 {
			writeError(w, errors.NewInvalidJobError("", "limit must be between 1 and 50", err))
			return
		}
		limit = n
	}

	id := chi.URLParam(r, "id")
	similar, err := h.reports.SimilarReports(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"similar": similar,
	})
}

func (h *handlers) queueStats(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, errors.NewCapabilityUnavailableError("queue"))
		return
	}
	stats, err := h.queue.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.NewInvalidJobError("", fmt.Sprintf("request body exceeds %d bytes", h.maxBodyBytes), err)
		}
		return nil, errors.NewInvalidJobError("", "failed to read request body", err)
	}
	return body, nil
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	switch {
	case storage.IsNotFound(err):
		return http.StatusNotFound
	case stderrors.Is(err, storage.ErrSimilarityUnavailable):
		return http.StatusServiceUnavailable
	case errors.IsTimeout(err):
		return http.StatusGatewayTimeout
	}

	switch errors.CodeOf(err) {
	case errors.ErrorInvalidJob, errors.ErrorMalformedInput:
		return http.StatusBadRequest
	case errors.ErrorCapabilityUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	resp := map[string]interface{}{"error": err.Error()}
	if code := errors.CodeOf(err); code != "" {
		resp["code"] = string(code)
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
