/**
 * HTTP API for the Extraction Auditor
 *
 * Synchronous audits, stored report lookup, similar-document search and
 * queue statistics. The queue consumers remain the primary intake.
 */

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/logging"
	"github.com/adverant/nexus/extraction-auditor/internal/processor"
	"github.com/adverant/nexus/extraction-auditor/internal/queue"
	"github.com/adverant/nexus/extraction-auditor/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Auditor runs audits
type Auditor interface {
	ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.AuditReport, error)
	AuditText(ctx context.Context, text string) *processor.AuditReport
	Capabilities() *processor.Capabilities
}

// ReportReader reads stored reports
type ReportReader interface {
	GetReport(ctx context.Context, id string) ([]byte, error)
	SimilarReports(ctx context.Context, id string, limit int) ([]storage.SimilarReport, error)
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Queue accepts asynchronous audit jobs
type Queue interface {
	Submit(ctx context.Context, payload *queue.JobPayload) (string, error)
	GetStats(ctx context.Context) (map[string]int64, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	CORSOrigins    []string
	Auditor        Auditor
	Reports        ReportReader // optional
	Queue          Queue        // optional
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// Server wraps the HTTP server instance and its handlers
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *logging.Logger
}

// NewServer builds and wires all routes
func NewServer(cfg *ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	logger := logging.NewLogger("API")
	h := &handlers{
		auditor:      cfg.Auditor,
		reports:      cfg.Reports,
		queue:        cfg.Queue,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/audits", func(audits chi.Router) {
			audits.Post("/", h.createAudit)
			audits.Post("/text", h.auditText)
			audits.Get("/{id}", h.getReport)
			audits.Get("/{id}/similar", h.similarReports)
		})
		api.Get("/queue/stats", h.queueStats)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		handler: r,
		logger:  logger,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs the HTTP server until it is shut down
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("Request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"requestId", middleware.GetReqID(r.Context()))
		})
	}
}
