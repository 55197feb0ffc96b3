/**
 * Extraction Auditor Worker - Main Entry Point
 *
 * Audits how well text can be extracted from a document before it is sent
 * through the FileProcess pipeline.
 *
 * Architecture:
 * - Redis BRPOP or asynq consumer for the audit job queue
 * - Audit pipeline: native text quality, structure vs. layout reconciliation,
 *   scanned-document classification, OCR engine benchmark, extraction advice
 * - MageAgent for layout detection and vision OCR (optional)
 * - PostgreSQL for job status and reports, Qdrant for similar-document search
 * - HTTP API for synchronous audits and report lookup
 *
 * Every external capability is optional; missing capabilities are reported
 * in the audit instead of failing it.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/api"
	"github.com/adverant/nexus/extraction-auditor/internal/clients"
	"github.com/adverant/nexus/extraction-auditor/internal/config"
	"github.com/adverant/nexus/extraction-auditor/internal/extract"
	"github.com/adverant/nexus/extraction-auditor/internal/images"
	"github.com/adverant/nexus/extraction-auditor/internal/layout"
	"github.com/adverant/nexus/extraction-auditor/internal/logging"
	"github.com/adverant/nexus/extraction-auditor/internal/ocrbench"
	"github.com/adverant/nexus/extraction-auditor/internal/processor"
	"github.com/adverant/nexus/extraction-auditor/internal/queue"
	"github.com/adverant/nexus/extraction-auditor/internal/render"
	"github.com/adverant/nexus/extraction-auditor/internal/runner"
	"github.com/adverant/nexus/extraction-auditor/internal/storage"
	"github.com/joho/godotenv"
)

// consumer is implemented by both queue transports
type consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Submit(ctx context.Context, payload *queue.JobPayload) (string, error)
	GetStats(ctx context.Context) (map[string]int64, error)
}

func main() {
	if err := godotenv.Load(".env.auditor"); err != nil {
		log.Printf("Warning: .env.auditor not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger("Worker")
	logger.Info("Extraction Auditor starting",
		"environment", cfg.Environment,
		"transport", cfg.QueueTransport,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency)

	ctx := context.Background()
	adapters := buildAdapters(ctx, cfg, logger)

	// Storage is optional; without it reports are returned but not kept
	var (
		storageManager *storage.StorageManager
		reports        api.ReportReader
		store          processor.ReportStore
	)
	if cfg.DatabaseURL != "" {
		storageManager, err = storage.NewStorageManager(cfg.DatabaseURL, cfg.QdrantURL, cfg.QdrantCollection)
		if err != nil {
			log.Fatalf("Failed to initialize storage manager: %v", err)
		}
		schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := storageManager.EnsureSchema(schemaCtx); err != nil {
			cancel()
			log.Fatalf("Failed to ensure database schema: %v", err)
		}
		cancel()
		reports, store = storageManager, storageManager
		logger.Info("Storage initialized", "qdrant", cfg.QdrantURL, "collection", cfg.QdrantCollection)
	} else {
		logger.Warn("DATABASE_URL not set, reports will not be persisted")
	}

	var artifacts processor.ArtifactUploader
	if cfg.UploadReports {
		artifactClient := clients.NewArtifactClient(cfg.FileProcessAPIURL)
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := artifactClient.HealthCheck(healthCtx); err != nil {
			logger.Warn("Artifact API not reachable, uploads may fail", "url", cfg.FileProcessAPIURL, "error", err)
		}
		cancel()
		artifacts = artifactClient
	}

	proc, err := processor.NewAuditProcessor(&processor.ProcessorConfig{
		Capabilities:   processor.NewCapabilities(cfg.Thresholds, adapters),
		Store:          store,
		Artifacts:      artifacts,
		MaxFileSize:    cfg.MaxFileSize,
		MaxRenderPages: cfg.MaxRenderPages,
		TempDir:        cfg.TempDir,
	})
	if err != nil {
		log.Fatalf("Failed to initialize audit processor: %v", err)
	}
	logger.Info("Audit processor initialized", "capabilities", proc.Capabilities().Describe())

	queueConsumer, err := newConsumer(cfg, proc)
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}
	if err := queueConsumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	server := api.NewServer(&api.ServerConfig{
		Port:           cfg.HTTPPort,
		CORSOrigins:    cfg.CORSOrigins,
		Auditor:        proc,
		Reports:        reports,
		Queue:          queueConsumer,
		MaxBodyBytes:   cfg.MaxFileSize*4/3 + (1 << 20), // base64 overhead plus JSON envelope
		RequestTimeout: cfg.ProcessingTimeout,
	})
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("===========================================")
	log.Printf("Extraction Auditor is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s (%s)", cfg.QueueName, cfg.QueueTransport)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("HTTP: :%s", cfg.HTTPPort)
	log.Printf("OCR engines: %v (preprocess: %s)", cfg.OCREngines, cfg.OCRPreprocess)
	log.Printf("===========================================")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}
	if err := queueConsumer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}
	if storageManager != nil {
		if err := storageManager.Close(); err != nil {
			logger.Error("Error closing storage manager", "error", err)
		}
	}

	logger.Info("Shutdown complete")
}

// buildAdapters wires the external capabilities that are configured and present
func buildAdapters(ctx context.Context, cfg *config.Config, logger *logging.Logger) processor.Adapters {
	run := runner.NewExecRunner(logging.NewLogger("Runner"))
	adapters := processor.Adapters{
		Extractors: []extract.Extractor{
			extract.NewDocconvExtractor(false),
			extract.NewPDFTextExtractor(),
		},
	}

	if runner.Available(cfg.PdftoppmPath) {
		adapters.Rasterizer = render.NewPopplerRasterizer(run, render.Config{
			Binary:   cfg.PdftoppmPath,
			DPI:      cfg.RenderDPI,
			MaxPages: cfg.MaxRenderPages,
			TempDir:  cfg.TempDir,
		})
	} else {
		logger.Warn("pdftoppm not found, layout detection and OCR benchmark disabled for PDFs", "binary", cfg.PdftoppmPath)
	}

	if runner.Available("pdfimages") {
		adapters.ImageBackends = append(adapters.ImageBackends, images.NewPopplerBackend(run))
	}
	adapters.ImageBackends = append(adapters.ImageBackends, images.NewPDFBackend())

	var mage *clients.MageAgentClient
	if cfg.MageAgentURL != "" {
		mage = clients.NewMageAgentClient(cfg.MageAgentURL, cfg.MageAgentTimeout)
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := mage.HealthCheck(healthCtx); err != nil {
			logger.Warn("MageAgent not reachable, layout and vision calls may fail", "url", cfg.MageAgentURL, "error", err)
		}
		cancel()
		adapters.Detector = layout.NewMageAgentDetector(mage, cfg.OCRLanguage)
	}

	preprocess, err := ocrbench.ParsePreprocessMode(cfg.OCRPreprocess)
	if err != nil {
		logger.Warn("Invalid OCR preprocess mode, disabling preprocessing", "mode", cfg.OCRPreprocess, "error", err)
	}

	seen := map[string]bool{}
	for _, name := range cfg.OCREngines {
		if seen[name] {
			logger.Warn("Duplicate OCR engine, skipping", "engine", name)
			continue
		}
		seen[name] = true
		switch name {
		case "tesseract":
			adapters.Engines = append(adapters.Engines,
				ocrbench.NewTesseractEngine(cfg.OCRLanguage).WithPreprocessing(preprocess))
		case "tesseract-cli":
			if !runner.Available(cfg.TesseractPath) {
				logger.Warn("tesseract binary not found, skipping engine", "binary", cfg.TesseractPath)
				continue
			}
			adapters.Engines = append(adapters.Engines,
				ocrbench.NewTesseractCLIEngine(run, cfg.TesseractPath, cfg.OCRLanguage, cfg.TempDir).WithPreprocessing(preprocess))
		case "vision", "vision-accurate":
			if mage == nil {
				logger.Warn("MAGEAGENT_URL not set, skipping engine", "engine", name)
				continue
			}
			adapters.Engines = append(adapters.Engines,
				ocrbench.NewVisionEngine(mage, name == "vision-accurate", cfg.OCRLanguage))
		default:
			logger.Warn("Unknown OCR engine, skipping", "engine", name)
		}
	}

	return adapters
}

func newConsumer(cfg *config.Config, proc *processor.AuditProcessor) (consumer, error) {
	if cfg.QueueTransport == "asynq" {
		return queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: cfg.ProcessingTimeout,
		})
	}
	return queue.NewRedisConsumer(&queue.RedisConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		ProcessingTimeout: cfg.ProcessingTimeout,
	})
}
