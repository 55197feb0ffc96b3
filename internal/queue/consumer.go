/**
 * Asynq Queue Consumer for the Extraction Auditor
 *
 * Alternative transport to the BRPOP consumer. Asynq owns retries and
 * task bookkeeping; job status still goes to PostgreSQL via the processor.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/errors"
	"github.com/adverant/nexus/extraction-auditor/internal/logging"
	"github.com/adverant/nexus/extraction-auditor/internal/processor"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Consumer handles job consumption through asynq
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	enqueuer  *Enqueuer
	processor processor.AuditProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxRetries        int
	Processor         processor.AuditProcessorInterface
	ProcessingTimeout time.Duration // default 5 minutes
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("AsynqConsumer").With("queue", cfg.QueueName)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// 5s, 10s, 20s ... capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: &asynqLogger{logger: logging.NewLogger("asynq")},
		},
	)

	consumer := &Consumer{
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
		enqueuer:  newEnqueuer(asynq.NewClient(redisOpt), cfg.QueueName, cfg.MaxRetries),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}
	consumer.mux.HandleFunc(auditJobType, consumer.handleAuditDocument)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()

	if err := c.inspector.Close(); err != nil {
		c.logger.Warn("Failed to close inspector", "error", err)
	}
	if err := c.enqueuer.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleAuditDocument processes one audit task
func (c *Consumer) handleAuditDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	payload, err := DecodePayload(task.Payload())
	if err != nil {
		jobID, _ := asynq.GetTaskID(ctx)
		invalid := errors.NewInvalidJobError(jobID, "malformed payload", err)
		c.fail(ctx, jobID, invalid, 0)
		return fmt.Errorf("%v: %w", invalid, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		payload.JobID, _ = asynq.GetTaskID(ctx)
	}
	logger := c.logger.With("job", payload.JobID)

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, StatusProcessing, 0, map[string]interface{}{
		"filename": payload.Filename,
		"mimeType": payload.MimeType,
	}); err != nil {
		logger.Warn("Failed to update status to processing", "error", err)
	}

	timeout := timeoutOrDefault(c.config.ProcessingTimeout)
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info("Processing job", "filename", payload.Filename, "timeout", timeout.String())
	report, err := c.processor.ProcessDocument(processCtx, payload.ToRequest())
	duration := time.Since(startTime)

	if err != nil {
		logger.Error("Processing failed", "duration", duration.String(), "error", err)
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if !retryable(err, retried, maxRetry) {
			c.fail(ctx, payload.JobID, err, duration)
		}
		if errors.CodeOf(err) == errors.ErrorInvalidJob {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("audit failed: %w", err)
	}

	logger.Info("Job completed",
		"duration", duration.String(),
		"documentType", report.Scanned.DocumentType,
		"approach", report.Advice.RecommendedApproach)

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, StatusCompleted, 100, processor.CompletionMetadata(report)); err != nil {
		logger.Warn("Failed to update status to completed", "error", err)
	}
	if body, err := json.Marshal(processor.CompletionMetadata(report)); err == nil {
		if _, err := task.ResultWriter().Write(body); err != nil {
			logger.Debug("Failed to write task result", "error", err)
		}
	}
	return nil
}

func (c *Consumer) fail(ctx context.Context, jobID string, err error, duration time.Duration) {
	if jobID == "" {
		return
	}
	if updateErr := c.processor.UpdateJobStatus(ctx, jobID, StatusFailed, 100, failureMetadata(err, duration)); updateErr != nil {
		c.logger.Warn("Failed to update status to failed", "job", jobID, "error", updateErr)
	}
}

// Submit enqueues an audit task
func (c *Consumer) Submit(ctx context.Context, payload *JobPayload) (string, error) {
	return c.enqueuer.Submit(ctx, payload)
}

// GetStats returns queue statistics from the asynq inspector
func (c *Consumer) GetStats(ctx context.Context) (map[string]int64, error) {
	info, err := c.inspector.GetQueueInfo(c.config.QueueName)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return map[string]int64{
		"waiting":    int64(info.Pending + info.Scheduled + info.Retry),
		"processing": int64(info.Active),
		"completed":  int64(info.Completed),
		"failed":     int64(info.Archived),
	}, nil
}

// Enqueuer submits audit tasks to an asynq queue
type Enqueuer struct {
	client     *asynq.Client
	queue      string
	maxRetries int
}

func newEnqueuer(client *asynq.Client, queue string, maxRetries int) *Enqueuer {
	return &Enqueuer{client: client, queue: queue, maxRetries: maxRetries}
}

// Submit enqueues payload, assigning a job ID when it has none
func (e *Enqueuer) Submit(ctx context.Context, payload *JobPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	task, err := newAuditTask(payload)
	if err != nil {
		return "", err
	}

	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(e.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(e.maxRetries),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info.ID, nil
}

// Close closes the underlying client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

func newAuditTask(payload *JobPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(auditJobType, body), nil
}

// asynqLogger routes asynq's internal logging through the structured logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
