/**
 * Direct Redis Queue Consumer for the Extraction Auditor
 *
 * Compatible with the TypeScript RedisQueue implementation: job IDs are
 * pushed onto a LIST and job bodies live in the <queue>:data hash.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/errors"
	"github.com/adverant/nexus/extraction-auditor/internal/logging"
	"github.com/adverant/nexus/extraction-auditor/internal/processor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const auditJobType = "audit-document"

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.AuditProcessorInterface
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxRetries        int
	Processor         processor.AuditProcessorInterface
	ProcessingTimeout time.Duration // default 5 minutes
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "audit:jobs"
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logging.NewLogger("RedisConsumer").With("queue", cfg.QueueName),
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Workers did not stop before shutdown deadline")
	}
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	logger := c.logger.With("worker", id)
	logger.Debug("Worker started")

	for {
		select {
		case <-c.ctx.Done():
			logger.Debug("Worker stopping")
			return
		default:
		}

		if err := c.processNextJob(); err != nil && c.ctx.Err() == nil {
			logger.Error("Worker error", "error", err)
			time.Sleep(time.Second)
		}
	}
}

// processNextJob blocks for up to 5 seconds waiting for a job
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}
	id := result[1]

	raw, err := c.client.HGet(c.ctx, key(c.config.QueueName, "data"), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	job, err := decodeJob([]byte(raw))
	if err != nil {
		c.logger.Error("Discarding malformed job", "id", id, "error", err)
		c.updateJobStatus(c.ctx, id, StatusFailed, failureMetadata(
			errors.NewInvalidJobError(id, "malformed payload", err), 0))
		return nil
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}

	c.handle(job)
	return nil
}

// decodeJob parses a stored job, validating its payload against the schema
func decodeJob(raw []byte) (*RedisJobData, error) {
	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if len(envelope.Payload) == 0 {
		return nil, fmt.Errorf("job has no payload")
	}
	if err := ValidatePayload(envelope.Payload); err != nil {
		return nil, err
	}

	var job RedisJobData
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (c *RedisConsumer) handle(job *RedisJobData) {
	jobID := job.Payload.JobID
	logger := c.logger.With("job", jobID)
	startTime := time.Now()

	c.updateJobStatus(c.ctx, jobID, StatusProcessing, map[string]interface{}{
		"filename": job.Payload.Filename,
		"mimeType": job.Payload.MimeType,
	})

	timeout := timeoutOrDefault(c.config.ProcessingTimeout)
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	logger.Info("Processing job", "filename", job.Payload.Filename, "timeout", timeout.String())
	report, err := c.processor.ProcessDocument(ctx, job.Payload.ToRequest())
	duration := time.Since(startTime)

	if err != nil {
		job.Attempts++
		if retryable(err, job.Attempts, job.MaxRetriesOr(c.config.MaxRetries)) && c.ctx.Err() == nil {
			requeueErr := c.requeue(job)
			if requeueErr == nil {
				logger.Warn("Job failed, re-queued for retry",
					"attempt", job.Attempts, "error", err)
				return
			}
			logger.Error("Failed to re-queue job", "error", requeueErr)
		}

		logger.Error("Job failed", "duration", duration.String(), "error", err)
		c.updateJobStatus(c.ctx, jobID, StatusFailed, failureMetadata(err, duration))
		return
	}

	logger.Info("Job completed",
		"duration", duration.String(),
		"documentType", report.Scanned.DocumentType,
		"approach", report.Advice.RecommendedApproach)
	c.updateJobStatus(c.ctx, jobID, StatusCompleted, processor.CompletionMetadata(report))
}

// MaxRetriesOr returns the job's retry budget, or def when the job has none
func (j *RedisJobData) MaxRetriesOr(def int) int {
	if j.MaxRetries > 0 {
		return j.MaxRetries
	}
	return def
}

func (c *RedisConsumer) requeue(job *RedisJobData) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(c.ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(c.ctx, key(c.config.QueueName, "data"), job.ID, data)
		pipe.SRem(c.ctx, key(c.config.QueueName, "processing"), job.Payload.JobID)
		pipe.LPush(c.ctx, c.config.QueueName, job.ID)
		return nil
	})
	return err
}

// updateJobStatus updates the status of a job in both Redis and PostgreSQL
// and publishes a job event.
func (c *RedisConsumer) updateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) {
	logger := c.logger.With("job", jobID)

	if t, ok := transitionFor(c.config.QueueName, status); ok {
		_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			if t.remove != "" {
				pipe.SRem(ctx, t.remove, jobID)
			}
			pipe.SAdd(ctx, t.add, jobID)
			if t.hash != "" && metadata != nil {
				body, _ := json.Marshal(metadata)
				pipe.HSet(ctx, t.hash, jobID, body)
			}
			return nil
		})
		if err != nil {
			logger.Warn("Failed to update Redis job status", "status", status, "error", err)
		}
	}

	progress := 0
	if status == StatusCompleted || status == StatusFailed {
		progress = 100
	}
	if err := c.processor.UpdateJobStatus(ctx, jobID, status, progress, metadata); err != nil {
		logger.Warn("Failed to update PostgreSQL job status", "status", status, "error", err)
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(ctx, key(c.config.QueueName, "events"), eventData)
}

// Submit enqueues a job in the TypeScript-compatible format
func (c *RedisConsumer) Submit(ctx context.Context, payload *JobPayload) (string, error) {
	return submitRedis(ctx, c.client, c.config.QueueName, c.config.MaxRetries, payload)
}

func submitRedis(ctx context.Context, client *redis.Client, queue string, maxRetries int, payload *JobPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	job := RedisJobData{
		ID:         payload.JobID,
		Type:       auditJobType,
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key(queue, "data"), job.ID, data)
		pipe.LPush(ctx, queue, job.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, key(c.config.QueueName, "processing"))
	completed := pipe.SCard(ctx, key(c.config.QueueName, "completed"))
	failed := pipe.SCard(ctx, key(c.config.QueueName, "failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
