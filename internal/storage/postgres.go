/**
 * PostgreSQL Client for the Extraction Auditor
 *
 * Persists job status and finished audit reports. Reports are stored as
 * JSONB next to the handful of columns the API filters on.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	Progress         int
	Filename         string
	MimeType         string
	DocumentType     string
	Approach         string
	QualityValue     int
	MatchScore       float64
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// ReportRecord is a finished audit as stored
type ReportRecord struct {
	ID                string
	JobID             string
	Filename          string
	MimeType          string
	DocumentType      string
	Approach          string
	MatchScore        float64
	QualityValue      int
	ScannedConfidence float64
	Evidence          []string
	Report            []byte // JSON document
	Profile           []float32
	CreatedAt         time.Time
}

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS auditor;

CREATE TABLE IF NOT EXISTS auditor.audit_jobs (
	id                 TEXT PRIMARY KEY,
	status             TEXT NOT NULL,
	progress           INTEGER NOT NULL DEFAULT 0,
	filename           TEXT,
	mime_type          TEXT,
	document_type      TEXT,
	approach           TEXT,
	quality_value      INTEGER,
	match_score        NUMERIC(5,4),
	processing_time_ms BIGINT,
	error_code         TEXT,
	error_message      TEXT,
	metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS auditor.audit_reports (
	id                 UUID PRIMARY KEY,
	job_id             TEXT NOT NULL,
	filename           TEXT,
	mime_type          TEXT,
	document_type      TEXT NOT NULL,
	approach           TEXT NOT NULL,
	match_score        NUMERIC(5,4) NOT NULL,
	quality_value      INTEGER NOT NULL,
	scanned_confidence DOUBLE PRECISION NOT NULL,
	evidence           TEXT[] NOT NULL DEFAULT '{}',
	profile            REAL[] NOT NULL,
	report             JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS audit_reports_job_id_idx ON auditor.audit_reports (job_id);
`

// sanitizeScore rounds a [0,1] score to 4 decimal places so it fits NUMERIC(5,4)
func sanitizeScore(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return float64(int(score*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the auditor schema and tables if missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job row. Empty fields keep their stored values.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if update.Metadata == nil {
		metadataJSON = nil
	}

	query := `
		INSERT INTO auditor.audit_jobs (
			id, status, progress, filename, mime_type,
			document_type, approach, quality_value, match_score,
			processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), NULLIF($5, ''),
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, -1), NULLIF($9::NUMERIC(5,4), -1),
			NULLIF($10, 0), NULLIF($11, ''), NULLIF($12, ''),
			COALESCE($13::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			filename = COALESCE(EXCLUDED.filename, auditor.audit_jobs.filename),
			mime_type = COALESCE(EXCLUDED.mime_type, auditor.audit_jobs.mime_type),
			document_type = COALESCE(EXCLUDED.document_type, auditor.audit_jobs.document_type),
			approach = COALESCE(EXCLUDED.approach, auditor.audit_jobs.approach),
			quality_value = COALESCE(EXCLUDED.quality_value, auditor.audit_jobs.quality_value),
			match_score = COALESCE(EXCLUDED.match_score, auditor.audit_jobs.match_score),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, auditor.audit_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = auditor.audit_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	// -1 marks "not measured yet" for the numeric columns
	qualityValue, matchScore := -1, -1.0
	if update.Status == "completed" {
		qualityValue = update.QualityValue
		matchScore = sanitizeScore(update.MatchScore)
	}

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.Status,           // $2
		update.Progress,         // $3
		update.Filename,         // $4
		update.MimeType,         // $5
		update.DocumentType,     // $6
		update.Approach,         // $7
		qualityValue,            // $8
		matchScore,              // $9
		update.ProcessingTimeMs, // $10
		update.ErrorCode,        // $11
		update.ErrorMessage,     // $12
		metadataJSON,            // $13
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// InsertReport stores a finished report and returns its creation time
func (p *PostgresClient) InsertReport(ctx context.Context, rec *ReportRecord) (time.Time, error) {
	query := `
		INSERT INTO auditor.audit_reports (
			id, job_id, filename, mime_type, document_type, approach,
			match_score, quality_value, scanned_confidence, evidence,
			profile, report, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC(5,4), $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`

	var createdAt time.Time
	err := p.db.QueryRowContext(
		ctx,
		query,
		rec.ID,
		rec.JobID,
		rec.Filename,
		rec.MimeType,
		rec.DocumentType,
		rec.Approach,
		sanitizeScore(rec.MatchScore),
		rec.QualityValue,
		rec.ScannedConfidence,
		pq.Array(rec.Evidence),
		pq.Array(rec.Profile),
		sanitizeJSONForPostgres(rec.Report),
	).Scan(&createdAt)

	if err != nil {
		return time.Time{}, fmt.Errorf("failed to store report: %w", err)
	}

	return createdAt, nil
}

// GetReport loads a report by report ID or job ID (latest report for the job)
func (p *PostgresClient) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("report ID is required")
	}

	query := `
		SELECT
			id, job_id, filename, mime_type, document_type, approach,
			match_score, quality_value, scanned_confidence, evidence,
			profile, report, created_at
		FROM auditor.audit_reports
		WHERE id::text = $1 OR job_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var (
		rec                ReportRecord
		filename, mimeType sql.NullString
		profile            pq.Float32Array
	)

	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.JobID, &filename, &mimeType, &rec.DocumentType, &rec.Approach,
		&rec.MatchScore, &rec.QualityValue, &rec.ScannedConfidence, pq.Array(&rec.Evidence),
		&profile, &rec.Report, &rec.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	rec.Filename = filename.String
	rec.MimeType = mimeType.String
	rec.Profile = []float32(profile)

	return &rec, nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, status, progress, filename, mime_type, document_type, approach,
			quality_value, match_score, processing_time_ms, error_code, error_message,
			metadata, created_at, updated_at
		FROM auditor.audit_jobs
		WHERE id = $1
	`

	var (
		id, status              string
		progress                int
		filename, mimeType      sql.NullString
		documentType, approach  sql.NullString
		qualityValue            sql.NullInt64
		matchScore              sql.NullFloat64
		processingTimeMs        sql.NullInt64
		errorCode, errorMessage sql.NullString
		metadataJSON            []byte
		createdAt, updatedAt    time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &status, &progress, &filename, &mimeType, &documentType, &approach,
		&qualityValue, &matchScore, &processingTimeMs, &errorCode, &errorMessage,
		&metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":        id,
		"status":    status,
		"progress":  progress,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
		"metadata":  metadata,
	}

	optional := map[string]interface{}{}
	if filename.Valid {
		optional["filename"] = filename.String
	}
	if mimeType.Valid {
		optional["mimeType"] = mimeType.String
	}
	if documentType.Valid {
		optional["documentType"] = documentType.String
	}
	if approach.Valid {
		optional["approach"] = approach.String
	}
	if qualityValue.Valid {
		optional["qualityValue"] = qualityValue.Int64
	}
	if matchScore.Valid {
		optional["matchScore"] = matchScore.Float64
	}
	if processingTimeMs.Valid {
		optional["processingTimeMs"] = processingTimeMs.Int64
	}
	if errorCode.Valid {
		optional["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		optional["errorMessage"] = errorMessage.String
	}
	for k, v := range optional {
		result[k] = v
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
