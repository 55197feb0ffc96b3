/**
 * Storage Manager for the Extraction Auditor
 *
 * Coordinates storage operations across PostgreSQL (reports, job status) and
 * Qdrant (audit profile vectors). Qdrant is optional; without it reports are
 * still stored but similarity search is unavailable.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job or report does not exist
var ErrNotFound = errors.New("not found")

// ErrSimilarityUnavailable is returned by SimilarReports without a vector store
var ErrSimilarityUnavailable = errors.New("similarity search unavailable: no vector store configured")

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StorageManager coordinates PostgreSQL and Qdrant operations
type StorageManager struct {
	postgres *PostgresClient
	qdrant   *QdrantClient
}

// SimilarReport is a stored report close to a query profile
type SimilarReport struct {
	ReportID     string  `json:"report_id"`
	JobID        string  `json:"job_id"`
	Filename     string  `json:"filename,omitempty"`
	DocumentType string  `json:"document_type,omitempty"`
	Approach     string  `json:"approach,omitempty"`
	Score        float32 `json:"score"`
}

// NewStorageManager creates a new storage manager. An empty qdrantAddress
// disables vector storage.
func NewStorageManager(postgresURL string, qdrantAddress string, qdrantCollection string) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	sm := &StorageManager{postgres: postgres}

	if qdrantAddress != "" {
		qdrant, err := NewQdrantClient(qdrantAddress, qdrantCollection)
		if err != nil {
			postgres.Close()
			return nil, fmt.Errorf("failed to initialize Qdrant client: %w", err)
		}
		sm.qdrant = qdrant
	}

	return sm, nil
}

// EnsureSchema creates the PostgreSQL tables if missing
func (sm *StorageManager) EnsureSchema(ctx context.Context) error {
	return sm.postgres.EnsureSchema(ctx)
}

// validateReport checks a record before anything is written
func validateReport(rec *ReportRecord) error {
	if rec == nil {
		return fmt.Errorf("report is required")
	}

	if rec.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if len(rec.Report) == 0 {
		return fmt.Errorf("report body is required")
	}

	if len(rec.Profile) != ProfileDimensions {
		return fmt.Errorf("invalid profile dimensions: expected %d, got %d", ProfileDimensions, len(rec.Profile))
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	} else if _, err := uuid.Parse(rec.ID); err != nil {
		return fmt.Errorf("report ID must be a UUID: %w", err)
	}

	return nil
}

// SaveReport stores the profile vector in Qdrant and then the report in
// PostgreSQL. The vector is removed again if the PostgreSQL write fails.
func (sm *StorageManager) SaveReport(ctx context.Context, rec *ReportRecord) (string, error) {
	if err := validateReport(rec); err != nil {
		return "", err
	}

	if sm.qdrant != nil {
		point := &VectorPoint{
			ID:     rec.ID,
			Vector: rec.Profile,
			Metadata: map[string]interface{}{
				"job_id":        rec.JobID,
				"filename":      rec.Filename,
				"document_type": rec.DocumentType,
				"approach":      rec.Approach,
			},
		}
		if err := sm.qdrant.UpsertVector(ctx, point); err != nil {
			return "", fmt.Errorf("failed to store profile in Qdrant: %w", err)
		}
	}

	createdAt, err := sm.postgres.InsertReport(ctx, rec)
	if err != nil {
		if sm.qdrant != nil {
			sm.qdrant.DeleteVector(ctx, rec.ID)
		}
		return "", fmt.Errorf("failed to store report in PostgreSQL: %w", err)
	}
	rec.CreatedAt = createdAt

	return rec.ID, nil
}

// GetReport returns the JSON report for a report ID or job ID
func (sm *StorageManager) GetReport(ctx context.Context, id string) ([]byte, error) {
	rec, err := sm.postgres.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Report, nil
}

// SimilarReports finds stored reports whose profiles are closest to the
// given report's profile. The report itself is excluded.
func (sm *StorageManager) SimilarReports(ctx context.Context, id string, limit int) ([]SimilarReport, error) {
	if sm.qdrant == nil {
		return nil, ErrSimilarityUnavailable
	}

	if limit <= 0 {
		limit = 5
	}

	rec, err := sm.postgres.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}

	points, err := sm.qdrant.SearchVectors(ctx, rec.Profile, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}

	return similarFromPoints(rec.ID, points, limit), nil
}

func similarFromPoints(selfID string, points []*VectorPoint, limit int) []SimilarReport {
	results := make([]SimilarReport, 0, limit)
	for _, point := range points {
		if point.ID == selfID {
			continue
		}
		if len(results) == limit {
			break
		}

		sr := SimilarReport{ReportID: point.ID, Score: point.Score}
		sr.JobID, _ = point.Metadata["job_id"].(string)
		sr.Filename, _ = point.Metadata["filename"].(string)
		sr.DocumentType, _ = point.Metadata["document_type"].(string)
		sr.Approach, _ = point.Metadata["approach"].(string)
		results = append(results, sr)
	}
	return results
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pgStats := sm.postgres.GetStats()

	stats := map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}

	if sm.qdrant != nil {
		qdrantStats, err := sm.qdrant.GetCollectionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Qdrant stats: %w", err)
		}
		stats["qdrant"] = qdrantStats
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, qdErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}

	if sm.qdrant != nil {
		qdErr = sm.qdrant.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if qdErr != nil {
		return fmt.Errorf("failed to close Qdrant: %w", qdErr)
	}

	return nil
}

var (
	nullEscapePattern    = regexp.MustCompile(`\\u0000`)
	controlEscapePattern = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres strips escape sequences JSONB rejects.
// \u0000 is removed, other control character escapes become a space.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscapePattern.ReplaceAll(jsonBytes, []byte{})
	return controlEscapePattern.ReplaceAll(result, []byte(" "))
}
