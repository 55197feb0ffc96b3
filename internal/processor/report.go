package processor

import (
	"math"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/advisor"
	"github.com/adverant/nexus/extraction-auditor/internal/hierarchy"
	"github.com/adverant/nexus/extraction-auditor/internal/images"
	"github.com/adverant/nexus/extraction-auditor/internal/layout"
	"github.com/adverant/nexus/extraction-auditor/internal/ocrbench"
	"github.com/adverant/nexus/extraction-auditor/internal/quality"
	"github.com/adverant/nexus/extraction-auditor/internal/scanned"
	"github.com/adverant/nexus/extraction-auditor/internal/storage"
	"github.com/adverant/nexus/extraction-auditor/internal/structure"
)

// NativeResult is one native text source and the quality of its text
type NativeResult struct {
	Source  string         `json:"source"` // extractor name, or "provided"
	Chars   int            `json:"chars"`
	Quality *quality.Score `json:"quality,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// AuditReport is the complete output of one audit
type AuditReport struct {
	ID               string                `json:"id"`
	JobID            string                `json:"job_id"`
	Filename         string                `json:"filename,omitempty"`
	MimeType         string                `json:"mime_type,omitempty"`
	PageCount        int                   `json:"page_count"`
	Native           []NativeResult        `json:"native"`
	Structure        structure.Result      `json:"structure"`
	Layout           layout.Result         `json:"layout"`
	Hierarchy        hierarchy.MatchResult `json:"hierarchy"`
	Assessment       hierarchy.Assessment  `json:"assessment"`
	Quality          quality.Score         `json:"quality"`
	Images           images.Result         `json:"images"`
	Scanned          scanned.Verdict       `json:"scanned"`
	Benchmark        *ocrbench.Result      `json:"benchmark,omitempty"`
	Advice           advisor.Advice        `json:"advice"`
	Warnings         []string              `json:"warnings,omitempty"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
	CreatedAt        time.Time             `json:"created_at"`
}

// ProfileVector summarises the report as a fixed-length vector in [0,1]
// for similarity search. The layout is
//
//	0  hierarchy match score
//	1  quality value
//	2-5 quality components
//	6  structure ratio
//	7  scanned confidence
//	8  images per page (saturating at 5)
//	9  fraction of pages with a large image
//	10 image area ratio
//	11 best OCR confidence (0 without a benchmark)
func (r *AuditReport) ProfileVector() []float32 {
	v := make([]float32, storage.ProfileDimensions)

	v[0] = unit(r.Hierarchy.MatchScore)
	v[1] = unit(float64(r.Quality.Value) / 100)
	v[2] = unit(r.Quality.Components.CharDistribution / 100)
	v[3] = unit(r.Quality.Components.WordFormation / 100)
	v[4] = unit(r.Quality.Components.SentenceStructure / 100)
	v[5] = unit(r.Quality.Components.LineBreaks / 100)
	v[6] = unit(r.Structure.Summary.StructureRatio)
	v[7] = unit(r.Scanned.Confidence / 100)
	v[8] = unit(r.Images.AverageImagesPerPage() / 5)
	if r.Images.PageCount > 0 {
		v[9] = unit(float64(len(r.Images.LargeImagePages)) / float64(r.Images.PageCount))
	}
	v[10] = unit(r.Images.TotalImageAreaRatio)
	if r.Benchmark != nil && r.Benchmark.Comparison != nil {
		v[11] = unit(r.Benchmark.Comparison.HighestConfidence.Value / 100)
	}

	return v
}

// Record converts the report into its stored form
func (r *AuditReport) Record(body []byte) *storage.ReportRecord {
	return &storage.ReportRecord{
		ID:                r.ID,
		JobID:             r.JobID,
		Filename:          r.Filename,
		MimeType:          r.MimeType,
		DocumentType:      string(r.Scanned.DocumentType),
		Approach:          string(r.Advice.RecommendedApproach),
		MatchScore:        r.Hierarchy.MatchScore,
		QualityValue:      r.Quality.Value,
		ScannedConfidence: r.Scanned.Confidence,
		Evidence:          r.Scanned.Evidence,
		Report:            body,
		Profile:           r.ProfileVector(),
	}
}

func unit(x float64) float32 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return float32(x)
}
