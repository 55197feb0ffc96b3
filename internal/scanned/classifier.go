/**
 * Scanned Document Classifier
 *
 * Combines native text quality with image signals into a scanned/mixed/digital
 * verdict. Each evidence item adds a fixed weight; the sum is clamped to
 * [0,100]. The function is pure, so equal inputs give equal verdicts.
 */

package scanned

import (
	"fmt"

	"github.com/adverant/nexus/extraction-auditor/internal/images"
	"github.com/adverant/nexus/extraction-auditor/internal/quality"
)

// DocumentType is the coarse class used by the advisor
type DocumentType string

const (
	TypeScanned DocumentType = "scanned"
	TypeMixed   DocumentType = "mixed"
	TypeDigital DocumentType = "digital"
)

// Verdict is the classification of one document
type Verdict struct {
	LikelyScanned bool         `json:"likely_scanned"`
	Confidence    float64      `json:"confidence"`
	Evidence      []string     `json:"evidence"`
	DocumentType  DocumentType `json:"document_type"`
	QualityValue  int          `json:"quality_value"`
}

// Config holds the evidence weights and cutoffs
type Config struct {
	VeryPoorQuality    int     `mapstructure:"very_poor_quality" json:"very_poor_quality"`
	VeryPoorWeight     float64 `mapstructure:"very_poor_weight" json:"very_poor_weight"`
	PoorQuality        int     `mapstructure:"poor_quality" json:"poor_quality"`
	PoorWeight         float64 `mapstructure:"poor_weight" json:"poor_weight"`
	ImageDensity       float64 `mapstructure:"image_density" json:"image_density"`
	ImageDensityWeight float64 `mapstructure:"image_density_weight" json:"image_density_weight"`
	LargeImageWeight   float64 `mapstructure:"large_image_weight" json:"large_image_weight"`
	LikelyThreshold    float64 `mapstructure:"likely_threshold" json:"likely_threshold"`
	ScannedThreshold   float64 `mapstructure:"scanned_threshold" json:"scanned_threshold"`
	MixedThreshold     float64 `mapstructure:"mixed_threshold" json:"mixed_threshold"`
}

// DefaultConfig returns the stock weights
func DefaultConfig() Config {
	return Config{
		VeryPoorQuality:    20,
		VeryPoorWeight:     40,
		PoorQuality:        40,
		PoorWeight:         20,
		ImageDensity:       1.0,
		ImageDensityWeight: 20,
		LargeImageWeight:   25,
		LikelyThreshold:    50,
		ScannedThreshold:   70,
		MixedThreshold:     30,
	}
}

// Classifier produces scanned verdicts
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier; a zero Config means DefaultConfig
func NewClassifier(cfg Config) *Classifier {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Classifier{cfg: cfg}
}

// Classify scores the evidence that a document is a scan
func (c *Classifier) Classify(q quality.Score, img images.Result) Verdict {
	var confidence float64
	evidence := []string{}

	if q.Value < c.cfg.VeryPoorQuality {
		confidence += c.cfg.VeryPoorWeight
		evidence = append(evidence, fmt.Sprintf("very poor native text extraction quality (%d/100)", q.Value))
	} else if q.Value < c.cfg.PoorQuality {
		confidence += c.cfg.PoorWeight
		evidence = append(evidence, fmt.Sprintf("poor native text extraction quality (%d/100)", q.Value))
	}
	if avg := img.AverageImagesPerPage(); len(img.ImagesPerPage) > 0 && avg >= c.cfg.ImageDensity {
		confidence += c.cfg.ImageDensityWeight
		evidence = append(evidence, fmt.Sprintf("high image density: %.1f images per page", avg))
	}
	if n := len(img.LargeImagePages); n > 0 {
		confidence += c.cfg.LargeImageWeight
		evidence = append(evidence, fmt.Sprintf("large full-page images detected on %d page(s)", n))
	}

	confidence = clamp(confidence, 0, 100)
	if len(evidence) == 0 {
		evidence = append(evidence, "document appears to have good native text extraction")
	}

	return Verdict{
		LikelyScanned: confidence >= c.cfg.LikelyThreshold,
		Confidence:    confidence,
		Evidence:      evidence,
		DocumentType:  c.DocumentTypeFor(confidence),
		QualityValue:  q.Value,
	}
}

// DocumentTypeFor buckets a confidence into a document type
func (c *Classifier) DocumentTypeFor(confidence float64) DocumentType {
	switch {
	case confidence >= c.cfg.ScannedThreshold:
		return TypeScanned
	case confidence >= c.cfg.MixedThreshold:
		return TypeMixed
	default:
		return TypeDigital
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
