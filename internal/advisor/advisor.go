/**
 * Extraction Advisor
 *
 * Final verdict on how a document should be extracted: natively, with OCR,
 * or both. The mapping from document type to approach is a fixed table.
 */

package advisor

import (
	"math"

	"github.com/adverant/nexus/extraction-auditor/internal/ocrbench"
	"github.com/adverant/nexus/extraction-auditor/internal/scanned"
)

// Approach is the recommended extraction method
type Approach string

const (
	NativeOnly Approach = "NativeOnly"
	Hybrid     Approach = "Hybrid"
	OCROnly    Approach = "OCROnly"
)

var approachByType = map[scanned.DocumentType]Approach{
	scanned.TypeDigital: NativeOnly,
	scanned.TypeMixed:   Hybrid,
	scanned.TypeScanned: OCROnly,
}

// defaultClassifier buckets verdicts that arrive without a document type
var defaultClassifier = scanned.NewClassifier(scanned.DefaultConfig())

// Advice is the advisor's verdict
type Advice struct {
	RecommendedApproach Approach             `json:"recommended_approach"`
	OCRNeeded           bool                 `json:"ocr_needed"`
	DocumentType        scanned.DocumentType `json:"document_type"`
	Engine              string               `json:"engine,omitempty"`
	ExtractionQuality   string               `json:"extraction_quality"`
	Confidence          float64              `json:"confidence"`
	Recommendations     []string             `json:"recommendations"`
}

// Advise maps a scanned verdict, and optionally a benchmark, to an approach
func Advise(verdict scanned.Verdict, bench *ocrbench.Result) Advice {
	docType := verdict.DocumentType
	if docType == "" {
		docType = defaultClassifier.DocumentTypeFor(verdict.Confidence)
	}
	approach, ok := approachByType[docType]
	if !ok {
		approach = Hybrid
	}

	advice := Advice{
		RecommendedApproach: approach,
		OCRNeeded:           approach != NativeOnly,
		DocumentType:        docType,
		ExtractionQuality:   QualityTier(verdict.QualityValue),
		Confidence:          math.Min((float64(verdict.QualityValue)+(100-verdict.Confidence))/2, 100),
		Recommendations:     []string{},
	}

	if approach == OCROnly && bench != nil && bench.Comparison != nil {
		advice.Engine = bench.Comparison.HighestConfidence.Engine
	}

	if verdict.LikelyScanned {
		advice.Recommendations = append(advice.Recommendations,
			"Document appears to be scanned - OCR processing recommended",
			"Consider using image preprocessing to improve OCR accuracy")
	}
	if verdict.QualityValue < 50 {
		advice.Recommendations = append(advice.Recommendations, "Poor native text extraction - try OCR-based parsers")
	}
	if approach == Hybrid {
		advice.Recommendations = append(advice.Recommendations, "Combine native text with OCR on image-heavy pages")
	}
	if bench != nil {
		advice.Recommendations = append(advice.Recommendations, bench.Recommendations...)
	}
	if len(advice.Recommendations) == 0 {
		advice.Recommendations = append(advice.Recommendations, "Document has good native text extraction - OCR not needed")
	}

	return advice
}

// QualityTier labels a native extraction quality value
func QualityTier(value int) string {
	switch {
	case value > 70:
		return "excellent"
	case value > 50:
		return "good"
	case value > 30:
		return "fair"
	default:
		return "poor"
	}
}
