/**
 * Hierarchy Comparator
 *
 * Reconciles the structure found in extracted text (headings, lists) with the
 * structure a visual layout detector found on the rendered pages. The result
 * says how much of the real document hierarchy survived extraction and what
 * to try next when it did not.
 */

package hierarchy

import (
	"fmt"
	"math"

	"github.com/adverant/nexus/extraction-auditor/internal/layout"
	"github.com/adverant/nexus/extraction-auditor/internal/structure"
)

// Severity buckets the relative count gap of one dimension
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Dimension names
const (
	DimensionHeadings = "headings"
	DimensionLists    = "lists"
)

// PartialInsight marks a result computed without visual signals
const PartialInsight = "partial: true"

// Discrepancy is a mismatch between text-derived and visually-derived counts
type Discrepancy struct {
	Dimension   string   `json:"dimension"`
	TextCount   int      `json:"text_count"`
	VisualCount int      `json:"visual_count"`
	TableCredit float64  `json:"table_credit,omitempty"`
	Gap         float64  `json:"gap"`
	Severity    Severity `json:"severity"`
}

// MatchResult is the outcome of one comparison
type MatchResult struct {
	MatchScore      float64       `json:"match_score"`
	Partial         bool          `json:"partial"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	Insights        []string      `json:"insights"`
	Recommendations []string      `json:"recommendations"`
}

// HighCount returns the number of High severity discrepancies
func (m MatchResult) HighCount() int {
	n := 0
	for _, d := range m.Discrepancies {
		if d.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// Config holds the tunable comparison constants
type Config struct {
	HighGap          float64 `mapstructure:"high_gap" json:"high_gap"`
	MediumGap        float64 `mapstructure:"medium_gap" json:"medium_gap"`
	DiscrepancyGap   float64 `mapstructure:"discrepancy_gap" json:"discrepancy_gap"`
	TableListCredit  float64 `mapstructure:"table_list_credit" json:"table_list_credit"`
	ExpectedRatioMin float64 `mapstructure:"expected_ratio_min" json:"expected_ratio_min"`
	ExpectedRatioMax float64 `mapstructure:"expected_ratio_max" json:"expected_ratio_max"`
	PoorMatchScore   float64 `mapstructure:"poor_match_score" json:"poor_match_score"`
}

// DefaultConfig returns the stock comparison constants
func DefaultConfig() Config {
	return Config{
		HighGap:          0.5,
		MediumGap:        0.2,
		DiscrepancyGap:   0.2,
		TableListCredit:  0.5,
		ExpectedRatioMin: 0.3,
		ExpectedRatioMax: 0.8,
		PoorMatchScore:   0.4,
	}
}

// Comparator compares text and visual hierarchies
type Comparator struct {
	cfg Config
}

// NewComparator creates a comparator; a zero Config means DefaultConfig
func NewComparator(cfg Config) *Comparator {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Comparator{cfg: cfg}
}

// SeverityFor buckets a relative gap using the default cutoffs
func SeverityFor(gap float64) Severity {
	return NewComparator(Config{}).severity(gap)
}

func (c *Comparator) severity(gap float64) Severity {
	switch {
	case gap >= c.cfg.HighGap:
		return SeverityHigh
	case gap >= c.cfg.MediumGap:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// dimension is one text↔visual pairing after table credit
type dimension struct {
	name   string
	text   int
	visual int
	credit float64
}

func (d dimension) effectiveVisual() float64 {
	return float64(d.visual) + d.credit
}

func (d dimension) gap() float64 {
	return math.Abs(float64(d.text)-d.effectiveVisual()) / math.Max(1, d.effectiveVisual())
}

func (d dimension) similarity() float64 {
	return 1 - math.Min(1, d.gap())
}

func (d dimension) weight() float64 {
	return math.Max(float64(d.text), d.effectiveVisual())
}

// Compare scores how well summary reproduces the hierarchy seen in elements.
// An empty elements slice means no visual signal, and the score falls back to
// the internal consistency of summary.
func (c *Comparator) Compare(summary structure.PatternSummary, elements []layout.Element) MatchResult {
	if len(elements) == 0 {
		return c.comparePartial(summary)
	}

	counts := make(map[layout.Kind]int)
	for _, el := range elements {
		counts[el.Kind]++
	}
	titles := counts[layout.KindTitle]
	lists := counts[layout.KindList]
	tables := counts[layout.KindTable]

	listDim := dimension{name: DimensionLists, text: summary.ListCount, visual: lists}
	if excess := summary.ListCount - lists; excess > 0 && tables > 0 {
		listDim.credit = math.Min(float64(excess), float64(tables)*c.cfg.TableListCredit)
	}
	dims := []dimension{
		{name: DimensionHeadings, text: summary.HeadingCount, visual: titles},
		listDim,
	}

	var weighted, total float64
	for _, d := range dims {
		w := d.weight()
		weighted += w * d.similarity()
		total += w
	}
	score := 1.0
	if total > 0 {
		score = weighted / total
	}

	result := MatchResult{
		MatchScore:    clamp01(score),
		Discrepancies: []Discrepancy{},
	}
	for _, d := range dims {
		gap := d.gap()
		if gap <= c.cfg.DiscrepancyGap {
			continue
		}
		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			Dimension:   d.name,
			TextCount:   d.text,
			VisualCount: d.visual,
			TableCredit: d.credit,
			Gap:         gap,
			Severity:    c.severity(gap),
		})
	}

	result.Insights = []string{c.insightFor(result.MatchScore)}
	result.Recommendations = c.recommend(result, summary, titles, lists, tables)
	return result
}

func (c *Comparator) comparePartial(summary structure.PatternSummary) MatchResult {
	ratio := summary.StructureRatio
	var score float64
	switch {
	case ratio < c.cfg.ExpectedRatioMin:
		score = ratio / c.cfg.ExpectedRatioMin
	case ratio > c.cfg.ExpectedRatioMax:
		score = (1 - ratio) / (1 - c.cfg.ExpectedRatioMax)
	default:
		score = 1
	}

	result := MatchResult{
		MatchScore:    clamp01(score),
		Partial:       true,
		Discrepancies: []Discrepancy{},
	}
	result.Insights = []string{
		c.insightFor(result.MatchScore),
		PartialInsight,
		fmt.Sprintf("Structure ratio %.2f measured against expected range %.1f-%.1f",
			ratio, c.cfg.ExpectedRatioMin, c.cfg.ExpectedRatioMax),
	}
	result.Recommendations = c.recommend(result, summary, 0, 0, 0)
	return result
}

func (c *Comparator) insightFor(score float64) string {
	switch {
	case score > 0.8:
		return "Excellent hierarchy extraction - structure well preserved"
	case score > 0.6:
		return "Good hierarchy extraction with minor discrepancies"
	case score > 0.4:
		return "Moderate hierarchy loss - some structure not captured"
	default:
		return "Poor hierarchy extraction - significant structure loss"
	}
}

// recommend evaluates the rule table in order
func (c *Comparator) recommend(m MatchResult, summary structure.PatternSummary, titles, lists, tables int) []string {
	var recs []string

	if m.MatchScore < c.cfg.PoorMatchScore {
		recs = append(recs,
			"Try an alternate extraction library",
			"Apply OCR preprocessing (deskew, denoise, binarize) before extraction")
	}
	if titles > summary.HeadingCount {
		recs = append(recs, "Consider using a parser better at detecting headers/titles")
	}
	if lists > summary.ListCount {
		recs = append(recs, "Consider using a parser with better list detection capabilities")
	}
	for _, d := range m.Discrepancies {
		if d.Dimension == DimensionLists && d.Severity == SeverityHigh {
			recs = append(recs, "List structure diverges strongly - consider a table-specialized extractor")
		}
	}
	if tables > 0 || len(summary.TableRegions) > 0 {
		recs = append(recs, "Document contains tables - consider using table-specialized parsers")
	}
	if m.Partial {
		recs = append(recs, "Enable visual layout detection for a full hierarchy comparison")
	}

	return dedupe(recs)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
