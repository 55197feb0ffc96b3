package hierarchy

import (
	"fmt"
	"strings"

	"github.com/adverant/nexus/extraction-auditor/internal/structure"
)

// Assessment is the overall verdict on hierarchy extraction
type Assessment struct {
	HierarchyQuality      string   `json:"hierarchy_quality"`
	ParserSuitability     string   `json:"parser_suitability"`
	StructurePreservation float64  `json:"structure_preservation"`
	Summary               []string `json:"summary"`
}

// Assess turns a comparison into quality and suitability labels
func Assess(summary structure.PatternSummary, m MatchResult) Assessment {
	a := Assessment{StructurePreservation: m.MatchScore}

	switch {
	case m.MatchScore > 0.8:
		a.HierarchyQuality, a.ParserSuitability = "excellent", "highly_suitable"
	case m.MatchScore > 0.6:
		a.HierarchyQuality, a.ParserSuitability = "good", "suitable"
	case m.MatchScore > 0.4:
		a.HierarchyQuality, a.ParserSuitability = "fair", "partially_suitable"
	default:
		a.HierarchyQuality, a.ParserSuitability = "poor", "not_suitable"
	}

	a.Summary = []string{
		fmt.Sprintf("Detected %d headings and %d lists in extracted text", summary.HeadingCount, summary.ListCount),
		fmt.Sprintf("Hierarchy quality: %s", a.HierarchyQuality),
		fmt.Sprintf("Parser suitability: %s", strings.ReplaceAll(a.ParserSuitability, "_", " ")),
	}
	for _, insight := range m.Insights {
		if insight != PartialInsight {
			a.Summary = append(a.Summary, insight)
		}
	}

	return a
}
