/**
 * Text Structure Extractor
 *
 * Turns raw extracted text into typed structural elements (headings, list
 * items, paragraphs) using an ordered rule table, and summarises the counts
 * used by the hierarchy comparison.
 */

package structure

import (
	"strings"
)

// ElementKind is the structural class of a line
type ElementKind string

const (
	KindHeading   ElementKind = "Heading"
	KindList      ElementKind = "List"
	KindParagraph ElementKind = "Paragraph"
)

// Element is one classified logical line
type Element struct {
	Kind       ElementKind `json:"kind"`
	Text       string      `json:"text"`
	LineNumber int         `json:"line_number"`
	Pattern    PatternTag  `json:"pattern,omitempty"`
	Level      int         `json:"level,omitempty"`
}

// PatternSummary aggregates element counts
type PatternSummary struct {
	HeadingCount   int           `json:"heading_count"`
	ListCount      int           `json:"list_count"`
	ParagraphCount int           `json:"paragraph_count"`
	TotalElements  int           `json:"total_elements"`
	StructureRatio float64       `json:"structure_ratio"`
	TableRegions   []TableRegion `json:"table_regions,omitempty"`
}

// Result is the output of Extract
type Result struct {
	Elements []Element     `json:"elements"`
	Summary  PatternSummary `json:"summary"`
}

// Config holds the classification thresholds
type Config struct {
	MinCapsLetters    int     `mapstructure:"min_caps_letters" json:"min_caps_letters"`
	MaxCapsLowerRatio float64 `mapstructure:"max_caps_lower_ratio" json:"max_caps_lower_ratio"`
	MaxTitleLength    int     `mapstructure:"max_title_length" json:"max_title_length"`
	MinTitleWords     int     `mapstructure:"min_title_words" json:"min_title_words"`
	MinTableRows      int     `mapstructure:"min_table_rows" json:"min_table_rows"`
}

// DefaultConfig returns the stock thresholds
func DefaultConfig() Config {
	return Config{
		MinCapsLetters:    3,
		MaxCapsLowerRatio: 0.15,
		MaxTitleLength:    80,
		MinTitleWords:     2,
		MinTableRows:      2,
	}
}

// Extractor classifies text lines
type Extractor struct {
	cfg Config
}

// NewExtractor creates an extractor, filling zero fields from DefaultConfig
func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.MinCapsLetters <= 0 {
		cfg.MinCapsLetters = def.MinCapsLetters
	}
	if cfg.MaxCapsLowerRatio <= 0 {
		cfg.MaxCapsLowerRatio = def.MaxCapsLowerRatio
	}
	if cfg.MaxTitleLength <= 0 {
		cfg.MaxTitleLength = def.MaxTitleLength
	}
	if cfg.MinTitleWords <= 0 {
		cfg.MinTitleWords = def.MinTitleWords
	}
	if cfg.MinTableRows <= 1 {
		cfg.MinTableRows = def.MinTableRows
	}
	return &Extractor{cfg: cfg}
}

// Extract classifies text with the default thresholds
func Extract(text string) Result {
	return NewExtractor(DefaultConfig()).Extract(text)
}

// Extract splits text into logical lines and classifies each non-blank one.
// Line numbers are 1-indexed and count blank lines.
func (e *Extractor) Extract(text string) Result {
	result := Result{Elements: []Element{}}
	if strings.TrimSpace(text) == "" {
		return result
	}

	lines := splitLines(text)
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		kind, tag := classify(line, e.cfg)
		el := Element{
			Kind:       kind,
			Text:       line,
			LineNumber: i + 1,
			Pattern:    tag,
		}

		switch kind {
		case KindHeading:
			el.Level = headingLevel(line, tag)
			result.Summary.HeadingCount++
		case KindList:
			el.Level = indentLevel(raw)
			result.Summary.ListCount++
		default:
			result.Summary.ParagraphCount++
		}
		result.Elements = append(result.Elements, el)
	}

	s := &result.Summary
	s.TotalElements = len(result.Elements)
	s.StructureRatio = float64(s.HeadingCount+s.ListCount) / float64(max(1, s.TotalElements))
	s.TableRegions = detectTableRegions(lines, e.cfg.MinTableRows)

	return result
}

func headingLevel(line string, tag PatternTag) int {
	switch tag {
	case PatternMarkdown:
		if m := reMarkdown.FindStringSubmatch(line); m != nil {
			return len(m[1])
		}
	case PatternNumberedSection:
		if m := reMultiSection.FindStringSubmatch(line); m != nil {
			return strings.Count(m[1], ".") + 1
		}
		return 1
	}
	return 0
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
