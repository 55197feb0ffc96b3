/**
 * Extraction Quality Scorer
 *
 * Heuristic 0-100 score for natively extracted text. Four sub-scores look for
 * the usual symptoms of a broken text layer: garbage characters, tokens that
 * are not words, missing sentence punctuation and lost or shredded line breaks.
 */

package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Components holds the four sub-scores, each in [0,100]
type Components struct {
	CharDistribution  float64 `json:"char_distribution"`
	WordFormation     float64 `json:"word_formation"`
	SentenceStructure float64 `json:"sentence_structure"`
	LineBreaks        float64 `json:"line_breaks"`
}

// Score is the overall quality of one text
type Score struct {
	Value      int        `json:"value"`
	Components Components `json:"components"`
}

// Config holds the scoring constants
type Config struct {
	GarbagePenalty float64 `mapstructure:"garbage_penalty" json:"garbage_penalty"`
	RunPenalty     float64 `mapstructure:"run_penalty" json:"run_penalty"`
	MinRunLength   int     `mapstructure:"min_run_length" json:"min_run_length"`
	SentenceWindow int     `mapstructure:"sentence_window" json:"sentence_window"`
	MinLineLength  float64 `mapstructure:"min_line_length" json:"min_line_length"`
	MaxLineLength  float64 `mapstructure:"max_line_length" json:"max_line_length"`
}

// DefaultConfig returns the stock scoring constants
func DefaultConfig() Config {
	return Config{
		GarbagePenalty: 5,
		RunPenalty:     2,
		MinRunLength:   4,
		SentenceWindow: 20,
		MinLineLength:  15,
		MaxLineLength:  250,
	}
}

var (
	reWordShape = regexp.MustCompile(`^[("'\[]*\p{L}+(?:['’-]\p{L}+)*[.,;:!?)"'\]]*$`)
	reNumber    = regexp.MustCompile(`^[-+(]?\d+(?:[.,:/]\d+)*[%.,;:)]*$`)
)

// Scorer scores extracted text
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer; zero fields take defaults
func NewScorer(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.GarbagePenalty <= 0 {
		cfg.GarbagePenalty = def.GarbagePenalty
	}
	if cfg.RunPenalty <= 0 {
		cfg.RunPenalty = def.RunPenalty
	}
	if cfg.MinRunLength < 2 {
		cfg.MinRunLength = def.MinRunLength
	}
	if cfg.SentenceWindow <= 0 {
		cfg.SentenceWindow = def.SentenceWindow
	}
	if cfg.MinLineLength <= 0 {
		cfg.MinLineLength = def.MinLineLength
	}
	if cfg.MaxLineLength <= cfg.MinLineLength {
		cfg.MaxLineLength = math.Max(def.MaxLineLength, cfg.MinLineLength*2)
	}
	return &Scorer{cfg: cfg}
}

// ScoreText scores text with the default constants
func ScoreText(text string) Score {
	return NewScorer(DefaultConfig()).Score(text)
}

// Score computes the quality score. Empty text scores zero.
func (s *Scorer) Score(text string) Score {
	if strings.TrimSpace(text) == "" {
		return Score{}
	}

	tokens := strings.Fields(text)
	c := Components{
		CharDistribution:  s.charDistribution(text),
		WordFormation:     wordFormation(tokens),
		SentenceStructure: s.sentenceStructure(tokens),
		LineBreaks:        s.lineBreaks(text),
	}
	mean := (c.CharDistribution + c.WordFormation + c.SentenceStructure + c.LineBreaks) / 4

	return Score{Value: int(math.Round(mean)), Components: c}
}

// Average combines scores from several extractors of the same document
func Average(scores ...Score) Score {
	if len(scores) == 0 {
		return Score{}
	}
	var c Components
	var value float64
	for _, sc := range scores {
		c.CharDistribution += sc.Components.CharDistribution
		c.WordFormation += sc.Components.WordFormation
		c.SentenceStructure += sc.Components.SentenceStructure
		c.LineBreaks += sc.Components.LineBreaks
		value += float64(sc.Value)
	}
	n := float64(len(scores))
	return Score{
		Value: int(math.Round(value / n)),
		Components: Components{
			CharDistribution:  c.CharDistribution / n,
			WordFormation:     c.WordFormation / n,
			SentenceStructure: c.SentenceStructure / n,
			LineBreaks:        c.LineBreaks / n,
		},
	}
}

func isGarbage(r rune) bool {
	switch r {
	case '\n', '\r', '\t':
		return false
	case utf8.RuneError:
		return true
	}
	return unicode.IsControl(r) || unicode.Is(unicode.Co, r)
}

func (s *Scorer) charDistribution(text string) float64 {
	var nonSpace, garbage, inRuns int
	var prev rune
	run := 0

	flush := func() {
		if run >= s.cfg.MinRunLength {
			inRuns += run
		}
	}

	for _, r := range text {
		if unicode.IsSpace(r) {
			flush()
			run = 0
			prev = 0
			continue
		}
		nonSpace++
		if isGarbage(r) {
			garbage++
		}
		if r == prev {
			run++
		} else {
			flush()
			run = 1
			prev = r
		}
	}
	flush()

	if nonSpace == 0 {
		return 0
	}
	garbageRatio := float64(garbage) / float64(nonSpace)
	runRatio := float64(inRuns) / float64(nonSpace)

	return 100 * math.Max(0, 1-s.cfg.GarbagePenalty*garbageRatio-s.cfg.RunPenalty*runRatio)
}

func wordFormation(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	valid := 0
	for _, tok := range tokens {
		if reWordShape.MatchString(tok) || reNumber.MatchString(tok) {
			valid++
		}
	}
	return 100 * float64(valid) / float64(len(tokens))
}

func (s *Scorer) sentenceStructure(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	terminals := 0
	for _, tok := range tokens {
		trimmed := strings.TrimRight(tok, `)"'’`)
		if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
			terminals++
		}
	}
	expected := math.Ceil(float64(len(tokens)) / float64(s.cfg.SentenceWindow))
	return 100 * math.Min(1, float64(terminals)/expected)
}

func (s *Scorer) lineBreaks(text string) float64 {
	var total, lines int
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total += utf8.RuneCountInString(line)
		lines++
	}
	if lines == 0 {
		return 0
	}

	avg := float64(total) / float64(lines)
	switch {
	case avg < s.cfg.MinLineLength:
		return 100 * avg / s.cfg.MinLineLength
	case avg > s.cfg.MaxLineLength:
		return 100 * s.cfg.MaxLineLength / avg
	default:
		return 100
	}
}
