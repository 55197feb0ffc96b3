/**
 * Layout Signal Adapter
 *
 * Normalizes an external visual-layout detector's output into typed layout
 * elements. A missing detector yields an Unavailable result so callers can
 * fall back to text-only analysis; slow or failing pages degrade to
 * zero-result pages instead of aborting the document.
 */

package layout

import (
	"context"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/errors"
	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"golang.org/x/sync/errgroup"
)

// Kind is the normalized class of a detected region
type Kind string

const (
	KindTitle     Kind = "Title"
	KindList      Kind = "List"
	KindTable     Kind = "Table"
	KindFigure    Kind = "Figure"
	KindTextBlock Kind = "TextBlock"
)

// RawDetection is a single detection as reported by a detector
type RawDetection struct {
	Label      string             `json:"label"`
	BBox       models.BoundingBox `json:"bbox"`
	Confidence float64            `json:"confidence"`
}

// Detector is the visual-layout detection capability
type Detector interface {
	DetectPage(ctx context.Context, page models.PageImage) ([]RawDetection, error)
}

// Element is a normalized layout detection
type Element struct {
	Kind       Kind               `json:"kind"`
	Page       int                `json:"page"`
	BBox       models.BoundingBox `json:"bbox"`
	Confidence float64            `json:"confidence"`
}

// PageOutcome records what happened on one page
type PageOutcome struct {
	Page     int    `json:"page"`
	Detected int    `json:"detected"`
	Kept     int    `json:"kept"`
	TimedOut bool   `json:"timed_out,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the output of Detect. Available is false when no detector was
// configured; Elements is then empty.
type Result struct {
	Available bool          `json:"available"`
	Elements  []Element     `json:"elements"`
	Pages     []PageOutcome `json:"pages,omitempty"`
}

// Unavailable is the result returned when detection cannot run
func Unavailable() Result {
	return Result{Available: false, Elements: []Element{}}
}

// Counts returns element totals per kind
func (r Result) Counts() map[Kind]int {
	counts := make(map[Kind]int)
	for _, el := range r.Elements {
		counts[el.Kind]++
	}
	return counts
}

// FailedPages returns how many pages produced no usable detection
func (r Result) FailedPages() int {
	n := 0
	for _, p := range r.Pages {
		if p.Error != "" {
			n++
		}
	}
	return n
}

// Config holds adapter settings
type Config struct {
	MinConfidence float64       `mapstructure:"min_confidence" json:"min_confidence"`
	PageTimeout   time.Duration `mapstructure:"page_timeout" json:"page_timeout"`
	Concurrency   int           `mapstructure:"concurrency" json:"concurrency"`
}

// DefaultConfig returns the stock adapter settings
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.5,
		PageTimeout:   30 * time.Second,
		Concurrency:   4,
	}
}

// Adapter runs a detector over rasterized pages
type Adapter struct {
	cfg Config
}

// NewAdapter creates an adapter, filling zero fields from DefaultConfig
func NewAdapter(cfg Config) *Adapter {
	def := DefaultConfig()
	if cfg.MinConfidence < 0 {
		cfg.MinConfidence = 0
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = def.PageTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Adapter{cfg: cfg}
}

type detectOutcome struct {
	detections []RawDetection
	err        error
}

// Detect invokes detector once per page. Pages are processed in parallel and
// collected by index, so the output order always follows the input order.
func (a *Adapter) Detect(ctx context.Context, pages []models.PageImage, detector Detector) Result {
	if detector == nil {
		return Unavailable()
	}

	perPage := make([][]Element, len(pages))
	outcomes := make([]PageOutcome, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)

	for i, page := range pages {
		g.Go(func() error {
			perPage[i], outcomes[i] = a.detectPage(gctx, page, detector)
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Available: true, Elements: []Element{}, Pages: outcomes}
	for _, els := range perPage {
		result.Elements = append(result.Elements, els...)
	}
	return result
}

func (a *Adapter) detectPage(ctx context.Context, page models.PageImage, detector Detector) ([]Element, PageOutcome) {
	outcome := PageOutcome{Page: page.PageNumber}

	pageCtx, cancel := context.WithTimeout(ctx, a.cfg.PageTimeout)
	defer cancel()

	// The detector may ignore its context, so the wait is bounded here.
	done := make(chan detectOutcome, 1)
	go func() {
		dets, err := detector.DetectPage(pageCtx, page)
		done <- detectOutcome{detections: dets, err: err}
	}()

	var out detectOutcome
	select {
	case out = <-done:
	case <-pageCtx.Done():
		out.err = pageCtx.Err()
	}

	if out.err != nil {
		switch {
		case ctx.Err() != nil:
			// the caller gave up; this page did not exceed its own budget
			outcome.Error = errors.NewDetectionError(page.PageNumber, ctx.Err()).Error()
		case errors.IsTimeout(out.err):
			outcome.TimedOut = true
			outcome.Error = errors.NewDetectionTimeoutError(page.PageNumber, a.cfg.PageTimeout).Error()
		default:
			outcome.Error = errors.NewDetectionError(page.PageNumber, out.err).Error()
		}
		return nil, outcome
	}

	outcome.Detected = len(out.detections)
	elements := make([]Element, 0, len(out.detections))
	for _, d := range out.detections {
		if el, ok := a.normalize(page.PageNumber, d); ok {
			elements = append(elements, el)
		}
	}
	outcome.Kept = len(elements)

	return elements, outcome
}

// normalize converts a raw detection, dropping it below the confidence threshold
func (a *Adapter) normalize(page int, d RawDetection) (Element, bool) {
	conf := clamp01(d.Confidence)
	if conf < a.cfg.MinConfidence {
		return Element{}, false
	}
	return Element{
		Kind:       NormalizeLabel(d.Label),
		Page:       page,
		BBox:       d.BBox,
		Confidence: conf,
	}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
