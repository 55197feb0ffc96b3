/**
 * OCR Engine Benchmark
 *
 * Runs every available OCR engine against a few sample pages and compares
 * them on confidence, speed and extracted volume. An engine that errors or
 * times out on a page leaves an error sample behind and the run continues.
 */

package ocrbench

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adverant/nexus/extraction-auditor/internal/errors"
	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"golang.org/x/sync/errgroup"
)

// Recognition is one engine's output for one page. Confidences hold one value
// per recognised character on a 0-100 scale.
type Recognition struct {
	Text        string
	Confidences []float64
}

// Engine is an OCR capability
type Engine interface {
	Name() string
	Recognize(ctx context.Context, page models.PageImage) (*Recognition, error)
}

// Sample is the outcome of one engine on one page
type Sample struct {
	Engine           string  `json:"engine"`
	Page             int     `json:"page"`
	Text             string  `json:"text"`
	AvgConfidence    float64 `json:"avg_confidence"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
	CharacterCount   int     `json:"character_count"`
	WordCount        int     `json:"word_count"`
	Error            string  `json:"error,omitempty"`
}

// OK reports whether the sample succeeded
func (s Sample) OK() bool { return s.Error == "" }

// EngineMetrics aggregates one engine's successful samples
type EngineMetrics struct {
	Engine              string  `json:"engine"`
	Succeeded           int     `json:"succeeded"`
	Failed              int     `json:"failed"`
	AvgConfidence       float64 `json:"avg_confidence"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	TotalCharacters     int     `json:"total_characters"`
}

// Pick names the winning engine of one comparison category
type Pick struct {
	Engine string  `json:"engine"`
	Value  float64 `json:"value"`
}

// Comparison holds the category winners
type Comparison struct {
	HighestConfidence Pick `json:"highest_confidence"`
	Fastest           Pick `json:"fastest"`
	MostCharacters    Pick `json:"most_characters"`
}

// Result is the output of a benchmark run. Comparison is nil when no sample
// succeeded.
type Result struct {
	Samples         []Sample        `json:"samples"`
	Engines         []EngineMetrics `json:"engines"`
	Comparison      *Comparison     `json:"comparison"`
	Recommendations []string        `json:"recommendations"`
}

// Config holds benchmark settings
type Config struct {
	EngineTimeout time.Duration `mapstructure:"engine_timeout" json:"engine_timeout"`
	Concurrency   int           `mapstructure:"concurrency" json:"concurrency"`
	SamplePages   int           `mapstructure:"sample_pages" json:"sample_pages"`
	HighAccuracy  float64       `mapstructure:"high_accuracy" json:"high_accuracy"`
	FastMs        float64       `mapstructure:"fast_ms" json:"fast_ms"`
}

// DefaultConfig returns the stock settings
func DefaultConfig() Config {
	return Config{
		EngineTimeout: 60 * time.Second,
		Concurrency:   4,
		SamplePages:   3,
		HighAccuracy:  80,
		FastMs:        1000,
	}
}

// Benchmark compares OCR engines
type Benchmark struct {
	cfg Config
}

// NewBenchmark creates a benchmark; zero fields take defaults
func NewBenchmark(cfg Config) *Benchmark {
	def := DefaultConfig()
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = def.EngineTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.SamplePages <= 0 {
		cfg.SamplePages = def.SamplePages
	}
	if cfg.HighAccuracy <= 0 {
		cfg.HighAccuracy = def.HighAccuracy
	}
	if cfg.FastMs <= 0 {
		cfg.FastMs = def.FastMs
	}
	return &Benchmark{cfg: cfg}
}

// SampleCount is the configured number of sample pages
func (b *Benchmark) SampleCount() int { return b.cfg.SamplePages }

// Run executes every engine on every page. Samples are ordered by engine, then page.
func (b *Benchmark) Run(ctx context.Context, pages []models.PageImage, engines []Engine) Result {
	samples := make([]Sample, len(engines)*len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for ei, engine := range engines {
		for pi, page := range pages {
			slot := ei*len(pages) + pi
			g.Go(func() error {
				samples[slot] = b.runOne(gctx, engine, page)
				return nil
			})
		}
	}
	_ = g.Wait()

	metrics := aggregate(engines, len(pages), samples)
	result := Result{
		Samples:    samples,
		Engines:    metrics,
		Comparison: compare(metrics),
	}
	result.Recommendations = b.recommend(len(engines), result.Comparison)
	return result
}

type recognizeOutcome struct {
	rec *Recognition
	err error
}

func (b *Benchmark) runOne(ctx context.Context, engine Engine, page models.PageImage) Sample {
	sample := Sample{Engine: engine.Name(), Page: page.PageNumber}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.EngineTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan recognizeOutcome, 1)
	go func() {
		rec, err := engine.Recognize(callCtx, page)
		done <- recognizeOutcome{rec: rec, err: err}
	}()

	var out recognizeOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		sample.ProcessingTimeMs = msSince(start)
		sample.Error = errors.NewOCRTimeoutError(sample.Engine, page.PageNumber, b.cfg.EngineTimeout).Error()
		return sample
	}
	sample.ProcessingTimeMs = msSince(start)

	switch {
	case out.err != nil && errors.IsTimeout(out.err):
		sample.Error = errors.NewOCRTimeoutError(sample.Engine, page.PageNumber, b.cfg.EngineTimeout).Error()
		return sample
	case out.err != nil:
		sample.Error = errors.NewOCRFailedError(sample.Engine, page.PageNumber, out.err).Error()
		return sample
	case out.rec == nil:
		sample.Error = errors.NewOCRFailedError(sample.Engine, page.PageNumber, fmt.Errorf("engine returned no result")).Error()
		return sample
	}

	sample.Text = out.rec.Text
	sample.CharacterCount = utf8.RuneCountInString(strings.TrimSpace(out.rec.Text))
	sample.WordCount = len(strings.Fields(out.rec.Text))
	sample.AvgConfidence = mean(out.rec.Confidences)
	return sample
}

// aggregate attributes samples by slot, so engines sharing a name stay apart
func aggregate(engines []Engine, pagesPerEngine int, samples []Sample) []EngineMetrics {
	metrics := make([]EngineMetrics, len(engines))
	for i, e := range engines {
		metrics[i].Engine = e.Name()
	}
	if pagesPerEngine == 0 {
		return metrics
	}

	confSum := make([]float64, len(engines))
	timeSum := make([]float64, len(engines))
	for slot, s := range samples {
		i := slot / pagesPerEngine
		if !s.OK() {
			metrics[i].Failed++
			continue
		}
		metrics[i].Succeeded++
		metrics[i].TotalCharacters += s.CharacterCount
		confSum[i] += s.AvgConfidence
		timeSum[i] += s.ProcessingTimeMs
	}
	for i := range metrics {
		if n := metrics[i].Succeeded; n > 0 {
			metrics[i].AvgConfidence = confSum[i] / float64(n)
			metrics[i].AvgProcessingTimeMs = timeSum[i] / float64(n)
		}
	}
	return metrics
}

// compare reduces over engines with at least one success; ties keep the first engine
func compare(metrics []EngineMetrics) *Comparison {
	var c *Comparison
	for _, m := range metrics {
		if m.Succeeded == 0 {
			continue
		}
		if c == nil {
			c = &Comparison{
				HighestConfidence: Pick{m.Engine, m.AvgConfidence},
				Fastest:           Pick{m.Engine, m.AvgProcessingTimeMs},
				MostCharacters:    Pick{m.Engine, float64(m.TotalCharacters)},
			}
			continue
		}
		if m.AvgConfidence > c.HighestConfidence.Value {
			c.HighestConfidence = Pick{m.Engine, m.AvgConfidence}
		}
		if m.AvgProcessingTimeMs < c.Fastest.Value {
			c.Fastest = Pick{m.Engine, m.AvgProcessingTimeMs}
		}
		if float64(m.TotalCharacters) > c.MostCharacters.Value {
			c.MostCharacters = Pick{m.Engine, float64(m.TotalCharacters)}
		}
	}
	return c
}

func (b *Benchmark) recommend(engineCount int, c *Comparison) []string {
	recs := []string{}
	if c != nil {
		if c.HighestConfidence.Value > b.cfg.HighAccuracy {
			recs = append(recs, fmt.Sprintf("Use %s for highest accuracy", c.HighestConfidence.Engine))
		}
		if c.Fastest.Value < b.cfg.FastMs {
			recs = append(recs, fmt.Sprintf("Use %s for fastest processing", c.Fastest.Engine))
		}
		if len(recs) == 0 {
			recs = append(recs, "Consider image preprocessing for better results")
		}
	}

	switch engineCount {
	case 0:
		recs = append(recs, "Install OCR engines (Tesseract or a vision OCR service) for better text extraction")
	case 1:
		recs = append(recs, "Install additional OCR engines for comparison and better results")
	}
	return recs
}

// SamplePages picks up to n evenly spaced pages, always including the first
func SamplePages(pages []models.PageImage, n int) []models.PageImage {
	if n <= 0 || len(pages) == 0 {
		return []models.PageImage{}
	}
	if len(pages) <= n {
		return pages
	}
	if n == 1 {
		return pages[:1]
	}
	out := make([]models.PageImage, 0, n)
	last := -1
	for i := 0; i < n; i++ {
		idx := i * (len(pages) - 1) / (n - 1)
		if idx != last {
			out = append(out, pages[idx])
			last = idx
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
