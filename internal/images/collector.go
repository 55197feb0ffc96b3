/**
 * Image Signal Collector
 *
 * Counts and measures embedded images per page using up to two independent
 * extraction backends. Backends disagree more often than one would hope, so
 * each page takes the maximum count and coverage any backend reported: a
 * missed image costs more than a duplicate when deciding whether a document
 * is a scan.
 */

package images

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/errors"
	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"golang.org/x/sync/errgroup"
)

// ImageInfo describes one image placed on a page
type ImageInfo struct {
	WidthPx   int     `json:"width_px"`
	HeightPx  int     `json:"height_px"`
	AreaRatio float64 `json:"area_ratio"` // share of the page area covered
}

// PageImages is one backend's view of a page
type PageImages struct {
	Page   int         `json:"page"`
	Width  float64     `json:"width"`  // points
	Height float64     `json:"height"` // points
	Images []ImageInfo `json:"images"`
}

// Backend is an image extraction capability
type Backend interface {
	Name() string
	PageImages(ctx context.Context, doc models.Document) ([]PageImages, error)
}

// Result is the reconciled image signal of a document
type Result struct {
	Available           bool     `json:"available"`
	PageCount           int      `json:"page_count"`
	ImagesPerPage       []int    `json:"images_per_page"`
	LargeImagePages     []int    `json:"large_image_pages"`
	TotalImageAreaRatio float64  `json:"total_image_area_ratio"`
	Backends            []string `json:"backends"`
	Warnings            []string `json:"warnings,omitempty"`
}

// AverageImagesPerPage returns total images divided by page count
func (r Result) AverageImagesPerPage() float64 {
	if len(r.ImagesPerPage) == 0 {
		return 0
	}
	total := 0
	for _, n := range r.ImagesPerPage {
		total += n
	}
	return float64(total) / float64(len(r.ImagesPerPage))
}

// TotalImages returns the reconciled image count
func (r Result) TotalImages() int {
	total := 0
	for _, n := range r.ImagesPerPage {
		total += n
	}
	return total
}

// Config holds collector settings
type Config struct {
	MaxBackends     int           `mapstructure:"max_backends" json:"max_backends"`
	LargeImageRatio float64       `mapstructure:"large_image_ratio" json:"large_image_ratio"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
}

// DefaultConfig returns the stock collector settings
func DefaultConfig() Config {
	return Config{
		MaxBackends:     2,
		LargeImageRatio: 0.8,
		Timeout:         60 * time.Second,
	}
}

// Collector gathers image signals
type Collector struct {
	cfg      Config
	backends []Backend
}

// NewCollector creates a collector over backends
func NewCollector(cfg Config, backends ...Backend) *Collector {
	def := DefaultConfig()
	if cfg.MaxBackends <= 0 {
		cfg.MaxBackends = def.MaxBackends
	}
	if cfg.LargeImageRatio <= 0 || cfg.LargeImageRatio > 1 {
		cfg.LargeImageRatio = def.LargeImageRatio
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Collector{cfg: cfg, backends: backends}
}

// Collect runs every backend and reconciles the per-page results
func (c *Collector) Collect(ctx context.Context, doc models.Document) Result {
	result := Result{
		ImagesPerPage:   []int{},
		LargeImagePages: []int{},
		Backends:        []string{},
	}

	backends := c.backends
	if len(backends) > c.cfg.MaxBackends {
		for _, b := range backends[c.cfg.MaxBackends:] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("backend %s ignored: at most %d backends are used", b.Name(), c.cfg.MaxBackends))
		}
		backends = backends[:c.cfg.MaxBackends]
	}
	if len(backends) == 0 {
		result.Warnings = append(result.Warnings, errors.NewCapabilityUnavailableError("image extraction").Error())
		return result
	}

	views := make([][]PageImages, len(backends))
	failures := make([]error, len(backends))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, c.cfg.Timeout)
			defer cancel()
			views[i], failures[i] = b.PageImages(bctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	var ok [][]PageImages
	for i, b := range backends {
		if failures[i] != nil {
			result.Warnings = append(result.Warnings, errors.NewBackendFailedError(b.Name(), failures[i]).Error())
			continue
		}
		result.Backends = append(result.Backends, b.Name())
		ok = append(ok, views[i])
	}
	if len(ok) == 0 {
		return result
	}

	result.Available = true
	c.reconcile(&result, doc.PageCount, ok)
	return result
}

// reconcile merges backend views page by page
func (c *Collector) reconcile(result *Result, pageCount int, views [][]PageImages) {
	for _, view := range views {
		for _, p := range view {
			if p.Page > pageCount {
				pageCount = p.Page
			}
		}
	}

	counts := make([]int, pageCount)
	coverage := make([]float64, pageCount)
	large := make([]bool, pageCount)

	for _, view := range views {
		for _, p := range view {
			if p.Page < 1 {
				continue
			}
			i := p.Page - 1
			if len(p.Images) > counts[i] {
				counts[i] = len(p.Images)
			}
			covered := 0.0
			for _, img := range p.Images {
				covered += img.AreaRatio
				if img.AreaRatio >= c.cfg.LargeImageRatio {
					large[i] = true
				}
			}
			coverage[i] = math.Max(coverage[i], math.Min(1, covered))
		}
	}

	result.PageCount = pageCount
	result.ImagesPerPage = counts
	var sum float64
	for i := range counts {
		if large[i] {
			result.LargeImagePages = append(result.LargeImagePages, i+1)
		}
		sum += coverage[i]
	}
	if pageCount > 0 {
		result.TotalImageAreaRatio = sum / float64(pageCount)
	}
}
