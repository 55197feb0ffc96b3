package processor

import (
	"github.com/adverant/nexus/extraction-auditor/internal/config"
	"github.com/adverant/nexus/extraction-auditor/internal/extract"
	"github.com/adverant/nexus/extraction-auditor/internal/hierarchy"
	"github.com/adverant/nexus/extraction-auditor/internal/images"
	"github.com/adverant/nexus/extraction-auditor/internal/layout"
	"github.com/adverant/nexus/extraction-auditor/internal/ocrbench"
	"github.com/adverant/nexus/extraction-auditor/internal/quality"
	"github.com/adverant/nexus/extraction-auditor/internal/render"
	"github.com/adverant/nexus/extraction-auditor/internal/scanned"
	"github.com/adverant/nexus/extraction-auditor/internal/structure"
)

// Adapters are the external capabilities available to the pipeline.
// Any of them may be nil or empty; the pipeline degrades accordingly.
type Adapters struct {
	Rasterizer    render.Rasterizer
	Detector      layout.Detector
	Engines       []ocrbench.Engine
	ImageBackends []images.Backend
	Extractors    []extract.Extractor
}

// Capabilities is the read-only context shared by every job: the adapters
// plus each analysis component built from its tuned configuration.
type Capabilities struct {
	adapters Adapters

	Structure  *structure.Extractor
	Layout     *layout.Adapter
	Comparator *hierarchy.Comparator
	Scorer     *quality.Scorer
	Images     *images.Collector
	Classifier *scanned.Classifier
	Benchmark  *ocrbench.Benchmark
}

// NewCapabilities builds the shared capability context
func NewCapabilities(th config.Thresholds, adapters Adapters) *Capabilities {
	return &Capabilities{
		adapters:   adapters,
		Structure:  structure.NewExtractor(th.Structure),
		Layout:     layout.NewAdapter(th.Layout),
		Comparator: hierarchy.NewComparator(th.Hierarchy),
		Scorer:     quality.NewScorer(th.Quality),
		Images:     images.NewCollector(th.Images, adapters.ImageBackends...),
		Classifier: scanned.NewClassifier(th.Scanned),
		Benchmark:  ocrbench.NewBenchmark(th.Benchmark),
	}
}

// Adapter accessors

func (c *Capabilities) Rasterizer() render.Rasterizer { return c.adapters.Rasterizer }
func (c *Capabilities) Detector() layout.Detector { return c.adapters.Detector }
func (c *Capabilities) Engines() []ocrbench.Engine { return c.adapters.Engines }
func (c *Capabilities) Extractors() []extract.Extractor { return c.adapters.Extractors }

// Describe reports which capabilities are configured, for health output
func (c *Capabilities) Describe() map[string]interface{} {
	names := func(n int, name func(i int) string) []string {
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, name(i))
		}
		return out
	}

	return map[string]interface{}{
		"rasterizer":      c.adapters.Rasterizer != nil,
		"layout_detector": c.adapters.Detector != nil,
		"ocr_engines": names(len(c.adapters.Engines), func(i int) string {
			return c.adapters.Engines[i].Name()
		}),
		"image_backends": names(len(c.adapters.ImageBackends), func(i int) string {
			return c.adapters.ImageBackends[i].Name()
		}),
		"text_extractors": names(len(c.adapters.Extractors), func(i int) string {
			return c.adapters.Extractors[i].Name()
		}),
	}
}
