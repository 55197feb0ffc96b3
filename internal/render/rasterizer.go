/**
 * Page Rasterizer
 *
 * Turns an audited document into page images for the layout detector and
 * the OCR engines. PDFs go through pdftoppm; single images are passed
 * through as page 1.
 */

package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/adverant/nexus/extraction-auditor/internal/logging"
	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/adverant/nexus/extraction-auditor/internal/runner"
)

// Rasterizer produces page images for a document
type Rasterizer interface {
	Rasterize(ctx context.Context, doc models.Document, maxPages int) ([]models.PageImage, error)
}

// Config controls pdftoppm
type Config struct {
	Binary   string `mapstructure:"binary"`
	DPI      int    `mapstructure:"dpi"`
	MaxPages int    `mapstructure:"max_pages"`
	TempDir  string `mapstructure:"temp_dir"`
}

// DefaultConfig returns the stock rasterizer settings
func DefaultConfig() Config {
	return Config{
		Binary:   "pdftoppm",
		DPI:      150,
		MaxPages: 20,
	}
}

// PopplerRasterizer renders PDF pages with pdftoppm
type PopplerRasterizer struct {
	run    runner.Runner
	cfg    Config
	logger *logging.Logger
}

// NewPopplerRasterizer creates a rasterizer; zero config fields take defaults
func NewPopplerRasterizer(r runner.Runner, cfg Config) *PopplerRasterizer {
	def := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	return &PopplerRasterizer{run: r, cfg: cfg, logger: logging.NewLogger("Rasterizer")}
}

// Rasterize renders up to maxPages pages (0 uses the configured cap)
func (p *PopplerRasterizer) Rasterize(ctx context.Context, doc models.Document, maxPages int) ([]models.PageImage, error) {
	if doc.IsImage() {
		return imagePage(doc.Path)
	}
	if !doc.IsPDF() {
		return nil, fmt.Errorf("cannot rasterize %s documents", doc.MimeType)
	}

	if maxPages <= 0 || maxPages > p.cfg.MaxPages {
		maxPages = p.cfg.MaxPages
	}

	tmpDir, err := os.MkdirTemp(p.cfg.TempDir, "audit-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create page directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("failed to remove page directory", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 150 -png -f 1 -l N <in.pdf> <tmp/page>
	_, errb, err := p.run.Run(ctx, p.cfg.Binary,
		"-r", strconv.Itoa(p.cfg.DPI),
		"-png",
		"-f", "1",
		"-l", strconv.Itoa(maxPages),
		doc.Path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (%s)", err, runner.Truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	pages := make([]models.PageImage, 0, len(matches))
	for _, path := range matches {
		num, ok := pageNumberFromName(path)
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rendered page %d: %w", num, err)
		}
		w, h := dimensions(data)
		pages = append(pages, models.PageImage{PageNumber: num, Width: w, Height: h, Format: "png", Data: data})
	}

	// pdftoppm zero-pads page numbers by page count, so sort numerically
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	if len(pages) > maxPages {
		pages = pages[:maxPages]
	}

	p.logger.Debug("rendered pages", "document", doc.ID, "pages", len(pages), "dpi", p.cfg.DPI)
	return pages, nil
}

// pageNumberFromName parses "page-07.png" into 7
func pageNumberFromName(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func imagePage(path string) ([]models.PageImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// tiff/webp have no registered decoder; pass the bytes through untouched
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	w, h := dimensions(data)
	return []models.PageImage{{PageNumber: 1, Width: w, Height: h, Format: format, Data: data}}, nil
}

func dimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
