package images

import (
	"context"
	"fmt"
	"math"

	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/ledongthuc/pdf"
)

const (
	// Placement is not known from the resource dictionary alone; images that
	// do not look like a full page are sized at this nominal resolution.
	nominalDPI     = 150.0
	fullPageMinDPI = 100.0
	aspectSlack    = 0.10
)

// PDFBackend walks each page's XObject resources with ledongthuc/pdf
type PDFBackend struct{}

// NewPDFBackend creates the backend
func NewPDFBackend() *PDFBackend { return &PDFBackend{} }

func (b *PDFBackend) Name() string { return "pdf-xobject" }

// PageImages lists image XObjects referenced by each page
func (b *PDFBackend) PageImages(ctx context.Context, doc models.Document) (pages []PageImages, err error) {
	if !doc.IsPDF() {
		return nil, fmt.Errorf("pdf backend only handles PDF, got %s", doc.MimeType)
	}

	// The parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]PageImages, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}

		w, h := mediaBox(p.V)
		page := PageImages{Page: i, Width: w, Height: h, Images: []ImageInfo{}}

		xobjects := p.Resources().Key("XObject")
		for _, name := range xobjects.Keys() {
			x := xobjects.Key(name)
			if x.Key("Subtype").Name() != "Image" {
				continue
			}
			info := ImageInfo{
				WidthPx:  int(x.Key("Width").Int64()),
				HeightPx: int(x.Key("Height").Int64()),
			}
			info.AreaRatio = estimateAreaRatio(info.WidthPx, info.HeightPx, w, h)
			page.Images = append(page.Images, info)
		}
		pages = append(pages, page)
	}

	return pages, nil
}

// PageCount returns the number of pages in the PDF at path
func PageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// mediaBox returns the page size in points, following Parent inheritance
func mediaBox(page pdf.Value) (float64, float64) {
	for v := page; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			return math.Abs(w), math.Abs(h)
		}
	}
	return 612, 792 // US Letter
}

// estimateAreaRatio guesses page coverage from pixel size. An image with the
// page's aspect ratio and at least fullPageMinDPI across the page is taken to
// be a full-page scan.
func estimateAreaRatio(wPx, hPx int, pageW, pageH float64) float64 {
	if wPx <= 0 || hPx <= 0 || pageW <= 0 || pageH <= 0 {
		return 0
	}

	imgAspect := float64(wPx) / float64(hPx)
	pageAspect := pageW / pageH
	dpi := float64(wPx) / (pageW / 72)
	if math.Abs(imgAspect-pageAspect)/pageAspect <= aspectSlack && dpi >= fullPageMinDPI {
		return 1
	}

	placedW := float64(wPx) / nominalDPI * 72
	placedH := float64(hPx) / nominalDPI * 72
	return math.Min(1, placedW*placedH/(pageW*pageH))
}
