package images

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/adverant/nexus/extraction-auditor/internal/runner"
)

var (
	rePages    = regexp.MustCompile(`(?m)^Pages:\s+(\d+)`)
	rePageSize = regexp.MustCompile(`(?m)^Page\s+(\d+)\s+size:\s+([\d.]+)\s+x\s+([\d.]+)\s+pts`)
	reAnySize  = regexp.MustCompile(`(?m)^Page size:\s+([\d.]+)\s+x\s+([\d.]+)\s+pts`)
)

// PopplerBackend reads image placements with pdfinfo and pdfimages -list
type PopplerBackend struct {
	run runner.Runner
}

// NewPopplerBackend creates the backend
func NewPopplerBackend(r runner.Runner) *PopplerBackend {
	return &PopplerBackend{run: r}
}

func (b *PopplerBackend) Name() string { return "poppler" }

// PageImages lists every image object per page
func (b *PopplerBackend) PageImages(ctx context.Context, doc models.Document) ([]PageImages, error) {
	if !doc.IsPDF() {
		return nil, fmt.Errorf("poppler backend only handles PDF, got %s", doc.MimeType)
	}

	sizes, err := b.pageSizes(ctx, doc.Path)
	if err != nil {
		return nil, err
	}

	out, stderr, err := b.run.Run(ctx, "pdfimages", "-list", doc.Path)
	if err != nil {
		return nil, fmt.Errorf("pdfimages failed: %w (%s)", err, runner.Truncate(string(stderr), 512))
	}

	pages := make([]PageImages, len(sizes))
	for i, sz := range sizes {
		pages[i] = PageImages{Page: i + 1, Width: sz[0], Height: sz[1], Images: []ImageInfo{}}
	}

	for _, img := range parseImageList(out) {
		if img.page < 1 || img.page > len(pages) {
			continue
		}
		p := &pages[img.page-1]
		info := ImageInfo{WidthPx: img.width, HeightPx: img.height}
		if img.xppi > 0 && img.yppi > 0 && p.Width > 0 && p.Height > 0 {
			placedW := float64(img.width) / img.xppi * 72
			placedH := float64(img.height) / img.yppi * 72
			info.AreaRatio = (placedW * placedH) / (p.Width * p.Height)
		}
		p.Images = append(p.Images, info)
	}

	return pages, nil
}

// pageSizes returns [width, height] in points for every page
func (b *PopplerBackend) pageSizes(ctx context.Context, path string) ([][2]float64, error) {
	out, stderr, err := b.run.Run(ctx, "pdfinfo", path)
	if err != nil {
		return nil, fmt.Errorf("pdfinfo failed: %w (%s)", err, runner.Truncate(string(stderr), 512))
	}
	m := rePages.FindSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("pdfinfo output has no page count")
	}
	n, _ := strconv.Atoi(string(m[1]))

	sizes := make([][2]float64, n)
	if d := reAnySize.FindSubmatch(out); d != nil {
		w, _ := strconv.ParseFloat(string(d[1]), 64)
		h, _ := strconv.ParseFloat(string(d[2]), 64)
		for i := range sizes {
			sizes[i] = [2]float64{w, h}
		}
	}

	if n > 1 {
		perPage, _, err := b.run.Run(ctx, "pdfinfo", "-f", "1", "-l", strconv.Itoa(n), path)
		if err == nil {
			for _, m := range rePageSize.FindAllSubmatch(perPage, -1) {
				page, _ := strconv.Atoi(string(m[1]))
				if page < 1 || page > n {
					continue
				}
				w, _ := strconv.ParseFloat(string(m[2]), 64)
				h, _ := strconv.ParseFloat(string(m[3]), 64)
				sizes[page-1] = [2]float64{w, h}
			}
		}
	}

	return sizes, nil
}

type listedImage struct {
	page          int
	width, height int
	xppi, yppi    float64
}

// parseImageList parses `pdfimages -list`. Masks are not images.
//
//	page   num  type   width height color comp bpc  enc interp  object ID x-ppi y-ppi size ratio
//	   1     0 image    2480  3508  rgb     3   8  jpeg   no        7  0   300   300  500K 2.0%
func parseImageList(out []byte) []listedImage {
	var images []listedImage
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 14 || fields[2] != "image" {
			continue
		}
		page, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		w, _ := strconv.Atoi(fields[3])
		h, _ := strconv.Atoi(fields[4])
		xppi, _ := strconv.ParseFloat(fields[12], 64)
		yppi, _ := strconv.ParseFloat(fields[13], 64)
		images = append(images, listedImage{page: page, width: w, height: h, xppi: xppi, yppi: yppi})
	}
	return images
}
