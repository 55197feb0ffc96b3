package images

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/adverant/nexus/extraction-auditor/internal/runner"
)

type fakeBackend struct {
	name  string
	pages []PageImages
	err   error
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) PageImages(ctx context.Context, doc models.Document) ([]PageImages, error) {
	return f.pages, f.err
}

func imgs(ratios ...float64) []ImageInfo {
	out := make([]ImageInfo, len(ratios))
	for i, r := range ratios {
		out[i] = ImageInfo{WidthPx: 100, HeightPx: 100, AreaRatio: r}
	}
	return out
}

var pdfDoc = models.Document{ID: "d1", Path: "/tmp/d1.pdf", MimeType: "application/pdf", PageCount: 3}

func TestCollectReconcilesByMaximum(t *testing.T) {
	a := &fakeBackend{name: "a", pages: []PageImages{
		{Page: 1, Images: imgs(0.1)},
		{Page: 2, Images: imgs(0.9)},
		{Page: 3, Images: imgs()},
	}}
	b := &fakeBackend{name: "b", pages: []PageImages{
		{Page: 1, Images: imgs(0.1, 0.2, 0.05)},
		{Page: 2, Images: imgs(0.5)},
		{Page: 3, Images: imgs(0.3)},
	}}

	res := NewCollector(DefaultConfig(), a, b).Collect(context.Background(), pdfDoc)

	want := []int{3, 1, 1}
	for i, n := range want {
		if res.ImagesPerPage[i] != n {
			t.Errorf("page %d: %d images, want %d", i+1, res.ImagesPerPage[i], n)
		}
	}
	if len(res.LargeImagePages) != 1 || res.LargeImagePages[0] != 2 {
		t.Errorf("large pages: %v, want [2]", res.LargeImagePages)
	}
	// coverage per page: max(0.1, 0.35)=0.35, max(0.9,0.5)=0.9, max(0,0.3)=0.3
	if math.Abs(res.TotalImageAreaRatio-(0.35+0.9+0.3)/3) > 1e-9 {
		t.Errorf("area ratio: %f", res.TotalImageAreaRatio)
	}
	if res.AverageImagesPerPage() != 5.0/3.0 {
		t.Errorf("average: %f", res.AverageImagesPerPage())
	}
}

func TestCollectSurvivesFailingBackend(t *testing.T) {
	good := &fakeBackend{name: "good", pages: []PageImages{{Page: 1, Images: imgs(0.95)}}}
	bad := &fakeBackend{name: "bad", err: fmt.Errorf("corrupt xref")}

	res := NewCollector(DefaultConfig(), bad, good).Collect(context.Background(), models.Document{MimeType: "application/pdf", PageCount: 1})
	if !res.Available {
		t.Fatal("one working backend should make the result available")
	}
	if len(res.Backends) != 1 || res.Backends[0] != "good" {
		t.Errorf("backends: %v", res.Backends)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "BACKEND_FAILED") {
		t.Errorf("warnings: %v", res.Warnings)
	}
	if len(res.LargeImagePages) != 1 {
		t.Errorf("expected large page from the good backend")
	}
}

func TestCollectWithoutBackends(t *testing.T) {
	res := NewCollector(DefaultConfig()).Collect(context.Background(), pdfDoc)
	if res.Available || len(res.ImagesPerPage) != 0 {
		t.Errorf("expected unavailable empty result, got %+v", res)
	}
}

func TestCollectIgnoresExtraBackends(t *testing.T) {
	mk := func(name string, n int) *fakeBackend {
		return &fakeBackend{name: name, pages: []PageImages{{Page: 1, Images: imgs(make([]float64, n)...)}}}
	}
	res := NewCollector(DefaultConfig(), mk("a", 1), mk("b", 1), mk("c", 9)).Collect(context.Background(), models.Document{PageCount: 1})
	if res.ImagesPerPage[0] != 1 {
		t.Errorf("third backend should be ignored, got %d images", res.ImagesPerPage[0])
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", res.Warnings)
	}
}

const pdfinfoOut = `Title:          scan
Pages:          2
Page size:      612 x 792 pts (letter)
Page    1 size: 612 x 792 pts (letter)
Page    2 size: 595 x 842 pts (A4)
`

const pdfimagesOut = `page   num  type   width height color comp bpc  enc interp  object ID x-ppi y-ppi size ratio
--------------------------------------------------------------------------------------------
   1     0 image    2550  3300  gray    1   8  jpeg   no         7  0   300   300  512K 6.2%
   1     1 smask    2550  3300  gray    1   8  image  no         7  0   300   300  10K 0.1%
   2     2 image     300   150  rgb     3   8  jpeg   no        12  0   150   150  20K 14%
`

func TestPopplerBackendParsesPlacements(t *testing.T) {
	stub := &runner.Stub{Stdout: map[string][]byte{
		"pdfinfo":   []byte(pdfinfoOut),
		"pdfimages": []byte(pdfimagesOut),
	}}

	pages, err := NewPopplerBackend(stub).PageImages(context.Background(), pdfDoc)
	if err != nil {
		t.Fatalf("PageImages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if len(pages[0].Images) != 1 {
		t.Errorf("smask must not count as an image, got %d", len(pages[0].Images))
	}
	if r := pages[0].Images[0].AreaRatio; math.Abs(r-1) > 0.01 {
		t.Errorf("full-page scan area ratio: %f", r)
	}
	if pages[1].Width != 595 {
		t.Errorf("page 2 width: %f", pages[1].Width)
	}
	// 300x150 px at 150 ppi = 144x72 pt on an A4 page
	want := 144.0 * 72 / (595 * 842)
	if r := pages[1].Images[0].AreaRatio; math.Abs(r-want) > 1e-9 {
		t.Errorf("small image ratio: %f, want %f", r, want)
	}
}

func TestPopplerBackendRejectsNonPDF(t *testing.T) {
	_, err := NewPopplerBackend(&runner.Stub{}).PageImages(context.Background(), models.Document{MimeType: "image/png"})
	if err == nil {
		t.Error("expected error for non-PDF document")
	}
}

func TestEstimateAreaRatio(t *testing.T) {
	testCases := []struct {
		name string
		w, h int
		want float64
	}{
		{"letter scan at 300dpi", 2550, 3300, 1},
		{"letter scan at 72dpi", 612, 792, 612 * 792 / (150.0 * 150.0 / (72 * 72)) / (612 * 792)},
		{"wide banner", 1200, 200, (1200.0 / 150 * 72) * (200.0 / 150 * 72) / (612 * 792)},
		{"empty", 0, 0, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := estimateAreaRatio(tc.w, tc.h, 612, 792)
			if math.Abs(got-math.Min(1, tc.want)) > 1e-9 {
				t.Errorf("got %f, want %f", got, tc.want)
			}
		})
	}
}
