package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/adverant/nexus/extraction-auditor/internal/runner"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRasterizePDFSortsPagesNumerically(t *testing.T) {
	page := pngBytes(t, 17, 22)
	stub := &runner.Stub{
		// pdftoppm pads to two digits for a 10+ page document
		Hook: func(name string, args []string) error {
			prefix := args[len(args)-1]
			for _, n := range []string{"10", "02", "01"} {
				if err := os.WriteFile(fmt.Sprintf("%s-%s.png", prefix, n), page, 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}

	r := NewPopplerRasterizer(stub, Config{TempDir: t.TempDir()})
	pages, err := r.Rasterize(context.Background(), models.Document{ID: "doc", Path: "in.pdf", MimeType: "application/pdf"}, 0)
	if err != nil {
		t.Fatal(err)
	}

	want := []int{1, 2, 10}
	if len(pages) != len(want) {
		t.Fatalf("got %d pages, want %d", len(pages), len(want))
	}
	for i, p := range pages {
		if p.PageNumber != want[i] {
			t.Errorf("page %d: got number %d, want %d", i, p.PageNumber, want[i])
		}
		if p.Width != 17 || p.Height != 22 || p.Format != "png" {
			t.Errorf("page %d: unexpected image %dx%d %s", i, p.Width, p.Height, p.Format)
		}
	}

	call := stub.Calls[0]
	if call.Name != "pdftoppm" || call.Args[1] != "150" || call.Args[6] != "20" {
		t.Errorf("unexpected invocation %+v", call)
	}
}

func TestRasterizeCapsPages(t *testing.T) {
	page := pngBytes(t, 4, 4)
	stub := &runner.Stub{
		Hook: func(name string, args []string) error {
			prefix := args[len(args)-1]
			for n := 1; n <= 3; n++ {
				if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, n), page, 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}

	pages, err := NewPopplerRasterizer(stub, Config{TempDir: t.TempDir()}).
		Rasterize(context.Background(), models.Document{Path: "in.pdf", Filename: "in.pdf"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Errorf("expected 2 pages, got %d", len(pages))
	}
	if stub.Calls[0].Args[6] != "2" {
		t.Errorf("last page flag should follow maxPages, got %v", stub.Calls[0].Args)
	}
}

func TestRasterizeFailures(t *testing.T) {
	t.Run("tool error", func(t *testing.T) {
		stub := &runner.Stub{Errs: map[string]error{"pdftoppm": fmt.Errorf("exit status 1")}}
		_, err := NewPopplerRasterizer(stub, Config{TempDir: t.TempDir()}).
			Rasterize(context.Background(), models.Document{Path: "x.pdf", MimeType: "application/pdf"}, 1)
		if err == nil {
			t.Error("expected error")
		}
	})

	t.Run("no output", func(t *testing.T) {
		_, err := NewPopplerRasterizer(&runner.Stub{}, Config{TempDir: t.TempDir()}).
			Rasterize(context.Background(), models.Document{Path: "x.pdf", MimeType: "application/pdf"}, 1)
		if err == nil {
			t.Error("expected error when no pages are produced")
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := NewPopplerRasterizer(&runner.Stub{}, Config{}).
			Rasterize(context.Background(), models.Document{Path: "x.docx", MimeType: "application/zip"}, 1)
		if err == nil {
			t.Error("expected error for non-PDF document")
		}
	})
}

func TestRasterizeImagePassesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(path, pngBytes(t, 30, 40), 0o644); err != nil {
		t.Fatal(err)
	}

	stub := &runner.Stub{}
	pages, err := NewPopplerRasterizer(stub, Config{}).
		Rasterize(context.Background(), models.Document{Path: path, MimeType: "image/png"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].PageNumber != 1 || pages[0].Width != 30 || pages[0].Height != 40 || pages[0].Format != "png" {
		t.Errorf("unexpected pages %+v", pages)
	}
	if len(stub.Calls) != 0 {
		t.Error("images must not be sent through pdftoppm")
	}
}

func TestPageNumberFromName(t *testing.T) {
	testCases := map[string]int{
		"/tmp/audit-pages-1/page-1.png":   1,
		"/tmp/audit-pages-1/page-007.png": 7,
		"/tmp/page-x.png":                 0,
		"/tmp/page.png":                   0,
	}
	for name, want := range testCases {
		got, ok := pageNumberFromName(name)
		if want == 0 && ok {
			t.Errorf("%s: expected no page number, got %d", name, got)
		}
		if want > 0 && got != want {
			t.Errorf("%s: got %d, want %d", name, got, want)
		}
	}
}
