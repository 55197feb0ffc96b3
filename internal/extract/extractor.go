/**
 * Native Text Extraction
 *
 * Pulls the text layer out of a document without OCR. Two independent
 * extractors run side by side so their quality scores can be averaged:
 * docconv (pdftotext and friends) and a pure-Go PDF text walker.
 */

package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// Extractor pulls native text from raw document bytes
type Extractor interface {
	Name() string
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Result is one extractor's output
type Result struct {
	Extractor string `json:"extractor"`
	Text      string `json:"-"`
	Chars     int    `json:"chars"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the extractor produced text
func (r Result) OK() bool { return r.Error == "" && r.Text != "" }

// Run executes every extractor concurrently. Results keep the extractor order.
func Run(ctx context.Context, extractors []Extractor, data []byte, mimeType string) []Result {
	results := make([]Result, len(extractors))

	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range extractors {
		g.Go(func() error {
			res := Result{Extractor: ex.Name()}
			text, err := ex.ExtractText(gctx, data, mimeType)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Text = text
				res.Chars = len([]rune(text))
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// DocconvExtractor converts with code.sajari.com/docconv
type DocconvExtractor struct {
	useReadability bool
}

// NewDocconvExtractor creates the extractor
func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) Name() string { return "docconv" }

// ExtractText converts data based on its MIME type
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv: extraction failed for content type %q: %w", mimeType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if strings.TrimSpace(res.Body) == "" {
		return "", fmt.Errorf("docconv: no text extracted for content type %q", mimeType)
	}
	return res.Body, nil
}

// PDFTextExtractor reads the PDF content streams with ledongthuc/pdf
type PDFTextExtractor struct{}

// NewPDFTextExtractor creates the extractor
func NewPDFTextExtractor() *PDFTextExtractor { return &PDFTextExtractor{} }

func (e *PDFTextExtractor) Name() string { return "pdf-text" }

// ExtractText returns the plain text of every page
func (e *PDFTextExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (text string, err error) {
	if mimeType != "application/pdf" {
		return "", fmt.Errorf("pdf-text: unsupported content type %q", mimeType)
	}

	// the parser panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf-text: malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf-text: failed to open PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf-text: failed to read text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf-text: failed to read text: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", fmt.Errorf("pdf-text: no text layer")
	}
	return string(b), nil
}

// Best returns the longest successful extraction, or "" if none succeeded
func Best(results []Result) string {
	best := ""
	for _, r := range results {
		if r.OK() && len(r.Text) > len(best) {
			best = r.Text
		}
	}
	return best
}
