/**
 * Tesseract engines
 *
 * TesseractEngine links libtesseract through gosseract. TesseractCLIEngine
 * shells out to the tesseract binary and reads its TSV output, which is the
 * fallback when the worker is built without cgo.
 */

package ocrbench

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/adverant/nexus/extraction-auditor/internal/runner"
	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs OCR in-process with gosseract
type TesseractEngine struct {
	language   string
	preprocess PreprocessMode
}

// NewTesseractEngine creates the engine; language defaults to "eng"
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}
}

// WithPreprocessing sets the image cleanup applied before recognition
func (t *TesseractEngine) WithPreprocessing(mode PreprocessMode) *TesseractEngine {
	t.preprocess = mode
	return t
}

func (t *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs word-level recognition and spreads each word's confidence
// over its characters
func (t *TesseractEngine) Recognize(ctx context.Context, page models.PageImage) (*Recognition, error) {
	// gosseract clients are not safe for concurrent use
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(preprocessed(page, t.preprocess).Data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract word boxes failed: %w", err)
	}

	var confidences []float64
	for _, box := range boxes {
		confidences = spread(confidences, box.Word, box.Confidence)
	}

	return &Recognition{Text: text, Confidences: confidences}, nil
}

// preprocessed returns page cleaned up per mode. Images the decoder cannot
// read are passed through untouched for Tesseract to handle.
func preprocessed(page models.PageImage, mode PreprocessMode) models.PageImage {
	if mode == PreprocessNone || mode == "" {
		return page
	}
	data, err := Preprocess(page.Data, mode)
	if err != nil {
		return page
	}
	page.Data = data
	page.Format = "png"
	return page
}

// TesseractCLIEngine runs the tesseract binary
type TesseractCLIEngine struct {
	run        runner.Runner
	binary     string
	language   string
	tempDir    string
	preprocess PreprocessMode
}

// NewTesseractCLIEngine creates the engine
func NewTesseractCLIEngine(r runner.Runner, binary, language, tempDir string) *TesseractCLIEngine {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractCLIEngine{run: r, binary: binary, language: language, tempDir: tempDir}
}

// WithPreprocessing sets the image cleanup applied before recognition
func (t *TesseractCLIEngine) WithPreprocessing(mode PreprocessMode) *TesseractCLIEngine {
	t.preprocess = mode
	return t
}

func (t *TesseractCLIEngine) Name() string { return "tesseract-cli" }

// Recognize writes the page to a temp file and parses `tesseract ... tsv`
func (t *TesseractCLIEngine) Recognize(ctx context.Context, page models.PageImage) (*Recognition, error) {
	page = preprocessed(page, t.preprocess)
	ext := page.Format
	if ext == "" {
		ext = "png"
	}
	f, err := os.CreateTemp(t.tempDir, fmt.Sprintf("ocr-page-%d-*.%s", page.PageNumber, ext))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(page.Data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp image: %w", err)
	}

	out, stderr, err := t.run.Run(ctx, t.binary, filepath.Clean(f.Name()), "stdout", "-l", t.language, "--psm", "3", "tsv")
	if err != nil {
		return nil, fmt.Errorf("tesseract failed: %w (%s)", err, runner.Truncate(string(stderr), 512))
	}

	return parseTSV(out), nil
}

// parseTSV rebuilds text from tesseract TSV rows, one output line per
// (block, paragraph, line) group. Rows with negative confidence are layout rows.
func parseTSV(out []byte) *Recognition {
	rec := &Recognition{}
	var sb strings.Builder
	lastLine := ""

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		word := strings.TrimSpace(cols[11])
		if err != nil || conf < 0 || word == "" {
			continue
		}

		lineKey := cols[2] + "/" + cols[3] + "/" + cols[4]
		switch {
		case lastLine == "":
		case lineKey != lastLine:
			sb.WriteByte('\n')
		default:
			sb.WriteByte(' ')
		}
		lastLine = lineKey

		sb.WriteString(word)
		rec.Confidences = spread(rec.Confidences, word, conf)
	}

	rec.Text = sb.String()
	return rec
}

// spread appends conf once per rune of word
func spread(dst []float64, word string, conf float64) []float64 {
	for i := utf8.RuneCountInString(word); i > 0; i-- {
		dst = append(dst, conf)
	}
	return dst
}
