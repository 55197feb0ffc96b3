package ocrbench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/clients"
	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/adverant/nexus/extraction-auditor/internal/runner"
)

type fakeEngine struct {
	name  string
	text  string
	conf  float64
	delay time.Duration
	err   error
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, page models.PageImage) (*Recognition, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	text := fmt.Sprintf("%s page %d", f.text, page.PageNumber)
	confs := make([]float64, len(text))
	for i := range confs {
		confs[i] = f.conf
	}
	return &Recognition{Text: text, Confidences: confs}, nil
}

func testPages(n int) []models.PageImage {
	out := make([]models.PageImage, n)
	for i := range out {
		out[i] = models.PageImage{PageNumber: i + 1, Format: "png", Data: []byte{0x89, 'P', 'N', 'G'}}
	}
	return out
}

func TestRunKeepsSameNamedEnginesApart(t *testing.T) {
	engines := []Engine{
		&fakeEngine{name: "tesseract", err: fmt.Errorf("missing language data")},
		&fakeEngine{name: "tesseract", text: "recognised", conf: 88},
	}

	res := NewBenchmark(DefaultConfig()).Run(context.Background(), testPages(2), engines)

	if len(res.Engines) != 2 {
		t.Fatalf("expected 2 engine metrics, got %d", len(res.Engines))
	}
	first, second := res.Engines[0], res.Engines[1]
	if first.Succeeded != 0 || first.Failed != 2 {
		t.Errorf("first engine: %+v", first)
	}
	if second.Succeeded != 2 || second.Failed != 0 || second.AvgConfidence != 88 {
		t.Errorf("second engine: %+v", second)
	}
}

func TestRunWithFailingEngine(t *testing.T) {
	engines := []Engine{
		&fakeEngine{name: "good", text: "clean recognised text", conf: 91},
		&fakeEngine{name: "broken", err: fmt.Errorf("engine crashed")},
		&fakeEngine{name: "verbose", text: "a much longer recognised text body here", conf: 70},
	}

	res := NewBenchmark(DefaultConfig()).Run(context.Background(), testPages(2), engines)

	if len(res.Samples) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(res.Samples))
	}
	for i, s := range res.Samples {
		wantEngine := engines[i/2].Name()
		if s.Engine != wantEngine || s.Page != i%2+1 {
			t.Errorf("sample %d: %s page %d, want %s page %d", i, s.Engine, s.Page, wantEngine, i%2+1)
		}
		if s.Engine == "broken" {
			if s.OK() || !strings.Contains(s.Error, "OCR_FAILED") {
				t.Errorf("broken engine sample should carry OCR_FAILED, got %q", s.Error)
			}
		} else if !s.OK() {
			t.Errorf("healthy engine sample failed: %s", s.Error)
		}
	}

	if res.Comparison == nil {
		t.Fatal("comparison should be computed over the successful engines")
	}
	if res.Comparison.HighestConfidence.Engine != "good" || res.Comparison.HighestConfidence.Value != 91 {
		t.Errorf("highest confidence: %+v", res.Comparison.HighestConfidence)
	}
	if res.Comparison.MostCharacters.Engine != "verbose" {
		t.Errorf("most characters: %+v", res.Comparison.MostCharacters)
	}
	if res.Comparison.Fastest.Engine == "broken" {
		t.Error("failed engine must not win fastest")
	}

	if res.Engines[1].Failed != 2 || res.Engines[1].Succeeded != 0 {
		t.Errorf("broken engine metrics: %+v", res.Engines[1])
	}
	if !contains(res.Recommendations, "Use good for highest accuracy") {
		t.Errorf("recommendations: %v", res.Recommendations)
	}
}

func TestRunAllFailingGivesNilComparison(t *testing.T) {
	engines := []Engine{
		&fakeEngine{name: "a", err: fmt.Errorf("no language data")},
		&fakeEngine{name: "b", err: fmt.Errorf("no language data")},
	}
	res := NewBenchmark(DefaultConfig()).Run(context.Background(), testPages(1), engines)

	if res.Comparison != nil {
		t.Errorf("expected nil comparison, got %+v", res.Comparison)
	}
	if len(res.Samples) != 2 {
		t.Errorf("failures must still be recorded as samples, got %d", len(res.Samples))
	}
}

func TestRunEngineTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EngineTimeout = 40 * time.Millisecond
	engines := []Engine{
		&fakeEngine{name: "slow", text: "late", conf: 99, delay: 400 * time.Millisecond},
		&fakeEngine{name: "quick", text: "early", conf: 60},
	}

	start := time.Now()
	res := NewBenchmark(cfg).Run(context.Background(), testPages(1), engines)
	if time.Since(start) > 300*time.Millisecond {
		t.Errorf("benchmark waited for a timed-out engine")
	}

	if !strings.Contains(res.Samples[0].Error, "OCR_TIMEOUT") {
		t.Errorf("slow engine should time out, got %+v", res.Samples[0])
	}
	if res.Comparison == nil || res.Comparison.HighestConfidence.Engine != "quick" {
		t.Errorf("comparison should only see the quick engine: %+v", res.Comparison)
	}
}

func TestRunRecommendationsByEngineCount(t *testing.T) {
	b := NewBenchmark(DefaultConfig())

	none := b.Run(context.Background(), testPages(1), nil)
	if none.Comparison != nil || !contains(none.Recommendations, "Install OCR engines") {
		t.Errorf("no engines: %+v", none)
	}

	one := b.Run(context.Background(), testPages(1), []Engine{&fakeEngine{name: "solo", text: "x", conf: 50}})
	if !contains(one.Recommendations, "Install additional OCR engines") {
		t.Errorf("one engine: %v", one.Recommendations)
	}
}

func TestRunLowConfidenceSlowEnginesSuggestPreprocessing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FastMs = 0.000001
	res := NewBenchmark(cfg).Run(context.Background(), testPages(1), []Engine{
		&fakeEngine{name: "a", text: "blurry", conf: 40, delay: time.Millisecond},
		&fakeEngine{name: "b", text: "blurry", conf: 45, delay: time.Millisecond},
	})
	if len(res.Recommendations) != 1 || !strings.Contains(res.Recommendations[0], "preprocessing") {
		t.Errorf("recommendations: %v", res.Recommendations)
	}
}

func TestSamplePages(t *testing.T) {
	testCases := []struct {
		total int
		n     int
		want  []int
	}{
		{10, 3, []int{1, 5, 10}},
		{2, 3, []int{1, 2}},
		{5, 1, []int{1}},
		{4, 0, []int{}},
		{0, 3, []int{}},
		{3, 3, []int{1, 2, 3}},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d of %d", tc.n, tc.total), func(t *testing.T) {
			got := SamplePages(testPages(tc.total), tc.n)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d pages, want %d", len(got), len(tc.want))
			}
			for i, p := range got {
				if p.PageNumber != tc.want[i] {
					t.Errorf("page %d: got %d, want %d", i, p.PageNumber, tc.want[i])
				}
			}
		})
	}
}

const tsvOut = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t2550\t3300\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t100\t100\t800\t40\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t100\t200\t40\t96.5\tInvoice\n" +
	"5\t1\t1\t1\t1\t2\t320\t100\t120\t40\t90\t42\n" +
	"5\t1\t1\t1\t2\t1\t100\t160\t200\t40\t80\tTotal\n"

func TestParseTSV(t *testing.T) {
	rec := parseTSV([]byte(tsvOut))
	if rec.Text != "Invoice 42\nTotal" {
		t.Errorf("text: %q", rec.Text)
	}
	if len(rec.Confidences) != len("Invoice")+len("42")+len("Total") {
		t.Fatalf("confidences: %d", len(rec.Confidences))
	}
	if rec.Confidences[0] != 96.5 || rec.Confidences[len(rec.Confidences)-1] != 80 {
		t.Errorf("confidence spread wrong: %v", rec.Confidences)
	}
}

func TestTesseractCLIEngine(t *testing.T) {
	stub := &runner.Stub{Stdout: map[string][]byte{"tesseract": []byte(tsvOut)}}
	eng := NewTesseractCLIEngine(stub, "", "", t.TempDir())

	res := NewBenchmark(DefaultConfig()).Run(context.Background(), testPages(1), []Engine{eng})
	s := res.Samples[0]
	if !s.OK() || s.WordCount != 3 || s.CharacterCount != len("Invoice 42\nTotal") {
		t.Errorf("unexpected sample %+v", s)
	}
	if len(stub.Calls) != 1 || stub.Calls[0].Args[1] != "stdout" {
		t.Errorf("unexpected invocation %+v", stub.Calls)
	}
	if _, err := os.Stat(stub.Calls[0].Args[0]); !os.IsNotExist(err) {
		t.Errorf("temp image should be removed after recognition")
	}
}

func TestTesseractCLIEnginePreprocessesPage(t *testing.T) {
	stub := &runner.Stub{Stdout: map[string][]byte{"tesseract": []byte(tsvOut)}}
	eng := NewTesseractCLIEngine(stub, "", "", t.TempDir()).WithPreprocessing(PreprocessAdvanced)

	page := models.PageImage{PageNumber: 1, Format: "jpeg", Data: twoToneImage(t)}
	if _, err := eng.Recognize(context.Background(), page); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(stub.Calls) != 1 || filepath.Ext(stub.Calls[0].Args[0]) != ".png" {
		t.Errorf("preprocessed page should be written as png: %+v", stub.Calls)
	}
}

type stubVision struct{}

func (stubVision) ExtractTextFromBytes(ctx context.Context, imageData []byte, preferAccuracy bool, language string) (*clients.VisionOCRResponse, error) {
	return &clients.VisionOCRResponse{Success: true, Data: clients.VisionOCRData{Text: "Hello world", Confidence: 0.75}}, nil
}

func TestVisionEngineSpreadsConfidence(t *testing.T) {
	rec, err := NewVisionEngine(stubVision{}, false, "").Recognize(context.Background(), testPages(1)[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Confidences) != 10 {
		t.Errorf("expected one confidence per non-space rune, got %d", len(rec.Confidences))
	}
	if rec.Confidences[0] != 75 {
		t.Errorf("confidence should be on 0-100 scale, got %f", rec.Confidences[0])
	}
}

// TestTesseractEngineLive needs libtesseract and a fixture image
func TestTesseractEngineLive(t *testing.T) {
	fixture := filepath.Join("testdata", "scanned_page.png")
	data, err := os.ReadFile(fixture)
	if err != nil {
		t.Skipf("Test image not found: %s", fixture)
		return
	}

	page := models.PageImage{PageNumber: 1, Format: "png", Data: data}
	res := NewBenchmark(DefaultConfig()).Run(context.Background(), []models.PageImage{page}, []Engine{NewTesseractEngine("eng")})
	if !res.Samples[0].OK() {
		t.Fatalf("tesseract failed: %s", res.Samples[0].Error)
	}
	t.Logf("tesseract: %d chars at %.1f%% in %.0fms",
		res.Samples[0].CharacterCount, res.Samples[0].AvgConfidence, res.Samples[0].ProcessingTimeMs)
}

func contains(recs []string, fragment string) bool {
	for _, r := range recs {
		if strings.Contains(r, fragment) {
			return true
		}
	}
	return false
}
