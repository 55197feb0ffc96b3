package scanned

import (
	"strings"
	"testing"

	"github.com/adverant/nexus/extraction-auditor/internal/images"
	"github.com/adverant/nexus/extraction-auditor/internal/quality"
)

func imageResult(perPage []int, large []int) images.Result {
	return images.Result{Available: true, PageCount: len(perPage), ImagesPerPage: perPage, LargeImagePages: large}
}

func TestClassifyScannedScenario(t *testing.T) {
	// 7 images over 5 pages = 1.4 per page, one full-page image
	img := imageResult([]int{2, 1, 1, 2, 1}, []int{3})
	v := NewClassifier(DefaultConfig()).Classify(quality.Score{Value: 15}, img)

	if !v.LikelyScanned {
		t.Error("expected likely_scanned")
	}
	if v.Confidence < 80 {
		t.Errorf("confidence %f, want >= 80", v.Confidence)
	}
	if v.Confidence > 100 {
		t.Errorf("confidence not clamped: %f", v.Confidence)
	}
	if v.DocumentType != TypeScanned {
		t.Errorf("document type %s, want scanned", v.DocumentType)
	}
	if len(v.Evidence) != 3 {
		t.Errorf("expected 3 evidence items, got %v", v.Evidence)
	}
}

func TestClassifyDigitalDocument(t *testing.T) {
	v := NewClassifier(DefaultConfig()).Classify(quality.Score{Value: 92}, imageResult([]int{0, 1, 0}, nil))
	if v.LikelyScanned || v.Confidence != 0 || v.DocumentType != TypeDigital {
		t.Errorf("unexpected verdict %+v", v)
	}
	if !strings.Contains(v.Evidence[0], "good native text") {
		t.Errorf("evidence: %v", v.Evidence)
	}
}

func TestClassifyEvidenceWeights(t *testing.T) {
	testCases := []struct {
		name    string
		quality int
		img     images.Result
		want    float64
		docType DocumentType
	}{
		{"poor quality only", 35, images.Result{}, 20, TypeDigital},
		{"very poor quality only", 10, images.Result{}, 40, TypeMixed},
		{"very poor quality is not also poor", 15, images.Result{}, 40, TypeMixed},
		{"dense images only", 80, imageResult([]int{1, 1}, nil), 20, TypeDigital},
		{"large image only", 80, imageResult([]int{1, 0}, []int{1}), 25, TypeDigital},
		{"poor quality with large image", 30, imageResult([]int{1, 0}, []int{1}), 45, TypeMixed},
		{"boundary 20 is not very poor", 20, images.Result{}, 20, TypeDigital},
	}

	c := NewClassifier(DefaultConfig())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := c.Classify(quality.Score{Value: tc.quality}, tc.img)
			if v.Confidence != tc.want {
				t.Errorf("confidence %f, want %f", v.Confidence, tc.want)
			}
			if v.DocumentType != tc.docType {
				t.Errorf("type %s, want %s", v.DocumentType, tc.docType)
			}
		})
	}
}

func TestClassifyVeryPoorTextAloneIsNotLikelyScanned(t *testing.T) {
	v := NewClassifier(DefaultConfig()).Classify(quality.Score{Value: 15}, images.Result{})
	if v.Confidence != 40 || v.LikelyScanned {
		t.Errorf("confidence %f likely %v, want 40 false", v.Confidence, v.LikelyScanned)
	}
	if len(v.Evidence) != 1 || !strings.Contains(v.Evidence[0], "very poor") {
		t.Errorf("evidence: %v", v.Evidence)
	}
}

func TestClassifyMonotoneInEvidence(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	for q := 0; q <= 100; q += 5 {
		base := imageResult([]int{0, 1, 0, 0}, nil)
		more := imageResult([]int{0, 1, 0, 0}, []int{2})
		denser := imageResult([]int{2, 1, 1, 1}, []int{2})

		v0 := c.Classify(quality.Score{Value: q}, base)
		v1 := c.Classify(quality.Score{Value: q}, more)
		v2 := c.Classify(quality.Score{Value: q}, denser)
		if v1.Confidence < v0.Confidence || v2.Confidence < v1.Confidence {
			t.Fatalf("confidence decreased with more evidence at quality %d: %f, %f, %f", q, v0.Confidence, v1.Confidence, v2.Confidence)
		}
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	img := imageResult([]int{1, 2}, []int{1})
	a := c.Classify(quality.Score{Value: 33}, img)
	b := c.Classify(quality.Score{Value: 33}, img)
	if a.Confidence != b.Confidence || strings.Join(a.Evidence, "|") != strings.Join(b.Evidence, "|") {
		t.Error("identical inputs gave different verdicts")
	}
}

func TestDocumentTypeFor(t *testing.T) {
	c := NewClassifier(Config{})
	cases := map[float64]DocumentType{0: TypeDigital, 29.9: TypeDigital, 30: TypeMixed, 69.9: TypeMixed, 70: TypeScanned, 100: TypeScanned}
	for conf, want := range cases {
		if got := c.DocumentTypeFor(conf); got != want {
			t.Errorf("DocumentTypeFor(%v) = %s, want %s", conf, got, want)
		}
	}
}
