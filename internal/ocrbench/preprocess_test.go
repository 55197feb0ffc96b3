package ocrbench

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/adverant/nexus/extraction-auditor/internal/models"
	"github.com/disintegration/imaging"
)

// twoToneImage is dark on the left half and light on the right
func twoToneImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			c := color.RGBA{R: 70, G: 50, B: 60, A: 255}
			if x >= 20 {
				c = color.RGBA{R: 210, G: 190, B: 200, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func decodeNRGBA(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return imaging.Clone(img)
}

func TestPreprocessAdvancedBinarizes(t *testing.T) {
	out, err := Preprocess(twoToneImage(t), PreprocessAdvanced)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	img := decodeNRGBA(t, out)

	var black, white int
	for i := 0; i+3 < len(img.Pix); i += 4 {
		switch img.Pix[i] {
		case 0:
			black++
		case 255:
			white++
		default:
			t.Fatalf("pixel level %d is neither black nor white", img.Pix[i])
		}
	}
	if black == 0 || white == 0 {
		t.Errorf("expected both classes, got %d black and %d white", black, white)
	}
	if img.NRGBAAt(2, 10).R != 0 || img.NRGBAAt(37, 10).R != 255 {
		t.Error("dark half should go black and light half white")
	}
}

func TestPreprocessBasicIsGrayscale(t *testing.T) {
	out, err := Preprocess(twoToneImage(t), PreprocessBasic)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	img := decodeNRGBA(t, out)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		if img.Pix[i] != img.Pix[i+1] || img.Pix[i+1] != img.Pix[i+2] {
			t.Fatalf("pixel %d is not gray: %v", i/4, img.Pix[i:i+3])
		}
	}
	// contrast widens the gap between the halves
	if gap := int(img.NRGBAAt(37, 10).R) - int(img.NRGBAAt(2, 10).R); gap <= 140 {
		t.Errorf("contrast gap %d, want > 140", gap)
	}
}

func TestOtsuThresholdSplitsTwoLevels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 1))
	for x := 0; x < 10; x++ {
		level := uint8(60)
		if x >= 5 {
			level = 200
		}
		img.SetNRGBA(x, 0, color.NRGBA{R: level, G: level, B: level, A: 255})
	}
	if th := otsuThreshold(img); th < 60 || th >= 200 {
		t.Errorf("threshold %d not between the two levels", th)
	}
	if th := otsuThreshold(image.NewNRGBA(image.Rect(0, 0, 0, 0))); th != 128 {
		t.Errorf("empty image threshold %d", th)
	}
}

func TestPreprocessModes(t *testing.T) {
	raw := []byte("not an image")
	if out, err := Preprocess(raw, PreprocessNone); err != nil || !bytes.Equal(out, raw) {
		t.Error("none should pass bytes through")
	}
	if _, err := Preprocess(raw, PreprocessAdvanced); err == nil {
		t.Error("undecodable input should error")
	}

	page := models.PageImage{PageNumber: 1, Format: "tiff", Data: raw}
	if got := preprocessed(page, PreprocessAdvanced); got.Format != "tiff" || !bytes.Equal(got.Data, raw) {
		t.Error("undecodable pages should reach tesseract untouched")
	}
	if got := preprocessed(models.PageImage{Format: "jpeg", Data: twoToneImage(t)}, PreprocessBasic); got.Format != "png" {
		t.Errorf("preprocessed page format %s, want png", got.Format)
	}

	for in, want := range map[string]PreprocessMode{"": PreprocessNone, "none": PreprocessNone, "basic": PreprocessBasic, "advanced": PreprocessAdvanced} {
		if got, err := ParsePreprocessMode(in); err != nil || got != want {
			t.Errorf("ParsePreprocessMode(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParsePreprocessMode("sharpen"); err == nil {
		t.Error("unknown mode should error")
	}
}
