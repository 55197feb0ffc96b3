package ocrbench

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// PreprocessMode selects the image cleanup applied before Tesseract
type PreprocessMode string

const (
	PreprocessNone PreprocessMode = "none"
	// PreprocessBasic converts to grayscale and doubles contrast
	PreprocessBasic PreprocessMode = "basic"
	// PreprocessAdvanced converts to grayscale, blurs and binarises with Otsu's threshold
	PreprocessAdvanced PreprocessMode = "advanced"
)

// ParsePreprocessMode accepts none, basic or advanced; empty means none
func ParsePreprocessMode(s string) (PreprocessMode, error) {
	switch PreprocessMode(s) {
	case "", PreprocessNone:
		return PreprocessNone, nil
	case PreprocessBasic, PreprocessAdvanced:
		return PreprocessMode(s), nil
	}
	return "", fmt.Errorf("unknown preprocess mode %q", s)
}

// Preprocess decodes a page image, cleans it up per mode and re-encodes it as PNG
func Preprocess(data []byte, mode PreprocessMode) ([]byte, error) {
	if mode == PreprocessNone || mode == "" {
		return data, nil
	}

	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}

	gray := imaging.Grayscale(src)
	var out image.Image
	switch mode {
	case PreprocessBasic:
		out = imaging.AdjustContrast(gray, 100)
	case PreprocessAdvanced:
		// sigma 1.1 approximates a 5x5 gaussian kernel
		blurred := imaging.Blur(gray, 1.1)
		out = binarize(blurred, otsuThreshold(blurred))
	default:
		return nil, fmt.Errorf("unknown preprocess mode %q", mode)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}
	return buf.Bytes(), nil
}

// otsuThreshold picks the gray level that maximises between-class variance.
// img must already be grayscale, so the red channel carries the level.
func otsuThreshold(img *image.NRGBA) uint8 {
	var hist [256]int
	total := 0
	for i := 0; i+3 < len(img.Pix); i += 4 {
		hist[img.Pix[i]]++
		total++
	}
	if total == 0 {
		return 128
	}

	var sum float64
	for level, n := range hist {
		sum += float64(level * n)
	}

	var (
		sumB, best float64
		weightB    int
		threshold  uint8
	)
	for level, n := range hist {
		weightB += n
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(level * n)
		meanB := sumB / float64(weightB)
		meanF := (sum - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			threshold = uint8(level)
		}
	}
	return threshold
}

func binarize(img *image.NRGBA, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if c.R > threshold {
			return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
		}
		return color.NRGBA{A: c.A}
	})
}
