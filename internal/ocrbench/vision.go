package ocrbench

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/extraction-auditor/internal/clients"
	"github.com/adverant/nexus/extraction-auditor/internal/models"
)

// VisionClient is the part of the MageAgent client the vision engine needs
type VisionClient interface {
	ExtractTextFromBytes(ctx context.Context, imageData []byte, preferAccuracy bool, language string) (*clients.VisionOCRResponse, error)
}

// VisionEngine benchmarks MageAgent's vision OCR
type VisionEngine struct {
	client         VisionClient
	preferAccuracy bool
	language       string
}

// NewVisionEngine creates the engine
func NewVisionEngine(client VisionClient, preferAccuracy bool, language string) *VisionEngine {
	if language == "" {
		language = "en"
	}
	return &VisionEngine{client: client, preferAccuracy: preferAccuracy, language: language}
}

func (v *VisionEngine) Name() string {
	if v.preferAccuracy {
		return "vision-accurate"
	}
	return "vision"
}

// Recognize sends the page image; the model reports a single confidence in
// [0,1], which is applied to every non-space character
func (v *VisionEngine) Recognize(ctx context.Context, page models.PageImage) (*Recognition, error) {
	resp, err := v.client.ExtractTextFromBytes(ctx, page.Data, v.preferAccuracy, v.language)
	if err != nil {
		return nil, err
	}

	text := resp.Data.Text
	conf := resp.Data.Confidence * 100
	n := utf8.RuneCountInString(strings.Join(strings.Fields(text), ""))
	confidences := make([]float64, n)
	for i := range confidences {
		confidences[i] = conf
	}

	return &Recognition{Text: text, Confidences: confidences}, nil
}
