package layout

import (
	"context"

	"github.com/adverant/nexus/extraction-auditor/internal/clients"
	"github.com/adverant/nexus/extraction-auditor/internal/models"
)

// LayoutClient is the part of the MageAgent client the detector needs
type LayoutClient interface {
	AnalyzeLayoutFromBytes(ctx context.Context, imageData []byte, language string) (*clients.LayoutAnalysisResponse, error)
}

// MageAgentDetector adapts MageAgent layout analysis to the Detector interface
type MageAgentDetector struct {
	client   LayoutClient
	language string
}

// NewMageAgentDetector wraps client; language defaults to "en"
func NewMageAgentDetector(client LayoutClient, language string) *MageAgentDetector {
	if language == "" {
		language = "en"
	}
	return &MageAgentDetector{client: client, language: language}
}

// DetectPage sends the page image and converts each returned region
func (d *MageAgentDetector) DetectPage(ctx context.Context, page models.PageImage) ([]RawDetection, error) {
	resp, err := d.client.AnalyzeLayoutFromBytes(ctx, page.Data, d.language)
	if err != nil {
		return nil, err
	}

	detections := make([]RawDetection, 0, len(resp.Data.Elements))
	for _, el := range resp.Data.Elements {
		detections = append(detections, RawDetection{
			Label: el.Type,
			BBox: models.BoundingBox{
				X:      float64(el.BoundingBox.X),
				Y:      float64(el.BoundingBox.Y),
				Width:  float64(el.BoundingBox.Width),
				Height: float64(el.BoundingBox.Height),
			},
			Confidence: el.Confidence,
		})
	}
	return detections, nil
}
