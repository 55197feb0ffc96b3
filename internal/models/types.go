/**
 * Shared document types
 *
 * Handles passed between the audit pipeline and the capability adapters
 * (rasterizer, layout detector, OCR engines, image backends).
 */

package models

import (
	"path/filepath"
	"strings"
)

// BoundingBox represents coordinates of a region in page pixels or points
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area, zero for degenerate boxes
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// PageImage is a single rasterized page
type PageImage struct {
	PageNumber int    `json:"pageNumber"` // 1-indexed
	Width      int    `json:"width"`      // pixels
	Height     int    `json:"height"`     // pixels
	Format     string `json:"format"`     // "png", "jpeg", ...
	Data       []byte `json:"-"`
}

// Document is a handle on the file being audited
type Document struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	PageCount int    `json:"pageCount"`
}

// IsPDF reports whether the document is a PDF by MIME type or extension
func (d Document) IsPDF() bool {
	if d.MimeType == "application/pdf" {
		return true
	}
	name := d.Filename
	if name == "" {
		name = d.Path
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// IsImage reports whether the document is a single raster image
func (d Document) IsImage() bool {
	return strings.HasPrefix(d.MimeType, "image/")
}
