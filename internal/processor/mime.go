package processor

import (
	"bytes"
	"path/filepath"
	"strings"
)

// detectMimeTypeFromMagicBytes detects the actual MIME type from file content.
// Sources such as Google Drive often send a generic "application/octet-stream".
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	case bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}):
		// DOCX, XLSX, PPTX and EPUB are all ZIP containers
		if bytes.Contains(data[:min(100, len(data))], []byte("mimetypeapplication/epub+zip")) {
			return "application/epub+zip"
		}
		return "application/zip"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}):
		return "application/msword"
	}

	return ""
}

var officeByExt = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
}

// resolveMimeType picks the MIME type used for the audit. Declared types win
// unless they are empty or generic; ZIP containers are refined by extension.
func resolveMimeType(declared, filename string, data []byte) string {
	generic := declared == "" || declared == "application/octet-stream"
	detected := detectMimeTypeFromMagicBytes(data)

	if detected == "application/zip" {
		if office, ok := officeByExt[strings.ToLower(filepath.Ext(filename))]; ok {
			detected = office
		}
	}

	if generic || (declared == "application/zip" && detected != "") {
		if detected != "" {
			return detected
		}
		if strings.EqualFold(filepath.Ext(filename), ".pdf") {
			return "application/pdf"
		}
	}
	return declared
}

// extensionFor returns a file extension for spooled temp files
func extensionFor(mimeType, filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return strings.ToLower(ext)
	}
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/tiff":
		return ".tiff"
	}
	return ".bin"
}
