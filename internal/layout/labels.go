package layout

import "strings"

// NormalizeLabel maps detector labels to layout kinds. It accepts both the
// PubLayNet label set (Text, Title, List, Table, Figure) and MageAgent element
// types; anything unrecognised is treated as a text block.
func NormalizeLabel(label string) Kind {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "title", "heading", "header", "section_header", "section-header", "subtitle":
		return KindTitle
	case "list", "list_item", "list-item", "listitem":
		return KindList
	case "table", "table_cell", "tabular":
		return KindTable
	case "figure", "image", "picture", "chart", "diagram", "photo":
		return KindFigure
	default:
		return KindTextBlock
	}
}
