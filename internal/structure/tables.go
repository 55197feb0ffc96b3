package structure

import "strings"

// TableRegion is a run of delimiter-separated lines that looks like a table
type TableRegion struct {
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Delimiter string `json:"delimiter"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
}

// tableDelimiters in priority order. Commas are left out: prose trips them.
var tableDelimiters = []string{"|", "\t"}

// detectTableRegions scans lines for consecutive rows sharing a delimiter and
// a column count within one of the first row's.
func detectTableRegions(lines []string, minRows int) []TableRegion {
	var regions []TableRegion

	i := 0
	for i < len(lines) {
		delim := detectDelimiter(lines[i])
		if delim == "" {
			i++
			continue
		}

		start := i
		expected := strings.Count(lines[i], delim)
		maxCols := expected
		i++
		for i < len(lines) && detectDelimiter(lines[i]) == delim {
			cols := strings.Count(lines[i], delim)
			if abs(cols-expected) > 1 {
				break
			}
			maxCols = max(maxCols, cols)
			i++
		}

		if rows := i - start; rows >= minRows {
			regions = append(regions, TableRegion{
				StartLine: start + 1,
				EndLine:   i,
				Delimiter: delim,
				Rows:      rows,
				Columns:   columnsFor(delim, lines[start], maxCols),
			})
		}
	}

	return regions
}

func detectDelimiter(line string) string {
	if strings.TrimSpace(line) == "" {
		return ""
	}
	for _, d := range tableDelimiters {
		if strings.Count(line, d) >= 2 {
			return d
		}
	}
	return ""
}

// columnsFor converts a delimiter count to a column count. Pipe tables in
// markdown style carry leading and trailing pipes.
func columnsFor(delim, first string, count int) int {
	t := strings.TrimSpace(first)
	if delim == "|" && strings.HasPrefix(t, "|") && strings.HasSuffix(t, "|") {
		return count - 1
	}
	return count + 1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
