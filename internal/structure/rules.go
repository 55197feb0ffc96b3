package structure

import (
	"regexp"
	"strings"
	"unicode"
)

// PatternTag identifies which rule classified a line
type PatternTag string

const (
	PatternMarkdown        PatternTag = "markdown"
	PatternNumberedSection PatternTag = "numbered_section"
	PatternAllCaps         PatternTag = "all_caps"
	PatternTitleCase       PatternTag = "title_case"
	PatternBullet          PatternTag = "bullet"
	PatternNumberedList    PatternTag = "numbered_list"
	PatternLetteredList    PatternTag = "lettered_list"
	PatternRomanList       PatternTag = "roman_list"
)

var (
	reMarkdown       = regexp.MustCompile(`^(#{1,6})\s+\S`)
	reMultiSection   = regexp.MustCompile(`^\d+(?:\.\d+)+\.?\s+(\S.*)$`)
	reSingleSection  = regexp.MustCompile(`^\d+\.?\s+(\S.*)$`)
	reBullet         = regexp.MustCompile(`^[•·▪▫◦‣⁃–\-*+]\s+\S`)
	reNumberedList   = regexp.MustCompile(`^(?:\d+[.)]|\(\d+\))\s+\S`)
	reLetteredList   = regexp.MustCompile(`^(?:[a-zA-Z][.)]|\([a-zA-Z]\))\s+\S`)
	reRomanList      = regexp.MustCompile(`^\(?(?i:(x{0,3})(ix|iv|v?i{0,3}))[.)]\s+\S`)
	reLeadingMarkers = regexp.MustCompile(`^[\s]*`)
)

// titleJoiners may stay lowercase inside a title-cased line
var titleJoiners = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "by": true,
	"for": true, "in": true, "of": true, "on": true, "or": true, "the": true,
	"to": true, "with": true, "vs": true,
}

// rule is one (predicate, tag) entry of the classification table
type rule struct {
	kind  ElementKind
	tag   PatternTag
	match func(line string, cfg Config) bool
}

// rules is evaluated top to bottom; the first match wins. Heading and list
// families each keep their own priority order.
var rules = []rule{
	{KindHeading, PatternMarkdown, func(l string, _ Config) bool { return reMarkdown.MatchString(l) }},
	{KindHeading, PatternNumberedSection, isNumberedSection},
	{KindList, PatternBullet, func(l string, _ Config) bool { return reBullet.MatchString(l) }},
	{KindList, PatternNumberedList, func(l string, _ Config) bool { return reNumberedList.MatchString(l) }},
	{KindList, PatternLetteredList, func(l string, _ Config) bool { return reLetteredList.MatchString(l) }},
	{KindList, PatternRomanList, isRomanItem},
	{KindHeading, PatternAllCaps, isAllCaps},
	{KindHeading, PatternTitleCase, isTitleCase},
}

// classify returns the first matching rule for a trimmed line
func classify(line string, cfg Config) (ElementKind, PatternTag) {
	for _, r := range rules {
		if r.match(line, cfg) {
			return r.kind, r.tag
		}
	}
	return KindParagraph, ""
}

func isNumberedSection(line string, cfg Config) bool {
	if len(line) > cfg.MaxTitleLength {
		return false
	}
	m := reMultiSection.FindStringSubmatch(line)
	if m == nil {
		m = reSingleSection.FindStringSubmatch(line)
	}
	if m == nil {
		return false
	}
	rest := m[1]
	return !endsSentence(rest) && (isAllCaps(rest, cfg) || titleWords(rest) >= 1)
}

func isRomanItem(line string, _ Config) bool {
	if !reRomanList.MatchString(line) {
		return false
	}
	// the numeral group must not be empty: ". foo" is not a roman item
	first := strings.TrimPrefix(line, "(")
	return first != "" && strings.ContainsRune("ivxIVX", rune(first[0]))
}

func isAllCaps(line string, cfg Config) bool {
	var letters, lower int
	for _, r := range line {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsLower(r) {
			lower++
		}
	}
	if letters < cfg.MinCapsLetters {
		return false
	}
	return float64(lower)/float64(letters) <= cfg.MaxCapsLowerRatio
}

func isTitleCase(line string, cfg Config) bool {
	if len(line) > cfg.MaxTitleLength || endsSentence(line) {
		return false
	}
	return titleWords(line) >= cfg.MinTitleWords
}

// titleWords counts capitalised words, or returns -1 when a non-joiner word
// starts lowercase.
func titleWords(s string) int {
	capitalised := 0
	for _, word := range strings.Fields(s) {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if word == "" {
			continue
		}
		first := []rune(word)[0]
		switch {
		case unicode.IsUpper(first):
			capitalised++
		case unicode.IsLower(first):
			if !titleJoiners[strings.ToLower(word)] {
				return -1
			}
		}
	}
	return capitalised
}

func endsSentence(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// indentLevel converts leading whitespace to a 1-based nesting level
func indentLevel(raw string) int {
	lead := reLeadingMarkers.FindString(raw)
	width := 0
	for _, r := range lead {
		if r == '\t' {
			width += 4
		} else {
			width++
		}
	}
	return width/2 + 1
}
