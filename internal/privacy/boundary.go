package privacy

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// isWordRune reports whether r counts as a word character. Unlike RE2's \b,
// letters and digits outside ASCII count too.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// wholeWordIndex returns the byte ranges of non-overlapping matches of re
// in text that have no word character immediately before or after them.
// A rejected candidate only advances the search by one rune, so a later
// overlapping candidate can still match.
func wholeWordIndex(re *regexp.Regexp, text string) [][]int {
	var locs [][]int
	for pos := 0; pos < len(text); {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && standsAlone(text, start, end) {
			locs = append(locs, []int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			break
		}
		pos = start + size
	}
	return locs
}

func standsAlone(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

// replaceIndex substitutes replacement for every byte range in locs, which
// must be ascending and non-overlapping
func replaceIndex(text string, locs [][]int, replacement string) string {
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, loc := range locs {
		b.WriteString(text[last:loc[0]])
		b.WriteString(replacement)
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
