package privacy

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Detector finds every non-overlapping match of one category in a text
type Detector interface {
	Category() Category
	// FindAll returns matches ordered by start offset.
	FindAll(text string) []Match
	// Replace substitutes every match in text with replacement.
	Replace(text, replacement string) string
}

// PersonRecognizer reports person-name mentions in a text
type PersonRecognizer interface {
	FindPersons(text string) []Span
}

// NopRecognizer never finds anyone. It stands in when no model is available.
type NopRecognizer struct{}

// FindPersons implements PersonRecognizer
func (NopRecognizer) FindPersons(string) []Span { return nil }

// Name implements the optional recognizer naming used in logs
func (NopRecognizer) Name() string { return "none" }

// RecognizerName returns a short description of a recognizer for logs and /info
func RecognizerName(r PersonRecognizer) string {
	if named, ok := r.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "custom"
}

// PatternDetector matches a single precompiled regular expression
type PatternDetector struct {
	category Category
	pattern  *regexp.Regexp
}

// NewPatternDetector creates a detector backed by pattern
func NewPatternDetector(category Category, pattern *regexp.Regexp) *PatternDetector {
	return &PatternDetector{category: category, pattern: pattern}
}

// Category implements Detector
func (d *PatternDetector) Category() Category { return d.category }

// FindAll implements Detector
func (d *PatternDetector) FindAll(text string) []Match {
	locs := d.pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	idx := newRuneIndex(text)
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, Match{
			Category: d.category,
			Text:     text[loc[0]:loc[1]],
			Start:    idx.offset(loc[0]),
			End:      idx.offset(loc[1]),
		})
	}
	return matches
}

// Replace implements Detector
func (d *PatternDetector) Replace(text, replacement string) string {
	return d.pattern.ReplaceAllLiteralString(text, replacement)
}

// gazetteerEntry holds the two compiled forms of one known place name
type gazetteerEntry struct {
	word    *regexp.Regexp // case-insensitive; whole-word check applied by wholeWordIndex
	labeled *regexp.Regexp // case-sensitive, right after "Location:" and one space
}

// GazetteerDetector matches a closed list of names, whole word and
// case-insensitively.
type GazetteerDetector struct {
	category Category
	entries  []gazetteerEntry
}

// NewGazetteerDetector compiles the vocabulary once
func NewGazetteerDetector(category Category, vocabulary []string) *GazetteerDetector {
	entries := make([]gazetteerEntry, 0, len(vocabulary))
	for _, term := range vocabulary {
		quoted := regexp.QuoteMeta(term)
		entries = append(entries, gazetteerEntry{
			word:    regexp.MustCompile(`(?i)` + quoted),
			labeled: regexp.MustCompile(`(Location:\s)` + quoted),
		})
	}
	return &GazetteerDetector{category: category, entries: entries}
}

// Category implements Detector
func (d *GazetteerDetector) Category() Category { return d.category }

// FindAll implements Detector. Only the whole-word pass contributes; every
// labeled mention is also a whole-word mention.
func (d *GazetteerDetector) FindAll(text string) []Match {
	var matches []Match
	idx := newRuneIndex(text)
	for _, entry := range d.entries {
		for _, loc := range wholeWordIndex(entry.word, text) {
			matches = append(matches, Match{
				Category: d.category,
				Text:     text[loc[0]:loc[1]],
				Start:    idx.offset(loc[0]),
				End:      idx.offset(loc[1]),
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
	return matches
}

// Replace implements Detector. Entries are applied one after another; for
// each, the labeled pass runs before the whole-word pass. The labeled pass is
// a known redundancy: the whole-word pass already covers "Location: X". It
// only differs when X runs into further letters ("Location: Londoner").
func (d *GazetteerDetector) Replace(text, replacement string) string {
	escaped := strings.ReplaceAll(replacement, "$", "$$")
	for _, entry := range d.entries {
		text = entry.labeled.ReplaceAllString(text, "${1}"+escaped)
		text = replaceIndex(text, wholeWordIndex(entry.word, text), replacement)
	}
	return text
}

// PersonDetector delegates to a PersonRecognizer
type PersonDetector struct {
	recognizer PersonRecognizer
}

// NewPersonDetector wraps recognizer; nil means NopRecognizer
func NewPersonDetector(recognizer PersonRecognizer) *PersonDetector {
	if recognizer == nil {
		recognizer = NopRecognizer{}
	}
	return &PersonDetector{recognizer: recognizer}
}

// Category implements Detector
func (d *PersonDetector) Category() Category { return CategoryName }

// Recognizer returns the wrapped recognizer
func (d *PersonDetector) Recognizer() PersonRecognizer { return d.recognizer }

// FindAll implements Detector
func (d *PersonDetector) FindAll(text string) []Match {
	spans := d.recognizer.FindPersons(text)
	if len(spans) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(spans))
	for _, span := range spans {
		matches = append(matches, Match{
			Category: CategoryName,
			Text:     span.Text,
			Start:    span.Start,
			End:      span.End,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })
	return matches
}

// Replace implements Detector. Distinct names are substituted longest first so
// that a name contained in a longer one cannot split it.
func (d *PersonDetector) Replace(text, replacement string) string {
	names := d.distinctNames(text)
	for _, name := range names {
		re := regexp.MustCompile(regexp.QuoteMeta(name))
		text = replaceIndex(text, wholeWordIndex(re, text), replacement)
	}
	return text
}

func (d *PersonDetector) distinctNames(text string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, span := range d.recognizer.FindPersons(text) {
		name := strings.TrimSpace(span.Text)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(names[i]), utf8.RuneCountInString(names[j])
		if li != lj {
			return li > lj
		}
		return names[i] < names[j]
	})
	return names
}

// runeIndex converts ascending byte offsets into character offsets without
// rescanning the text from the start each time.
type runeIndex struct {
	text     string
	lastByte int
	lastRune int
}

func newRuneIndex(text string) *runeIndex {
	return &runeIndex{text: text}
}

func (r *runeIndex) offset(b int) int {
	if b < r.lastByte {
		r.lastByte, r.lastRune = 0, 0
	}
	r.lastRune += utf8.RuneCountInString(r.text[r.lastByte:b])
	r.lastByte = b
	return r.lastRune
}
