package ner

import (
	"strings"

	"github.com/raaihank/pii-scrubber/internal/privacy"
)

type tagKind int

const (
	tagOutside tagKind = iota
	tagBegin
	tagInside
)

// parseTag reports whether label denotes a person and its BIO position.
// Bare "PER"/"PERSON" labels count as inside tags.
func parseTag(label string) (tagKind, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	kind := tagInside
	switch {
	case strings.HasPrefix(label, "B-"):
		kind = tagBegin
		label = label[2:]
	case strings.HasPrefix(label, "I-"):
		label = label[2:]
	}
	if label == "PER" || label == "PERSON" {
		return kind, true
	}
	return tagOutside, false
}

// DecodeBIO merges person-tagged pieces into spans. labels[i] is the label of
// pieces[i]; text is the source the pieces were cut from. A "##" piece
// always follows the decision made for the start of its word.
func DecodeBIO(labels []string, pieces []Piece, text []rune) []privacy.Span {
	var spans []privacy.Span
	open := false
	var start, end int

	closeSpan := func() {
		if open {
			spans = append(spans, privacy.Span{Text: string(text[start:end]), Start: start, End: end})
			open = false
		}
	}

	for i, p := range pieces {
		if i >= len(labels) {
			break
		}
		if p.Continuation {
			if open {
				end = p.End
			}
			continue
		}

		kind, person := parseTag(labels[i])
		switch {
		case !person:
			closeSpan()
		case kind == tagBegin || !open:
			closeSpan()
			open = true
			start, end = p.Start, p.End
		default:
			end = p.End
		}
	}
	closeSpan()
	return spans
}
