package privacy

import (
	"errors"
	"fmt"
	"strings"
)

// Category identifies one kind of personally identifiable information
type Category string

// Supported categories, in evaluation order
const (
	CategoryName       Category = "NAME"
	CategoryLocation   Category = "LOCATION"
	CategoryEmail      Category = "EMAIL"
	CategoryIPAddress  Category = "IP_ADDRESS"
	CategoryCardNumber Category = "CARD_NUMBER"
	CategoryPhone      Category = "PHONE"
	CategoryDate       Category = "DATE"
	CategoryTime       Category = "TIME"
	CategoryURL        Category = "URL"
)

var categoryOrder = []Category{
	CategoryName,
	CategoryLocation,
	CategoryEmail,
	CategoryIPAddress,
	CategoryCardNumber,
	CategoryPhone,
	CategoryDate,
	CategoryTime,
	CategoryURL,
}

// Categories returns every category in evaluation order
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// Placeholder returns the token substituted for the category in placeholder mode
func (c Category) Placeholder() string {
	return "[" + string(c) + "]"
}

// Mode selects what replaces a redacted span
type Mode string

const (
	// ModePlaceholder replaces a span with its category token, e.g. [EMAIL]
	ModePlaceholder Mode = "placeholder"
	// ModeEmpty removes the span
	ModeEmpty Mode = "empty"
)

// ErrInvalidMode is returned by ParseMode for unknown mode names
var ErrInvalidMode = errors.New("invalid redaction mode")

// ParseMode parses a mode name. The empty string selects ModePlaceholder.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePlaceholder:
		return ModePlaceholder, nil
	case ModeEmpty:
		return ModeEmpty, nil
	default:
		return "", fmt.Errorf("%w: %q (must be placeholder or empty)", ErrInvalidMode, s)
	}
}

// Replacement returns the string substituted for a category under this mode
func (m Mode) Replacement(c Category) string {
	if m == ModeEmpty {
		return ""
	}
	return c.Placeholder()
}

// Match is one detected span. Start and End are character offsets (End
// exclusive) into the text the match was found in.
type Match struct {
	Category Category `json:"category"`
	Text     string   `json:"text"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
}

// Span is a person mention reported by a PersonRecognizer, in character offsets
type Span struct {
	Text  string
	Start int
	End   int
}

// Result contains the outcome of running both pipelines over one text
type Result struct {
	Original string           `json:"-"` // Never serialize original text
	Redacted string           `json:"redacted"`
	Entities []Match          `json:"entities"`
	Counts   map[Category]int `json:"counts"`
}

// TotalEntities returns the number of enumerated entities
func (r Result) TotalEntities() int {
	return len(r.Entities)
}
