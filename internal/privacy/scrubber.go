package privacy

import (
	"fmt"

	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Scrubber handles PII redaction and entity enumeration
type Scrubber struct {
	catalog     *Catalog
	defaultMode Mode
	logger      *logger.Logger
}

// New creates a new scrubber instance. persons may be nil, in which case no
// names are detected.
func New(cfg config.PrivacyConfig, log *logger.Logger, persons PersonRecognizer) (*Scrubber, error) {
	mode, err := ParseMode(cfg.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("failed to configure default mode: %w", err)
	}

	catalog := NewCatalog(persons)
	s := &Scrubber{
		catalog:     catalog,
		defaultMode: mode,
		logger:      log,
	}

	log.Info("Privacy scrubber initialized",
		zap.Int("categories", len(catalog.detectors)),
		zap.Int("known_locations", len(knownLocations)),
		zap.String("person_recognizer", RecognizerName(catalog.Recognizer())),
		zap.String("default_mode", string(mode)),
	)

	return s, nil
}

// DefaultMode returns the mode used when a caller does not choose one
func (s *Scrubber) DefaultMode() Mode {
	return s.defaultMode
}

// Categories returns every category in evaluation order
func (s *Scrubber) Categories() []Category {
	return Categories()
}

// RecognizerName describes the person recognizer in use
func (s *Scrubber) RecognizerName() string {
	return RecognizerName(s.catalog.Recognizer())
}

// Redact returns text with every detected span replaced according to mode
func (s *Scrubber) Redact(text string, mode Mode) string {
	return s.catalog.Redact(text, mode)
}

// Entities returns the inventory of detected spans in text
func (s *Scrubber) Entities(text string) []Match {
	return s.catalog.Entities(text)
}

// Process runs both pipelines over text
func (s *Scrubber) Process(text string, mode Mode) Result {
	redacted := s.catalog.Redact(text, mode)
	entities := s.catalog.Entities(text)
	counts := CountByCategory(entities)

	if ce := s.logger.Check(zapcore.DebugLevel, "PII detected"); ce != nil && len(entities) > 0 {
		fields := make([]zap.Field, 0, len(counts)+2)
		fields = append(fields, zap.String("mode", string(mode)), zap.Int("total", len(entities)))
		for _, c := range categoryOrder {
			if n := counts[c]; n > 0 {
				fields = append(fields, zap.Int(string(c), n))
			}
		}
		ce.Write(fields...)
	}

	return Result{
		Original: text,
		Redacted: redacted,
		Entities: entities,
		Counts:   counts,
	}
}

// CountByCategory tallies matches per category
func CountByCategory(matches []Match) map[Category]int {
	counts := make(map[Category]int)
	for _, m := range matches {
		counts[m.Category]++
	}
	return counts
}
