package ner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"github.com/raaihank/pii-scrubber/internal/privacy"
	"go.uber.org/zap"
)

// ErrModelUnavailable is returned when no person-name model can be loaded
var ErrModelUnavailable = errors.New("ner model unavailable")

// Recognizer finds person names with a token-classification model
type Recognizer struct {
	tokenizer  *Tokenizer
	classifier Classifier
	labels     []string
	maxLength  int
	name       string
	logger     *logger.Logger
}

// New loads the vocabulary and model named by cfg. Any failure wraps
// ErrModelUnavailable so callers can fall back to privacy.NopRecognizer.
func New(cfg config.NERConfig, log *logger.Logger) (*Recognizer, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: disabled by configuration", ErrModelUnavailable)
	}
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("%w: no labels configured", ErrModelUnavailable)
	}

	vocab, err := LoadVocab(cfg.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	tokenizer, err := NewTokenizer(vocab, cfg.LowerCase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	classifier, err := NewClassifier(log, cfg.ModelPath, len(cfg.Labels))
	if err != nil {
		return nil, err
	}

	r := newRecognizer(tokenizer, classifier, cfg.Labels, cfg.MaxLength, log)
	r.name = "onnx:" + filepath.Base(cfg.ModelPath)
	return r, nil
}

func newRecognizer(tokenizer *Tokenizer, classifier Classifier, labels []string, maxLength int, log *logger.Logger) *Recognizer {
	return &Recognizer{
		tokenizer:  tokenizer,
		classifier: classifier,
		labels:     labels,
		maxLength:  maxLength,
		name:       "onnx",
		logger:     log.WithComponent("ner"),
	}
}

// Name identifies the recognizer in logs and /info
func (r *Recognizer) Name() string {
	return r.name
}

// Close releases the model backend
func (r *Recognizer) Close() error {
	return r.classifier.Close()
}

// FindPersons implements privacy.PersonRecognizer. Inference failures are
// logged and yield no spans.
func (r *Recognizer) FindPersons(text string) []privacy.Span {
	spans, err := r.FindPersonsContext(context.Background(), text)
	if err != nil {
		r.logger.Warn("Person recognition failed", zap.Error(err))
		return nil
	}
	return spans
}

// FindPersonsContext tokenizes text into windows of at most maxLength
// positions ([CLS] and [SEP] included), classifies each window and decodes
// the concatenated labels. Entities crossing a window edge stay whole.
func (r *Recognizer) FindPersonsContext(ctx context.Context, text string) ([]privacy.Span, error) {
	pieces := r.tokenizer.Tokenize(text)
	if len(pieces) == 0 {
		return nil, nil
	}

	window := r.maxLength - 2
	labels := make([]string, 0, len(pieces))
	for begin := 0; begin < len(pieces); begin += window {
		end := begin + window
		if end > len(pieces) {
			end = len(pieces)
		}

		ids, mask, types := r.encode(pieces[begin:end])
		predicted, err := r.classifier.Classify(ctx, ids, mask, types)
		if err != nil {
			return nil, err
		}
		if len(predicted) != len(ids) {
			return nil, fmt.Errorf("classifier returned %d labels for %d positions", len(predicted), len(ids))
		}

		// drop [CLS] and [SEP]
		for _, idx := range predicted[1 : len(predicted)-1] {
			if idx < 0 || idx >= len(r.labels) {
				labels = append(labels, "O")
				continue
			}
			labels = append(labels, r.labels[idx])
		}
	}

	return DecodeBIO(labels, pieces, []rune(text)), nil
}

func (r *Recognizer) encode(pieces []Piece) (ids, mask, types []int64) {
	n := len(pieces) + 2
	ids = make([]int64, 0, n)
	mask = make([]int64, n)
	types = make([]int64, n)

	ids = append(ids, int64(r.tokenizer.clsID))
	for _, p := range pieces {
		ids = append(ids, int64(p.ID))
	}
	ids = append(ids, int64(r.tokenizer.sepID))
	for i := range mask {
		mask[i] = 1
	}
	return ids, mask, types
}

// argmax picks the best label per position from row-major logits
func argmax(logits []float32, positions, numLabels int) []int {
	out := make([]int, positions)
	for p := 0; p < positions; p++ {
		row := logits[p*numLabels : (p+1)*numLabels]
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[p] = best
	}
	return out
}
