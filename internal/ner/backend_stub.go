//go:build !onnx
// +build !onnx

package ner

import (
	"fmt"

	"github.com/raaihank/pii-scrubber/internal/logger"
)

// NewClassifier always fails when the 'onnx' build tag is not set.
func NewClassifier(log *logger.Logger, modelPath string, numLabels int) (Classifier, error) {
	return nil, fmt.Errorf("%w: built without onnx support", ErrModelUnavailable)
}
