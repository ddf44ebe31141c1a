package ner

import (
	"context"
)

// Classifier is a pluggable token-classification backend.
// Implementations may use ONNX Runtime or other engines.
type Classifier interface {
	// Classify runs one inference over a single sequence and returns the
	// predicted label index for every position.
	Classify(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([]int, error)
	// Close releases any native resources.
	Close() error
}

// NewClassifier creates a backend if supported by the current build.
// Implementations live in build-tagged files: backend_onnx.go and
// backend_stub.go. The default build has no CGO dependency.
