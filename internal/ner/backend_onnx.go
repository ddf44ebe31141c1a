//go:build onnx
// +build onnx

package ner

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/raaihank/pii-scrubber/internal/logger"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxClassifier implements Classifier using ONNX Runtime (via yalue/onnxruntime_go).
type OnnxClassifier struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	numLabels  int
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewClassifier initializes the ONNX Runtime backend. Requires build tag 'onnx'.
func NewClassifier(log *logger.Logger, modelPath string, numLabels int) (Classifier, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	// Allow user to provide shared library path via environment variable.
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: onnx runtime init failed: %v", ErrModelUnavailable, err)
		}
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to inspect model: %v", ErrModelUnavailable, err)
	}

	preferredInputs := []string{"input_ids", "attention_mask", "token_type_ids"}
	available := map[string]string{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = ii.Name
	}
	var inputNames []string
	for _, name := range preferredInputs {
		if declared, ok := available[name]; ok {
			inputNames = append(inputNames, declared)
		}
	}
	if len(inputNames) == 0 && len(inputsInfo) > 0 {
		for _, ii := range inputsInfo {
			inputNames = append(inputNames, ii.Name)
		}
		sort.Strings(inputNames)
	}

	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("%w: model reports no outputs", ErrModelUnavailable)
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: session creation failed: %v", ErrModelUnavailable, err)
	}

	log.Info("ONNX Runtime classifier ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("labels", numLabels),
	)
	return &OnnxClassifier{
		session:    sess,
		inputNames: inputNames,
		outputName: outputName,
		numLabels:  numLabels,
		logger:     log,
	}, nil
}

// Close releases session and environment resources.
func (c *OnnxClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	return ort.DestroyEnvironment()
}

// Classify runs inference for one sequence and returns the argmax label per position.
func (c *OnnxClassifier) Classify(ctx context.Context, inputIDs, attentionMask, tokenTypeIDs []int64) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, fmt.Errorf("onnx classifier closed")
	}

	seqLen := len(inputIDs)
	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor[int64](shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor[int64](shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	inputs := make([]ort.Value, 0, len(c.inputNames))
	for _, rawName := range c.inputNames {
		name := strings.ToLower(rawName)
		switch {
		case strings.Contains(name, "mask") || strings.Contains(name, "attention"):
			inputs = append(inputs, maskTensor)
		case strings.Contains(name, "token_type") || strings.Contains(name, "segment"):
			inputs = append(inputs, typeTensor)
		default:
			inputs = append(inputs, idsTensor)
		}
	}

	// One output; let ORT allocate it
	outputs := make([]ort.Value, 1)
	if err := c.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	data := logits.GetData()
	outShape := logits.GetShape()
	if len(outShape) != 3 || int(outShape[1]) != seqLen {
		return nil, fmt.Errorf("unexpected logits shape %v for sequence length %d", outShape, seqLen)
	}
	numLabels := int(outShape[2])
	if numLabels != c.numLabels {
		return nil, fmt.Errorf("model emits %d labels, configured %d", numLabels, c.numLabels)
	}

	return argmax(data, seqLen, numLabels), nil
}
