//go:build onnx
// +build onnx

package ner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// ONNXRecognizer runs a BERT-style token-classification model in-process.
type ONNXRecognizer struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	tokenizer  *Tokenizer
	labels     []string
	logger     *logger.Logger
	mu         sync.Mutex
	ready      bool
}

// NewONNXRecognizer loads the model and vocabulary. Requires build tag 'onnx'.
func NewONNXRecognizer(cfg config.NERConfig, log *logger.Logger) (Recognizer, error) {
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx runtime init: %w", err)
		}
	}

	tokenizer, err := LoadTokenizer(cfg.VocabPath, cfg.MaxLength, false)
	if err != nil {
		return nil, err
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", cfg.ModelPath, err)
	}
	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("model %s reports no outputs", cfg.ModelPath)
	}

	inputNames := make([]string, 0, len(inputsInfo))
	for _, ii := range inputsInfo {
		inputNames = append(inputNames, ii.Name)
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx session for %s: %w", cfg.ModelPath, err)
	}

	log.Info("ONNX NER model ready",
		zap.String("model", cfg.ModelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("labels", len(cfg.Labels)),
	)

	return &ONNXRecognizer{
		session:    sess,
		inputNames: inputNames,
		tokenizer:  tokenizer,
		labels:     cfg.Labels,
		logger:     log,
		ready:      true,
	}, nil
}

func (r *ONNXRecognizer) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready && r.session != nil
}

// Close releases the session.
func (r *ONNXRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.session.Destroy()
		r.session = nil
	}
	r.ready = false
	return nil
}

func (r *ONNXRecognizer) Recognize(ctx context.Context, text string) (Entities, error) {
	if err := ctx.Err(); err != nil {
		return Entities{}, err
	}

	enc := r.tokenizer.Encode(text)
	if enc.Truncated {
		r.logger.Debug("NER input truncated", zap.Int("max_length", r.tokenizer.maxLength))
	}
	seqLen := int64(len(enc.InputIDs))
	shape := ort.NewShape(1, seqLen)

	idsTensor, err := ort.NewTensor(shape, enc.InputIDs)
	if err != nil {
		return Entities{}, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, enc.AttentionMask)
	if err != nil {
		return Entities{}, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor(shape, enc.TokenTypeIDs)
	if err != nil {
		return Entities{}, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	inputs := make([]ort.Value, 0, len(r.inputNames))
	for _, raw := range r.inputNames {
		name := strings.ToLower(raw)
		switch {
		case strings.Contains(name, "mask") || strings.Contains(name, "attention"):
			inputs = append(inputs, maskTensor)
		case strings.Contains(name, "token_type") || strings.Contains(name, "segment"):
			inputs = append(inputs, typeTensor)
		default:
			inputs = append(inputs, idsTensor)
		}
	}

	outputs := []ort.Value{nil}

	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return Entities{}, ErrNotReady
	}
	err = r.session.Run(inputs, outputs)
	r.mu.Unlock()
	if err != nil {
		return Entities{}, fmt.Errorf("onnx inference: %w", err)
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Entities{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	dims := logits.GetShape()
	if len(dims) != 3 || dims[1] != seqLen {
		return Entities{}, fmt.Errorf("unexpected output shape %v", dims)
	}

	labelIDs := argmax(logits.GetData(), int(dims[1]), int(dims[2]))
	return entitiesFromSpans(text, DecodeBIO(enc, labelIDs, r.labels)), nil
}
