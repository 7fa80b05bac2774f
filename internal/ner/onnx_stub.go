//go:build !onnx
// +build !onnx

package ner

import (
	"errors"

	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
)

// NewONNXRecognizer is unavailable unless built with the 'onnx' tag.
func NewONNXRecognizer(config.NERConfig, *logger.Logger) (Recognizer, error) {
	return nil, errors.New("onnx backend not compiled in (build with -tags onnx)")
}
