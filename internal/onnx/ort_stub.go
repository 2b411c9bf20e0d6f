//go:build !cgo

package onnx

import (
	"errors"
	"log/slog"
)

// NewRuntimeEngine requires cgo for the onnxruntime bindings.
func NewRuntimeEngine(libraryPath string, log *slog.Logger) (Engine, error) {
	return nil, errors.New("onnx runtime engine requires a cgo-enabled build")
}
