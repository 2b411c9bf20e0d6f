package onnx

import (
	"errors"
	"strings"
)

var (
	// ErrModelNotFound means the model identifier did not resolve to a
	// readable artifact on disk.
	ErrModelNotFound = errors.New("model not found")

	// ErrModelLoad means the engine rejected the graph or session options.
	ErrModelLoad = errors.New("model load failed")

	// ErrNotLoaded means generation was attempted without a usable session.
	ErrNotLoaded = errors.New("model not loaded")

	// ErrNotReady means warmup was attempted outside the loaded state.
	ErrNotReady = errors.New("model not ready")

	// ErrWarmup wraps a failed warmup run.
	ErrWarmup = errors.New("model warmup failed")

	// ErrGeneration wraps any failure inside a generate call.
	ErrGeneration = errors.New("generation failed")
)

// isUnknownInputName reports whether the engine rejected a run specifically
// because a fed input name is not part of the loaded graph. Only this class of
// error triggers the token-input name fallback; everything else propagates.
func isUnknownInputName(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid feed input name") ||
		strings.Contains(msg, "invalid input name") ||
		strings.Contains(msg, "unknown input")
}
