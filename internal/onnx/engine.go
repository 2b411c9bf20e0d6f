package onnx

import "context"

// Value is an engine-neutral dense tensor. Exactly one of Floats or Ints is
// populated; Shape follows the engine's row-major convention.
type Value struct {
	Shape  []int64
	Floats []float32
	Ints   []int64
}

// NamedValue binds a tensor to the graph input name it is fed under.
type NamedValue struct {
	Name  string
	Value Value
}

// Session is a loaded, ready-to-run computation graph. Outputs are returned
// in the graph's declared order.
type Session interface {
	Run(ctx context.Context, inputs []NamedValue) ([]Value, error)
	Close() error
}

// Engine creates sessions bound to the CPU execution provider. The real
// implementation wraps the onnxruntime shared library; tests substitute fakes.
type Engine interface {
	NewSession(ctx context.Context, modelPath string, opts SessionOptions, provider ProviderOptions) (Session, error)
}

// Resolver maps a model identifier to a verified on-disk path.
type Resolver interface {
	ModelPath(ctx context.Context, name string) (string, error)
}
