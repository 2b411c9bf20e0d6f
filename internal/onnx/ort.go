//go:build cgo

package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// NewRuntimeEngine returns an Engine backed by the onnxruntime shared
// library. libraryPath may be empty when the library is on the default search
// path. The environment may already be initialized by another component;
// that is tolerated.
func NewRuntimeEngine(libraryPath string, log *slog.Logger) (Engine, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		if !strings.Contains(err.Error(), "already initialized") {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	return &runtimeEngine{log: log.With(slog.String("component", "onnx-engine"))}, nil
}

type runtimeEngine struct {
	log *slog.Logger
}

func (e *runtimeEngine) NewSession(ctx context.Context, modelPath string, opts SessionOptions, provider ProviderOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	so, err := translateSessionOptions(opts, provider)
	if err != nil {
		return nil, err
	}

	// The binding only exposes the arena enable toggle for the CPU
	// provider; the remaining provider options are informational here.
	if cpu, ok := provider[CPUProviderName]; ok {
		e.log.Debug("cpu provider options",
			slog.String("arena_extend_strategy", cpu["arena_extend_strategy"]),
			slog.String("cpu_memory_arena_cfg", cpu["cpu_memory_arena_cfg"]))
	}

	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		so.Destroy()
		return nil, fmt.Errorf("inspect model io: %w", err)
	}
	outputNames := make([]string, len(outputs))
	for i, out := range outputs {
		outputNames[i] = out.Name
	}

	return &runtimeSession{
		opts:        so,
		outputNames: outputNames,
		cache: newSessionCache(
			func(names []string) (*ort.DynamicAdvancedSession, error) {
				return ort.NewDynamicAdvancedSession(modelPath, names, outputNames, so)
			},
			func(s *ort.DynamicAdvancedSession) { s.Destroy() },
		),
	}, nil
}

func translateSessionOptions(opts SessionOptions, provider ProviderOptions) (*ort.SessionOptions, error) {
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}

	level := ort.GraphOptimizationLevelDisableAll
	switch opts.Optimization {
	case OptimizationAll:
		level = ort.GraphOptimizationLevelEnableAll
	case OptimizationBasic:
		level = ort.GraphOptimizationLevelEnableBasic
	}
	if err := so.SetGraphOptimizationLevel(level); err != nil {
		so.Destroy()
		return nil, fmt.Errorf("set optimization level: %w", err)
	}

	if opts.IntraOpThreads > 0 {
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	if opts.InterOpThreads > 0 {
		if err := so.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("set inter-op threads: %w", err)
		}
	}

	mode := ort.ExecutionModeSequential
	if opts.ParallelExecution {
		mode = ort.ExecutionModeParallel
	}
	if err := so.SetExecutionMode(mode); err != nil {
		so.Destroy()
		return nil, fmt.Errorf("set execution mode: %w", err)
	}

	if err := so.SetMemPattern(opts.MemoryPattern); err != nil {
		so.Destroy()
		return nil, fmt.Errorf("set memory pattern: %w", err)
	}
	if _, ok := provider[CPUProviderName]; ok {
		if err := so.SetCpuMemArena(true); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("set cpu memory arena: %w", err)
		}
	}

	return so, nil
}

// runtimeSession executes runs against one model file. Dynamic sessions are
// created lazily per input-name set so the backend can probe candidate token
// input names without reloading the graph.
type runtimeSession struct {
	mu          sync.Mutex
	opts        *ort.SessionOptions
	outputNames []string
	cache       *sessionCache[*ort.DynamicAdvancedSession]
	closed      bool
}

func (s *runtimeSession) Run(ctx context.Context, inputs []NamedValue) ([]Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session closed")
	}

	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	sess, key, err := s.cache.get(names)
	if err != nil {
		return nil, err
	}

	tensors := make([]ort.Value, 0, len(inputs))
	defer func() {
		for _, t := range tensors {
			t.Destroy()
		}
	}()
	for _, in := range inputs {
		t, err := newTensor(in.Value)
		if err != nil {
			return nil, fmt.Errorf("build tensor %q: %w", in.Name, err)
		}
		tensors = append(tensors, t)
	}

	// nil entries are allocated by the runtime and owned by us afterwards.
	outputs := make([]ort.Value, len(s.outputNames))
	if err := sess.Run(tensors, outputs); err != nil {
		// A rejected input name means this entry can never serve a run.
		if isUnknownInputName(err) {
			s.cache.evict(key)
		}
		return nil, err
	}

	results := make([]Value, 0, len(outputs))
	for _, out := range outputs {
		if out == nil {
			continue
		}
		results = append(results, fromTensor(out))
		out.Destroy()
	}
	return results, nil
}

func (s *runtimeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.clear()
	if s.opts != nil {
		s.opts.Destroy()
		s.opts = nil
	}
	return nil
}

func newTensor(v Value) (ort.Value, error) {
	shape := ort.NewShape(v.Shape...)
	if v.Ints != nil {
		return ort.NewTensor(shape, v.Ints)
	}
	return ort.NewTensor(shape, v.Floats)
}

func fromTensor(v ort.Value) Value {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		data := t.GetData()
		out := make([]float32, len(data))
		copy(out, data)
		return Value{Shape: t.GetShape(), Floats: out}
	case *ort.Tensor[int64]:
		data := t.GetData()
		out := make([]int64, len(data))
		copy(out, data)
		return Value{Shape: t.GetShape(), Ints: out}
	default:
		return Value{}
	}
}
