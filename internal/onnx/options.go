package onnx

import "github.com/auralith/kokorod/internal/config"

// GraphOptimization is the engine-neutral graph optimization level.
type GraphOptimization int

const (
	OptimizationDisabled GraphOptimization = iota
	OptimizationBasic
	OptimizationAll
)

// CPUProviderName is the execution provider this backend binds to.
const CPUProviderName = "CPUExecutionProvider"

// SessionOptions is the engine-neutral translation of the configured session
// knobs. The engine adapter maps it onto whatever its binding exposes.
type SessionOptions struct {
	Optimization      GraphOptimization
	IntraOpThreads    int
	InterOpThreads    int
	ParallelExecution bool
	MemoryPattern     bool
}

// ProviderOptions maps an execution provider name to its option set.
type ProviderOptions map[string]map[string]string

// BuildSessionOptions translates configuration into session options.
// Optimization levels other than "all" and "basic" deliberately fall through
// to disabled rather than erroring.
func BuildSessionOptions(cfg config.ONNXConfig) SessionOptions {
	opts := SessionOptions{
		IntraOpThreads: cfg.NumThreads,
		InterOpThreads: cfg.InterOpThreads,
		MemoryPattern:  cfg.MemoryPattern,
	}

	switch cfg.OptimizationLevel {
	case "all":
		opts.Optimization = OptimizationAll
	case "basic":
		opts.Optimization = OptimizationBasic
	default:
		opts.Optimization = OptimizationDisabled
	}

	if cfg.ExecutionMode == "parallel" {
		opts.ParallelExecution = true
	}

	return opts
}

// BuildProviderOptions builds the single-entry CPU provider option map.
func BuildProviderOptions(cfg config.ONNXConfig) ProviderOptions {
	return ProviderOptions{
		CPUProviderName: {
			"arena_extend_strategy": cfg.ArenaExtendStrategy,
			"cpu_memory_arena_cfg":  "cpu:0",
		},
	}
}
