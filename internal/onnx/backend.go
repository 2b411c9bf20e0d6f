package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/auralith/kokorod/internal/config"
)

// State is the backend lifecycle state. It is tracked explicitly and never
// inferred from session presence.
type State int

const (
	StateUninitialized State = iota
	StateLoaded
	StateWarmedUp
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	case StateWarmedUp:
		return "warmed_up"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Model graphs in the wild export the token input under either name. The
// backend tries them in order and falls back exactly once on an
// unknown-input-name rejection.
var tokenInputNames = []string{"tokens", "input_ids"}

const (
	styleInputName = "style"
	speedInputName = "speed"

	// sentinelToken frames the token sequence on both sides before it is
	// fed to the graph.
	sentinelToken int64 = 0
)

// StyleSource supplies per-position style vectors, indexed by sequence
// length. Row must reject out-of-range indexes.
type StyleSource interface {
	Row(index int) ([]float32, error)
}

// Backend owns at most one live engine session and drives the
// load/warmup/generate/unload lifecycle against it. All public methods are
// safe for concurrent use; calls are serialized internally.
type Backend struct {
	cfg        config.ONNXConfig
	engine     Engine
	resolver   Resolver
	log        *slog.Logger
	styleWidth int
	cleanups   []func()

	mu      sync.Mutex
	session Session
	state   State
}

// Option configures a Backend.
type Option func(*Backend)

// WithStyleWidth sets the style vector width used for warmup runs.
func WithStyleWidth(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.styleWidth = n
		}
	}
}

// WithCleanupHook registers a hook invoked on every unload, after the session
// is released. Used for capability-scoped cleanup such as device memory
// caches; hooks must be cheap no-ops when there is nothing to release.
func WithCleanupHook(fn func()) Option {
	return func(b *Backend) {
		b.cleanups = append(b.cleanups, fn)
	}
}

func NewBackend(cfg config.ONNXConfig, engine Engine, resolver Resolver, log *slog.Logger, opts ...Option) *Backend {
	b := &Backend{
		cfg:        cfg,
		engine:     engine,
		resolver:   resolver,
		log:        log.With(slog.String("component", "onnx-backend")),
		styleWidth: 256,
		state:      StateUninitialized,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LoadModel resolves name, builds session and provider options from the
// configuration snapshot, and creates the engine session. A backend that
// already owns a session refuses to reload; unload first.
func (b *Backend) LoadModel(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session != nil {
		return fmt.Errorf("%w: a session is already loaded, unload first", ErrModelLoad)
	}

	path, err := b.resolver.ModelPath(ctx, name)
	if err != nil {
		b.state = StateFailed
		return fmt.Errorf("%w: %w", ErrModelNotFound, err)
	}

	b.log.Info("loading model", slog.String("path", path))

	session, err := b.engine.NewSession(ctx, path, BuildSessionOptions(b.cfg), BuildProviderOptions(b.cfg))
	if err != nil {
		b.state = StateFailed
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	b.session = session
	b.state = StateLoaded
	b.log.Info("model loaded")
	return nil
}

// Warmup issues one synthetic inference to force the engine's lazy
// initialization outside the request path. The output is discarded.
func (b *Backend) Warmup(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateLoaded || b.session == nil {
		return fmt.Errorf("%w: warmup requires a loaded model, state is %s", ErrNotReady, b.state)
	}

	tokens := frameTokens([]int64{1, 2, 3})
	style := make([]float32, b.styleWidth)

	if _, err := b.run(ctx, tokens, style, 1.0); err != nil {
		b.state = StateFailed
		return fmt.Errorf("%w: %w", ErrWarmup, err)
	}

	b.state = StateWarmedUp
	b.log.Info("model warmup completed")
	return nil
}

// Generate synthesizes audio for tokens conditioned on the style row selected
// from voice and the speed scalar. It returns audio samples and per-token
// duration predictions; models that only emit audio yield a filler duration
// sequence of ones. A failed generation leaves the lifecycle state unchanged.
func (b *Backend) Generate(ctx context.Context, tokens []int64, voice StyleSource, speed float32) ([]float32, []float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil || (b.state != StateLoaded && b.state != StateWarmedUp) {
		return nil, nil, fmt.Errorf("%w: state is %s", ErrNotLoaded, b.state)
	}
	if speed <= 0 {
		return nil, nil, fmt.Errorf("%w: speed must be positive, got %v", ErrGeneration, speed)
	}

	framed := frameTokens(tokens)

	// The style row index is a hard contract with the voice bundle format:
	// token count plus the two sentinels.
	style, err := voice.Row(len(tokens) + 2)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: select style row: %w", ErrGeneration, err)
	}

	outputs, err := b.run(ctx, framed, style, speed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	audio := outputs[0].Floats
	var durations []float32
	if len(outputs) > 1 {
		durations = durationsFrom(outputs[1])
	}
	if len(durations) == 0 {
		durations = make([]float32, len(framed))
		for i := range durations {
			durations[i] = 1
		}
	}

	return audio, durations, nil
}

// run executes one inference, trying each candidate token input name in order.
// Only a typed unknown-input-name rejection advances to the next candidate.
// Callers must hold b.mu.
func (b *Backend) run(ctx context.Context, framed []int64, style []float32, speed float32) ([]Value, error) {
	for i, name := range tokenInputNames {
		inputs := []NamedValue{
			{Name: name, Value: Value{Shape: []int64{1, int64(len(framed))}, Ints: framed}},
			{Name: styleInputName, Value: Value{Shape: []int64{1, int64(len(style))}, Floats: style}},
			{Name: speedInputName, Value: Value{Shape: []int64{1}, Floats: []float32{speed}}},
		}

		outputs, err := b.session.Run(ctx, inputs)
		if err == nil {
			if len(outputs) == 0 {
				return nil, errors.New("engine returned no outputs")
			}
			return outputs, nil
		}
		if !isUnknownInputName(err) || i == len(tokenInputNames)-1 {
			return nil, err
		}
		b.log.Debug("token input name rejected, retrying",
			slog.String("rejected", name),
			slog.String("next", tokenInputNames[i+1]))
	}
	return nil, errors.New("no token input name accepted")
}

// Unload releases the session and runs registered cleanup hooks. Calling it
// without a live session is a no-op.
func (b *Backend) Unload() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}

	err := b.session.Close()
	b.session = nil
	for _, fn := range b.cleanups {
		fn()
	}
	b.state = StateUninitialized
	if err != nil {
		b.log.Warn("session close error", slog.String("error", err.Error()))
		return err
	}
	b.log.Info("model unloaded")
	return nil
}

// State returns the current lifecycle state.
func (b *Backend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func frameTokens(tokens []int64) []int64 {
	framed := make([]int64, 0, len(tokens)+2)
	framed = append(framed, sentinelToken)
	framed = append(framed, tokens...)
	framed = append(framed, sentinelToken)
	return framed
}

func durationsFrom(v Value) []float32 {
	if len(v.Floats) > 0 {
		out := make([]float32, len(v.Floats))
		copy(out, v.Floats)
		return out
	}
	if len(v.Ints) > 0 {
		out := make([]float32, len(v.Ints))
		for i, d := range v.Ints {
			out[i] = float32(d)
		}
		return out
	}
	return nil
}
