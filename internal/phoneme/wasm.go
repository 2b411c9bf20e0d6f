package phoneme

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// wasmTokenizer runs a sandboxed grapheme-to-phoneme WASI module. The module
// is compiled once; each request instantiates it with the JSON request on
// stdin and reads the JSON token array from stdout.
type wasmTokenizer struct {
	rt       wazero.Runtime
	compiled wazero.CompiledModule
	mu       sync.Mutex
	seq      int
}

func NewWasmTokenizer(ctx context.Context, modulePath string) (Tokenizer, error) {
	wasmBytes, err := os.ReadFile(modulePath)
	if err != nil {
		return nil, fmt.Errorf("read phoneme module: %w", err)
	}

	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("compile phoneme module: %w", err)
	}

	return &wasmTokenizer{rt: rt, compiled: compiled}, nil
}

func (w *wasmTokenizer) Tokenize(ctx context.Context, text string) ([]int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload, err := json.Marshal(execRequest{Text: text})
	if err != nil {
		return nil, err
	}

	var stdout bytes.Buffer
	w.seq++
	cfg := wazero.NewModuleConfig().
		WithName(fmt.Sprintf("g2p-%d", w.seq)).
		WithStdin(bytes.NewReader(payload)).
		WithStdout(&stdout)

	module, err := w.rt.InstantiateModule(ctx, w.compiled, cfg)
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return nil, fmt.Errorf("run phoneme module: %w", err)
		}
	}
	if module != nil {
		_ = module.Close(ctx)
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return nil, fmt.Errorf("decode phoneme module output: %w", err)
	}
	if len(resp.Tokens) == 0 {
		return nil, fmt.Errorf("phoneme module produced no tokens")
	}
	return resp.Tokens, nil
}

// Close releases the wasm runtime.
func (w *wasmTokenizer) Close() error {
	return w.rt.Close(context.Background())
}
