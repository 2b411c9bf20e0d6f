package phoneme

import (
	"context"
	"fmt"

	"github.com/auralith/kokorod/internal/config"
)

// Tokenizer turns phonemized text into model token IDs.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) ([]int64, error)
}

// New builds the tokenizer selected by config.
func New(ctx context.Context, cfg config.PhonemeConfig) (Tokenizer, error) {
	switch cfg.Mode {
	case "table":
		return NewTableTokenizer(), nil
	case "exec":
		return NewExecTokenizer(cfg.Command)
	case "wasm":
		return NewWasmTokenizer(ctx, cfg.Module)
	default:
		return nil, fmt.Errorf("unsupported phoneme mode %q", cfg.Mode)
	}
}
