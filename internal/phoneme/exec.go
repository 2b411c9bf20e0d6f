package phoneme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execTokenizer struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text string `json:"text"`
}

type execResponse struct {
	Tokens []int64 `json:"tokens"`
}

// NewExecTokenizer runs an external grapheme-to-phoneme command per request.
// The command reads a JSON request on stdin and writes a JSON token array on
// stdout.
func NewExecTokenizer(command string) (Tokenizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse phoneme command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("phoneme command empty")
	}
	return &execTokenizer{cmd: args}, nil
}

func (e *execTokenizer) Tokenize(ctx context.Context, text string) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{Text: text})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("phoneme command failed: %w: %s", err, stderr.String())
		}
		return nil, fmt.Errorf("phoneme command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return nil, fmt.Errorf("decode phoneme response: %w", err)
	}
	if len(resp.Tokens) == 0 {
		return nil, fmt.Errorf("phoneme command produced no tokens")
	}
	return resp.Tokens, nil
}
