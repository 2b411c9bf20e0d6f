package synth

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/auralith/kokorod/internal/config"
	"github.com/auralith/kokorod/internal/onnx"
	"github.com/auralith/kokorod/internal/voice"
)

type fakeGenerator struct {
	calls  int
	err    error
	tokens [][]int64
	speeds []float32
}

func (g *fakeGenerator) Generate(ctx context.Context, tokens []int64, styles onnx.StyleSource, speed float32) ([]float32, []float32, error) {
	g.calls++
	g.tokens = append(g.tokens, append([]int64(nil), tokens...))
	g.speeds = append(g.speeds, speed)
	if g.err != nil {
		return nil, nil, g.err
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, []float32{1, 1, 1, 1, 1}, nil
}

type fakeTokenizer struct {
	tokens []int64
	err    error
	calls  int
}

func (f *fakeTokenizer) Tokenize(ctx context.Context, text string) ([]int64, error) {
	f.calls++
	return f.tokens, f.err
}

func encodeVoice(name string, floats []float32) []byte {
	buf := make([]byte, 0, 8+len(name)+len(floats)*4)
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(name)))
	buf = append(buf, scratch[:]...)
	buf = append(buf, name...)
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(floats)))
	buf = append(buf, scratch[:]...)
	for _, f := range floats {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(f))
		buf = append(buf, scratch[:]...)
	}
	return buf
}

func newBank(t *testing.T) *voice.Bank {
	t.Helper()
	floats := make([]float32, 4*16)
	bank, err := voice.Parse(encodeVoice("af_heart", floats), 4)
	if err != nil {
		t.Fatalf("parse voices: %v", err)
	}
	return bank
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newPipeline(t *testing.T, gen Generator, tok *fakeTokenizer) *Pipeline {
	t.Helper()
	cfg := config.SynthConfig{
		DefaultVoice: "af_heart",
		DefaultSpeed: 1.0,
		CacheSize:    8,
	}
	p, err := NewPipeline(cfg, 24000, gen, newBank(t), tok, newLogger())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestSynthesizeWithTokens(t *testing.T) {
	gen := &fakeGenerator{}
	tok := &fakeTokenizer{}
	p := newPipeline(t, gen, tok)

	res, err := p.Synthesize(context.Background(), Request{Tokens: []int64{5, 9, 2}})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if tok.calls != 0 {
		t.Fatalf("tokenizer should not run when tokens are supplied")
	}
	if res.TokenCount != 3 || res.SampleRate != 24000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(gen.tokens) != 1 || gen.tokens[0][0] != 5 {
		t.Fatalf("generator saw wrong tokens: %v", gen.tokens)
	}
	if gen.speeds[0] != 1.0 {
		t.Fatalf("expected default speed 1.0, got %v", gen.speeds[0])
	}
}

func TestSynthesizeTokenizesText(t *testing.T) {
	gen := &fakeGenerator{}
	tok := &fakeTokenizer{tokens: []int64{7, 8}}
	p := newPipeline(t, gen, tok)

	if _, err := p.Synthesize(context.Background(), Request{Text: "hello"}); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if tok.calls != 1 {
		t.Fatalf("expected one tokenizer call, got %d", tok.calls)
	}
	if len(gen.tokens) != 1 || len(gen.tokens[0]) != 2 {
		t.Fatalf("generator saw wrong tokens: %v", gen.tokens)
	}
}

func TestSynthesizeRejectsEmptyRequest(t *testing.T) {
	gen := &fakeGenerator{}
	p := newPipeline(t, gen, &fakeTokenizer{})

	if _, err := p.Synthesize(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for request with neither text nor tokens")
	}
	if gen.calls != 0 {
		t.Fatalf("generator should not run, got %d calls", gen.calls)
	}
}

func TestSynthesizeCacheHit(t *testing.T) {
	gen := &fakeGenerator{}
	p := newPipeline(t, gen, &fakeTokenizer{})

	req := Request{Tokens: []int64{1, 2, 3}, Voice: "af_heart", Speed: 1.2}
	if _, err := p.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("first synthesize: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("second synthesize: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generator call, got %d", gen.calls)
	}

	req.Speed = 0.8
	if _, err := p.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("third synthesize: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("changed speed should miss the cache, got %d calls", gen.calls)
	}
}

func TestSynthesizeUnknownVoice(t *testing.T) {
	gen := &fakeGenerator{}
	p := newPipeline(t, gen, &fakeTokenizer{})

	_, err := p.Synthesize(context.Background(), Request{Tokens: []int64{1}, Voice: "nope"})
	if !errors.Is(err, voice.ErrVoiceUnknown) {
		t.Fatalf("expected ErrVoiceUnknown, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator should not run for unknown voice")
	}
}

func TestSynthesizeGeneratorFailureNotCached(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	p := newPipeline(t, gen, &fakeTokenizer{})

	req := Request{Tokens: []int64{1, 2}}
	if _, err := p.Synthesize(context.Background(), req); err == nil {
		t.Fatal("expected generator error")
	}

	gen.err = nil
	if _, err := p.Synthesize(context.Background(), req); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("failed result must not be cached, got %d calls", gen.calls)
	}
}

func TestFloatsToPCM16Clamps(t *testing.T) {
	pcm := FloatsToPCM16([]float32{0, 1.5, -1.5})
	if len(pcm) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(pcm))
	}
	if v := int16(pcm[2]) | int16(pcm[3])<<8; v != 32767 {
		t.Fatalf("expected clamped max 32767, got %d", v)
	}
	if v := int16(uint16(pcm[4]) | uint16(pcm[5])<<8); v != -32767 {
		t.Fatalf("expected clamped min -32767, got %d", v)
	}
}

func TestSplitPCMAlignment(t *testing.T) {
	pcm := make([]byte, 10)
	chunks := splitPCM(pcm, 5)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 4 || len(chunks[1]) != 4 || len(chunks[2]) != 2 {
		t.Fatalf("chunks must hold whole samples: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}
