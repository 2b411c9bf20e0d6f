package synth

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/auralith/kokorod/internal/config"
	"github.com/auralith/kokorod/internal/onnx"
	"github.com/auralith/kokorod/internal/phoneme"
	"github.com/auralith/kokorod/internal/voice"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Generator runs one inference pass over framed tokens and a style vector.
type Generator interface {
	Generate(ctx context.Context, tokens []int64, voice onnx.StyleSource, speed float32) ([]float32, []float32, error)
}

// Pipeline turns synthesis requests into audio: tokenize, pick a voice,
// run the model, and cache the result.
type Pipeline struct {
	cfg        config.SynthConfig
	sampleRate int
	gen        Generator
	bank       *voice.Bank
	tokenizer  phoneme.Tokenizer
	cache      *lru.Cache[string, Result]
	log        *slog.Logger
}

func NewPipeline(cfg config.SynthConfig, sampleRate int, gen Generator, bank *voice.Bank, tok phoneme.Tokenizer, log *slog.Logger) (*Pipeline, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, fmt.Errorf("create synthesis cache: %w", err)
	}
	return &Pipeline{
		cfg:        cfg,
		sampleRate: sampleRate,
		gen:        gen,
		bank:       bank,
		tokenizer:  tok,
		cache:      cache,
		log:        log.With(slog.String("component", "synth-pipeline")),
	}, nil
}

// Synthesize resolves defaults, tokenizes text when no tokens were supplied,
// and runs the model. Identical requests are served from the cache.
func (p *Pipeline) Synthesize(ctx context.Context, req Request) (Result, error) {
	voiceName := req.Voice
	if voiceName == "" {
		voiceName = p.cfg.DefaultVoice
	}
	speed := req.Speed
	if speed == 0 {
		speed = p.cfg.DefaultSpeed
	}

	tokens := req.Tokens
	if len(tokens) == 0 {
		if req.Text == "" {
			return Result{}, errors.New("request has neither text nor tokens")
		}
		var err error
		tokens, err = p.tokenizer.Tokenize(ctx, req.Text)
		if err != nil {
			return Result{}, fmt.Errorf("tokenize: %w", err)
		}
	}

	key := cacheKey(voiceName, speed, tokens)
	if res, ok := p.cache.Get(key); ok {
		p.log.Debug("cache hit", slog.String("voice", voiceName), slog.Int("tokens", res.TokenCount))
		return res, nil
	}

	emb, err := p.bank.Get(voiceName)
	if err != nil {
		return Result{}, err
	}

	audioData, durations, err := p.gen.Generate(ctx, tokens, emb, float32(speed))
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Audio:      audioData,
		Durations:  durations,
		TokenCount: len(tokens),
		SampleRate: p.sampleRate,
	}
	p.cache.Add(key, res)

	if p.cfg.DumpDir != "" {
		if err := p.dumpWAV(req.SessionID, res); err != nil {
			p.log.Warn("failed to dump audio", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

func cacheKey(voiceName string, speed float64, tokens []int64) string {
	h := fnv.New64a()
	for _, t := range tokens {
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(t >> (8 * i))
		}
		h.Write(buf[:])
	}
	return fmt.Sprintf("%s|%.3f|%d|%x", voiceName, speed, len(tokens), h.Sum64())
}

func (p *Pipeline) dumpWAV(sessionID string, res Result) error {
	if err := os.MkdirAll(p.cfg.DumpDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%d.wav", sessionID, time.Now().UnixNano())
	f, err := os.Create(filepath.Join(p.cfg.DumpDir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, res.SampleRate, 16, 1, 1)
	ints := make([]int, len(res.Audio))
	for i, sample := range res.Audio {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		ints[i] = int(sample * 32767)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: res.SampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
