package synth

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/auralith/kokorod/internal/bus"
	"github.com/auralith/kokorod/internal/config"
	"github.com/auralith/kokorod/internal/history"
	"github.com/auralith/kokorod/internal/protocol"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Service listens for synthesis requests on the bus, runs the pipeline, and
// streams PCM chunks back.
type Service struct {
	cfg      config.SynthConfig
	bus      *bus.Client
	pipeline *Pipeline
	store    *history.Store
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewService(parent context.Context, cfg config.SynthConfig, busClient *bus.Client, pipeline *Pipeline, store *history.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		pipeline: pipeline,
		store:    store,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "synth-service")),
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/auralith/kokorod/synth")
	var err error
	s.requests, err = meter.Int64Counter("kokorod.synth.requests",
		metric.WithDescription("Synthesis requests handled"))
	if err != nil {
		s.logger.Warn("failed to create request counter", slogError(err))
	}
	s.duration, err = meter.Float64Histogram("kokorod.synth.duration_ms",
		metric.WithDescription("Synthesis wall time in milliseconds"))
	if err != nil {
		s.logger.Warn("failed to create duration histogram", slogError(err))
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Subscribe(protocol.SubjectSynthesize, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthesisRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode synthesis request", slogError(err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timeout := time.Duration(s.cfg.RequestTimeout) * time.Millisecond
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		start := time.Now()
		res, err := s.pipeline.Synthesize(ctx, Request{
			SessionID: req.SessionID,
			Text:      req.Text,
			Tokens:    req.Tokens,
			Voice:     req.Voice,
			Speed:     req.Speed,
			Target:    req.Target,
		})
		elapsed := time.Since(start)
		s.recordMetrics(ctx, req.Voice, elapsed, err)

		if err != nil {
			s.logger.Warn("synthesis failed",
				slog.String("session_id", req.SessionID),
				slogError(err))
			s.publishStatus(req, false, err)
			return
		}

		s.publishAudio(req, res)
		s.publishStatus(req, true, nil)
		s.appendHistory(req, res, elapsed)
	}()
}

func (s *Service) publishAudio(req protocol.SynthesisRequest, res Result) {
	chunkBytes := res.SampleRate * s.cfg.ChunkDurationMS / 1000 * 2
	for _, packet := range buildChunks(req, res.SampleRate, FloatsToPCM16(res.Audio), chunkBytes) {
		data, err := json.Marshal(packet)
		if err != nil {
			s.logger.Warn("failed to marshal audio chunk", slogError(err))
			return
		}
		if err := s.bus.Publish(protocol.SubjectSynthesisAudio, data); err != nil {
			s.logger.Warn("failed to publish audio chunk", slogError(err))
			return
		}
	}
}

// buildChunks splits pcm into bus packets. An empty render still yields a
// single empty final chunk so consumers keyed on Final always see one.
func buildChunks(req protocol.SynthesisRequest, sampleRate int, pcm []byte, chunkBytes int) []protocol.AudioChunk {
	parts := splitPCM(pcm, chunkBytes)
	if len(parts) == 0 {
		parts = [][]byte{{}}
	}
	packets := make([]protocol.AudioChunk, len(parts))
	for i, part := range parts {
		packets[i] = protocol.AudioChunk{
			SessionID:  req.SessionID,
			Target:     req.Target,
			Sequence:   i,
			SampleRate: sampleRate,
			Channels:   1,
			PCM:        part,
			Final:      i == len(parts)-1,
		}
	}
	return packets
}

func (s *Service) publishStatus(req protocol.SynthesisRequest, completed bool, cause error) {
	status := protocol.SynthesisStatus{
		SessionID: req.SessionID,
		Target:    req.Target,
		Completed: completed,
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		status.Error = cause.Error()
	}
	if data, err := json.Marshal(status); err == nil {
		_ = s.bus.Publish(protocol.SubjectSynthesisStatus, data)
	}
}

func (s *Service) appendHistory(req protocol.SynthesisRequest, res Result, elapsed time.Duration) {
	if s.store == nil {
		return
	}
	rec := history.Record{
		SessionID:   req.SessionID,
		Voice:       req.Voice,
		TokenCount:  res.TokenCount,
		SampleCount: len(res.Audio),
		Speed:       req.Speed,
		ElapsedMS:   elapsed.Milliseconds(),
	}
	if err := s.store.Append(s.ctx, rec); err != nil {
		s.logger.Warn("failed to record synthesis", slogError(err))
	}
}

func (s *Service) recordMetrics(ctx context.Context, voiceName string, elapsed time.Duration, cause error) {
	outcome := "ok"
	if cause != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("voice", voiceName),
		attribute.String("outcome", outcome),
	)
	if s.requests != nil {
		s.requests.Add(ctx, 1, attrs)
	}
	if s.duration != nil {
		s.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
