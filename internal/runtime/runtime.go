package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/auralith/kokorod/internal/bus"
	"github.com/auralith/kokorod/internal/capability"
	"github.com/auralith/kokorod/internal/config"
	"github.com/auralith/kokorod/internal/history"
	"github.com/auralith/kokorod/internal/natsserver"
	"github.com/auralith/kokorod/internal/onnx"
	"github.com/auralith/kokorod/internal/paths"
	"github.com/auralith/kokorod/internal/phoneme"
	"github.com/auralith/kokorod/internal/synth"
	"github.com/auralith/kokorod/internal/voice"
)

// Runtime assembles the node: telemetry, bus, model backend, synthesis
// service, and the health endpoints. Start blocks until ctx is cancelled and
// then tears everything down in reverse order.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	tel        *telemetry
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := newTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tel = tel

	embedded, err := natsserver.Start(r.cfg.Bus, r.cfg.NodeName, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS server: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer busClient.Close()

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	resolver := paths.NewResolver(r.cfg.Model.Dir)

	voicesPath, err := resolver.VoicesPath(ctx, r.cfg.Model.VoicesFile)
	if err != nil {
		return fmt.Errorf("failed to locate voices bundle: %w", err)
	}
	bank, err := voice.Load(voicesPath, r.cfg.Model.StyleWidth)
	if err != nil {
		return fmt.Errorf("failed to load voices bundle: %w", err)
	}
	r.logger.Info("voices loaded",
		slog.Int("count", len(bank.Names())),
		slog.String("voices", strings.Join(bank.Names(), ",")))

	engine, err := onnx.NewRuntimeEngine(r.cfg.Model.ONNX.LibraryPath, r.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}

	backend := onnx.NewBackend(r.cfg.Model.ONNX, engine, resolver, r.logger,
		onnx.WithStyleWidth(r.cfg.Model.StyleWidth))
	if err := backend.LoadModel(ctx, r.cfg.Model.File); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer func() {
		if err := backend.Unload(); err != nil {
			r.logger.Error("model unload error", slog.String("error", err.Error()))
		}
	}()
	if r.cfg.Model.Warmup {
		if err := backend.Warmup(ctx); err != nil {
			return fmt.Errorf("failed to warm up model: %w", err)
		}
	}

	tokenizer, err := phoneme.New(ctx, r.cfg.Phoneme)
	if err != nil {
		return fmt.Errorf("failed to create tokenizer: %w", err)
	}
	if closer, ok := tokenizer.(io.Closer); ok {
		defer closer.Close()
	}

	pipeline, err := synth.NewPipeline(r.cfg.Synth, r.cfg.Model.SampleRate, backend, bank, tokenizer, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create synthesis pipeline: %w", err)
	}

	service := synth.NewService(ctx, r.cfg.Synth, busClient, pipeline, store, r.logger)
	if err := service.Start(); err != nil {
		return fmt.Errorf("failed to start synthesis service: %w", err)
	}
	defer service.Close()

	registry, err := capability.NewRegistry(ctx, r.cfg.Node, r.localCapabilities(backend, bank), busClient, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start capability registry: %w", err)
	}
	defer registry.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if tel.metrics != nil {
		mux.Handle("/metrics", tel.metrics)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("model", r.cfg.Model.File),
		slog.String("state", backend.State().String()))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tel != nil {
		if err := r.tel.shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) localCapabilities(backend *onnx.Backend, bank *voice.Bank) []capability.Capability {
	return []capability.Capability{
		{
			Name: "tts.synthesize",
			Attributes: map[string]string{
				"model":       r.cfg.Model.File,
				"state":       backend.State().String(),
				"voices":      fmt.Sprintf("%d", len(bank.Names())),
				"sample_rate": fmt.Sprintf("%d", r.cfg.Model.SampleRate),
			},
		},
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
