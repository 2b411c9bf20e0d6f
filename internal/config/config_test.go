package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Model.ONNX.OptimizationLevel != "all" {
		t.Fatalf("expected default optimization level all, got %q", cfg.Model.ONNX.OptimizationLevel)
	}
	if cfg.Model.StyleWidth != 256 {
		t.Fatalf("expected style width 256, got %d", cfg.Model.StyleWidth)
	}
	if cfg.Synth.DefaultSpeed != 1.0 {
		t.Fatalf("expected default speed 1.0, got %v", cfg.Synth.DefaultSpeed)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KOKORO_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("KOKORO_MODEL_DIR", "/opt/models")
	t.Setenv("KOKORO_ONNX_OPTIMIZATION_LEVEL", "basic")
	t.Setenv("KOKORO_ONNX_NUM_THREADS", "2")
	t.Setenv("KOKORO_ONNX_INTER_OP_THREADS", "1")
	t.Setenv("KOKORO_ONNX_EXECUTION_MODE", "sequential")
	t.Setenv("KOKORO_ONNX_MEMORY_PATTERN", "false")
	t.Setenv("KOKORO_SYNTH_DEFAULT_VOICE", "am_adam")
	t.Setenv("KOKORO_SYNTH_DEFAULT_SPEED", "1.25")
	t.Setenv("KOKORO_HISTORY_RETENTION_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Model.Dir != "/opt/models" {
		t.Fatalf("expected model dir override, got %q", cfg.Model.Dir)
	}
	if cfg.Model.ONNX.OptimizationLevel != "basic" {
		t.Fatalf("expected optimization level basic, got %q", cfg.Model.ONNX.OptimizationLevel)
	}
	if cfg.Model.ONNX.NumThreads != 2 || cfg.Model.ONNX.InterOpThreads != 1 {
		t.Fatalf("expected thread overrides, got %d/%d", cfg.Model.ONNX.NumThreads, cfg.Model.ONNX.InterOpThreads)
	}
	if cfg.Model.ONNX.ExecutionMode != "sequential" {
		t.Fatalf("expected sequential execution mode, got %q", cfg.Model.ONNX.ExecutionMode)
	}
	if cfg.Model.ONNX.MemoryPattern {
		t.Fatal("expected memory pattern override false")
	}
	if cfg.Synth.DefaultVoice != "am_adam" {
		t.Fatalf("expected voice override, got %q", cfg.Synth.DefaultVoice)
	}
	if cfg.Synth.DefaultSpeed != 1.25 {
		t.Fatalf("expected speed override, got %v", cfg.Synth.DefaultSpeed)
	}
	if cfg.History.RetentionMode != "ephemeral" {
		t.Fatalf("expected ephemeral retention, got %q", cfg.History.RetentionMode)
	}
}

func TestValidateRejectsBadEngineConfig(t *testing.T) {
	t.Setenv("KOKORO_ONNX_EXECUTION_MODE", "speculative")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for execution mode")
	}
}

func TestValidateRejectsBadPhonemeMode(t *testing.T) {
	t.Setenv("KOKORO_PHONEME_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
}
