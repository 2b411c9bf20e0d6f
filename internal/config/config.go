package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	NodeName    string          `yaml:"node_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Node        NodeConfig      `yaml:"node"`
	Model       ModelConfig     `yaml:"model"`
	Phoneme     PhonemeConfig   `yaml:"phoneme"`
	Synth       SynthConfig     `yaml:"synth"`
	History     HistoryConfig   `yaml:"history"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

// ONNXConfig carries the engine session knobs. Values are validated here so
// the backend can treat its snapshot as trusted.
type ONNXConfig struct {
	OptimizationLevel   string `yaml:"optimization_level"`
	NumThreads          int    `yaml:"num_threads"`
	InterOpThreads      int    `yaml:"inter_op_threads"`
	ExecutionMode       string `yaml:"execution_mode"`
	MemoryPattern       bool   `yaml:"memory_pattern"`
	ArenaExtendStrategy string `yaml:"arena_extend_strategy"`
	LibraryPath         string `yaml:"library_path"`
}

type ModelConfig struct {
	Dir        string     `yaml:"dir"`
	File       string     `yaml:"file"`
	VoicesFile string     `yaml:"voices_file"`
	StyleWidth int        `yaml:"style_width"`
	SampleRate int        `yaml:"sample_rate"`
	Warmup     bool       `yaml:"warmup"`
	ONNX       ONNXConfig `yaml:"onnx"`
}

type PhonemeConfig struct {
	Mode    string `yaml:"mode"` // table, exec, wasm
	Command string `yaml:"command"`
	Module  string `yaml:"module"`
}

type SynthConfig struct {
	DefaultVoice    string  `yaml:"default_voice"`
	DefaultSpeed    float64 `yaml:"default_speed"`
	ChunkDurationMS int     `yaml:"chunk_duration_ms"`
	RequestTimeout  int     `yaml:"request_timeout_ms"`
	CacheSize       int     `yaml:"cache_size"`
	DumpDir         string  `yaml:"dump_dir"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		NodeName:    "kokorod",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8880,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "kokoro-node-1",
			Role:              "synthesis",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		Model: ModelConfig{
			Dir:        "./models",
			File:       "kokoro-v1.0.onnx",
			VoicesFile: "voices-v1.0.bin",
			StyleWidth: 256,
			SampleRate: 24000,
			Warmup:     true,
			ONNX: ONNXConfig{
				OptimizationLevel:   "all",
				NumThreads:          8,
				InterOpThreads:      4,
				ExecutionMode:       "parallel",
				MemoryPattern:       true,
				ArenaExtendStrategy: "kNextPowerOfTwo",
			},
		},
		Phoneme: PhonemeConfig{
			Mode: "table",
		},
		Synth: SynthConfig{
			DefaultVoice:    "af_heart",
			DefaultSpeed:    1.0,
			ChunkDurationMS: 400,
			RequestTimeout:  45000,
			CacheSize:       64,
		},
		History: HistoryConfig{
			Path:          "./data/kokoro-history.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRecords:    100000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.NodeName, "KOKORO_NODE_NAME")
	overrideString(&cfg.Environment, "KOKORO_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "KOKORO_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "KOKORO_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "KOKORO_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "KOKORO_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "KOKORO_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "KOKORO_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "KOKORO_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "KOKORO_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "KOKORO_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "KOKORO_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "KOKORO_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "KOKORO_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "KOKORO_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "KOKORO_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "KOKORO_NODE_ID")
	overrideString(&cfg.Node.Role, "KOKORO_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "KOKORO_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "KOKORO_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.Model.Dir, "KOKORO_MODEL_DIR")
	overrideString(&cfg.Model.File, "KOKORO_MODEL_FILE")
	overrideString(&cfg.Model.VoicesFile, "KOKORO_MODEL_VOICES_FILE")
	overrideInt(&cfg.Model.StyleWidth, "KOKORO_MODEL_STYLE_WIDTH")
	overrideInt(&cfg.Model.SampleRate, "KOKORO_MODEL_SAMPLE_RATE")
	overrideBool(&cfg.Model.Warmup, "KOKORO_MODEL_WARMUP")
	overrideString(&cfg.Model.ONNX.OptimizationLevel, "KOKORO_ONNX_OPTIMIZATION_LEVEL")
	overrideInt(&cfg.Model.ONNX.NumThreads, "KOKORO_ONNX_NUM_THREADS")
	overrideInt(&cfg.Model.ONNX.InterOpThreads, "KOKORO_ONNX_INTER_OP_THREADS")
	overrideString(&cfg.Model.ONNX.ExecutionMode, "KOKORO_ONNX_EXECUTION_MODE")
	overrideBool(&cfg.Model.ONNX.MemoryPattern, "KOKORO_ONNX_MEMORY_PATTERN")
	overrideString(&cfg.Model.ONNX.ArenaExtendStrategy, "KOKORO_ONNX_ARENA_EXTEND_STRATEGY")
	overrideString(&cfg.Model.ONNX.LibraryPath, "KOKORO_ONNX_LIBRARY_PATH")
	overrideString(&cfg.Phoneme.Mode, "KOKORO_PHONEME_MODE")
	overrideString(&cfg.Phoneme.Command, "KOKORO_PHONEME_COMMAND")
	overrideString(&cfg.Phoneme.Module, "KOKORO_PHONEME_MODULE")
	overrideString(&cfg.Synth.DefaultVoice, "KOKORO_SYNTH_DEFAULT_VOICE")
	overrideFloat(&cfg.Synth.DefaultSpeed, "KOKORO_SYNTH_DEFAULT_SPEED")
	overrideInt(&cfg.Synth.ChunkDurationMS, "KOKORO_SYNTH_CHUNK_DURATION_MS")
	overrideInt(&cfg.Synth.RequestTimeout, "KOKORO_SYNTH_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Synth.CacheSize, "KOKORO_SYNTH_CACHE_SIZE")
	overrideString(&cfg.Synth.DumpDir, "KOKORO_SYNTH_DUMP_DIR")
	overrideString(&cfg.History.Path, "KOKORO_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "KOKORO_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "KOKORO_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRecords, "KOKORO_HISTORY_MAX_RECORDS")
	overrideBool(&cfg.History.VacuumOnStart, "KOKORO_HISTORY_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.NodeName == "" {
		return errors.New("node_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Model.Dir == "" {
		return errors.New("model.dir must not be empty")
	}
	if cfg.Model.File == "" {
		return errors.New("model.file must not be empty")
	}
	if cfg.Model.VoicesFile == "" {
		return errors.New("model.voices_file must not be empty")
	}
	if cfg.Model.StyleWidth <= 0 {
		return errors.New("model.style_width must be positive")
	}
	if cfg.Model.SampleRate <= 0 {
		return errors.New("model.sample_rate must be positive")
	}
	switch cfg.Model.ONNX.OptimizationLevel {
	case "disabled", "basic", "all":
	default:
		return errors.New("model.onnx.optimization_level must be one of disabled|basic|all")
	}
	if cfg.Model.ONNX.NumThreads < 0 {
		return errors.New("model.onnx.num_threads must be >= 0")
	}
	if cfg.Model.ONNX.InterOpThreads < 0 {
		return errors.New("model.onnx.inter_op_threads must be >= 0")
	}
	switch cfg.Model.ONNX.ExecutionMode {
	case "sequential", "parallel":
	default:
		return errors.New("model.onnx.execution_mode must be one of sequential|parallel")
	}
	switch cfg.Phoneme.Mode {
	case "table", "exec", "wasm":
	default:
		return errors.New("phoneme.mode must be one of table|exec|wasm")
	}
	if cfg.Phoneme.Mode == "exec" && cfg.Phoneme.Command == "" {
		return errors.New("phoneme.command must be set when mode=exec")
	}
	if cfg.Phoneme.Mode == "wasm" && cfg.Phoneme.Module == "" {
		return errors.New("phoneme.module must be set when mode=wasm")
	}
	if cfg.Synth.DefaultVoice == "" {
		return errors.New("synth.default_voice must not be empty")
	}
	if cfg.Synth.DefaultSpeed <= 0 {
		return errors.New("synth.default_speed must be positive")
	}
	if cfg.Synth.ChunkDurationMS <= 0 {
		return errors.New("synth.chunk_duration_ms must be positive")
	}
	if cfg.Synth.RequestTimeout <= 0 {
		return errors.New("synth.request_timeout_ms must be positive")
	}
	if cfg.Synth.CacheSize < 0 {
		return errors.New("synth.cache_size must be >= 0")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionMode == "persistent" && cfg.History.Path == "" {
		return errors.New("history.path must not be empty when retention is persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	return nil
}
