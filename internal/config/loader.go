package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

// Load reads the YAML configuration file at path, overlays it on [Default],
// applies environment overrides, and returns a validated [Config]. A missing
// file is not an error; the defaults plus environment are used as-is.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			applyEnv(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the environment variables that deployments use to inject
// secrets and per-host settings without editing the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DEVICE"); v != "" {
		cfg.STT.Device = v
	}
	if v := os.Getenv("ASSISTANT_NAME"); v != "" {
		cfg.Assistant.Name = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if _, err := types.ParseMode(cfg.Server.InitialMode); err != nil {
		errs = append(errs, fmt.Errorf("server.initial_mode: %w", err))
	}

	switch cfg.STT.Backend {
	case "whisper-native":
		if cfg.STT.ModelPath == "" {
			errs = append(errs, errors.New("stt.model_path is required for the whisper-native backend"))
		}
	case "whisper-http":
		if cfg.STT.Endpoint == "" {
			errs = append(errs, errors.New("stt.endpoint is required for the whisper-http backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("stt.backend %q is invalid; valid values: whisper-native, whisper-http", cfg.STT.Backend))
	}

	if cfg.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.base_url is required"))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if cfg.LLM.AutoStart && cfg.LLM.StartCommand == "" {
		errs = append(errs, errors.New("llm.start_command is required when llm.auto_start is set"))
	}
	if cfg.LLM.OpenAI != nil {
		if cfg.LLM.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("llm.openai.api_key is required when llm.openai is set"))
		}
		if cfg.LLM.OpenAI.Model == "" {
			errs = append(errs, errors.New("llm.openai.model is required when llm.openai is set"))
		}
	}

	if cfg.TTS.Voice == "" {
		errs = append(errs, errors.New("tts.voice is required"))
	}
	if cfg.TTS.MaxChunks < 1 {
		errs = append(errs, fmt.Errorf("tts.max_chunks %d must be at least 1", cfg.TTS.MaxChunks))
	}

	if cfg.Assistant.Name == "" {
		errs = append(errs, errors.New("assistant.name is required"))
	}
	if cfg.Assistant.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_turns %d must not be negative", cfg.Assistant.HistoryTurns))
	}

	if cfg.Queue.MaxSize < 1 {
		errs = append(errs, fmt.Errorf("queue.max_size %d must be at least 1", cfg.Queue.MaxSize))
	}
	if cfg.Queue.GetTimeoutSec < 1 {
		errs = append(errs, fmt.Errorf("queue.get_timeout_sec %d must be at least 1", cfg.Queue.GetTimeoutSec))
	}
	if cfg.Connection.SocketTimeoutMS < 1 {
		errs = append(errs, fmt.Errorf("connection.socket_timeout_ms %d must be at least 1", cfg.Connection.SocketTimeoutMS))
	}
	if cfg.Connection.MaxTimeouts < 1 {
		errs = append(errs, fmt.Errorf("connection.max_timeouts %d must be at least 1", cfg.Connection.MaxTimeouts))
	}
	if cfg.Audio.MaxSeconds < 1 {
		errs = append(errs, fmt.Errorf("audio.max_seconds %d must be at least 1", cfg.Audio.MaxSeconds))
	}
	if cfg.Memory.RefreshEvery < 1 {
		errs = append(errs, fmt.Errorf("memory.refresh_every %d must be at least 1", cfg.Memory.RefreshEvery))
	}

	return errors.Join(errs...)
}
