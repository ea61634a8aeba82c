// Package config provides the configuration schema, loader, and voice command
// catalog for the ccoli server.
package config

import (
	"time"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

// LogLevel controls log verbosity for the ccoli server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for ccoli.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	STT        STTConfig        `yaml:"stt"`
	LLM        LLMConfig        `yaml:"llm"`
	TTS        TTSConfig        `yaml:"tts"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Weather    WeatherConfig    `yaml:"weather"`
	Memory     MemoryConfig     `yaml:"memory"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Audio      AudioConfig      `yaml:"audio"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds network, logging, and startup-mode settings.
type ServerConfig struct {
	// Host is the interface the TCP listener binds to.
	Host string `yaml:"host"`

	// Port is the TCP port the device connects to.
	Port int `yaml:"port"`

	// InitialMode is the behavioural mode each new session starts in
	// ("robot" or "agent").
	InitialMode string `yaml:"initial_mode"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// STTConfig selects the speech-to-text backend.
type STTConfig struct {
	// Backend selects the transcriber implementation: "whisper-native" loads
	// a local model through the whisper.cpp bindings, "whisper-http" talks to
	// a whisper.cpp server endpoint.
	Backend string `yaml:"backend"`

	// ModelPath is the GGML model file for the native backend.
	ModelPath string `yaml:"model_path"`

	// Endpoint is the inference URL for the http backend.
	Endpoint string `yaml:"endpoint"`

	// Device is a hint recorded in logs ("cuda", "cpu"). The native bindings
	// pick the compiled backend on their own.
	Device string `yaml:"device"`

	// Language is the transcription language code.
	Language string `yaml:"language"`
}

// LLMConfig holds the Ollama connection and lifecycle settings.
type LLMConfig struct {
	// BaseURL is the Ollama server root (e.g., "http://localhost:11434").
	BaseURL string `yaml:"base_url"`

	// Model is the model tag requested on every call.
	Model string `yaml:"model"`

	// Think enables the model's thinking channel by default. Individual
	// calls may override it.
	Think bool `yaml:"think"`

	// AutoStart launches StartCommand when the server is unreachable at boot.
	AutoStart bool `yaml:"auto_start"`

	// StartCommand is the shell command used by AutoStart.
	StartCommand string `yaml:"start_command"`

	// StartupTimeoutSec bounds how long AutoStart waits for the server to
	// come up.
	StartupTimeoutSec int `yaml:"startup_timeout_sec"`

	// OpenAI optionally configures a hosted fallback model. When nil, only
	// the local Ollama backend is used.
	OpenAI *OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig holds credentials for the hosted LLM fallback.
type OpenAIConfig struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// BaseURL overrides the default API endpoint. Leave empty for the
	// public API.
	BaseURL string `yaml:"base_url"`
}

// TTSConfig selects the synthesis voice.
type TTSConfig struct {
	// Voice is the Edge TTS voice short name.
	Voice string `yaml:"voice"`

	// MaxChunks caps how many pieces one reply is split into for
	// synthesis. 1 disables splitting.
	MaxChunks int `yaml:"max_chunks"`
}

// AssistantConfig describes the conversational persona.
type AssistantConfig struct {
	// Name is the assistant's self-referential name, used in prompts and in
	// reply sanitation.
	Name string `yaml:"name"`

	// Personality is a free-text persona description injected into the
	// system prompt.
	Personality string `yaml:"personality"`

	// Proactive enables unprompted utterances during active hours.
	Proactive bool `yaml:"proactive"`

	// ProactiveIntervalSec is the minimum gap between proactive utterances.
	ProactiveIntervalSec int `yaml:"proactive_interval_sec"`

	// HistoryTurns is how many recent exchanges are replayed to the model.
	HistoryTurns int `yaml:"history_turns"`

	// NewsFeed is an RSS feed URL for headline lookups. Empty disables the
	// news reference.
	NewsFeed string `yaml:"news_feed"`
}

// WeatherConfig holds the OpenWeatherMap query parameters.
type WeatherConfig struct {
	// APIKey authenticates against OpenWeatherMap. Usually injected via the
	// WEATHER_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// Lat and Lon locate the forecast.
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// MemoryConfig holds settings for the file-backed long-term memory.
type MemoryConfig struct {
	// Dir is the directory holding the memory markdown files and the
	// schedule store.
	Dir string `yaml:"dir"`

	// RefreshEvery is how many conversation turns pass between memory
	// extraction runs.
	RefreshEvery int `yaml:"refresh_every"`
}

// QueueConfig bounds the utterance job queue.
type QueueConfig struct {
	// MaxSize is the queue capacity. When full, the oldest job is dropped.
	MaxSize int `yaml:"max_size"`

	// GetTimeoutSec is how long the worker blocks per poll.
	GetTimeoutSec int `yaml:"get_timeout_sec"`
}

// ConnectionConfig tunes the per-connection socket behaviour.
type ConnectionConfig struct {
	// SocketTimeoutMS is the per-read deadline in milliseconds.
	SocketTimeoutMS int `yaml:"socket_timeout_ms"`

	// MaxTimeouts is how many consecutive silent reads are tolerated before
	// the session is dropped.
	MaxTimeouts int `yaml:"max_timeouts"`
}

// AudioConfig bounds the inbound audio stream.
type AudioConfig struct {
	// MaxSeconds caps one utterance. A stream exceeding it is force-closed.
	MaxSeconds int `yaml:"max_seconds"`
}

// MetricsConfig configures the auxiliary HTTP endpoint serving health checks
// and Prometheus metrics. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SocketTimeout returns the per-read deadline as a [time.Duration].
func (c ConnectionConfig) SocketTimeout() time.Duration {
	return time.Duration(c.SocketTimeoutMS) * time.Millisecond
}

// GetTimeout returns the worker poll timeout as a [time.Duration].
func (c QueueConfig) GetTimeout() time.Duration {
	return time.Duration(c.GetTimeoutSec) * time.Second
}

// StartupTimeout returns the AutoStart wait bound as a [time.Duration].
func (c LLMConfig) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutSec) * time.Second
}

// ProactiveInterval returns the proactive gap as a [time.Duration].
func (c AssistantConfig) ProactiveInterval() time.Duration {
	return time.Duration(c.ProactiveIntervalSec) * time.Second
}

// Default returns a Config populated with the values a bare installation
// runs with. [Load] starts from these and overlays the file on top.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5001,
			InitialMode: string(types.ModeAgent),
			LogLevel:    LogInfo,
		},
		STT: STTConfig{
			Backend:   "whisper-native",
			ModelPath: "models/ggml-medium.bin",
			Endpoint:  "http://localhost:8080/inference",
			Device:    "cuda",
			Language:  "ko",
		},
		LLM: LLMConfig{
			BaseURL:           "http://localhost:11434",
			Model:             "qwen2.5:0.5b",
			Think:             false,
			AutoStart:         true,
			StartCommand:      "ollama serve",
			StartupTimeoutSec: 10,
		},
		TTS: TTSConfig{
			Voice:     "ko-KR-SunHiNeural",
			MaxChunks: 3,
		},
		Assistant: AssistantConfig{
			Name:                 "아이",
			Personality:          "cheerful",
			Proactive:            true,
			ProactiveIntervalSec: 1800,
			HistoryTurns:         20,
		},
		Weather: WeatherConfig{
			Lat: 37.5665,
			Lon: 126.9780,
		},
		Memory: MemoryConfig{
			Dir:          "memory",
			RefreshEvery: 5,
		},
		Queue: QueueConfig{
			MaxSize:       4,
			GetTimeoutSec: 1,
		},
		Connection: ConnectionConfig{
			SocketTimeoutMS: 500,
			MaxTimeouts:     120,
		},
		Audio: AudioConfig{
			MaxSeconds: 12,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}
