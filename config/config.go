// Package config loads runtime configuration from YAML files with
// environment variable overrides.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AUTOGEN").
//	    Load()
//
// Precedence: defaults, then the YAML file, then environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	Model       ModelConfig       `yaml:"model" env:"MODEL"`
	Cache       CacheConfig       `yaml:"cache" env:"CACHE"`
	Chat        ChatConfig        `yaml:"chat" env:"CHAT"`
	Compression CompressionConfig `yaml:"compression" env:"COMPRESSION"`
	Log         LogConfig         `yaml:"log" env:"LOG"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" env:"TELEMETRY"`
}

// ModelConfig configures the default model client.
type ModelConfig struct {
	// Name is the default model identifier, e.g. "gpt-4o".
	Name string `yaml:"name" env:"NAME"`
	// APIKey authenticates against the backend. Never cached or logged.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// BaseURL overrides the backend endpoint.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Timeout bounds a single completion request.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RequestsPerSecond throttles outgoing requests; zero disables.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Temperature       float32 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens         int     `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// CacheConfig configures the completion cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// MaxEntries bounds the local tier.
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
	// RedisAddr enables the shared Redis tier when non-empty.
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
}

// ChatConfig configures orchestration defaults.
type ChatConfig struct {
	// MaxTurns is the default turn budget.
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// TerminationKeyword ends the conversation when it appears in a
	// reply.
	TerminationKeyword string `yaml:"termination_keyword" env:"TERMINATION_KEYWORD"`
	// Introduce prepends a participant introduction message.
	Introduce bool `yaml:"introduce" env:"INTRODUCE"`
}

// CompressionConfig configures history compression.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// TriggerTokens is an absolute token threshold. Mutually exclusive
	// with TriggerRatio.
	TriggerTokens int `yaml:"trigger_tokens" env:"TRIGGER_TOKENS"`
	// TriggerRatio is a fraction of the model's context window.
	TriggerRatio float64 `yaml:"trigger_ratio" env:"TRIGGER_RATIO"`
	// LeaveLast is how many recent messages survive uncompressed.
	LeaveLast int `yaml:"leave_last" env:"LEAVE_LAST"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs.
	OutputPaths  []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// MetricsAddr is the Prometheus scrape listen address.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	// OTLPEndpoint receives trace exports over gRPC.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:        "gpt-4o-mini",
			Timeout:     60 * time.Second,
			Temperature: 0.7,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 1024,
			TTL:        time.Hour,
		},
		Chat: ChatConfig{
			MaxTurns:           10,
			TerminationKeyword: "TERMINATE",
		},
		Compression: CompressionConfig{
			TriggerRatio: 0.75,
			LeaveLast:    4,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "autogen",
			MetricsAddr:  ":9090",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate rejects configurations that cannot work, so a bad deployment
// fails at startup rather than mid-conversation.
func (c *Config) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("config: model.name is required")
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("config: model.timeout must not be negative")
	}
	if c.Model.RequestsPerSecond < 0 {
		return fmt.Errorf("config: model.requests_per_second must not be negative")
	}
	if c.Cache.Enabled && c.Cache.MaxEntries < 1 {
		return fmt.Errorf("config: cache.max_entries must be >= 1 when the cache is enabled")
	}
	if c.Chat.MaxTurns < 1 {
		return fmt.Errorf("config: chat.max_turns must be >= 1")
	}
	if c.Compression.TriggerTokens != 0 && c.Compression.TriggerRatio != 0 {
		return fmt.Errorf("config: compression.trigger_tokens and compression.trigger_ratio are mutually exclusive")
	}
	if c.Compression.TriggerRatio < 0 || c.Compression.TriggerRatio > 1 {
		return fmt.Errorf("config: compression.trigger_ratio must be in [0, 1]")
	}
	if c.Compression.LeaveLast < 0 {
		return fmt.Errorf("config: compression.leave_last must not be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}
