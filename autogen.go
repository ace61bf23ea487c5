// Package autogen provides a top-level convenience entry point: build a
// configured model client and logger without wiring the underlying
// packages by hand.
//
//	cfg, _ := config.NewLoader().WithConfigPath("config.yaml").Load()
//	logger, _ := autogen.NewLogger(cfg.Log)
//	client, _ := autogen.NewModelClient(cfg, logger)
package autogen

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/autogen-sub008/config"
	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/llm/openai"
)

// NewLogger builds a zap logger from the log configuration.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	return zapConfig.Build(opts...)
}

// NewModelClient builds the standard model client stack from
// configuration: an OpenAI-compatible backend wrapped with caching and,
// when configured, rate limiting.
func NewModelClient(cfg *config.Config, logger *zap.Logger) (llm.ModelClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	backend := openai.New(openai.Config{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Timeout: cfg.Model.Timeout,
	}, logger)

	opts := []llm.ClientOption{llm.WithLogger(logger)}
	if cfg.Cache.Enabled {
		var rdb *redis.Client
		if cfg.Cache.RedisAddr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.RedisAddr,
				Password: cfg.Cache.RedisPassword,
				DB:       cfg.Cache.RedisDB,
			})
		}
		cache := llm.NewMultiLevelCache(rdb, &llm.CacheConfig{
			LocalMaxSize: cfg.Cache.MaxEntries,
			LocalTTL:     cfg.Cache.TTL,
			RedisTTL:     cfg.Cache.TTL,
			EnableLocal:  true,
			EnableRedis:  rdb != nil,
		}, logger)
		opts = append(opts, llm.WithCache(cache))
	}

	client, err := llm.NewClient(backend, cfg.Model.Name, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Model.RequestsPerSecond > 0 {
		return llm.NewRateLimitedClient(client, cfg.Model.RequestsPerSecond, 1), nil
	}
	return client, nil
}
