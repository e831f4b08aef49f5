package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/next-trace/scg-stream-verifier/contract/messaging"
	"github.com/next-trace/scg-stream-verifier/stream"
)

// Binder names accepted in Config.Binder.
const (
	BinderInMemory = "inmemory"
	BinderNATS     = "nats"
	BinderRabbitMQ = "rabbitmq"
	BinderKafka    = "kafka"
)

type BreakerConfig struct {
	FailureThreshold int64
	SuccessThreshold int64
	OpenTimeout      time.Duration
}

type Config struct {
	Binder         string
	BindingsFile   string
	ReceiveTimeout time.Duration
	ContentType    string

	NATSURL      string
	AMQPURL      string
	KafkaBrokers []string

	RegistryURL string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	Breaker BreakerConfig
}

func Default() Config {
	return Config{
		Binder:         BinderInMemory,
		ReceiveTimeout: stream.DefaultReceiveTimeout,
		ContentType:    "application/json",
		HTTPAddr:       "127.0.0.1:0",
		LogLevel:       "info",
		LogFormat:      "text",
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      5 * time.Second,
		},
	}
}

// Load returns the defaults overlaid with the environment.
func Load() (Config, error) {
	cfg := Default()
	FromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	known := []string{BinderInMemory, BinderNATS, BinderRabbitMQ, BinderKafka}
	if !slices.Contains(known, c.Binder) {
		return fmt.Errorf("config: unknown binder %q (want one of %s)", c.Binder, strings.Join(known, ", "))
	}

	switch {
	case c.Binder == BinderNATS && c.NATSURL == "":
		return fmt.Errorf("config: STREAM_NATS_URL required for nats binder")
	case c.Binder == BinderRabbitMQ && c.AMQPURL == "":
		return fmt.Errorf("config: STREAM_AMQP_URL required for rabbitmq binder")
	case c.Binder == BinderKafka && len(c.KafkaBrokers) == 0:
		return fmt.Errorf("config: STREAM_KAFKA_BROKERS required for kafka binder")
	case c.ReceiveTimeout <= 0:
		return fmt.Errorf("config: receive timeout must be positive")
	}

	return nil
}

// Bindings returns the configured binding source. Without a bindings file
// every destination resolves to itself.
func (c Config) Bindings() messaging.BindingSource {
	if c.BindingsFile == "" {
		return messaging.StaticBindings{}
	}

	return FileBindings{Path: c.BindingsFile}
}

// Logger builds a slog logger from LogLevel and LogFormat.
func (c Config) Logger() *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
