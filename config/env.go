package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays STREAM_* environment variables onto cfg. Unparseable values are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("STREAM_BINDER"); v != "" {
		cfg.Binder = strings.ToLower(v)
	}
	if v := os.Getenv("STREAM_BINDINGS_FILE"); v != "" {
		cfg.BindingsFile = v
	}
	if v := os.Getenv("STREAM_RECEIVE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReceiveTimeout = d
		}
	}
	if v := os.Getenv("STREAM_CONTENT_TYPE"); v != "" {
		cfg.ContentType = v
	}
	if v := os.Getenv("STREAM_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("STREAM_AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("STREAM_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, p)
			}
		}
	}
	if v := os.Getenv("STREAM_REGISTRY_URL"); v != "" {
		cfg.RegistryURL = v
	}
	if v := os.Getenv("STREAM_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("STREAM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STREAM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("STREAM_BREAKER_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Breaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("STREAM_BREAKER_SUCCESS_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Breaker.SuccessThreshold = n
		}
	}
	if v := os.Getenv("STREAM_BREAKER_OPEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Breaker.OpenTimeout = d
		}
	}
}
