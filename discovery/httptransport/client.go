package httptransport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// ClientConfig holds HTTP client tuning for registry traffic.
type ClientConfig struct {
	// Connection pooling
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	// Timeouts
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	// Timeout bounds a whole request including the body read.
	Timeout time.Duration

	KeepAlive     time.Duration
	MinTLSVersion uint16
}

// DefaultClientConfig is tuned for a handful of registry peers polled on a schedule.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,

		DialTimeout:           5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		Timeout:               30 * time.Second,

		KeepAlive:     30 * time.Second,
		MinTLSVersion: tls.VersionTLS12,
	}
}

// NewHTTPClient builds a pooled *http.Client from cfg.
func NewHTTPClient(cfg ClientConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,

		TLSClientConfig:   &tls.Config{MinVersion: cfg.MinTLSVersion},
		ForceAttemptHTTP2: true,
	}

	return &http.Client{Transport: transport, Timeout: cfg.Timeout}
}
