package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http/httptest"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/next-trace/scg-stream-verifier/adapters/inmemory"
	"github.com/next-trace/scg-stream-verifier/circuitbreaker"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
	"github.com/next-trace/scg-stream-verifier/metrics"
	"github.com/next-trace/scg-stream-verifier/stream"
)

// Options configure a StreamSourceBase. Zero values pick in-memory defaults.
type Options struct {
	// Bindings defaults to StreamBindings.
	Bindings messaging.BindingSource
	// Binder supplies channels and their pollers; defaults to an in-memory binder.
	Binder messaging.Binder
	// Registerer enables Prometheus metrics for the relay and breakers.
	Registerer prometheus.Registerer
	Breaker    []circuitbreaker.Option
	Logger     *slog.Logger
	// Addr is the host:port the application listens on; empty picks a
	// loopback port.
	Addr string
}

// StreamSourceBase wires the test application, its metrics stream and the
// message verifier contracts use.
type StreamSourceBase struct {
	App      *TestApplication
	Stream   *MetricsStream
	Breakers *circuitbreaker.Registry

	verifier *stream.StubMessages
	addr     string
	server   *httptest.Server
	logger   *slog.Logger
}

// NewStreamSourceBase wires the application without starting it.
func NewStreamSourceBase(opts Options) *StreamSourceBase {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bindings := opts.Bindings
	if bindings == nil {
		bindings = StreamBindings()
	}

	binder := opts.Binder
	if binder == nil {
		binder = inmemory.New([]string{StreamOutput})
	}

	ms := NewMetricsStream(binder, ServiceID, logger)

	var (
		observer  circuitbreaker.Observer = ms
		relayOpts []stream.Option
	)

	if opts.Registerer != nil {
		m := metrics.New(opts.Registerer)
		observer = circuitbreaker.Observers(ms, m)
		relayOpts = append(relayOpts, stream.WithSendMiddleware(m.SendMiddleware()), stream.WithReceiveObserver(m))
	}

	breakers := circuitbreaker.NewRegistry(observer, opts.Breaker...)

	return &StreamSourceBase{
		App:      NewTestApplication(breakers, logger),
		Stream:   ms,
		Breakers: breakers,
		verifier: stream.New(bindings, binder, binder, logger, relayOpts...),
		addr:     opts.Addr,
		logger:   logger,
	}
}

// Start serves the application on Options.Addr (a loopback port when empty)
// and records its address as the metrics origin.
func (b *StreamSourceBase) Start() error {
	if b.server != nil {
		return errors.New("harness: already started")
	}

	srv := httptest.NewUnstartedServer(b.App)

	if b.addr != "" {
		ln, err := net.Listen("tcp", b.addr)
		if err != nil {
			srv.Close()
			return fmt.Errorf("harness: listen on %s: %w", b.addr, err)
		}

		_ = srv.Listener.Close()
		srv.Listener = ln
	}

	srv.Start()
	b.server = srv

	host, port, err := net.SplitHostPort(b.server.Listener.Addr().String())
	if err != nil {
		return fmt.Errorf("harness: listener address: %w", err)
	}

	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("harness: listener port: %w", err)
	}

	b.Stream.SetAddress(host, p)
	b.logger.Info("test application started", "url", b.server.URL)

	return nil
}

// URL is the application base URL, empty before Start.
func (b *StreamSourceBase) URL() string {
	if b.server == nil {
		return ""
	}

	return b.server.URL
}

func (b *StreamSourceBase) Close() {
	if b.server != nil {
		b.server.Close()
		b.server = nil
	}
}

// Verifier returns the message verifier contracts send and receive through.
func (b *StreamSourceBase) Verifier() *stream.StubMessages { return b.verifier }

// CreateMetricsData runs the hello command once and publishes the resulting metrics.
func (b *StreamSourceBase) CreateMetricsData(ctx context.Context) error {
	if _, err := b.App.Hello(ctx); err != nil {
		return err
	}

	return b.Stream.Publish(ctx)
}

func (b *StreamSourceBase) AssertOrigin(v any) error { return CheckOrigin(v, ServiceID) }

func (b *StreamSourceBase) AssertData(v any) error {
	return CheckData(v, HelloGroup, ServiceID+"."+HelloCommand)
}

func (b *StreamSourceBase) AssertEvent(v any) error { return CheckEvent(v) }
