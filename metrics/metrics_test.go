package metrics_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/next-trace/scg-stream-verifier/adapters/inmemory"
	"github.com/next-trace/scg-stream-verifier/circuitbreaker"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
	"github.com/next-trace/scg-stream-verifier/metrics"
	"github.com/next-trace/scg-stream-verifier/stream"
)

func TestRelayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	b := inmemory.New([]string{"out"})
	s := stream.New(messaging.StaticBindings{"out": {Destination: "orders"}}, b, b, nil,
		stream.WithSendMiddleware(m.SendMiddleware()),
		stream.WithReceiveObserver(m))

	if err := s.Send(t.Context(), "hello", nil, "orders"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, ok, err := s.ReceiveWithin(t.Context(), "orders", time.Second); err != nil || !ok {
		t.Fatalf("receive: ok=%v err=%v", ok, err)
	}

	if _, ok, _ := s.ReceiveWithin(t.Context(), "orders", time.Millisecond); ok {
		t.Fatalf("expected empty channel")
	}

	b.Reject("out", errors.New("rejected"))
	_ = s.Send(t.Context(), "again", nil, "orders")

	want := `
# HELP stream_relay_receives_total Receive attempts, by channel and outcome
# TYPE stream_relay_receives_total counter
stream_relay_receives_total{channel="out",outcome="received"} 1
stream_relay_receives_total{channel="out",outcome="timeout"} 1
# HELP stream_relay_sends_total Messages handed to bound channels, by channel and outcome
# TYPE stream_relay_sends_total counter
stream_relay_sends_total{channel="out",outcome="error"} 1
stream_relay_sends_total{channel="out",outcome="ok"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"stream_relay_sends_total", "stream_relay_receives_total")
	if err != nil {
		t.Fatal(err)
	}
}

func TestBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	br := circuitbreaker.New(circuitbreaker.Key{Group: "TestApplication", Command: "application.hello"}, m,
		circuitbreaker.WithFailureThreshold(1))

	_ = br.Execute(t.Context(), func(context.Context) error { return nil })
	_ = br.Execute(t.Context(), func(context.Context) error { return errors.New("down") })
	_ = br.Execute(t.Context(), func(context.Context) error { return nil })

	if n := testutil.CollectAndCount(reg, "circuit_command_executions_total"); n != 3 {
		t.Fatalf("want 3 outcome series, got %d", n)
	}

	if n := testutil.CollectAndCount(reg, "circuit_breaker_state"); n != 1 {
		t.Fatalf("want one state series, got %d", n)
	}
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()

	metrics.New(reg)
}
