// Package metrics exports relay and circuit-breaker activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/next-trace/scg-stream-verifier/circuitbreaker"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
	"github.com/next-trace/scg-stream-verifier/stream"
)

// Metrics holds the collectors. Create one per registry.
type Metrics struct {
	sends         *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	receives      *prometheus.CounterVec
	commands      *prometheus.CounterVec
	commandTiming *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec
}

var (
	_ stream.ReceiveObserver  = (*Metrics)(nil)
	_ circuitbreaker.Observer = (*Metrics)(nil)
)

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	f := promauto.With(reg)

	return &Metrics{
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_relay_sends_total",
			Help: "Messages handed to bound channels, by channel and outcome",
		}, []string{"channel", "outcome"}), // ok, error

		sendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stream_relay_send_duration_seconds",
			Help:    "Time spent delivering a message to a channel",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		receives: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_relay_receives_total",
			Help: "Receive attempts, by channel and outcome",
		}, []string{"channel", "outcome"}), // received, timeout, error

		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_command_executions_total",
			Help: "Command executions through circuit breakers, by outcome",
		}, []string{"group", "command", "outcome"}),

		commandTiming: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "circuit_command_latency_seconds",
			Help:    "Command execution latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"group", "command"}),

		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Breaker position: 0 closed, 1 open, 2 half-open",
		}, []string{"group", "command"}),
	}
}

// SendMiddleware counts and times every channel delivery.
func (m *Metrics) SendMiddleware() stream.SendMiddleware {
	return func(next stream.SendFunc) stream.SendFunc {
		return func(ctx context.Context, ch messaging.Channel, msg messaging.Envelope) error {
			start := time.Now()
			err := next(ctx, ch, msg)

			m.sendDuration.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())

			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.sends.WithLabelValues(ch.Name(), outcome).Inc()

			return err
		}
	}
}

func (m *Metrics) ObserveReceive(channel string, received bool, err error) {
	outcome := "timeout"

	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		outcome = "error"
	case err != nil:
		outcome = "canceled"
	case received:
		outcome = "received"
	}

	m.receives.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) CommandExecuted(ex circuitbreaker.Execution) {
	m.commands.WithLabelValues(ex.Key.Group, ex.Key.Command, string(ex.Outcome)).Inc()
	m.commandTiming.WithLabelValues(ex.Key.Group, ex.Key.Command).Observe(ex.Latency.Seconds())
}

func (m *Metrics) StateChanged(key circuitbreaker.Key, _, to circuitbreaker.State) {
	m.breakerState.WithLabelValues(key.Group, key.Command).Set(float64(to))
}
