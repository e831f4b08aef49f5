package harness

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/next-trace/scg-stream-verifier/circuitbreaker"
	"github.com/next-trace/scg-stream-verifier/codec"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
	"github.com/next-trace/scg-stream-verifier/stream"
)

const (
	// StreamDestination is where command metrics are published.
	StreamDestination = "springCloudHystrixStream"
	// StreamOutput is the channel bound to StreamDestination.
	StreamOutput = "hystrixStreamOutput"
	// StreamEvent is the event name carried by every metrics message.
	StreamEvent = "message"
	// CommandType is the data type of command metrics.
	CommandType = "HystrixCommand"
)

// StreamBindings binds StreamOutput to StreamDestination.
func StreamBindings() messaging.StaticBindings {
	return messaging.StaticBindings{StreamOutput: {Destination: StreamDestination, ContentType: codec.ContentTypeJSON}}
}

// Origin identifies the publishing instance.
type Origin struct {
	Host      string
	Port      int
	ServiceID string
	ID        string
}

type commandStats struct {
	success, failure, shortCircuited, rejected, fallback int64

	latencySum   time.Duration
	latencyCount int64
	state        circuitbreaker.State
}

// MetricsStream accumulates breaker executions and publishes one message per
// command on the StreamOutput channel.
type MetricsStream struct {
	channels messaging.ChannelRegistry
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	origin   Origin
	commands map[circuitbreaker.Key]*commandStats
}

var _ circuitbreaker.Observer = (*MetricsStream)(nil)

// NewMetricsStream creates a stream for serviceID. The origin id is random.
func NewMetricsStream(channels messaging.ChannelRegistry, serviceID string, logger *slog.Logger) *MetricsStream {
	if logger == nil {
		logger = slog.Default()
	}

	return &MetricsStream{
		channels: channels,
		logger:   logger,
		now:      time.Now,
		origin:   Origin{Host: "localhost", ServiceID: serviceID, ID: serviceID + ":" + uuid.NewString()},
		commands: make(map[circuitbreaker.Key]*commandStats),
	}
}

// SetAddress records where the application listens.
func (m *MetricsStream) SetAddress(host string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.origin.Host, m.origin.Port = host, port
}

func (m *MetricsStream) Origin() Origin {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.origin
}

func (m *MetricsStream) stats(key circuitbreaker.Key) *commandStats {
	s, ok := m.commands[key]
	if !ok {
		s = &commandStats{}
		m.commands[key] = s
	}

	return s
}

func (m *MetricsStream) CommandExecuted(ex circuitbreaker.Execution) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats(ex.Key)
	s.state = ex.State
	s.latencySum += ex.Latency
	s.latencyCount++

	switch ex.Outcome {
	case circuitbreaker.OutcomeSuccess:
		s.success++
	case circuitbreaker.OutcomeFailure:
		s.failure++
	case circuitbreaker.OutcomeShortCircuited:
		s.shortCircuited++
	case circuitbreaker.OutcomeRejected:
		s.rejected++
	case circuitbreaker.OutcomeFallback:
		s.fallback++
		s.failure++
	}
}

func (m *MetricsStream) StateChanged(key circuitbreaker.Key, _, to circuitbreaker.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats(key).state = to
}

// Messages renders the current metrics, one message per command, ordered by key.
func (m *MetricsStream) Messages() []messaging.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]circuitbreaker.Key, 0, len(m.commands))
	for k := range m.commands {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, func(a, b circuitbreaker.Key) int { return cmp.Compare(a.String(), b.String()) })

	out := make([]messaging.Envelope, 0, len(keys))
	for _, k := range keys {
		payload := map[string]any{
			"origin": m.originData(),
			"data":   m.commandData(k, m.commands[k]),
			"event":  StreamEvent,
		}

		out = append(out, stream.NewMessage(payload, map[string]any{codec.HeaderContentType: codec.ContentTypeJSON}))
	}

	return out
}

// originData must be called with mu held.
func (m *MetricsStream) originData() map[string]any {
	return map[string]any{
		"host":      m.origin.Host,
		"port":      m.origin.Port,
		"serviceId": m.origin.ServiceID,
		"id":        m.origin.ID,
	}
}

// commandData must be called with mu held.
func (m *MetricsStream) commandData(k circuitbreaker.Key, s *commandStats) map[string]any {
	errs := s.failure + s.shortCircuited + s.rejected
	total := s.success + errs

	errPct := int64(0)
	if total > 0 {
		errPct = int64(math.Round(float64(errs) * 100 / float64(total)))
	}

	return map[string]any{
		"type":                          CommandType,
		"name":                          m.origin.ServiceID + "." + k.Command,
		"group":                         k.Group,
		"currentTime":                   m.now().UnixMilli(),
		"isCircuitBreakerOpen":          s.state == circuitbreaker.StateOpen,
		"errorPercentage":               errPct,
		"errorCount":                    errs,
		"requestCount":                  total,
		"rollingCountSuccess":           s.success,
		"rollingCountFailure":           s.failure,
		"rollingCountShortCircuited":    s.shortCircuited,
		"rollingCountSemaphoreRejected": s.rejected,
		"rollingCountFallbackSuccess":   s.fallback,
		"latencyExecute_mean":           s.meanLatencyMillis(),
	}
}

func (s *commandStats) meanLatencyMillis() int64 {
	if s.latencyCount == 0 {
		return 0
	}

	return (s.latencySum / time.Duration(s.latencyCount)).Milliseconds()
}

// Publish sends the current metrics to the StreamOutput channel.
func (m *MetricsStream) Publish(ctx context.Context) error {
	msgs := m.Messages()
	if len(msgs) == 0 {
		return nil
	}

	ch, err := m.channels.Channel(StreamOutput)
	if err != nil {
		return fmt.Errorf("metrics stream: %w", err)
	}

	for _, msg := range msgs {
		if err := ch.Send(ctx, msg); err != nil {
			m.logger.ErrorContext(ctx, "could not publish metrics", "channel", StreamOutput, "err", err)
			return fmt.Errorf("metrics stream: %w", err)
		}
	}

	return nil
}

// Run publishes every interval until ctx ends. Publish failures are logged
// and do not stop the loop.
func (m *MetricsStream) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.Publish(ctx); err != nil && ctx.Err() == nil {
				m.logger.WarnContext(ctx, "metrics publish failed", "err", err)
			}
		}
	}
}
