package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/next-trace/scg-stream-verifier/codec"
	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
)

// DefaultPollInterval is the pause between basic.get attempts while polling.
const DefaultPollInterval = 25 * time.Millisecond

type PubMsg struct {
	Exchange    string
	RoutingKey  string
	Body        []byte
	Headers     map[string]string
	ContentType string
}

// Publisher sends AMQP messages.
type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Getter declares capture queues and fetches from them.
type Getter interface {
	// Declare binds a private queue to routingKey on exchange and returns its name.
	Declare(ctx context.Context, exchange, routingKey string) (string, error)
	// Get fetches one message; ok is false when the queue is empty.
	Get(ctx context.Context, queue string) (body []byte, ok bool, err error)
}

// Binder maps channels to routing keys on a single exchange.
type Binder struct {
	Publisher    Publisher
	Getter       Getter
	Propagator   HeaderPropagator // optional, for context propagation into headers
	Exchange     string
	Codec        codec.Codec
	PollInterval time.Duration

	mu       sync.Mutex
	channels map[string]*Channel
}

var _ messaging.Binder = (*Binder)(nil)

// HeaderPropagator injects context (e.g. tracing) into outgoing headers.
// Implementations must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}

func New(p Publisher, g Getter, exchange string) *Binder {
	return &Binder{
		Publisher:    p,
		Getter:       g,
		Exchange:     exchange,
		Codec:        codec.JSON{},
		PollInterval: DefaultPollInterval,
		channels:     make(map[string]*Channel),
	}
}

// Channel is a routing key on the binder's exchange.
type Channel struct {
	name  string
	queue string
	b     *Binder
}

var _ messaging.Channel = (*Channel)(nil)

func (c *Channel) Name() string { return c.name }

// Queue returns the capture queue bound to the channel.
func (c *Channel) Queue() string { return c.queue }

func (c *Channel) Send(ctx context.Context, msg messaging.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := c.b.Codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq send %q serialize: %w", c.name, err)
	}

	// copy headers to avoid mutating what the codec produced
	hdrs := codec.TransportHeaders(msg, c.b.Codec)
	if c.b.Propagator != nil {
		c.b.Propagator.Inject(ctx, hdrs)
	}

	m := PubMsg{
		Exchange:    c.b.Exchange,
		RoutingKey:  c.name,
		Body:        body,
		Headers:     hdrs,
		ContentType: c.b.Codec.ContentType(),
	}

	if err := c.b.Publisher.Publish(ctx, m); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq send %q publish: %w", c.name, err)
	}

	return nil
}

// Poll repeatedly tries basic.get on the capture queue until a message
// arrives, the timeout elapses, or ctx ends.
func (c *Channel) Poll(ctx context.Context, timeout time.Duration) (messaging.Envelope, bool, error) {
	deadline := time.Now().Add(timeout)

	interval := c.b.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for {
		body, ok, err := c.b.Getter.Get(ctx, c.queue)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return messaging.Envelope{}, false, err
			}

			return messaging.Envelope{}, false, fmt.Errorf("rabbitmq poll %q: %w", c.queue, err)
		}

		if ok {
			msg, err := c.b.Codec.Unmarshal(body)
			if err != nil {
				return messaging.Envelope{}, false, fmt.Errorf("rabbitmq poll %q decode: %w", c.queue, err)
			}

			return msg, true, nil
		}

		left := time.Until(deadline)
		if left <= 0 {
			return messaging.Envelope{}, false, nil
		}

		wait := min(interval, left)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return messaging.Envelope{}, false, ctx.Err()
		case <-t.C:
		}
	}
}

// Channel returns the channel for name, declaring its capture queue on first use.
func (b *Binder) Channel(name string) (messaging.Channel, error) {
	if b.Publisher == nil || b.Getter == nil {
		return nil, fmt.Errorf("rabbitmq channel %q: %w", name, serr.ErrTransportNotConfigured)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[name]; ok {
		return ch, nil
	}

	queue, err := b.Getter.Declare(context.Background(), b.Exchange, name)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel %q declare: %w", name, err)
	}

	ch := &Channel{name: name, queue: queue, b: b}
	b.channels[name] = ch

	return ch, nil
}

func (b *Binder) ForChannel(ch messaging.Channel) (messaging.Poller, error) {
	own, ok := ch.(*Channel)
	if !ok || own.b != b {
		return nil, fmt.Errorf("rabbitmq collector: %w", serr.ErrChannelNotFound)
	}

	return own, nil
}
