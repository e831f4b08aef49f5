package nats

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

// Conn is a minimal NATS-like connection decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Conn interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
	// SubscribeSync opens a synchronous subscription on subject.
	SubscribeSync(subject string) (Subscription, error)
}

// Subscription yields messages received on a subject.
type Subscription interface {
	// NextMsg waits up to timeout. It must return ErrTimeout when nothing arrived.
	NextMsg(timeout time.Duration) ([]byte, error)
	Unsubscribe() error
}

// ErrTimeout is returned by Subscription.NextMsg when no message arrived in time.
var ErrTimeout = errors.New("nats: timeout")

// Binder maps channels to NATS subjects. Looking a channel up subscribes to
// its subject, so messages published afterwards can be polled back.
type Binder struct {
	Conn   Conn
	Codec  codec.Codec
	Prefix string

	mu       sync.Mutex
	channels map[string]*Channel
}

var _ messaging.Binder = (*Binder)(nil)

// New creates a NATS binder over c. A nil codec defaults to JSON.
func New(c Conn, cd codec.Codec) *Binder {
	if cd == nil {
		cd = codec.JSON{}
	}

	return &Binder{Conn: c, Codec: cd, channels: make(map[string]*Channel)}
}

// Channel is a NATS subject seen as a message channel.
type Channel struct {
	name    string
	subject string
	b       *Binder
	sub     Subscription
}

var _ messaging.Channel = (*Channel)(nil)

func (c *Channel) Name() string { return c.name }

// Subject returns the NATS subject backing the channel.
func (c *Channel) Subject() string { return c.subject }

func (c *Channel) Send(ctx context.Context, msg messaging.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := c.b.Codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("nats send %q serialize: %w", c.subject, err)
	}

	if err := c.b.Conn.Publish(c.subject, body, codec.TransportHeaders(msg, c.b.Codec)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats send %q publish: %w", c.subject, err)
	}

	return nil
}

// Poll waits for the next message on the channel's subscription.
// The wait is capped by ctx's deadline when that comes first.
func (c *Channel) Poll(ctx context.Context, timeout time.Duration) (messaging.Envelope, bool, error) {
	if err := ctx.Err(); err != nil {
		return messaging.Envelope{}, false, err
	}

	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}

	if timeout <= 0 {
		timeout = time.Millisecond
	}

	data, err := c.sub.NextMsg(timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return messaging.Envelope{}, false, ctxErr
			}

			return messaging.Envelope{}, false, nil
		}

		return messaging.Envelope{}, false, fmt.Errorf("nats poll %q: %w", c.subject, err)
	}

	msg, err := c.b.Codec.Unmarshal(data)
	if err != nil {
		return messaging.Envelope{}, false, fmt.Errorf("nats poll %q decode: %w", c.subject, err)
	}

	return msg, true, nil
}

// Channel returns the channel for name, subscribing to its subject on first use.
func (b *Binder) Channel(name string) (messaging.Channel, error) {
	if b.Conn == nil {
		return nil, fmt.Errorf("nats channel %q: %w", name, serr.ErrTransportNotConfigured)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[name]; ok {
		return ch, nil
	}

	subject := b.Prefix + name

	sub, err := b.Conn.SubscribeSync(subject)
	if err != nil {
		return nil, fmt.Errorf("nats channel %q subscribe: %w", name, err)
	}

	ch := &Channel{name: name, subject: subject, b: b, sub: sub}
	b.channels[name] = ch

	return ch, nil
}

func (b *Binder) ForChannel(ch messaging.Channel) (messaging.Poller, error) {
	own, ok := ch.(*Channel)
	if !ok || own.b != b {
		return nil, fmt.Errorf("nats collector: %w", serr.ErrChannelNotFound)
	}

	return own, nil
}

// Close unsubscribes every channel.
func (b *Binder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error

	for name, ch := range b.channels {
		if err := ch.sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("nats unsubscribe %q: %w", name, err))
		}

		delete(b.channels, name)
	}

	return errors.Join(errs...)
}
