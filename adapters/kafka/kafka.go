package kafka

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

// Writer is a minimal Kafka-like producer.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Fetcher hands out record values per topic.
type Fetcher interface {
	// Watch starts consuming topic.
	Watch(topic string) error
	// Next blocks until a record for topic arrives or ctx ends.
	Next(ctx context.Context, topic string) ([]byte, error)
}

// Binder maps channels to Kafka topics.
type Binder struct {
	Writer  Writer
	Fetcher Fetcher
	Codec   codec.Codec
	Prefix  string

	mu       sync.Mutex
	channels map[string]*Channel
}

var _ messaging.Binder = (*Binder)(nil)

// New creates a Kafka binder. A nil codec defaults to JSON.
func New(w Writer, f Fetcher, cd codec.Codec) *Binder {
	if cd == nil {
		cd = codec.JSON{}
	}

	return &Binder{Writer: w, Fetcher: f, Codec: cd, channels: make(map[string]*Channel)}
}

// Channel is a Kafka topic seen as a message channel.
type Channel struct {
	name  string
	topic string
	b     *Binder
}

var _ messaging.Channel = (*Channel)(nil)

func (c *Channel) Name() string { return c.name }

// Topic returns the Kafka topic backing the channel.
func (c *Channel) Topic() string { return c.topic }

func (c *Channel) Send(ctx context.Context, msg messaging.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := c.b.Codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kafka send %q serialize: %w", c.topic, err)
	}

	var key []byte
	if k, ok := msg.Header(HeaderKey); ok {
		key = []byte(fmt.Sprint(k))
	}

	if err = c.b.Writer.Write(ctx, c.topic, key, val, codec.TransportHeaders(msg, c.b.Codec)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka send %q write: %w", c.topic, err)
	}

	return nil
}

// HeaderKey names the envelope header used as the record key.
const HeaderKey = "kafka_messageKey"

// Poll waits up to timeout for the next record on the channel's topic.
func (c *Channel) Poll(ctx context.Context, timeout time.Duration) (messaging.Envelope, bool, error) {
	if err := ctx.Err(); err != nil {
		return messaging.Envelope{}, false, err
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	val, err := c.b.Fetcher.Next(pctx, c.topic)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return messaging.Envelope{}, false, ctxErr
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return messaging.Envelope{}, false, nil
		}

		return messaging.Envelope{}, false, fmt.Errorf("kafka poll %q: %w", c.topic, err)
	}

	msg, err := c.b.Codec.Unmarshal(val)
	if err != nil {
		return messaging.Envelope{}, false, fmt.Errorf("kafka poll %q decode: %w", c.topic, err)
	}

	return msg, true, nil
}

// Channel returns the channel for name, starting consumption of its topic on first use.
func (b *Binder) Channel(name string) (messaging.Channel, error) {
	if b.Writer == nil || b.Fetcher == nil {
		return nil, fmt.Errorf("kafka channel %q: %w", name, serr.ErrTransportNotConfigured)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[name]; ok {
		return ch, nil
	}

	topic := b.Prefix + name
	if err := b.Fetcher.Watch(topic); err != nil {
		return nil, fmt.Errorf("kafka channel %q watch: %w", name, err)
	}

	ch := &Channel{name: name, topic: topic, b: b}
	b.channels[name] = ch

	return ch, nil
}

func (b *Binder) ForChannel(ch messaging.Channel) (messaging.Poller, error) {
	own, ok := ch.(*Channel)
	if !ok || own.b != b {
		return nil, fmt.Errorf("kafka collector: %w", serr.ErrChannelNotFound)
	}

	return own, nil
}
