package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
)

// DefaultReceiveTimeout bounds Receive when no timeout is given.
const DefaultReceiveTimeout = 5 * time.Second

// SendFunc delivers a message to a resolved channel.
type SendFunc func(ctx context.Context, ch messaging.Channel, msg messaging.Envelope) error

// SendMiddleware wraps channel delivery. Middlewares run in registration order.
type SendMiddleware func(next SendFunc) SendFunc

// ReceiveObserver is told about every receive outcome.
type ReceiveObserver interface {
	ObserveReceive(channel string, received bool, err error)
}

// Option configures StubMessages.
type Option func(*StubMessages)

// WithSendMiddleware registers delivery middleware.
func WithSendMiddleware(mw ...SendMiddleware) Option {
	return func(s *StubMessages) { s.sendMW = append(s.sendMW, mw...) }
}

// WithReceiveObserver registers a receive observer.
func WithReceiveObserver(o ReceiveObserver) Option {
	return func(s *StubMessages) { s.recvObs = o }
}

// StubMessages relays contract-test messages to and from bound channels.
//
// It holds no mutable state of its own; the binding source, registry and
// collector are expected to be safe for concurrent use.
type StubMessages struct {
	resolver  *Resolver
	channels  messaging.ChannelRegistry
	collector messaging.Collector
	logger    *slog.Logger

	sendMW  []SendMiddleware
	recvObs ReceiveObserver
	send    SendFunc
}

var _ messaging.MessageVerifier = (*StubMessages)(nil)

// New constructs a relay over the given bindings, channel registry and collector.
func New(
	bindings messaging.BindingSource,
	channels messaging.ChannelRegistry,
	collector messaging.Collector,
	logger *slog.Logger,
	opts ...Option,
) *StubMessages {
	if logger == nil {
		logger = slog.Default()
	}

	s := &StubMessages{
		resolver:  NewResolver(bindings, logger),
		channels:  channels,
		collector: collector,
		logger:    logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.send = deliver
	for i := len(s.sendMW) - 1; i >= 0; i-- {
		s.send = s.sendMW[i](s.send)
	}

	return s
}

// Resolver exposes the destination resolver used by the relay.
func (s *StubMessages) Resolver() *Resolver { return s.resolver }

// Send wraps payload and headers in an envelope and sends it to destination.
func (s *StubMessages) Send(ctx context.Context, payload any, headers map[string]any, destination string) error {
	return s.SendMessage(ctx, NewMessage(payload, headers), destination)
}

// SendMessage sends a prebuilt envelope to destination.
// Failures are logged with the message and destination before being returned.
func (s *StubMessages) SendMessage(ctx context.Context, msg messaging.Envelope, destination string) error {
	ch, err := s.lookup(ctx, destination)
	if err != nil {
		s.logger.ErrorContext(ctx, "could not send message",
			"message", describe(msg), "destination", destination, "err", err)

		return err
	}

	if err := s.send(ctx, ch, msg); err != nil {
		s.logger.ErrorContext(ctx, "could not send message",
			"message", describe(msg), "destination", destination, "channel", ch.Name(), "err", err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("send to %q: %w", destination, errors.Join(serr.ErrDeliveryFailed, err))
	}

	return nil
}

// Receive waits up to DefaultReceiveTimeout for a message on destination.
func (s *StubMessages) Receive(ctx context.Context, destination string) (messaging.Envelope, bool, error) {
	return s.ReceiveWithin(ctx, destination, DefaultReceiveTimeout)
}

// ReceiveWithin waits up to timeout for the next message on destination.
// An elapsed timeout is not an error. The returned envelope is a fresh copy
// of what the binder captured.
func (s *StubMessages) ReceiveWithin(
	ctx context.Context,
	destination string,
	timeout time.Duration,
) (messaging.Envelope, bool, error) {
	msg, ok, name, err := s.poll(ctx, destination, timeout)
	if s.recvObs != nil {
		s.recvObs.ObserveReceive(name, ok, err)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "could not read message", "destination", destination, "err", err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return messaging.Envelope{}, false, err
		}

		return messaging.Envelope{}, false, fmt.Errorf("receive from %q: %w", destination, errors.Join(serr.ErrReceiveFailed, err))
	}

	if !ok {
		return messaging.Envelope{}, false, nil
	}

	return NewMessage(msg.Payload(), msg.Headers()), true, nil
}

func (s *StubMessages) poll(
	ctx context.Context,
	destination string,
	timeout time.Duration,
) (messaging.Envelope, bool, string, error) {
	ch, err := s.lookup(ctx, destination)
	if err != nil {
		return messaging.Envelope{}, false, destination, err
	}

	if s.collector == nil {
		return messaging.Envelope{}, false, ch.Name(), fmt.Errorf("collector: %w", serr.ErrTransportNotConfigured)
	}

	poller, err := s.collector.ForChannel(ch)
	if err != nil {
		return messaging.Envelope{}, false, ch.Name(), err
	}

	msg, ok, err := poller.Poll(ctx, timeout)

	return msg, ok, ch.Name(), err
}

func (s *StubMessages) lookup(ctx context.Context, destination string) (messaging.Channel, error) {
	name := s.resolver.Resolve(ctx, destination)

	if s.channels == nil {
		return nil, fmt.Errorf("channel %q: %w", name, errors.Join(serr.ErrChannelLookupFailed, serr.ErrTransportNotConfigured))
	}

	ch, err := s.channels.Channel(name)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", name, errors.Join(serr.ErrChannelLookupFailed, err))
	}

	return ch, nil
}

func deliver(ctx context.Context, ch messaging.Channel, msg messaging.Envelope) error {
	return ch.Send(ctx, msg)
}

func describe(msg messaging.Envelope) string {
	return fmt.Sprintf("Envelope[payload=%v, headers=%v]", msg.Payload(), msg.Headers())
}
