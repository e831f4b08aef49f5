package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
)

// DefaultCapacity is the number of messages a channel buffers before Send blocks.
const DefaultCapacity = 64

// Channel is a buffered in-memory channel. Messages sent to it are captured
// and handed out again by its poller, in send order.
type Channel struct {
	name  string
	queue chan messaging.Envelope

	mu     sync.RWMutex
	reject error
}

var _ messaging.Channel = (*Channel)(nil)

func (c *Channel) Name() string { return c.name }

// Send captures msg. It blocks while the buffer is full, until ctx ends.
func (c *Channel) Send(ctx context.Context, msg messaging.Envelope) error {
	c.mu.RLock()
	reject := c.reject
	c.mu.RUnlock()

	if reject != nil {
		return reject
	}

	select {
	case c.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll returns the oldest captured message, waiting up to timeout.
func (c *Channel) Poll(ctx context.Context, timeout time.Duration) (messaging.Envelope, bool, error) {
	select {
	case msg := <-c.queue:
		return msg, true, nil
	default:
	}

	if timeout <= 0 {
		return messaging.Envelope{}, false, nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg := <-c.queue:
		return msg, true, nil
	case <-t.C:
		return messaging.Envelope{}, false, nil
	case <-ctx.Done():
		return messaging.Envelope{}, false, ctx.Err()
	}
}

// Len reports how many messages are waiting.
func (c *Channel) Len() int { return len(c.queue) }

// Binder is a thread-safe in-memory channel registry and collector.
// Use it for tests and examples.
type Binder struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	capacity int
	strict   bool
}

var _ messaging.Binder = (*Binder)(nil)

// Option configures a Binder.
type Option func(*Binder)

// WithCapacity sets the per-channel buffer size.
func WithCapacity(n int) Option {
	return func(b *Binder) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// Strict makes lookups of undeclared channels fail instead of creating them.
func Strict() Option { return func(b *Binder) { b.strict = true } }

// New creates a binder, declaring the named channels up front.
func New(names []string, opts ...Option) *Binder {
	b := &Binder{channels: make(map[string]*Channel), capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(b)
	}

	for _, n := range names {
		b.declare(n)
	}

	return b
}

// Declare makes sure a channel with the given name exists and returns it.
func (b *Binder) Declare(name string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.declare(name)
}

func (b *Binder) declare(name string) *Channel {
	if ch, ok := b.channels[name]; ok {
		return ch
	}

	ch := &Channel{name: name, queue: make(chan messaging.Envelope, b.capacity)}
	b.channels[name] = ch

	return ch
}

// Channel returns the named channel. In strict mode undeclared names fail
// with ErrChannelNotFound; otherwise they are declared on first use.
func (b *Binder) Channel(name string) (messaging.Channel, error) {
	b.mu.RLock()
	ch, ok := b.channels[name]
	b.mu.RUnlock()

	if ok {
		return ch, nil
	}

	if b.strict {
		return nil, fmt.Errorf("inmemory channel %q: %w", name, serr.ErrChannelNotFound)
	}

	return b.Declare(name), nil
}

// ForChannel returns the poller for a channel created by this binder.
func (b *Binder) ForChannel(ch messaging.Channel) (messaging.Poller, error) {
	if ch == nil {
		return nil, fmt.Errorf("inmemory collector: %w", serr.ErrChannelNotFound)
	}

	b.mu.RLock()
	own, ok := b.channels[ch.Name()]
	b.mu.RUnlock()

	if !ok || own != ch {
		return nil, fmt.Errorf("inmemory collector %q: %w", ch.Name(), serr.ErrChannelNotFound)
	}

	return own, nil
}

// Reject makes the named channel refuse every send with err.
// A nil err restores normal delivery.
func (b *Binder) Reject(name string, err error) {
	ch := b.Declare(name)

	ch.mu.Lock()
	ch.reject = err
	ch.mu.Unlock()
}

// Drain discards every captured message on every channel.
func (b *Binder) Drain() {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.channels {
		for {
			select {
			case <-ch.queue:
				continue
			default:
			}

			break
		}
	}
}
