package messaging

import (
	"context"
	"time"
)

// Channel is a named endpoint messages are sent through.
// Implementations must be safe for concurrent use.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Envelope) error
}

// ChannelRegistry looks channels up by name. A missing name must fail with an
// error wrapping errors.ErrChannelNotFound.
type ChannelRegistry interface {
	Channel(name string) (Channel, error)
}

// Poller hands out the next message captured for a channel.
// Poll blocks up to timeout; ok is false when nothing arrived in time.
type Poller interface {
	Poll(ctx context.Context, timeout time.Duration) (msg Envelope, ok bool, err error)
}

// Collector exposes the messages a binder captured per channel.
type Collector interface {
	ForChannel(ch Channel) (Poller, error)
}

// Binder is the combined registry and collector most adapters provide.
type Binder interface {
	ChannelRegistry
	Collector
}
