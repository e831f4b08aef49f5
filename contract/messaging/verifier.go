package messaging

import (
	"context"
	"time"
)

// MessageVerifier is the message exchange used by generated contract tests.
//
// Send and SendMessage block until the channel accepts or rejects the message.
// Receive and ReceiveWithin block until a message arrives or the timeout
// elapses; an elapsed timeout yields ok == false and a nil error.
type MessageVerifier interface {
	Send(ctx context.Context, payload any, headers map[string]any, destination string) error
	SendMessage(ctx context.Context, msg Envelope, destination string) error
	Receive(ctx context.Context, destination string) (Envelope, bool, error)
	ReceiveWithin(ctx context.Context, destination string, timeout time.Duration) (Envelope, bool, error)
}
