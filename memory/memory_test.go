package memory

import (
	"testing"
	"time"

	"github.com/next-trace/scg-stream-verifier/contract/messaging"
)

func TestNew_RoundTrip(t *testing.T) {
	v, b, cleanup := New(messaging.StaticBindings{"out": {Destination: "orders"}})
	defer cleanup()

	if err := v.Send(t.Context(), "hello", map[string]any{}, "orders"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if n := b.Declare("out").Len(); n != 1 {
		t.Fatalf("expected the message on channel out, got %d", n)
	}

	msg, ok, err := v.ReceiveWithin(t.Context(), "orders", time.Second)
	if err != nil || !ok {
		t.Fatalf("receive: ok=%v err=%v", ok, err)
	}

	if msg.Payload() != "hello" || len(msg.Headers()) != 0 {
		t.Fatalf("unexpected message: %v %v", msg.Payload(), msg.Headers())
	}
}

func TestCleanupDrains(t *testing.T) {
	v, b, cleanup := New(messaging.StaticBindings{"out": {Destination: "orders"}})

	for range 3 {
		if err := v.Send(t.Context(), "x", nil, "orders"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	cleanup()

	if n := b.Declare("out").Len(); n != 0 {
		t.Fatalf("cleanup left %d messages", n)
	}
}
