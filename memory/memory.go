package memory

import (
	"log/slog"

	"github.com/next-trace/scg-stream-verifier/adapters/inmemory"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
	"github.com/next-trace/scg-stream-verifier/stream"
)

// New constructs a message verifier backed by the in-memory binder, with one
// channel declared per binding key. The cleanup drains every channel.
func New(bindings messaging.StaticBindings, opts ...stream.Option) (*stream.StubMessages, *inmemory.Binder, func()) {
	names := make([]string, 0, len(bindings))
	for k := range bindings {
		names = append(names, k)
	}

	b := inmemory.New(names)
	v := stream.New(bindings, b, b, slog.Default(), opts...)

	cleanup := func() { b.Drain() }

	return v, b, cleanup
}
