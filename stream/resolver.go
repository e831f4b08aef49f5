package stream

import (
	"context"
	"log/slog"

	"github.com/next-trace/scg-stream-verifier/contract/messaging"
)

// Resolver maps a destination name to the binding key configured for it.
type Resolver struct {
	bindings messaging.BindingSource
	logger   *slog.Logger
}

// NewResolver constructs a Resolver. A nil source behaves as an empty mapping.
func NewResolver(bindings messaging.BindingSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{bindings: bindings, logger: logger}
}

// Resolve returns the key of the first binding whose destination equals
// destination, or destination itself when nothing matches. It never fails:
// an unavailable binding source is logged and treated as no match.
func (r *Resolver) Resolve(ctx context.Context, destination string) string {
	if r.bindings != nil {
		bindings, err := r.bindings.Bindings(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "could not read bindings, assuming destination is the channel name",
				"destination", destination, "err", err)

			return destination
		}

		if key, ok := lookupBinding(destination, bindings); ok {
			r.logger.DebugContext(ctx, "found channel for destination", "channel", key, "destination", destination)
			return key
		}
	}

	r.logger.DebugContext(ctx, "no binding for destination, assuming destination equals the channel name",
		"destination", destination)

	return destination
}

// ResolveIn applies the resolution rule to a plain mapping.
// When several bindings share the destination, whichever the map yields first
// wins; Go map iteration order is unspecified.
func ResolveIn(destination string, bindings map[string]messaging.BindingProperties) string {
	if key, ok := lookupBinding(destination, bindings); ok {
		return key
	}

	return destination
}

func lookupBinding(destination string, bindings map[string]messaging.BindingProperties) (string, bool) {
	for key, props := range bindings {
		if props.Destination == destination {
			return key, true
		}
	}

	return "", false
}
