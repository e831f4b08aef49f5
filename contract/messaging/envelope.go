package messaging

// Envelope is the transport-agnostic message: a payload paired with headers.
// It is immutable once built; accessors hand out copies of the header map.
type Envelope struct {
	payload any
	headers map[string]any
}

// NewEnvelope builds an Envelope, copying headers so later changes to the
// caller's map are not observed.
func NewEnvelope(payload any, headers map[string]any) Envelope {
	return Envelope{payload: payload, headers: copyHeaders(headers)}
}

// Payload returns the message payload.
func (e Envelope) Payload() any { return e.payload }

// Headers returns a copy of the header map. It is never nil.
func (e Envelope) Headers() map[string]any { return copyHeaders(e.headers) }

// Header returns a single header value.
func (e Envelope) Header(key string) (any, bool) {
	v, ok := e.headers[key]
	return v, ok
}

// IsZero reports whether the envelope was never built.
func (e Envelope) IsZero() bool { return e.payload == nil && e.headers == nil }

// Copy returns a new envelope with the same payload and headers.
func (e Envelope) Copy() Envelope { return NewEnvelope(e.payload, e.headers) }

func copyHeaders(h map[string]any) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		out[k] = v
	}

	return out
}
