package stream

import "github.com/next-trace/scg-stream-verifier/contract/messaging"

// NewMessage builds the envelope handed to channels from a payload and headers.
func NewMessage(payload any, headers map[string]any) messaging.Envelope {
	return messaging.NewEnvelope(payload, headers)
}
