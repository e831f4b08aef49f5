package errors

// Error codes for stream verification. Keep stable; used across binders and the relay.
const (
	ErrCodeChannelLookupFailed      = "stream.channel_lookup_failed"
	ErrCodeChannelNotFound          = "stream.channel_not_found"
	ErrCodeDeliveryFailed           = "stream.delivery_failed"
	ErrCodeReceiveFailed            = "stream.receive_failed"
	ErrCodeConfigurationUnavailable = "stream.configuration_unavailable"
	ErrCodeSerializationFailed      = "stream.serialization_failed"
	ErrCodeTransportNotConfigured   = "stream.transport_not_configured"
	ErrCodeCircuitOpen              = "stream.circuit_open"
	ErrCodeRegistryRequestFailed    = "discovery.registry_request_failed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrChannelLookupFailed      = Code(ErrCodeChannelLookupFailed)
	ErrChannelNotFound          = Code(ErrCodeChannelNotFound)
	ErrDeliveryFailed           = Code(ErrCodeDeliveryFailed)
	ErrReceiveFailed            = Code(ErrCodeReceiveFailed)
	ErrConfigurationUnavailable = Code(ErrCodeConfigurationUnavailable)
	ErrSerializationFailed      = Code(ErrCodeSerializationFailed)
	ErrTransportNotConfigured   = Code(ErrCodeTransportNotConfigured)
	ErrCircuitOpen              = Code(ErrCodeCircuitOpen)
	ErrRegistryRequestFailed    = Code(ErrCodeRegistryRequestFailed)
)
