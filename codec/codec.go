/*
Package codec encodes envelopes for broker-backed channels.
The whole envelope (payload and headers) travels in the message body, each
value tagged with its kind, so scalars and byte slices come back with the type
they were sent with; the content type is copied into transport headers for
consumers that only look there.
*/
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
)

// HeaderContentType is the transport header naming the body encoding.
const HeaderContentType = "contentType"

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/x-msgpack"
)

// Codec turns envelopes into bytes and back.
type Codec interface {
	ContentType() string
	Marshal(msg messaging.Envelope) ([]byte, error)
	Unmarshal(data []byte) (messaging.Envelope, error)
}

type jsonValue struct {
	Kind  string          `json:"k"`
	Value json.RawMessage `json:"v"`
}

type jsonWire struct {
	Payload jsonValue            `json:"payload"`
	Headers map[string]jsonValue `json:"headers,omitempty"`
}

func jsonEncode(v any) (jsonValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return jsonValue{}, err
	}

	return jsonValue{Kind: kindOf(v), Value: raw}, nil
}

// JSON encodes envelopes as JSON documents.
type JSON struct{}

func (JSON) ContentType() string { return ContentTypeJSON }

func (JSON) Marshal(msg messaging.Envelope) ([]byte, error) {
	out, err := encodeWire(msg, jsonEncode)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	b, err := json.Marshal(jsonWire{Payload: out.payload, Headers: out.headers})
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	return b, nil
}

func (JSON) Unmarshal(data []byte) (messaging.Envelope, error) {
	var w jsonWire
	if err := json.Unmarshal(data, &w); err != nil {
		return messaging.Envelope{}, fmt.Errorf("json unmarshal: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	msg, err := decodeWire(w.Payload, w.Headers, func(v jsonValue) (any, error) {
		return decodeValue(v.Kind, v.Value, json.Unmarshal)
	})
	if err != nil {
		return messaging.Envelope{}, fmt.Errorf("json unmarshal: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	return msg, nil
}

type msgpackValue struct {
	Kind  string             `msgpack:"k"`
	Value msgpack.RawMessage `msgpack:"v"`
}

type msgpackWire struct {
	Payload msgpackValue            `msgpack:"payload"`
	Headers map[string]msgpackValue `msgpack:"headers,omitempty"`
}

func msgpackEncode(v any) (msgpackValue, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return msgpackValue{}, err
	}

	return msgpackValue{Kind: kindOf(v), Value: raw}, nil
}

// Msgpack encodes envelopes with MessagePack.
type Msgpack struct{}

func (Msgpack) ContentType() string { return ContentTypeMsgpack }

func (Msgpack) Marshal(msg messaging.Envelope) ([]byte, error) {
	out, err := encodeWire(msg, msgpackEncode)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	b, err := msgpack.Marshal(&msgpackWire{Payload: out.payload, Headers: out.headers})
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	return b, nil
}

func (Msgpack) Unmarshal(data []byte) (messaging.Envelope, error) {
	var w msgpackWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return messaging.Envelope{}, fmt.Errorf("msgpack unmarshal: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	msg, err := decodeWire(w.Payload, w.Headers, func(v msgpackValue) (any, error) {
		return decodeValue(v.Kind, v.Value, msgpack.Unmarshal)
	})
	if err != nil {
		return messaging.Envelope{}, fmt.Errorf("msgpack unmarshal: %w", errors.Join(serr.ErrSerializationFailed, err))
	}

	return msg, nil
}

type encoded[V any] struct {
	payload V
	headers map[string]V
}

func encodeWire[V any](msg messaging.Envelope, enc func(any) (V, error)) (encoded[V], error) {
	p, err := enc(msg.Payload())
	if err != nil {
		return encoded[V]{}, fmt.Errorf("payload: %w", err)
	}

	src := msg.Headers()
	out := encoded[V]{payload: p, headers: make(map[string]V, len(src))}

	for k, v := range src {
		if out.headers[k], err = enc(v); err != nil {
			return encoded[V]{}, fmt.Errorf("header %q: %w", k, err)
		}
	}

	return out, nil
}

func decodeWire[V any](payload V, headers map[string]V, dec func(V) (any, error)) (messaging.Envelope, error) {
	p, err := dec(payload)
	if err != nil {
		return messaging.Envelope{}, fmt.Errorf("payload: %w", err)
	}

	h := make(map[string]any, len(headers))
	for k, v := range headers {
		if h[k], err = dec(v); err != nil {
			return messaging.Envelope{}, fmt.Errorf("header %q: %w", k, err)
		}
	}

	return messaging.NewEnvelope(p, h), nil
}

// ForContentType picks a codec by content type, defaulting to JSON.
func ForContentType(contentType string) Codec { //nolint:ireturn
	if contentType == ContentTypeMsgpack {
		return Msgpack{}
	}

	return JSON{}
}

// TransportHeaders flattens envelope headers to strings for brokers whose
// header model is string-only, and records the codec's content type.
func TransportHeaders(msg messaging.Envelope, c Codec) map[string]string {
	src := msg.Headers()

	h := make(map[string]string, len(src)+1)
	for k, v := range src {
		h[k] = fmt.Sprint(v)
	}

	h[HeaderContentType] = c.ContentType()

	return h
}
