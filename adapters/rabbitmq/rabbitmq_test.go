package rabbitmq_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/next-trace/scg-stream-verifier/adapters/rabbitmq"
	"github.com/next-trace/scg-stream-verifier/codec"
	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/contract/messaging"
	"github.com/next-trace/scg-stream-verifier/stream"
)

// fakeBroker routes published messages into queues bound by routing key.
type fakeBroker struct {
	mu       sync.Mutex
	bindings map[string]string // routing key -> queue
	queues   map[string][][]byte
	calls    []rabbitmq.PubMsg
	pubErr   error
	getErr   error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{bindings: map[string]string{}, queues: map[string][][]byte{}}
}

func (f *fakeBroker) Publish(_ context.Context, m rabbitmq.PubMsg) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, m)
	if f.pubErr != nil {
		return f.pubErr
	}

	if q, ok := f.bindings[m.RoutingKey]; ok {
		f.queues[q] = append(f.queues[q], m.Body)
	}

	return nil
}

func (f *fakeBroker) Declare(_ context.Context, exchange, routingKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := "amq.gen-" + exchange + "-" + routingKey
	f.bindings[routingKey] = q

	return q, nil
}

func (f *fakeBroker) Get(_ context.Context, queue string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, false, f.getErr
	}

	msgs := f.queues[queue]
	if len(msgs) == 0 {
		return nil, false, nil
	}

	f.queues[queue] = msgs[1:]

	return msgs[0], true, nil
}

type stampPropagator struct{}

func (stampPropagator) Inject(_ context.Context, h map[string]string) { h["traceparent"] = "00-abc" }

func TestRabbitMQ_RoundTripThroughRelay(t *testing.T) {
	fb := newFakeBroker()
	b := rabbitmq.New(fb, fb, "stream")
	b.Propagator = stampPropagator{}

	s := stream.New(messaging.StaticBindings{"out": {Destination: "orders"}}, b, b, nil)

	if err := s.Send(t.Context(), "hello", nil, "orders"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg, ok, err := s.ReceiveWithin(t.Context(), "orders", time.Second)
	if err != nil || !ok {
		t.Fatalf("receive: ok=%v err=%v", ok, err)
	}

	if msg.Payload() != "hello" || len(msg.Headers()) != 0 {
		t.Fatalf("unexpected message: %v %v", msg.Payload(), msg.Headers())
	}

	c := fb.calls[0]
	if c.Exchange != "stream" || c.RoutingKey != "out" {
		t.Fatalf("routing: %q %q", c.Exchange, c.RoutingKey)
	}

	if c.Headers["traceparent"] != "00-abc" || c.ContentType != "application/json" {
		t.Fatalf("headers: %+v content type %q", c.Headers, c.ContentType)
	}
}

func TestRabbitMQ_RoundTripKeepsValueTypes(t *testing.T) {
	for _, cd := range []codec.Codec{codec.JSON{}, codec.Msgpack{}} {
		t.Run(cd.ContentType(), func(t *testing.T) {
			fb := newFakeBroker()
			b := rabbitmq.New(fb, fb, "stream")
			b.Codec = cd

			s := stream.New(messaging.StaticBindings{"out": {Destination: "orders"}}, b, b, nil)

			headers := map[string]any{"n": 3, "raw": []byte{7}}
			if err := s.Send(t.Context(), []byte("raw"), headers, "orders"); err != nil {
				t.Fatalf("send: %v", err)
			}

			msg, ok, err := s.ReceiveWithin(t.Context(), "orders", time.Second)
			if err != nil || !ok {
				t.Fatalf("receive: ok=%v err=%v", ok, err)
			}

			if !reflect.DeepEqual(msg.Payload(), []byte("raw")) || !reflect.DeepEqual(msg.Headers(), headers) {
				t.Fatalf("unexpected message: %#v %#v", msg.Payload(), msg.Headers())
			}
		})
	}
}

func TestRabbitMQ_PollTimesOut(t *testing.T) {
	fb := newFakeBroker()
	b := rabbitmq.New(fb, fb, "stream")
	b.PollInterval = time.Millisecond

	ch, err := b.Channel("quiet")
	if err != nil {
		t.Fatalf("channel: %v", err)
	}

	p, _ := b.ForChannel(ch)

	_, ok, err := p.Poll(t.Context(), 15*time.Millisecond)
	if ok || err != nil {
		t.Fatalf("want absent, got ok=%v err=%v", ok, err)
	}
}

func TestRabbitMQ_PollContextCanceled(t *testing.T) {
	fb := newFakeBroker()
	b := rabbitmq.New(fb, fb, "stream")
	ch, _ := b.Channel("quiet")
	p, _ := b.ForChannel(ch)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, _, err := p.Poll(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestRabbitMQ_Errors(t *testing.T) {
	fb := newFakeBroker()
	fb.pubErr = errors.New("boom")
	b := rabbitmq.New(fb, fb, "stream")

	ch, _ := b.Channel("out")
	if err := ch.Send(t.Context(), messaging.NewEnvelope("x", nil)); !errors.Is(err, fb.pubErr) {
		t.Fatalf("want boom, got %v", err)
	}

	fb.getErr = errors.New("get failed")
	p, _ := b.ForChannel(ch)

	if _, _, err := p.Poll(t.Context(), time.Millisecond); !errors.Is(err, fb.getErr) {
		t.Fatalf("want get failed, got %v", err)
	}
}

func TestRabbitMQ_NotConfigured(t *testing.T) {
	b := rabbitmq.New(nil, nil, "stream")
	if _, err := b.Channel("x"); !errors.Is(err, serr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}

func TestNewWithAMQPConn_EmptyURL(t *testing.T) {
	_, _, err := rabbitmq.NewWithAMQPConn(rabbitmq.Config{})
	if !errors.Is(err, serr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}
