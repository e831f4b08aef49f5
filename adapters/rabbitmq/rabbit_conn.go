package rabbitmq

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-stream-verifier/codec"
	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
)

// Concrete AMQP session with auto-reconnect, serving both Publisher and Getter.

const (
	DefaultExchange   = "stream"
	exchangeType      = "topic"
	maxReconnectDelay = 30 * time.Second
)

type Config struct {
	URL          string
	ConnTimeout  time.Duration
	Exchange     string
	Codec        codec.Codec
	PollInterval time.Duration
}

type session struct {
	cfg    Config
	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	ready  chan struct{} // closed while a channel is usable
	closed chan struct{}
	once   sync.Once
}

func newSession(cfg Config) *session {
	s := &session{
		cfg:    cfg,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
	go s.run()

	return s
}

func (s *session) channel(ctx context.Context) (*amqp.Channel, error) {
	for {
		s.mu.RLock()
		ch, ready := s.ch, s.ready
		s.mu.RUnlock()

		if ch != nil && !ch.IsClosed() {
			return ch, nil
		}

		select {
		case <-ready:
		case <-s.closed:
			return nil, fmt.Errorf("%w: rabbitmq session closed", serr.ErrTransportNotConfigured)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *session) Publish(ctx context.Context, m PubMsg) error {
	ch, err := s.channel(ctx)
	if err != nil {
		return err
	}

	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Headers:      h,
			ContentType:  m.ContentType,
			Body:         m.Body,
		},
	)
}

func (s *session) Declare(ctx context.Context, exchange, routingKey string) (string, error) {
	ch, err := s.channel(ctx)
	if err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", err
	}

	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return "", err
	}

	return q.Name, nil
}

func (s *session) Get(ctx context.Context, queue string) ([]byte, bool, error) {
	ch, err := s.channel(ctx)
	if err != nil {
		return nil, false, err
	}

	d, ok, err := ch.Get(queue, true)
	if err != nil || !ok {
		return nil, false, err
	}

	return d.Body, true, nil
}

func (s *session) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(s.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-stream-verifier"},
		Dial:       amqp.DefaultDial(s.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(s.cfg.Exchange, exchangeType, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

func (s *session) run() {
	backoff := time.Second
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // backoff jitter only

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		conn, ch, err := s.dial()
		if err != nil {
			sleep := min(backoff+time.Duration(rng.Int63n(int64(backoff/2))), maxReconnectDelay)

			t := time.NewTimer(sleep)
			select {
			case <-s.closed:
				t.Stop()
				return
			case <-t.C:
			}

			backoff = min(backoff*2, maxReconnectDelay)

			continue
		}

		backoff = time.Second

		s.mu.Lock()
		s.conn, s.ch = conn, ch
		close(s.ready)
		s.mu.Unlock()

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-s.closed:
			return
		case <-notify:
		}

		s.mu.Lock()
		_ = ch.Close()
		_ = conn.Close()
		s.conn, s.ch = nil, nil
		s.ready = make(chan struct{})
		s.mu.Unlock()
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.closed)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ch != nil {
			_ = s.ch.Close()
			s.ch = nil
		}

		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
	})
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect, ensures the exchange,
// and returns a Binder and cleanup.
func NewWithAMQPConn(cfg Config) (*Binder, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", serr.ErrTransportNotConfigured)
	}

	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	s := newSession(cfg)
	b := New(s, s, cfg.Exchange)

	if cfg.Codec != nil {
		b.Codec = cfg.Codec
	}

	if cfg.PollInterval > 0 {
		b.PollInterval = cfg.PollInterval
	}

	return b, s.close, nil
}
