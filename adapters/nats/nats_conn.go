package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/next-trace/scg-stream-verifier/codec"
	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
)

// Concrete NATS connection-backed Conn and constructor.

type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
	SubjectPrefix string
	Codec         codec.Codec
}

type natsConn struct{ nc *nats.Conn }

func (c natsConn) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Add(k, v)
		}
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

func (c natsConn) SubscribeSync(subject string) (Subscription, error) {
	sub, err := c.nc.SubscribeSync(subject)
	if err != nil {
		return nil, err
	}

	return natsSub{sub: sub}, nil
}

type natsSub struct{ sub *nats.Subscription }

func (s natsSub) NextMsg(timeout time.Duration) ([]byte, error) {
	m, err := s.sub.NextMsg(timeout)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, ErrTimeout
		}

		return nil, err
	}

	return m.Data, nil
}

func (s natsSub) Unsubscribe() error { return s.sub.Unsubscribe() }

// NewWithNATS creates a real NATS connection and returns a Binder and a cleanup.
func NewWithNATS(cfg Config) (*Binder, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: nats url required", serr.ErrTransportNotConfigured)
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nats connect: %w", serr.ErrTransportNotConfigured, err)
	}

	b := New(natsConn{nc: nc}, cfg.Codec)
	b.Prefix = cfg.SubjectPrefix

	cleanup := func() {
		_ = b.Close() //nolint:errcheck // best-effort shutdown
		if !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
			nc.Close()
		}
	}

	return b, cleanup, nil
}
