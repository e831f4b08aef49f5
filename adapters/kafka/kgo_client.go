package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/next-trace/scg-stream-verifier/codec"
	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
)

// Concrete franz-go based constructor, writer and fetcher.

type Config struct {
	Brokers     []string
	TLS         *tls.Config
	Acks        kgo.Acks
	ClientID    string
	TopicPrefix string
	// FromStart consumes watched topics from the earliest offset instead of the end.
	FromStart bool
	Codec     codec.Codec
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

// kgoFetcher owns a consumer client created on the first Watch; later topics
// are added to it.
type kgoFetcher struct {
	opts []kgo.Opt

	mu      sync.Mutex
	cl      *kgo.Client
	pending map[string][][]byte
}

func (f *kgoFetcher) Watch(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cl != nil {
		f.cl.AddConsumeTopics(topic)
		return nil
	}

	cl, err := kgo.NewClient(append(f.opts, kgo.ConsumeTopics(topic))...)
	if err != nil {
		return fmt.Errorf("kafka consumer init: %w", err)
	}

	f.cl = cl

	return nil
}

func (f *kgoFetcher) client() *kgo.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.cl
}

func (f *kgoFetcher) close() {
	if cl := f.client(); cl != nil {
		cl.Close()
	}
}

func (f *kgoFetcher) take(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := f.pending[topic]
	if len(q) == 0 {
		return nil, false
	}

	f.pending[topic] = q[1:]

	return q[0], true
}

func (f *kgoFetcher) Next(ctx context.Context, topic string) ([]byte, error) {
	for {
		if v, ok := f.take(topic); ok {
			return v, nil
		}

		cl := f.client()
		if cl == nil {
			return nil, fmt.Errorf("kafka fetch %q: topic not watched", topic)
		}

		fetches := cl.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil, kgo.ErrClientClosed
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var errs []error

		fetches.EachError(func(t string, p int32, err error) {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				errs = append(errs, fmt.Errorf("fetch %s[%d]: %w", t, p, err))
			}
		})

		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}

		f.mu.Lock()
		fetches.EachRecord(func(r *kgo.Record) {
			f.pending[r.Topic] = append(f.pending[r.Topic], r.Value)
		})
		f.mu.Unlock()
	}
}

// NewWithKgo builds a franz-go backed Binder. The returned cleanup closes both clients.
func NewWithKgo(cfg Config) (*Binder, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", serr.ErrTransportNotConfigured)
	}

	offset := kgo.NewOffset().AtEnd()
	if cfg.FromStart {
		offset = kgo.NewOffset().AtStart()
	}

	common := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}
	if cfg.ClientID != "" {
		common = append(common, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		common = append(common, kgo.DialTLSConfig(cfg.TLS))
	}

	producerOpts := slices.Clone(common)
	if cfg.Acks != (kgo.Acks{}) {
		producerOpts = append(producerOpts, kgo.RequiredAcks(cfg.Acks))
	}

	producer, err := kgo.NewClient(producerOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", serr.ErrTransportNotConfigured, err)
	}

	fetcher := &kgoFetcher{
		opts:    append(slices.Clone(common), kgo.ConsumeResetOffset(offset)),
		pending: map[string][][]byte{},
	}

	b := New(kgoWriter{cl: producer}, fetcher, cfg.Codec)
	b.Prefix = cfg.TopicPrefix

	cleanup := func() {
		fetcher.close()
		producer.Close()
	}

	return b, cleanup, nil
}
