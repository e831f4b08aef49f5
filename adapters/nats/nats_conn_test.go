package nats_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-stream-verifier/adapters/nats"
	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
)

func TestNewWithNATS_EmptyURL(t *testing.T) {
	_, _, err := nats.NewWithNATS(nats.Config{})
	if err == nil {
		t.Fatalf("expected error")
	}

	if !errors.Is(err, serr.ErrTransportNotConfigured) {
		t.Fatalf("want ErrTransportNotConfigured, got %v", err)
	}
}
