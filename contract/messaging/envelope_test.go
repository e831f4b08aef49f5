package messaging_test

import (
	"testing"

	"github.com/next-trace/scg-stream-verifier/contract/messaging"
)

func TestEnvelope_CopiesHeaders(t *testing.T) {
	h := map[string]any{"a": 1}
	env := messaging.NewEnvelope("p", h)

	h["a"] = 2
	h["b"] = 3

	if v, _ := env.Header("a"); v != 1 {
		t.Fatalf("header mutated through caller map: %v", v)
	}

	got := env.Headers()
	got["a"] = 99

	if v, _ := env.Header("a"); v != 1 {
		t.Fatalf("header mutated through accessor: %v", v)
	}

	if _, ok := env.Header("b"); ok {
		t.Fatalf("unexpected header b")
	}
}

func TestEnvelope_NilHeadersAndZero(t *testing.T) {
	var zero messaging.Envelope
	if !zero.IsZero() {
		t.Fatalf("zero value should report IsZero")
	}

	env := messaging.NewEnvelope("hello", nil)
	if env.IsZero() {
		t.Fatalf("built envelope reported IsZero")
	}

	if env.Headers() == nil || len(env.Headers()) != 0 {
		t.Fatalf("want empty non-nil headers, got %#v", env.Headers())
	}

	cp := env.Copy()
	if cp.Payload() != "hello" {
		t.Fatalf("copy payload: %v", cp.Payload())
	}
}
