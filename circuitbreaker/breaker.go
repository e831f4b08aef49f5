/*
Package circuitbreaker wraps commands in a closed/open/half-open breaker
backed by sony/gobreaker.

A Breaker counts consecutive failures. Reaching the failure threshold opens
the circuit and later calls are short-circuited with ErrCircuitOpen until the
open timeout elapses. Then up to SuccessThreshold trial calls run half-open;
that many consecutive successes close the circuit, any failure (a panic
included) opens it again.
*/
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
)

// ErrCircuitOpen is returned without running the command while the circuit is open.
var ErrCircuitOpen = serr.ErrCircuitOpen

// ErrNilCommand is returned when Execute is given no function.
var ErrNilCommand = errors.New("circuitbreaker: nil command")

type Breaker struct {
	key      Key
	cfg      Config
	observer Observer
	cb       atomic.Pointer[gobreaker.CircuitBreaker[struct{}]]
}

// New creates a closed breaker for key.
//
// observer.StateChanged is called while the underlying breaker holds its
// lock, so it must not call back into the Breaker.
func New(key Key, observer Observer, opts ...Option) *Breaker {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if observer == nil {
		observer = noopObserver{}
	}

	b := &Breaker{key: key, cfg: cfg, observer: observer}
	b.cb.Store(b.newCircuit())

	return b
}

func (b *Breaker) newCircuit() *gobreaker.CircuitBreaker[struct{}] {
	threshold := uint32(b.cfg.FailureThreshold)

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        b.key.String(),
		MaxRequests: uint32(b.cfg.SuccessThreshold),
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// Canceled callers say nothing about the command's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.observer.StateChanged(b.key, fromGobreaker(from), fromGobreaker(to))
		},
	})
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func (b *Breaker) Key() Key { return b.key }

func (b *Breaker) State() State { return fromGobreaker(b.cb.Load().State()) }

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	return b.ExecuteWithFallback(ctx, fn, nil)
}

// ExecuteWithFallback runs fn; when fn fails or the circuit rejects the call,
// fallback is given the cause and its result is returned instead.
// A panic in fn counts as a failure and is re-raised.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(context.Context, error) error) error {
	if fn == nil {
		return ErrNilCommand
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()

	outcome, err := b.run(ctx, fn)
	if err != nil && fallback != nil && !errors.Is(err, context.Canceled) {
		if fbErr := fallback(ctx, err); fbErr == nil {
			outcome, err = OutcomeFallback, nil
		} else {
			err = fmt.Errorf("%s fallback: %w", b.key, errors.Join(err, fbErr))
		}
	}

	b.observer.CommandExecuted(Execution{
		Key:     b.key,
		Outcome: outcome,
		Latency: time.Since(start),
		State:   b.State(),
		Err:     err,
	})

	return err
}

func (b *Breaker) run(ctx context.Context, fn func(context.Context) error) (Outcome, error) {
	_, err := b.cb.Load().Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	switch {
	case err == nil:
		return OutcomeSuccess, nil
	case errors.Is(err, gobreaker.ErrOpenState):
		return OutcomeShortCircuited, fmt.Errorf("%s: %w", b.key, errors.Join(ErrCircuitOpen, err))
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeRejected, fmt.Errorf("%s: %w", b.key, errors.Join(ErrCircuitOpen, err))
	default:
		return OutcomeFailure, err
	}
}

// Reset forces the breaker closed. Calls already running finish against the
// previous circuit and no longer affect this one.
func (b *Breaker) Reset() {
	old := b.cb.Swap(b.newCircuit())

	if from := fromGobreaker(old.State()); from != StateClosed {
		b.observer.StateChanged(b.key, from, StateClosed)
	}
}
