package circuitbreaker

import "time"

// Key identifies a command within its group.
type Key struct {
	Group   string
	Command string
}

func (k Key) String() string { return k.Group + "." + k.Command }

// Outcome classifies one Execute call.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeFailure        Outcome = "failure"
	OutcomeShortCircuited Outcome = "short_circuited"
	OutcomeRejected       Outcome = "rejected"
	OutcomeFallback       Outcome = "fallback_success"
)

// Execution describes one finished Execute call.
type Execution struct {
	Key     Key
	Outcome Outcome
	Latency time.Duration
	State   State
	Err     error
}

// Observer is told about executions and state transitions. Calls happen
// outside the breaker lock but on the caller's goroutine.
type Observer interface {
	CommandExecuted(ex Execution)
	StateChanged(key Key, from, to State)
}

// Observers fans out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	out := make(multi, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}

	return out
}

type multi []Observer

func (m multi) CommandExecuted(ex Execution) {
	for _, o := range m {
		o.CommandExecuted(ex)
	}
}

func (m multi) StateChanged(key Key, from, to State) {
	for _, o := range m {
		o.StateChanged(key, from, to)
	}
}

type noopObserver struct{}

func (noopObserver) CommandExecuted(Execution)     {}
func (noopObserver) StateChanged(Key, State, State) {}
