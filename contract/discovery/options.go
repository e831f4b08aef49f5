package discovery

import (
	"context"
	"sync"
	"time"
)

// HealthCheckCallback reports the status sent with heartbeats.
type HealthCheckCallback func(ctx context.Context) InstanceStatus

// EventKind names a discovery client event.
type EventKind string

const (
	EventRegistered     EventKind = "registered"
	EventStatusChanged  EventKind = "status_changed"
	EventCacheRefreshed EventKind = "cache_refreshed"
	EventCanceled       EventKind = "canceled"
)

// Event is delivered to listeners.
type Event struct {
	Kind       EventKind
	InstanceID string
	Status     InstanceStatus
	At         time.Time
}

// EventListener receives discovery events. Listeners must not block.
type EventListener func(Event)

// OptionalArgs carries the pluggable parts of a discovery client.
// The zero value is ready to use.
type OptionalArgs struct {
	mu          sync.RWMutex
	factories   TransportClientFactories
	healthCheck HealthCheckCallback
	listeners   []EventListener
}

func (o *OptionalArgs) SetTransportClientFactories(f TransportClientFactories) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.factories = f
}

func (o *OptionalArgs) TransportClientFactories() TransportClientFactories {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.factories
}

func (o *OptionalArgs) SetHealthCheckCallback(cb HealthCheckCallback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.healthCheck = cb
}

func (o *OptionalArgs) HealthCheckCallback() HealthCheckCallback {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.healthCheck
}

func (o *OptionalArgs) AddEventListener(l EventListener) {
	if l == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Notify fans ev out to every registered listener.
func (o *OptionalArgs) Notify(ev Event) {
	o.mu.RLock()
	ls := append([]EventListener(nil), o.listeners...)
	o.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}
