package circuitbreaker

import (
	"cmp"
	"slices"
	"sync"
)

// Registry hands out one breaker per key, created on first use.
type Registry struct {
	observer Observer
	opts     []Option

	mu       sync.RWMutex
	breakers map[Key]*Breaker
}

// NewRegistry creates a registry whose breakers share observer and opts.
func NewRegistry(observer Observer, opts ...Option) *Registry {
	return &Registry{observer: observer, opts: opts, breakers: make(map[Key]*Breaker)}
}

// Breaker returns the breaker for key, creating it if needed.
func (r *Registry) Breaker(key Key) *Breaker {
	r.mu.RLock()
	b := r.breakers[key]
	r.mu.RUnlock()

	if b != nil {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b = r.breakers[key]; b == nil {
		b = New(key, r.observer, r.opts...)
		r.breakers[key] = b
	}

	return b
}

// Breakers returns every known breaker ordered by key.
func (r *Registry) Breakers() []*Breaker {
	r.mu.RLock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Breaker) int { return cmp.Compare(a.key.String(), b.key.String()) })

	return out
}
