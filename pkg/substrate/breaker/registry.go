package breaker

import "sync"

// Registry is a process-wide, name-keyed store of circuit breakers.
// Mirrors the source's CircuitBreakerRegistry / global get_circuit_breaker.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// GetOrCreate returns the named breaker, creating it with cfg if absent.
func (r *Registry) GetOrCreate(name string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, cfg)
	r.breakers[name] = b
	return b
}

// Get returns the named breaker, or nil if it does not exist.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[name]
}

// All returns every breaker's statistics, keyed by name.
func (r *Registry) All() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Statistics()
	}
	return out
}

// ResetAll drops every breaker from the registry, for test teardown.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*Breaker)
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry, initializing it on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// GetCircuitBreaker is a convenience wrapper over Global().GetOrCreate.
func GetCircuitBreaker(name string, cfg Config) *Breaker {
	return Global().GetOrCreate(name, cfg)
}
