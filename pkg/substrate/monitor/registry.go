package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is a process-wide, name-keyed store of query monitors.
type Registry struct {
	mu       sync.Mutex
	monitors map[string]*Monitor
	reg      prometheus.Registerer
}

// NewRegistry creates an empty registry backed by reg (nil uses the
// default Prometheus registerer).
func NewRegistry(reg prometheus.Registerer) *Registry {
	return &Registry{monitors: make(map[string]*Monitor), reg: reg}
}

// GetOrCreate returns the named monitor, creating it with cfg if absent.
func (r *Registry) GetOrCreate(name string, cfg Config) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.monitors[name]; ok {
		return m
	}
	m := New(name, cfg, r.reg)
	r.monitors[name] = m
	return m
}

// Get returns the named monitor, or nil.
func (r *Registry) Get(name string) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitors[name]
}

// AllDashboards returns every monitor's dashboard view, keyed by name.
func (r *Registry) AllDashboards(topN int) map[string]Dashboard {
	r.mu.Lock()
	names := make([]string, 0, len(r.monitors))
	monitors := make([]*Monitor, 0, len(r.monitors))
	for name, m := range r.monitors {
		names = append(names, name)
		monitors = append(monitors, m)
	}
	r.mu.Unlock()

	out := make(map[string]Dashboard, len(names))
	for i, name := range names {
		out[name] = monitors[i].DashboardView(topN)
	}
	return out
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry, initializing it on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return globalRegistry
}
