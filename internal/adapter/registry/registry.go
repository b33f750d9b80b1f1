// Package registry implements ports.ServerRegistry, adapted from the
// teacher's memory_registry.go xsync-backed map pattern but keyed on
// domain.Server instead of domain.Endpoint.
package registry

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
)

type Registry struct {
	servers *xsync.Map[string, *domain.Server]
	mu      sync.Mutex // guards Add/Remove against concurrent duplicate-id races
}

func New() *Registry {
	return &Registry{servers: xsync.NewMap[string, *domain.Server]()}
}

var _ ports.ServerRegistry = (*Registry)(nil)

func (r *Registry) Add(cfg domain.ServerConfig) error {
	id := cfg.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers.Load(id); exists {
		return fmt.Errorf("registry: server %s already registered", id)
	}
	r.servers.Store(id, &domain.Server{
		ID:           id,
		Host:         cfg.Host,
		Port:         cfg.Port,
		Priority:     cfg.Priority,
		Capabilities: domain.NewCapabilitySet(cfg.Capabilities),
		State:        domain.StateInitializing,
	})
	return nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.servers.LoadAndDelete(id); !ok {
		return fmt.Errorf("registry: server %s not found", id)
	}
	return nil
}

func (r *Registry) Get(id string) (*domain.Server, bool) {
	return r.servers.Load(id)
}

// Snapshot returns a point-in-time copy of every registered server, safe
// for the caller to read without further synchronisation. Values are
// shallow-copied so the LoadBalancer and Router can't mutate registry
// state through the returned pointers.
func (r *Registry) Snapshot() []*domain.Server {
	out := make([]*domain.Server, 0, r.servers.Size())
	r.servers.Range(func(_ string, s *domain.Server) bool {
		cp := *s
		out = append(out, &cp)
		return true
	})
	return out
}

// Update applies patch to the live server record. The HealthMonitor and
// PoolManager are the only callers (spec.md §5's single-writer-per-field
// rule); Add/Remove take the same lock so a patch never races a delete.
func (r *Registry) Update(id string, patch func(*domain.Server)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	srv, ok := r.servers.Load(id)
	if !ok {
		return fmt.Errorf("registry: server %s not found", id)
	}
	patch(srv)
	return nil
}
