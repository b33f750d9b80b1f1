// Package testutil provides in-memory fakes for the port interfaces,
// grounded on the teacher's handler tests' mock*Collector pattern of
// hand-rolled structs implementing a narrow ports interface rather than
// a generated mock.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
)

// Registry is a minimal in-memory ports.ServerRegistry for tests that
// don't need the xsync-backed production implementation's concurrency
// guarantees.
type Registry struct {
	mu      sync.Mutex
	servers map[string]*domain.Server
}

func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*domain.Server)}
}

func (r *Registry) Add(cfg domain.ServerConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := cfg.ID()
	if _, ok := r.servers[id]; ok {
		return fmt.Errorf("testutil: server %s already registered", id)
	}
	r.servers[id] = &domain.Server{
		ID:           id,
		Host:         cfg.Host,
		Port:         cfg.Port,
		Priority:     cfg.Priority,
		Capabilities: domain.NewCapabilitySet(cfg.Capabilities),
		State:        domain.StateHealthy,
	}
	return nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[id]; !ok {
		return fmt.Errorf("testutil: server %s not found", id)
	}
	delete(r.servers, id)
	return nil
}

func (r *Registry) Get(id string) (*domain.Server, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

func (r *Registry) Snapshot() []*domain.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Server, 0, len(r.servers))
	for _, s := range r.servers {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

func (r *Registry) Update(id string, patch func(*domain.Server)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[id]
	if !ok {
		return fmt.Errorf("testutil: server %s not found", id)
	}
	patch(s)
	return nil
}

// Conn is a scriptable fake ports.MCPClient.
type Conn struct {
	PingErr    error
	MetricsMap map[string]float64
	MetricsErr error
	QueryResp  domain.RAGResponse
	QueryErr   error
	Closed     bool
}

func (c *Conn) Ping(ctx context.Context) error { return c.PingErr }

func (c *Conn) Metrics(ctx context.Context) (map[string]float64, error) {
	return c.MetricsMap, c.MetricsErr
}

func (c *Conn) Query(ctx context.Context, req domain.RAGRequest) (domain.RAGResponse, error) {
	return c.QueryResp, c.QueryErr
}

func (c *Conn) Close() error {
	c.Closed = true
	return nil
}

// Dialer is a scriptable fake ports.Dialer keyed by "host:port".
type Dialer struct {
	mu      sync.Mutex
	Conns   map[string]*Conn
	DialErr map[string]error
}

func NewDialer() *Dialer {
	return &Dialer{Conns: make(map[string]*Conn), DialErr: make(map[string]error)}
}

func (d *Dialer) Set(host string, port int, conn *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Conns[key(host, port)] = conn
}

func (d *Dialer) SetDialErr(host string, port int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialErr[key(host, port)] = err
}

func (d *Dialer) Dial(ctx context.Context, host string, port int, timeout time.Duration) (ports.MCPClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := key(host, port)
	if err, ok := d.DialErr[k]; ok && err != nil {
		return nil, err
	}
	if c, ok := d.Conns[k]; ok {
		return c, nil
	}
	return &Conn{}, nil
}

func key(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Health is a scriptable fake ports.HealthMonitor: every server defaults
// to admitted, individual ids can be blocked for failover tests.
type Health struct {
	mu      sync.Mutex
	blocked map[string]bool
	records int
}

func NewHealth() *Health {
	return &Health{blocked: make(map[string]bool)}
}

func (h *Health) Block(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocked[id] = true
}

func (h *Health) CanExecute(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.blocked[id]
}

func (h *Health) Record(id string, success bool, responseTime time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records++
}

func (h *Health) RecordCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records
}

func (h *Health) ForceState(id string, state domain.CircuitState, reason string) {}

func (h *Health) Stats(id string) (domain.CircuitStats, bool) { return domain.CircuitStats{}, false }

func (h *Health) Start(ctx context.Context) error { return nil }
func (h *Health) Stop(ctx context.Context) error  { return nil }

var _ ports.HealthMonitor = (*Health)(nil)

// Events records every published event for later assertion.
type Events struct {
	mu   sync.Mutex
	Seen []domain.Event
}

func NewEvents() *Events {
	return &Events{}
}

func (e *Events) Publish(evt domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Seen = append(e.Seen, evt)
}

func (e *Events) Subscribe(ctx context.Context) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event)
	return ch, func() {}
}

func (e *Events) Count(kind domain.EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, evt := range e.Seen {
		if evt.Kind == kind {
			n++
		}
	}
	return n
}
