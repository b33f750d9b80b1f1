// Package ports defines the narrow interfaces each multiplexer component
// exposes to its neighbours, mirroring the teacher's core/ports split
// between domain value types and behaviour contracts.
package ports

import (
	"context"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
)

// ServerRegistry is the source of truth for server records (spec.md §4.1).
type ServerRegistry interface {
	Add(cfg domain.ServerConfig) error
	Remove(id string) error
	Snapshot() []*domain.Server
	Get(id string) (*domain.Server, bool)
	Update(id string, patch func(*domain.Server)) error
}

// HealthMonitor decides admission and records outcomes (spec.md §4.2).
type HealthMonitor interface {
	CanExecute(id string) bool
	Record(id string, success bool, responseTime time.Duration, err error)
	ForceState(id string, state domain.CircuitState, reason string)
	Stats(id string) (domain.CircuitStats, bool)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// LoadBalancer picks one server from a caller-supplied eligible set
// (spec.md §4.3).
type LoadBalancer interface {
	Name() string
	Select(ctx context.Context, rc *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error)
	RecordOutcome(decision domain.RoutingDecision, success bool, responseTime time.Duration)
}

// MCPClient is the narrow transport contract to a single backend MCP
// server, implemented by internal/adapter/mcpwire.
type MCPClient interface {
	Ping(ctx context.Context) error
	Metrics(ctx context.Context) (map[string]float64, error)
	Query(ctx context.Context, req domain.RAGRequest) (domain.RAGResponse, error)
	Close() error
}

// Dialer establishes a new MCPClient connection to a server.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, timeout time.Duration) (MCPClient, error)
}

// PoolManager owns server connections, the request queue, and autoscale
// signalling (spec.md §4.4).
type PoolManager interface {
	Enqueue(ctx context.Context, req domain.RAGRequest, priority int, deadline *time.Time) (domain.RAGResponse, error)
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	QueueSize() int
	// DropServer drains that server's in-flight requests and closes its
	// pooled connection, for callers removing one server without a full
	// Shutdown.
	DropServer(ctx context.Context, id string) error
}

// Router applies rule-driven routing with per-request failover
// (spec.md §4.5).
type Router interface {
	Route(ctx context.Context, rc *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error)
	RecordOutcome(rc *domain.RequestContext, ruleID string, success bool)
}

// EventPublisher is the narrow subscription surface the Multiplexer
// exposes (spec.md §9 redesign note): synchronous delivery, bounded
// per-subscriber buffering, no unbounded listener list.
type EventPublisher interface {
	Publish(evt domain.Event)
	Subscribe(ctx context.Context) (<-chan domain.Event, func())
}
