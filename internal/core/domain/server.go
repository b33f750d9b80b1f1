package domain

import (
	"fmt"
	"net"
	"time"
)

// ServerState is the liveness state of a registered MCP server.
type ServerState string

const (
	StateInitializing ServerState = "initializing"
	StateHealthy       ServerState = "healthy"
	StateDegraded      ServerState = "degraded"
	StateUnhealthy     ServerState = "unhealthy"
)

// IsSelectable reports whether a server in this state may receive traffic.
// Initializing servers are never selectable; Unhealthy servers are excluded
// even though their circuit breaker may still be Closed, per spec eligibility.
func (s ServerState) IsSelectable() bool {
	switch s {
	case StateHealthy, StateDegraded:
		return true
	default:
		return false
	}
}

func (s ServerState) String() string {
	return string(s)
}

// ServerConfig is the declared configuration for a backend MCP server.
type ServerConfig struct {
	Host         string
	Capabilities []string
	Port         int
	Priority     int
}

// ID returns the stable "host:port" identity used throughout the fabric.
func (c ServerConfig) ID() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// RollingStats holds the derived, continuously-updated health/performance
// signals for a server. All fields are only ever written by the PoolManager
// or HealthMonitor (spec.md §5's ownership rule).
type RollingStats struct {
	LastHealthCheck time.Time
	LastSuccess     time.Time
	LastFailure     time.Time

	AvgResponseTimeMs float64 // EMA, alpha=0.1
	SuccessRate       float64 // lifetime ratio in [0,1], distinct from strategy effectiveness
	LoadScore         float64 // load composite in [0,1], lower is better; read by the scorers, but nothing in this module computes it, so it stays 0 unless a caller sets it

	ConsecutiveFailures  int
	ConsecutiveSuccesses int
}

// ServerMetadata carries optional self-reported resource figures.
type ServerMetadata struct {
	ProcessStartTime time.Time
	MemoryUsageBytes int64
	CPUUsagePercent  float64
	MemCeilingBytes  int64 // ceiling for ResourceAware's memory ratio (ratio is 0 while unset); no config field sets it
}

// Server is one record in the ServerRegistry. The live connection itself
// is not part of the record: internal/adapter/pool.Manager owns the
// per-server connection pool, keyed by ID, so the registry only tracks
// what Router/LoadBalancer selection needs.
type Server struct {
	ID           string
	Host         string
	Capabilities map[string]struct{}
	Port         int
	Priority     int
	State        ServerState

	ActiveRequests int64
	TotalRequests  int64
	SuccessCount   int64
	FailureCount   int64

	Stats    RollingStats
	Metadata ServerMetadata
}

// HasCapability reports whether the server declares the given capability tag.
func (s *Server) HasCapability(cap string) bool {
	_, ok := s.Capabilities[cap]
	return ok
}

// HasAllCapabilities reports whether the server's capability set is a
// superset of required.
func (s *Server) HasAllCapabilities(required []string) bool {
	for _, r := range required {
		if !s.HasCapability(r) {
			return false
		}
	}
	return true
}

// CapabilityList materialises the capability set as a slice, in map
// iteration order (not sorted), for scoring/reporting purposes.
func (s *Server) CapabilityList() []string {
	out := make([]string, 0, len(s.Capabilities))
	for c := range s.Capabilities {
		out = append(out, c)
	}
	return out
}

func NewCapabilitySet(caps []string) map[string]struct{} {
	set := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}
