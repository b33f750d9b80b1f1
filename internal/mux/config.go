package mux

import (
	"time"

	"github.com/thushan/mcpmux/internal/adapter/balancer"
	"github.com/thushan/mcpmux/internal/adapter/health"
	"github.com/thushan/mcpmux/internal/adapter/pool"
	"github.com/thushan/mcpmux/internal/adapter/router"
)

// Config is the top-level configuration every component is built from,
// mirroring the teacher's app.Config composition of per-service configs.
type Config struct {
	Health   health.Config
	Pool     pool.Config
	Balancer balancer.Config
	Router   router.Config

	DefaultStrategy       string
	RecoveryCheckInterval time.Duration
	MetricsInterval       time.Duration

	// RoutingEnabled selects Execute's dispatch path (spec.md §4.6): true
	// routes every request through the Router's rule table, false skips
	// it and sends the eligible set straight to the LoadBalancer named by
	// DefaultStrategy.
	RoutingEnabled bool

	// Failover is the Multiplexer-level failover loop Execute wraps around
	// each PoolManager dispatch: a whole request (already retried across
	// servers inside PoolManager) is resubmitted from scratch up to
	// MaxAttempts times, waiting Delay*(attempt+1) between resubmissions.
	Failover FailoverConfig
}

// FailoverConfig is the Multiplexer's outermost retry budget (spec.md
// §4.6), distinct from PoolManager's per-item server-to-server retries.
type FailoverConfig struct {
	Enabled     bool
	MaxAttempts int
	Delay       time.Duration
}

func DefaultConfig() Config {
	return Config{
		Health:                health.DefaultConfig(),
		Pool:                  pool.DefaultConfig(),
		Balancer:              balancer.Config{MaxRequestsPerServer: 10, ResponseTimeCeilingMs: 5000, AdaptationInterval: time.Minute},
		Router:                router.DefaultConfig(),
		DefaultStrategy:       "adaptive",
		RecoveryCheckInterval: 30 * time.Second,
		MetricsInterval:       15 * time.Second,
		RoutingEnabled:        true,
		Failover:              FailoverConfig{Enabled: true, MaxAttempts: 3, Delay: time.Second},
	}
}
