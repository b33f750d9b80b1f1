// Package config loads and validates the multiplexer's configuration
// surface (spec.md §6), adapted from the teacher's viper+fsnotify loader.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/thushan/mcpmux/internal/adapter/balancer"
	"github.com/thushan/mcpmux/internal/adapter/health"
	"github.com/thushan/mcpmux/internal/adapter/pool"
	"github.com/thushan/mcpmux/internal/adapter/router"
	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/mux"
)

const (
	DefaultFileWriteDelay = 150 * time.Millisecond
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig is an alias for the `development` preset, the same
// starting point the teacher's DefaultConfig gives a first-run user.
func DefaultConfig() *Config {
	return Development()
}

// Development favours fast feedback over resilience: short intervals,
// aggressive adaptation, a small pool.
func Development() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "debug", Format: "text", Output: "stdout"},
		Pool: PoolConfig{
			MinServers: 1, MaxServers: 5,
			HealthCheckInterval:    5 * time.Second,
			MaxConsecutiveFailures: 3,
			ConnectionTimeout:      5 * time.Second,
			RequestTimeout:         30 * time.Second,
			MaxRequestsPerServer:   10,
			CircuitBreakerThreshold: 0.5,
			Autoscaling: AutoscalingConfig{Enabled: false, ScaleUpThreshold: 0.8, ScaleDownThreshold: 0.3, CooldownPeriod: time.Minute},
			RetryPolicy: RetryPolicyConfig{MaxRetries: 3, BackoffStrategy: "exponential", InitialDelay: time.Second, MaxDelay: 10 * time.Second},
			QueueByteCap:  "16MB",
			QueueCapacity: 200,
		},
		Health: HealthConfig{
			FailureThreshold: 3, Timeout: 5 * time.Second, RecoveryTime: 15 * time.Second,
			SuccessThreshold: 1, MonitoringWindow: time.Minute, HealthCheckInterval: 5 * time.Second,
			FetchMetrics: true, ProbeConcurrency: 4,
		},
		Balancer: LoadBalancingConfig{
			Strategy: "round_robin", AdaptiveEnabled: false, AdaptationInterval: 30 * time.Second,
			PerformanceThresholds: PerformanceThresholds{MaxResponseTime: 2 * time.Second, MaxErrorRate: 0.2, MaxUtilization: 0.9},
			MaxRequestsPerServer:  10,
			ResponseTimeCeiling:   2 * time.Second,
			IntelligentRouting:    true,
		},
		Failover: FailoverConfig{Enabled: true, MaxFailoverAttempts: 3, FailoverDelay: time.Second, AutoRecovery: true, RecoveryCheckInterval: 15 * time.Second},
	}
}

// ProductionSmall is a single-digit-server deployment with conservative
// timeouts and auto-recovery on.
func ProductionSmall() *Config {
	c := Development()
	c.Logging = LoggingConfig{Level: "info", Format: "json", Output: "stdout"}
	c.Pool.MinServers, c.Pool.MaxServers = 2, 8
	c.Pool.HealthCheckInterval = 10 * time.Second
	c.Pool.QueueCapacity = 1000
	c.Pool.QueueByteCap = "64MB"
	c.Health.HealthCheckInterval = 10 * time.Second
	c.Health.ProbeConcurrency = 8
	c.Balancer.Strategy = "weighted_response_time"
	return c
}

// ProductionLarge targets a large fleet: bigger queue, wider probe
// concurrency, adaptive balancing on.
func ProductionLarge() *Config {
	c := ProductionSmall()
	c.Pool.MinServers, c.Pool.MaxServers = 10, 100
	c.Pool.QueueCapacity = 10000
	c.Pool.QueueByteCap = "512MB"
	c.Health.ProbeConcurrency = 32
	c.Balancer.Strategy = "adaptive"
	c.Balancer.AdaptiveEnabled = true
	return c
}

// HighAvailability prioritises fast failure detection and recovery over
// throughput: low thresholds, tight recovery checks.
func HighAvailability() *Config {
	c := ProductionSmall()
	c.Health.FailureThreshold = 2
	c.Health.SuccessThreshold = 2
	c.Health.RecoveryTime = 10 * time.Second
	c.Failover.MaxFailoverAttempts = 5
	c.Failover.RecoveryCheckInterval = 10 * time.Second
	c.Pool.CircuitBreakerThreshold = 0.3
	return c
}

// CostOptimized keeps the pool small and autoscaling conservative,
// trading resilience headroom for lower standing resource usage.
func CostOptimized() *Config {
	c := ProductionSmall()
	c.Pool.MinServers = 1
	c.Pool.Autoscaling.Enabled = true
	c.Pool.Autoscaling.ScaleUpThreshold = 0.9
	c.Pool.Autoscaling.ScaleDownThreshold = 0.2
	c.Pool.Autoscaling.CooldownPeriod = 10 * time.Minute
	return c
}

// PerformanceOptimized favours the lowest-latency selection strategy and
// a wide health probe fan-out.
func PerformanceOptimized() *Config {
	c := ProductionLarge()
	c.Balancer.Strategy = "predictive"
	c.Balancer.AdaptationInterval = 10 * time.Second
	c.Pool.MaxRequestsPerServer = 50
	c.Balancer.MaxRequestsPerServer = 50
	return c
}

// Testing is tuned for fast, deterministic unit/integration tests: tiny
// intervals, no autoscaling, failover still exercised.
func Testing() *Config {
	c := Development()
	c.Pool.HealthCheckInterval = 50 * time.Millisecond
	c.Health.HealthCheckInterval = 50 * time.Millisecond
	c.Health.Timeout = 200 * time.Millisecond
	c.Health.RecoveryTime = 100 * time.Millisecond
	c.Failover.RecoveryCheckInterval = 100 * time.Millisecond
	c.Pool.QueueCapacity = 50
	c.Pool.RetryPolicy.InitialDelay = 10 * time.Millisecond
	c.Pool.RetryPolicy.MaxDelay = 100 * time.Millisecond
	return c
}

// Presets returns every named preset constructor by name, the set
// spec.md §6 enumerates.
func Presets() map[string]func() *Config {
	return map[string]func() *Config{
		"development":          Development,
		"production_small":     ProductionSmall,
		"production_large":     ProductionLarge,
		"high_availability":    HighAvailability,
		"cost_optimized":       CostOptimized,
		"performance_optimized": PerformanceOptimized,
		"testing":              Testing,
	}
}

// Load reads configuration from file/env via viper, starting from the
// named preset (or development if blank/unknown), and watches the file
// for changes via fsnotify, invoking onConfigChange after a debounce.
func Load(preset string, onConfigChange func()) (*Config, error) {
	ctor, ok := Presets()[preset]
	if !ok {
		ctor = Development
	}
	cfg := ctor()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("MCPMUX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("MCPMUX_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()
	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now

			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}

// Validate checks min/max constraints and returns non-fatal warnings
// alongside a fatal error for genuinely invalid configuration (spec.md
// §6's "warn on high default timeouts, warn when failover is disabled").
func (c *Config) Validate() (warnings []string, err error) {
	if c.Pool.MinServers < 1 {
		return nil, fmt.Errorf("config: pool.min_servers must be >= 1")
	}
	if c.Pool.MaxServers < c.Pool.MinServers {
		return nil, fmt.Errorf("config: pool.max_servers must be >= pool.min_servers")
	}
	if c.Pool.CircuitBreakerThreshold < 0 || c.Pool.CircuitBreakerThreshold > 1 {
		return nil, fmt.Errorf("config: pool.circuit_breaker_threshold must be in [0,1]")
	}
	if c.Health.FailureThreshold < 1 {
		return nil, fmt.Errorf("config: health.failure_threshold must be >= 1")
	}
	switch c.Pool.RetryPolicy.BackoffStrategy {
	case "linear", "exponential", "fixed":
	default:
		return nil, fmt.Errorf("config: pool.retry_policy.backoff_strategy must be linear, exponential or fixed")
	}
	if _, err := units.RAMInBytes(c.Pool.QueueByteCap); c.Pool.QueueByteCap != "" && err != nil {
		return nil, fmt.Errorf("config: pool.queue_byte_cap %q is not a valid size: %w", c.Pool.QueueByteCap, err)
	}

	if !c.Failover.Enabled {
		warnings = append(warnings, "failover is disabled: servers will not be retried on failure")
	}
	if c.Pool.RequestTimeout > 2*time.Minute {
		warnings = append(warnings, fmt.Sprintf("pool.request_timeout is unusually high (%s)", c.Pool.RequestTimeout))
	}
	if c.Health.HealthCheckInterval > time.Minute {
		warnings = append(warnings, fmt.Sprintf("health.health_check_interval is unusually high (%s)", c.Health.HealthCheckInterval))
	}
	if !c.Health.FetchMetrics {
		warnings = append(warnings, "health.fetch_metrics is disabled: ResourceAware scoring will see stale figures")
	}
	return warnings, nil
}

// ServerConfigs maps the declared static server list onto the domain
// shape the ServerRegistry consumes.
func (c *Config) ServerConfigs() []domain.ServerConfig {
	out := make([]domain.ServerConfig, 0, len(c.Servers))
	for _, s := range c.Servers {
		out = append(out, domain.ServerConfig{
			Host:         s.Host,
			Port:         s.Port,
			Priority:     s.Priority,
			Capabilities: s.Capabilities,
		})
	}
	return out
}

// ToMuxConfig builds the internal/mux.Config every adapter package needs
// from the enumerated YAML surface.
func (c *Config) ToMuxConfig() mux.Config {
	queueBytes, _ := units.RAMInBytes(c.Pool.QueueByteCap)
	queueCapacity := c.Pool.QueueCapacity
	if queueCapacity <= 0 && queueBytes > 0 {
		// fall back to a rough item-count estimate when only a byte cap
		// was configured, assuming a ~4KB average queued request.
		queueCapacity = int(queueBytes / 4096)
	}

	backoff := domain.BackoffExponential
	switch c.Pool.RetryPolicy.BackoffStrategy {
	case "linear":
		backoff = domain.BackoffLinear
	case "fixed":
		backoff = domain.BackoffFixed
	}

	return mux.Config{
		Health: health.Config{
			CheckInterval:    c.Health.HealthCheckInterval,
			CheckTimeout:     c.Health.Timeout,
			FailureThreshold: c.Health.FailureThreshold,
			SuccessThreshold: c.Health.SuccessThreshold,
			RecoveryTime:     c.Health.RecoveryTime,
			MonitoringWindow: c.Health.MonitoringWindow,
			FetchMetrics:     c.Health.FetchMetrics,
			ProbeConcurrency: c.Health.ProbeConcurrency,
		},
		Pool: pool.Config{
			ConnectionTimeout:    c.Pool.ConnectionTimeout,
			RequestTimeout:       c.Pool.RequestTimeout,
			QueueCapacity:        queueCapacity,
			QueueTick:            100 * time.Millisecond,
			MaxRetries:           c.Pool.RetryPolicy.MaxRetries,
			BackoffStrategy:      backoff,
			InitialDelay:         c.Pool.RetryPolicy.InitialDelay,
			MaxDelay:             c.Pool.RetryPolicy.MaxDelay,
			MaxRequestsPerServer: c.Pool.MaxRequestsPerServer,
			CooldownPeriod:       c.Pool.Autoscaling.CooldownPeriod,
			ScaleUpThreshold:     c.Pool.Autoscaling.ScaleUpThreshold,
			ScaleDownThreshold:   c.Pool.Autoscaling.ScaleDownThreshold,
			MinServers:           c.Pool.MinServers,
			MaxServers:           c.Pool.MaxServers,
			ShutdownDrain:        30 * time.Second,
		},
		Balancer: balancer.Config{
			MaxRequestsPerServer:  c.Balancer.MaxRequestsPerServer,
			ResponseTimeCeilingMs: float64(c.Balancer.ResponseTimeCeiling.Milliseconds()),
			AdaptationInterval:    c.Balancer.AdaptationInterval,
		},
		Router: routerConfig(c),
		DefaultStrategy:       c.Balancer.Strategy,
		RecoveryCheckInterval: c.Failover.RecoveryCheckInterval,
		MetricsInterval:       15 * time.Second,
		RoutingEnabled:        c.Balancer.IntelligentRouting,
		Failover: mux.FailoverConfig{
			Enabled:     c.Failover.Enabled,
			MaxAttempts: c.Failover.MaxFailoverAttempts,
			Delay:       c.Failover.FailoverDelay,
		},
	}
}

func routerConfig(c *Config) router.Config {
	rc := router.DefaultConfig()
	rc.ResponseTimeCeilingMs = float64(c.Balancer.ResponseTimeCeiling.Milliseconds())
	rc.MaxRequestsPerServer = c.Balancer.MaxRequestsPerServer
	rc.DefaultMaxRetries = c.Pool.RetryPolicy.MaxRetries
	return rc
}
