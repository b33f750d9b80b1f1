package config

import "time"

// Config holds the full configuration surface enumerated in spec.md §6.
type Config struct {
	Logging  LoggingConfig       `yaml:"logging"`
	Pool     PoolConfig          `yaml:"pool"`
	Health   HealthConfig        `yaml:"health"`
	Balancer LoadBalancingConfig `yaml:"load_balancing"`
	Failover FailoverConfig      `yaml:"failover"`
	Servers  []ServerConfig      `yaml:"servers"`
}

// PoolConfig mirrors spec.md §6's Pool surface.
type PoolConfig struct {
	MinServers              int               `yaml:"min_servers"`
	MaxServers              int               `yaml:"max_servers"`
	HealthCheckInterval     time.Duration     `yaml:"health_check_interval"`
	MaxConsecutiveFailures  int               `yaml:"max_consecutive_failures"`
	ConnectionTimeout       time.Duration     `yaml:"connection_timeout"`
	RequestTimeout          time.Duration     `yaml:"request_timeout"`
	MaxRequestsPerServer    int64             `yaml:"max_requests_per_server"`
	CircuitBreakerThreshold float64           `yaml:"circuit_breaker_threshold"`
	Autoscaling             AutoscalingConfig `yaml:"autoscaling"`
	RetryPolicy             RetryPolicyConfig `yaml:"retry_policy"`
	// QueueByteCap is a human-readable size ("64MB") parsed with
	// docker/go-units. It is used only when QueueCapacity is unset, to
	// derive an item-count capacity at ~4KB per queued request; the bytes
	// actually queued are not measured.
	QueueByteCap string `yaml:"queue_byte_cap"`
	QueueCapacity int   `yaml:"queue_capacity"`
}

type AutoscalingConfig struct {
	Enabled            bool          `yaml:"enabled"`
	ScaleUpThreshold   float64       `yaml:"scale_up_threshold"`
	ScaleDownThreshold float64       `yaml:"scale_down_threshold"`
	CooldownPeriod     time.Duration `yaml:"cooldown_period"`
}

type RetryPolicyConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	BackoffStrategy string        `yaml:"backoff_strategy"` // linear|exponential|fixed
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
}

// HealthConfig mirrors spec.md §6's Health surface.
type HealthConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold"`
	Timeout             time.Duration `yaml:"timeout"`
	RecoveryTime        time.Duration `yaml:"recovery_time"`
	SuccessThreshold    int           `yaml:"success_threshold"`
	MonitoringWindow    time.Duration `yaml:"monitoring_window"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	FetchMetrics        bool          `yaml:"fetch_metrics"`
	ProbeConcurrency    int           `yaml:"probe_concurrency"`
}

// LoadBalancingConfig mirrors spec.md §6's Load balancing surface.
type LoadBalancingConfig struct {
	Strategy              string                `yaml:"strategy"`
	AdaptiveEnabled       bool                  `yaml:"adaptive_enabled"`
	AdaptationInterval    time.Duration         `yaml:"adaptation_interval"`
	PerformanceThresholds PerformanceThresholds `yaml:"performance_thresholds"`
	MaxRequestsPerServer  int64                 `yaml:"max_requests_per_server"`
	// ResponseTimeCeiling bounds the scoring formula's performance term;
	// it is a plain time.Duration, not a go-units size.
	ResponseTimeCeiling time.Duration `yaml:"response_time_ceiling"`
	// IntelligentRouting toggles the Router's rule table; disabled, every
	// request goes straight to the LoadBalancer named by Strategy.
	IntelligentRouting bool `yaml:"intelligent_routing"`
}

type PerformanceThresholds struct {
	MaxResponseTime time.Duration `yaml:"max_response_time"`
	MaxErrorRate    float64       `yaml:"max_error_rate"`
	MaxUtilization  float64       `yaml:"max_utilization"`
}

// FailoverConfig mirrors spec.md §6's Failover surface.
type FailoverConfig struct {
	Enabled               bool          `yaml:"enabled"`
	MaxFailoverAttempts   int           `yaml:"max_failover_attempts"`
	FailoverDelay         time.Duration `yaml:"failover_delay"`
	AutoRecovery          bool          `yaml:"auto_recovery"`
	RecoveryCheckInterval time.Duration `yaml:"recovery_check_interval"`
}

// ServerConfig is the YAML shape for one statically-declared backend
// server, mapped onto domain.ServerConfig at load time.
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	Priority     int      `yaml:"priority"`
	Capabilities []string `yaml:"capabilities"`
}

// LoggingConfig mirrors the teacher's internal/config logging section.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
