package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsDevelopment(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug logging in development preset, got %s", cfg.Logging.Level)
	}
	if cfg.Pool.MinServers != 1 || cfg.Pool.MaxServers != 5 {
		t.Errorf("unexpected pool bounds: %d/%d", cfg.Pool.MinServers, cfg.Pool.MaxServers)
	}
	if cfg.Balancer.Strategy != "round_robin" {
		t.Errorf("expected round_robin default strategy, got %s", cfg.Balancer.Strategy)
	}
}

func TestPresetsAreDistinct(t *testing.T) {
	presets := Presets()
	if len(presets) != 7 {
		t.Fatalf("expected 7 presets, got %d", len(presets))
	}

	small := ProductionSmall()
	large := ProductionLarge()
	if small.Pool.MaxServers >= large.Pool.MaxServers {
		t.Errorf("expected production_large to scale past production_small: %d vs %d", small.Pool.MaxServers, large.Pool.MaxServers)
	}

	ha := HighAvailability()
	if ha.Health.FailureThreshold >= small.Health.FailureThreshold {
		t.Errorf("expected high_availability to trip faster than production_small")
	}

	cost := CostOptimized()
	if !cost.Pool.Autoscaling.Enabled {
		t.Error("expected cost_optimized to enable autoscaling")
	}

	perf := PerformanceOptimized()
	if perf.Balancer.Strategy != "predictive" {
		t.Errorf("expected performance_optimized to select predictive strategy, got %s", perf.Balancer.Strategy)
	}

	testPreset := Testing()
	if testPreset.Health.HealthCheckInterval > time.Second {
		t.Errorf("expected testing preset to use sub-second intervals, got %s", testPreset.Health.HealthCheckInterval)
	}
}

func TestValidateRejectsBadPoolBounds(t *testing.T) {
	cfg := Development()
	cfg.Pool.MinServers = 0

	if _, err := cfg.Validate(); err == nil {
		t.Error("expected error for min_servers < 1")
	}

	cfg = Development()
	cfg.Pool.MaxServers = 0
	cfg.Pool.MinServers = 2
	if _, err := cfg.Validate(); err == nil {
		t.Error("expected error when max_servers < min_servers")
	}
}

func TestValidateRejectsBadCircuitBreakerThreshold(t *testing.T) {
	cfg := Development()
	cfg.Pool.CircuitBreakerThreshold = 1.5

	if _, err := cfg.Validate(); err == nil {
		t.Error("expected error for circuit_breaker_threshold outside [0,1]")
	}
}

func TestValidateRejectsUnknownBackoffStrategy(t *testing.T) {
	cfg := Development()
	cfg.Pool.RetryPolicy.BackoffStrategy = "quadratic"

	if _, err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown backoff strategy")
	}
}

func TestValidateRejectsBadQueueByteCap(t *testing.T) {
	cfg := Development()
	cfg.Pool.QueueByteCap = "not-a-size"

	if _, err := cfg.Validate(); err == nil {
		t.Error("expected error for malformed queue_byte_cap")
	}
}

func TestValidateWarnsOnDisabledFailover(t *testing.T) {
	cfg := Development()
	cfg.Failover.Enabled = false

	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning when failover is disabled")
	}
}

func TestValidateDefaultConfigIsClean(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate cleanly, got: %v", err)
	}
}

func TestServerConfigsMapsToDomain(t *testing.T) {
	cfg := Development()
	cfg.Servers = []ServerConfig{
		{Host: "127.0.0.1", Port: 9001, Priority: 10, Capabilities: []string{"vector_search"}},
	}

	out := cfg.ServerConfigs()
	if len(out) != 1 {
		t.Fatalf("expected 1 server, got %d", len(out))
	}
	if out[0].Host != "127.0.0.1" || out[0].Port != 9001 {
		t.Errorf("unexpected mapped server: %+v", out[0])
	}
	if len(out[0].Capabilities) != 1 || out[0].Capabilities[0] != "vector_search" {
		t.Errorf("expected mapped server to carry vector_search capability, got %+v", out[0].Capabilities)
	}
}

func TestToMuxConfigPreservesRouterDefaults(t *testing.T) {
	cfg := Development()
	muxCfg := cfg.ToMuxConfig()

	if muxCfg.Router.BaseCost == 0 {
		t.Error("expected router.Config.BaseCost to keep DefaultConfig's non-zero baseline")
	}
	if muxCfg.Router.ResponseTimeCeilingMs != float64(cfg.Balancer.ResponseTimeCeiling.Milliseconds()) {
		t.Errorf("expected router ceiling to mirror balancer ceiling, got %v", muxCfg.Router.ResponseTimeCeilingMs)
	}
	if muxCfg.DefaultStrategy != cfg.Balancer.Strategy {
		t.Errorf("expected default strategy %s, got %s", cfg.Balancer.Strategy, muxCfg.DefaultStrategy)
	}
}

func TestToMuxConfigDerivesQueueCapacityFromByteCap(t *testing.T) {
	cfg := Development()
	cfg.Pool.QueueCapacity = 0
	cfg.Pool.QueueByteCap = "8MB"

	muxCfg := cfg.ToMuxConfig()
	if muxCfg.Pool.QueueCapacity <= 0 {
		t.Error("expected a positive derived queue capacity from the byte cap")
	}
}
