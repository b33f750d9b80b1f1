package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/logger"
)

// Config is the subset of the pool's health configuration this monitor
// needs; the full surface lives in internal/config.
type Config struct {
	CheckInterval     time.Duration
	CheckTimeout      time.Duration
	FailureThreshold  int
	SuccessThreshold  int
	RecoveryTime      time.Duration
	MonitoringWindow  time.Duration
	FetchMetrics      bool
	ProbeConcurrency  int
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:    10 * time.Second,
		CheckTimeout:     10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTime:     30 * time.Second,
		MonitoringWindow: 5 * time.Minute,
		FetchMetrics:     true,
		ProbeConcurrency: 8,
	}
}

// Monitor implements ports.HealthMonitor: a ticker-driven probe loop over
// every registered server plus the breaker state machine that decides
// admission (spec.md §4.2). Grounded on the teacher's worker_pool.go fan-
// out shape, replacing its job-channel pool with errgroup.SetLimit since
// every tick's work is a bounded, one-shot batch rather than a long queue.
type Monitor struct {
	registry ports.ServerRegistry
	dialer   ports.Dialer
	cfg      Config
	breakers *breakers
	tracker  *statusTransitionTracker
	log      *logger.StyledLogger
	events   ports.EventPublisher

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewMonitor(registry ports.ServerRegistry, dialer ports.Dialer, cfg Config, log *logger.StyledLogger, events ports.EventPublisher) *Monitor {
	return &Monitor{
		registry: registry,
		dialer:   dialer,
		cfg:      cfg,
		breakers: newBreakers(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.RecoveryTime, cfg.MonitoringWindow),
		tracker:  newStatusTransitionTracker(),
		log:      log,
		events:   events,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

var _ ports.HealthMonitor = (*Monitor)(nil)

func (m *Monitor) CanExecute(id string) bool {
	return m.breakers.canExecute(id)
}

func (m *Monitor) Stats(id string) (domain.CircuitStats, bool) {
	return m.breakers.stats(id)
}

func (m *Monitor) ForceState(id string, state domain.CircuitState, reason string) {
	m.breakers.forceState(id, state)
	if m.log != nil {
		m.log.Warn("circuit breaker forced", "server", id, "state", state.String(), "reason", reason)
	}
}

// Record updates the breaker and the registry's derived server state for
// id; the HealthMonitor owns both exclusively (spec.md §7).
func (m *Monitor) Record(id string, success bool, responseTime time.Duration, err error) {
	m.breakers.record(id, success, responseTime)
	stats, _ := m.breakers.stats(id)

	_ = m.registry.Update(id, func(s *domain.Server) {
		now := time.Now()
		s.TotalRequests++
		if success {
			s.SuccessCount++
			s.Stats.LastSuccess = now
			s.Stats.ConsecutiveSuccesses++
			s.Stats.ConsecutiveFailures = 0
		} else {
			s.FailureCount++
			s.Stats.LastFailure = now
			s.Stats.ConsecutiveFailures++
			s.Stats.ConsecutiveSuccesses = 0
		}
		s.Stats.LastHealthCheck = now
		s.Stats.AvgResponseTimeMs += emaAlpha * (float64(responseTime.Milliseconds()) - s.Stats.AvgResponseTimeMs)
		if s.TotalRequests > 0 {
			s.Stats.SuccessRate = float64(s.SuccessCount) / float64(s.TotalRequests)
		}
		s.State = deriveState(stats.State, s.Stats.SuccessRate)
	})

	shouldLog, errCount := m.tracker.shouldLog(id, stats.State, !success)
	if shouldLog && m.log != nil {
		if stats.State != domain.CircuitClosed || errCount > 0 {
			m.log.Warn("server health issue", "server", id, "circuit", stats.State.String(), "consecutive_failures", errCount, "err", err)
		} else {
			m.log.Info("server health restored", "server", id, "circuit", stats.State.String())
		}
	}
}

// deriveState maps circuit state + success rate onto the coarser liveness
// state carried on the server record, per spec.md §3's eligibility rule.
func deriveState(circuit domain.CircuitState, successRate float64) domain.ServerState {
	switch {
	case circuit == domain.CircuitOpen:
		return domain.StateUnhealthy
	case circuit == domain.CircuitHalfOpen:
		return domain.StateDegraded
	case successRate < 0.8:
		return domain.StateDegraded
	default:
		return domain.StateHealthy
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	go m.loop(ctx)
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	close(m.stopCh)
	select {
	case <-m.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {
	servers := m.registry.Snapshot()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ProbeConcurrency)

	for _, s := range servers {
		s := s
		g.Go(func() error {
			m.probeOne(gctx, s)
			return nil // a single server's probe failure never aborts the batch
		})
	}
	_ = g.Wait()
}

func (m *Monitor) probeOne(ctx context.Context, s *domain.Server) {
	prevState := s.State

	if !m.breakers.canExecute(s.ID) {
		return // still inside an open circuit's recovery_time, skip the dial
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	start := time.Now()
	conn, err := m.dialer.Dial(checkCtx, s.Host, s.Port, m.cfg.CheckTimeout)
	if err != nil {
		m.Record(s.ID, false, time.Since(start), err)
		m.emitTransitionEvents(s.ID, prevState)
		return
	}
	defer conn.Close()

	err = conn.Ping(checkCtx)
	elapsed := time.Since(start)
	m.Record(s.ID, err == nil, elapsed, err)

	if err == nil && m.cfg.FetchMetrics {
		if metrics, merr := conn.Metrics(checkCtx); merr == nil {
			_ = m.registry.Update(s.ID, func(srv *domain.Server) {
				if cpu, ok := metrics["cpu_percent"]; ok {
					srv.Metadata.CPUUsagePercent = cpu
				}
				if mem, ok := metrics["memory_bytes"]; ok {
					srv.Metadata.MemoryUsageBytes = int64(mem)
				}
			})
		}
		// metrics failure does not count as a health failure (spec.md §4.2)
	}

	m.emitTransitionEvents(s.ID, prevState)
}

func (m *Monitor) emitTransitionEvents(id string, prevState domain.ServerState) {
	if m.events == nil {
		return
	}
	srv, ok := m.registry.Get(id)
	if !ok || srv.State == prevState {
		return
	}
	if srv.State == domain.StateUnhealthy {
		m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventServerFailure, ServerID: id, Trigger: domain.TriggerCircuitBreaker})
	} else if prevState == domain.StateUnhealthy {
		m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventServerRecovery, ServerID: id})
	}
}
