// Package mux implements the Multiplexer façade: the single entry point
// callers use to register servers, execute RAG requests, and observe the
// fabric's health (spec.md §3). Grounded on the teacher's internal/app
// top-level composition — one struct owning every collaborator's
// lifecycle, started and stopped in a fixed order.
package mux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thushan/mcpmux/internal/adapter/balancer"
	"github.com/thushan/mcpmux/internal/adapter/health"
	"github.com/thushan/mcpmux/internal/adapter/mcpwire"
	"github.com/thushan/mcpmux/internal/adapter/pool"
	"github.com/thushan/mcpmux/internal/adapter/registry"
	"github.com/thushan/mcpmux/internal/adapter/router"
	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/logger"
	"github.com/thushan/mcpmux/internal/muxerr"
)

// ServerStatus is one entry in a Status snapshot.
type ServerStatus struct {
	ID             string
	State          domain.ServerState
	Circuit        domain.CircuitStats
	ActiveRequests int64
	TotalRequests  int64
	SuccessRate    float64
}

// Status is the Multiplexer's point-in-time self-report (spec.md §3).
type Status struct {
	Servers      []ServerStatus
	Strategies   []balancer.Effectiveness
	QueueSize    int
	Initialized  bool
}

// Multiplexer is the public façade composing ServerRegistry, HealthMonitor,
// LoadBalancer/Router, and PoolManager into one callable surface.
type Multiplexer struct {
	cfg Config
	log *logger.StyledLogger

	registry ports.ServerRegistry
	health   *health.Monitor
	balancer *balancer.Factory
	router   *router.Router
	poolMgr  *pool.Manager
	events   *eventPublisher

	stopCh chan struct{}
	loopWG sync.WaitGroup

	initialized bool
}

// New wires every collaborator together without starting any background
// loop; call Initialize to start serving.
func New(cfg Config, log *logger.StyledLogger) *Multiplexer {
	reg := registry.New()
	events := newEventPublisher()

	bal := balancer.NewFactory(withStrategyLogging(cfg.Balancer, log, events))

	routerCfg := cfg.Router
	if routerCfg.DefaultStrategy == "" {
		routerCfg.DefaultStrategy = cfg.DefaultStrategy
	}
	rtr := router.New(func(name string) (ports.LoadBalancer, error) {
		return bal.Get(name)
	}, routerCfg)

	mon := health.NewMonitor(reg, mcpwire.NewDialer(), cfg.Health, log, events)

	var sel pool.Selector
	if cfg.RoutingEnabled {
		sel = &routerSelector{r: rtr}
	} else {
		sel = &balancerSelector{bal: bal, strategy: cfg.DefaultStrategy}
	}

	poolMgr := pool.New(reg, mon, mcpwire.NewDialer(), sel, cfg.Pool, log, events)

	return &Multiplexer{
		cfg:      cfg,
		log:      log,
		registry: reg,
		health:   mon,
		balancer: bal,
		router:   rtr,
		poolMgr:  poolMgr,
		events:   events,
		stopCh:   make(chan struct{}),
	}
}

// withStrategyLogging wraps the configured OnStrategyChanged (if any)
// with a log line, the way the teacher logs endpoint selector swaps, and
// publishes a strategyChanged event.
func withStrategyLogging(cfg balancer.Config, log *logger.StyledLogger, events *eventPublisher) balancer.Config {
	prev := cfg.OnStrategyChanged
	cfg.OnStrategyChanged = func(from, to string) {
		if log != nil {
			log.InfoStrategyChanged("adaptive strategy switched", from, to)
		}
		events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventStrategyChanged, FromStrategy: from, ToStrategy: to})
		if prev != nil {
			prev(from, to)
		}
	}
	return cfg
}

// Initialize registers the given servers, then starts the health monitor,
// pool manager, and the Multiplexer's own recovery/metrics loops.
func (m *Multiplexer) Initialize(ctx context.Context, servers []domain.ServerConfig) error {
	for _, cfg := range servers {
		if err := m.registry.Add(cfg); err != nil {
			return fmt.Errorf("mux: initialise: %w", err)
		}
		m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventServerAdded, ServerID: cfg.ID()})
	}

	if err := m.health.Start(ctx); err != nil {
		return fmt.Errorf("mux: start health monitor: %w", err)
	}
	if err := m.poolMgr.Start(ctx); err != nil {
		return fmt.Errorf("mux: start pool manager: %w", err)
	}

	m.loopWG.Add(2)
	go m.recoveryLoop(ctx)
	go m.metricsLoop(ctx)

	m.initialized = true
	m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventInitialized})
	if m.log != nil {
		m.log.InfoWithCount("multiplexer initialised", len(servers))
	}
	return nil
}

// Execute submits a RAG request for routing and returns once it either
// resolves or exhausts its retry/failover budget (spec.md §4.4/§4.5).
//
// PoolManager.Enqueue already retries one submitted item across servers
// (rc.History/FailedServerSet, bounded by the matched rule's MaxRetries or
// the pool default). Execute wraps that whole attempt in the Multiplexer's
// own outer failover loop: when every server PoolManager tried is
// exhausted, Execute resubmits the request fresh, up to Failover.MaxAttempts
// times, waiting Failover.Delay*(attempt+1) between resubmissions so a
// server recovering mid-outage gets a chance before the next try.
func (m *Multiplexer) Execute(ctx context.Context, req domain.RAGRequest, priority int, deadline *time.Time) (domain.RAGResponse, error) {
	if !m.cfg.Failover.Enabled || m.cfg.Failover.MaxAttempts <= 1 {
		return m.poolMgr.Enqueue(ctx, req, priority, deadline)
	}

	var lastErr error
	for attempt := 0; attempt < m.cfg.Failover.MaxAttempts; attempt++ {
		resp, err := m.poolMgr.Enqueue(ctx, req, priority, deadline)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == m.cfg.Failover.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return domain.RAGResponse{}, ctx.Err()
		case <-time.After(m.cfg.Failover.Delay * time.Duration(attempt+1)):
		}
	}
	return domain.RAGResponse{}, lastErr
}

// AddServer registers a new server at runtime.
func (m *Multiplexer) AddServer(cfg domain.ServerConfig) error {
	if err := m.registry.Add(cfg); err != nil {
		return err
	}
	m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventServerAdded, ServerID: cfg.ID()})
	return nil
}

// RemoveServer de-registers a server, draining its in-flight requests and
// closing its pooled connection before the registry record disappears.
func (m *Multiplexer) RemoveServer(id string) error {
	if _, ok := m.registry.Get(id); !ok {
		return fmt.Errorf("registry: server %s not found", id)
	}
	if err := m.poolMgr.DropServer(context.Background(), id); err != nil {
		return err
	}
	if err := m.registry.Remove(id); err != nil {
		return err
	}
	m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventServerRemoved, ServerID: id})
	return nil
}

// ForceFailover manually opens a server's circuit breaker, immediately
// excluding it from selection (spec.md §4.2's manual override).
func (m *Multiplexer) ForceFailover(id string, reason string) error {
	if _, ok := m.registry.Get(id); !ok {
		return muxerr.New(muxerr.KindNoServersAvailable, fmt.Sprintf("mux: server %s not found", id))
	}
	m.health.ForceState(id, domain.CircuitOpen, reason)
	m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventFailoverTriggered, ServerID: id, Trigger: domain.TriggerManual})
	return nil
}

// Status returns a point-in-time snapshot of every server, every
// load-balancing strategy's effectiveness, and the current queue depth.
func (m *Multiplexer) Status() Status {
	servers := m.registry.Snapshot()
	out := make([]ServerStatus, 0, len(servers))
	for _, s := range servers {
		stats, _ := m.health.Stats(s.ID)
		out = append(out, ServerStatus{
			ID:             s.ID,
			State:          s.State,
			Circuit:        stats,
			ActiveRequests: s.ActiveRequests,
			TotalRequests:  s.TotalRequests,
			SuccessRate:    s.Stats.SuccessRate,
		})
	}
	return Status{
		Servers:     out,
		Strategies:  m.balancer.Effectiveness(),
		QueueSize:   m.poolMgr.QueueSize(),
		Initialized: m.initialized,
	}
}

// Subscribe exposes the event stream to observers (spec.md §9's bounded,
// per-subscriber channel — no unbounded fan-out list).
func (m *Multiplexer) Subscribe(ctx context.Context) (<-chan domain.Event, func()) {
	return m.events.Subscribe(ctx)
}

// Shutdown stops the recovery and metrics loops, then shuts down the pool
// manager (which drains in-flight requests) and the health monitor
// concurrently, with no ordering between the two, and finally closes the
// event bus.
func (m *Multiplexer) Shutdown(ctx context.Context) error {
	close(m.stopCh)
	m.loopWG.Wait()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.poolMgr.Shutdown(gctx) })
	g.Go(func() error { return m.health.Stop(gctx) })
	err := g.Wait()

	m.events.Shutdown()
	return err
}

// recoveryLoop periodically nudges circuit breakers stuck Open back to
// HalfOpen so the health monitor's own probe loop gets a chance to
// recover them, per spec.md §4.6.
func (m *Multiplexer) recoveryLoop(ctx context.Context) {
	defer m.loopWG.Done()

	ticker := time.NewTicker(m.cfg.RecoveryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkRecovery()
		}
	}
}

func (m *Multiplexer) checkRecovery() {
	for _, s := range m.registry.Snapshot() {
		if s.State != domain.StateUnhealthy {
			continue
		}
		stats, ok := m.health.Stats(s.ID)
		if !ok || stats.State != domain.CircuitOpen {
			continue
		}
		if time.Since(stats.LastFailure) < m.cfg.RecoveryCheckInterval {
			continue
		}
		m.health.ForceState(s.ID, domain.CircuitHalfOpen, "recovery check interval elapsed")
	}
}

// metricsLoop periodically publishes an aggregate snapshot event, the
// dashboard/CLI status command's push-side counterpart to Status().
func (m *Multiplexer) metricsLoop(ctx context.Context) {
	defer m.loopWG.Done()

	ticker := time.NewTicker(m.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventMetricsUpdated})
		}
	}
}
