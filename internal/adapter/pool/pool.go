// Package pool implements ports.PoolManager: server connection lifecycle,
// the priority request queue, retry/backoff, and autoscale signalling
// (spec.md §4.4). Grounded on the teacher's proxy request pump shape
// (dial, send, await reply, release in a guaranteed-release block) but
// retargeted from one-shot HTTP proxying to a persistent per-server TCP
// connection plus a shared priority queue in front of it.
package pool

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/logger"
	"github.com/thushan/mcpmux/internal/muxerr"
	litepool "github.com/thushan/mcpmux/pkg/pool"
	"github.com/thushan/mcpmux/pkg/pqueue"
)

// Config is the PoolManager's tunable surface (spec.md §4.4).
type Config struct {
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration

	QueueCapacity int
	QueueTick     time.Duration

	MaxRetries      int
	BackoffStrategy domain.BackoffStrategy
	InitialDelay    time.Duration
	MaxDelay        time.Duration

	MaxRequestsPerServer int64

	CooldownPeriod     time.Duration
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	MinServers         int
	MaxServers         int

	ShutdownDrain time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectionTimeout:    5 * time.Second,
		RequestTimeout:       30 * time.Second,
		QueueCapacity:        1000,
		QueueTick:            100 * time.Millisecond,
		MaxRetries:           3,
		BackoffStrategy:      domain.BackoffExponential,
		InitialDelay:         time.Second,
		MaxDelay:             10 * time.Second,
		MaxRequestsPerServer: 10,
		CooldownPeriod:       5 * time.Minute,
		ScaleUpThreshold:     0.8,
		ScaleDownThreshold:   0.3,
		MinServers:           1,
		MaxServers:           20,
		ShutdownDrain:        30 * time.Second,
	}
}

// Selector is whatever the Multiplexer wires in to pick a server for a
// queue item — either the Router or the LoadBalancer directly, per
// spec.md §4.4 ("call the selection function (Router or LoadBalancer)").
type Selector interface {
	Select(ctx context.Context, rc *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error)
	RecordOutcome(decision domain.RoutingDecision, success bool, responseTime time.Duration)
}

type Manager struct {
	registry ports.ServerRegistry
	health   ports.HealthMonitor
	dialer   ports.Dialer
	selector Selector
	cfg      Config
	log      *logger.StyledLogger
	events   ports.EventPublisher

	queue    *pqueue.Queue
	limiter  *rate.Limiter
	conns    *xsync.Map[string, ports.MCPClient]
	connMu   sync.Mutex

	// rcPool recycles *domain.RequestContext across Enqueue calls, the way
	// the teacher's proxy services pool request/response buffers.
	rcPool *litepool.Pool[*domain.RequestContext]

	enqueueCh chan struct{}

	shuttingDown bool
	mu           sync.Mutex

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(registry ports.ServerRegistry, health ports.HealthMonitor, dialer ports.Dialer, selector Selector, cfg Config, log *logger.StyledLogger, events ports.EventPublisher) *Manager {
	return &Manager{
		registry:  registry,
		health:    health,
		dialer:    dialer,
		selector:  selector,
		cfg:       cfg,
		log:       log,
		events:    events,
		queue:     pqueue.New(cfg.QueueCapacity),
		limiter:   rate.NewLimiter(rate.Limit(1000), cfg.QueueCapacity),
		conns:     xsync.NewMap[string, ports.MCPClient](),
		rcPool:    litepool.NewLitePool(func() *domain.RequestContext { return &domain.RequestContext{} }),
		enqueueCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

var _ ports.PoolManager = (*Manager)(nil)

var ErrShuttingDown = errors.New("pool: shutting down")

// resolver bridges QueueItem's generic resolver contract to a per-call
// channel-backed future, the way the teacher's proxy blocks the inbound
// HTTP handler goroutine on a response channel.
type resolver struct {
	ch chan resolution
}

type resolution struct {
	resp domain.RAGResponse
	err  error
}

func (r *resolver) Resolve(resp domain.RAGResponse) { r.ch <- resolution{resp: resp} }
func (r *resolver) Reject(err error)                { r.ch <- resolution{err: err} }

func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Enqueue places a request on the priority queue and blocks until it is
// dispatched, retried to exhaustion, or the caller's context is done.
func (m *Manager) Enqueue(ctx context.Context, req domain.RAGRequest, priority int, deadline *time.Time) (domain.RAGResponse, error) {
	m.mu.Lock()
	down := m.shuttingDown
	m.mu.Unlock()
	if down {
		return domain.RAGResponse{}, muxerr.New(muxerr.KindShutdown, "pool manager is shutting down")
	}
	if !m.limiter.Allow() {
		return domain.RAGResponse{}, muxerr.New(muxerr.KindApplication, "admission rate exceeded, queue under backpressure")
	}

	res := &resolver{ch: make(chan resolution, 1)}
	item := &domain.QueueItem{
		ID:          newRequestID(),
		Request:     req,
		Priority:    priority,
		EnqueueTime: time.Now(),
		Deadline:    deadline,
		Resolver:    res,
	}
	if err := m.queue.Push(item); err != nil {
		return domain.RAGResponse{}, muxerr.Wrap(muxerr.KindApplication, "queue at capacity", err)
	}
	m.nudge()

	select {
	case r := <-res.ch:
		return r.resp, r.err
	case <-ctx.Done():
		return domain.RAGResponse{}, ctx.Err()
	}
}

func (m *Manager) nudge() {
	select {
	case m.enqueueCh <- struct{}{}:
	default:
	}
}

func (m *Manager) QueueSize() int { return m.queue.Len() }

func (m *Manager) Start(ctx context.Context) error {
	go m.dispatchLoop(ctx)
	go m.autoscaleLoop(ctx)
	return nil
}

func (m *Manager) dispatchLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.QueueTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		case <-m.enqueueCh:
			m.tick(ctx)
		}
	}
}

// tick implements spec.md §4.4's queue processing round: evict expired
// items, compute available capacity across eligible servers, dispatch up
// to that many items off the head of the priority queue.
func (m *Manager) tick(ctx context.Context) {
	now := time.Now()
	for _, expired := range m.queue.EvictExpired(now) {
		expired.Resolver.Reject(muxerr.New(muxerr.KindDeadlineExceeded, "queue item deadline passed before dispatch"))
	}

	eligible := m.eligibleServers()
	capacity := availableCapacity(eligible, m.cfg.MaxRequestsPerServer)
	if capacity == 0 {
		// items wait only while some selectable server is merely full;
		// with none at all, dispatch them so the selector rejects each
		// with NoServersAvailable instead of leaving it queued.
		saturated := false
		for _, s := range m.registry.Snapshot() {
			if s.State.IsSelectable() && s.ActiveRequests >= m.cfg.MaxRequestsPerServer {
				saturated = true
				break
			}
		}
		if !saturated {
			capacity = m.queue.Len()
		}
	}

	for i := 0; i < capacity; i++ {
		item, ok := m.queue.Pop()
		if !ok {
			return
		}
		go m.dispatch(ctx, item)
	}
}

func (m *Manager) eligibleServers() []*domain.Server {
	all := m.registry.Snapshot()
	out := make([]*domain.Server, 0, len(all))
	for _, s := range all {
		if s.State.IsSelectable() && m.health.CanExecute(s.ID) && s.ActiveRequests < m.cfg.MaxRequestsPerServer {
			out = append(out, s)
		}
	}
	return out
}

func availableCapacity(servers []*domain.Server, maxPerServer int64) int {
	var total int64
	for _, s := range servers {
		if room := maxPerServer - s.ActiveRequests; room > 0 {
			total += room
		}
	}
	if total > 1<<20 {
		total = 1 << 20 // defensive clamp, never hit in practice
	}
	return int(total)
}

// dispatch picks a server and sends item.Request. The RequestContext is
// created once per item (on its first dispatch) and carried via item.Ctx
// across every retryOrFail requeue, so History/FailedServerSet accumulate
// over the item's full retry lifecycle rather than resetting per attempt.
func (m *Manager) dispatch(ctx context.Context, item *domain.QueueItem) {
	rc := item.Ctx
	if rc == nil {
		rc = m.rcPool.Get()
		rc.ID = item.ID
		rc.Request = item.Request
		rc.Priority = item.Priority
		item.Ctx = rc
	}

	eligible := m.eligibleServers()
	srv, decision, err := m.selector.Select(ctx, rc, eligible)
	if err != nil {
		m.fail(item, rc, err)
		return
	}
	if item.MaxRetries == 0 && decision.MaxRetries > 0 {
		item.MaxRetries = decision.MaxRetries
	}

	_ = m.registry.Update(srv.ID, func(s *domain.Server) { s.ActiveRequests++ })
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		_ = m.registry.Update(srv.ID, func(s *domain.Server) {
			if s.ActiveRequests > 0 {
				s.ActiveRequests--
			}
		})
	}
	defer release()

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, sendErr := m.send(reqCtx, srv, item.Request)
	elapsed := time.Since(start)

	m.health.Record(srv.ID, sendErr == nil, elapsed, sendErr)
	m.selector.RecordOutcome(decision, sendErr == nil, elapsed)

	if m.events != nil {
		m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventRequestCompleted, RequestID: item.ID, Duration: elapsed, Success: sendErr == nil, Err: sendErr})
	}

	if sendErr != nil {
		rc.RecordAttempt(srv.ID, false, sendErr.Error())
		m.retryOrFail(ctx, item, rc, sendErr)
		return
	}

	resp.Metadata.ServerID = srv.ID
	m.releaseCtx(item)
	item.Resolver.Resolve(resp)
}

func (m *Manager) retryOrFail(ctx context.Context, item *domain.QueueItem, rc *domain.RequestContext, cause error) {
	maxRetries := m.cfg.MaxRetries
	if item.MaxRetries > 0 {
		maxRetries = item.MaxRetries
	}
	item.RetryCount++
	if item.RetryCount > maxRetries {
		m.fail(item, rc, muxerr.Wrap(muxerr.KindFailoverExhausted, "retries exhausted", cause).WithHistory(rc.History))
		return
	}

	delay := m.cfg.BackoffStrategy.Delay(item.RetryCount, m.cfg.InitialDelay, m.cfg.MaxDelay)
	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.releaseCtx(item)
			return
		}
		if err := m.queue.Push(item); err != nil {
			m.releaseCtx(item)
			item.Resolver.Reject(muxerr.Wrap(muxerr.KindApplication, "requeue failed", err))
		} else {
			m.nudge()
		}
	}()
}

func (m *Manager) fail(item *domain.QueueItem, rc *domain.RequestContext, err error) {
	var me *muxerr.Error
	if errors.As(err, &me) {
		me.History = append([]domain.RoutingAttempt(nil), rc.History...)
		m.releaseCtx(item)
		item.Resolver.Reject(me)
		return
	}
	m.releaseCtx(item)
	item.Resolver.Reject(err)
}

// releaseCtx returns item.Ctx to rcPool exactly once, at whichever terminal
// point the item reaches (resolved, or failed with no further retry).
func (m *Manager) releaseCtx(item *domain.QueueItem) {
	if item.Ctx == nil {
		return
	}
	m.rcPool.Put(item.Ctx)
	item.Ctx = nil
}

// send establishes (or reuses) the server's persistent connection and
// performs one rag/query call.
func (m *Manager) send(ctx context.Context, srv *domain.Server, req domain.RAGRequest) (domain.RAGResponse, error) {
	conn, err := m.connFor(ctx, srv)
	if err != nil {
		return domain.RAGResponse{}, muxerr.Wrap(muxerr.KindConnection, fmt.Sprintf("dial %s", srv.ID), err).WithServer(srv.ID)
	}
	resp, err := conn.Query(ctx, req)
	if err != nil {
		m.dropConn(srv.ID)
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.RAGResponse{}, muxerr.Wrap(muxerr.KindTimeout, "query timed out", err).WithServer(srv.ID)
		}
		return domain.RAGResponse{}, muxerr.Wrap(muxerr.KindProtocol, "query failed", err).WithServer(srv.ID)
	}
	return resp, nil
}

func (m *Manager) connFor(ctx context.Context, srv *domain.Server) (ports.MCPClient, error) {
	if c, ok := m.conns.Load(srv.ID); ok {
		return c, nil
	}

	m.connMu.Lock()
	defer m.connMu.Unlock()

	if c, ok := m.conns.Load(srv.ID); ok {
		return c, nil
	}
	c, err := m.dialer.Dial(ctx, srv.Host, srv.Port, m.cfg.ConnectionTimeout)
	if err != nil {
		return nil, err
	}
	m.conns.Store(srv.ID, c)
	return c, nil
}

func (m *Manager) dropConn(id string) {
	if c, ok := m.conns.LoadAndDelete(id); ok {
		_ = c.Close()
	}
}

func (m *Manager) autoscaleLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CooldownPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evaluateAutoscale()
		}
	}
}

func (m *Manager) evaluateAutoscale() {
	servers := m.registry.Snapshot()
	if len(servers) == 0 {
		return
	}
	var active int64
	for _, s := range servers {
		active += s.ActiveRequests
	}
	capacity := int64(len(servers)) * m.cfg.MaxRequestsPerServer
	if capacity == 0 {
		return
	}
	utilisation := float64(active) / float64(capacity)

	if utilisation > m.cfg.ScaleUpThreshold && len(servers) < m.cfg.MaxServers && m.events != nil {
		m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventMetricsUpdated, Status: "ScaleUpNeeded"})
	}
	if utilisation < m.cfg.ScaleDownThreshold && len(servers) > m.cfg.MinServers && m.events != nil {
		m.events.Publish(domain.Event{Timestamp: time.Now(), Kind: domain.EventMetricsUpdated, Status: "ScaleDownNeeded"})
	}
}

// Shutdown stops accepting new enqueues, waits up to ShutdownDrain for
// active requests to reach zero, then rejects whatever remains and
// closes every connection (spec.md §4.4).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	m.mu.Unlock()

	close(m.stopCh)
	select {
	case <-m.doneCh:
	case <-ctx.Done():
	}

	deadline := time.Now().Add(m.cfg.ShutdownDrain)
	for time.Now().Before(deadline) {
		if m.totalActive() == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	for {
		item, ok := m.queue.Pop()
		if !ok {
			break
		}
		item.Resolver.Reject(muxerr.New(muxerr.KindShutdown, "pool manager shut down"))
	}

	m.conns.Range(func(id string, c ports.MCPClient) bool {
		_ = c.Close()
		m.conns.Delete(id)
		return true
	})
	return nil
}

func (m *Manager) totalActive() int64 {
	var total int64
	for _, s := range m.registry.Snapshot() {
		total += s.ActiveRequests
	}
	return total
}

// DropServer drains that server's in-flight requests (up to ShutdownDrain,
// same budget Shutdown gives the whole pool) and closes its pooled
// connection, the per-server counterpart to Shutdown's close-every-conn
// sweep. The registry record itself is removed by the caller.
func (m *Manager) DropServer(ctx context.Context, id string) error {
	deadline := time.Now().Add(m.cfg.ShutdownDrain)
drain:
	for time.Now().Before(deadline) {
		srv, ok := m.registry.Get(id)
		if !ok || srv.ActiveRequests == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break drain
		case <-time.After(50 * time.Millisecond):
		}
	}
	m.dropConn(id)
	return nil
}
