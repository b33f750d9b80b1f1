package mux

import (
	"context"
	"time"

	"github.com/thushan/mcpmux/internal/adapter/balancer"
	"github.com/thushan/mcpmux/internal/adapter/router"
	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/pkg/eventbus"
)

// eventPublisher adapts pkg/eventbus's generic bus to ports.EventPublisher,
// whose Publish signature drops the delivered-subscriber count the bus
// itself returns — the Multiplexer never needs it.
type eventPublisher struct {
	bus *eventbus.EventBus[domain.Event]
}

func newEventPublisher() *eventPublisher {
	return &eventPublisher{bus: eventbus.New[domain.Event]()}
}

func (p *eventPublisher) Publish(evt domain.Event) {
	p.bus.Publish(evt)
}

func (p *eventPublisher) Subscribe(ctx context.Context) (<-chan domain.Event, func()) {
	return p.bus.Subscribe(ctx)
}

func (p *eventPublisher) Shutdown() {
	p.bus.Shutdown()
}

// routerSelector adapts *router.Router's ports.Router shape (which threads
// a *domain.RequestContext through RecordOutcome) to pool.Selector's
// narrower ports.LoadBalancer-shaped contract (which only gets back the
// RoutingDecision it handed out).
type routerSelector struct {
	r *router.Router
}

func (s *routerSelector) Select(ctx context.Context, rc *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	return s.r.Route(ctx, rc, eligible)
}

func (s *routerSelector) RecordOutcome(decision domain.RoutingDecision, success bool, responseTime time.Duration) {
	s.r.RecordDecisionOutcome(decision, success, responseTime)
}

// balancerSelector is the "intelligent routing disabled" path spec.md
// §4.6 describes: skip the Router's rule table entirely and hand the
// eligible set straight to one named LoadBalancer strategy.
type balancerSelector struct {
	bal      *balancer.Factory
	strategy string
}

func (s *balancerSelector) Select(ctx context.Context, rc *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	lb, err := s.bal.Get(s.strategy)
	if err != nil {
		return nil, domain.RoutingDecision{}, err
	}
	return lb.Select(ctx, rc, eligible)
}

func (s *balancerSelector) RecordOutcome(decision domain.RoutingDecision, success bool, responseTime time.Duration) {
	lb, err := s.bal.Get(s.strategy)
	if err != nil {
		return
	}
	lb.RecordOutcome(decision, success, responseTime)
}
