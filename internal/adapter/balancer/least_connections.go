package balancer

import (
	"context"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/muxerr"
)

const NameLeastConnections = "least_connections"

// LeastConnections argmins active_requests, ties broken by id, adapted
// from the teacher's map+RWMutex connection tracker — simplified here
// since domain.Server already carries ActiveRequests, so no separate
// side-table is needed.
type LeastConnections struct {
	stats *statTracker
}

func NewLeastConnections(stats *statTracker) *LeastConnections {
	return &LeastConnections{stats: stats}
}

var _ ports.LoadBalancer = (*LeastConnections)(nil)

func (l *LeastConnections) Name() string { return NameLeastConnections }

func (l *LeastConnections) Select(_ context.Context, _ *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	if len(eligible) == 0 {
		return nil, domain.RoutingDecision{}, muxerr.New(muxerr.KindNoServersAvailable, "least_connections: no eligible servers")
	}
	best := eligible[0]
	for _, s := range eligible[1:] {
		if s.ActiveRequests < best.ActiveRequests || (s.ActiveRequests == best.ActiveRequests && s.ID < best.ID) {
			best = s
		}
	}
	return best, domain.RoutingDecision{
		ServerID:   best.ID,
		RuleID:     l.Name(),
		Confidence: 0.8,
		Reasoning:  []string{"fewest active requests"},
	}, nil
}

func (l *LeastConnections) RecordOutcome(_ domain.RoutingDecision, success bool, responseTime time.Duration) {
	l.stats.record(l.Name(), success, responseTime)
}
