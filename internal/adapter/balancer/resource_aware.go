package balancer

import (
	"context"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/muxerr"
)

const NameResourceAware = "resource_aware"

// ResourceAware argmaxes a cpu/mem/load/health composite, grounded on
// spec.md §4.3's scoring formula; healthScore mirrors the Router's own
// health_score table (§4.5) so the two stay consistent.
type ResourceAware struct {
	stats      *statTracker
	maxPerSrv  int64
}

func NewResourceAware(stats *statTracker, maxRequestsPerServer int64) *ResourceAware {
	return &ResourceAware{stats: stats, maxPerSrv: maxRequestsPerServer}
}

var _ ports.LoadBalancer = (*ResourceAware)(nil)

func (r *ResourceAware) Name() string { return NameResourceAware }

func healthScore(s domain.ServerState) float64 {
	switch s {
	case domain.StateHealthy:
		return 1.0
	case domain.StateDegraded:
		return 0.6
	case domain.StateUnhealthy:
		return 0.1
	default:
		return 0.0
	}
}

func (r *ResourceAware) score(s *domain.Server) float64 {
	cpu := s.Metadata.CPUUsagePercent / 100
	memRatio := 0.0
	if s.Metadata.MemCeilingBytes > 0 {
		memRatio = float64(s.Metadata.MemoryUsageBytes) / float64(s.Metadata.MemCeilingBytes)
	}
	maxPer := r.maxPerSrv
	if maxPer <= 0 {
		maxPer = 1
	}
	activeRatio := float64(s.ActiveRequests) / float64(maxPer)

	return 0.3*(1-cpu) + 0.3*(1-memRatio) + 0.3*(1-activeRatio) + 0.1*healthScore(s.State)
}

func (r *ResourceAware) Select(_ context.Context, _ *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	if len(eligible) == 0 {
		return nil, domain.RoutingDecision{}, muxerr.New(muxerr.KindNoServersAvailable, "resource_aware: no eligible servers")
	}
	best := eligible[0]
	bestScore := r.score(best)
	for _, s := range eligible[1:] {
		if sc := r.score(s); sc > bestScore {
			best, bestScore = s, sc
		}
	}
	return best, domain.RoutingDecision{
		ServerID:   best.ID,
		RuleID:     r.Name(),
		Confidence: 0.9,
		Reasoning:  []string{"best resource composite"},
	}, nil
}

func (r *ResourceAware) RecordOutcome(_ domain.RoutingDecision, success bool, responseTime time.Duration) {
	r.stats.record(r.Name(), success, responseTime)
}
