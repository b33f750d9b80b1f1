package balancer

import (
	"context"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/muxerr"
)

const NameWeightedResponseTime = "weighted_response_time"

// WeightedResponseTime argmaxes (1/avg_rt)*(1/(1+load))*(healthy bonus),
// the teacher's round_robin/least_connections tier has no analogue for
// this, so it's built fresh from spec.md §4.3's formula.
type WeightedResponseTime struct {
	stats *statTracker
}

func NewWeightedResponseTime(stats *statTracker) *WeightedResponseTime {
	return &WeightedResponseTime{stats: stats}
}

var _ ports.LoadBalancer = (*WeightedResponseTime)(nil)

func (w *WeightedResponseTime) Name() string { return NameWeightedResponseTime }

func (w *WeightedResponseTime) score(s *domain.Server) float64 {
	avgRT := s.Stats.AvgResponseTimeMs
	if avgRT <= 0 {
		avgRT = 1
	}
	healthBonus := 0.5
	if s.State == domain.StateHealthy {
		healthBonus = 1.0
	}
	return (1 / avgRT) * (1 / (1 + s.Stats.LoadScore)) * healthBonus
}

func (w *WeightedResponseTime) Select(_ context.Context, _ *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	if len(eligible) == 0 {
		return nil, domain.RoutingDecision{}, muxerr.New(muxerr.KindNoServersAvailable, "weighted_response_time: no eligible servers")
	}
	best := eligible[0]
	bestScore := w.score(best)
	for _, s := range eligible[1:] {
		if sc := w.score(s); sc > bestScore {
			best, bestScore = s, sc
		}
	}
	return best, domain.RoutingDecision{
		ServerID:   best.ID,
		RuleID:     w.Name(),
		Confidence: 0.85,
		Reasoning:  []string{"best weighted response time"},
	}, nil
}

func (w *WeightedResponseTime) RecordOutcome(_ domain.RoutingDecision, success bool, responseTime time.Duration) {
	w.stats.record(w.Name(), success, responseTime)
}
