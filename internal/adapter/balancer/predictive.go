package balancer

import (
	"context"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/muxerr"
)

const NamePredictive = "predictive"

// Predictive estimates response time from load and argmaxes a
// time/success composite (spec.md §4.3).
type Predictive struct {
	stats     *statTracker
	rtCeiling float64
}

func NewPredictive(stats *statTracker, rtCeilingMs float64) *Predictive {
	if rtCeilingMs <= 0 {
		rtCeilingMs = 5000
	}
	return &Predictive{stats: stats, rtCeiling: rtCeilingMs}
}

var _ ports.LoadBalancer = (*Predictive)(nil)

func (p *Predictive) Name() string { return NamePredictive }

func (p *Predictive) score(s *domain.Server) float64 {
	estimated := s.Stats.AvgResponseTimeMs * (1 + 0.3*s.Stats.LoadScore)
	perf := 1 - estimated/p.rtCeiling
	if perf < 0 {
		perf = 0
	}
	return 0.6*perf + 0.4*s.Stats.SuccessRate
}

func (p *Predictive) Select(_ context.Context, _ *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	if len(eligible) == 0 {
		return nil, domain.RoutingDecision{}, muxerr.New(muxerr.KindNoServersAvailable, "predictive: no eligible servers")
	}
	best := eligible[0]
	bestScore := p.score(best)
	for _, s := range eligible[1:] {
		if sc := p.score(s); sc > bestScore {
			best, bestScore = s, sc
		}
	}
	return best, domain.RoutingDecision{
		ServerID:   best.ID,
		RuleID:     p.Name(),
		Confidence: 0.7,
		Reasoning:  []string{"predicted best time/success composite"},
	}, nil
}

func (p *Predictive) RecordOutcome(_ domain.RoutingDecision, success bool, responseTime time.Duration) {
	p.stats.record(p.Name(), success, responseTime)
}
