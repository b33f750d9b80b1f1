package balancer

import (
	"context"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
)

const NameCapabilityBased = "capability_based"

// CapabilityBased filters to servers whose capability set is a superset
// of the request's required capabilities, then argmaxes a caps/load
// composite; falls back to LeastConnections when nothing qualifies
// (spec.md §4.3).
type CapabilityBased struct {
	stats    *statTracker
	fallback *LeastConnections
}

func NewCapabilityBased(stats *statTracker) *CapabilityBased {
	return &CapabilityBased{stats: stats, fallback: NewLeastConnections(stats)}
}

var _ ports.LoadBalancer = (*CapabilityBased)(nil)

func (c *CapabilityBased) Name() string { return NameCapabilityBased }

func (c *CapabilityBased) score(s *domain.Server) float64 {
	capCount := float64(len(s.Capabilities))
	if capCount > 10 {
		capCount = 10
	}
	return 0.3*(capCount/10) + 0.7*(1-s.Stats.LoadScore)
}

func (c *CapabilityBased) Select(ctx context.Context, rc *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	var required []string
	if rc != nil {
		required = rc.Metadata.RequiredCapabilities
	}

	candidates := make([]*domain.Server, 0, len(eligible))
	for _, s := range eligible {
		if s.HasAllCapabilities(required) {
			candidates = append(candidates, s)
		}
	}

	if len(candidates) == 0 {
		srv, decision, err := c.fallback.Select(ctx, rc, eligible)
		if err == nil {
			decision.RuleID = c.Name() + "->" + decision.RuleID
			decision.Reasoning = append([]string{"no capability match, fell back to least_connections"}, decision.Reasoning...)
		}
		return srv, decision, err
	}

	best := candidates[0]
	bestScore := c.score(best)
	for _, s := range candidates[1:] {
		if sc := c.score(s); sc > bestScore {
			best, bestScore = s, sc
		}
	}
	return best, domain.RoutingDecision{
		ServerID:   best.ID,
		RuleID:     c.Name(),
		Confidence: 0.85,
		Reasoning:  []string{"capability match, best load/caps composite"},
	}, nil
}

func (c *CapabilityBased) RecordOutcome(_ domain.RoutingDecision, success bool, responseTime time.Duration) {
	c.stats.record(c.Name(), success, responseTime)
}
