package balancer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/muxerr"
)

const NameRoundRobin = "round_robin"

// RoundRobin cycles through the eligible set with a monotonic counter,
// adapted from the teacher's RoundRobinSelector (which cycled
// domain.Endpoint behind a stats-collector connection counter).
type RoundRobin struct {
	stats   *statTracker
	counter atomic.Uint64
}

func NewRoundRobin(stats *statTracker) *RoundRobin {
	return &RoundRobin{stats: stats}
}

var _ ports.LoadBalancer = (*RoundRobin)(nil)

func (r *RoundRobin) Name() string { return NameRoundRobin }

func (r *RoundRobin) Select(_ context.Context, _ *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	if len(eligible) == 0 {
		return nil, domain.RoutingDecision{}, muxerr.New(muxerr.KindNoServersAvailable, "round_robin: no eligible servers")
	}
	idx := r.counter.Add(1) - 1
	chosen := eligible[idx%uint64(len(eligible))]
	return chosen, domain.RoutingDecision{
		ServerID:   chosen.ID,
		RuleID:     r.Name(),
		Confidence: 0.7,
		Reasoning:  []string{"round robin rotation"},
	}, nil
}

func (r *RoundRobin) RecordOutcome(decision domain.RoutingDecision, success bool, responseTime time.Duration) {
	r.stats.record(r.Name(), success, responseTime)
}
