package balancer

import (
	"context"
	"sync"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/muxerr"
)

const NameAdaptive = "adaptive"

const (
	adaptationMinDecisions    = 10
	adaptationEffectivenessGo = 0.8
)

// Adaptive runs LeastConnections, WeightedResponseTime, and ResourceAware
// and picks the decision of whichever has the highest tracked
// effectiveness, switching the active sub-strategy at most once per
// adaptation_interval (spec.md §4.3). There is no teacher equivalent —
// the teacher's balancer has no meta-strategy — so this is built fresh,
// reusing the same statTracker every concrete strategy already reports
// into.
type Adaptive struct {
	stats *statTracker
	sub   []ports.LoadBalancer

	interval time.Duration

	mu       sync.Mutex
	active   string
	lastSwap time.Time

	onSwitch func(from, to string)
}

func NewAdaptive(stats *statTracker, lc *LeastConnections, wrt *WeightedResponseTime, ra *ResourceAware, adaptationInterval time.Duration, onSwitch func(from, to string)) *Adaptive {
	return &Adaptive{
		stats:    stats,
		sub:      []ports.LoadBalancer{lc, wrt, ra},
		interval: adaptationInterval,
		active:   lc.Name(),
		lastSwap: time.Time{},
		onSwitch: onSwitch,
	}
}

var _ ports.LoadBalancer = (*Adaptive)(nil)

func (a *Adaptive) Name() string { return NameAdaptive }

// maybeAdapt checks whether a higher-effectiveness strategy should become
// active; called once per Select so no background goroutine is needed,
// since the LoadBalancer contract is a pure function of snapshot+state.
func (a *Adaptive) maybeAdapt() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.lastSwap.IsZero() && time.Since(a.lastSwap) < a.interval {
		return
	}

	isSub := make(map[string]bool, len(a.sub))
	for _, s := range a.sub {
		isSub[s.Name()] = true
	}

	var bestName string
	var bestEff float64 = -1
	for _, e := range a.stats.all() {
		if !isSub[e.Strategy] || e.Decisions < adaptationMinDecisions {
			continue
		}
		if e.Effectiveness >= adaptationEffectivenessGo && e.Effectiveness > bestEff {
			bestName, bestEff = e.Strategy, e.Effectiveness
		}
	}

	if bestName != "" && bestName != a.active {
		from := a.active
		a.active = bestName
		a.lastSwap = time.Now()
		if a.onSwitch != nil {
			a.onSwitch(from, bestName)
		}
	}
}

func (a *Adaptive) activeSub() ports.LoadBalancer {
	a.mu.Lock()
	name := a.active
	a.mu.Unlock()

	for _, s := range a.sub {
		if s.Name() == name {
			return s
		}
	}
	return a.sub[0]
}

func (a *Adaptive) Select(ctx context.Context, rc *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	if len(eligible) == 0 {
		return nil, domain.RoutingDecision{}, muxerr.New(muxerr.KindNoServersAvailable, "adaptive: no eligible servers")
	}
	a.maybeAdapt()

	sub := a.activeSub()
	srv, decision, err := sub.Select(ctx, rc, eligible)
	if err != nil {
		return nil, decision, err
	}

	_, _, effectiveness := a.stats.statFor(sub.Name()).snapshot()
	confidence := decision.Confidence * effectiveness
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	decision.Confidence = confidence
	decision.RuleID = a.Name() + ":" + decision.RuleID
	return srv, decision, nil
}

func (a *Adaptive) RecordOutcome(decision domain.RoutingDecision, success bool, responseTime time.Duration) {
	a.stats.record(a.Name(), success, responseTime)
	// Also credit the sub-strategy that actually made the pick so its
	// own effectiveness tracking (consulted by maybeAdapt) stays live.
	sub := a.activeSub()
	sub.RecordOutcome(decision, success, responseTime)
}
