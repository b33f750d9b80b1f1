package router

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/mcpmux/internal/core/domain"
)

const (
	historyWindow = 10
	emaAlpha      = 0.1
)

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

// history tracks, per server, the last N routing-history outcomes fed
// into the scoring formula's history_score term.
type history struct {
	mu      sync.Mutex
	results []bool
}

func (h *history) record(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, success)
	if len(h.results) > historyWindow {
		h.results = h.results[len(h.results)-historyWindow:]
	}
}

func (h *history) score() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) == 0 {
		return 0.5
	}
	var ok int
	for _, r := range h.results {
		if r {
			ok++
		}
	}
	return float64(ok) / float64(len(h.results))
}

// histories is the shared per-server scoring-history store, and the
// per-rule effectiveness EMA tracker, both keyed in the same xsync.Map
// shape as the balancer's statTracker.
type histories struct {
	byServer *xsync.Map[string, *history]
	byRule   *xsync.Map[string, *float64]
	ruleMu   sync.Mutex
}

func newHistories() *histories {
	return &histories{
		byServer: xsync.NewMap[string, *history](),
		byRule:   xsync.NewMap[string, *float64](),
	}
}

func (h *histories) recordServer(id string, success bool) {
	entry, _ := h.byServer.LoadOrStore(id, &history{})
	entry.record(success)
}

func (h *histories) serverScore(id string) float64 {
	entry, ok := h.byServer.Load(id)
	if !ok {
		return 0.5
	}
	return entry.score()
}

func (h *histories) recordRule(ruleID string, success bool) {
	h.ruleMu.Lock()
	defer h.ruleMu.Unlock()

	val := 0.0
	if success {
		val = 1.0
	}
	if existing, ok := h.byRule.Load(ruleID); ok {
		*existing += emaAlpha * (val - *existing)
		return
	}
	v := val
	h.byRule.Store(ruleID, &v)
}

func (h *histories) ruleEffectiveness(ruleID string) float64 {
	if v, ok := h.byRule.Load(ruleID); ok {
		return *v
	}
	return 0
}

// score computes spec.md §4.5's five-factor formula for one candidate.
func (h *histories) score(s *domain.Server, rtCeilingMs float64, maxRequestsPerServer int64, requiredCaps []string) float64 {
	perf := 1 - s.Stats.AvgResponseTimeMs/rtCeilingMs
	if perf < 0 {
		perf = 0
	}
	if maxRequestsPerServer <= 0 {
		maxRequestsPerServer = 1
	}
	loadInv := 1 - float64(s.ActiveRequests)/float64(maxRequestsPerServer)

	capScore := 1.0
	if len(requiredCaps) > 0 {
		matched := 0
		for _, c := range requiredCaps {
			if s.HasCapability(c) {
				matched++
			}
		}
		capScore = float64(matched) / float64(len(requiredCaps))
	}

	return 0.30*healthScore(s.State) +
		0.25*perf +
		0.20*loadInv +
		0.15*capScore +
		0.10*h.serverScore(s.ID)
}

func expectedLatency(s *domain.Server, complexity float64) (ms float64) {
	ms = s.Stats.AvgResponseTimeMs * (1 + 0.5*complexity) * (1 + 0.3*s.Stats.LoadScore)
	if ms < 100 {
		ms = 100
	}
	return ms
}

func expectedCost(baseCost, unitCost, complexity float64) float64 {
	return baseCost + complexity*unitCost
}
