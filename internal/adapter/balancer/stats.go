package balancer

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// decisionOutcome is one entry in a strategy's bounded trend window.
type decisionOutcome struct {
	success bool
}

// strategyStat is the per-strategy effectiveness record from spec.md §4.3:
// total/successful decisions, EMA response time, and a derived
// effectiveness score consulted by the Adaptive meta-strategy.
type strategyStat struct {
	mu sync.Mutex

	totalDecisions      int64
	successfulDecisions int64
	avgResponseTimeMs   float64

	recent []decisionOutcome // bounded to 50, for trend computation
}

const (
	emaAlpha            = 0.1
	rtCeilingMs         = 5000.0
	trendWindow         = 50
	trendShiftThreshold = 0.05
)

func (s *strategyStat) record(success bool, responseTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalDecisions++
	if success {
		s.successfulDecisions++
	}
	s.avgResponseTimeMs += emaAlpha * (float64(responseTime.Milliseconds()) - s.avgResponseTimeMs)

	s.recent = append(s.recent, decisionOutcome{success: success})
	if len(s.recent) > trendWindow {
		s.recent = s.recent[len(s.recent)-trendWindow:]
	}
}

func (s *strategyStat) snapshot() (decisions int64, successRate, effectiveness float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalDecisions == 0 {
		return 0, 0, 0
	}
	successRate = float64(s.successfulDecisions) / float64(s.totalDecisions)
	perf := 1 - s.avgResponseTimeMs/rtCeilingMs
	if perf < 0 {
		perf = 0
	}
	effectiveness = 0.7*successRate + 0.3*perf
	return s.totalDecisions, successRate, effectiveness
}

// Trend is the qualitative direction of a strategy's last 50 decisions.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// trend splits the recent window in half and compares success rates,
// per spec.md §4.3.
func (s *strategyStat) trend() Trend {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.recent) < 4 {
		return TrendStable
	}
	mid := len(s.recent) / 2
	first := rate(s.recent[:mid])
	second := rate(s.recent[mid:])

	diff := second - first
	switch {
	case diff > trendShiftThreshold:
		return TrendImproving
	case diff < -trendShiftThreshold:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func rate(outcomes []decisionOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var ok int
	for _, o := range outcomes {
		if o.success {
			ok++
		}
	}
	return float64(ok) / float64(len(outcomes))
}

// statTracker is the shared per-strategy stats store, keyed by strategy
// name, consulted by the Adaptive meta-strategy.
type statTracker struct {
	m *xsync.Map[string, *strategyStat]
}

func newStatTracker() *statTracker {
	return &statTracker{m: xsync.NewMap[string, *strategyStat]()}
}

func (t *statTracker) statFor(name string) *strategyStat {
	s, _ := t.m.LoadOrStore(name, &strategyStat{})
	return s
}

func (t *statTracker) record(name string, success bool, responseTime time.Duration) {
	t.statFor(name).record(success, responseTime)
}

// Effectiveness snapshot exposed for status reporting.
type Effectiveness struct {
	Strategy      string
	Decisions     int64
	SuccessRate   float64
	Effectiveness float64
	Trend         Trend
}

func (t *statTracker) all() []Effectiveness {
	var out []Effectiveness
	t.m.Range(func(name string, s *strategyStat) bool {
		decisions, successRate, eff := s.snapshot()
		out = append(out, Effectiveness{
			Strategy:      name,
			Decisions:     decisions,
			SuccessRate:   successRate,
			Effectiveness: eff,
			Trend:         s.trend(),
		})
		return true
	})
	return out
}
