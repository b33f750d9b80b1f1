package balancer

import (
	"fmt"
	"time"

	"github.com/thushan/mcpmux/internal/core/ports"
)

// Config carries the tunables every strategy needs at construction time,
// mirroring the values spec.md §4.3/§4.4 expose in server/pool config.
type Config struct {
	MaxRequestsPerServer int64
	ResponseTimeCeilingMs float64
	AdaptationInterval   time.Duration
	OnStrategyChanged    func(from, to string)
}

// Factory builds named LoadBalancer strategies, adapted from the
// teacher's Factory (map of name->constructor behind an RWMutex) but
// registering the full spec.md §4.3 strategy set instead of three
// HTTP-endpoint selectors.
type Factory struct {
	stats      *statTracker
	cfg        Config
	strategies map[string]ports.LoadBalancer
}

func NewFactory(cfg Config) *Factory {
	stats := newStatTracker()

	lc := NewLeastConnections(stats)
	wrt := NewWeightedResponseTime(stats)
	ra := NewResourceAware(stats, cfg.MaxRequestsPerServer)

	f := &Factory{stats: stats, cfg: cfg, strategies: make(map[string]ports.LoadBalancer)}

	f.register(NewRoundRobin(stats))
	f.register(lc)
	f.register(wrt)
	f.register(ra)
	f.register(NewCapabilityBased(stats))
	f.register(NewPredictive(stats, cfg.ResponseTimeCeilingMs))
	f.register(NewAdaptive(stats, lc, wrt, ra, cfg.AdaptationInterval, cfg.OnStrategyChanged))

	return f
}

func (f *Factory) register(s ports.LoadBalancer) {
	f.strategies[s.Name()] = s
}

func (f *Factory) Get(name string) (ports.LoadBalancer, error) {
	s, ok := f.strategies[name]
	if !ok {
		return nil, fmt.Errorf("balancer: unknown strategy %q", name)
	}
	return s, nil
}

func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.strategies))
	for n := range f.strategies {
		names = append(names, n)
	}
	return names
}

// Effectiveness exposes every strategy's current effectiveness snapshot,
// consumed by the Multiplexer's status report.
func (f *Factory) Effectiveness() []Effectiveness {
	return f.stats.all()
}
