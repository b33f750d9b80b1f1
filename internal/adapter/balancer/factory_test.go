package balancer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestFactoryRegistersAllSevenStrategies(t *testing.T) {
	f := NewFactory(Config{MaxRequestsPerServer: 50, ResponseTimeCeilingMs: 2000, AdaptationInterval: time.Minute})

	names := f.Names()
	assert.Len(t, names, 7)

	for _, n := range []string{
		NameRoundRobin, NameLeastConnections, NameWeightedResponseTime,
		NameResourceAware, NameCapabilityBased, NamePredictive, NameAdaptive,
	} {
		_, err := f.Get(n)
		require.NoError(t, err, "strategy %q must be registered", n)
	}
}

func TestFactoryGetUnknownStrategyErrors(t *testing.T) {
	f := NewFactory(Config{})
	_, err := f.Get("nonexistent")
	assert.Error(t, err)
}

func TestFactoryEffectivenessAggregatesAcrossStrategies(t *testing.T) {
	f := NewFactory(Config{})
	rr, err := f.Get(NameRoundRobin)
	require.NoError(t, err)

	rr.RecordOutcome(domain.RoutingDecision{ServerID: "x"}, true, time.Millisecond)

	var found bool
	for _, e := range f.Effectiveness() {
		if e.Strategy == NameRoundRobin {
			found = true
			assert.Equal(t, int64(1), e.Decisions)
		}
	}
	assert.True(t, found)
}
