package balancer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestAdaptiveStartsOnLeastConnections(t *testing.T) {
	stats := newStatTracker()
	lc := NewLeastConnections(stats)
	wrt := NewWeightedResponseTime(stats)
	ra := NewResourceAware(stats, 100)
	a := NewAdaptive(stats, lc, wrt, ra, time.Hour, nil)

	assert.Equal(t, NameLeastConnections, a.active)
}

func TestAdaptiveSwitchesToFitterSubStrategy(t *testing.T) {
	stats := newStatTracker()
	lc := NewLeastConnections(stats)
	wrt := NewWeightedResponseTime(stats)
	ra := NewResourceAware(stats, 100)

	var from, to string
	a := NewAdaptive(stats, lc, wrt, ra, 0, func(f, tt string) { from, to = f, tt })

	for i := 0; i < adaptationMinDecisions; i++ {
		stats.record(NameWeightedResponseTime, true, time.Millisecond)
	}

	eligible := []*domain.Server{{ID: "only", State: domain.StateHealthy}}
	_, _, err := a.Select(context.Background(), nil, eligible)
	require.NoError(t, err)

	assert.Equal(t, NameWeightedResponseTime, a.active)
	assert.Equal(t, NameLeastConnections, from)
	assert.Equal(t, NameWeightedResponseTime, to)
}

func TestAdaptiveRespectsAdaptationInterval(t *testing.T) {
	stats := newStatTracker()
	lc := NewLeastConnections(stats)
	wrt := NewWeightedResponseTime(stats)
	ra := NewResourceAware(stats, 100)

	switches := 0
	a := NewAdaptive(stats, lc, wrt, ra, time.Hour, func(f, tt string) { switches++ })

	for i := 0; i < adaptationMinDecisions; i++ {
		stats.record(NameWeightedResponseTime, true, time.Millisecond)
	}

	eligible := []*domain.Server{{ID: "only", State: domain.StateHealthy}}
	_, _, err := a.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, 1, switches)

	for i := 0; i < adaptationMinDecisions; i++ {
		stats.record(NameResourceAware, true, time.Millisecond)
	}
	_, _, err = a.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, 1, switches, "a second swap must wait for adaptation_interval even though resource_aware now qualifies too")
}

func TestAdaptiveRecordOutcomeCreditsBothAdaptiveAndActiveSub(t *testing.T) {
	stats := newStatTracker()
	lc := NewLeastConnections(stats)
	wrt := NewWeightedResponseTime(stats)
	ra := NewResourceAware(stats, 100)
	a := NewAdaptive(stats, lc, wrt, ra, time.Hour, nil)

	decision := domain.RoutingDecision{ServerID: "x", RuleID: NameLeastConnections}
	a.RecordOutcome(decision, true, 10*time.Millisecond)

	decisions, _, _ := stats.statFor(NameAdaptive).snapshot()
	assert.Equal(t, int64(1), decisions)
	subDecisions, _, _ := stats.statFor(NameLeastConnections).snapshot()
	assert.Equal(t, int64(1), subDecisions)
}
