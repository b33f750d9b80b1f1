package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestHistoryScoreDefaultsToHalfWithNoData(t *testing.T) {
	h := &history{}
	assert.Equal(t, 0.5, h.score())
}

func TestHistoryScoreTracksRecentWindow(t *testing.T) {
	h := &history{}
	for i := 0; i < historyWindow; i++ {
		h.record(true)
	}
	assert.Equal(t, 1.0, h.score())

	h.record(false)
	assert.Less(t, h.score(), 1.0, "window is bounded, a new failure must shift the average")
}

func TestRuleEffectivenessIsEMA(t *testing.T) {
	h := newHistories()
	h.recordRule("r1", true)
	first := h.ruleEffectiveness("r1")
	assert.Equal(t, 1.0, first)

	h.recordRule("r1", false)
	second := h.ruleEffectiveness("r1")
	assert.Less(t, second, first)
	assert.Greater(t, second, 0.0)
}

func TestScorePrefersHealthyLowLoadCapableServer(t *testing.T) {
	h := newHistories()
	healthy := &domain.Server{ID: "h", State: domain.StateHealthy, Capabilities: domain.NewCapabilitySet([]string{"vector_search"})}
	unhealthy := &domain.Server{ID: "u", State: domain.StateUnhealthy, ActiveRequests: 8}

	sh := h.score(healthy, 5000, 10, []string{"vector_search"})
	su := h.score(unhealthy, 5000, 10, []string{"vector_search"})

	require.Greater(t, sh, su)
}

func TestExpectedLatencyHasAFloor(t *testing.T) {
	srv := &domain.Server{Stats: domain.RollingStats{AvgResponseTimeMs: 0}}
	assert.Equal(t, 100.0, expectedLatency(srv, 0))
}

func TestExpectedCostScalesWithComplexity(t *testing.T) {
	low := expectedCost(0.001, 0.01, 0.1)
	high := expectedCost(0.001, 0.01, 0.9)
	assert.Less(t, low, high)
}
