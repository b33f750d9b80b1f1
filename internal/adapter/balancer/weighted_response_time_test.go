package balancer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestWeightedResponseTimePrefersFasterHealthyServer(t *testing.T) {
	w := NewWeightedResponseTime(newStatTracker())
	eligible := []*domain.Server{
		{ID: "slow", State: domain.StateHealthy, Stats: domain.RollingStats{AvgResponseTimeMs: 400}},
		{ID: "fast", State: domain.StateHealthy, Stats: domain.RollingStats{AvgResponseTimeMs: 40}},
	}

	srv, _, err := w.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, "fast", srv.ID)
}

func TestWeightedResponseTimePenalisesDegradedHealth(t *testing.T) {
	w := NewWeightedResponseTime(newStatTracker())
	eligible := []*domain.Server{
		{ID: "degraded", State: domain.StateDegraded, Stats: domain.RollingStats{AvgResponseTimeMs: 50}},
		{ID: "healthy", State: domain.StateHealthy, Stats: domain.RollingStats{AvgResponseTimeMs: 80}},
	}

	srv, _, err := w.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, "healthy", srv.ID, "health bonus should outweigh a modest response-time gap")
}
