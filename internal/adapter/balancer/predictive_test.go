package balancer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestPredictiveFavoursLowerEstimatedLoadAdjustedTime(t *testing.T) {
	p := NewPredictive(newStatTracker(), 1000)
	eligible := []*domain.Server{
		{ID: "loaded", Stats: domain.RollingStats{AvgResponseTimeMs: 100, LoadScore: 0.9, SuccessRate: 0.95}},
		{ID: "light", Stats: domain.RollingStats{AvgResponseTimeMs: 100, LoadScore: 0.1, SuccessRate: 0.95}},
	}

	srv, _, err := p.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, "light", srv.ID)
}

func TestPredictiveDefaultsCeilingWhenZero(t *testing.T) {
	p := NewPredictive(newStatTracker(), 0)
	assert.Equal(t, 5000.0, p.rtCeiling)
}
