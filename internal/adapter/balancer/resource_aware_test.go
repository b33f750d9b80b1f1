package balancer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestResourceAwarePrefersLowerUtilisation(t *testing.T) {
	r := NewResourceAware(newStatTracker(), 100)
	eligible := []*domain.Server{
		{
			ID:    "busy",
			State: domain.StateHealthy,
			Metadata: domain.ServerMetadata{CPUUsagePercent: 90, MemoryUsageBytes: 900, MemCeilingBytes: 1000},
		},
		{
			ID:    "idle",
			State: domain.StateHealthy,
			Metadata: domain.ServerMetadata{CPUUsagePercent: 10, MemoryUsageBytes: 100, MemCeilingBytes: 1000},
		},
	}

	srv, _, err := r.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, "idle", srv.ID)
}

func TestResourceAwareZeroCeilingTreatedAsNoMemoryPressure(t *testing.T) {
	r := NewResourceAware(newStatTracker(), 100)
	eligible := []*domain.Server{
		{ID: "no_ceiling", State: domain.StateHealthy, Metadata: domain.ServerMetadata{MemoryUsageBytes: 5_000_000}},
	}

	srv, _, err := r.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, "no_ceiling", srv.ID)
}
