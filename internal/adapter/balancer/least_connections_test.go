package balancer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestLeastConnectionsPicksFewestActive(t *testing.T) {
	lc := NewLeastConnections(newStatTracker())
	eligible := []*domain.Server{
		{ID: "a", ActiveRequests: 5},
		{ID: "b", ActiveRequests: 2},
		{ID: "c", ActiveRequests: 9},
	}

	srv, decision, err := lc.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, "b", srv.ID)
	assert.Equal(t, "b", decision.ServerID)
}

func TestLeastConnectionsTiesBrokenByID(t *testing.T) {
	lc := NewLeastConnections(newStatTracker())
	eligible := []*domain.Server{
		{ID: "z", ActiveRequests: 3},
		{ID: "a", ActiveRequests: 3},
	}

	srv, _, err := lc.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, "a", srv.ID)
}
