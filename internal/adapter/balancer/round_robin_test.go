package balancer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/muxerr"
)

func serverSet(ids ...string) []*domain.Server {
	out := make([]*domain.Server, len(ids))
	for i, id := range ids {
		out[i] = &domain.Server{ID: id, State: domain.StateHealthy}
	}
	return out
}

func TestRoundRobinCyclesEligibleSet(t *testing.T) {
	rr := NewRoundRobin(newStatTracker())
	eligible := serverSet("a", "b", "c")

	var picked []string
	for i := 0; i < 6; i++ {
		srv, decision, err := rr.Select(context.Background(), nil, eligible)
		require.NoError(t, err)
		assert.Equal(t, srv.ID, decision.ServerID)
		picked = append(picked, srv.ID)
	}

	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, picked)
}

func TestRoundRobinRejectsEmptySet(t *testing.T) {
	rr := NewRoundRobin(newStatTracker())
	_, _, err := rr.Select(context.Background(), nil, nil)
	require.Error(t, err)
	kind, ok := muxerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, muxerr.KindNoServersAvailable, kind)
}
