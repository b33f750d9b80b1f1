package balancer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestCapabilityBasedFiltersToMatchingServers(t *testing.T) {
	c := NewCapabilityBased(newStatTracker())
	eligible := []*domain.Server{
		{ID: "plain", Capabilities: domain.NewCapabilitySet(nil)},
		{ID: "vector", Capabilities: domain.NewCapabilitySet([]string{"vector_search"})},
	}
	rc := &domain.RequestContext{Metadata: domain.RequestContextMetadata{RequiredCapabilities: []string{"vector_search"}}}

	srv, decision, err := c.Select(context.Background(), rc, eligible)
	require.NoError(t, err)
	assert.Equal(t, "vector", srv.ID)
	assert.Equal(t, NameCapabilityBased, decision.RuleID)
}

func TestCapabilityBasedFallsBackToLeastConnections(t *testing.T) {
	c := NewCapabilityBased(newStatTracker())
	eligible := []*domain.Server{
		{ID: "a", Capabilities: domain.NewCapabilitySet(nil), ActiveRequests: 5},
		{ID: "b", Capabilities: domain.NewCapabilitySet(nil), ActiveRequests: 1},
	}
	rc := &domain.RequestContext{Metadata: domain.RequestContextMetadata{RequiredCapabilities: []string{"vector_search"}}}

	srv, decision, err := c.Select(context.Background(), rc, eligible)
	require.NoError(t, err)
	assert.Equal(t, "b", srv.ID)
	assert.Contains(t, decision.RuleID, NameLeastConnections)
}

func TestCapabilityBasedWithNilRequestContextTreatsAllAsMatching(t *testing.T) {
	c := NewCapabilityBased(newStatTracker())
	eligible := []*domain.Server{{ID: "solo", Capabilities: domain.NewCapabilitySet(nil)}}

	srv, _, err := c.Select(context.Background(), nil, eligible)
	require.NoError(t, err)
	assert.Equal(t, "solo", srv.ID)
}
