package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerStateIsSelectable(t *testing.T) {
	assert.True(t, StateHealthy.IsSelectable())
	assert.True(t, StateDegraded.IsSelectable())
	assert.False(t, StateUnhealthy.IsSelectable())
	assert.False(t, StateInitializing.IsSelectable())
}

func TestServerConfigID(t *testing.T) {
	cfg := ServerConfig{Host: "10.0.0.1", Port: 9001}
	assert.Equal(t, "10.0.0.1:9001", cfg.ID())
}

func TestHasAllCapabilitiesRequiresEverySingleOne(t *testing.T) {
	s := &Server{Capabilities: NewCapabilitySet([]string{"vector_search", "graph_query"})}
	assert.True(t, s.HasAllCapabilities([]string{"vector_search"}))
	assert.True(t, s.HasAllCapabilities([]string{"vector_search", "graph_query"}))
	assert.False(t, s.HasAllCapabilities([]string{"vector_search", "advanced_processing"}))
	assert.True(t, s.HasAllCapabilities(nil), "no required capabilities is trivially satisfied")
}

func TestCapabilityListMaterialisesSetContents(t *testing.T) {
	s := &Server{Capabilities: NewCapabilitySet([]string{"vector_search"})}
	list := s.CapabilityList()
	assert.Equal(t, []string{"vector_search"}, list)
}
