package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func testConfig() domain.ServerConfig {
	return domain.ServerConfig{Host: "127.0.0.1", Port: 9001, Priority: 10, Capabilities: []string{"vector_search"}}
}

func TestAddAndGet(t *testing.T) {
	r := New()
	cfg := testConfig()

	require.NoError(t, r.Add(cfg))

	srv, ok := r.Get(cfg.ID())
	require.True(t, ok)
	assert.Equal(t, cfg.ID(), srv.ID)
	assert.Equal(t, domain.StateInitializing, srv.State)
	assert.True(t, srv.HasCapability("vector_search"))
}

func TestAddDuplicateRejected(t *testing.T) {
	r := New()
	cfg := testConfig()

	require.NoError(t, r.Add(cfg))
	assert.Error(t, r.Add(cfg))
}

func TestRemoveDeletesRecord(t *testing.T) {
	r := New()
	cfg := testConfig()
	require.NoError(t, r.Add(cfg))

	require.NoError(t, r.Remove(cfg.ID()))

	_, ok := r.Get(cfg.ID())
	assert.False(t, ok)
}

func TestRemoveMissingReturnsError(t *testing.T) {
	r := New()
	assert.Error(t, r.Remove("nope:1"))
}

func TestSnapshotIsShallowCopy(t *testing.T) {
	r := New()
	cfg := testConfig()
	require.NoError(t, r.Add(cfg))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	snap[0].State = domain.StateHealthy

	srv, _ := r.Get(cfg.ID())
	assert.Equal(t, domain.StateInitializing, srv.State, "mutating a snapshot entry must not affect the live record")
}

func TestUpdateMissingReturnsError(t *testing.T) {
	r := New()
	assert.Error(t, r.Update("nope:1", func(s *domain.Server) {}))
}
