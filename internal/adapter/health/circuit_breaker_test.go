package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func newTestBreakers() *breakers {
	return newBreakers(3, 2, 20*time.Millisecond, time.Minute)
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreakers()

	assert.True(t, b.canExecute("s1"))
	b.record("s1", false, time.Millisecond)
	b.record("s1", false, time.Millisecond)
	stats, ok := b.stats("s1")
	require.True(t, ok)
	assert.Equal(t, domain.CircuitClosed, stats.State)

	b.record("s1", false, time.Millisecond)
	stats, _ = b.stats("s1")
	assert.Equal(t, domain.CircuitOpen, stats.State)
	assert.False(t, b.canExecute("s1"), "an open breaker rejects admission before recovery_time elapses")
}

func TestCircuitHalfOpensAfterRecoveryTime(t *testing.T) {
	b := newTestBreakers()
	for i := 0; i < 3; i++ {
		b.record("s1", false, time.Millisecond)
	}
	stats, _ := b.stats("s1")
	require.Equal(t, domain.CircuitOpen, stats.State)

	time.Sleep(25 * time.Millisecond)
	assert.True(t, b.canExecute("s1"), "canExecute transitions Open->HalfOpen once recovery_time has elapsed")
	stats, _ = b.stats("s1")
	assert.Equal(t, domain.CircuitHalfOpen, stats.State)
}

func TestHalfOpenAdmitsOnlyOneInFlightProbe(t *testing.T) {
	b := newTestBreakers()
	for i := 0; i < 3; i++ {
		b.record("s1", false, time.Millisecond)
	}
	time.Sleep(25 * time.Millisecond)

	assert.True(t, b.canExecute("s1"))
	assert.False(t, b.canExecute("s1"), "a second concurrent probe must be rejected while one is in flight")
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b := newTestBreakers()
	for i := 0; i < 3; i++ {
		b.record("s1", false, time.Millisecond)
	}
	time.Sleep(25 * time.Millisecond)
	require.True(t, b.canExecute("s1"))

	b.record("s1", true, time.Millisecond)
	stats, _ := b.stats("s1")
	assert.Equal(t, domain.CircuitHalfOpen, stats.State, "one success is below success_threshold=2")

	b.record("s1", true, time.Millisecond)
	stats, _ = b.stats("s1")
	assert.Equal(t, domain.CircuitClosed, stats.State)
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	b := newTestBreakers()
	for i := 0; i < 3; i++ {
		b.record("s1", false, time.Millisecond)
	}
	time.Sleep(25 * time.Millisecond)
	require.True(t, b.canExecute("s1"))

	b.record("s1", false, time.Millisecond)
	stats, _ := b.stats("s1")
	assert.Equal(t, domain.CircuitOpen, stats.State)
}

func TestForceStateOverridesCurrentState(t *testing.T) {
	b := newTestBreakers()
	b.forceState("s1", domain.CircuitOpen)

	stats, ok := b.stats("s1")
	require.True(t, ok)
	assert.Equal(t, domain.CircuitOpen, stats.State)
	require.Len(t, stats.Transitions, 1)
	assert.Equal(t, "Manual override", stats.Transitions[0].Reason)
}

func TestRollingErrorRateIgnoresEntriesOutsideWindow(t *testing.T) {
	s := newBreakerState()
	now := time.Now()
	s.pushOutcome(outcome{at: now.Add(-time.Hour), success: false})
	s.pushOutcome(outcome{at: now, success: true})

	rate := s.rollingErrorRate(now, time.Minute)
	assert.Equal(t, 0.0, rate, "failures older than the monitoring window must not count")
}

func TestDeriveState(t *testing.T) {
	assert.Equal(t, domain.StateUnhealthy, deriveState(domain.CircuitOpen, 1.0))
	assert.Equal(t, domain.StateDegraded, deriveState(domain.CircuitHalfOpen, 1.0))
	assert.Equal(t, domain.StateDegraded, deriveState(domain.CircuitClosed, 0.5))
	assert.Equal(t, domain.StateHealthy, deriveState(domain.CircuitClosed, 0.95))
}
