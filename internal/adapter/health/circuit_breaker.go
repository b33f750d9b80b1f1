// Package health implements ports.HealthMonitor: a per-server probe loop
// plus a three-state circuit breaker, adapted from the teacher's
// sync.Map-backed, atomic-counter breaker to the richer state machine
// spec.md §4.2 requires.
package health

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/mcpmux/internal/core/domain"
)

// outcome is one timestamped entry in a server's rolling error window.
type outcome struct {
	at      time.Time
	success bool
}

// breakerState is the mutable per-server circuit record. Counters that are
// read on every CanExecute call are plain fields guarded by mu rather than
// atomics, because a transition touches several of them together and the
// teacher's single-atomic-per-field approach can't express that atomically.
type breakerState struct {
	mu sync.Mutex

	state domain.CircuitState

	totalRequests int64
	failures      int64
	successes     int64

	consecutiveFailures  int64
	consecutiveSuccesses int64

	lastFailure time.Time
	lastSuccess time.Time

	avgResponseTimeMs float64

	window []outcome // bounded, oldest evicted, spec.md §7: ≤100 entries

	transitions []domain.CircuitTransition // bounded, spec.md §7: ≤100 entries

	halfOpenInFlight bool
}

const (
	maxWindowEntries     = 100
	maxTransitionEntries = 100
	emaAlpha             = 0.1
	errorRateOpenThresh  = 0.5
)

func newBreakerState() *breakerState {
	return &breakerState{state: domain.CircuitClosed}
}

func (b *breakerState) rollingErrorRate(now time.Time, window time.Duration) float64 {
	if len(b.window) == 0 {
		return 0
	}
	var total, failed int
	for _, o := range b.window {
		if now.Sub(o.at) > window {
			continue
		}
		total++
		if !o.success {
			failed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

func (b *breakerState) pushOutcome(o outcome) {
	b.window = append(b.window, o)
	if len(b.window) > maxWindowEntries {
		b.window = b.window[len(b.window)-maxWindowEntries:]
	}
}

func (b *breakerState) transition(to domain.CircuitState, reason string) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenInFlight = false
	b.transitions = append(b.transitions, domain.CircuitTransition{
		Timestamp: time.Now(),
		From:      from,
		To:        to,
		Reason:    reason,
	})
	if len(b.transitions) > maxTransitionEntries {
		b.transitions = b.transitions[len(b.transitions)-maxTransitionEntries:]
	}
}

func (b *breakerState) snapshot() domain.CircuitStats {
	return domain.CircuitStats{
		State:                b.state,
		TotalRequests:        b.totalRequests,
		Failures:             b.failures,
		Successes:            b.successes,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		LastFailure:          b.lastFailure,
		LastSuccess:          b.lastSuccess,
		AvgResponseTimeMs:    b.avgResponseTimeMs,
		RollingErrorRate:     b.rollingErrorRate(time.Now(), 5*time.Minute),
		Transitions:          append([]domain.CircuitTransition(nil), b.transitions...),
	}
}

// breakers is the per-server circuit-state map. Keyed the same way the
// teacher keys CircuitBreaker.endpoints, but on puzpuzpuz/xsync instead of
// sync.Map so Record/CanExecute on different servers never contend.
type breakers struct {
	m *xsync.Map[string, *breakerState]

	failureThreshold int
	successThreshold int
	recoveryTime     time.Duration
	monitoringWindow time.Duration
}

func newBreakers(failureThreshold, successThreshold int, recoveryTime, monitoringWindow time.Duration) *breakers {
	return &breakers{
		m:                xsync.NewMap[string, *breakerState](),
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTime:     recoveryTime,
		monitoringWindow: monitoringWindow,
	}
}

func (b *breakers) stateFor(id string) *breakerState {
	s, _ := b.m.LoadOrStore(id, newBreakerState())
	return s
}

// canExecute implements the admission contract from spec.md §4.2,
// including the Open→HalfOpen side-effect transition on query.
func (b *breakers) canExecute(id string) bool {
	s := b.stateFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.CircuitClosed:
		return true
	case domain.CircuitHalfOpen:
		if s.halfOpenInFlight {
			return false // only one probe-like request admitted at a time
		}
		s.halfOpenInFlight = true
		return true
	case domain.CircuitOpen:
		if time.Since(s.lastFailure) >= b.recoveryTime {
			s.transition(domain.CircuitHalfOpen, "recovery timeout elapsed")
			s.halfOpenInFlight = true
			return true
		}
		return false
	default:
		return false
	}
}

func (b *breakers) record(id string, success bool, responseTime time.Duration) {
	s := b.stateFor(id)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.halfOpenInFlight = false
	s.avgResponseTimeMs += emaAlpha * (float64(responseTime.Milliseconds()) - s.avgResponseTimeMs)
	s.pushOutcome(outcome{at: now, success: success})

	if success {
		s.successes++
		s.consecutiveSuccesses++
		s.consecutiveFailures = 0
		s.lastSuccess = now
	} else {
		s.failures++
		s.consecutiveFailures++
		s.consecutiveSuccesses = 0
		s.lastFailure = now
	}

	switch s.state {
	case domain.CircuitClosed:
		// the error-rate rule applies only once the window holds at least
		// failureThreshold outcomes, so the first few failures of a fresh
		// breaker fall under the consecutive-failure rule alone.
		inWindow := 0
		for _, o := range s.window {
			if now.Sub(o.at) <= b.monitoringWindow {
				inWindow++
			}
		}
		rateTrips := inWindow >= b.failureThreshold && s.rollingErrorRate(now, b.monitoringWindow) > errorRateOpenThresh
		if s.consecutiveFailures >= int64(b.failureThreshold) || rateTrips {
			s.transition(domain.CircuitOpen, "failure threshold exceeded")
		}
	case domain.CircuitHalfOpen:
		if !success {
			s.transition(domain.CircuitOpen, "failed during recovery")
		} else if s.consecutiveSuccesses >= int64(b.successThreshold) {
			s.transition(domain.CircuitClosed, "recovery confirmed")
		}
	}
}

func (b *breakers) forceState(id string, state domain.CircuitState) {
	s := b.stateFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == domain.CircuitOpen && s.state != domain.CircuitOpen {
		// restart the recovery clock so a forced Open lasts recoveryTime
		s.lastFailure = time.Now()
	}
	s.transition(state, "Manual override")
}

func (b *breakers) stats(id string) (domain.CircuitStats, bool) {
	s, ok := b.m.Load(id)
	if !ok {
		return domain.CircuitStats{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), true
}
