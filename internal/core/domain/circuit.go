package domain

import "time"

// CircuitState is one of the three circuit-breaker states (spec.md §3).
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitTransition is one entry in a breaker's bounded transition log.
type CircuitTransition struct {
	Timestamp time.Time
	From      CircuitState
	To        CircuitState
	Reason    string
}

// CircuitStats is the read-only snapshot exposed for status reporting.
type CircuitStats struct {
	LastFailure time.Time
	LastSuccess time.Time

	AvgResponseTimeMs float64
	RollingErrorRate  float64

	Transitions []CircuitTransition

	TotalRequests        int64
	Failures             int64
	Successes            int64
	ConsecutiveFailures  int64
	ConsecutiveSuccesses int64

	State CircuitState
}
