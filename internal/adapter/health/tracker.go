package health

import (
	"sync"
	"time"

	"github.com/thushan/mcpmux/internal/core/domain"
)

// statusTransitionTracker reduces logging noise for repeated probe
// failures, adapted from the teacher's StatusTransitionTracker which did
// the same job for domain.EndpointStatus.
type statusTransitionTracker struct {
	mu      sync.Mutex
	entries map[string]*statusEntry
}

type statusEntry struct {
	lastCircuit domain.CircuitState
	lastLogTime time.Time
	errorCount  int
}

func newStatusTransitionTracker() *statusTransitionTracker {
	return &statusTransitionTracker{entries: make(map[string]*statusEntry)}
}

// shouldLog reports whether a probe outcome for id is worth a log line:
// always on a circuit-state transition, otherwise every 10th error since
// the last transition (successes do not reset the count) or every 5 minutes.
func (t *statusTransitionTracker) shouldLog(id string, circuit domain.CircuitState, isError bool) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		e = &statusEntry{lastCircuit: circuit, lastLogTime: time.Now()}
		t.entries[id] = e
	}

	if e.lastCircuit != circuit {
		e.lastCircuit = circuit
		e.errorCount = 0
		return true, 0
	}

	if isError {
		e.errorCount++
		if e.errorCount%10 == 0 || time.Since(e.lastLogTime) > 5*time.Minute {
			e.lastLogTime = time.Now()
			return true, e.errorCount
		}
	}
	return false, e.errorCount
}

func (t *statusTransitionTracker) cleanup(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}
