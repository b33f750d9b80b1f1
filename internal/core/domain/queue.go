package domain

import "time"

// BackoffStrategy selects the retry delay curve used by the PoolManager's
// queue retry policy (spec.md §4.4).
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffFixed       BackoffStrategy = "fixed"
)

// Delay computes the backoff delay for the given (1-indexed) attempt,
// clamped to [initial, max].
func (b BackoffStrategy) Delay(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch b {
	case BackoffLinear:
		d = initial * time.Duration(attempt)
	case BackoffFixed:
		d = initial
	case BackoffExponential:
		fallthrough
	default:
		d = initial
		for i := 1; i < attempt; i++ {
			d *= 2
			if d > max {
				break
			}
		}
	}
	if d > max {
		d = max
	}
	if d < initial {
		d = initial
	}
	return d
}

// QueueItemResolver is satisfied by whatever is waiting on a queue item's
// outcome (a channel-backed future in the pool adapter).
type QueueItemResolver interface {
	Resolve(resp RAGResponse)
	Reject(err error)
}

// QueueItem is one entry in the PoolManager's priority request queue
// (spec.md §3). Ordering is stable by (Priority desc, EnqueueTime asc).
type QueueItem struct {
	Deadline *time.Time
	Resolver QueueItemResolver
	// Ctx is the RequestContext carried across every retry of this item,
	// lazily assigned on first dispatch so FailedServerSet/History
	// accumulate over the item's full retry lifecycle rather than
	// resetting on every attempt.
	Ctx *RequestContext
	ID  string
	// MaxRetries overrides the pool's default retry budget once the first
	// dispatch's routing decision names a per-rule value (spec.md §4.5,
	// e.g. high_priority's max_retries 5); 0 until then, meaning "use the
	// pool default".
	MaxRetries  int
	Request     RAGRequest
	EnqueueTime time.Time
	Priority    int
	RetryCount  int
}

// Expired reports whether the item's explicit deadline has already passed.
func (q *QueueItem) Expired(now time.Time) bool {
	return q.Deadline != nil && now.After(*q.Deadline)
}

// QueueLess implements the stable ordering required by spec.md §3:
// higher priority first, then earlier enqueue time.
func QueueLess(a, b *QueueItem) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.EnqueueTime.Before(b.EnqueueTime)
}
