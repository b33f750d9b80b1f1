package domain

import "time"

// Priority mirrors the three caller-facing priority labels from spec.md §6;
// Router/PoolManager also accept an arbitrary int priority for queue ordering.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// RAGRequestMetadata carries the optional caller-supplied constraints.
type RAGRequestMetadata struct {
	Timeout   time.Duration
	MaxCost   float64
	MinQuality float64
}

// RAGRequest is the caller-facing retrieval request (spec.md §6).
type RAGRequest struct {
	Query      string
	Context    string
	Metadata   RAGRequestMetadata
	Priority   Priority
	MaxResults int
	Threshold  float64
}

// RAGResult is one ranked retrieval hit.
type RAGResult struct {
	Metadata map[string]any
	Content  string
	Score    float64
}

// RAGResponseMetadata is the envelope returned alongside results.
type RAGResponseMetadata struct {
	Source            string
	QueryID           string
	ServerID          string
	TotalResults      int
	ProcessingTimeMs  int64
}

// RAGResponse is the caller-facing response.
type RAGResponse struct {
	Metadata RAGResponseMetadata
	Results  []RAGResult
}

// RequestContextMetadata is the Router's derived view of a request.
type RequestContextMetadata struct {
	RequiredCapabilities []string
	EstimatedComplexity  float64 // [0,1]
	MaxCost              float64
	MinQuality           float64
	Deadline             time.Duration
}

// RoutingAttempt is one entry in a request context's append-only history.
type RoutingAttempt struct {
	Timestamp time.Time
	ServerID  string
	Error     string
	Success   bool
}

// RequestContext lives for the duration of one caller-facing Execute call
// (spec.md §3).
type RequestContext struct {
	ID         string
	Request    RAGRequest
	Metadata   RequestContextMetadata
	History    []RoutingAttempt
	Priority   int
	RetryCount int
}

// FailedServerSet returns the set of server ids that have already failed
// within this request's history — never re-selected within the same
// Execute call (spec.md §8).
func (rc *RequestContext) FailedServerSet() map[string]struct{} {
	failed := make(map[string]struct{}, len(rc.History))
	for _, h := range rc.History {
		if !h.Success {
			failed[h.ServerID] = struct{}{}
		}
	}
	return failed
}

// RecordAttempt appends an outcome to the routing history.
func (rc *RequestContext) RecordAttempt(serverID string, success bool, errMsg string) {
	rc.History = append(rc.History, RoutingAttempt{
		ServerID:  serverID,
		Success:   success,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// Reset clears every field so a *RequestContext can be safely recycled by
// a pool.Pool[*RequestContext] between unrelated Execute calls.
func (rc *RequestContext) Reset() {
	rc.ID = ""
	rc.Request = RAGRequest{}
	rc.Metadata = RequestContextMetadata{}
	rc.History = rc.History[:0]
	rc.Priority = 0
	rc.RetryCount = 0
}
