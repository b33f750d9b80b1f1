// Package router implements ports.Router: a priority-ordered rule table,
// multi-factor scoring, capability/complexity inference, and per-request
// failover (spec.md §4.5). The teacher has no request router — this
// package is built fresh in its idiom (table-driven strategy lookup
// styled on balancer.Factory, scoring styled on the health package's
// determineStatus-style pure functions), supplemented by the
// chain-of-responsibility rule shape from other_examples' sclaw
// provider chain and a circuit-breaker-adjacent scoring example.
package router

import (
	"strings"

	"github.com/thushan/mcpmux/internal/core/domain"
)

// Predicate decides whether a rule matches a request context.
type Predicate func(rc *domain.RequestContext, eligible []*domain.Server) bool

// Rule is one entry in the router's table (spec.md §4.5).
type Rule struct {
	Predicate       Predicate
	ID              string
	Name            string
	Strategy        string
	TargetServerIDs []string
	Priority        int
	MaxRetries      int
}

const FallbackRuleID = "fallback"

// DefaultRules seeds the four rules spec.md §4.5 names. defaultStrategy
// names the balancer strategy the catch-all load_balance rule delegates
// to; callers pass the configured fallback strategy (see Config.DefaultStrategy).
func DefaultRules(defaultStrategy string) []Rule {
	return []Rule{
		{
			ID: "high_priority", Name: "high priority requests", Priority: 100,
			Strategy: "least_connections", MaxRetries: 5,
			Predicate: func(rc *domain.RequestContext, _ []*domain.Server) bool {
				return rc.Request.Priority == domain.PriorityHigh
			},
		},
		{
			ID: "vector_search", Name: "vector/similarity queries", Priority: 80,
			Strategy: "weighted_response_time",
			Predicate: func(rc *domain.RequestContext, _ []*domain.Server) bool {
				return containsAny(rc.Request.Query, "vector", "similarity") || containsAny(rc.Request.Context, "vector", "similarity")
			},
		},
		{
			ID: "complex_query", Name: "complex queries", Priority: 60,
			Strategy: "weighted_response_time",
			Predicate: func(rc *domain.RequestContext, _ []*domain.Server) bool {
				return len(rc.Request.Query) > 500 || rc.Request.MaxResults > 10
			},
		},
		{
			ID: "load_balance", Name: "default load balancing", Priority: 1,
			Strategy: defaultStrategy,
			Predicate: func(*domain.RequestContext, []*domain.Server) bool {
				return true
			},
		},
	}
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// InferCapabilities derives required capability tags from the request
// text, per spec.md §4.5.
func InferCapabilities(req domain.RAGRequest) []string {
	var caps []string
	if containsAny(req.Query, "vector", "similarity") || containsAny(req.Context, "vector", "similarity") {
		caps = append(caps, "vector_search")
	}
	if containsAny(req.Query, "graph", "relationship") || containsAny(req.Context, "graph", "relationship") {
		caps = append(caps, "graph_query")
	}
	if containsAny(req.Query, "complex") || req.MaxResults > 10 {
		caps = append(caps, "advanced_processing")
	}
	return caps
}

// EstimateComplexity computes the [0,1] complexity score from spec.md §4.5.
func EstimateComplexity(req domain.RAGRequest) float64 {
	c := 0.1
	c += min(float64(len(req.Query))/1000, 0.5)
	c += min(float64(len(req.Context))/2000, 0.3)
	c += min(float64(req.MaxResults)/20, 0.2)
	if c > 1 {
		c = 1
	}
	return c
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
