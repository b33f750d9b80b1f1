package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestDefaultRulesOrderedByDescendingPriority(t *testing.T) {
	rules := DefaultRules("weighted_response_time")
	for i := 1; i < len(rules); i++ {
		assert.GreaterOrEqual(t, rules[i-1].Priority, rules[i].Priority)
	}
}

func TestHighPriorityRulePredicate(t *testing.T) {
	rules := DefaultRules("weighted_response_time")
	rule := rules[0]
	assert.Equal(t, "high_priority", rule.ID)

	rc := &domain.RequestContext{Request: domain.RAGRequest{Priority: domain.PriorityHigh}}
	assert.True(t, rule.Predicate(rc, nil))

	rc.Request.Priority = domain.PriorityLow
	assert.False(t, rule.Predicate(rc, nil))
}

func TestLoadBalanceRuleAlwaysMatches(t *testing.T) {
	rules := DefaultRules("weighted_response_time")
	fallback := rules[len(rules)-1]
	assert.Equal(t, "load_balance", fallback.ID)
	assert.True(t, fallback.Predicate(&domain.RequestContext{}, nil))
}

func TestInferCapabilitiesDetectsVectorSearch(t *testing.T) {
	caps := InferCapabilities(domain.RAGRequest{Query: "find similar vector embeddings"})
	assert.Contains(t, caps, "vector_search")
}

func TestInferCapabilitiesDetectsGraphQuery(t *testing.T) {
	caps := InferCapabilities(domain.RAGRequest{Context: "graph relationship traversal"})
	assert.Contains(t, caps, "graph_query")
}

func TestInferCapabilitiesDetectsAdvancedProcessing(t *testing.T) {
	caps := InferCapabilities(domain.RAGRequest{MaxResults: 50})
	assert.Contains(t, caps, "advanced_processing")
}

func TestEstimateComplexityScalesWithRequestSize(t *testing.T) {
	small := EstimateComplexity(domain.RAGRequest{Query: "short"})
	large := EstimateComplexity(domain.RAGRequest{Query: string(make([]byte, 2000)), Context: string(make([]byte, 4000)), MaxResults: 50})

	assert.Less(t, small, large)
	assert.LessOrEqual(t, large, 1.0)
}
