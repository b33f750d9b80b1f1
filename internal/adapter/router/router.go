package router

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/core/ports"
	"github.com/thushan/mcpmux/internal/muxerr"
)

// StrategyLookup resolves a strategy name (as named by a Rule) to a
// LoadBalancer, letting the Router delegate final server selection
// within a candidate sub-pool to the balancer factory.
type StrategyLookup func(name string) (ports.LoadBalancer, error)

// Config is the Router's tunable surface (spec.md §4.5).
type Config struct {
	DefaultStrategy       string // strategy name for the catch-all load_balance rule; falls back to weighted_response_time when empty
	ResponseTimeCeilingMs float64
	MaxRequestsPerServer  int64
	DefaultMaxRetries     int
	BaseCost              float64
	UnitCost              float64
}

func DefaultConfig() Config {
	return Config{
		DefaultStrategy:       "weighted_response_time",
		ResponseTimeCeilingMs: 5000,
		MaxRequestsPerServer:  10,
		DefaultMaxRetries:     3,
		BaseCost:              0.001,
		UnitCost:              0.01,
	}
}

// CustomRule is a JSONPath-driven predicate registered at runtime,
// evaluated against a JSON view of the request (spec.md §4.5's
// predicate contract generalised beyond the four builtin rules).
type CustomRule struct {
	Rule
	JSONPath string // e.g. "$.request.priority" — matches if the path resolves to a non-empty/truthy value
}

type Router struct {
	rules     []Rule
	custom    []CustomRule
	strategy  StrategyLookup
	hist      *histories
	cfg       Config
}

func New(strategy StrategyLookup, cfg Config) *Router {
	defaultStrategy := cfg.DefaultStrategy
	if defaultStrategy == "" {
		defaultStrategy = "weighted_response_time"
	}
	return &Router{
		rules:    DefaultRules(defaultStrategy),
		strategy: strategy,
		hist:     newHistories(),
		cfg:      cfg,
	}
}

var _ ports.Router = (*Router)(nil)

// AddRule registers a JSONPath-predicated custom rule; it is consulted
// before the builtin table, ordered by priority same as builtins.
func (r *Router) AddRule(cr CustomRule) {
	r.custom = append(r.custom, cr)
}

func requestJSONView(rc *domain.RequestContext) map[string]any {
	return map[string]any{
		"request": map[string]any{
			"query":       rc.Request.Query,
			"context":     rc.Request.Context,
			"priority":    string(rc.Request.Priority),
			"max_results": rc.Request.MaxResults,
			"threshold":   rc.Request.Threshold,
		},
	}
}

func (r *Router) matchCustom(cr CustomRule, rc *domain.RequestContext) bool {
	v, err := jsonpath.Get(cr.JSONPath, requestJSONView(rc))
	if err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != ""
	default:
		return true // path resolved to something, e.g. a matched subtree
	}
}

// selectRule finds the highest-priority matching rule, consulting custom
// JSONPath rules and the builtin table together, sorted descending.
func (r *Router) selectRule(rc *domain.RequestContext, eligible []*domain.Server) (Rule, bool) {
	type candidate struct {
		rule     Rule
		priority int
	}
	var candidates []candidate

	for _, cr := range r.custom {
		if r.matchCustom(cr, rc) {
			candidates = append(candidates, candidate{cr.Rule, cr.Priority})
		}
	}
	for _, rule := range r.rules {
		if rule.Predicate(rc, eligible) {
			candidates = append(candidates, candidate{rule, rule.Priority})
		}
	}
	if len(candidates) == 0 {
		return Rule{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })
	return candidates[0].rule, true
}

func subPool(rule Rule, eligible []*domain.Server) []*domain.Server {
	if len(rule.TargetServerIDs) == 0 {
		return eligible
	}
	want := make(map[string]struct{}, len(rule.TargetServerIDs))
	for _, id := range rule.TargetServerIDs {
		want[id] = struct{}{}
	}
	out := make([]*domain.Server, 0, len(eligible))
	for _, s := range eligible {
		if _, ok := want[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Router) fallbackSelect(eligible []*domain.Server) (*domain.Server, error) {
	if len(eligible) == 0 {
		return nil, muxerr.New(muxerr.KindNoServersAvailable, "router: no eligible servers")
	}
	best := eligible[0]
	for _, s := range eligible[1:] {
		if s.ActiveRequests < best.ActiveRequests {
			best = s
		}
	}
	return best, nil
}

// Route implements one selection attempt. Retries/backoff across
// multiple servers are driven by the caller (PoolManager) re-invoking
// Route with an updated RequestContext; Route itself only ever excludes
// servers that already failed within rc.History, per spec.md §4.5.
func (r *Router) Route(ctx context.Context, rc *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	failed := rc.FailedServerSet()
	candidates := make([]*domain.Server, 0, len(eligible))
	for _, s := range eligible {
		if _, bad := failed[s.ID]; !bad {
			candidates = append(candidates, s)
		}
	}

	rc.Metadata.RequiredCapabilities = InferCapabilities(rc.Request)
	rc.Metadata.EstimatedComplexity = EstimateComplexity(rc.Request)

	rule, matched := r.selectRule(rc, candidates)
	if !matched {
		srv, err := r.fallbackSelect(candidates)
		if err != nil {
			return nil, domain.RoutingDecision{}, err.(*muxerr.Error).WithHistory(rc.History)
		}
		decision := r.decisionFor(FallbackRuleID, srv, rc, 0.5, []string{"no rule matched, least-loaded fallback"})
		decision.MaxRetries = r.cfg.DefaultMaxRetries
		return srv, decision, nil
	}

	pool := subPool(rule, candidates)
	if len(pool) == 0 {
		return nil, domain.RoutingDecision{}, muxerr.New(muxerr.KindNoServersAvailable, fmt.Sprintf("router: rule %s matched but target sub-pool is empty", rule.ID)).WithHistory(rc.History)
	}

	if rule.Strategy != "" && r.strategy != nil {
		lb, err := r.strategy(rule.Strategy)
		if err == nil {
			srv, decision, serr := lb.Select(ctx, rc, pool)
			if serr == nil {
				decision.RuleID = rule.ID
				decision.MaxRetries = r.maxRetriesFor(rule)
				decision.Reasoning = append([]string{fmt.Sprintf("rule %q matched", rule.Name)}, decision.Reasoning...)
				return srv, decision, nil
			}
		}
	}

	srv := bestByScore(r.hist, pool, r.cfg, rc.Metadata.RequiredCapabilities)
	decision := r.decisionFor(rule.ID, srv, rc, 0.75, []string{fmt.Sprintf("rule %q matched, scored selection", rule.Name)})
	decision.MaxRetries = r.maxRetriesFor(rule)
	return srv, decision, nil
}

// maxRetriesFor resolves a matched rule's retry override, falling back to
// the router's own configured default when the rule leaves it unset.
func (r *Router) maxRetriesFor(rule Rule) int {
	if rule.MaxRetries > 0 {
		return rule.MaxRetries
	}
	return r.cfg.DefaultMaxRetries
}

func bestByScore(h *histories, pool []*domain.Server, cfg Config, requiredCaps []string) *domain.Server {
	best := pool[0]
	bestScore := h.score(best, cfg.ResponseTimeCeilingMs, cfg.MaxRequestsPerServer, requiredCaps)
	for _, s := range pool[1:] {
		if sc := h.score(s, cfg.ResponseTimeCeilingMs, cfg.MaxRequestsPerServer, requiredCaps); sc > bestScore {
			best, bestScore = s, sc
		}
	}
	return best
}

func (r *Router) decisionFor(ruleID string, srv *domain.Server, rc *domain.RequestContext, confidence float64, reasoning []string) domain.RoutingDecision {
	latency := expectedLatency(srv, rc.Metadata.EstimatedComplexity)
	return domain.RoutingDecision{
		ServerID:        srv.ID,
		RuleID:          ruleID,
		Confidence:      confidence,
		Reasoning:       reasoning,
		ExpectedLatency: time.Duration(latency) * time.Millisecond,
		ExpectedCost:    expectedCost(r.cfg.BaseCost, r.cfg.UnitCost, rc.Metadata.EstimatedComplexity),
	}
}

func (r *Router) RecordOutcome(rc *domain.RequestContext, ruleID string, success bool) {
	r.hist.recordRule(ruleID, success)
	if len(rc.History) > 0 {
		last := rc.History[len(rc.History)-1]
		r.hist.recordServer(last.ServerID, success)
	}
}

// RecordDecisionOutcome lets a caller holding only the RoutingDecision
// (not the originating RequestContext) feed an outcome back in — the
// shape the PoolManager's Selector contract expects, mirroring
// ports.LoadBalancer.RecordOutcome rather than ports.Router.RecordOutcome.
func (r *Router) RecordDecisionOutcome(decision domain.RoutingDecision, success bool, _ time.Duration) {
	r.hist.recordRule(decision.RuleID, success)
	r.hist.recordServer(decision.ServerID, success)
}
