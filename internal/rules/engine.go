// internal/rules/engine.go
package rules

import (
	"sort"

	"github.com/solatis/policysmith/internal/types"
)

/*
 * Rule firing.
 *
 * EvaluateRules filters a rule set to one policy's active rules, orders them
 * by descending priority and folds an accumulator over them.
 *
 * Ordering: sort.SliceStable keeps authored order among equal priorities.
 * Invalid priorities sort after every valid one. This order decides set_vars
 * collisions, so it must stay exactly as is.
 *
 * Accumulation (step):
 *   - include/exclude: ordered-unique, first occurrence keeps its position
 *   - suggest: unique by code, first reason wins
 *   - set_vars: first write wins, i.e. the highest-priority rule's value
 *   - rules_fired: one entry per considered rule, fired or not
 *
 * Exclusions are recorded, not applied. They are subtracted once, when the
 * assembler unions rule inclusions with its own modules.
 */

// RunContext carries the per-run inputs.
type RunContext struct {
	PolicyID       string
	Answers        types.Answers
	FirmAttributes types.FirmAttributes
}

// Engine is the service-facing handle on the rule firing engine.
// It holds no state; the zero value is ready to use.
type Engine struct{}

// NewEngine creates a new rules engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs EvaluateRules.
func (e *Engine) Evaluate(rules []types.Rule, rc RunContext) types.RulesEngineResult {
	return EvaluateRules(rules, rc)
}

// EvaluateRules fires rules for rc.PolicyID and returns the accumulated result.
// It never fails: malformed rules simply do not fire.
func EvaluateRules(rules []types.Rule, rc RunContext) types.RulesEngineResult {
	lk := NewLookup(rc.Answers, rc.FirmAttributes)
	acc := newAccumulator()
	for _, rule := range OrderRules(rules, rc.PolicyID) {
		met := EvaluateCondition(rule.Condition, lk)
		acc = step(acc, rule, met)
	}
	return acc.result()
}

// OrderRules returns the active rules of policyID in evaluation order.
// The input slice is not modified.
func OrderRules(rules []types.Rule, policyID string) []types.Rule {
	ordered := make([]types.Rule, 0, len(rules))
	for _, r := range rules {
		if r.PolicyID != policyID || !r.IsActive {
			continue
		}
		ordered = append(ordered, r)
	}
	// Stable sort: equal priorities keep authored order (deterministic set_vars winner)
	sort.SliceStable(ordered, func(i, j int) bool {
		return higherPriority(ordered[i].Priority, ordered[j].Priority)
	})
	return ordered
}

// higherPriority reports whether a sorts strictly before b.
func higherPriority(a, b types.Priority) bool {
	switch {
	case a.Valid && !b.Valid:
		return true
	case !a.Valid:
		return false
	default:
		return a.Value > b.Value
	}
}

// accumulator is the fold state. Values are never modified once built:
// step returns a successor that shares unchanged parts with its input and
// copies a slice or map only when it has something new to add.
type accumulator struct {
	included  []string
	excluded  []string
	suggested []types.SuggestedClause
	variables map[string]any
	fired     *firedEntry
	nFired    int
	seenInc   map[string]struct{}
	seenExc   map[string]struct{}
	seenSugg  map[string]struct{}
}

// firedEntry is a rules_fired list, newest first. Tails are shared.
type firedEntry struct {
	fired types.RuleFired
	prev  *firedEntry
}

func newAccumulator() accumulator {
	return accumulator{
		included:  []string{},
		excluded:  []string{},
		suggested: []types.SuggestedClause{},
		variables: map[string]any{},
		seenInc:   map[string]struct{}{},
		seenExc:   map[string]struct{}{},
		seenSugg:  map[string]struct{}{},
	}
}

// step folds one considered rule into acc and returns the successor.
func step(acc accumulator, rule types.Rule, met bool) accumulator {
	next := acc
	next.fired = &firedEntry{fired: types.RuleFired{RuleName: rule.Name, ConditionMet: met}, prev: acc.fired}
	next.nFired = acc.nFired + 1
	if !met || rule.Action == nil {
		return next
	}
	action := rule.Action

	next.included, next.seenInc = withUnique(acc.included, acc.seenInc, action.IncludeClauseCodes)
	next.excluded, next.seenExc = withUnique(acc.excluded, acc.seenExc, action.ExcludeClauseCodes)

	reason := action.Reason
	if reason == "" {
		reason = rule.Name
	}
	codes, seenSugg := withUnique(nil, acc.seenSugg, action.SuggestClauseCodes)
	if len(codes) > 0 {
		suggested := make([]types.SuggestedClause, len(acc.suggested), len(acc.suggested)+len(codes))
		copy(suggested, acc.suggested)
		for _, code := range codes {
			suggested = append(suggested, types.SuggestedClause{Code: code, Reason: reason})
		}
		next.suggested, next.seenSugg = suggested, seenSugg
	}

	next.variables = withFirstWrites(acc.variables, action.SetVars)
	return next
}

// withUnique returns dst extended by the codes not yet in seen, preserving
// first-seen order, together with the matching seen set. Neither input is
// modified; both are returned as is when nothing is new.
func withUnique(dst []string, seen map[string]struct{}, codes []string) ([]string, map[string]struct{}) {
	var fresh []string
	var freshSeen map[string]struct{}
	for _, code := range codes {
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		if _, ok := freshSeen[code]; ok {
			continue
		}
		if freshSeen == nil {
			freshSeen = map[string]struct{}{}
		}
		freshSeen[code] = struct{}{}
		fresh = append(fresh, code)
	}
	if len(fresh) == 0 {
		return dst, seen
	}

	out := make([]string, len(dst), len(dst)+len(fresh))
	copy(out, dst)
	out = append(out, fresh...)
	nextSeen := make(map[string]struct{}, len(seen)+len(fresh))
	for code := range seen {
		nextSeen[code] = struct{}{}
	}
	for _, code := range fresh {
		nextSeen[code] = struct{}{}
	}
	return out, nextSeen
}

// withFirstWrites returns vars plus the keys of set that vars lacks.
// vars is not modified; it is returned as is when every key is taken.
func withFirstWrites(vars map[string]any, set map[string]any) map[string]any {
	var out map[string]any
	for k, v := range set {
		if _, ok := vars[k]; ok {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(vars)+len(set))
			for vk, vv := range vars {
				out[vk] = vv
			}
		}
		out[k] = v
	}
	if out == nil {
		return vars
	}
	return out
}

func (a accumulator) result() types.RulesEngineResult {
	fired := make([]types.RuleFired, a.nFired)
	i := a.nFired
	for e := a.fired; e != nil; e = e.prev {
		i--
		fired[i] = e.fired
	}
	return types.RulesEngineResult{
		IncludedClauses:  a.included,
		ExcludedClauses:  a.excluded,
		SuggestedClauses: a.suggested,
		Variables:        a.variables,
		RulesFired:       fired,
	}
}
