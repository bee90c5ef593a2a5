// internal/types/rules.go
package types

import (
	"encoding/json"
	"math"
)

/*
 * Domain types for rule evaluation.
 *
 * Provides Rule, RuleCondition, RuleAction and RulesEngineResult used by
 * internal/rules. Field names follow the authoring surface's JSON contract.
 *
 * Key types:
 *   - Rule: priority-ordered condition -> action pair scoped to one policy
 *   - RuleCondition: single-predicate gate over one answer/attribute key
 *   - RuleAction: clause inclusions/exclusions/suggestions and variable bindings
 *   - RulesEngineResult: accumulated output of one engine run
 *
 * Decoding is tolerant: malformed priorities and conditions decode to
 * "invalid"/empty values instead of errors so one bad rule never rejects
 * a whole pack.
 */

// Rule is an authored condition -> action pair. Immutable for a run.
type Rule struct {
	ID        RuleID        `json:"id" yaml:"id"`
	PolicyID  string        `json:"policy_id" yaml:"policy_id"`
	Name      string        `json:"name" yaml:"name"`
	Priority  Priority      `json:"priority" yaml:"priority"`
	Condition RuleCondition `json:"condition" yaml:"condition"`
	Action    *RuleAction   `json:"action,omitempty" yaml:"action,omitempty"`
	IsActive  bool          `json:"is_active" yaml:"is_active"`
}

// Priority is a rule's evaluation priority. Higher values are evaluated
// first. Valid is false when the authored value was missing or not an
// integer; invalid priorities sort after all valid ones.
type Priority struct {
	Value int
	Valid bool
}

// NewPriority returns a valid priority.
func NewPriority(v int) Priority {
	return Priority{Value: v, Valid: true}
}

// MarshalJSON encodes invalid priorities as null.
func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON never fails; non-integer input yields an invalid priority.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*p = Priority{}
		return nil
	}
	*p = priorityFrom(raw)
	return nil
}

// UnmarshalYAML never fails; non-integer input yields an invalid priority.
func (p *Priority) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		*p = Priority{}
		return nil
	}
	*p = priorityFrom(raw)
	return nil
}

func priorityFrom(raw any) Priority {
	switch v := raw.(type) {
	case int:
		return NewPriority(v)
	case int64:
		return NewPriority(int(v))
	case uint64:
		if v > math.MaxInt32 {
			return Priority{}
		}
		return NewPriority(int(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return Priority{}
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return Priority{}
		}
		return NewPriority(int(v))
	default:
		return Priority{}
	}
}

// RuleCondition is a single predicate over the key Q. Operands holds every
// other key of the authored object (eq, includes, gt, lt, ...). Which
// operand is honoured is decided by the evaluator's fixed comparator order.
type RuleCondition struct {
	Q        string
	Operands map[string]any
}

// NewCondition builds a condition with a single comparator.
func NewCondition(q, comparator string, operand any) RuleCondition {
	return RuleCondition{Q: q, Operands: map[string]any{comparator: operand}}
}

// MarshalJSON flattens Q and Operands into one object.
func (c RuleCondition) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Operands)+1)
	for k, v := range c.Operands {
		out[k] = v
	}
	out["q"] = c.Q
	return json.Marshal(out)
}

// UnmarshalJSON never fails; a non-object decodes as an empty condition.
func (c *RuleCondition) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		*c = RuleCondition{}
		return nil
	}
	*c = conditionFrom(raw)
	return nil
}

// UnmarshalYAML never fails; a non-mapping decodes as an empty condition.
func (c *RuleCondition) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		*c = RuleCondition{}
		return nil
	}
	*c = conditionFrom(raw)
	return nil
}

func conditionFrom(raw map[string]any) RuleCondition {
	cond := RuleCondition{Operands: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k == "q" {
			cond.Q, _ = v.(string)
			continue
		}
		cond.Operands[k] = v
	}
	return cond
}

// RuleAction is applied when a rule's condition holds. All fields are optional.
type RuleAction struct {
	IncludeClauseCodes []string       `json:"include_clause_codes,omitempty" yaml:"include_clause_codes,omitempty"`
	ExcludeClauseCodes []string       `json:"exclude_clause_codes,omitempty" yaml:"exclude_clause_codes,omitempty"`
	SuggestClauseCodes []string       `json:"suggest_clause_codes,omitempty" yaml:"suggest_clause_codes,omitempty"`
	Reason             string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	SetVars            map[string]any `json:"set_vars,omitempty" yaml:"set_vars,omitempty"`
}

// SuggestedClause is an advisory clause surfaced to a reviewer.
type SuggestedClause struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// RuleFired is the audit entry recorded for every rule considered.
type RuleFired struct {
	RuleName     string `json:"rule_name"`
	ConditionMet bool   `json:"condition_met"`
}

// RulesEngineResult is the accumulated output of one engine run.
type RulesEngineResult struct {
	IncludedClauses  []string          `json:"included_clauses"`
	ExcludedClauses  []string          `json:"excluded_clauses"`
	SuggestedClauses []SuggestedClause `json:"suggested_clauses"`
	Variables        map[string]any    `json:"variables"`
	RulesFired       []RuleFired       `json:"rules_fired"`
}
