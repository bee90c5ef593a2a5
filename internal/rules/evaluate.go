// internal/rules/evaluate.go
package rules

import "github.com/solatis/policysmith/internal/types"

/*
 * Condition evaluation.
 *
 * Evaluation flow:
 *   1. Compile the condition to a single Predicate (fixed comparator order)
 *   2. Resolve q through Lookup (answers, then attributes)
 *   3. Absent key -> false
 *   4. Match the predicate against the resolved value
 *
 * Pure: no I/O, no mutation of inputs, identical inputs give identical output.
 */

// EvaluateCondition reports whether cond holds for the given bags.
func EvaluateCondition(cond types.RuleCondition, lk Lookup) bool {
	return Compile(cond).Evaluate(lk)
}

// Evaluate reports whether the compiled condition holds.
func (c CompiledCondition) Evaluate(lk Lookup) bool {
	value, found := lk.Resolve(c.Key)
	if !found {
		return false
	}
	return Match(c.Predicate, value, lk)
}
