// internal/rules/operators.go
package rules

import (
	"github.com/expr-lang/expr"
)

/*
 * Predicate matching.
 *
 * One case per Predicate variant. Values reaching Match have already been
 * resolved by Lookup; absence is handled before this point.
 *
 * Fail-closed rules:
 *   - includes: value must be a sequence; strings are not searched.
 *   - gt/gte/lt/lte: value must be numeric; comparisons are strict.
 *   - expr: runtime errors and non-boolean results are false.
 */

// Match applies p to a resolved value.
func Match(p Predicate, value any, lk Lookup) bool {
	switch p := p.(type) {
	case EqPredicate:
		return compareEqual(value, p.Operand)
	case NeqPredicate:
		return !compareEqual(value, p.Operand)
	case IncludesPredicate:
		return compareIncludes(value, p.Operand)
	case InPredicate:
		return compareIn(value, p.Operands)
	case NumericPredicate:
		return compareNumeric(p.Op, value, p.Operand)
	case ExprPredicate:
		return runExpr(p, value, lk)
	case NeverPredicate:
		return false
	default:
		return false
	}
}

// compareIncludes checks whether the sequence value contains item.
func compareIncludes(value, item any) bool {
	elems, ok := asSequence(value)
	if !ok {
		return false
	}
	for _, elem := range elems {
		if compareEqual(elem, item) {
			return true
		}
	}
	return false
}

// compareIn checks whether value equals any element of set.
func compareIn(value any, set []any) bool {
	for _, elem := range set {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}

// compareNumeric orders a numeric value against target.
func compareNumeric(op Comparator, value any, target float64) bool {
	n, ok := toFloat64(value)
	if !ok {
		return false
	}
	switch op {
	case CmpGt:
		return n > target
	case CmpGte:
		return n >= target
	case CmpLt:
		return n < target
	case CmpLte:
		return n <= target
	default:
		return false
	}
}

// runExpr evaluates a compiled expr program against the resolved value.
func runExpr(p ExprPredicate, value any, lk Lookup) bool {
	if p.program == nil {
		return false
	}
	out, err := expr.Run(p.program, map[string]any{
		"value":      value,
		"answers":    lk.Answers(),
		"attributes": lk.Attributes(),
	})
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}
