// internal/rules/compile.go
package rules

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/solatis/policysmith/internal/types"
)

/*
 * Condition compilation.
 *
 * A RuleCondition carries its comparators as loose operand keys. Compile
 * turns it into exactly one Predicate from a closed set of variants, chosen
 * by walking ComparatorOrder and taking the first comparator present. A
 * condition naming several comparators is therefore resolved, not rejected:
 * {q: x, eq: 1, gt: 0} is an eq condition and the gt operand is ignored.
 *
 * Operand validation happens here so evaluation never has to: a numeric
 * comparator with a non-numeric operand, an "in" without a list, or an expr
 * that fails to compile all compile to predicates that never match.
 */

// Comparator names an operand key of a RuleCondition.
type Comparator string

const (
	CmpEq       Comparator = "eq"
	CmpIncludes Comparator = "includes"
	CmpGt       Comparator = "gt"
	CmpLt       Comparator = "lt"
	CmpNeq      Comparator = "neq"
	CmpIn       Comparator = "in"
	CmpGte      Comparator = "gte"
	CmpLte      Comparator = "lte"
	CmpExpr     Comparator = "expr"
)

// ComparatorOrder is the fixed precedence used when a condition names more
// than one comparator. Only the first present key is honoured.
var ComparatorOrder = []Comparator{
	CmpEq,
	CmpIncludes,
	CmpGt,
	CmpLt,
	CmpNeq,
	CmpIn,
	CmpGte,
	CmpLte,
	CmpExpr,
}

// Predicate is the closed set of compiled comparator variants.
type Predicate interface {
	Comparator() Comparator
}

// EqPredicate matches values equal to Operand.
type EqPredicate struct{ Operand any }

// NeqPredicate matches values not equal to Operand.
type NeqPredicate struct{ Operand any }

// IncludesPredicate matches sequences containing Operand.
type IncludesPredicate struct{ Operand any }

// InPredicate matches values equal to any of Operands.
type InPredicate struct{ Operands []any }

// NumericPredicate matches numeric values ordered against Operand.
type NumericPredicate struct {
	Op      Comparator // one of CmpGt, CmpGte, CmpLt, CmpLte
	Operand float64
}

// ExprPredicate evaluates a boolean expr-lang program.
type ExprPredicate struct {
	Source  string
	program *vm.Program
}

// NeverPredicate never matches. It stands in for conditions with no usable
// comparator or an invalid operand.
type NeverPredicate struct{ Requested Comparator }

func (EqPredicate) Comparator() Comparator       { return CmpEq }
func (NeqPredicate) Comparator() Comparator      { return CmpNeq }
func (IncludesPredicate) Comparator() Comparator { return CmpIncludes }
func (InPredicate) Comparator() Comparator       { return CmpIn }
func (p NumericPredicate) Comparator() Comparator {
	return p.Op
}
func (ExprPredicate) Comparator() Comparator { return CmpExpr }
func (p NeverPredicate) Comparator() Comparator {
	return p.Requested
}

// CompiledCondition is a condition ready for evaluation.
type CompiledCondition struct {
	Key       string
	Predicate Predicate
}

// Compile selects the honoured comparator of cond and validates its operand.
func Compile(cond types.RuleCondition) CompiledCondition {
	compiled := CompiledCondition{Key: cond.Q, Predicate: NeverPredicate{}}
	for _, cmp := range ComparatorOrder {
		operand, ok := cond.Operands[string(cmp)]
		if !ok {
			continue
		}
		compiled.Predicate = compilePredicate(cmp, operand)
		return compiled
	}
	return compiled
}

// compilePredicate builds the variant for cmp, falling back to NeverPredicate
// when the operand cannot serve that comparator.
func compilePredicate(cmp Comparator, operand any) Predicate {
	switch cmp {
	case CmpEq:
		return EqPredicate{Operand: operand}
	case CmpNeq:
		return NeqPredicate{Operand: operand}
	case CmpIncludes:
		return IncludesPredicate{Operand: operand}
	case CmpIn:
		values, ok := asSequence(operand)
		if !ok {
			return NeverPredicate{Requested: cmp}
		}
		return InPredicate{Operands: values}
	case CmpGt, CmpGte, CmpLt, CmpLte:
		n, ok := toFloat64(operand)
		if !ok {
			return NeverPredicate{Requested: cmp}
		}
		return NumericPredicate{Op: cmp, Operand: n}
	case CmpExpr:
		return compileExpr(operand)
	default:
		return NeverPredicate{Requested: cmp}
	}
}

// exprEnv is left empty: value, answers and attributes are bound at run
// time and type-checked dynamically.
var exprEnv = map[string]any{}

// compileExpr compiles an expr comparator; invalid sources never match.
func compileExpr(operand any) Predicate {
	src, ok := operand.(string)
	if !ok || src == "" || len(src) > types.MaxExprLength {
		return NeverPredicate{Requested: CmpExpr}
	}
	program, err := expr.Compile(src, expr.Env(exprEnv), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return NeverPredicate{Requested: CmpExpr}
	}
	return ExprPredicate{Source: src, program: program}
}
