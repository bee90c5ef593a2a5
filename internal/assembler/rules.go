package assembler

import (
	"fmt"

	"github.com/solatis/policysmith/internal/types"
)

/*
 * Rule union.
 *
 * ApplyRules merges a rule engine result into an Assembly for rule-backed
 * policies. Each included clause lands in its home section:
 *
 *   1. the first assembled section whose suggestedClauses lists it
 *   2. otherwise the template's last assembled non-appendix section
 *
 * Codes with no home are dropped. Per section, rule codes are appended as a
 * single "rules" dynamic module after the assembler's own modules.
 *
 * Exclusions are then subtracted from every section exactly once, so a rule
 * exclusion always beats static, dynamic and rule inclusions of the same
 * code. Module clause lists are left as authored; sectionClauses is the
 * authoritative result.
 */

// ApplyRules returns a new Assembly with result unioned into asm.
// asm is not modified.
func ApplyRules(asm Assembly, tmpl types.Template, result types.RulesEngineResult) Assembly {
	out := Assembly{
		Modules:        append([]types.Module{}, asm.Modules...),
		SectionClauses: make(map[string][]string, len(asm.SectionClauses)),
		Variables:      make(map[string]any, len(asm.Variables)),
	}
	for k, v := range asm.SectionClauses {
		out.SectionClauses[k] = append([]string{}, v...)
	}
	for k, v := range asm.Variables {
		out.Variables[k] = v
	}

	byHome := map[string][]string{}
	for _, code := range result.IncludedClauses {
		home, ok := homeSection(tmpl, out.SectionClauses, code)
		if !ok {
			continue
		}
		byHome[home] = append(byHome[home], code)
	}

	for _, sec := range tmpl.Sections {
		codes, ok := byHome[sec.ID]
		if !ok {
			continue
		}
		out.Modules = append(out.Modules, types.Module{
			ID:          sec.ID + ".rules",
			Title:       sec.Title,
			Summary:     "Clauses included by fired rules.",
			SectionID:   sec.ID,
			SectionType: sec.SectionType,
			Kind:        types.ModuleDynamic,
			ClauseIDs:   codes,
			Reasons:     []string{fmt.Sprintf("%d clause(s) included by rules", len(codes))},
		})
		out.SectionClauses[sec.ID] = dedupe([]types.Module{
			{ClauseIDs: out.SectionClauses[sec.ID]},
			{ClauseIDs: codes},
		})
	}

	if len(result.ExcludedClauses) == 0 {
		return out
	}
	excluded := make(map[string]struct{}, len(result.ExcludedClauses))
	for _, code := range result.ExcludedClauses {
		excluded[code] = struct{}{}
	}
	for id, codes := range out.SectionClauses {
		kept := make([]string, 0, len(codes))
		for _, code := range codes {
			if _, ok := excluded[code]; !ok {
				kept = append(kept, code)
			}
		}
		out.SectionClauses[id] = kept
	}
	return out
}

func homeSection(tmpl types.Template, assembled map[string][]string, code string) (string, bool) {
	for _, sec := range tmpl.Sections {
		if _, ok := assembled[sec.ID]; !ok {
			continue
		}
		if contains(sec.SuggestedClauses, code) {
			return sec.ID, true
		}
	}
	for i := len(tmpl.Sections) - 1; i >= 0; i-- {
		sec := tmpl.Sections[i]
		if sec.SectionType == types.SectionAppendix {
			continue
		}
		if _, ok := assembled[sec.ID]; ok {
			return sec.ID, true
		}
	}
	return "", false
}
