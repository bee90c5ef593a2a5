// Package assembler turns a template's section topology and a firm's answers
// into a concrete section -> clause id map.
//
// Every assembler builds one static module per section, optionally appends
// answer-driven dynamic modules, applies detail-tier caps to the static
// lists, and deduplicates each section in module-definition order.
// Assemblers are pure; the same template and answers always yield the same
// Assembly.
package assembler

import (
	"fmt"

	"github.com/solatis/policysmith/internal/types"
)

// Answer keys shared by every assembler.
const (
	AnswerDetailLevel       = "detailLevel"
	AnswerIncludeAppendices = "includeAppendices"
)

// Assembly is the output of one assembler run.
type Assembly struct {
	Modules        []types.Module      `json:"modules"`
	SectionClauses map[string][]string `json:"sectionClauses"`
	// Variables are assembler-level defaults. Rule set_vars and the firm
	// profile override them.
	Variables map[string]any `json:"variables"`
}

// Assembler builds an Assembly for one template.
type Assembler interface {
	Assemble(tmpl types.Template, answers types.Answers) Assembly
}

// Options are the answers every assembler honours.
type Options struct {
	Tier              Tier
	IncludeAppendices bool
}

// OptionsFrom reads the shared options from answers. Unknown or missing
// values fall back to the standard tier without appendices.
func OptionsFrom(answers types.Answers) Options {
	return Options{
		Tier:              ParseTier(stringAnswer(answers, AnswerDetailLevel)),
		IncludeAppendices: boolAnswer(answers, AnswerIncludeAppendices),
	}
}

// appendicesIncluded reports whether appendix sections are part of the
// assembly. The maximum tier always includes them.
func (o Options) appendicesIncluded() bool {
	return o.IncludeAppendices || o.Tier == TierEnterprise
}

// dynamicModule is one row of an assembler's declarative module table.
type dynamicModule struct {
	id        string
	title     string
	summary   string
	sectionID string
	clauseIDs []string
	// when returns the provenance reason and whether the module applies.
	when func(types.Answers) (string, bool)
}

// build walks the template in section order. Each section gets its static
// module first, then every dynamic module targeting it in table order.
// Appendix sections are skipped entirely unless opts include them.
func build(tmpl types.Template, opts Options, caps Caps, table []dynamicModule, answers types.Answers) Assembly {
	asm := Assembly{
		Modules:        []types.Module{},
		SectionClauses: map[string][]string{},
		Variables:      map[string]any{},
	}

	for _, sec := range tmpl.Sections {
		if sec.SectionType == types.SectionAppendix && !opts.appendicesIncluded() {
			continue
		}

		modules := []types.Module{staticModule(sec, opts.Tier, caps)}
		for _, dm := range table {
			if dm.sectionID != sec.ID {
				continue
			}
			reason, ok := dm.when(answers)
			if !ok {
				continue
			}
			modules = append(modules, types.Module{
				ID:          dm.id,
				Title:       dm.title,
				Summary:     dm.summary,
				SectionID:   sec.ID,
				SectionType: sec.SectionType,
				Kind:        types.ModuleDynamic,
				ClauseIDs:   append([]string{}, dm.clauseIDs...),
				Reasons:     []string{reason},
			})
		}

		asm.Modules = append(asm.Modules, modules...)
		asm.SectionClauses[sec.ID] = dedupe(modules)
	}
	return asm
}

func staticModule(sec types.Section, tier Tier, caps Caps) types.Module {
	ids := append([]string{}, sec.SuggestedClauses...)
	reasons := []string{fmt.Sprintf("template section %q", sec.ID)}

	// Appendices are never capped.
	if sec.SectionType != types.SectionAppendix {
		if n, ok := caps.Limit(tier, sec.ID); ok && len(ids) > n {
			ids = Truncate(ids, n)
			reasons = append(reasons, fmt.Sprintf("capped at %d clauses for %s detail level", n, tier))
		}
	}

	return types.Module{
		ID:          sec.ID + ".static",
		Title:       sec.Title,
		Summary:     sec.Summary,
		SectionID:   sec.ID,
		SectionType: sec.SectionType,
		Kind:        types.ModuleStatic,
		ClauseIDs:   ids,
		Reasons:     reasons,
	}
}

// dedupe returns the ordered-unique union of the modules' clause ids.
func dedupe(modules []types.Module) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, m := range modules {
		for _, id := range m.ClauseIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func stringAnswer(answers types.Answers, key string) string {
	s, _ := answers[key].(string)
	return s
}

func boolAnswer(answers types.Answers, key string) bool {
	b, _ := answers[key].(bool)
	return b
}

// listAnswer accepts []string and []any answers, ignoring non-string elements.
func listAnswer(answers types.Answers, key string) []string {
	switch v := answers[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
