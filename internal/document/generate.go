// Package document runs one policy generation: rules, assembly, variable
// merge and rendering, producing an in-memory document model.
package document

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/solatis/policysmith/internal/assembler"
	"github.com/solatis/policysmith/internal/clauses"
	"github.com/solatis/policysmith/internal/rules"
	"github.com/solatis/policysmith/internal/types"
)

/*
 * Generation flow.
 *
 *   1. rules      fire the policy's rules (rule-backed policies only)
 *   2. assemble   registry assembler, then ApplyRules for rule-backed policies
 *   3. variables  assembler defaults < rule set_vars < firm profile
 *   4. render     each section's clauses in template section order
 *   5. report     missing, dropped mandatory, unresolved, fingerprint
 *
 * Nothing here fails: unknown clause ids are reported in MissingClauses and
 * unbound placeholders stay visible in the rendered bodies.
 */

// Input is everything one generation run needs.
type Input struct {
	Template types.Template
	Clauses  []types.Clause
	Rules    []types.Rule
	Answers  types.Answers
	Firm     types.FirmProfile
	// Registry selects the assembler; nil uses assembler.NewRegistry().
	Registry *assembler.Registry
}

// RenderedClause is one clause after variable binding.
type RenderedClause struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	BodyMD     string   `json:"body_md"`
	Unresolved []string `json:"unresolved"`
}

// Section is one rendered template section.
type Section struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	SectionType types.SectionType `json:"sectionType"`
	Clauses     []RenderedClause  `json:"clauses"`
}

// Document is the generated policy model.
type Document struct {
	PolicyKey           string                  `json:"policy_key"`
	TemplateID          string                  `json:"template_id"`
	FirmID              string                  `json:"firm_id"`
	Title               string                  `json:"title"`
	Sections            []Section               `json:"sections"`
	Modules             []types.Module          `json:"modules"`
	SectionClauses      map[string][]string     `json:"section_clauses"`
	Variables           map[string]any          `json:"variables"`
	RulesFired          []types.RuleFired       `json:"rules_fired"`
	SuggestedClauses    []types.SuggestedClause `json:"suggested_clauses"`
	MissingClauses      []string                `json:"missing_clauses"`
	DroppedMandatory    []string                `json:"dropped_mandatory"`
	UnresolvedVariables []string                `json:"unresolved_variables"`
	Fingerprint         string                  `json:"fingerprint"`
}

// Generate produces the document for in.
func Generate(in Input) Document {
	reg := in.Registry
	if reg == nil {
		reg = assembler.NewRegistry()
	}
	tmpl := in.Template
	key := tmpl.PolicyKey

	result := emptyResult()
	ruleBacked := !reg.Declarative(key) && len(in.Rules) > 0
	if ruleBacked {
		result = rules.EvaluateRules(in.Rules, rules.RunContext{
			PolicyID:       key,
			Answers:        in.Answers,
			FirmAttributes: in.Firm.Attributes,
		})
	}

	asm := reg.For(key).Assemble(tmpl, in.Answers)
	if ruleBacked {
		asm = assembler.ApplyRules(asm, tmpl, result)
	}

	vars := MergeVariables(asm.Variables, result.Variables, in.Firm)

	doc := Document{
		PolicyKey:           key,
		TemplateID:          tmpl.ID,
		FirmID:              in.Firm.ID,
		Title:               tmpl.Name,
		Sections:            []Section{},
		Modules:             asm.Modules,
		SectionClauses:      asm.SectionClauses,
		Variables:           vars,
		RulesFired:          result.RulesFired,
		SuggestedClauses:    result.SuggestedClauses,
		MissingClauses:      []string{},
		DroppedMandatory:    []string{},
		UnresolvedVariables: []string{},
	}

	library := index(in.Clauses)
	seenMissing := map[string]struct{}{}
	seenUnresolved := map[string]struct{}{}
	for _, sec := range tmpl.Sections {
		ids, ok := asm.SectionClauses[sec.ID]
		if !ok {
			continue
		}
		rs := Section{ID: sec.ID, Title: sec.Title, SectionType: sec.SectionType, Clauses: []RenderedClause{}}
		for _, id := range ids {
			c, ok := library[id]
			if !ok {
				if _, dup := seenMissing[id]; !dup {
					seenMissing[id] = struct{}{}
					doc.MissingClauses = append(doc.MissingClauses, id)
				}
				continue
			}
			body := clauses.Render(c.BodyMD, vars)
			unresolved := clauses.Unresolved(body)
			for _, name := range unresolved {
				if _, dup := seenUnresolved[name]; !dup {
					seenUnresolved[name] = struct{}{}
					doc.UnresolvedVariables = append(doc.UnresolvedVariables, name)
				}
			}
			if unresolved == nil {
				unresolved = []string{}
			}
			rs.Clauses = append(rs.Clauses, RenderedClause{
				ID:         id,
				Title:      clauses.Render(c.Title, vars),
				BodyMD:     body,
				Unresolved: unresolved,
			})
		}
		doc.Sections = append(doc.Sections, rs)
	}

	present := map[string]struct{}{}
	for _, ids := range asm.SectionClauses {
		for _, id := range ids {
			present[id] = struct{}{}
		}
	}
	for _, id := range tmpl.MandatoryClauses() {
		if _, ok := present[id]; !ok {
			doc.DroppedMandatory = append(doc.DroppedMandatory, id)
		}
	}

	doc.Fingerprint = Fingerprint(doc.Sections)
	return doc
}

// MergeVariables layers the variable sources. Later sources win: assembler
// defaults, then rule set_vars, then the firm profile. Firm attributes bind
// as firm.<key> and the firm name as firm.name.
func MergeVariables(defaults, ruleVars map[string]any, firm types.FirmProfile) map[string]any {
	out := make(map[string]any, len(defaults)+len(ruleVars)+len(firm.Attributes)+1)
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range ruleVars {
		out[k] = v
	}
	for k, v := range firm.Attributes {
		out["firm."+k] = v
	}
	if firm.Name != "" {
		out[types.FirmNameVariable] = firm.Name
	}
	return out
}

// Fingerprint hashes the rendered section structure. Two documents with the
// same sections, clause order and bodies share a fingerprint.
func Fingerprint(sections []Section) string {
	d := xxhash.New()
	for _, s := range sections {
		_, _ = d.WriteString("S\x00" + s.ID + "\x00")
		for _, c := range s.Clauses {
			_, _ = d.WriteString("C\x00" + c.ID + "\x00" + c.BodyMD + "\x00")
		}
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// index maps clause ids to clauses. The first clause with an id wins and
// archived clauses are left out.
func index(library []types.Clause) map[string]types.Clause {
	out := make(map[string]types.Clause, len(library))
	for _, c := range library {
		if c.Status == types.ClauseArchived {
			continue
		}
		if _, ok := out[string(c.ID)]; ok {
			continue
		}
		out[string(c.ID)] = c
	}
	return out
}

func emptyResult() types.RulesEngineResult {
	return types.RulesEngineResult{
		IncludedClauses:  []string{},
		ExcludedClauses:  []string{},
		SuggestedClauses: []types.SuggestedClause{},
		Variables:        map[string]any{},
		RulesFired:       []types.RuleFired{},
	}
}
