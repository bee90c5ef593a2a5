package types

// SectionType classifies a template section.
type SectionType string

const (
	SectionPolicy    SectionType = "policy"
	SectionProcedure SectionType = "procedure"
	SectionAppendix  SectionType = "appendix"
)

// Section is an ordered grouping of clauses within a template.
type Section struct {
	ID               string      `json:"id" yaml:"id" validate:"required"`
	Title            string      `json:"title" yaml:"title"`
	Summary          string      `json:"summary" yaml:"summary"`
	SectionType      SectionType `json:"sectionType" yaml:"sectionType" validate:"required,oneof=policy procedure appendix"`
	SuggestedClauses []string    `json:"suggestedClauses" yaml:"suggestedClauses"`
}

// Template is the section topology for one policy.
type Template struct {
	ID        string    `json:"id" yaml:"id" validate:"required"`
	PolicyKey string    `json:"policy_key" yaml:"policy_key" validate:"required"`
	Name      string    `json:"name" yaml:"name"`
	Sections  []Section `json:"sections" yaml:"sections" validate:"required,min=1,dive"`
}

// MandatoryClauses is the ordered-unique union of every section's clause
// ids. A generated policy must not silently drop any of them.
func (t Template) MandatoryClauses() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range t.Sections {
		for _, id := range s.SuggestedClauses {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// ModuleKind distinguishes always-applied modules from answer-driven ones.
type ModuleKind string

const (
	ModuleStatic  ModuleKind = "static"
	ModuleDynamic ModuleKind = "dynamic"
)

// Module is an assembler-internal bundle of clause ids for one section.
// Reasons is provenance for reviewers and must not drive behaviour.
type Module struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Summary     string      `json:"summary"`
	SectionID   string      `json:"sectionId"`
	SectionType SectionType `json:"sectionType"`
	Kind        ModuleKind  `json:"kind"`
	ClauseIDs   []string    `json:"clauseIds"`
	Reasons     []string    `json:"reasons"`
}
