package pack

import (
	"fmt"

	"github.com/solatis/policysmith/internal/clauses"
	"github.com/solatis/policysmith/internal/types"
)

// ClauseLibrary is a file of already-extracted clauses.
type ClauseLibrary struct {
	PolicyKey string         `json:"policy_key" yaml:"policy_key"`
	Clauses   []types.Clause `json:"clauses" yaml:"clauses" validate:"dive"`
}

// LoadClauses reads a clause library. Clauses without a policy_key inherit
// the library's.
func LoadClauses(path string) ([]types.Clause, error) {
	var lib ClauseLibrary
	if err := decodeFile(path, &lib); err != nil {
		return nil, err
	}
	for i := range lib.Clauses {
		if lib.Clauses[i].PolicyKey == "" {
			lib.Clauses[i].PolicyKey = lib.PolicyKey
		}
	}
	if err := ValidateClauses(lib.Clauses); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib.Clauses, nil
}

// ValidateClauses checks library size, body size and validator tags.
func ValidateClauses(cs []types.Clause) error {
	if len(cs) > types.MaxClausesPerLibrary {
		return fmt.Errorf("%w: %d clauses", types.ErrTooManyClauses, len(cs))
	}
	for _, c := range cs {
		if len(c.BodyMD) > types.MaxClauseBodyLength {
			return fmt.Errorf("%w: %s", types.ErrClauseTooLarge, c.ID)
		}
		if err := checkStruct("clause "+string(c.ID), c); err != nil {
			return err
		}
	}
	return nil
}

// Source is an ingestion source: raw clause text grouped by section, with
// bracket placeholders still in place.
type Source struct {
	PolicyKey   string          `json:"policy_key" yaml:"policy_key" validate:"required"`
	TemplateID  string          `json:"template_id" yaml:"template_id"`
	Name        string          `json:"name" yaml:"name"`
	FirmAliases []string        `json:"firm_aliases" yaml:"firm_aliases"`
	Sections    []SourceSection `json:"sections" yaml:"sections" validate:"required,min=1,dive"`
}

// SourceSection is one section of a Source.
type SourceSection struct {
	ID          string            `json:"id" yaml:"id" validate:"required"`
	Title       string            `json:"title" yaml:"title"`
	Summary     string            `json:"summary" yaml:"summary"`
	SectionType types.SectionType `json:"sectionType" yaml:"sectionType" validate:"required,oneof=policy procedure appendix"`
	Clauses     []SourceClause    `json:"clauses" yaml:"clauses" validate:"dive"`
}

// SourceClause is one raw clause of a Source.
type SourceClause struct {
	ID    string   `json:"id" yaml:"id"`
	Title string   `json:"title" yaml:"title"`
	Body  string   `json:"body" yaml:"body" validate:"required"`
	Tags  []string `json:"tags" yaml:"tags"`
}

// LoadSource reads and validates an ingestion source.
func LoadSource(path string) (Source, error) {
	var src Source
	if err := decodeFile(path, &src); err != nil {
		return Source{}, err
	}
	if err := checkStruct("source "+path, src); err != nil {
		return Source{}, err
	}
	return src, nil
}

// Ingest extracts every clause and builds the matching template. Sections
// list their clauses in source order. ex supplies the firm aliases; the
// source's own aliases replace them when set.
func (s Source) Ingest(ex clauses.Extractor) (types.Template, []types.Clause, error) {
	if len(s.FirmAliases) > 0 {
		ex.FirmAliases = s.FirmAliases
	}

	tmpl := types.Template{
		ID:        s.TemplateID,
		PolicyKey: s.PolicyKey,
		Name:      s.Name,
		Sections:  make([]types.Section, 0, len(s.Sections)),
	}
	if tmpl.ID == "" {
		tmpl.ID = "tpl_" + s.PolicyKey
	}

	var out []types.Clause
	for _, sec := range s.Sections {
		ids := make([]string, 0, len(sec.Clauses))
		for _, sc := range sec.Clauses {
			c := ex.BuildClause(types.ClauseID(sc.ID), s.PolicyKey, sc.Title, sc.Body, sc.Tags)
			out = append(out, c)
			ids = append(ids, string(c.ID))
		}
		tmpl.Sections = append(tmpl.Sections, types.Section{
			ID:               sec.ID,
			Title:            sec.Title,
			Summary:          sec.Summary,
			SectionType:      sec.SectionType,
			SuggestedClauses: ids,
		})
	}

	if err := ValidateClauses(out); err != nil {
		return types.Template{}, nil, err
	}
	if err := ValidateTemplate(tmpl); err != nil {
		return types.Template{}, nil, err
	}
	return tmpl, out, nil
}
