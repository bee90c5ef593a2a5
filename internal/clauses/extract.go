package clauses

import (
	"strings"

	"github.com/solatis/policysmith/internal/types"
)

// DefaultFirmAliases are the sample legal-entity names used in source
// documents. Longer aliases come first so "XYZ Limited" is not left as
// "{{firm.name}}imited".
var DefaultFirmAliases = []string{"XYZ Limited", "XYZ Ltd"}

// Extraction is the result of binding a raw clause body.
type Extraction struct {
	Template  string
	Variables []types.ClauseVariable
}

// Extractor rewrites raw clause bodies into templates.
type Extractor struct {
	// FirmAliases are replaced with {{firm.name}} after bracket extraction.
	FirmAliases []string
}

// NewExtractor returns an Extractor using DefaultFirmAliases.
func NewExtractor() Extractor {
	return Extractor{FirmAliases: DefaultFirmAliases}
}

// Extract binds body with the default firm aliases.
func Extract(body string) Extraction {
	return NewExtractor().Extract(body)
}

// Extract scans body for bracket phrases, declares one text variable per
// derived name (first phrase supplies the description) and rewrites each
// phrase to {{name}}. Phrases deriving an empty name are left untouched.
// Placeholders already present in body are declared as well. A second pass
// rewrites every remaining literal "[phrase]" of a declared phrase, in
// declaration order, which covers markdown link text. The firm-alias pass
// runs last, on the rewritten text.
func (e Extractor) Extract(body string) Extraction {
	decl := newDeclarations()
	var phrases []boundPhrase
	seenRaw := map[string]struct{}{}
	var out strings.Builder

	for _, tok := range Tokenize(body) {
		switch tok.Kind {
		case TokenBracket:
			name := VariableName(tok.Value)
			if name == "" {
				out.WriteString(tok.Raw)
				continue
			}
			decl.add(name, tok.Value)
			if _, ok := seenRaw[tok.Raw]; !ok {
				seenRaw[tok.Raw] = struct{}{}
				phrases = append(phrases, boundPhrase{raw: tok.Raw, name: name})
			}
			out.WriteString("{{" + name + "}}")
		case TokenPlaceholder:
			decl.add(tok.Value, tok.Value)
			out.WriteString(tok.Raw)
		default:
			out.WriteString(tok.Raw)
		}
	}

	template := out.String()
	for _, p := range phrases {
		template = strings.ReplaceAll(template, p.raw, "{{"+p.name+"}}")
	}
	for _, alias := range e.FirmAliases {
		if alias == "" || !strings.Contains(template, alias) {
			continue
		}
		template = strings.ReplaceAll(template, alias, "{{"+types.FirmNameVariable+"}}")
		decl.add(types.FirmNameVariable, "Firm name")
	}

	return Extraction{Template: template, Variables: decl.vars}
}

// boundPhrase is one distinct "[phrase]" spelling and the name it binds to.
type boundPhrase struct {
	raw  string
	name string
}

// declarations keeps variables in first-seen order.
type declarations struct {
	vars []types.ClauseVariable
	seen map[string]struct{}
}

func newDeclarations() *declarations {
	return &declarations{vars: []types.ClauseVariable{}, seen: map[string]struct{}{}}
}

func (d *declarations) add(name, description string) {
	if _, ok := d.seen[name]; ok {
		return
	}
	d.seen[name] = struct{}{}
	d.vars = append(d.vars, types.ClauseVariable{
		Name:        name,
		Description: description,
		Type:        types.VariableText,
		Required:    true,
	})
}

// BuildClause extracts body and returns a draft clause carrying the
// rewritten template and its variable declarations.
func (e Extractor) BuildClause(id types.ClauseID, policyKey, title, body string, tags []string) types.Clause {
	if id == "" {
		id = types.NewClauseID()
	}
	if tags == nil {
		tags = []string{}
	}
	ex := e.Extract(body)
	return types.Clause{
		ID:        id,
		PolicyKey: policyKey,
		Title:     title,
		BodyMD:    ex.Template,
		Tags:      tags,
		Variables: ex.Variables,
		Version:   1,
		Status:    types.ClauseDraft,
	}
}
