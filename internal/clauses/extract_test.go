package clauses

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/policysmith/internal/types"
)

func TestExtract_ApproverAndFirm(t *testing.T) {
	ex := Extract("Approved by [Approver Role] at [Firm Name].")

	if ex.Template != "Approved by {{approver_role}} at {{firm_name}}." {
		t.Errorf("Template = %q", ex.Template)
	}
	want := []types.ClauseVariable{
		{Name: "approver_role", Description: "Approver Role", Type: types.VariableText, Required: true},
		{Name: "firm_name", Description: "Firm Name", Type: types.VariableText, Required: true},
	}
	if !reflect.DeepEqual(ex.Variables, want) {
		t.Errorf("Variables = %+v, want %+v", ex.Variables, want)
	}

	got := Render(ex.Template, map[string]any{"approver_role": "SMF17", "firm_name": "Acme Ltd"})
	if got != "Approved by SMF17 at Acme Ltd." {
		t.Errorf("Render() = %q", got)
	}
}

func TestExtract_RepeatedPhrases(t *testing.T) {
	ex := Extract("[MLRO] reviews. The [MLRO] signs. The [mlro] files.")

	if ex.Template != "{{mlro}} reviews. The {{mlro}} signs. The {{mlro}} files." {
		t.Errorf("Template = %q", ex.Template)
	}
	if len(ex.Variables) != 1 {
		t.Fatalf("Variables = %+v, want one declaration", ex.Variables)
	}
	if ex.Variables[0].Description != "MLRO" {
		t.Errorf("Description = %q, want first-seen casing MLRO", ex.Variables[0].Description)
	}
}

func TestExtract_LiteralOccurrences(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		template string
		vars     []string
	}{
		{
			name:     "plain and link text",
			body:     "Signed by [Approver Role]. See [Approver Role](#roles).",
			template: "Signed by {{approver_role}}. See {{approver_role}}(#roles).",
			vars:     []string{"approver_role"},
		},
		{
			name:     "link text before plain",
			body:     "See [MLRO](#mlro). The [MLRO] signs.",
			template: "See {{mlro}}(#mlro). The {{mlro}} signs.",
			vars:     []string{"mlro"},
		},
		{
			name:     "undeclared link text untouched",
			body:     "See [the handbook](https://example.org) and [Days].",
			template: "See [the handbook](https://example.org) and {{days}}.",
			vars:     []string{"days"},
		},
		{
			name:     "phrase across lines",
			body:     "Approved by [Approver\nRole] today.",
			template: "Approved by {{approver_role}} today.",
			vars:     []string{"approver_role"},
		},
		{
			name:     "outer bracket of a declared phrase",
			body:     "[outer [Inner]] then [Inner].",
			template: "[outer {{inner}}] then {{inner}}.",
			vars:     []string{"inner"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := Extract(tt.body)
			if ex.Template != tt.template {
				t.Errorf("Template = %q, want %q", ex.Template, tt.template)
			}
			names := []string{}
			for _, v := range ex.Variables {
				names = append(names, v.Name)
			}
			if !reflect.DeepEqual(names, tt.vars) {
				t.Errorf("variable names = %v, want %v", names, tt.vars)
			}
		})
	}
}

func TestExtract_SkipsEmptyNames(t *testing.T) {
	ex := Extract("Tick [ ] when done, see [---].")
	if ex.Template != "Tick [ ] when done, see [---]." {
		t.Errorf("Template = %q, want brackets untouched", ex.Template)
	}
	if len(ex.Variables) != 0 {
		t.Errorf("Variables = %+v, want none", ex.Variables)
	}
}

func TestExtract_FirmAliases(t *testing.T) {
	ex := Extract("XYZ Limited (\"XYZ Ltd\") appoints [Firm Name] staff.")

	want := "{{firm.name}} (\"{{firm.name}}\") appoints {{firm_name}} staff."
	if ex.Template != want {
		t.Errorf("Template = %q, want %q", ex.Template, want)
	}
	names := []string{}
	for _, v := range ex.Variables {
		names = append(names, v.Name)
	}
	if !reflect.DeepEqual(names, []string{"firm_name", types.FirmNameVariable}) {
		t.Errorf("variable names = %v", names)
	}
}

func TestExtract_CustomAliases(t *testing.T) {
	e := Extractor{FirmAliases: []string{"Acme Payments"}}
	ex := e.Extract("Acme Payments and XYZ Ltd")
	if ex.Template != "{{firm.name}} and XYZ Ltd" {
		t.Errorf("Template = %q", ex.Template)
	}
}

func TestExtract_DeclaresExistingPlaceholders(t *testing.T) {
	ex := Extract("Escalate to {{complaints_owner}} within [Days] days.")
	if len(ex.Variables) != 2 || ex.Variables[0].Name != "complaints_owner" || ex.Variables[1].Name != "days" {
		t.Errorf("Variables = %+v", ex.Variables)
	}
}

func TestBuildClause(t *testing.T) {
	c := NewExtractor().BuildClause("", "aml", "Approval", "Approved by [Approver Role].", nil)
	if !strings.HasPrefix(string(c.ID), "cl_") {
		t.Errorf("ID = %q, want generated cl_ prefix", c.ID)
	}
	if c.Status != types.ClauseDraft || c.Version != 1 {
		t.Errorf("Status/Version = %s/%d, want draft/1", c.Status, c.Version)
	}
	if c.BodyMD != "Approved by {{approver_role}}." || len(c.Variables) != 1 {
		t.Errorf("clause = %+v", c)
	}
	if c.Tags == nil {
		t.Errorf("Tags = nil, want empty slice")
	}
}

// Property-based test: binding every declared variable leaves no placeholders
func TestExtract_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	fragment := gen.OneGenOf(
		gen.AlphaString(),
		gen.AlphaString().Map(func(s string) string { return "[" + s + "]" }),
		gen.AlphaString().Map(func(s string) string { return "[" + s + " " + s + "]" }),
		gen.OneConstOf(" ", ".", "{", "}", "[", "]", "XYZ Ltd", "XYZ Limited", "{{existing_var}}", "[ ]"),
	)

	properties.Property("rendering with all declared variables resolves every placeholder", prop.ForAll(
		func(parts []string) bool {
			body := strings.Join(parts, "")
			ex := Extract(body)
			vars := map[string]any{}
			for _, v := range ex.Variables {
				vars[v.Name] = "value"
			}
			return len(Unresolved(Render(ex.Template, vars))) == 0
		},
		gen.SliceOf(fragment),
	))

	properties.Property("declared names are unique", prop.ForAll(
		func(parts []string) bool {
			seen := map[string]bool{}
			for _, v := range Extract(strings.Join(parts, " ")).Variables {
				if seen[v.Name] || v.Name == "" {
					return false
				}
				seen[v.Name] = true
			}
			return true
		},
		gen.SliceOf(fragment),
	))

	properties.TestingRun(t)
}
