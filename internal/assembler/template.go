package assembler

import "github.com/solatis/policysmith/internal/types"

// DefaultCaps applies to templates without a dedicated assembler.
var DefaultCaps = Caps{
	DefaultFocused:  4,
	DefaultStandard: 8,
}

// TemplateAssembler assembles static modules only. Rule-backed policies
// (AML/CTF and friends) use it and then union rule output via ApplyRules.
type TemplateAssembler struct {
	Caps Caps
}

// NewTemplateAssembler creates a TemplateAssembler with DefaultCaps.
func NewTemplateAssembler() *TemplateAssembler {
	return &TemplateAssembler{Caps: DefaultCaps}
}

// Assemble implements Assembler.
func (a *TemplateAssembler) Assemble(tmpl types.Template, answers types.Answers) Assembly {
	return build(tmpl, OptionsFrom(answers), a.Caps, nil, answers)
}
