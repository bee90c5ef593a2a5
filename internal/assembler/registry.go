package assembler

// Registry maps policy keys to assemblers. Register during setup only;
// lookups are safe for concurrent use once registration is done.
type Registry struct {
	byKey    map[string]Assembler
	fallback Assembler
}

// NewRegistry returns a registry with the built-in assemblers. Unknown
// policy keys use a TemplateAssembler.
func NewRegistry() *Registry {
	r := &Registry{
		byKey:    map[string]Assembler{},
		fallback: NewTemplateAssembler(),
	}
	r.Register(ComplaintsPolicyKey, NewComplaintsAssembler())
	return r
}

// Register sets the assembler for policyKey, replacing any previous one.
func (r *Registry) Register(policyKey string, a Assembler) {
	r.byKey[policyKey] = a
}

// For returns the assembler for policyKey.
func (r *Registry) For(policyKey string) Assembler {
	if a, ok := r.byKey[policyKey]; ok {
		return a
	}
	return r.fallback
}

// Declarative reports whether policyKey has a hand-written assembler.
// Declarative policies never consult the rule engine.
func (r *Registry) Declarative(policyKey string) bool {
	_, ok := r.byKey[policyKey]
	return ok
}
