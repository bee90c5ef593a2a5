// Package types provides domain models shared across policysmith components.
//
// Zero-dependency design: everything except ids.go uses only the standard
// library so the engine packages (rules, clauses, assembler, document) can be
// embedded without pulling in the store or transport stacks.
//
// The JSON field names on these types are the wire contract consumed by the
// authoring surface and the gRPC service; do not rename them.
package types

// RuleID identifies a rule inside a rule pack.
type RuleID string

// ClauseID identifies a clause in a clause library. Templates and rule
// actions reference clauses by this code.
type ClauseID string

// DocumentID represents a UUIDv7 generated-document identifier.
type DocumentID string

// Answers holds the firm's wizard answers, keyed by question code.
type Answers map[string]any

// FirmAttributes holds firm-profile attributes, keyed by attribute code.
type FirmAttributes map[string]any

// FirmProfile is the subset of a firm record the generator binds into
// clause bodies. Name is exposed to templates as {{firm.name}}.
type FirmProfile struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name" validate:"required"`
	Attributes FirmAttributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// FirmNameVariable is the variable the firm-alias pass and the firm profile
// both bind to.
const FirmNameVariable = "firm.name"

// Resource limits enforced when packs are loaded or received over the API.
const (
	// MaxRulesPerPack bounds a single engine run.
	MaxRulesPerPack = 10000

	// MaxClausesPerLibrary bounds clause libraries accepted by ingestion.
	MaxClausesPerLibrary = 5000

	// MaxClauseBodyLength caps a raw clause body (64KB).
	MaxClauseBodyLength = 64 * 1024

	// MaxExprLength caps expr comparator source length.
	MaxExprLength = 1024
)
