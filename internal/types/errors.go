package types

import "errors"

// Sentinel errors for the ambient layers (loading, storage, transport).
// The engine packages never return errors.
var (
	// ErrInvalidPack indicates a rule pack, clause library, or template failed validation.
	ErrInvalidPack = errors.New("invalid pack")

	// ErrTooManyRules indicates a rule pack exceeds MaxRulesPerPack.
	ErrTooManyRules = errors.New("rule pack exceeds maximum size")

	// ErrTooManyClauses indicates a clause library exceeds MaxClausesPerLibrary.
	ErrTooManyClauses = errors.New("clause library exceeds maximum size")

	// ErrClauseTooLarge indicates a clause body exceeds MaxClauseBodyLength.
	ErrClauseTooLarge = errors.New("clause body too large")

	// ErrUnsupportedFormat indicates a pack file extension is not .yaml, .yml or .json.
	ErrUnsupportedFormat = errors.New("unsupported pack format")

	// ErrTemplateNotFound indicates no template is stored for a policy key.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrPolicyRequired indicates a request omitted the policy identifier.
	ErrPolicyRequired = errors.New("policy_id required")
)
