package types

// VariableType is the declared type of a clause variable. Extraction only
// produces VariableText; authored libraries may declare others.
type VariableType string

const (
	VariableText   VariableType = "text"
	VariableNumber VariableType = "number"
	VariableDate   VariableType = "date"
	VariableList   VariableType = "list"
)

// ClauseStatus tracks a clause through authoring.
type ClauseStatus string

const (
	ClauseDraft    ClauseStatus = "draft"
	ClauseActive   ClauseStatus = "active"
	ClauseArchived ClauseStatus = "archived"
)

// ClauseVariable declares one {{name}} placeholder in a clause body.
type ClauseVariable struct {
	Name        string       `json:"name" yaml:"name" validate:"required"`
	Description string       `json:"description" yaml:"description"`
	Type        VariableType `json:"type" yaml:"type" validate:"omitempty,oneof=text number date list"`
	Required    bool         `json:"required" yaml:"required"`
}

// Clause is a reusable templated paragraph. Variables is derived from the
// body once at ingestion and is not recomputed afterwards.
type Clause struct {
	ID        ClauseID         `json:"id" yaml:"id" validate:"required"`
	PolicyKey string           `json:"policy_key" yaml:"policy_key"`
	Title     string           `json:"title" yaml:"title"`
	BodyMD    string           `json:"body_md" yaml:"body_md"`
	Tags      []string         `json:"tags" yaml:"tags"`
	Variables []ClauseVariable `json:"variables" yaml:"variables" validate:"dive"`
	Version   int              `json:"version" yaml:"version" validate:"gte=0"`
	Status    ClauseStatus     `json:"status" yaml:"status" validate:"omitempty,oneof=draft active archived"`
}
