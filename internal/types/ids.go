package types

import "github.com/google/uuid"

// NewDocumentID generates a UUIDv7 document identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.Must(uuid.NewV7()).String())
}

// NewClauseID generates a clause code for ingested clauses that arrive
// without one. The "cl_" prefix keeps generated codes visually distinct
// from authored ones.
func NewClauseID() ClauseID {
	return ClauseID("cl_" + uuid.Must(uuid.NewV7()).String())
}

// ParseDocumentID validates and converts a string to DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return DocumentID(s), nil
}
