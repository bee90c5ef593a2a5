package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/policysmith/internal/core/db"
	"github.com/solatis/policysmith/internal/types"
)

// toStatus maps an error to a gRPC status.
//
// Validation errors map to INVALID_ARGUMENT.
// Missing templates and documents map to NOT_FOUND.
// Context timeouts map to DEADLINE_EXCEEDED.
// Anything else is a store failure and maps to UNAVAILABLE.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Unavailable
	switch {
	case errors.Is(err, types.ErrInvalidPack),
		errors.Is(err, types.ErrPolicyRequired),
		errors.Is(err, types.ErrTooManyRules),
		errors.Is(err, types.ErrTooManyClauses),
		errors.Is(err, types.ErrClauseTooLarge),
		errors.Is(err, errBadRequest):
		code = codes.InvalidArgument
	case errors.Is(err, types.ErrTemplateNotFound),
		errors.Is(err, db.ErrDocumentNotFound):
		code = codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}
