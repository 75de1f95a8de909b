package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"PayRunway/internal/chain"
	pmath "PayRunway/internal/math"
	"PayRunway/internal/query"
)

// codeFor maps engine errors to gRPC codes. Anything unrecognised came from
// the chain or the database and is reported as unavailable.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, pmath.ErrInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, pmath.ErrPrecisionLimit):
		return codes.OutOfRange
	case errors.Is(err, query.ErrForeignAccount):
		return codes.PermissionDenied
	case errors.Is(err, chain.ErrNoSigner), errors.Is(err, query.ErrReadOnly):
		return codes.FailedPrecondition
	case errors.Is(err, query.ErrExecutionInProgress):
		return codes.Aborted
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Unavailable
	}
}

func toStatus(err error) error {
	return status.Error(codeFor(err), err.Error())
}
