package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/bigraph/internal/codec"
	bgerrors "github.com/23skdu/bigraph/internal/errors"
	"github.com/23skdu/bigraph/internal/graph"
)

// ToGRPCStatus converts a domain error to a gRPC status error with an
// appropriate code.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}

	// Already a gRPC status error
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, codec.ErrInvalidEncoding), errors.Is(err, graph.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	}

	errType, ok := bgerrors.TypeOf(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	switch errType {
	case bgerrors.ErrorTypeValidation, bgerrors.ErrorTypeEncoding:
		return status.Error(codes.InvalidArgument, err.Error())
	case bgerrors.ErrorTypeConfiguration:
		return status.Error(codes.FailedPrecondition, err.Error())
	case bgerrors.ErrorTypeTransport:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
