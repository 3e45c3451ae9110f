package envserver

import (
	"context"
	"errors"

	"github.com/signalsfoundry/supplier-sim/core"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrSessionNotFound is returned for unknown or closed session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the server is at its session limit.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrBadRequest marks requests with missing or malformed fields.
	ErrBadRequest = errors.New("bad request")
)

// ToStatusError maps environment errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrBadRequest),
		errors.Is(err, core.ErrAllocationInfeasible):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrIndexLookup):
		return status.Error(codes.OutOfRange, err.Error())

	case errors.Is(err, core.ErrInvalidConfig),
		errors.Is(err, core.ErrHistoryMisaligned):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ErrTooManySessions):
		return status.Error(codes.ResourceExhausted, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
