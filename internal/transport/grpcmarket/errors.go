package grpcmarket

import (
	"context"
	"errors"
	"fmt"

	apperrors "market_client/pkg/errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusTable maps the shared sentinels to status codes. The status message carries the
// sentinel text so that errors sharing a code stay distinguishable.
var statusTable = []struct {
	err  error
	code codes.Code
}{
	{apperrors.ErrItemNotFound, codes.NotFound},
	{apperrors.ErrAccountNotFound, codes.NotFound},
	{apperrors.ErrAlreadyRegistered, codes.AlreadyExists},
	{apperrors.ErrAccountExists, codes.AlreadyExists},
	{apperrors.ErrInsufficientFunds, codes.FailedPrecondition},
	{apperrors.ErrNotRegistered, codes.FailedPrecondition},
	{apperrors.ErrListenerInactive, codes.FailedPrecondition},
	{apperrors.ErrMailboxClosed, codes.FailedPrecondition},
	{apperrors.ErrRejected, codes.InvalidArgument},
	{apperrors.ErrInvalidItem, codes.InvalidArgument},
	{apperrors.ErrInvalidWish, codes.InvalidArgument},
	{apperrors.ErrUnavailable, codes.Unavailable},
}

// toStatus converts a domain error into a gRPC status error
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return status.Error(e.code, e.err.Error())
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus converts a status error back into the shared sentinels. Anything that is
// not a known domain rejection is reported as the remote side being unavailable.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	for _, e := range statusTable {
		if st.Code() == e.code && st.Message() == e.err.Error() {
			return e.err
		}
	}
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", apperrors.ErrRejected, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", apperrors.ErrRejected, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrItemNotFound, st.Message())
	}
	return fmt.Errorf("%w: %s: %s", apperrors.ErrUnavailable, st.Code(), st.Message())
}
