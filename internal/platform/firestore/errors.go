package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

// WrapError classifies Firestore errors into repository errors by gRPC code.
// Context cancellations pass through unchanged, as do errors that are already
// classified.
func WrapError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified repositories.RepositoryError
	if errors.As(err, &classified) {
		return err
	}

	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.NotFound:
		return repositories.NewNotFoundError(op, key)
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return repositories.NewConflictError(op, key, err)
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return repositories.NewUnavailableError(op, key, err)
	}
	return &repositories.StoreError{Op: op, Key: key, Err: err}
}
