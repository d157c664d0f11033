package service

import (
	"errors"
	"fmt"

	"github.com/alphabot-ai/murmur/internal/store"
)

// The error taxonomy the transport layer maps onto status codes. Every
// service method returns errors wrapping exactly one of these (or an
// uncategorized failure).
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("temporarily unavailable")
)

// fromStore lifts persistence sentinels into the service taxonomy.
func fromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrNotOwner):
		return ErrForbidden
	case errors.Is(err, store.ErrDuplicateVote):
		return fmt.Errorf("already voted in this direction: %w", ErrConflict)
	case errors.Is(err, store.ErrDuplicateUsername):
		return fmt.Errorf("username already taken: %w", ErrConflict)
	case errors.Is(err, store.ErrDuplicateEmail):
		return fmt.Errorf("email already registered: %w", ErrConflict)
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}
