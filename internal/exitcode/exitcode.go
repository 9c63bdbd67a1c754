// Package exitcode defines exit codes for the CLI.
package exitcode

import (
	"errors"

	"tasksync/internal/service"
	"tasksync/internal/session"
)

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, not found, rejected input).
	UserError = 1

	// AuthError indicates an auth/config error.
	AuthError = 2

	// BackendError indicates a backend/API/network error.
	BackendError = 3
)

// ForError maps a failure to its exit code. A nil error is Success.
func ForError(err error) int {
	if err == nil {
		return Success
	}
	if errors.Is(err, session.ErrNoSession) {
		return AuthError
	}
	switch service.KindOf(err) {
	case service.Unauthenticated, service.Unauthorized:
		return AuthError
	case service.NotFound, service.Validation:
		return UserError
	default:
		return BackendError
	}
}
