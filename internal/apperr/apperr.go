// Package apperr defines the sentinel error taxonomy shared across the
// engine, matching the categories in spec.md §7 rather than introducing a
// custom error type per package.
package apperr

import "errors"

var (
	// ErrInvalidArgument covers bad batch sizes, empty/null message ids
	// or sources, empty router keys, and nil providers.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned by keyed router lookups for an unknown
	// tenant.
	ErrNotFound = errors.New("not found")

	// ErrJoinNotReady is raised by JoinWaitHandler so the dispatcher
	// abandons the message for backoff instead of failing it outright.
	ErrJoinNotReady = errors.New("join not ready")

	// ErrLeaseLost is surfaced through a lease handle's loss signal when
	// a renew attempt definitively fails.
	ErrLeaseLost = errors.New("lease lost")

	// ErrOptionsValidation is surfaced at registration time when a
	// configuration option fails validation.
	ErrOptionsValidation = errors.New("options validation failed")

	// ErrMissingProcedure is returned by cleanup operations when the
	// backing cleanup procedure/table is absent (fresh schema, or
	// deployment disabled). Callers must log and continue, not exit.
	ErrMissingProcedure = errors.New("missing procedure")
)
