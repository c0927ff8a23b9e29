// Package logger provides a configured zerolog logger.
package logger

import (
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a new zerolog.Logger configured for the application,
// tagged with serviceName and instanceID. instanceID distinguishes
// concurrent replicas of the same daemon in their logs, using the same
// owner-token vocabulary the dispatcher and scheduler claim rows under
// (spec §9 "Identifiers"); pass "" from callers that don't run
// multiple replicas (e.g. relayctl, a one-shot CLI invocation).
// Call sites should use .Stack() on error events to include stacks.
func New(serviceName, instanceID string) zerolog.Logger {
	// Configure zerolog to work with github.com/pkg/errors:
	// - Automatically marshal pkg/errors stack traces when present
	// - Ensure a stack is present even for std errors when .Stack() is used
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		// If the error already carries a pkg/errors stack, keep it.
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); ok {
			return err
		}
		// Otherwise, attach a stack so downstream logging can render it.
		return pkgerrors.WithStack(err)
	}

	ctx := zerolog.New(os.Stdout).With().
		Str("service", serviceName).
		Timestamp()
	if instanceID != "" {
		ctx = ctx.Str("instance", instanceID)
	}
	return ctx.Logger()
}
