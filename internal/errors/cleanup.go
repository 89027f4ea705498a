// Package errors provides teardown helpers for the trace pipeline. The
// pipeline holds kernel and socket resources that must be released on every
// exit path without clobbering the primary error, so failures during
// cleanup are logged rather than returned.
package errors

import (
	"io"

	"github.com/rs/zerolog"
)

// DeferClose closes an io.Closer and logs a failure instead of dropping it.
// Use in defer statements where the close error cannot join the return
// value.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// DeferCleanup runs a teardown function and logs its failure. For deferred
// releases such as closing the control session after a completed run.
func DeferCleanup(logger zerolog.Logger, fn func() error, msg string) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}
