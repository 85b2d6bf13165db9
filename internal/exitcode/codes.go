package exitcode

import (
	"context"
	"errors"

	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
)

// Exit codes follow BSD sysexits.h conventions where one applies.
// See: https://man.freebsd.org/cgi/man.cgi?query=sysexits
const (
	// Success - every restore job completed
	Success = 0

	// General - general error (fallback)
	General = 1

	// RestoresFailed - the run finished but some jobs failed or only
	// partially succeeded; schedulers key off this one
	RestoresFailed = 2

	// DataError - the restore definition was invalid
	DataError = 65

	// NoInput - definition or report file missing or unreadable
	NoInput = 66

	// Unavailable - backup service unreachable or erroring
	Unavailable = 69

	// NoPerm - token rejected or secret inaccessible
	NoPerm = 77

	// Config - configuration error
	Config = 78

	// Timeout - polling deadline exceeded
	Timeout = 124

	// Cancelled - operation cancelled by user (Ctrl+C)
	Cancelled = 130
)

// FromError maps an error to an exit code using the error taxonomy,
// falling back to General for anything unclassified.
func FromError(err error) int {
	if err == nil {
		return Success
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	switch resterrors.GetCode(err) {
	case resterrors.ErrCodeUnauthorized, resterrors.ErrCodeMissingToken, resterrors.ErrCodeSecretFetch:
		return NoPerm
	case resterrors.ErrCodeUnavailable, resterrors.ErrCodeRateLimited, resterrors.ErrCodeProviderFailed:
		return Unavailable
	case resterrors.ErrCodeTimeout, resterrors.ErrCodePollExhausted:
		return Timeout
	}

	if resterrors.IsValidation(err) {
		return DataError
	}
	return General
}
