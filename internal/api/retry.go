package api

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
)

// RetryConfig configures retry behavior for provider calls
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retries (0 = unlimited)
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
	MaxElapsedTime  time.Duration // Maximum total time for retries
	Multiplier      float64       // Backoff multiplier
}

// DefaultRetryConfig returns sensible defaults for provider calls
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  5 * time.Minute,
		Multiplier:      2.0,
	}
}

// RetryOperation executes an operation with exponential backoff retry.
// Permanent errors abort immediately; transient ones are retried until the
// attempt or elapsed-time ceiling.
func RetryOperation(ctx context.Context, cfg *RetryConfig, operation func() error) error {
	return RetryOperationWithNotify(ctx, cfg, operation, nil)
}

// RetryOperationWithNotify is RetryOperation with a callback invoked before
// each retry sleep
func RetryOperationWithNotify(ctx context.Context, cfg *RetryConfig, operation func() error, notify func(err error, next time.Duration)) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.InitialInterval
	expBackoff.MaxInterval = cfg.MaxInterval
	expBackoff.MaxElapsedTime = cfg.MaxElapsedTime
	expBackoff.Multiplier = cfg.Multiplier
	expBackoff.Reset()

	var b backoff.BackOff = expBackoff
	if cfg.MaxRetries > 0 {
		b = backoff.WithMaxRetries(expBackoff, uint64(cfg.MaxRetries))
	}
	b = backoff.WithContext(b, ctx)

	wrappedOp := func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if resterrors.IsTransient(err) {
			return err
		}
		if IsPermanentError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if notify == nil {
		return backoff.Retry(wrappedOp, b)
	}
	return backoff.RetryNotify(wrappedOp, b, notify)
}

// IsPermanentError returns true if the error should not be retried
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	permanentPatterns := []string{
		"forbidden",
		"unauthorized",
		"invalid token",
		"invalid credentials",
		"not found",
		"invalid argument",
		"malformed",
		"invalid request",
		"permission denied",
	}

	for _, pattern := range permanentPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsRetryableError returns true if the error is transient and should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if isNetError(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"connection closed",
		"eof",
		"broken pipe",
		"temporary failure",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"gateway timeout",
		"too many requests",
		"rate limit",
		"throttl",
		"try again",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isNetError checks if err wraps a net.Error
func isNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			err = unwrapper.Unwrap()
		} else {
			break
		}
	}
	return false
}
