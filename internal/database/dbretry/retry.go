package dbretry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/onlyrealroles/ghostscore/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// ErrSerialization is returned by stores that detect a conflicting concurrent
// transaction themselves. It is always retryable.
var ErrSerialization = errors.New("transaction serialization conflict")

// Policy controls how often and how quickly a failed operation is retried.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultPolicy is used when no retry configuration is given.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// PolicyFromConfig builds a policy from the retry section of the config.
// Zero values fall back to the defaults.
func PolicyFromConfig(cfg *config.Retry) Policy {
	p := DefaultPolicy()
	if cfg == nil {
		return p
	}

	if cfg.MaxRetries > 0 {
		p.MaxRetries = cfg.MaxRetries
	}
	if cfg.Delay > 0 {
		p.InitialInterval = time.Duration(cfg.Delay) * time.Millisecond
	}
	if cfg.MaxDelay > 0 {
		p.MaxInterval = time.Duration(cfg.MaxDelay) * time.Millisecond
	}
	if cfg.MaxElapsed > 0 {
		p.MaxElapsedTime = time.Duration(cfg.MaxElapsed) * time.Millisecond
	}

	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(p.MaxElapsedTime),
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
	), p.MaxRetries), ctx)
}

// IsSerializationFailure reports whether err means the transaction lost a
// conflict with a concurrent one and can be re-run from the start.
func IsSerializationFailure(err error) bool {
	if errors.Is(err, ErrSerialization) {
		return true
	}

	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		switch pgerr.Field('C') {
		case "40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
	}

	return false
}

// IsRetryableError checks if the given error is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if IsSerializationFailure(err) {
		return true
	}

	// Check for specific PostgreSQL error codes
	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		switch pgerr.Field('C') {
		case "08000", // connection_exception
			"08003", // connection_does_not_exist
			"08006", // connection_failure
			"08001", // sqlclient_unable_to_establish_sqlconnection
			"08004", // sqlserver_rejected_establishment_of_sqlconnection
			"08007", // transaction_resolution_unknown
			"53000", // insufficient_resources
			"53300", // too_many_connections
			"57P01", // admin_shutdown
			"57P03", // cannot_connect_now
			"55P03": // lock_not_available
			return true
		}
	}

	// Cancellation belongs to the caller; retrying would only delay it
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// Check for common network error strings
	errMsg := err.Error()
	if strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "i/o timeout") {
		return true
	}

	return false
}

// NoResult wraps a database operation that doesn't return a result.
func (p Policy) NoResult(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error

	err := backoff.Retry(func() error {
		lastErr = operation(ctx)
		if lastErr != nil && !IsRetryableError(lastErr) {
			// If error is not retryable, stop retrying
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, p.backOff(ctx))
	if err != nil {
		if IsRetryableError(lastErr) {
			// Return the last actual database error instead of retry error
			return fmt.Errorf("database operation failed after retries: %w", lastErr)
		}
		return err
	}

	return nil
}

// Operation wraps a database operation with retry logic.
func Operation[T any](ctx context.Context, p Policy, operation func(context.Context) (T, error)) (T, error) {
	var result T

	err := p.NoResult(ctx, func(ctx context.Context) error {
		var err error
		result, err = operation(ctx)
		return err
	})

	return result, err
}

// Transaction runs fn in a transaction with the given options, re-running the
// whole transaction when it fails with a retryable error.
func (p Policy) Transaction(
	ctx context.Context, db *bun.DB, opts *sql.TxOptions, fn func(context.Context, bun.Tx) error,
) error {
	return p.NoResult(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, opts, fn)
	})
}
