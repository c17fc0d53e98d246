package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how long a retryable call is re-attempted.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy is used by the HTTP adapters.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxElapsedTime:  20 * time.Second,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	bo.MaxElapsedTime = p.MaxElapsedTime
	return backoff.WithContext(bo, ctx)
}

// IsRetryable reports whether err is a provider error marked retryable.
func IsRetryable(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Retryable
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// policy or ctx gives up. The last error from op is returned.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	var result T
	err := backoff.Retry(func() error {
		var err error
		result, err = op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy.backOff(ctx))
	return result, err
}

// Poll calls check until it reports done, using the same exponential
// schedule as Retry. It is used for long-running provider operations.
func Poll(ctx context.Context, policy RetryPolicy, check func() (bool, error)) error {
	errPending := errors.New("operation pending")
	err := backoff.Retry(func() error {
		done, err := check()
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if !done {
			return errPending
		}
		return nil
	}, policy.backOff(ctx))
	if errors.Is(err, errPending) {
		return &Error{Code: "operation_timeout", Message: "long-running operation did not complete in time"}
	}
	return err
}
